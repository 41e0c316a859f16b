/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package rpcproxy serves the rate-limited RPC proxy endpoint and the backend health endpoint.
//
// A proxied call is validated, counted by the rate limiter under its client identity and then
// forwarded to the backend RPC endpoint with the caller's authorization, so the backend enforces
// row-level permissions as that user.
package rpcproxy
