/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package lrucache provides a bounded in-memory cache with LRU eviction, per-entry expiration
// driven by a replaceable clock, and Prometheus metrics. The process-local counter store
// and the local limiters keep their per-key state in it.
package lrucache
