/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package ratelimit decides whether an RPC call may proceed.
//
// Calls are counted per (operation, client identity) key, "rl:<operation>:<identity>".
// The default algorithm is a fixed window counter kept in a CounterStore: a shared
// Redis-compatible service (native protocol or REST) when one is configured, or a
// process-local bounded store otherwise. Sliding window and leaky bucket limiters
// are available as process-local alternatives.
//
// Admitter applies the failure policy on top of a Limiter: with fail-open (the default)
// a store failure admits the call, with fail-closed it is reported to the caller.
package ratelimit
