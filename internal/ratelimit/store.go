/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"time"
)

// CounterStore keeps expiring integer counters. Its operations mirror the
// Redis INCR, PEXPIRE and PTTL commands.
type CounterStore interface {
	// Increment adds one to the counter and returns the new value.
	// A missing (or expired) counter starts from zero, so the first call returns 1.
	Increment(ctx context.Context, key string) (int64, error)

	// Expire sets the counter to expire after ttl. It is a no-op for a missing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the remaining time to live of the counter.
	// A non-positive value means that the key has no expiry or does not exist.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// StoreKind names a CounterStore implementation.
type StoreKind string

// Counter store kinds.
const (
	StoreKindMemory StoreKind = "memory"
	StoreKindRedis  StoreKind = "redis"
	StoreKindREST   StoreKind = "rest"
)
