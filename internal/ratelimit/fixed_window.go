/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"errors"
	"time"
)

// FixedWindowLimiter counts calls per key in non-overlapping windows kept in a CounterStore.
//
// The first call in a window creates the counter and arms its expiry; every call increments it.
// A call is rejected when the counter exceeds the limit; the retry hint is the counter's remaining TTL.
type FixedWindowLimiter struct {
	store CounterStore
	rate  Rate
}

var _ Limiter = (*FixedWindowLimiter)(nil)

// NewFixedWindowLimiter creates a new fixed window limiter.
func NewFixedWindowLimiter(store CounterStore, rate Rate) (*FixedWindowLimiter, error) {
	if rate.Count <= 0 || rate.Duration <= 0 {
		return nil, errors.New("rate count and duration must be positive")
	}
	return &FixedWindowLimiter{store: store, rate: rate}, nil
}

// Allow increments the counter for key and reports whether the call fits into the current window.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	count, err := l.store.Increment(ctx, key)
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err = l.store.Expire(ctx, key, l.rate.Duration); err != nil {
			return false, 0, err
		}
	}
	if count <= int64(l.rate.Count) {
		return true, 0, nil
	}

	ttl, err := l.store.TTL(ctx, key)
	if err != nil {
		return false, 0, err
	}
	if ttl <= 0 {
		// Counter without expiry: re-arm it.
		if err = l.store.Expire(ctx, key, l.rate.Duration); err != nil {
			return false, 0, err
		}
		ttl = l.rate.Duration
	}
	return false, ttl, nil
}
