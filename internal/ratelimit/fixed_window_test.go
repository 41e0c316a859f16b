/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func newFakeClockMemoryStore(t *testing.T) (*MemoryStore, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	store, err := NewMemoryStore(1000, MemoryStoreOpts{Clock: clock})
	require.NoError(t, err)
	return store, clock
}

func TestFixedWindowLimiter(t *testing.T) {
	store, clock := newFakeClockMemoryStore(t)
	limiter, err := NewFixedWindowLimiter(store, Rate{Count: 2, Duration: time.Minute})
	require.NoError(t, err)
	ctx := context.Background()
	key := MakeKey("getBudgets", "clientA")
	require.Equal(t, "rl:getBudgets:clientA", key)

	allow, _, err := limiter.Allow(ctx, key)
	require.NoError(t, err)
	require.True(t, allow)

	allow, _, err = limiter.Allow(ctx, key)
	require.NoError(t, err)
	require.True(t, allow)

	allow, retryAfter, err := limiter.Allow(ctx, key)
	require.NoError(t, err)
	require.False(t, allow)
	require.Greater(t, retryAfter, time.Duration(0))
	require.LessOrEqual(t, retryAfter, time.Minute)

	clock.Advance(45 * time.Second)
	allow, retryAfter, err = limiter.Allow(ctx, key)
	require.NoError(t, err)
	require.False(t, allow)
	require.Equal(t, 15*time.Second, retryAfter)

	// Another client has its own quota.
	allow, _, err = limiter.Allow(ctx, MakeKey("getBudgets", "clientB"))
	require.NoError(t, err)
	require.True(t, allow)

	// Another operation has its own quota.
	allow, _, err = limiter.Allow(ctx, MakeKey("getExpenses", "clientA"))
	require.NoError(t, err)
	require.True(t, allow)

	clock.Advance(15 * time.Second)
	allow, _, err = limiter.Allow(ctx, key)
	require.NoError(t, err)
	require.True(t, allow)
	n, err := store.Increment(ctx, key)
	require.NoError(t, err)
	require.EqualValues(t, 2, n, "the window must start over with a count of 1")
}

func TestFixedWindowLimiterWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+mr.Addr(), "")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	limiter, err := NewFixedWindowLimiter(store, Rate{Count: 2, Duration: time.Minute})
	require.NoError(t, err)
	ctx := context.Background()
	key := MakeKey("getBudgets", "clientA")

	for i := 0; i < 2; i++ {
		allow, _, err := limiter.Allow(ctx, key)
		require.NoError(t, err)
		require.True(t, allow)
	}
	allow, retryAfter, err := limiter.Allow(ctx, key)
	require.NoError(t, err)
	require.False(t, allow)
	require.Greater(t, retryAfter, time.Duration(0))
	require.LessOrEqual(t, retryAfter, time.Minute)
	require.Equal(t, "3", mustGet(t, mr, key))

	mr.FastForward(time.Minute)
	allow, _, err = limiter.Allow(ctx, key)
	require.NoError(t, err)
	require.True(t, allow)
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

func TestFixedWindowLimiterRearmsLostExpiry(t *testing.T) {
	store, _ := newFakeClockMemoryStore(t)
	ctx := context.Background()
	key := MakeKey("op", "c")
	// Counter left over limit without expiry.
	for i := 0; i < 3; i++ {
		_, err := store.Increment(ctx, key)
		require.NoError(t, err)
	}

	limiter, err := NewFixedWindowLimiter(store, Rate{Count: 2, Duration: 30 * time.Second})
	require.NoError(t, err)
	allow, retryAfter, err := limiter.Allow(ctx, key)
	require.NoError(t, err)
	require.False(t, allow)
	require.Equal(t, 30*time.Second, retryAfter)

	ttl, err := store.TTL(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, ttl)
}

func TestFixedWindowLimiterStoreErrors(t *testing.T) {
	storeErr := errors.New("connection refused")
	tests := []struct {
		name  string
		store *failingStore
	}{
		{name: "increment", store: &failingStore{incrErr: storeErr}},
		{name: "expire", store: &failingStore{expireErr: storeErr}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter, err := NewFixedWindowLimiter(tt.store, Rate{Count: 1, Duration: time.Minute})
			require.NoError(t, err)
			_, _, err = limiter.Allow(context.Background(), "k")
			require.ErrorIs(t, err, storeErr)
		})
	}
}

func TestNewFixedWindowLimiterInvalidRate(t *testing.T) {
	_, err := NewFixedWindowLimiter(&failingStore{}, Rate{Count: 0, Duration: time.Minute})
	require.Error(t, err)
	_, err = NewFixedWindowLimiter(&failingStore{}, Rate{Count: 1})
	require.Error(t, err)
}

func TestFixedWindowLimiterConcurrent(t *testing.T) {
	store, _ := newFakeClockMemoryStore(t)
	const limit = 50
	limiter, err := NewFixedWindowLimiter(store, Rate{Count: limit, Duration: time.Minute})
	require.NoError(t, err)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < limit*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allow, _, err := limiter.Allow(context.Background(), "rl:op:same")
			if err == nil && allow {
				admitted.Inc()
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, limit, admitted.Load())
}

// failingStore is a CounterStore whose operations fail with the configured errors.
type failingStore struct {
	incrErr   error
	expireErr error
	pingErr   error
	count     int64
}

func (s *failingStore) Increment(context.Context, string) (int64, error) {
	if s.incrErr != nil {
		return 0, s.incrErr
	}
	s.count++
	return s.count, nil
}

func (s *failingStore) Expire(context.Context, string, time.Duration) error { return s.expireErr }

func (s *failingStore) TTL(context.Context, string) (time.Duration, error) { return 0, nil }

func (s *failingStore) Ping(context.Context) error { return s.pingErr }

func (s *failingStore) Close() error { return nil }
