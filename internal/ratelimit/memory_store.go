/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/budzeciak/rpc-proxy/lrucache"
)

type windowCounter struct {
	count     int64
	expiresAt time.Time // zero means no expiry
}

// MemoryStore is a process-local CounterStore.
// The number of tracked keys is bounded; the least recently used key is evicted first.
// Expired counters are dropped on access.
type MemoryStore struct {
	mu       sync.Mutex // guards read-modify-write of counters
	counters *lrucache.LRUCache[string, *windowCounter]
	clock    clockwork.Clock
}

var _ CounterStore = (*MemoryStore)(nil)

// MemoryStoreOpts represents options for MemoryStore.
type MemoryStoreOpts struct {
	Clock            clockwork.Clock
	MetricsCollector lrucache.MetricsCollector
}

// NewMemoryStore creates a new MemoryStore that tracks up to maxKeys counters.
func NewMemoryStore(maxKeys int, opts MemoryStoreOpts) (*MemoryStore, error) {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	counters, err := lrucache.NewWithOpts[string, *windowCounter](
		maxKeys, opts.MetricsCollector, lrucache.Options{Clock: clock})
	if err != nil {
		return nil, fmt.Errorf("new LRU in-memory store for counters: %w", err)
	}
	return &MemoryStore{counters: counters, clock: clock}, nil
}

// Increment adds one to the counter and returns the new value.
func (s *MemoryStore) Increment(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, _ := s.counters.GetOrAdd(key, func() *windowCounter { return &windowCounter{} })
	c.count++
	return c.count, nil
}

// Expire sets the counter to expire after ttl.
func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters.Get(key)
	if !ok {
		return nil
	}
	if ttl <= 0 {
		s.counters.Remove(key)
		return nil
	}
	c.expiresAt = s.clock.Now().Add(ttl)
	s.counters.AddWithTTL(key, c, ttl)
	return nil
}

// TTL returns the remaining time to live of the counter.
func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters.Get(key)
	if !ok || c.expiresAt.IsZero() {
		return 0, nil
	}
	return c.expiresAt.Sub(s.clock.Now()), nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close does nothing.
func (s *MemoryStore) Close() error {
	return nil
}

// RunPeriodicCleanup drops expired counters every interval until ctx is done.
// It's supposed to be run in a separate goroutine.
func (s *MemoryStore) RunPeriodicCleanup(ctx context.Context, interval time.Duration) {
	s.counters.RunPeriodicCleanup(ctx, interval)
}
