/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/RussellLuo/slidingwindow"
	"github.com/jonboulle/clockwork"

	"github.com/budzeciak/rpc-proxy/lrucache"
)

// SlidingWindowLimiter implements sliding window rate limiting algorithm.
// The windows are kept in process memory, one per key, up to maxKeys keys.
type SlidingWindowLimiter struct {
	windows *lrucache.LRUCache[string, *slidingwindow.Limiter]
	rate    Rate
	clock   clockwork.Clock
}

var _ Limiter = (*SlidingWindowLimiter)(nil)

// NewSlidingWindowLimiter creates a new sliding window rate limiter.
func NewSlidingWindowLimiter(rate Rate, maxKeys int) (*SlidingWindowLimiter, error) {
	windows, err := lrucache.New[string, *slidingwindow.Limiter](maxKeys, nil)
	if err != nil {
		return nil, fmt.Errorf("new LRU in-memory store for keys: %w", err)
	}
	return &SlidingWindowLimiter{windows: windows, rate: rate, clock: clockwork.NewRealClock()}, nil
}

func (l *SlidingWindowLimiter) newWindow() *slidingwindow.Limiter {
	lim, _ := slidingwindow.NewLimiter(
		l.rate.Duration, int64(l.rate.Count), func() (slidingwindow.Window, slidingwindow.StopFunc) {
			return slidingwindow.NewLocalWindow()
		})
	return lim
}

// Allow checks if the request should be allowed based on the rate limit.
// The retry hint points to the end of the current window.
func (l *SlidingWindowLimiter) Allow(_ context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	lim, _ := l.windows.GetOrAdd(key, l.newWindow)
	if lim.Allow() {
		return true, 0, nil
	}
	now := l.clock.Now()
	return false, now.Truncate(l.rate.Duration).Add(l.rate.Duration).Sub(now), nil
}
