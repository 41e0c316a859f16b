/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package retry runs operations with exponential backoff. The proxy never retries request-time calls;
// it is used for startup checks of external dependencies only.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retry loop. MaxAttempts counts the first call, so 1 disables retries
// and 0 retries until the context is done.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration // zero keeps the backoff package default
}

// Opts represents optional hooks for Do.
type Opts struct {
	// IsRetryable reports whether err is worth another attempt. Nil means every error is.
	IsRetryable func(err error) bool
	// OnRetry is called after a failed attempt that is going to be retried.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Do calls fn until it succeeds, the attempts are exhausted, fn returns a non-retryable error or ctx is done.
// The last error of fn is returned as is, except when ctx is done, then ctx.Err() is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error, opts Opts) error {
	b := p.newBackOff(ctx)
	attempt := 0
	op := func() error {
		attempt++
		err := fn(ctx)
		if err != nil && opts.IsRetryable != nil && !opts.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	var notify backoff.Notify
	if opts.OnRetry != nil {
		notify = func(err error, delay time.Duration) { opts.OnRetry(attempt, err, delay) }
	}
	return backoff.RetryNotify(op, b, notify)
}

func (p Policy) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0
	var b backoff.BackOff = eb
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	b = backoff.WithContext(b, ctx)
	b.Reset()
	return b
}
