/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/budzeciak/rpc-proxy/log"
	"github.com/budzeciak/rpc-proxy/log/logtest"
)

func TestPeriodicWorker_Run(t *testing.T) {
	t.Run("runs every interval until context is canceled", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		var runs atomic.Int32
		periodicWorker := NewPeriodicWorkerWithOpts(WorkerFunc(func(ctx context.Context) error {
			runs.Inc()
			return nil
		}), time.Minute, log.NewDisabledLogger(), PeriodicWorkerOpts{Clock: clock, InitialDelay: time.Second})

		ctx, cancel := context.WithCancel(context.Background())
		runErr := make(chan error, 1)
		go func() { runErr <- periodicWorker.Run(ctx) }()

		clock.BlockUntil(1)
		clock.Advance(time.Second)
		require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond*10)

		for i := 2; i <= 4; i++ {
			clock.BlockUntil(1)
			clock.Advance(time.Minute)
			want := int32(i)
			require.Eventually(t, func() bool { return runs.Load() == want }, time.Second, time.Millisecond*10)
		}

		cancel()
		require.NoError(t, <-runErr)
		require.Equal(t, int32(4), runs.Load())
	})

	t.Run("stops by ErrPeriodicWorkerStop", func(t *testing.T) {
		var runs atomic.Int32
		periodicWorker := NewPeriodicWorker(WorkerFunc(func(ctx context.Context) error {
			if runs.Inc() == 2 {
				return ErrPeriodicWorkerStop
			}
			return nil
		}), time.Millisecond, log.NewDisabledLogger())

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		require.NoError(t, periodicWorker.Run(ctx))
		require.Equal(t, int32(2), runs.Load())
		require.NoError(t, ctx.Err())
	})

	t.Run("error is logged and interval depends on it", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		logger := logtest.NewRecorder()
		var runs atomic.Int32
		periodicWorker := NewPeriodicWorkerWithOpts(WorkerFunc(func(ctx context.Context) error {
			if runs.Inc() == 1 {
				return errors.New("counter store is unreachable")
			}
			return nil
		}), time.Minute, logger, PeriodicWorkerOpts{
			Name:         "store_monitor",
			Clock:        clock,
			InitialDelay: time.Second,
			IntervalDelayFunc: func(worker Worker, err error) time.Duration {
				if err != nil {
					return time.Second
				}
				return time.Minute
			},
		})

		ctx, cancel := context.WithCancel(context.Background())
		runErr := make(chan error, 1)
		go func() { runErr <- periodicWorker.Run(ctx) }()

		clock.BlockUntil(1)
		clock.Advance(time.Second)
		require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond*10)

		clock.BlockUntil(1)
		clock.Advance(time.Second) // the retry interval after an error
		require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, time.Millisecond*10)

		cancel()
		require.NoError(t, <-runErr)

		entry, found := logger.FindEntry("periodically running worker finished with error")
		require.True(t, found)
		_, found = entry.FindField("worker")
		require.True(t, found)
	})
}
