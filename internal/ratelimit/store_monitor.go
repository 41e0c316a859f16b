/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/budzeciak/rpc-proxy/log"
)

// DefaultStorePingTimeout limits a single ping made by StoreMonitor.
const DefaultStorePingTimeout = 2 * time.Second

// StoreMonitor pings the counter store and exports its reachability as a gauge.
// It is a service.Worker meant to be run by a periodic worker.
type StoreMonitor struct {
	store       CounterStore
	pingTimeout time.Duration
	logger      log.FieldLogger
	up          prometheus.Gauge
	reachable   *atomic.Bool
}

// NewStoreMonitor creates a new StoreMonitor.
func NewStoreMonitor(store CounterStore, kind StoreKind, namespace string, logger log.FieldLogger) *StoreMonitor {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return &StoreMonitor{
		store:       store,
		pingTimeout: DefaultStorePingTimeout,
		logger:      logger,
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "counter_store_up",
			Help:        "Whether the last ping of the counter store succeeded (1) or not (0).",
			ConstLabels: prometheus.Labels{"store": string(kind)},
		}),
		reachable: atomic.NewBool(true),
	}
}

// Run pings the store once.
func (m *StoreMonitor) Run(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, m.pingTimeout)
	defer cancel()

	if err := m.store.Ping(pingCtx); err != nil {
		m.up.Set(0)
		if m.reachable.CompareAndSwap(true, false) {
			m.logger.Warn("counter store became unreachable", log.Error(err))
		}
		return fmt.Errorf("ping counter store: %w", err)
	}
	m.up.Set(1)
	if m.reachable.CompareAndSwap(false, true) {
		m.logger.Info("counter store is reachable again")
	}
	return nil
}

// Reachable reports the result of the last ping. It is true before the first one.
func (m *StoreMonitor) Reachable() bool {
	return m.reachable.Load()
}

// MustRegisterMetrics registers the gauge in the default Prometheus registry.
func (m *StoreMonitor) MustRegisterMetrics() {
	prometheus.MustRegister(m.up)
}

// UnregisterMetrics removes the gauge from the default Prometheus registry.
func (m *StoreMonitor) UnregisterMetrics() {
	prometheus.Unregister(m.up)
}
