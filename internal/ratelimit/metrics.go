/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import "github.com/prometheus/client_golang/prometheus"

// Decision outcomes reported in metrics.
const (
	DecisionAllowed    = "allowed"
	DecisionRejected   = "rejected"
	DecisionStoreError = "store_error"
	DecisionExcluded   = "excluded"
)

// MetricsCollector receives admission outcomes.
type MetricsCollector interface {
	IncDecisions(decision string)
}

// PrometheusMetrics counts admission decisions in Prometheus.
type PrometheusMetrics struct {
	Decisions *prometheus.CounterVec
}

// NewPrometheusMetrics creates PrometheusMetrics. The store kind is attached as a constant label.
func NewPrometheusMetrics(namespace string, storeKind StoreKind) *PrometheusMetrics {
	return &PrometheusMetrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "rate_limit_decisions_total",
			Help:        "Number of rate limit decisions by outcome.",
			ConstLabels: prometheus.Labels{"store": string(storeKind)},
		}, []string{"decision"}),
	}
}

// MustRegister registers the metrics in the default Prometheus registry.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.Decisions)
}

// Unregister removes the metrics from the default Prometheus registry.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.Decisions)
}

// IncDecisions increments the counter of the given outcome.
func (pm *PrometheusMetrics) IncDecisions(decision string) {
	pm.Decisions.WithLabelValues(decision).Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) IncDecisions(string) {}
