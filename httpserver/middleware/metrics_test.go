/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	apptestutil "github.com/budzeciak/rpc-proxy/testutil"
)

func TestHTTPRequestMetrics(t *testing.T) {
	collector := NewHTTPRequestMetricsCollector("")
	getRoutePattern := func(r *http.Request) string {
		if r.URL.Path == "/api/rpc" {
			return "/api/rpc"
		}
		return ""
	}

	var inFlightDuringRequest float64
	handler := HTTPRequestMetrics(collector, getRoutePattern)(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		inFlightDuringRequest = testutil.ToFloat64(collector.InFlight.WithLabelValues(http.MethodPost, userAgentTypeHTTPClient))
		if r.URL.Path != "/api/rpc" {
			rw.WriteHeader(http.StatusNotFound)
		}
	}))

	for i := 0; i < 3; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/rpc", nil))
	}
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/unknown", nil))

	require.Equal(t, 1.0, inFlightDuringRequest)
	require.Equal(t, 0.0, testutil.ToFloat64(collector.InFlight.WithLabelValues(http.MethodPost, userAgentTypeHTTPClient)))

	hist := func(route, status string) prometheus.Histogram {
		return collector.Durations.WithLabelValues(http.MethodPost, route, userAgentTypeHTTPClient, status).(prometheus.Histogram)
	}
	apptestutil.RequireSamplesCountInHistogram(t, hist("/api/rpc", "200"), 3)
	apptestutil.RequireSamplesCountInHistogram(t, hist("unmatched", "404"), 1)
}

func TestHTTPRequestMetricsPanic(t *testing.T) {
	collector := NewHTTPRequestMetricsCollector("")
	handler := HTTPRequestMetrics(collector, func(r *http.Request) string { return "/api/rpc" })(
		http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) { panic("boom") }))

	req := httptest.NewRequest(http.MethodPost, "/api/rpc", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	require.Panics(t, func() { handler.ServeHTTP(httptest.NewRecorder(), req) })

	hist := collector.Durations.WithLabelValues(http.MethodPost, "/api/rpc", userAgentTypeBrowser, "500").(prometheus.Histogram)
	apptestutil.RequireSamplesCountInHistogram(t, hist, 1)
}
