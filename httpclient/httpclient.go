/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package httpclient builds the outbound HTTP clients used to reach the backend and the counter store.
package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/budzeciak/rpc-proxy/log"
)

// CloneHTTPRequest creates a shallow copy of the request along with a deep copy of the Headers.
func CloneHTTPRequest(req *http.Request) *http.Request {
	r := new(http.Request)
	*r = *req
	r.Header = req.Header.Clone()
	return r
}

// Opts provides options for NewWithOpts function.
type Opts struct {
	// UserAgent is a user agent string.
	UserAgent string

	// RequestType names the kind of outgoing calls in logs and metrics (e.g. "backend_rpc").
	RequestType string

	// Delegate is the next RoundTripper in the chain.
	Delegate http.RoundTripper

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// Collector is a metrics collector.
	Collector MetricsCollector

	// AuthProvider, if set, supplies a bearer token for requests without an Authorization header.
	AuthProvider AuthProvider
}

// New creates an HTTP client configured by cfg.
func New(cfg *Config) *http.Client {
	return NewWithOpts(cfg, Opts{})
}

// NewWithOpts wraps the delegate transport with
// logging, metrics, user agent, request id and bearer auth round trippers.
func NewWithOpts(cfg *Config, opts Opts) *http.Client {
	delegate := opts.Delegate
	if delegate == nil {
		delegate = http.DefaultTransport.(*http.Transport).Clone()
	}

	if opts.AuthProvider != nil {
		delegate = NewAuthBearerRoundTripper(delegate, opts.AuthProvider)
	}

	delegate = NewRequestIDRoundTripper(delegate)

	if opts.UserAgent != "" {
		delegate = NewUserAgentRoundTripper(delegate, opts.UserAgent)
	}

	if cfg.Metrics.Enabled && opts.Collector != nil {
		delegate = NewMetricsRoundTripperWithOpts(delegate, MetricsRoundTripperOpts{
			RequestType: opts.RequestType,
			Collector:   opts.Collector,
		})
	}

	if cfg.Logger.Enabled {
		logOpts := cfg.Logger.TransportOpts()
		logOpts.LoggerProvider = opts.LoggerProvider
		delegate = NewLoggingRoundTripperWithOpts(delegate, opts.RequestType, logOpts)
	}

	return &http.Client{Transport: delegate, Timeout: time.Duration(cfg.Timeout)}
}
