/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

// Unit is a part of the service with its own lifecycle: the HTTP server, a background worker, etc.
type Unit interface {
	// Start runs the unit. It may return right away or block for the unit's whole lifetime.
	// A fatal error is sent to fatalErr at most once, and only before Start returns.
	Start(fatalErr chan<- error)

	// Stop halts the unit. It may be called whether Start succeeded, failed, is still running or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is implemented by units that own Prometheus metrics.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
