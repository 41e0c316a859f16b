/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// RoutePatternGetterFunc returns the route pattern matched by the router, e.g. "/api/rpc".
// Metrics are labeled by the pattern instead of the raw path to keep cardinality bounded.
type RoutePatternGetterFunc func(r *http.Request) string

// WrapResponseWriter is a response writer that remembers the status code and the number of bytes written.
type WrapResponseWriter = chimw.WrapResponseWriter

// WrapResponseWriterIfNeeded wraps rw unless it is already wrapped by an outer middleware.
func WrapResponseWriterIfNeeded(rw http.ResponseWriter, protoMajor int) WrapResponseWriter {
	if wrw, ok := rw.(WrapResponseWriter); ok {
		return wrw
	}
	return chimw.NewWrapResponseWriter(rw, protoMajor)
}

// statusOf returns the response status, treating a handler that wrote nothing as 200.
func statusOf(wrw WrapResponseWriter) int {
	if status := wrw.Status(); status != 0 {
		return status
	}
	return http.StatusOK
}
