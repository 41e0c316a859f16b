/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/budzeciak/rpc-proxy/restapi"
)

type requestBodyLimitHandler struct {
	next         http.Handler
	maxSizeBytes uint64
}

// RequestBodyLimit is a middleware that rejects request bodies larger than maxSizeBytes.
// A declared Content-Length over the limit is answered with 413 right away;
// otherwise reading past the limit fails inside the handler (restapi.DecodeRequestJSON maps it to 413).
func RequestBodyLimit(maxSizeBytes uint64) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return &requestBodyLimitHandler{next: next, maxSizeBytes: maxSizeBytes}
	}
}

func (h *requestBodyLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.ContentLength > int64(h.maxSizeBytes) { //nolint:gosec // maxSizeBytes is a reasonable value
		reqErr := restapi.NewTooLargeMalformedRequestError(h.maxSizeBytes)
		restapi.RespondMalformedRequestError(rw, reqErr, GetLoggerFromContext(r.Context()))
		return
	}
	if r.Body != nil {
		r.Body = http.MaxBytesReader(rw, r.Body, int64(h.maxSizeBytes)) //nolint:gosec
	}
	h.next.ServeHTTP(rw, r)
}
