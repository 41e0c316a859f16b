/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package rpcproxy

import (
	"net/http"

	"github.com/budzeciak/rpc-proxy/httpserver/middleware"
	"github.com/budzeciak/rpc-proxy/restapi"
)

type healthSource struct {
	URLFrom  *string `json:"urlFrom"`
	AnonFrom *string `json:"anonFrom"`
}

type healthResponseData struct {
	OK             bool         `json:"ok"`
	HasSupabaseURL bool         `json:"hasSupabaseUrl"`
	HasAnonKey     bool         `json:"hasAnonKey"`
	HasServiceRole bool         `json:"hasServiceRole"`
	Source         healthSource `json:"source"`
}

// HealthHandler reports which backend settings are present and where they came from.
// Secret values are never included.
type HealthHandler struct {
	backend     *BackendConfig
	allowOrigin string
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(backend *BackendConfig, allowOrigin string) *HealthHandler {
	if allowOrigin == "" {
		allowOrigin = DefaultAllowOrigin
	}
	return &HealthHandler{backend: backend, allowOrigin: allowOrigin}
}

// ServeHTTP answers GET with the backend settings report.
func (h *HealthHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	setCORSHeaders(rw, h.allowOrigin, "GET, OPTIONS")

	switch r.Method {
	case http.MethodOptions:
		rw.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet:
	default:
		rw.Header().Set("Allow", "GET, OPTIONS")
		restapi.RespondError(rw, http.StatusMethodNotAllowed, restapi.NewError(restapi.ErrCodeMethodNotAllowed, ""), logger)
		return
	}

	restapi.RespondJSON(rw, healthResponseData{
		OK:             true,
		HasSupabaseURL: h.backend.URL != "",
		HasAnonKey:     h.backend.AnonKey != "",
		HasServiceRole: h.backend.ServiceRoleKey != "",
		Source: healthSource{
			URLFrom:  nilIfEmpty(h.backend.URLFrom),
			AnonFrom: nilIfEmpty(h.backend.AnonKeyFrom),
		},
	}, logger)
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
