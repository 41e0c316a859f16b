/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package rpcproxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/budzeciak/rpc-proxy/httpserver/middleware"
	"github.com/budzeciak/rpc-proxy/internal/ratelimit"
	"github.com/budzeciak/rpc-proxy/log"
	"github.com/budzeciak/rpc-proxy/restapi"
)

// Error codes of the proxy endpoint.
const (
	ErrCodeMissingRPC             = "missing_rpc"
	ErrCodeInvalidRPC             = "invalid_rpc"
	ErrCodeServerMisconfigured    = "server_misconfigured"
	ErrCodeRateLimitExceeded      = "rate_limit_exceeded"
	ErrCodeRateLimiterUnavailable = "rate_limiter_unavailable"
	ErrCodeUpstreamError          = "upstream_error"
)

var rpcNameRegexp = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Admitter decides whether a call may proceed. It is implemented by *ratelimit.Admitter.
type Admitter interface {
	Admit(ctx context.Context, operation, identity string) (ratelimit.Decision, error)
}

// RPCForwarder sends an admitted call to the backend. It is implemented by *Forwarder.
type RPCForwarder interface {
	Forward(ctx context.Context, rpc string, params json.RawMessage, authorization string) (*UpstreamResponse, error)
}

type rpcRequest struct {
	RPC    string
	Params json.RawMessage
}

// parseRPCRequest extracts the call from an already decoded JSON body.
// It returns the API error code when the body is valid JSON but not a usable call.
func parseRPCRequest(body json.RawMessage) (rpcRequest, string) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return rpcRequest{}, ErrCodeMissingRPC // not an object
	}
	rawRPC, ok := fields["rpc"]
	if !ok || string(rawRPC) == "null" {
		return rpcRequest{}, ErrCodeMissingRPC
	}
	var name string
	if err := json.Unmarshal(rawRPC, &name); err != nil {
		return rpcRequest{}, ErrCodeInvalidRPC
	}
	if name == "" {
		return rpcRequest{}, ErrCodeMissingRPC
	}
	if !rpcNameRegexp.MatchString(name) {
		return rpcRequest{}, ErrCodeInvalidRPC
	}
	return rpcRequest{RPC: name, Params: fields["params"]}, ""
}

// ProxyHandlerOpts represents options for ProxyHandler.
type ProxyHandlerOpts struct {
	// AllowOrigin is sent in Access-Control-Allow-Origin. DefaultAllowOrigin by default.
	AllowOrigin string

	// Logger is used when the request context carries no logger.
	Logger log.FieldLogger
}

// ProxyHandler serves POST calls of the form {"rpc": "<name>", "params": {...}}.
//
// The checks run in this order: method, body, rpc name, backend configuration, rate limit.
// Only an admitted call reaches the backend; its status and body are relayed to the caller.
type ProxyHandler struct {
	backend     *BackendConfig
	admitter    Admitter
	forwarder   RPCForwarder
	allowOrigin string
	logger      log.FieldLogger
}

// NewProxyHandler creates a new ProxyHandler.
func NewProxyHandler(backend *BackendConfig, admitter Admitter, forwarder RPCForwarder, opts ProxyHandlerOpts) *ProxyHandler {
	allowOrigin := opts.AllowOrigin
	if allowOrigin == "" {
		allowOrigin = DefaultAllowOrigin
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return &ProxyHandler{
		backend:     backend,
		admitter:    admitter,
		forwarder:   forwarder,
		allowOrigin: allowOrigin,
		logger:      logger,
	}
}

// ServeHTTP handles a proxied RPC call.
func (h *ProxyHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := h.getLogger(r)
	setCORSHeaders(rw, h.allowOrigin, "POST, OPTIONS")

	switch r.Method {
	case http.MethodOptions:
		rw.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		rw.Header().Set("Allow", "POST, OPTIONS")
		restapi.RespondError(rw, http.StatusMethodNotAllowed, restapi.NewError(restapi.ErrCodeMethodNotAllowed, ""), logger)
		return
	}

	var body json.RawMessage
	if err := restapi.DecodeRequestJSONWithOpts(r, &body, restapi.DecodeOpts{AllowTextMediaTypes: true}); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, err, logger)
		return
	}
	req, errCode := parseRPCRequest(body)
	if errCode != "" {
		restapi.RespondError(rw, http.StatusBadRequest, restapi.NewError(errCode, ""), logger)
		return
	}
	logger = logger.With(log.String("rpc", req.RPC))

	if !h.backend.Configured() {
		respondMisconfigured(rw, h.backend, logger)
		return
	}

	decision, err := h.admitter.Admit(r.Context(), req.RPC, ClientIdentity(r))
	if err != nil {
		if errors.Is(err, ratelimit.ErrStoreUnavailable) {
			restapi.RespondError(rw, http.StatusServiceUnavailable, restapi.NewError(ErrCodeRateLimiterUnavailable, ""), logger)
			return
		}
		restapi.RespondInternalError(rw, logger.With(log.Error(err)))
		return
	}
	if !decision.Allowed {
		retryAfter := decision.RetryAfterSeconds()
		rw.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		restapi.RespondError(rw, http.StatusTooManyRequests,
			restapi.NewError(ErrCodeRateLimitExceeded, "").AddContext("retry_after", retryAfter), logger)
		return
	}

	resp, err := h.forwarder.Forward(r.Context(), req.RPC, req.Params, r.Header.Get(HeaderAuthorization))
	if err != nil {
		switch {
		case errors.Is(err, ErrMisconfigured):
			respondMisconfigured(rw, h.backend, logger)
		case errors.Is(err, ErrUpstreamUnavailable):
			message := err.Error()
			var upstreamErr *UpstreamError
			if errors.As(err, &upstreamErr) {
				message = upstreamErr.Reason
			}
			logger.Warn("backend call failed", log.Error(err))
			restapi.RespondError(rw, http.StatusBadGateway, restapi.NewError(ErrCodeUpstreamError, message), logger)
		default:
			restapi.RespondInternalError(rw, logger.With(log.Error(err)))
		}
		return
	}
	restapi.RespondCodeAndJSON(rw, resp.StatusCode, resp.Body, logger)
}

func (h *ProxyHandler) getLogger(r *http.Request) log.FieldLogger {
	if logger := middleware.GetLoggerFromContext(r.Context()); logger != nil {
		return logger
	}
	return h.logger
}

func respondMisconfigured(rw http.ResponseWriter, backend *BackendConfig, logger log.FieldLogger) {
	restapi.RespondError(rw, http.StatusInternalServerError,
		restapi.NewError(ErrCodeServerMisconfigured, "").AddContext("missing", backend.Missing()), logger)
}
