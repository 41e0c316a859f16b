/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package rpcproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"code.cloudfoundry.org/bytefmt"
)

// ErrUpstreamUnavailable is returned by Forwarder.Forward when the backend cannot be reached
// or its response cannot be read.
var ErrUpstreamUnavailable = errors.New("upstream is unavailable")

// ErrMisconfigured is returned by Forwarder.Forward when the backend URL or anon key is not configured.
var ErrMisconfigured = errors.New("backend is not configured")

// UpstreamError is returned by Forwarder.Forward when the call got no usable answer.
// It matches ErrUpstreamUnavailable. Reason never contains the backend URL, so it may be shown to the caller.
type UpstreamError struct {
	Reason string
	Err    error
}

func newUpstreamError(reason string, err error) *UpstreamError {
	return &UpstreamError{Reason: reason, Err: err}
}

func (e *UpstreamError) Error() string {
	return ErrUpstreamUnavailable.Error() + ": " + e.Reason
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstreamUnavailable, e.Err}
}

// HeaderAPIKey carries the backend's public API key.
const HeaderAPIKey = "apikey"

const maxUpstreamBodySize = 10 << 20

var emptyJSONObject = json.RawMessage(`{}`)

// UpstreamResponse is the backend's answer to a forwarded call, ready to be relayed.
type UpstreamResponse struct {
	StatusCode int
	Body       json.RawMessage
}

// Forwarder sends RPC calls to the backend.
type Forwarder struct {
	client      *http.Client
	baseURL     string
	anonKey     string
	maxBodySize int64
}

// NewForwarder creates a new Forwarder. The client is expected to be built by httpclient.NewWithOpts.
func NewForwarder(cfg *BackendConfig, client *http.Client) *Forwarder {
	baseURL := ""
	if cfg.Configured() {
		baseURL = cfg.URL + cfg.RPCPath
	}
	return &Forwarder{client: client, baseURL: baseURL, anonKey: cfg.AnonKey, maxBodySize: maxUpstreamBodySize}
}

// Forward POSTs params to the backend RPC endpoint of rpc.
// A non-empty authorization is relayed as is, otherwise the anon key is sent as a bearer token.
//
// The upstream status is kept, except 204 which becomes 200. An empty body becomes {},
// a body that is not JSON is wrapped as {"message": "<body>"}.
// A body larger than 10 MiB is not relayed; the call fails with *UpstreamError.
func (f *Forwarder) Forward(
	ctx context.Context, rpc string, params json.RawMessage, authorization string,
) (*UpstreamResponse, error) {
	if f.baseURL == "" {
		return nil, ErrMisconfigured
	}
	if len(bytes.TrimSpace(params)) == 0 || bytes.Equal(bytes.TrimSpace(params), []byte("null")) {
		params = emptyJSONObject
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/"+url.PathEscape(rpc), bytes.NewReader(params))
	if err != nil {
		return nil, fmt.Errorf("create upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderAPIKey, f.anonKey)
	if authorization != "" {
		req.Header.Set(HeaderAuthorization, authorization)
	} else {
		req.Header.Set(HeaderAuthorization, "Bearer "+f.anonKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		cause := err
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			cause = urlErr.Err // drop the method and URL
		}
		return nil, newUpstreamError(cause.Error(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, newUpstreamError("read response body: "+err.Error(), err)
	}
	if int64(len(body)) > f.maxBodySize {
		reason := fmt.Sprintf("response body is larger than %s", bytefmt.ByteSize(uint64(f.maxBodySize)))
		return nil, newUpstreamError(reason, errors.New(reason))
	}
	return makeUpstreamResponse(resp.StatusCode, body), nil
}

func makeUpstreamResponse(statusCode int, body []byte) *UpstreamResponse {
	if statusCode == http.StatusNoContent {
		statusCode = http.StatusOK
	}
	trimmed := bytes.TrimSpace(body)
	switch {
	case len(trimmed) == 0:
		return &UpstreamResponse{StatusCode: statusCode, Body: emptyJSONObject}
	case json.Valid(trimmed):
		return &UpstreamResponse{StatusCode: statusCode, Body: trimmed}
	}
	wrapped, _ := json.Marshal(map[string]string{"message": strings.TrimSpace(string(body))})
	return &UpstreamResponse{StatusCode: statusCode, Body: wrapped}
}
