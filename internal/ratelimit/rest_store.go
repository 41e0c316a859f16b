/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const maxRESTResponseSize = 64 * 1024

// RESTStoreError is returned when the REST counter store answers with an error.
type RESTStoreError struct {
	Command    string
	StatusCode int
	Message    string
}

func (e *RESTStoreError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("counter store %s: unexpected status %d", e.Command, e.StatusCode)
	}
	return fmt.Sprintf("counter store %s: %s (status %d)", e.Command, e.Message, e.StatusCode)
}

// RESTStore is a CounterStore backed by a Redis-compatible service with an HTTP command API.
// Every command is sent as a JSON array ("INCR", key) in the body of a POST request to the base URL,
// and the service answers with {"result": ...} or {"error": "..."}.
// The client is expected to add the Authorization header (see httpclient.AuthBearerRoundTripper).
type RESTStore struct {
	url    string
	client *http.Client
}

var _ CounterStore = (*RESTStore)(nil)

// NewRESTStore creates a RESTStore that sends commands to url using client.
func NewRESTStore(url string, client *http.Client) *RESTStore {
	return &RESTStore{url: url, client: client}
}

type restResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func (s *RESTStore) do(ctx context.Context, command ...string) (json.RawMessage, error) {
	body, err := json.Marshal(command)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new counter store request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("counter store %s: %w", command[0], err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxRESTResponseSize))
	if err != nil {
		return nil, fmt.Errorf("counter store %s: read response: %w", command[0], err)
	}
	var parsed restResponse
	if jsonErr := json.Unmarshal(respBody, &parsed); jsonErr != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &RESTStoreError{Command: command[0], StatusCode: resp.StatusCode}
		}
		return nil, fmt.Errorf("counter store %s: decode response: %w", command[0], jsonErr)
	}
	if parsed.Error != "" || resp.StatusCode != http.StatusOK {
		return nil, &RESTStoreError{Command: command[0], StatusCode: resp.StatusCode, Message: parsed.Error}
	}
	return parsed.Result, nil
}

func (s *RESTStore) doInt(ctx context.Context, command ...string) (int64, error) {
	result, err := s.do(ctx, command...)
	if err != nil {
		return 0, err
	}
	var n int64
	if err = json.Unmarshal(result, &n); err != nil {
		return 0, fmt.Errorf("counter store %s: result is not an integer: %w", command[0], err)
	}
	return n, nil
}

// Increment adds one to the counter and returns the new value.
func (s *RESTStore) Increment(ctx context.Context, key string) (int64, error) {
	return s.doInt(ctx, "INCR", key)
}

// Expire sets the counter to expire after ttl.
func (s *RESTStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	_, err := s.doInt(ctx, "PEXPIRE", key, strconv.FormatInt(ttl.Milliseconds(), 10))
	return err
}

// TTL returns the remaining time to live of the counter.
func (s *RESTStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ms, err := s.doInt(ctx, "PTTL", key)
	if err != nil {
		return 0, err
	}
	if ms < 0 {
		return 0, nil
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Ping checks that the service is reachable and accepts the token.
func (s *RESTStore) Ping(ctx context.Context) error {
	result, err := s.do(ctx, "PING")
	if err != nil {
		return err
	}
	var pong string
	if err = json.Unmarshal(result, &pong); err != nil || pong != "PONG" {
		return errors.New("counter store PING: unexpected reply")
	}
	return nil
}

// Close releases idle connections.
func (s *RESTStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
