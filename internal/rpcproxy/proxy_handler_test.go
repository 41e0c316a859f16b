/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package rpcproxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/atomic"

	"github.com/budzeciak/rpc-proxy/httpclient"
	"github.com/budzeciak/rpc-proxy/internal/ratelimit"
	"github.com/budzeciak/rpc-proxy/log/logtest"
	"github.com/budzeciak/rpc-proxy/restapi"
	"github.com/budzeciak/rpc-proxy/testutil"
)

type ProxyHandlerTestSuite struct {
	suite.Suite

	clock         clockwork.FakeClock
	upstream      *httptest.Server
	upstreamCalls *atomic.Int32
	upstreamReqs  chan recordedUpstreamRequest
	backend       *BackendConfig
	handler       *ProxyHandler
	logger        *logtest.Recorder
}

func TestProxyHandler(t *testing.T) {
	suite.Run(t, new(ProxyHandlerTestSuite))
}

func (s *ProxyHandlerTestSuite) SetupTest() {
	s.clock = clockwork.NewFakeClock()
	s.upstreamCalls = atomic.NewInt32(0)
	s.upstreamReqs = make(chan recordedUpstreamRequest, 100)
	s.upstream = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		s.upstreamCalls.Inc()
		s.upstreamReqs <- recordedUpstreamRequest{
			Path:          r.URL.Path,
			APIKey:        r.Header.Get(HeaderAPIKey),
			Authorization: r.Header.Get(HeaderAuthorization),
		}
		if r.URL.Path == "/rpc/deleteBudget" {
			rw.WriteHeader(http.StatusNoContent)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`[{"id":1,"name":"Home"}]`))
	}))
	s.backend = newTestBackendConfig(s.upstream.URL)
	s.logger = logtest.NewRecorder()
	s.handler = s.newHandler(s.backend, s.newAdmitter(2, true))
}

func (s *ProxyHandlerTestSuite) TearDownTest() {
	s.upstream.Close()
}

func (s *ProxyHandlerTestSuite) newAdmitter(limit int, failOpen bool) *ratelimit.Admitter {
	store, err := ratelimit.NewMemoryStore(100, ratelimit.MemoryStoreOpts{Clock: s.clock})
	s.Require().NoError(err)
	rate := ratelimit.Rate{Count: limit, Duration: time.Minute}
	limiter, err := ratelimit.NewFixedWindowLimiter(store, rate)
	s.Require().NoError(err)
	return ratelimit.NewAdmitter(limiter, rate, ratelimit.AdmitterOpts{FailOpen: failOpen})
}

func (s *ProxyHandlerTestSuite) newHandler(backend *BackendConfig, admitter Admitter) *ProxyHandler {
	forwarder := NewForwarder(backend, httpclient.New(httpclient.NewDefaultConfig()))
	return NewProxyHandler(backend, admitter, forwarder, ProxyHandlerOpts{Logger: s.logger})
}

func (s *ProxyHandlerTestSuite) call(h http.Handler, method, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/rpc", strings.NewReader(body))
	req.RemoteAddr = "192.168.1.10:5555"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func (s *ProxyHandlerTestSuite) TestForwardsAdmittedCall() {
	resp := s.call(s.handler, http.MethodPost, `{"rpc":"getBudgets","params":{"user_id":"u1"}}`,
		map[string]string{"Content-Type": "application/json", HeaderAuthorization: "Bearer user-jwt"})

	s.Require().Equal(http.StatusOK, resp.Code)
	testutil.RequireStringJSONInRecorder(s.T(), resp, `[{"id":1,"name":"Home"}]`)
	s.Require().Equal("*", resp.Header().Get("Access-Control-Allow-Origin"))

	upReq := <-s.upstreamReqs
	s.Require().Equal("/rpc/getBudgets", upReq.Path)
	s.Require().Equal("anon-key", upReq.APIKey)
	s.Require().Equal("Bearer user-jwt", upReq.Authorization)
}

func (s *ProxyHandlerTestSuite) TestForwardsCallPostedAsText() {
	resp := s.call(s.handler, http.MethodPost, `{"rpc":"getBudgets","params":{}}`,
		map[string]string{"Content-Type": "text/plain;charset=UTF-8"})

	s.Require().Equal(http.StatusOK, resp.Code)
	testutil.RequireStringJSONInRecorder(s.T(), resp, `[{"id":1,"name":"Home"}]`)
	upReq := <-s.upstreamReqs
	s.Require().Equal("/rpc/getBudgets", upReq.Path)
}

func (s *ProxyHandlerTestSuite) TestNoContentBecomesEmptyObject() {
	resp := s.call(s.handler, http.MethodPost, `{"rpc":"deleteBudget","params":{"id":3}}`, nil)

	s.Require().Equal(http.StatusOK, resp.Code)
	testutil.RequireStringJSONInRecorder(s.T(), resp, `{}`)
}

func (s *ProxyHandlerTestSuite) TestRejectsInvalidInput() {
	tests := []struct {
		name         string
		body         string
		contentType  string
		wantHTTPCode int
		wantErrCode  string
	}{
		{name: "malformed json", body: `{"rpc":`, wantHTTPCode: http.StatusBadRequest, wantErrCode: restapi.ErrCodeInvalidJSON},
		{name: "empty body", body: ``, wantHTTPCode: http.StatusBadRequest, wantErrCode: restapi.ErrCodeInvalidJSON},
		{name: "rpc is not a string", body: `{"rpc":42}`, wantHTTPCode: http.StatusBadRequest, wantErrCode: ErrCodeInvalidRPC},
		{name: "rpc is an object", body: `{"rpc":{"name":"getBudgets"}}`, wantHTTPCode: http.StatusBadRequest, wantErrCode: ErrCodeInvalidRPC},
		{name: "missing rpc", body: `{}`, wantHTTPCode: http.StatusBadRequest, wantErrCode: ErrCodeMissingRPC},
		{name: "null rpc", body: `{"rpc":null}`, wantHTTPCode: http.StatusBadRequest, wantErrCode: ErrCodeMissingRPC},
		{name: "empty rpc", body: `{"rpc":""}`, wantHTTPCode: http.StatusBadRequest, wantErrCode: ErrCodeMissingRPC},
		{name: "array body", body: `[]`, wantHTTPCode: http.StatusBadRequest, wantErrCode: ErrCodeMissingRPC},
		{name: "null body", body: `null`, wantHTTPCode: http.StatusBadRequest, wantErrCode: ErrCodeMissingRPC},
		{name: "invalid rpc name", body: `{"rpc":"../admin"}`, wantHTTPCode: http.StatusBadRequest, wantErrCode: ErrCodeInvalidRPC},
		{name: "malformed json as text", body: `{"rpc":`, contentType: "text/plain;charset=UTF-8",
			wantHTTPCode: http.StatusBadRequest, wantErrCode: restapi.ErrCodeInvalidJSON},
		{name: "unsupported media type", body: `{"rpc":"getBudgets"}`, contentType: "application/xml",
			wantHTTPCode: http.StatusUnsupportedMediaType, wantErrCode: restapi.ErrCodeUnsupportedMediaType},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			headers := map[string]string{}
			if tt.contentType != "" {
				headers["Content-Type"] = tt.contentType
			}
			resp := s.call(s.handler, http.MethodPost, tt.body, headers)
			testutil.RequireErrorInRecorder(s.T(), resp, tt.wantHTTPCode, tt.wantErrCode)
		})
	}
	s.Require().Equal(int32(0), s.upstreamCalls.Load())
}

func (s *ProxyHandlerTestSuite) TestMissingRPCRegardlessOfRateLimit() {
	h := s.newHandler(s.backend, admitterFunc(func(context.Context, string, string) (ratelimit.Decision, error) {
		return ratelimit.Decision{Allowed: false, RetryAfter: time.Minute}, nil
	}))
	resp := s.call(h, http.MethodPost, `{}`, nil)
	testutil.RequireErrorInRecorder(s.T(), resp, http.StatusBadRequest, ErrCodeMissingRPC)
}

func (s *ProxyHandlerTestSuite) TestMisconfiguredBackend() {
	admitterCalls := atomic.NewInt32(0)
	backend := &BackendConfig{RPCPath: DefaultRPCPath}
	h := s.newHandler(backend, admitterFunc(func(context.Context, string, string) (ratelimit.Decision, error) {
		admitterCalls.Inc()
		return ratelimit.Decision{Allowed: true}, nil
	}))

	resp := s.call(h, http.MethodPost, `{"rpc":"getBudgets"}`, nil)

	errResp := testutil.RequireErrorInRecorder(s.T(), resp, http.StatusInternalServerError, ErrCodeServerMisconfigured)
	s.Require().Equal(map[string]interface{}{"SUPABASE_URL": true, "SUPABASE_ANON_KEY": true}, errResp["missing"])
	s.Require().Equal(int32(0), admitterCalls.Load())
	s.Require().Equal(int32(0), s.upstreamCalls.Load())
}

func (s *ProxyHandlerTestSuite) TestRateLimitExceeded() {
	headers := map[string]string{HeaderClientID: "clientA"}
	for i := 0; i < 2; i++ {
		resp := s.call(s.handler, http.MethodPost, `{"rpc":"getBudgets"}`, headers)
		s.Require().Equal(http.StatusOK, resp.Code)
	}

	resp := s.call(s.handler, http.MethodPost, `{"rpc":"getBudgets"}`, headers)
	errResp := testutil.RequireErrorInRecorder(s.T(), resp, http.StatusTooManyRequests, ErrCodeRateLimitExceeded)
	s.Require().Equal(float64(60), errResp["retry_after"])
	s.Require().Equal("60", resp.Header().Get("Retry-After"))
	s.Require().Equal(int32(2), s.upstreamCalls.Load())

	// Other operations and other clients have their own quota.
	resp = s.call(s.handler, http.MethodPost, `{"rpc":"getExpenses"}`, headers)
	s.Require().Equal(http.StatusOK, resp.Code)
	resp = s.call(s.handler, http.MethodPost, `{"rpc":"getBudgets"}`, map[string]string{HeaderClientID: "clientB"})
	s.Require().Equal(http.StatusOK, resp.Code)

	s.clock.Advance(20 * time.Second)
	resp = s.call(s.handler, http.MethodPost, `{"rpc":"getBudgets"}`, headers)
	errResp = testutil.RequireErrorInRecorder(s.T(), resp, http.StatusTooManyRequests, ErrCodeRateLimitExceeded)
	s.Require().Equal(float64(40), errResp["retry_after"])

	s.clock.Advance(40 * time.Second)
	resp = s.call(s.handler, http.MethodPost, `{"rpc":"getBudgets"}`, headers)
	s.Require().Equal(http.StatusOK, resp.Code)
}

func (s *ProxyHandlerTestSuite) TestConcurrentCallsShareQuota() {
	h := s.newHandler(s.backend, s.newAdmitter(10, true))

	const callsNum = 30
	admitted := atomic.NewInt32(0)
	rejected := atomic.NewInt32(0)
	var wg sync.WaitGroup
	for i := 0; i < callsNum; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := s.call(h, http.MethodPost, `{"rpc":"getBudgets"}`, map[string]string{HeaderForwardedFor: "10.0.0.1"})
			switch resp.Code {
			case http.StatusOK:
				admitted.Inc()
			case http.StatusTooManyRequests:
				rejected.Inc()
			}
		}()
	}
	wg.Wait()

	s.Require().Equal(int32(10), admitted.Load())
	s.Require().Equal(int32(callsNum-10), rejected.Load())
	s.Require().Equal(int32(10), s.upstreamCalls.Load())
}

func (s *ProxyHandlerTestSuite) TestStoreFailure() {
	storeErr := fmt.Errorf("%w: connection refused", ratelimit.ErrStoreUnavailable)

	s.Run("fail-open", func() {
		h := s.newHandler(s.backend, admitterFunc(func(context.Context, string, string) (ratelimit.Decision, error) {
			return ratelimit.Decision{Allowed: true}, nil
		}))
		resp := s.call(h, http.MethodPost, `{"rpc":"getBudgets"}`, nil)
		s.Require().Equal(http.StatusOK, resp.Code)
	})

	s.Run("fail-closed", func() {
		h := s.newHandler(s.backend, admitterFunc(func(context.Context, string, string) (ratelimit.Decision, error) {
			return ratelimit.Decision{}, storeErr
		}))
		resp := s.call(h, http.MethodPost, `{"rpc":"getBudgets"}`, nil)
		testutil.RequireErrorInRecorder(s.T(), resp, http.StatusServiceUnavailable, ErrCodeRateLimiterUnavailable)
	})

	s.Run("unexpected error", func() {
		h := s.newHandler(s.backend, admitterFunc(func(context.Context, string, string) (ratelimit.Decision, error) {
			return ratelimit.Decision{}, errors.New("unexpected")
		}))
		resp := s.call(h, http.MethodPost, `{"rpc":"getBudgets"}`, nil)
		testutil.RequireErrorInRecorder(s.T(), resp, http.StatusInternalServerError, restapi.ErrCodeInternal)
	})
}

func (s *ProxyHandlerTestSuite) TestUpstreamUnavailable() {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	h := s.newHandler(newTestBackendConfig(srv.URL), s.newAdmitter(2, true))

	resp := s.call(h, http.MethodPost, `{"rpc":"getBudgets"}`, nil)

	errResp := testutil.RequireErrorInRecorder(s.T(), resp, http.StatusBadGateway, ErrCodeUpstreamError)
	s.Require().Contains(errResp["message"], "connection refused")
	s.Require().NotContains(errResp["message"], srv.URL)
	s.Require().NotContains(errResp["message"], "/rpc/getBudgets")
	_, found := s.logger.FindEntry("error in response")
	s.Require().True(found)
}

func (s *ProxyHandlerTestSuite) TestMethods() {
	resp := s.call(s.handler, http.MethodOptions, "", nil)
	s.Require().Equal(http.StatusNoContent, resp.Code)
	s.Require().Equal("*", resp.Header().Get("Access-Control-Allow-Origin"))
	s.Require().Contains(resp.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	s.Require().Contains(resp.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	resp = s.call(s.handler, http.MethodGet, "", nil)
	testutil.RequireErrorInRecorder(s.T(), resp, http.StatusMethodNotAllowed, restapi.ErrCodeMethodNotAllowed)
	s.Require().Equal("POST, OPTIONS", resp.Header().Get("Allow"))

	s.Require().Equal(int32(0), s.upstreamCalls.Load())
}

func TestProxyHandlerCustomOrigin(t *testing.T) {
	backend := newTestBackendConfig("https://project.supabase.co")
	h := NewProxyHandler(backend, nil, nil, ProxyHandlerOpts{AllowOrigin: "https://budzeciak.example"})

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodOptions, "/api/rpc", nil))

	require.Equal(t, http.StatusNoContent, resp.Code)
	require.Equal(t, "https://budzeciak.example", resp.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "Origin", resp.Header().Get("Vary"))
}

type admitterFunc func(ctx context.Context, operation, identity string) (ratelimit.Decision, error)

func (f admitterFunc) Admit(ctx context.Context, operation, identity string) (ratelimit.Decision, error) {
	return f(ctx, operation, identity)
}
