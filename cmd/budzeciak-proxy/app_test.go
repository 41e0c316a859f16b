/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/budzeciak/rpc-proxy/config"
	"github.com/budzeciak/rpc-proxy/internal/ratelimit"
	"github.com/budzeciak/rpc-proxy/internal/rpcproxy"
	"github.com/budzeciak/rpc-proxy/log/logtest"
	"github.com/budzeciak/rpc-proxy/testutil"
)

func writeConfigFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("yaml file and env", func(t *testing.T) {
		t.Setenv("SUPABASE_ANON_KEY", "anon")
		t.Setenv("UPSTREAM_TIMEOUT", "10s")
		path := writeConfigFile(t, "config.yaml", `
server:
  address: 127.0.0.1:9090
backend:
  url: https://project.supabase.co
rateLimit:
  limit: 5
`)
		cfg, err := loadConfig(path)
		require.NoError(t, err)
		require.Equal(t, "127.0.0.1:9090", cfg.Server.Address)
		require.Equal(t, 5, cfg.RateLimit.Limit)
		require.Equal(t, config.SourceFile, cfg.Backend.URLFrom)
		require.Equal(t, "SUPABASE_ANON_KEY", cfg.Backend.AnonKeyFrom)
		require.Equal(t, config.TimeDuration(10*time.Second), cfg.Upstream.Timeout)
		require.Equal(t, rpcproxy.DefaultAllowOrigin, cfg.CORS.AllowOrigin)
		require.False(t, cfg.Prof.Enabled)
	})

	t.Run("profiling server from env", func(t *testing.T) {
		t.Setenv("PROF_SERVER_ENABLED", "true")
		t.Setenv("PROF_SERVER_ADDRESS", "127.0.0.1:6061")
		cfg, err := loadConfig("")
		require.NoError(t, err)
		require.True(t, cfg.Prof.Enabled)
		require.Equal(t, "127.0.0.1:6061", cfg.Prof.Address)
	})

	t.Run("json file", func(t *testing.T) {
		path := writeConfigFile(t, "config.json", `{"rateLimit": {"alg": "slidingWindow"}}`)
		cfg, err := loadConfig(path)
		require.NoError(t, err)
		require.Equal(t, ratelimit.AlgSlidingWindow, cfg.RateLimit.Alg)
	})

	t.Run("invalid value", func(t *testing.T) {
		path := writeConfigFile(t, "config.yaml", "rateLimit:\n  limit: 0\n")
		_, err := loadConfig(path)
		require.ErrorContains(t, err, "rateLimit.limit")
	})
}

func TestApplication(t *testing.T) {
	redisServer := miniredis.RunT(t)

	upstream := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/rpc/getBudgets" || r.Header.Get(rpcproxy.HeaderAPIKey) != "anon" {
			rw.WriteHeader(http.StatusNotFound)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write([]byte(`[{"id":1}]`))
	}))
	defer upstream.Close()

	addr := testutil.GetLocalAddrWithFreeTCPPort()
	path := writeConfigFile(t, "config.yaml", fmt.Sprintf(`
server:
  address: %s
rateLimit:
  limit: 1
counterStore:
  url: redis://%s
  token: secret
backend:
  url: %s/rest/v1
  anonKey: anon
`, addr, redisServer.Addr(), upstream.URL))
	redisServer.RequireAuth("secret")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	app, err := newApplication(cfg, logtest.NewRecorder())
	require.NoError(t, err)
	defer func() { require.NoError(t, app.store.Close()) }()

	fatalErr := make(chan error, 1)
	go app.unit.Start(fatalErr)
	defer func() { require.NoError(t, app.unit.Stop(true)) }()
	require.NoError(t, testutil.WaitListeningServer(addr, 3*time.Second))

	baseURL := "http://" + addr
	call := func() *http.Response {
		req, reqErr := http.NewRequest(http.MethodPost, baseURL+"/api/rpc", strings.NewReader(`{"rpc":"getBudgets"}`))
		require.NoError(t, reqErr)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(rpcproxy.HeaderClientID, "clientA")
		resp, doErr := http.DefaultClient.Do(req)
		require.NoError(t, doErr)
		return resp
	}

	resp := call()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())
	counter, err := redisServer.Get(ratelimit.MakeKey("getBudgets", "clientA"))
	require.NoError(t, err)
	require.Equal(t, "1", counter)
	require.True(t, redisServer.TTL(ratelimit.MakeKey("getBudgets", "clientA")) > 0)

	resp = call()
	testutil.RequireErrorInResponse(t, resp, http.StatusTooManyRequests, rpcproxy.ErrCodeRateLimitExceeded)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))
	require.NoError(t, resp.Body.Close())

	resp, err = http.Get(baseURL + "/api/health")
	require.NoError(t, err)
	var health map[string]interface{}
	testutil.RequireJSONInResponse(t, resp, &map[string]interface{}{
		"ok": true, "hasSupabaseUrl": true, "hasAnonKey": true, "hasServiceRole": false,
		"source": map[string]interface{}{"urlFrom": "config", "anonFrom": "config"},
	}, &health)
	require.NoError(t, resp.Body.Close())

	resp, err = http.Get(baseURL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	redisServer.SetError("server is down")
	resp, err = http.Get(baseURL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	// Fail-open: a broken store does not block calls.
	resp = call()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())
}
