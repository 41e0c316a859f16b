/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/budzeciak/rpc-proxy/log"
	"github.com/budzeciak/rpc-proxy/log/logtest"
	"github.com/budzeciak/rpc-proxy/testutil"
)

func TestRecovery(t *testing.T) {
	logger := logtest.NewRecorder()
	panicking := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	handler := Logging(logger)(Recovery()(panicking))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/rpc", nil))

	testutil.RequireErrorInRecorder(t, resp, http.StatusInternalServerError, "internal_error")
	entry, found := logger.FindEntry("Panic: boom")
	require.True(t, found)
	require.Equal(t, log.LevelError, entry.Level)
	_, found = entry.FindField("stack")
	require.True(t, found)
}

func TestRecoveryWithoutStack(t *testing.T) {
	logger := logtest.NewRecorder()
	handler := Logging(logger)(RecoveryWithOpts(RecoveryOpts{})(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, resp.Code)
	entry, found := logger.FindEntry("Panic: boom")
	require.True(t, found)
	_, found = entry.FindField("stack")
	require.False(t, found)
}

func TestRecoveryAbortHandler(t *testing.T) {
	handler := Recovery()(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	require.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
