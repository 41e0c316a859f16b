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
)

func TestRequestID(t *testing.T) {
	var gotRequestID, gotInternalID string
	next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotRequestID = GetRequestIDFromContext(r.Context())
		gotInternalID = GetInternalRequestIDFromContext(r.Context())
	})
	handler := RequestIDWithOpts(RequestIDOpts{
		GenerateID:         func() string { return "generated-ext" },
		GenerateInternalID: func() string { return "generated-int" },
	})(next)

	t.Run("id is generated when header is empty", func(t *testing.T) {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/rpc", nil))
		require.Equal(t, "generated-ext", gotRequestID)
		require.Equal(t, "generated-int", gotInternalID)
		require.Equal(t, "generated-ext", resp.Header().Get(HeaderRequestID))
		require.Equal(t, "generated-int", resp.Header().Get(HeaderInternalRequestID))
	})

	t.Run("id from header is kept", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/rpc", nil)
		req.Header.Set(HeaderRequestID, "from-client")
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		require.Equal(t, "from-client", gotRequestID)
		require.Equal(t, "generated-int", gotInternalID)
		require.Equal(t, "from-client", resp.Header().Get(HeaderRequestID))
	})
}

func TestRequestIDDefaultGenerator(t *testing.T) {
	var ids []string
	handler := RequestID()(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		ids = append(ids, GetRequestIDFromContext(r.Context()), GetInternalRequestIDFromContext(r.Context()))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Len(t, ids, 2)
	require.NotEmpty(t, ids[0])
	require.NotEmpty(t, ids[1])
	require.NotEqual(t, ids[0], ids[1])
}
