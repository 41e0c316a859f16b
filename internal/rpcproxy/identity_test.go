/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package rpcproxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientIdentity(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "client id wins",
			headers:    map[string]string{HeaderClientID: "clientA", HeaderForwardedFor: "10.0.0.1"},
			remoteAddr: "192.168.1.1:4321",
			want:       "clientA",
		},
		{
			name:       "first forwarded hop",
			headers:    map[string]string{HeaderForwardedFor: " 10.0.0.1 , 10.0.0.2"},
			remoteAddr: "192.168.1.1:4321",
			want:       "10.0.0.1",
		},
		{
			name:       "blank client id is ignored",
			headers:    map[string]string{HeaderClientID: "  "},
			remoteAddr: "192.168.1.1:4321",
			want:       "192.168.1.1",
		},
		{
			name:       "empty first forwarded hop",
			headers:    map[string]string{HeaderForwardedFor: ", 10.0.0.2"},
			remoteAddr: "[::1]:4321",
			want:       "::1",
		},
		{
			name:       "peer address without port",
			remoteAddr: "192.168.1.1",
			want:       "192.168.1.1",
		},
		{
			name: "unknown",
			want: UnknownIdentity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/rpc", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tt.want, ClientIdentity(req))
		})
	}
}
