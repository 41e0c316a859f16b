/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package rpcproxy

import (
	"net"
	"net/http"
	"strings"
)

// Headers that identify the caller.
const (
	HeaderClientID      = "X-Client-ID"
	HeaderForwardedFor  = "X-Forwarded-For"
	HeaderAuthorization = "Authorization"
)

// UnknownIdentity is used when nothing in the request identifies the caller.
const UnknownIdentity = "unknown"

// ClientIdentity returns the identity the caller's calls are counted under.
// The first non-empty of these wins: the X-Client-ID header, the first X-Forwarded-For hop,
// the host of the peer address, UnknownIdentity.
func ClientIdentity(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderClientID)); id != "" {
		return id
	}
	if xff := r.Header.Get(HeaderForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			if host != "" {
				return host
			}
		} else {
			return r.RemoteAddr
		}
	}
	return UnknownIdentity
}
