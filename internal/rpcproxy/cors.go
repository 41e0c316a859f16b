/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package rpcproxy

import "net/http"

var corsAllowedHeaders = "Authorization, Content-Type, apikey, X-Client-ID, X-Request-ID"

// setCORSHeaders lets browsers on allowOrigin call the endpoint with the given methods.
func setCORSHeaders(rw http.ResponseWriter, allowOrigin, allowMethods string) {
	h := rw.Header()
	h.Set("Access-Control-Allow-Origin", allowOrigin)
	h.Set("Access-Control-Allow-Methods", allowMethods)
	h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
	h.Set("Access-Control-Max-Age", "86400")
	if allowOrigin != "*" {
		h.Add("Vary", "Origin")
	}
}
