/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"encoding/json"
	"fmt"
)

// Error represents an API error. It is rendered as a flat JSON object:
// the code goes under "error", the message (if any) under "message",
// and every context entry becomes a top-level key.
//
//	{"error": "rate_limit_exceeded", "retry_after": 42}
type Error struct {
	Code    string
	Message string
	Context map[string]interface{}
}

// Error codes.
// We are using "var" here because some services may want to use different error codes.
var (
	ErrCodeInternal             = "internal_error"
	ErrCodeNotFound             = "not_found"
	ErrCodeMethodNotAllowed     = "method_not_allowed"
	ErrCodeInvalidJSON          = "invalid_json"
	ErrCodePayloadTooLarge      = "payload_too_large"
	ErrCodeUnsupportedMediaType = "unsupported_media_type"
)

// NewError creates a new Error with specified params.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewInternalError creates a new internal error.
func NewInternalError() *Error {
	return NewError(ErrCodeInternal, "")
}

// AddContext adds value to error context.
func (e *Error) AddContext(field string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[field] = value
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MarshalJSON implements json.Marshaler interface.
func (e *Error) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(e.Context)+2)
	for k, v := range e.Context {
		m[k] = v
	}
	m["error"] = e.Code
	if e.Message != "" {
		m["message"] = e.Message
	}
	return json.Marshal(m)
}
