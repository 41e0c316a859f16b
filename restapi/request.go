/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"code.cloudfoundry.org/bytefmt"
)

// MalformedRequestError is an error that occurs in case of incorrect request.
type MalformedRequestError struct {
	HTTPStatusCode int
	Message        string
}

// Error returns a string representation of MalformedRequestError.
func (e *MalformedRequestError) Error() string {
	return e.Message
}

// ErrorCode returns the API error code for the malformed request.
func (e *MalformedRequestError) ErrorCode() string {
	switch e.HTTPStatusCode {
	case http.StatusRequestEntityTooLarge:
		return ErrCodePayloadTooLarge
	case http.StatusUnsupportedMediaType:
		return ErrCodeUnsupportedMediaType
	}
	return ErrCodeInvalidJSON
}

// NewTooLargeMalformedRequestError creates a new MalformedRequestError for case when request body is too large.
func NewTooLargeMalformedRequestError(maxSizeBytes uint64) *MalformedRequestError {
	return &MalformedRequestError{
		http.StatusRequestEntityTooLarge,
		fmt.Sprintf("Request body must not be larger than %s.", bytefmt.ByteSize(maxSizeBytes)),
	}
}

// DecodeOpts represents options for DecodeRequestJSONWithOpts.
type DecodeOpts struct {
	// AllowTextMediaTypes makes text/* bodies decoded as JSON too.
	// Browsers send text/plain for a string body posted without an explicit Content-Type.
	AllowTextMediaTypes bool
}

// DecodeRequestJSON reads the request body and decodes it as a single JSON value.
// A missing Content-Type is accepted; any other media type than application/json is not.
func DecodeRequestJSON(r *http.Request, dst interface{}) error {
	return DecodeRequestJSONWithOpts(r, dst, DecodeOpts{})
}

// DecodeRequestJSONWithOpts is a more configurable version of DecodeRequestJSON.
func DecodeRequestJSONWithOpts(r *http.Request, dst interface{}, opts DecodeOpts) error {
	if reqContentType := r.Header.Get("Content-Type"); reqContentType != "" {
		contentType, _, err := mime.ParseMediaType(reqContentType)
		if err != nil {
			return &MalformedRequestError{
				http.StatusUnsupportedMediaType,
				fmt.Sprintf("Failed to parse Content-Type header: %s.", err),
			}
		}
		textAllowed := opts.AllowTextMediaTypes && strings.HasPrefix(contentType, "text/")
		if contentType != ContentTypeAppJSON && !textAllowed {
			return &MalformedRequestError{
				http.StatusUnsupportedMediaType,
				fmt.Sprintf("Content-Type %q is not supported.", contentType),
			}
		}
	}

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var unmarshalTypeErr *json.UnmarshalTypeError
		var maxBytesErr *http.MaxBytesError

		switch {
		case errors.Is(err, io.EOF):
			return &MalformedRequestError{http.StatusBadRequest, "Request body must not be empty."}

		case errors.Is(err, io.ErrUnexpectedEOF):
			return &MalformedRequestError{http.StatusBadRequest, "Request body contains badly-formed JSON."}

		case errors.As(err, &syntaxErr):
			return &MalformedRequestError{
				http.StatusBadRequest,
				fmt.Sprintf("Request body contains badly-formed JSON (at position %d).", syntaxErr.Offset),
			}

		case errors.As(err, &unmarshalTypeErr):
			if unmarshalTypeErr.Field != "" {
				return &MalformedRequestError{
					http.StatusBadRequest,
					fmt.Sprintf("Request body contains an invalid value for the %q field (at position %d).",
						unmarshalTypeErr.Field, unmarshalTypeErr.Offset),
				}
			}
			return &MalformedRequestError{
				http.StatusBadRequest,
				fmt.Sprintf("Request body contains an invalid value of type %q.", unmarshalTypeErr.Value),
			}

		case errors.As(err, &maxBytesErr):
			return NewTooLargeMalformedRequestError(uint64(maxBytesErr.Limit))

		default:
			return err
		}
	}

	// Decoder is designed to decode streams of JSON values, but we need to prevent this behavior.
	if decoder.More() {
		return &MalformedRequestError{http.StatusBadRequest, "Request body must only contain a single JSON value."}
	}
	return nil
}
