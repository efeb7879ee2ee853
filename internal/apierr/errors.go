// Package apierr defines the closed set of errors returned by the request pipeline.
// Every transport failure that reaches a caller is a *NetworkError, an
// *UnauthorizedError or an *APIError; raw transport errors never leak through.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// Default messages used when the remote payload carries none
const (
	MsgTimeout           = "Request timeout. Please try again."
	MsgNetwork           = "Network error. Please check your connection."
	MsgUnauthorized      = "Unauthorized"
	MsgForbidden         = "Forbidden"
	MsgNotFound          = "Resource not found"
	MsgServerError       = "Server error. Please try again later."
	MsgNoToken           = "No token available"
	MsgSessionExpired    = "Session expired. Please login again."
	MsgMalformedResponse = "Unexpected response from server."
	msgStatusTemplate    = "Request failed with status %d"
)

// Kind identifies which member of the taxonomy an error is
type Kind string

const (
	KindNone         Kind = ""
	KindNetwork      Kind = "network"
	KindUnauthorized Kind = "unauthorized"
	KindAPI          Kind = "api"
)

// NetworkError is returned when no response was received
type NetworkError struct {
	Message string
	Timeout bool
	Err     error
}

func (e *NetworkError) Error() string {
	return e.Message
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// APIError is returned for any non-2xx response other than 401
type APIError struct {
	Message    string
	StatusCode int
	Data       json.RawMessage
}

func (e *APIError) Error() string {
	return e.Message
}

// Payload exposes the raw response payload for field lookups
func (e *APIError) Payload() gjson.Result {
	if len(e.Data) == 0 {
		return gjson.Result{}
	}
	return gjson.ParseBytes(e.Data)
}

// UnauthorizedError is the 401 specialization of APIError. It unwraps to its
// APIError so errors.As(err, &apiErr) matches it as well.
type UnauthorizedError struct {
	*APIError
}

// NewUnauthorizedError builds an UnauthorizedError, defaulting the message
func NewUnauthorizedError(message string) *UnauthorizedError {
	if message == "" {
		message = MsgUnauthorized
	}
	return &UnauthorizedError{APIError: &APIError{
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}}
}

func (e *UnauthorizedError) Error() string {
	return e.APIError.Message
}

func (e *UnauthorizedError) Unwrap() error {
	return e.APIError
}

// NewAPIError builds an APIError with the given status and payload
func NewAPIError(message string, status int, data []byte) *APIError {
	return &APIError{Message: message, StatusCode: status, Data: json.RawMessage(data)}
}

// KindOf reports the taxonomy member of err, or KindNone for unclassified errors
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var unauthorized *UnauthorizedError
	if errors.As(err, &unauthorized) {
		return KindUnauthorized
	}
	var network *NetworkError
	if errors.As(err, &network) {
		return KindNetwork
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return KindAPI
	}
	return KindNone
}

// IsUnauthorized reports whether err is an UnauthorizedError
func IsUnauthorized(err error) bool {
	return KindOf(err) == KindUnauthorized
}

// IsNetwork reports whether err is a NetworkError
func IsNetwork(err error) bool {
	return KindOf(err) == KindNetwork
}

// IsTimeout reports whether err is a NetworkError caused by a timeout
func IsTimeout(err error) bool {
	var network *NetworkError
	return errors.As(err, &network) && network.Timeout
}

// StatusCode returns the HTTP status carried by err, or 0 when there is none
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Message returns the user-facing message of a classified error or err.Error()
func Message(err error) string {
	if err == nil {
		return ""
	}
	var network *NetworkError
	if errors.As(err, &network) {
		return network.Message
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

func statusTemplate(status int) string {
	return fmt.Sprintf(msgStatusTemplate, status)
}
