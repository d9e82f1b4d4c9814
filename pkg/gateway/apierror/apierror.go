// Package apierror maps internal errors onto the JSON error envelope
// returned by the HTTP endpoints.
package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/echo-ai/coach-gateway/pkg/gateway/live/protocol"
)

type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
)

type Error struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
	Param     string    `json:"param,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	// RetryAfter is seconds until the caller may retry, when known.
	RetryAfter *int `json:"retry_after,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Type) + ": " + e.Message
}

type Envelope struct {
	Error *Error `json:"error"`
}

// FromError canonicalizes an error for an HTTP response.
func FromError(err error, requestID string) (*Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Type:      ErrAPI,
			Message:   "request timeout",
			RequestID: requestID,
		}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &Error{
			Type:      ErrAPI,
			Message:   "request cancelled",
			Code:      "cancelled",
			RequestID: requestID,
		}, http.StatusRequestTimeout
	}

	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr != nil {
		out := *apiErr
		out.RequestID = requestID
		return &out, statusFromType(out.Type)
	}

	var decodeErr *protocol.DecodeError
	if errors.As(err, &decodeErr) && decodeErr != nil {
		return &Error{
			Type:      ErrInvalidRequest,
			Message:   decodeErr.Message,
			Code:      decodeErr.Code,
			Param:     decodeErr.Param,
			RequestID: requestID,
		}, http.StatusBadRequest
	}

	return &Error{
		Type:      ErrAPI,
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

func statusFromType(t ErrorType) int {
	switch t {
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrAuthentication:
		return http.StatusUnauthorized
	case ErrRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Write emits the JSON envelope with the given status.
func Write(w http.ResponseWriter, status int, err *Error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Error: err})
}
