package domain

import (
	"errors"
	"net/http"
)

// ErrSessionExpired is reported by a read that found a session whose expiry
// had passed. The backend removes the session as part of the read; callers
// that do not care about the distinction treat this the same as absence.
var ErrSessionExpired = errors.New("session expired")

// ErrorCode identifies an error category on the HTTP surface.
type ErrorCode string

const (
	ErrCodeValidation     ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
	ErrCodeRateLimit      ErrorCode = "RATE_LIMIT"
	ErrCodeSessionExpired ErrorCode = "SESSION_EXPIRED"
)

// HTTPStatus maps an error code to its HTTP status.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeSessionExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the payload of the error envelope.
type ErrorBody struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ErrorResponse is the JSON error envelope returned on non-streaming failures.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds an error envelope.
func NewErrorResponse(code ErrorCode, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorBody{Code: code, Message: message}}
}
