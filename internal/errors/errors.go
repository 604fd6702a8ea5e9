// Package errors defines the structured API error type used by the REST
// surface and the error kinds the realtime subsystem classifies its
// failures into.
package errors

import (
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents an error code
type ErrorCode string

// Predefined error codes
const (
	// General errors
	InternalError     ErrorCode = "INTERNAL_ERROR"
	BadRequest        ErrorCode = "BAD_REQUEST"
	Unauthorized      ErrorCode = "UNAUTHORIZED"
	Forbidden         ErrorCode = "FORBIDDEN"
	NotFound          ErrorCode = "NOT_FOUND"
	Conflict          ErrorCode = "CONFLICT"
	ValidationFailed  ErrorCode = "VALIDATION_FAILED"
	RateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Authentication errors
	InvalidCredentials ErrorCode = "INVALID_CREDENTIALS"

	// User/note errors
	UserNotFound ErrorCode = "USER_NOT_FOUND"
	NoteNotFound ErrorCode = "NOTE_NOT_FOUND"

	// Service errors
	ServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	Timeout            ErrorCode = "TIMEOUT"
	DatabaseError      ErrorCode = "DATABASE_ERROR"

	// Realtime admission/protocol errors, per the error-kind taxonomy the
	// connection admitter and hub classify failures into.
	AdmissionDenied  ErrorCode = "ADMISSION_DENIED"
	MalformedFrame   ErrorCode = "MALFORMED_FRAME"
	HandlerFault     ErrorCode = "HANDLER_FAULT"
	TransportFault   ErrorCode = "TRANSPORT_FAULT"
	KeepAliveTimeout ErrorCode = "KEEP_ALIVE_TIMEOUT"
	LoaderFault      ErrorCode = "LOADER_FAULT"
)

// APIError represents a structured API error
type APIError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for the error
func (e *APIError) HTTPStatus() int {
	switch e.Code {
	case BadRequest, ValidationFailed:
		return http.StatusBadRequest
	case Unauthorized, InvalidCredentials:
		return http.StatusUnauthorized
	case Forbidden, AdmissionDenied:
		return http.StatusForbidden
	case NotFound, UserNotFound, NoteNotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case RateLimitExceeded:
		return http.StatusTooManyRequests
	case ServiceUnavailable, DatabaseError:
		return http.StatusServiceUnavailable
	case Timeout:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WithRequestID adds a request ID to the error.
func (e *APIError) WithRequestID(requestID string) *APIError {
	e.RequestID = requestID
	return e
}

// NewAPIError creates a new API error
func NewAPIError(code ErrorCode, message string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewAPIErrorWithDetails creates a new API error with details
func NewAPIErrorWithDetails(code ErrorCode, message, details string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
	}
}

func NewBadRequestError(message string) *APIError      { return NewAPIError(BadRequest, message) }
func NewUnauthorizedError(message string) *APIError    { return NewAPIError(Unauthorized, message) }
func NewForbiddenError(message string) *APIError       { return NewAPIError(Forbidden, message) }
func NewNotFoundError(message string) *APIError        { return NewAPIError(NotFound, message) }
func NewValidationError(message string) *APIError      { return NewAPIError(ValidationFailed, message) }
func NewInternalError(message string) *APIError        { return NewAPIError(InternalError, message) }
func NewInvalidCredentialsError() *APIError {
	return NewAPIError(InvalidCredentials, "invalid credentials")
}
func NewUserNotFoundError() *APIError { return NewAPIError(UserNotFound, "user not found") }
func NewNoteNotFoundError() *APIError { return NewAPIError(NoteNotFound, "note not found") }

// NewAdmissionDeniedError builds the error kind the connection admitter
// returns for any failure in the cookie→session→user→note→permission
// chain; every one of them results in a closed transport and no hub.
func NewAdmissionDeniedError(reason string) *APIError {
	return NewAPIErrorWithDetails(AdmissionDenied, "realtime admission denied", reason)
}

// IsAPIError checks if an error is an APIError
func IsAPIError(err error) (*APIError, bool) {
	apiErr, ok := err.(*APIError)
	return apiErr, ok
}

// WrapError wraps a standard error as an APIError
func WrapError(err error, code ErrorCode, message string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   err.Error(),
		Timestamp: time.Now(),
	}
}
