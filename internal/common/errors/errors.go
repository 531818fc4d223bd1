// Package errors provides application error types carrying wire error codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	v1 "github.com/cartrita/mcp/pkg/mcp/v1"
)

// AppError represents an application-specific error with its wire error code
// and the HTTP status used by the gateway surface.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"http_status"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError with the given wire error code.
func New(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatusFor(code),
	}
}

// InvalidMessage creates a validation error for a malformed message.
func InvalidMessage(message string) *AppError {
	return New(v1.ErrCodeInvalidMessageFormat, message)
}

// InvalidParameters creates a validation error for bad task parameters.
func InvalidParameters(message string) *AppError {
	return New(v1.ErrCodeInvalidParameters, message)
}

// AgentUnavailable creates a routing error for a missing or unclaimed agent.
func AgentUnavailable(message string) *AppError {
	return New(v1.ErrCodeAgentUnavailable, message)
}

// QueueFull creates a capacity error when admission control rejects a task.
func QueueFull(message string) *AppError {
	return New(v1.ErrCodeQueueFull, message)
}

// TaskTimeout creates an execution error for an expired task context.
func TaskTimeout(message string) *AppError {
	return New(v1.ErrCodeTaskTimeout, message)
}

// AuthorizationFailed creates a security error for a denied operation.
func AuthorizationFailed(message string) *AppError {
	return New(v1.ErrCodeAuthorizationFailed, message)
}

// Internal creates an internal error with a wrapped underlying error.
func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       v1.ErrCodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Wrap wraps an existing error with additional context, returning an AppError.
// If the error is already an AppError its code and status are preserved.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:       appErr.Code,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			HTTPStatus: appErr.HTTPStatus,
			Err:        err,
		}
	}

	return &AppError{
		Code:       v1.ErrCodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// CodeOf returns the wire error code for an error, defaulting to
// INTERNAL_ERROR for non-AppError values.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	var verr *v1.ValidationError
	if errors.As(err, &verr) {
		return verr.Code
	}
	return v1.ErrCodeInternalError
}

// GetHTTPStatus returns the HTTP status code for an error.
// Returns 500 Internal Server Error if the error is not an AppError.
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// httpStatusFor maps wire error codes to the HTTP status used by the
// gateway surface.
func httpStatusFor(code string) int {
	switch code {
	case v1.ErrCodeInvalidMessageFormat, v1.ErrCodeInvalidTaskType, v1.ErrCodeInvalidParameters:
		return http.StatusBadRequest
	case v1.ErrCodeAuthenticationFailed:
		return http.StatusUnauthorized
	case v1.ErrCodeAuthorizationFailed:
		return http.StatusForbidden
	case v1.ErrCodeAgentUnavailable, v1.ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case v1.ErrCodeQueueFull, v1.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case v1.ErrCodeInsufficientBudget, v1.ErrCodeResourceLimitExceeded:
		return http.StatusPaymentRequired
	case v1.ErrCodeTaskTimeout:
		return http.StatusGatewayTimeout
	case v1.ErrCodeTaskCancelled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
