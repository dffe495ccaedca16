// Package errors provides the structured error type shared by scribe packages.
// Every failure that crosses a package boundary is an *AppError carrying a
// machine-readable code, a human-readable message and an HTTP status hint.
package errors

import (
	"fmt"
	"net/http"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// HardwareUnavailable reports that the capture device could not be acquired.
func HardwareUnavailable(cause error) *AppError {
	return &AppError{
		Code: ErrCodeHardwareUnavailable, Message: "The microphone is unavailable.",
		HTTPStatus: http.StatusServiceUnavailable, Retryable: false, Cause: cause,
	}
}

// ProviderError wraps a failure from a transcription or conversation provider.
// The message carries the cause text so it can be shown next to the item.
func ProviderError(service string, cause error) *AppError {
	msg := fmt.Sprintf("The %s provider failed.", service)
	if cause != nil {
		msg = fmt.Sprintf("The %s provider failed: %v", service, cause)
	}
	return &AppError{
		Code: ErrCodeProvider, Message: msg,
		HTTPStatus: http.StatusBadGateway, Retryable: true,
		Details: map[string]any{"service": service}, Cause: cause,
	}
}

// NotInitialized reports that a provider client was used before a credential was set.
func NotInitialized(client string) *AppError {
	return &AppError{
		Code: ErrCodeNotInitialized, Message: fmt.Sprintf("The %s client is not initialized. Provide an API key first.", client),
		HTTPStatus: http.StatusPreconditionFailed, Retryable: false,
	}
}

// StoreError wraps a persistence failure.
func StoreError(cause error) *AppError {
	return &AppError{
		Code: ErrCodeStore, Message: "Changes may not be saved.",
		HTTPStatus: http.StatusInternalServerError, Retryable: true, Cause: cause,
	}
}

// CorruptSnapshot reports a stored snapshot that could not be decoded.
func CorruptSnapshot(cause error) *AppError {
	return &AppError{
		Code: ErrCodeCorruptSnapshot, Message: "Saved history could not be read and was discarded.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}

// NotFound creates a new AppError for a resource that was not found.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("The requested %s was not found.", resource),
		HTTPStatus: http.StatusNotFound, Retryable: false, Details: details,
	}
}

// Conflict creates a new AppError for an operation that is invalid in the current state.
func Conflict(reason string) *AppError {
	return &AppError{
		Code: ErrCodeConflict, Message: reason,
		HTTPStatus: http.StatusConflict, Retryable: false,
	}
}

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		HTTPStatus: http.StatusBadRequest, Retryable: false, Details: details,
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidInput, Message: message,
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// MissingField creates a new AppError for a missing required field.
func MissingField(field string) *AppError {
	return &AppError{
		Code: ErrCodeMissingField, Message: fmt.Sprintf("Missing required field: %s", field),
		HTTPStatus: http.StatusBadRequest, Retryable: false,
		Details: map[string]any{"field": field},
	}
}

// Internal creates a new AppError for an unexpected error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}
