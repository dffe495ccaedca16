package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Capture and provider errors
const (
	// ErrCodeHardwareUnavailable indicates the capture device could not be acquired.
	ErrCodeHardwareUnavailable ErrorCode = "HARDWARE_UNAVAILABLE"
	// ErrCodeProvider indicates a transcription or conversation provider failed.
	ErrCodeProvider ErrorCode = "PROVIDER_ERROR"
	// ErrCodeNotInitialized indicates the provider client has no credential yet.
	ErrCodeNotInitialized ErrorCode = "NOT_INITIALIZED"
)

// Persistence errors
const (
	// ErrCodeStore indicates the persistence store rejected a read or write.
	ErrCodeStore ErrorCode = "STORE_ERROR"
	// ErrCodeCorruptSnapshot indicates a stored snapshot could not be decoded.
	ErrCodeCorruptSnapshot ErrorCode = "CORRUPT_SNAPSHOT"
)

// Resource errors
const (
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeConflict indicates the operation is not valid in the current state.
	ErrCodeConflict ErrorCode = "CONFLICT"
)

// Validation errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required field is missing.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
)

// Internal errors
const (
	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeProvider:            true,
	ErrCodeStore:               true,
	ErrCodeHardwareUnavailable: false,
	ErrCodeCorruptSnapshot:     false,
	ErrCodeInternal:            false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
