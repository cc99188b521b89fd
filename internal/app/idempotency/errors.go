package idempotency

import (
	"errors"
	"fmt"
	"time"
)

// Error codes for the execution surface. Each carries a stable HTTP status so
// transport adapters can map failures without inspecting messages.
const (
	CodeInvalidKey          = "INVALID_KEY"
	CodeInvalidRetention    = "INVALID_RETENTION"
	CodeInvalidConfig       = "INVALID_CONFIG"
	CodeFingerprintMismatch = "FINGERPRINT_MISMATCH"
	CodeOperationInProgress = "OPERATION_IN_PROGRESS"
	CodeHandlerTimeout      = "HANDLER_TIMEOUT"
	CodeStoreError          = "STORE_ERROR"
)

// Error is the application-layer error for idempotent execution. It can be
// mapped to an HTTP response via Status.
type Error struct {
	Status  int
	Code    string
	Message string

	// StoredFingerprint is set only for FINGERPRINT_MISMATCH: the digest
	// bound to the key at first commit.
	StoredFingerprint string

	// Err is the underlying cause for STORE_ERROR.
	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

func errInvalidKey() *Error {
	return &Error{
		Status:  400,
		Code:    CodeInvalidKey,
		Message: "idempotency key must be a non-empty string",
	}
}

func errInvalidRetention(got time.Duration) *Error {
	return &Error{
		Status:  400,
		Code:    CodeInvalidRetention,
		Message: fmt.Sprintf("retention %s is below the %s compliance minimum", got, MinRetention),
	}
}

func errInvalidConfig(msg string) *Error {
	return &Error{
		Status:  500,
		Code:    CodeInvalidConfig,
		Message: msg,
	}
}

func errFingerprintMismatch(stored string) *Error {
	return &Error{
		Status:            422,
		Code:              CodeFingerprintMismatch,
		Message:           "idempotency key was already used with a different payload",
		StoredFingerprint: stored,
	}
}

func errOperationInProgress() *Error {
	return &Error{
		Status:  409,
		Code:    CodeOperationInProgress,
		Message: "another request with this idempotency key is in progress",
	}
}

func errHandlerTimeout(timeout time.Duration) *Error {
	return &Error{
		Status:  503,
		Code:    CodeHandlerTimeout,
		Message: fmt.Sprintf("handler did not settle within %s", timeout),
	}
}

func newStoreError(cause error) *Error {
	return &Error{
		Status:  503,
		Code:    CodeStoreError,
		Message: "idempotency store operation failed",
		Err:     cause,
	}
}

// errorCode extracts the taxonomy code from err for audit metadata. Handler
// failures that are not *Error are tagged HANDLER_ERROR.
func errorCode(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return "HANDLER_ERROR"
}
