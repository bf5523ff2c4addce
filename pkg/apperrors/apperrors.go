// Package apperrors defines the error taxonomy shared by all services. Every
// error crossing a service boundary carries a Code so transport layers can map
// it to a status and callers can decide retry vs. abort without string
// matching.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies one failure class from the taxonomy.
type Code string

const (
	// CodeParentNotFound means the parent scope for an allocation does not
	// exist. Fatal to the caller, not retryable.
	CodeParentNotFound Code = "parent_not_found"

	// CodeFormatOverflow means a fixed-width code segment ran out of digits.
	// Fatal; requires a format or migration decision, never silent truncation.
	CodeFormatOverflow Code = "format_overflow"

	// CodeRetryExhausted means allocation contention outlasted the bounded
	// retry budget. The caller may retry later.
	CodeRetryExhausted Code = "retry_exhausted"

	// CodeValidation covers bad input: unknown roles, missing destinations,
	// strict no-op transfers.
	CodeValidation Code = "validation_failed"

	// CodeConcurrentModification means an optimistic version check failed.
	// The caller must reload and retry with fresh state.
	CodeConcurrentModification Code = "concurrent_modification"

	// CodeConflict covers state conflicts such as deleting a zone that still
	// has people assigned.
	CodeConflict Code = "conflict"

	// CodeNotFound is the storage-level missing record.
	CodeNotFound Code = "not_found"

	// CodeAuditWriteFailure marks a failed ledger append. It is surfaced to
	// operators through the retry queue, never to the primary caller.
	CodeAuditWriteFailure Code = "audit_write_failure"

	// CodeTimeout marks a cancelled or deadline-exceeded operation.
	CodeTimeout Code = "timeout"

	// CodeInternal is any repository or infrastructure failure. Propagated to
	// the caller; the atomic units guarantee no partial state remains.
	CodeInternal Code = "internal_error"
)

// Error is the concrete error type carried across service boundaries.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal so callers
// never see an unclassified failure.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the HTTP status handlers should return.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound, CodeParentNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeConcurrentModification:
		return http.StatusConflict
	case CodeRetryExhausted:
		return http.StatusServiceUnavailable
	case CodeFormatOverflow:
		return http.StatusUnprocessableEntity
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
