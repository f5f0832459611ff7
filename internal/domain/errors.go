package domain

import (
	"errors"
	"fmt"
)

// Application error codes
const (
	EINVALID      = "invalid"        // Invalid input or validation failure
	EUNAUTHORIZED = "unauthorized"   // Authentication required
	EFORBIDDEN    = "forbidden"      // Permission denied
	ENOTFOUND     = "not_found"      // Resource not found
	ECONFLICT     = "conflict"       // Resource conflict (e.g., duplicate, concurrent claim)
	EQUOTA        = "quota_exceeded" // Daily allocation quota used up
	ENONUMBERS    = "no_numbers"     // Pool has nothing eligible left for the caller
	ERATELIMIT    = "rate_limit"     // Rate limit exceeded
	EINTERNAL     = "internal"       // Internal server error
)

// User-facing messages for allocation outcomes. Clients match on these.
const (
	MsgNoNumbersAvailable  = "No more unique numbers available for your tier/country today."
	MsgConcurrentlyClaimed = "Number was concurrently distributed to another user. Try again."
)

// Error represents an application error with structured information.
type Error struct {
	Code    string // Machine-readable error code
	Op      string // Operation that failed (e.g., "allocation.allocate")
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a new Error with the given code, operation, and formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// ErrorCode returns the code of the root error, or EINTERNAL if none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the human-readable message of the error.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		// For internal errors, return generic message
		if e.Code == EINTERNAL {
			return "An internal error occurred. Please try again later."
		}
		return e.Message
	}
	return "An internal error occurred. Please try again later."
}

// ErrorOp returns the operation of the root error, if any.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// Convenience constructors for common error types

// NotFound creates a not found error.
func NotFound(op, resource, id string) *Error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s with ID %q not found", resource, id),
	}
}

// Invalid creates a validation error.
func Invalid(op, message string) *Error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
	}
}

// Unauthorized creates an authentication error.
func Unauthorized(op, message string) *Error {
	return &Error{
		Code:    EUNAUTHORIZED,
		Op:      op,
		Message: message,
	}
}

// Forbidden creates a permission error.
func Forbidden(op, message string) *Error {
	return &Error{
		Code:    EFORBIDDEN,
		Op:      op,
		Message: message,
	}
}

// Conflict creates a conflict error.
func Conflict(op, message string) *Error {
	return &Error{
		Code:    ECONFLICT,
		Op:      op,
		Message: message,
	}
}

// Internal creates an internal error, wrapping the underlying error.
func Internal(err error, op, message string) *Error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// RateLimit creates a rate limit error.
func RateLimit(op string) *Error {
	return &Error{
		Code:    ERATELIMIT,
		Op:      op,
		Message: "Too many requests. Please try again later.",
	}
}

// quotaLimit carries the limit that was hit so callers can recover it with QuotaLimit.
type quotaLimit int

func (q quotaLimit) Error() string {
	return fmt.Sprintf("daily limit %d reached", int(q))
}

// QuotaExceeded creates the error returned when a user has no allowance left today.
func QuotaExceeded(op string, limit int) *Error {
	return &Error{
		Code:    EQUOTA,
		Op:      op,
		Message: fmt.Sprintf("You have reached your daily limit of %d numbers.", limit),
		Err:     quotaLimit(limit),
	}
}

// QuotaLimit returns the limit carried by a QuotaExceeded error.
func QuotaLimit(err error) (int, bool) {
	var q quotaLimit
	if errors.As(err, &q) {
		return int(q), true
	}
	return 0, false
}

// NoNumbersAvailable creates the error returned when the filtered pool is empty.
func NoNumbersAvailable(op string) *Error {
	return &Error{
		Code:    ENONUMBERS,
		Op:      op,
		Message: MsgNoNumbersAvailable,
	}
}

// ConcurrentlyClaimed creates the retryable error returned when another request won the number.
func ConcurrentlyClaimed(op string, err error) *Error {
	return &Error{
		Code:    ECONFLICT,
		Op:      op,
		Message: MsgConcurrentlyClaimed,
		Err:     err,
	}
}

// IsRetryable reports whether the caller may safely repeat the whole operation.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ECONFLICT && e.Message == MsgConcurrentlyClaimed
}

// ValidationError represents field-level validation errors.
type ValidationError struct {
	Op     string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation failed", e.Op)
}

// NewValidationError creates a new validation error with the first field error.
func NewValidationError(op, field, message string) *ValidationError {
	return &ValidationError{
		Op: op,
		Fields: map[string]string{
			field: message,
		},
	}
}

