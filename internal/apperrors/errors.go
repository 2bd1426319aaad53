// Package apperrors provides structured application errors with HTTP status mapping.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal error")
	ErrCancelled    = errors.New("cancelled")
	ErrTimeout      = errors.New("timeout")
	ErrUnexpected   = errors.New("unexpected response")
	ErrUnauthorized = errors.New("unauthorized")
	ErrTransient    = errors.New("transient error")
)

// Kinds reported to callers and telemetry. Stable strings, part of the API.
const (
	KindValidation   = "validation"
	KindNotFound     = "not_found"
	KindConflict     = "conflict"
	KindInternal     = "internal"
	KindCancelled    = "cancelled"
	KindTimeout      = "timeout"
	KindUnexpected   = "unexpected"
	KindUnauthorized = "unauthorized"
	KindTransient    = "transient"
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "name", "credentials")
	Resource string // For not found/conflict (e.g., "database")
	Op       string // Operation that failed (e.g., "cloudapi.getTask")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the cause so errors.Is/As see through to either.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
		Resource: resource,
	}
}

// Conflict creates a conflict error for a resource.
func Conflict(resource, id, reason string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  reason,
		Resource: resource,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// Cancelled creates a cancellation error carrying the reason given by the caller.
func Cancelled(reason string) error {
	msg := "cancelled"
	if reason != "" {
		msg = "cancelled: " + reason
	}
	return &Error{
		Sentinel: ErrCancelled,
		Message:  msg,
	}
}

// Timeout creates an error for a wait that exhausted its budget.
func Timeout(op, message string) error {
	return &Error{
		Sentinel: ErrTimeout,
		Message:  message,
		Op:       op,
	}
}

// Unexpected creates an error for a remote response missing data the workflow needs.
// These are never retried.
func Unexpected(op, message string) error {
	return &Error{
		Sentinel: ErrUnexpected,
		Message:  message,
		Op:       op,
	}
}

// Unauthorized creates an error for rejected provisioning API credentials.
func Unauthorized(op string, cause error) error {
	return &Error{
		Sentinel: ErrUnauthorized,
		Message:  fmt.Sprintf("%s: unauthorized", op),
		Op:       op,
		Cause:    cause,
	}
}

// Transient creates an error for a failure that may succeed when repeated.
func Transient(op string, cause error) error {
	return &Error{
		Sentinel: ErrTransient,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// IsTransient reports whether err is worth repeating.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Kind returns the taxonomy kind of err. Cancellation and timeout win over
// anything they wrap so a stopped workflow is never reported as a fault.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrUnexpected):
		return KindUnexpected
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindInternal
	}
}
