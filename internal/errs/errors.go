// Package errs provides the unified error type used across dbkit.
//
// Every subsystem (conditions, query builder, schema cache, drivers) wraps
// its failures into *errs.Error before returning them to callers. Callers use
// the Is* predicates to handle errors without importing driver packages.
//
// Usage:
//
//	// In a condition factory, reject a malformed operand list:
//	return nil, errs.Newf(errs.ErrKindInvalidArgument, "Operator '%s' requires three operands.", op)
//
//	// In a handler, check error kind:
//	if errs.IsNotSupported(err) {
//	    http.Error(w, err.Error(), http.StatusNotImplemented)
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no rows
	ErrKindConnectionFailed         // cannot reach the backend
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindQueryFailed              // SQL execution error
	ErrKindInvalidArgument          // malformed condition or bad caller input
	ErrKindPermissionDenied         // access denied / auth failure
	ErrKindNotSupported             // capability missing in the active dialect
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidArgument:
		return "invalid_argument"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindNotSupported:
		return "not_supported"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all dbkit subsystems.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with fmt.Sprintf formatting.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// NotSupported reports that impl (usually a dialect loader) lacks capability.
// The message names the concrete Go type, e.g.
// "*sqlite.Introspector does not support fetching all schema names."
func NotSupported(impl any, capability string) *Error {
	return Newf(ErrKindNotSupported, "%T does not support %s.", impl, capability)
}

// --- Predicates ---

// IsNotFound reports whether err represents a "no rows" result.
func IsNotFound(err error) bool {
	return kindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return kindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return kindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a backend SQL execution failure.
func IsQueryFailed(err error) bool {
	return kindOf(err) == ErrKindQueryFailed
}

// IsInvalidArgument reports whether err was caused by a malformed condition
// or other bad input from the caller.
func IsInvalidArgument(err error) bool {
	return kindOf(err) == ErrKindInvalidArgument
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return kindOf(err) == ErrKindPermissionDenied
}

// IsNotSupported reports whether err signals a capability the active
// dialect does not implement.
func IsNotSupported(err error) bool {
	return kindOf(err) == ErrKindNotSupported
}

// kindOf extracts the ErrKind from any error in the chain.
func kindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
