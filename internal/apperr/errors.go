// Package apperr defines the error kinds trade operations report to callers.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure for transport mapping.
type Kind string

const (
	KindValidation     Kind = "VALIDATION"
	KindAuthorization  Kind = "AUTHORIZATION"
	KindNotFound       Kind = "NOT_FOUND"
	KindMalformedInput Kind = "MALFORMED_INPUT"
	KindConflict       Kind = "CONFLICT"
	KindInternal       Kind = "INTERNAL"
)

// Error carries a kind, a human message and optional details (for example
// the full list of validation failures).
type Error struct {
	Kind    Kind
	Message string
	Details []string
	Wrapped error

	// Set on authorization failures.
	UserID    string
	Operation string
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is matches any *Error of the same kind, so errors.Is(err, apperr.NotFound("")) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// New builds an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

// Validation reports business-rule failures. The message joins all details.
func Validation(details []string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: "Validation failed: " + strings.Join(details, "; "),
		Details: append([]string(nil), details...),
	}
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return New(KindAuthorization, format, args...)
}

// Denied reports that userID may not perform operation.
func Denied(userID, operation string) *Error {
	return &Error{
		Kind:      KindAuthorization,
		Message:   fmt.Sprintf("User %s does not have privileges to %s this trade.", userID, strings.ToLower(operation)),
		UserID:    userID,
		Operation: operation,
	}
}

func Malformed(format string, args ...any) *Error {
	return New(KindMalformedInput, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

// KindOf returns the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// DetailsOf returns the detail lines of err, if any.
func DetailsOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

// IsKind reports whether err has the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
