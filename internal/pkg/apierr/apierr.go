package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies every error the execution core can surface. Callers branch
// on the kind, never on message text.
type Kind int

const (
	// Invalid marks malformed input: bad names, cyclic trigger graphs,
	// unparseable dependency expressions.
	Invalid Kind = iota
	// NotFound marks a missing collection, function, table or run.
	NotFound
	// Conflict marks name collisions, duplicate registrations and
	// conflicting callback bodies.
	Conflict
	// PreconditionFailed marks state-machine violations, e.g. deleting a
	// table that is not frozen.
	PreconditionFailed
	// AuthFailed is surfaced as-is from the auth layer.
	AuthFailed
	// Transient marks catalog contention or worker delivery failures that
	// are retryable within the retry budget.
	Transient
	// Fatal marks a breached invariant; the request aborts with state
	// untouched.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Invalid:
		return "invalid"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case PreconditionFailed:
		return "precondition_failed"
	case AuthFailed:
		return "auth_failed"
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

func (k Kind) HTTPStatus() int {
	switch k {
	case Invalid:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case PreconditionFailed:
		return http.StatusPreconditionFailed
	case AuthFailed:
		return http.StatusUnauthorized
	case Transient:
		return http.StatusServiceUnavailable
	case Fatal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// Error is the typed error carried across the core. It wraps an optional
// cause so errors.Is/As keep working through it.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the kind from an error chain; unclassified errors are
// reported as Fatal so they never masquerade as retryable.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Fatal
}

func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
