// Package apperr defines the stable error taxonomy shared across the
// server: HTTP handlers and the realtime gateway both translate a Kind
// into a status code or error event from this one place.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind is a stable, caller-facing error category.
type Kind string

const (
	Unauthenticated    Kind = "unauthenticated"
	Forbidden          Kind = "forbidden"
	NotFound           Kind = "not_found"
	Validation         Kind = "validation"
	Conflict           Kind = "conflict"
	RateLimited        Kind = "rate_limited"
	SandboxUnavailable Kind = "sandbox_unavailable"
	ExecutionTimeout   Kind = "execution_timeout"
	OutputLimit        Kind = "output_limit"
	Transient          Kind = "transient"
	InconsistentState  Kind = "inconsistent_state"
	Internal           Kind = "internal"
)

// Error wraps an underlying cause with a stable Kind and a
// non-leaking message safe to return to callers.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// RetryAfter is how long the caller should wait before retrying,
	// when known (e.g. the remainder of a rate-limit window). Zero
	// means no hint is available; callers must not treat zero as
	// "retry immediately".
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a Kind and message to an underlying cause. Wrap(nil)
// returns nil so it is safe to call on a just-checked error value.
func Wrap(kind Kind, message string, cause error) error {
	if cause == nil {
		return nil
	}

	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to Internal when err
// is not an *Error (or is nil, in which case "" is returned).
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return Internal
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
