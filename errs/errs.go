// Package errs defines the error taxonomy shared by every component of the
// ontology service and clip pipeline (spec §7). Components return these
// typed errors rather than raising; the Access Mediator is the single funnel
// that turns them into audit records and caller-facing responses.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the seven taxonomy members. Zero value is never used.
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindForbidden     Kind = "forbidden"
	KindInvalidRequest Kind = "invalid_request"
	KindBackendError  Kind = "backend_error"
	KindConflict      Kind = "conflict"
	KindTimeout       Kind = "timeout"
	KindInternal      Kind = "internal"
)

// Error is the single error type every package returns. Reason is the
// short, caller-visible string; Cause (if any) is the wrapped native error,
// useful only to operators via logs/audit.
type Error struct {
	Kind   Kind
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

// NotFound builds a NotFound error with the given reason.
func NotFound(reason string) *Error { return &Error{Kind: KindNotFound, Reason: reason} }

// Forbidden builds a Forbidden error carrying the policy engine's decision
// reason.
func Forbidden(reason string) *Error { return &Error{Kind: KindForbidden, Reason: reason} }

// InvalidRequest builds an InvalidRequest error.
func InvalidRequest(reason string) *Error { return &Error{Kind: KindInvalidRequest, Reason: reason} }

// BackendError wraps a native backend failure.
func BackendError(reason string, cause error) *Error {
	return &Error{Kind: KindBackendError, Reason: reason, Cause: cause}
}

// Conflict builds a Conflict error (duplicate version, index write
// collision after retries, concurrent publish).
func Conflict(reason string) *Error { return &Error{Kind: KindConflict, Reason: reason} }

// Timeout builds a Timeout error for an exceeded deadline.
func Timeout(reason string) *Error { return &Error{Kind: KindTimeout, Reason: reason} }

// Internal wraps an unexpected failure. Never suppressed; always logged by
// the caller before or after being surfaced.
func Internal(reason string, cause error) *Error {
	return &Error{Kind: KindInternal, Reason: reason, Cause: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
