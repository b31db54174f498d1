// Package herr defines the stable error-kind taxonomy used across hox's
// core packages.
//
// Every error that crosses a component boundary carries a Kind so callers
// can branch on errors.Is/errors.As without parsing messages. This follows
// the sentinel-error-catalog style the rest of the codebase uses for VCS
// errors, extended with a Kind tag and structured fields for the entity the
// error concerns.
package herr

import (
	"errors"
	"fmt"
)

// Kind is a stable error classification. Kind values are never type names;
// they are the vocabulary callers switch on.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindValidation        Kind = "validation"
	KindSchemaValidation  Kind = "schema_validation"
	KindVcsNotFound       Kind = "vcs_not_found"
	KindVcsCommand        Kind = "vcs_command"
	KindInvalidRef        Kind = "invalid_ref"
	KindIo                Kind = "io"
	KindParse             Kind = "parse"
	KindDependencyCycle   Kind = "dependency_cycle"
	KindAgentNotFound     Kind = "agent_not_found"
	KindHandoff           Kind = "handoff"
	KindAlreadyAssigned   Kind = "already_assigned"
	KindPathUnsafe        Kind = "path_unsafe"
	KindAuth              Kind = "auth"
)

// Error is a Kind-tagged error with a human message and an optional
// wrapped cause.
type Error struct {
	Kind    Kind
	Entity  string // e.g. "task", "dep" — empty when not applicable
	ID      string // the entity id, when applicable
	Message string
	Cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Entity != "" && e.ID != "":
		return fmt.Sprintf("%s: %s %q: %s", e.Kind, e.Entity, e.ID, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error of the same Kind, so
// errors.Is(err, herr.New(kind, "")) matches any error of that Kind.
func (e *Error) Is(target error) bool {
	var k *Error
	if errors.As(target, &k) {
		return k.Kind == e.Kind
	}
	return false
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind, wrapping cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NotFound builds a KindNotFound error naming the entity and id.
func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, ID: id, Message: "not found"}
}

// SchemaValidation builds a KindSchemaValidation error naming the offending field.
func SchemaValidation(field, why string) *Error {
	return &Error{Kind: KindSchemaValidation, Message: fmt.Sprintf("field %q: %s", field, why)}
}

// PathUnsafe builds a KindPathUnsafe error for the given path and reason.
func PathUnsafe(path, reason string) *Error {
	return &Error{Kind: KindPathUnsafe, Entity: "path", ID: path, Message: reason}
}

// Kind reports the Kind of err, or "" if err is not (or does not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Sentinel errors retained from the VCS layer for errors.Is-style matching
// where no additional context is needed.
var (
	ErrNotInVCS    = errors.New("not in a VCS repository")
	ErrNoRemote    = errors.New("no remote configured")
	ErrConflicts   = errors.New("unresolved conflicts")
	ErrNotSupported = errors.New("operation not supported by this VCS backend")
)

// IsRetryable reports whether err represents a transient condition worth
// retrying with backoff (watcher reads during a rename, etc).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	k := KindOf(err)
	return k == KindIo || k == KindVcsCommand
}
