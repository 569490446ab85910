// Package npmerrors provides the typed error values the core's build and
// query paths surface, grounded on the teacher's NPMError shape
// (npm/util/errors/errors.go) but narrowed to the error kinds spec.md §7
// enumerates instead of ipset/iptables retry classification.
package npmerrors

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind is one of the error kinds spec.md §7 names. Unsat is deliberately
// absent: an empty query result is success, not an error kind.
type Kind string

const (
	UnknownNamespace   Kind = "UnknownNamespace"
	DuplicateRelation  Kind = "DuplicateRelation"
	ResourceExhaustion Kind = "ResourceExhaustion"
	EngineError        Kind = "EngineError"
	Timeout            Kind = "Timeout"
)

// Error is the typed error returned from build() and query paths.
type Error struct {
	Kind      Kind
	Operation string
	Detail    string
	cause     error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: operation [%s] failed: %s: %v", e.Kind, e.Operation, e.Detail, e.cause)
	}
	return fmt.Sprintf("%s: operation [%s] failed: %s", e.Kind, e.Operation, e.Detail)
}

// Unwrap lets errors.Is/errors.As see through to the wrapped cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// New builds an Error with no wrapped cause.
func New(kind Kind, operation, detail string) *Error {
	return &Error{Kind: kind, Operation: operation, Detail: detail}
}

// Wrap builds an Error around an existing cause, matching the teacher's
// habit (npm/pkg/models) of pulling in github.com/pkg/errors for wrapping.
func Wrap(kind Kind, operation, detail string, cause error) *Error {
	return &Error{Kind: kind, Operation: operation, Detail: detail, cause: pkgerrors.WithStack(cause)}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
