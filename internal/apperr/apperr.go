// Package apperr defines the error taxonomy shared by the Woodshed services.
// Every service failure is classified into one of four kinds so the HTTP edge
// can map it to a distinct status without inspecting error strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a service error.
type Kind int

const (
	// KindUnknown marks errors that escaped classification.
	KindUnknown Kind = iota
	// KindValidation covers malformed or missing caller input.
	KindValidation
	// KindPermission covers missing membership or insufficient role.
	KindPermission
	// KindNotFound covers references to entities that do not exist in scope.
	KindNotFound
	// KindConflict covers uniqueness violations and exhausted retry budgets.
	KindConflict
)

// Error carries a kind, a machine-readable operation code, and the cause.
type Error struct {
	kind Kind
	code string
	err  error
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.err
}

// Kind reports the error classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// Code reports the machine-readable code, e.g. "notes.create.empty_title".
func (e *Error) Code() string {
	return e.code
}

// New constructs a classified error with the provided code and cause.
func New(kind Kind, code string, cause error) *Error {
	return &Error{kind: kind, code: code, err: cause}
}

// Validation constructs a KindValidation error.
func Validation(code string, cause error) *Error {
	return New(KindValidation, code, cause)
}

// Permission constructs a KindPermission error.
func Permission(code string, cause error) *Error {
	return New(KindPermission, code, cause)
}

// NotFound constructs a KindNotFound error.
func NotFound(code string, cause error) *Error {
	return New(KindNotFound, code, cause)
}

// Conflict constructs a KindConflict error.
func Conflict(code string, cause error) *Error {
	return New(KindConflict, code, cause)
}

// KindOf reports the kind of err, or KindUnknown for unclassified errors.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.kind
	}
	return KindUnknown
}
