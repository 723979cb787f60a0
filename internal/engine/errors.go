package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies engine failures. Transports map kinds 1:1 and never invent
// new ones.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindUnavailable  Kind = "unavailable"
	KindInconsistent Kind = "inconsistent_state"
)

// Error is the structured error returned by every engine operation.
type Error struct {
	Kind  Kind
	Op    string
	Field string
	ID    string
	Err   error
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrUnavailable  = &Error{Kind: KindUnavailable}
	ErrInconsistent = &Error{Kind: KindInconsistent}
)

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Field != "" {
		fmt.Fprintf(&b, " [field=%s]", e.Field)
	}
	if e.ID != "" {
		fmt.Fprintf(&b, " [id=%s]", e.ID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Message is the human-readable cause without the kind/field decoration.
func (e *Error) Message() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return strings.ReplaceAll(string(e.Kind), "_", " ")
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels: a target with only Kind set equals any error of that
// kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Field == "" && t.ID == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf extracts the kind of an engine error, or "" for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func validationErr(op, field string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Field: field, Err: err}
}
