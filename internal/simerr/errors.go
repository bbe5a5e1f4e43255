// Package simerr defines the error taxonomy shared by the builder, the
// simulation engine, and its collaborators.
package simerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotInitialized
	KindNotFound
	KindInvalidInput
	KindRuntime
	KindInitialization
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotInitialized:
		return "not initialized"
	case KindNotFound:
		return "not found"
	case KindInvalidInput:
		return "invalid input"
	case KindRuntime:
		return "runtime processing"
	case KindInitialization:
		return "initialization"
	default:
		return "unknown"
	}
}

// Error is a classified error. Reasons carries human-readable detail for
// validation failures; Entity and ID identify the subject of a lookup.
type Error struct {
	Kind    Kind
	Op      string
	Entity  string
	ID      string
	Reasons []string
	Err     error
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrNotInitialized = &Error{Kind: KindNotInitialized}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrInvalidInput   = &Error{Kind: KindInvalidInput}
	ErrRuntime        = &Error{Kind: KindRuntime}
	ErrInitialization = &Error{Kind: KindInitialization}
)

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Entity != "" {
		b.WriteString(" ")
		b.WriteString(e.Entity)
		if e.ID != "" {
			fmt.Fprintf(&b, " %q", e.ID)
		}
	}
	if len(e.Reasons) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Reasons, "; "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Validation reports an invalid or incomplete world or config.
func Validation(op string, reasons ...string) *Error {
	return &Error{Kind: KindValidation, Op: op, Reasons: reasons}
}

// NotInitialized reports use of the simulation before initialize.
func NotInitialized(op string) *Error {
	return &Error{Kind: KindNotInitialized, Op: op}
}

// NotFound reports an unknown id.
func NotFound(op, entity, id string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Entity: entity, ID: id}
}

// InvalidInput reports a malformed or missing-field input.
func InvalidInput(op string, reasons ...string) *Error {
	return &Error{Kind: KindInvalidInput, Op: op, Reasons: reasons}
}

// Runtime reports an unexpected failure inside a turn subsystem.
func Runtime(op string, err error) *Error {
	return &Error{Kind: KindRuntime, Op: op, Err: err}
}

// Initialization reports that a config could not become a world state.
func Initialization(op string, err error) *Error {
	return &Error{Kind: KindInitialization, Op: op, Err: err}
}

// ReasonsOf returns the reasons attached to the first *Error in err's chain.
func ReasonsOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		if len(e.Reasons) > 0 {
			return e.Reasons
		}
		if e.Err != nil {
			return ReasonsOf(e.Err)
		}
	}
	return nil
}
