// Package errors provides structured error handling for the Mosaic framework.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies the category of an error.
type Kind int

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown Kind = iota
	// KindConfig indicates an invalid or incomplete component configuration.
	KindConfig
	// KindRenderContract indicates a render override that violated its
	// contract, such as producing more or fewer than one root element.
	KindRenderContract
	// KindAmbiguousTarget indicates a selector or placeholder that matched
	// more than one element where exactly one was required.
	KindAmbiguousTarget
	// KindDuplicateChild indicates two children in one repetition resolving
	// to the same placeholder tag.
	KindDuplicateChild
	// KindFetch indicates a failed initialization or data-fetch task.
	KindFetch
	// KindPanic indicates a recovered panic.
	KindPanic
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindRenderContract:
		return "render-contract"
	case KindAmbiguousTarget:
		return "ambiguous-target"
	case KindDuplicateChild:
		return "duplicate-child"
	case KindFetch:
		return "fetch"
	case KindPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// Error represents a structured error in the Mosaic framework.
type Error struct {
	// Op is the operation that failed (e.g., "core.RegisterChild").
	Op string
	// Kind categorizes the error.
	Kind Kind
	// Err is the underlying error.
	Err error
	// Component is the class name of the component involved, if any.
	Component string
	// StackTrace contains the call stack at the time of the error.
	StackTrace string
	// Timestamp is when the error occurred.
	Timestamp time.Time
}

func (e *Error) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("%s [%s] component=%s: %v", e.Op, e.Kind, e.Component, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs an Error from an operation, kind, and underlying error.
func New(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err, Timestamp: time.Now()}
}

// Newf constructs an Error with a formatted underlying message.
func Newf(op string, kind Kind, format string, args ...any) *Error {
	return New(op, kind, fmt.Errorf(format, args...))
}

// IsKind reports whether err is, or wraps, a mosaic Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// PanicError represents a recovered panic.
type PanicError struct {
	// Op is the operation that panicked (e.g., "core.Render").
	Op string
	// Value is the value passed to panic().
	Value any
	// StackTrace contains the call stack at the time of the panic.
	StackTrace string
	// Timestamp is when the panic occurred.
	Timestamp time.Time
}

func (e *PanicError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("panic in %s: %v", e.Op, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// Handler receives errors reported by the Mosaic framework.
type Handler interface {
	// HandleError is called when an error occurs.
	HandleError(err *Error)
	// HandlePanic is called when a panic is recovered.
	HandlePanic(err *PanicError)
}
