package oops

import (
	"errors"
	"fmt"

	"github.com/go-stack/stack"
	"github.com/rs/zerolog"
)

// Kind classifies an error so that callers (the CLI, an HTTP layer) can decide how to
// present it without string matching. Kinds never carry transport-specific codes.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindValidation
	KindInvalidState
	KindInvalidTransition
	KindConflict
	KindDataIntegrity
)

var kindNames = map[Kind]string{
	KindInternal:          "internal",
	KindNotFound:          "not found",
	KindUnauthorized:      "unauthorized",
	KindForbidden:         "forbidden",
	KindValidation:        "validation",
	KindInvalidState:      "invalid state",
	KindInvalidTransition: "invalid transition",
	KindConflict:          "conflict",
	KindDataIntegrity:     "data integrity",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

type kindSentinel struct {
	kind Kind
}

func (s kindSentinel) Error() string {
	return s.kind.String()
}

// Sentinels for use with errors.Is. Any *Error of the matching kind satisfies them.
var (
	ErrInternal          error = kindSentinel{KindInternal}
	ErrNotFound          error = kindSentinel{KindNotFound}
	ErrUnauthorized      error = kindSentinel{KindUnauthorized}
	ErrForbidden         error = kindSentinel{KindForbidden}
	ErrValidation        error = kindSentinel{KindValidation}
	ErrInvalidState      error = kindSentinel{KindInvalidState}
	ErrInvalidTransition error = kindSentinel{KindInvalidTransition}
	ErrConflict          error = kindSentinel{KindConflict}
	ErrDataIntegrity     error = kindSentinel{KindDataIntegrity}
)

type Error struct {
	Kind    Kind
	Message string
	Wrapped error
	Stack   CallStack
}

func (e *Error) Error() string {
	if e.Wrapped == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Wrapped)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

func (e *Error) Is(target error) bool {
	if s, ok := target.(kindSentinel); ok {
		return e.Kind == s.kind
	}
	return false
}

type CallStack []StackFrame

func (s CallStack) MarshalZerologArray(a *zerolog.Array) {
	for _, frame := range s {
		a.Object(frame)
	}
}

type StackFrame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

func (f StackFrame) MarshalZerologObject(e *zerolog.Event) {
	e.
		Str("file", f.File).
		Int("line", f.Line).
		Str("function", f.Function)
}

var ZerologStackMarshaler = func(err error) interface{} {
	var asOops *Error
	if errors.As(err, &asOops) {
		return asOops.Stack
	}
	return nil
}

// Trace captures the current call stack, minus runtime frames.
func Trace() CallStack {
	trace := stack.Trace().TrimRuntime()
	frames := make(CallStack, len(trace))
	for i, call := range trace {
		callFrame := call.Frame()
		frames[i] = StackFrame{
			File:     callFrame.File,
			Line:     callFrame.Line,
			Function: callFrame.Function,
		}
	}
	return frames
}

// New wraps an error with a message and a stack trace. The result is KindInternal
// unless the wrapped chain already carries a more specific kind (see KindOf).
func New(wrapped error, format string, args ...interface{}) error {
	return &Error{
		Kind:    KindInternal,
		Message: fmt.Sprintf(format, args...),
		Wrapped: wrapped,
		Stack:   Trace(),
	}
}

// Kinded is like New but tags the error with a specific kind.
func Kinded(kind Kind, wrapped error, format string, args ...interface{}) error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Wrapped: wrapped,
		Stack:   Trace(),
	}
}

// KindOf reports the most specific kind found in the error chain. Errors that
// carry no kind at all, and plain internal wrappers, report KindInternal.
func KindOf(err error) Kind {
	for err != nil {
		var asOops *Error
		if !errors.As(err, &asOops) {
			return KindInternal
		}
		if asOops.Kind != KindInternal {
			return asOops.Kind
		}
		err = asOops.Wrapped
	}
	return KindInternal
}
