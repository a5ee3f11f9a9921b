package errors

import (
	"fmt"
	"strings"
)

// Kind categorizes the host-level failure.
type Kind string

const (
	// KindUnhandledException wraps a guest fault classified by the
	// exception bridge.
	KindUnhandledException Kind = "unhandled_exception"
	// KindInvalidUnbox means a boxed guest value did not have the dynamic
	// type the caller asked to unbox.
	KindInvalidUnbox Kind = "invalid_unbox"
	// KindNotAFunction means a call target was not a callable object.
	KindNotAFunction Kind = "not_a_function"
	// KindCall means a guest call returned no value.
	KindCall Kind = "call_error"
	// KindEval means string evaluation produced no value.
	KindEval Kind = "eval_error"
	// KindNullPointer means a handle was constructed from a nil guest
	// pointer on the checked path.
	KindNullPointer Kind = "null_pointer"
	// KindInvalidSymbol means a name did not resolve to a symbol or field.
	KindInvalidSymbol Kind = "invalid_symbol"
	// KindAlreadyInitialized means the runtime was initialized twice in
	// one process.
	KindAlreadyInitialized Kind = "already_initialized"
	// KindPoisoned means a handle guard was abandoned by a panicking
	// accessor and the wrapped state can no longer be trusted.
	KindPoisoned Kind = "poisoned"
	// KindInUse means exclusive consumption was requested while other
	// shared owners remain.
	KindInUse Kind = "resource_in_use"
	// KindIO wraps a lower-level I/O failure unchanged.
	KindIO Kind = "io"
	// KindEncoding wraps a text-encoding failure unchanged.
	KindEncoding Kind = "encoding"
)

// Error is the structured error type used throughout the binding layer.
type Error struct {
	Cause     error
	Exception error // classified guest exception, if any
	Kind      Kind
	Op        string
	Detail    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Exception != nil {
		b.WriteString(": ")
		b.WriteString(e.Exception.Error())
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

// Unwrap returns the wrapped lower-level error, or the guest exception when
// no lower-level error exists.
func (e *Error) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return e.Exception
}

// Is reports whether target matches this error by kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind && (t.Op == "" || t.Op == e.Op)
	}
	return false
}

// New constructs an error with the given kind and operation.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// Newf constructs an error with a formatted detail message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// Unhandled wraps a classified guest exception.
func Unhandled(op string, ex error) *Error {
	return &Error{Kind: KindUnhandledException, Op: op, Exception: ex}
}

// InvalidUnbox reports an unbox attempt against the wrong dynamic type.
func InvalidUnbox(want, got string) *Error {
	return Newf(KindInvalidUnbox, "unbox", "want %s, got %s", want, got)
}

// NotAFunction reports a call target that is not callable.
func NotAFunction(name string) *Error {
	return Newf(KindNotAFunction, "call", "%s is not a function", name)
}

// CallError reports a guest call that produced no value.
func CallError(op string) *Error {
	return New(KindCall, op)
}

// EvalError reports an evaluation that produced no value.
func EvalError(op string) *Error {
	return New(KindEval, op)
}

// NullPointer reports a nil guest pointer on the checked construction path.
func NullPointer(op string) *Error {
	return New(KindNullPointer, op)
}

// InvalidSymbol reports a name that did not resolve.
func InvalidSymbol(name string) *Error {
	return Newf(KindInvalidSymbol, "symbol", "%q", name)
}

// AlreadyInitialized reports a second runtime initialization.
func AlreadyInitialized() *Error {
	return New(KindAlreadyInitialized, "init")
}

// Poisoned reports access to a guard abandoned by a panic.
func Poisoned(op string) *Error {
	return New(KindPoisoned, op)
}

// InUse reports exclusive consumption with shared owners outstanding.
func InUse(op string) *Error {
	return New(KindInUse, op)
}

// IO passes a lower-level I/O failure through unchanged.
func IO(op string, err error) *Error {
	return &Error{Kind: KindIO, Op: op, Cause: err}
}

// Encoding passes a text-encoding failure through unchanged.
func Encoding(op string, err error) *Error {
	return &Error{Kind: KindEncoding, Op: op, Cause: err}
}
