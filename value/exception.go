package value

import (
	"fmt"

	"github.com/wippyai/julia-runtime/engine"
	"github.com/wippyai/julia-runtime/layout"
)

// Kind classifies a guest exception by its dynamic type name. Types
// outside the closed set, including user-defined exception types,
// classify as Unknown.
type Kind int

const (
	Unknown Kind = iota
	Argument
	Bounds
	Composite
	Divide
	Domain
	EOF
	Generic
	Inexact
	Init
	Interrupt
	InvalidState
	Key
	Load
	OutOfMemory
	ReadOnlyMemory
	Remote
	Method
	Overflow
	Parse
	System
	Type
	UndefRef
	UndefVar
	Unicode
)

var kindByName = map[string]Kind{
	"ArgumentError":         Argument,
	"BoundsError":           Bounds,
	"CompositeException":    Composite,
	"DivideError":           Divide,
	"DomainError":           Domain,
	"EOFError":              EOF,
	"ErrorException":        Generic,
	"InexactError":          Inexact,
	"InitError":             Init,
	"InterruptException":    Interrupt,
	"InvalidStateException": InvalidState,
	"KeyError":              Key,
	"LoadError":             Load,
	"OutOfMemoryError":      OutOfMemory,
	"ReadOnlyMemoryError":   ReadOnlyMemory,
	"RemoteException":       Remote,
	"MethodError":           Method,
	"OverflowError":         Overflow,
	"ParseError":            Parse,
	"SystemError":           System,
	"TypeError":             Type,
	"UndefRefError":         UndefRef,
	"UndefVarError":         UndefVar,
	"UnicodeError":          Unicode,
}

var kindDescriptions = map[Kind]string{
	Unknown:        "unknown exception",
	Argument:       "the parameters to a function call do not match a valid signature",
	Bounds:         "an indexing operation into an array tried to access an out-of-bounds element",
	Composite:      "one or more child tasks raised, aggregating their exceptions",
	Divide:         "integer division was attempted with a denominator value of 0",
	Domain:         "the argument to a function or constructor is outside the valid domain",
	EOF:            "no more data was available to read from a file or stream",
	Generic:        "generic error type raised by the error function",
	Inexact:        "a value could not be converted exactly to the target type",
	Init:           "an error occurred when running a module's init function",
	Interrupt:      "the process was stopped by a terminal interrupt",
	InvalidState:   "the state of an object is invalid for the attempted operation",
	Key:            "an indexing operation into a collection tried to access a missing key",
	Load:           "an error occurred while including, requiring, or using a file",
	OutOfMemory:    "an operation allocated too much memory",
	ReadOnlyMemory: "an operation tried to write to memory that is read-only",
	Remote:         "an exception was raised on a remote worker",
	Method:         "a method with the required type signature does not exist",
	Overflow:       "the result of an expression is too large for the type and causes a wraparound",
	Parse:          "the expression passed to the parse function could not be interpreted as a valid expression",
	System:         "a system call failed",
	Type:           "a type assertion failure, or calling an intrinsic function with an incorrect argument type",
	UndefRef:       "the item or field is not defined for the given object",
	UndefVar:       "a symbol in the current scope is not defined",
	Unicode:        "byte array does not represent a valid unicode string",
}

// String returns the kind's type-name spelling, "Unknown" for the
// fallback.
func (k Kind) String() string {
	for name, kind := range kindByName {
		if kind == k {
			return name
		}
	}
	return "Unknown"
}

// Description returns a one-line account of when the kind is raised.
func (k Kind) Description() string {
	return kindDescriptions[k]
}

// KindOf maps a guest exception type name to its kind.
func KindOf(typeName string) Kind {
	return kindByName[typeName]
}

// Exception is a caught guest exception. It owns a handle to the
// exception object, so fields stay reachable until Drop.
type Exception struct {
	Object   Value
	Kind     Kind
	TypeName string
	Message  string
}

// Error renders the exception the way the guest would report it.
func (ex *Exception) Error() string {
	if ex.Message != "" {
		return fmt.Sprintf("%s: %s", ex.TypeName, ex.Message)
	}
	return ex.TypeName
}

// Drop releases the handle to the exception object.
func (ex *Exception) Drop() {
	ex.Object.Drop()
}

// Occurred reports whether an exception is pending without catching it.
func Occurred(eng *engine.Engine) bool {
	return eng.ExceptionOccurred() != nil
}

// Catch takes the pending exception, clearing the slot. Returns false
// when nothing is pending.
func Catch(eng *engine.Engine) (*Exception, bool) {
	p := eng.ExceptionOccurred()
	if p == nil {
		return nil, false
	}
	eng.ExceptionClear()
	name := eng.TypeNameString(p)
	return &Exception{
		Object:   NewUnchecked(eng, p),
		Kind:     KindOf(name),
		TypeName: name,
		Message:  exceptionMessage(eng, p),
	}, true
}

// exceptionMessage pulls a human-readable message out of the exception
// object. Most kinds carry a msg field; the rest render their payload.
func exceptionMessage(eng *engine.Engine, p layout.Ptr) string {
	dt := layout.TypeOf(p)
	if i := eng.FieldIndex(dt, eng.Symbol("msg")); i >= 0 {
		return fieldString(eng, p, i)
	}
	switch eng.TypeNameString(p) {
	case "UndefVarError":
		if i := eng.FieldIndex(dt, eng.Symbol("var")); i >= 0 {
			return fieldString(eng, p, i)
		}
	case "KeyError":
		if i := eng.FieldIndex(dt, eng.Symbol("key")); i >= 0 {
			return fieldString(eng, p, i)
		}
	case "DomainError":
		if i := eng.FieldIndex(dt, eng.Symbol("msg")); i >= 0 {
			return fieldString(eng, p, i)
		}
	}
	return ""
}

func fieldString(eng *engine.Engine, p layout.Ptr, i int) string {
	var f layout.Ptr
	eng.Protect(func() layout.Ptr {
		f = eng.GetNthField(p, i)
		return f
	})
	eng.ExceptionClear()
	if f == nil {
		return ""
	}
	if layout.TypeTagIs(f, uintptr(layout.TagString)<<4) {
		return eng.UnboxString(f)
	}
	if layout.TypeTagIs(f, uintptr(layout.TagSymbol)<<4) {
		return layout.SymbolName(f)
	}
	return eng.ShowString(f)
}

// Raisers install a pending exception and unwind to the nearest entry
// point. They never return; call them only from host callbacks running
// inside the engine.

// RaiseError raises ErrorException with a message.
func RaiseError(eng *engine.Engine, msg string) {
	eng.RaiseError(msg)
}

// Raisef raises ErrorException with a formatted message.
func Raisef(eng *engine.Engine, format string, args ...any) {
	eng.Raisef(format, args...)
}

// RaiseTypeError raises TypeError for a mis-typed argument.
func RaiseTypeError(eng *engine.Engine, fname string, expected DataType, got Value) {
	ep, err := expected.raw("raise")
	if err != nil {
		eng.RaiseError(err.Error())
	}
	gp, err := got.raw("raise")
	if err != nil {
		eng.RaiseError(err.Error())
	}
	eng.RaiseTypeError(fname, ep, gp)
}

// RaiseBounds raises BoundsError for index i into v.
func RaiseBounds(eng *engine.Engine, v Value, i int) {
	p, err := v.raw("raise")
	if err != nil {
		eng.RaiseError(err.Error())
	}
	eng.RaiseBoundsInt(p, i)
}

// RaiseTooFewArgs raises ArgumentError for an undersized argument list.
func RaiseTooFewArgs(eng *engine.Engine, fname string, min int) {
	eng.RaiseTooFewArgs(fname, min)
}

// RaiseTooManyArgs raises ArgumentError for an oversized argument list.
func RaiseTooManyArgs(eng *engine.Engine, fname string, max int) {
	eng.RaiseTooManyArgs(fname, max)
}

// RaiseUndefVar raises UndefVarError for name.
func RaiseUndefVar(eng *engine.Engine, name string) {
	eng.RaiseUndefVar(eng.Symbol(name))
}

// RaiseEOF raises EOFError.
func RaiseEOF(eng *engine.Engine) {
	eng.RaiseEOF()
}

// RaiseDomain raises DomainError for val.
func RaiseDomain(eng *engine.Engine, val Value, msg string) {
	p, err := val.raw("raise")
	if err != nil {
		eng.RaiseError(err.Error())
	}
	eng.RaiseDomain(p, msg)
}

// RaiseKeyError raises KeyError for key.
func RaiseKeyError(eng *engine.Engine, key Value) {
	p, err := key.raw("raise")
	if err != nil {
		eng.RaiseError(err.Error())
	}
	eng.RaiseKeyError(p)
}

// Throw raises an arbitrary exception object.
func Throw(eng *engine.Engine, ex Value) {
	p, err := ex.raw("throw")
	if err != nil {
		eng.RaiseError(err.Error())
	}
	eng.Throw(p)
}
