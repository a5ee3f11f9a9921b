package value

import (
	"sync"

	"github.com/wippyai/julia-runtime/engine"
	jlerrors "github.com/wippyai/julia-runtime/errors"
	"github.com/wippyai/julia-runtime/layout"
)

// slot is the shared state behind a Value and all of its clones and
// typed views. The pointer stays rooted in the engine until the last
// owner drops.
type slot struct {
	eng      *engine.Engine
	ptr      layout.Ptr
	mu       sync.Mutex
	refs     int
	poisoned bool
	released bool
}

// Value is a shared handle to one guest object.
type Value struct {
	s *slot
}

// New wraps a guest pointer in a handle, rooting it against collection.
// A nil pointer is rejected.
func New(eng *engine.Engine, p layout.Ptr) (Value, error) {
	if p == nil {
		return Value{}, jlerrors.NullPointer("value")
	}
	return NewUnchecked(eng, p), nil
}

// NewUnchecked wraps a guest pointer the caller asserts is valid and
// non-nil.
func NewUnchecked(eng *engine.Engine, p layout.Ptr) Value {
	eng.Root(p)
	return Value{s: &slot{eng: eng, ptr: p, refs: 1}}
}

// Engine returns the engine the handle belongs to.
func (v Value) Engine() *engine.Engine {
	if v.s == nil {
		return nil
	}
	return v.s.eng
}

// raw returns the underlying pointer after the liveness checks shared by
// every accessor.
func (v Value) raw(op string) (layout.Ptr, error) {
	switch {
	case v.s == nil || v.s.released:
		return nil, jlerrors.NullPointer(op)
	case v.s.poisoned:
		return nil, jlerrors.Poisoned(op)
	}
	return v.s.ptr, nil
}

// Ptr returns the underlying pointer without liveness checks. The
// pointer is only guaranteed valid while the handle is live.
func (v Value) Ptr() layout.Ptr {
	if v.s == nil {
		return nil
	}
	return v.s.ptr
}

// Lock acquires the handle and returns the pointer. The caller must
// Unlock. Fails if a previous holder poisoned the slot.
func (v Value) Lock() (layout.Ptr, error) {
	if v.s == nil {
		return nil, jlerrors.NullPointer("lock")
	}
	v.s.mu.Lock()
	if v.s.poisoned {
		v.s.mu.Unlock()
		return nil, jlerrors.Poisoned("lock")
	}
	if v.s.released {
		v.s.mu.Unlock()
		return nil, jlerrors.NullPointer("lock")
	}
	return v.s.ptr, nil
}

// Unlock releases a Lock.
func (v Value) Unlock() {
	v.s.mu.Unlock()
}

// With runs f holding the handle. A panic inside f poisons the slot
// before propagating, so later accessors fail instead of seeing torn
// state.
func (v Value) With(f func(p layout.Ptr) error) error {
	p, err := v.Lock()
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			v.s.poisoned = true
			v.s.mu.Unlock()
			panic(r)
		}
		v.s.mu.Unlock()
	}()
	return f(p)
}

// Clone adds an owner. Both handles address the same slot.
func (v Value) Clone() Value {
	if v.s != nil && !v.s.released {
		v.s.refs++
	}
	return v
}

// Drop releases one owner. The last Drop unroots the object; a dropped
// handle fails every subsequent access.
func (v Value) Drop() {
	if v.s == nil || v.s.released {
		return
	}
	v.s.refs--
	if v.s.refs > 0 {
		return
	}
	v.s.released = true
	v.s.eng.Unroot(v.s.ptr)
}

// IntoInner consumes a sole-owner handle and returns the raw pointer.
// The pointer is no longer rooted: it stays valid only until the next
// collection unless the caller roots it again.
func (v Value) IntoInner() (layout.Ptr, error) {
	p, err := v.raw("into inner")
	if err != nil {
		return nil, err
	}
	if v.s.refs > 1 {
		return nil, jlerrors.InUse("into inner")
	}
	v.s.released = true
	v.s.eng.Unroot(p)
	return p, nil
}

// protected runs f at an engine boundary and converts a guest fault into
// a host error carrying the classified exception.
func protected(eng *engine.Engine, op string, f func() layout.Ptr) (Value, error) {
	res := eng.Protect(f)
	if res == nil {
		if ex, ok := Catch(eng); ok {
			return Value{}, jlerrors.Unhandled(op, ex)
		}
		return Value{}, jlerrors.CallError(op)
	}
	return NewUnchecked(eng, res), nil
}

// TypeName returns the name of the value's dynamic type.
func (v Value) TypeName() (string, error) {
	p, err := v.raw("type name")
	if err != nil {
		return "", err
	}
	return v.s.eng.TypeNameString(p), nil
}

// DataType returns the value's dynamic type as a handle.
func (v Value) DataType() (DataType, error) {
	p, err := v.raw("datatype")
	if err != nil {
		return DataType{}, err
	}
	return DataType{NewUnchecked(v.s.eng, layout.TypeOf(p))}, nil
}

// Get reads the named field. An unknown field name fails with an
// invalid-symbol error before touching the guest.
func (v Value) Get(field string) (Value, error) {
	p, err := v.raw("get field")
	if err != nil {
		return Value{}, err
	}
	eng := v.s.eng
	i := eng.FieldIndex(layout.TypeOf(p), eng.Symbol(field))
	if i < 0 {
		return Value{}, jlerrors.InvalidSymbol(field)
	}
	return protected(eng, "get field", func() layout.Ptr {
		return eng.GetNthField(p, i)
	})
}

// Set writes the named field.
func (v Value) Set(field string, x Value) error {
	p, err := v.raw("set field")
	if err != nil {
		return err
	}
	xp, err := x.raw("set field")
	if err != nil {
		return err
	}
	eng := v.s.eng
	i := eng.FieldIndex(layout.TypeOf(p), eng.Symbol(field))
	if i < 0 {
		return jlerrors.InvalidSymbol(field)
	}
	_, err = protected(eng, "set field", func() layout.Ptr {
		eng.SetNthField(p, i, xp)
		return p
	})
	return err
}

// AddFinalizer runs f with the value when it is collected.
func (v Value) AddFinalizer(f Function) error {
	p, err := v.raw("add finalizer")
	if err != nil {
		return err
	}
	fp, err := f.raw("add finalizer")
	if err != nil {
		return err
	}
	v.s.eng.AddFinalizer(p, fp)
	return nil
}

// Finalize runs the value's finalizers immediately.
func (v Value) Finalize() error {
	p, err := v.raw("finalize")
	if err != nil {
		return err
	}
	v.s.eng.Finalize(p)
	return nil
}

// String renders the value with the guest's own string conversion,
// falling back to the engine's printer when the handle is dead or the
// conversion faults.
func (v Value) String() string {
	p, err := v.raw("string")
	if err != nil {
		return "#<dead value>"
	}
	eng := v.s.eng
	strFn := eng.GetFunction(eng.BaseModule(), "string")
	if strFn != nil {
		if res := eng.Call1(strFn, p); res != nil {
			return eng.UnboxString(res)
		}
		eng.ExceptionClear()
	}
	return eng.ShowString(p)
}

// Predicates. Each reports on the dynamic type of the underlying object
// and is false for a dead handle.

func (v Value) is(tag layout.SmallTag) bool {
	p, err := v.raw("predicate")
	if err != nil {
		return false
	}
	return layout.TypeTagIs(p, uintptr(tag)<<4)
}

func (v Value) isCore(name string) bool {
	p, err := v.raw("predicate")
	if err != nil {
		return false
	}
	eng := v.s.eng
	t := eng.GetGlobal(eng.CoreModule(), eng.Symbol(name))
	return t != nil && layout.TypeIs(p, t)
}

// IsNothing reports whether the value is the nothing singleton.
func (v Value) IsNothing() bool {
	p, err := v.raw("predicate")
	if err != nil {
		return false
	}
	return p == v.s.eng.Nothing()
}

// IsBool reports a boxed Bool.
func (v Value) IsBool() bool { return v.is(layout.TagBool) }

// IsChar reports a boxed Char.
func (v Value) IsChar() bool { return v.is(layout.TagChar) }

// IsInt8 reports a boxed Int8.
func (v Value) IsInt8() bool { return v.is(layout.TagInt8) }

// IsInt16 reports a boxed Int16.
func (v Value) IsInt16() bool { return v.is(layout.TagInt16) }

// IsInt32 reports a boxed Int32.
func (v Value) IsInt32() bool { return v.is(layout.TagInt32) }

// IsInt64 reports a boxed Int64.
func (v Value) IsInt64() bool { return v.is(layout.TagInt64) }

// IsUint8 reports a boxed UInt8.
func (v Value) IsUint8() bool { return v.is(layout.TagUint8) }

// IsUint16 reports a boxed UInt16.
func (v Value) IsUint16() bool { return v.is(layout.TagUint16) }

// IsUint32 reports a boxed UInt32.
func (v Value) IsUint32() bool { return v.is(layout.TagUint32) }

// IsUint64 reports a boxed UInt64.
func (v Value) IsUint64() bool { return v.is(layout.TagUint64) }

// IsFloat32 reports a boxed Float32.
func (v Value) IsFloat32() bool { return v.is(layout.TagFloat32) }

// IsFloat64 reports a boxed Float64.
func (v Value) IsFloat64() bool { return v.is(layout.TagFloat64) }

// IsNumber reports any boxed numeric value.
func (v Value) IsNumber() bool {
	p, err := v.raw("predicate")
	if err != nil {
		return false
	}
	eng := v.s.eng
	t := eng.GetGlobal(eng.CoreModule(), eng.Symbol("Number"))
	return t != nil && eng.Isa(p, t)
}

// IsString reports a guest string.
func (v Value) IsString() bool { return v.is(layout.TagString) }

// IsSymbol reports a symbol.
func (v Value) IsSymbol() bool { return v.is(layout.TagSymbol) }

// IsSvec reports a simple vector.
func (v Value) IsSvec() bool { return v.is(layout.TagSimpleVector) }

// IsModule reports a module.
func (v Value) IsModule() bool { return v.is(layout.TagModule) }

// IsTask reports a task.
func (v Value) IsTask() bool { return v.is(layout.TagTask) }

// IsDataType reports a datatype object.
func (v Value) IsDataType() bool { return v.is(layout.TagDataType) }

// IsExpr reports a syntax object.
func (v Value) IsExpr() bool { return v.isCore("Expr") }

// IsArray reports an array.
func (v Value) IsArray() bool {
	p, err := v.raw("predicate")
	if err != nil {
		return false
	}
	return v.s.eng.IsArray(p)
}

// IsFunction reports a function object.
func (v Value) IsFunction() bool { return v.isCore("Function") }

// IsCallable reports whether the value can sit in call position.
func (v Value) IsCallable() bool {
	p, err := v.raw("predicate")
	if err != nil {
		return false
	}
	return v.s.eng.IsCallable(p)
}

// Isa reports whether the value is an instance of t or of a subtype.
func (v Value) Isa(t DataType) bool {
	p, err := v.raw("predicate")
	if err != nil {
		return false
	}
	tp, err := t.raw("predicate")
	if err != nil {
		return false
	}
	return v.s.eng.Isa(p, tp)
}
