package value

import (
	"github.com/wippyai/julia-runtime/engine"
	jlerrors "github.com/wippyai/julia-runtime/errors"
	"github.com/wippyai/julia-runtime/layout"
)

// Typed views. Each embeds Value, so a view carries the full handle
// protocol and converts back with AsValue. The AsX constructors check
// the dynamic type once; after that the view's accessors trust it.
//
// Constructing a view literal directly (Function{v}) skips the check.
// That is the unchecked reinterpretation path: the caller asserts the
// dynamic type genuinely matches.

// Function is a handle known to be callable.
type Function struct {
	Value
}

// AsFunction converts a generic handle into a function view.
func AsFunction(v Value) (Function, error) {
	if !v.IsCallable() {
		name, _ := v.TypeName()
		return Function{}, jlerrors.NotAFunction(name)
	}
	return Function{v}, nil
}

// AsValue returns the underlying generic handle.
func (f Function) AsValue() Value { return f.Value }

// Name returns the function's registered name, or "" for anonymous and
// type-constructor callables.
func (f Function) Name() string {
	p, err := f.raw("function name")
	if err != nil {
		return ""
	}
	return f.s.eng.FunctionName(p)
}

// Call invokes the function. A guest fault comes back as an unhandled
// error wrapping the classified exception; the pending slot is left
// clear.
func (f Function) Call(args ...Value) (Value, error) {
	p, err := f.raw("call")
	if err != nil {
		return Value{}, err
	}
	raw := make([]layout.Ptr, len(args))
	for i, a := range args {
		ap, err := a.raw("call")
		if err != nil {
			return Value{}, err
		}
		raw[i] = ap
	}
	return callChecked(f.s.eng, func() layout.Ptr {
		return f.s.eng.Call(p, raw...)
	})
}

// Call0 invokes with no arguments.
func (f Function) Call0() (Value, error) { return f.Call() }

// Call1 invokes with one argument.
func (f Function) Call1(a Value) (Value, error) { return f.Call(a) }

// Call2 invokes with two arguments.
func (f Function) Call2(a, b Value) (Value, error) { return f.Call(a, b) }

// Call3 invokes with three arguments.
func (f Function) Call3(a, b, c Value) (Value, error) { return f.Call(a, b, c) }

// callChecked runs a guest entry and converts a pending exception into a
// host error.
func callChecked(eng *engine.Engine, f func() layout.Ptr) (Value, error) {
	res := f()
	if ex, ok := Catch(eng); ok {
		return Value{}, jlerrors.Unhandled("call", ex)
	}
	if res == nil {
		return Value{}, jlerrors.CallError("call")
	}
	return NewUnchecked(eng, res), nil
}

// Symbol is a handle to an interned symbol.
type Symbol struct {
	Value
}

// NewSymbol interns name and returns a handle to it.
func NewSymbol(eng *engine.Engine, name string) Symbol {
	return Symbol{NewUnchecked(eng, eng.Symbol(name))}
}

// AsSymbol converts a generic handle into a symbol view.
func AsSymbol(v Value) (Symbol, error) {
	if !v.IsSymbol() {
		name, _ := v.TypeName()
		return Symbol{}, jlerrors.InvalidUnbox("Symbol", name)
	}
	return Symbol{v}, nil
}

// AsValue returns the underlying generic handle.
func (s Symbol) AsValue() Value { return s.Value }

// Name returns the symbol's text.
func (s Symbol) Name() (string, error) {
	p, err := s.raw("symbol name")
	if err != nil {
		return "", err
	}
	return layout.SymbolName(p), nil
}

// Expr is a handle to a syntax object.
type Expr struct {
	Value
}

// AsExpr converts a generic handle into an expression view.
func AsExpr(v Value) (Expr, error) {
	if !v.IsExpr() {
		name, _ := v.TypeName()
		return Expr{}, jlerrors.InvalidUnbox("Expr", name)
	}
	return Expr{v}, nil
}

// AsValue returns the underlying generic handle.
func (x Expr) AsValue() Value { return x.Value }

// Head returns the expression's head symbol.
func (x Expr) Head() (Symbol, error) {
	p, err := x.raw("expr head")
	if err != nil {
		return Symbol{}, err
	}
	return Symbol{NewUnchecked(x.s.eng, layout.ExprHead(p))}, nil
}

// NArgs returns the number of argument slots.
func (x Expr) NArgs() (int, error) {
	p, err := x.raw("expr nargs")
	if err != nil {
		return 0, err
	}
	return int(layout.ExprNArgs(p)), nil
}

// Arg returns the i'th argument.
func (x Expr) Arg(i int) (Value, error) {
	p, err := x.raw("expr arg")
	if err != nil {
		return Value{}, err
	}
	if i < 0 || i >= int(layout.ExprNArgs(p)) {
		return Value{}, jlerrors.Newf(jlerrors.KindEval, "expr arg", "argument %d out of range", i)
	}
	return NewUnchecked(x.s.eng, layout.ExprArg(p, uintptr(i))), nil
}

// Eval evaluates the expression in a module.
func (x Expr) Eval(mod Module) (Value, error) {
	p, err := x.raw("eval expr")
	if err != nil {
		return Value{}, err
	}
	mp, err := mod.raw("eval expr")
	if err != nil {
		return Value{}, err
	}
	return callChecked(x.s.eng, func() layout.Ptr {
		return x.s.eng.EvalExpr(p, mp)
	})
}

// DataType is a handle to a type object.
type DataType struct {
	Value
}

// AsDataType converts a generic handle into a type view.
func AsDataType(v Value) (DataType, error) {
	if !v.IsDataType() {
		name, _ := v.TypeName()
		return DataType{}, jlerrors.InvalidUnbox("DataType", name)
	}
	return DataType{v}, nil
}

// AsValue returns the underlying generic handle.
func (t DataType) AsValue() Value { return t.Value }

// Name returns the type's name.
func (t DataType) Name() (string, error) {
	p, err := t.raw("type name")
	if err != nil {
		return "", err
	}
	return t.s.eng.DataTypeName(p), nil
}

// Super returns the declared supertype.
func (t DataType) Super() (DataType, error) {
	p, err := t.raw("supertype")
	if err != nil {
		return DataType{}, err
	}
	super := layout.SuperType(p)
	if super == nil {
		super = p
	}
	return DataType{NewUnchecked(t.s.eng, super)}, nil
}

// Size returns the byte size of instances, 0 for abstract types.
func (t DataType) Size() (int, error) {
	p, err := t.raw("type size")
	if err != nil {
		return 0, err
	}
	return int(layout.DataTypeSize(p)), nil
}

// NFields returns the declared field count.
func (t DataType) NFields() (int, error) {
	p, err := t.raw("nfields")
	if err != nil {
		return 0, err
	}
	return t.s.eng.NFields(p), nil
}

// IsAbstract reports whether the type is abstract.
func (t DataType) IsAbstract() bool {
	p, err := t.raw("predicate")
	if err != nil {
		return false
	}
	return layout.IsAbstractType(p)
}

// IsMutable reports whether instances are mutable.
func (t DataType) IsMutable() bool {
	p, err := t.raw("predicate")
	if err != nil {
		return false
	}
	return layout.IsMutableType(p)
}

// IsPrimitive reports whether the type is a primitive bits type.
func (t DataType) IsPrimitive() bool {
	p, err := t.raw("predicate")
	if err != nil {
		return false
	}
	return layout.IsPrimitiveType(p)
}

// Subtype reports whether t <: other.
func (t DataType) Subtype(other DataType) bool {
	p, err := t.raw("predicate")
	if err != nil {
		return false
	}
	op, err := other.raw("predicate")
	if err != nil {
		return false
	}
	return t.s.eng.Subtype(p, op)
}

// New constructs an instance from field values.
func (t DataType) New(args ...Value) (Value, error) {
	p, err := t.raw("construct")
	if err != nil {
		return Value{}, err
	}
	raw := make([]layout.Ptr, len(args))
	for i, a := range args {
		ap, err := a.raw("construct")
		if err != nil {
			return Value{}, err
		}
		raw[i] = ap
	}
	return callChecked(t.s.eng, func() layout.Ptr {
		return t.s.eng.Call(p, raw...)
	})
}

// Array is a handle to a one-dimensional array.
type Array struct {
	Value
}

// NewArray allocates a vector of n elements of eltype, initialized to
// nothing.
func NewArray(eng *engine.Engine, eltype DataType, n int) (Array, error) {
	tp, err := eltype.raw("new array")
	if err != nil {
		return Array{}, err
	}
	v, err := protected(eng, "new array", func() layout.Ptr {
		return eng.AllocVector(tp, n)
	})
	if err != nil {
		return Array{}, err
	}
	return Array{v}, nil
}

// AsArray converts a generic handle into an array view.
func AsArray(v Value) (Array, error) {
	if !v.IsArray() {
		name, _ := v.TypeName()
		return Array{}, jlerrors.InvalidUnbox("Array", name)
	}
	return Array{v}, nil
}

// AsValue returns the underlying generic handle.
func (a Array) AsValue() Value { return a.Value }

// Len returns the element count.
func (a Array) Len() (int, error) {
	p, err := a.raw("array len")
	if err != nil {
		return 0, err
	}
	return a.s.eng.ArrayLen(p), nil
}

// Eltype returns the declared element type.
func (a Array) Eltype() (DataType, error) {
	p, err := a.raw("array eltype")
	if err != nil {
		return DataType{}, err
	}
	return DataType{NewUnchecked(a.s.eng, a.s.eng.ArrayEltype(p))}, nil
}

// Ref returns the element at index i (0-based).
func (a Array) Ref(i int) (Value, error) {
	p, err := a.raw("array ref")
	if err != nil {
		return Value{}, err
	}
	return protected(a.s.eng, "array ref", func() layout.Ptr {
		return a.s.eng.ArrayRef(p, i)
	})
}

// Set stores x at index i (0-based).
func (a Array) Set(i int, x Value) error {
	p, err := a.raw("array set")
	if err != nil {
		return err
	}
	xp, err := x.raw("array set")
	if err != nil {
		return err
	}
	_, err = protected(a.s.eng, "array set", func() layout.Ptr {
		a.s.eng.ArraySet(p, i, xp)
		return p
	})
	return err
}

// Svec is a handle to a simple vector.
type Svec struct {
	Value
}

// NewSvec builds a simple vector from elements.
func NewSvec(eng *engine.Engine, elems ...Value) (Svec, error) {
	raw := make([]layout.Ptr, len(elems))
	for i, e := range elems {
		p, err := e.raw("new svec")
		if err != nil {
			return Svec{}, err
		}
		raw[i] = p
	}
	return Svec{NewUnchecked(eng, eng.MakeSvec(raw...))}, nil
}

// AsSvec converts a generic handle into a simple-vector view.
func AsSvec(v Value) (Svec, error) {
	if !v.IsSvec() {
		name, _ := v.TypeName()
		return Svec{}, jlerrors.InvalidUnbox("SimpleVector", name)
	}
	return Svec{v}, nil
}

// AsValue returns the underlying generic handle.
func (s Svec) AsValue() Value { return s.Value }

// Len returns the element count.
func (s Svec) Len() (int, error) {
	p, err := s.raw("svec len")
	if err != nil {
		return 0, err
	}
	return int(layout.SvecLen(p)), nil
}

// Ref returns the element at index i (0-based).
func (s Svec) Ref(i int) (Value, error) {
	p, err := s.raw("svec ref")
	if err != nil {
		return Value{}, err
	}
	if i < 0 || i >= int(layout.SvecLen(p)) {
		return Value{}, jlerrors.Newf(jlerrors.KindEval, "svec ref", "index %d out of range", i)
	}
	return NewUnchecked(s.s.eng, layout.SvecRef(p, uintptr(i))), nil
}

// Set stores x at index i (0-based), with the store barrier.
func (s Svec) Set(i int, x Value) error {
	p, err := s.raw("svec set")
	if err != nil {
		return err
	}
	xp, err := x.raw("svec set")
	if err != nil {
		return err
	}
	_, err = protected(s.s.eng, "svec set", func() layout.Ptr {
		s.s.eng.SvecSet(p, i, xp)
		return p
	})
	return err
}

// Task is a handle to a task object.
type Task struct {
	Value
}

// CurrentTask returns the engine's root task.
func CurrentTask(eng *engine.Engine) Task {
	return Task{NewUnchecked(eng, eng.CurrentTask())}
}

// AsTask converts a generic handle into a task view.
func AsTask(v Value) (Task, error) {
	if !v.IsTask() {
		name, _ := v.TypeName()
		return Task{}, jlerrors.InvalidUnbox("Task", name)
	}
	return Task{v}, nil
}

// AsValue returns the underlying generic handle.
func (t Task) AsValue() Value { return t.Value }

// Module is a handle to a module.
type Module struct {
	Value
}

// MainModule returns a handle to Main.
func MainModule(eng *engine.Engine) Module {
	return Module{NewUnchecked(eng, eng.MainModule())}
}

// CoreModule returns a handle to Core.
func CoreModule(eng *engine.Engine) Module {
	return Module{NewUnchecked(eng, eng.CoreModule())}
}

// BaseModule returns a handle to Base.
func BaseModule(eng *engine.Engine) Module {
	return Module{NewUnchecked(eng, eng.BaseModule())}
}

// AsModule converts a generic handle into a module view.
func AsModule(v Value) (Module, error) {
	if !v.IsModule() {
		name, _ := v.TypeName()
		return Module{}, jlerrors.InvalidUnbox("Module", name)
	}
	return Module{v}, nil
}

// AsValue returns the underlying generic handle.
func (m Module) AsValue() Value { return m.Value }

// Name returns the module's name.
func (m Module) Name() (string, error) {
	p, err := m.raw("module name")
	if err != nil {
		return "", err
	}
	return m.s.eng.ModuleNameString(p), nil
}

// Global looks up a binding, following the module's lookup chain.
func (m Module) Global(name string) (Value, error) {
	p, err := m.raw("get global")
	if err != nil {
		return Value{}, err
	}
	eng := m.s.eng
	g := eng.GetGlobal(p, eng.Symbol(name))
	if g == nil {
		return Value{}, jlerrors.InvalidSymbol(name)
	}
	return NewUnchecked(eng, g), nil
}

// SetGlobal binds name to x in the module.
func (m Module) SetGlobal(name string, x Value) error {
	p, err := m.raw("set global")
	if err != nil {
		return err
	}
	xp, err := x.raw("set global")
	if err != nil {
		return err
	}
	eng := m.s.eng
	eng.SetGlobal(p, eng.Symbol(name), xp)
	return nil
}

// Function looks up a callable binding by name.
func (m Module) Function(name string) (Function, error) {
	p, err := m.raw("get function")
	if err != nil {
		return Function{}, err
	}
	eng := m.s.eng
	f := eng.GetFunction(p, name)
	if f == nil {
		return Function{}, jlerrors.NotAFunction(name)
	}
	return Function{NewUnchecked(eng, f)}, nil
}
