package value

import (
	"errors"
	"testing"

	"github.com/wippyai/julia-runtime/engine"
	jlerrors "github.com/wippyai/julia-runtime/errors"
	"github.com/wippyai/julia-runtime/layout"
)

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng := engine.NewUnchecked(engine.DefaultOptions())
	t.Cleanup(func() { eng.Shutdown(0) })
	return eng
}

func mustEval(t *testing.T, eng *engine.Engine, src string) Value {
	t.Helper()
	p := eng.EvalString(src)
	if ex, ok := Catch(eng); ok {
		t.Fatalf("eval %q faulted: %v", src, ex)
	}
	if p == nil {
		t.Fatalf("eval %q returned nil", src)
	}
	return NewUnchecked(eng, p)
}

func TestDefineAndCallRoundTrip(t *testing.T) {
	eng := testEngine(t)
	mustEval(t, eng, "f(x) = x * 2 - 1").Drop()

	f, err := MainModule(eng).Function("f")
	if err != nil {
		t.Fatalf("Function(f): %v", err)
	}
	res, err := f.Call1(Float64(eng, 3.0))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	got, err := res.Float64()
	if err != nil {
		t.Fatalf("unbox: %v", err)
	}
	if got != 5.0 {
		t.Errorf("f(3.0) = %v, want 5.0", got)
	}
}

func TestCallArityHelpers(t *testing.T) {
	eng := testEngine(t)
	mustEval(t, eng, "g0() = 7\ng1(a) = a\ng2(a, b) = a + b\ng3(a, b, c) = a + b + c").Drop()
	main := MainModule(eng)
	one := Int64(eng, 1)

	cases := []struct {
		name string
		call func(f Function) (Value, error)
		want int64
	}{
		{"g0", func(f Function) (Value, error) { return f.Call0() }, 7},
		{"g1", func(f Function) (Value, error) { return f.Call1(one) }, 1},
		{"g2", func(f Function) (Value, error) { return f.Call2(one, one) }, 2},
		{"g3", func(f Function) (Value, error) { return f.Call3(one, one, one) }, 3},
	}
	for _, tc := range cases {
		f, err := main.Function(tc.name)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		res, err := tc.call(f)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		got, err := res.Int64()
		if err != nil || got != tc.want {
			t.Errorf("%s = %v, %v, want %d", tc.name, got, err, tc.want)
		}

		// The generic variadic path dispatches identically.
		args := make([]Value, 0, 3)
		for i := 0; i < int(tc.want); i++ {
			args = append(args, one)
		}
		if tc.name == "g0" {
			args = nil
		}
		generic, err := f.Call(args...)
		if err != nil {
			t.Fatalf("%s generic: %v", tc.name, err)
		}
		g, _ := generic.Int64()
		if g != tc.want {
			t.Errorf("%s generic = %v, want %d", tc.name, g, tc.want)
		}
	}
}

func TestParseErrorClassified(t *testing.T) {
	eng := testEngine(t)
	if p := eng.EvalString("1 +"); p != nil {
		t.Fatal("broken input evaluated")
	}
	ex, ok := Catch(eng)
	if !ok {
		t.Fatal("no exception pending")
	}
	if ex.Kind != Parse {
		t.Errorf("kind = %v, want Parse", ex.Kind)
	}
	if Occurred(eng) {
		t.Error("pending slot not cleared by Catch")
	}
}

func TestCatchClearsSlot(t *testing.T) {
	eng := testEngine(t)
	eng.EvalString("error(\"boom\")")
	ex, ok := Catch(eng)
	if !ok {
		t.Fatal("no exception pending")
	}
	if ex.Kind != Generic {
		t.Errorf("kind = %v, want Generic", ex.Kind)
	}
	if ex.Message != "boom" {
		t.Errorf("message = %q, want %q", ex.Message, "boom")
	}
	if _, ok := Catch(eng); ok {
		t.Error("second Catch found an exception")
	}
}

func TestClassification(t *testing.T) {
	cases := []struct {
		src  string
		kind Kind
	}{
		{"undefined_name", UndefVar},
		{"sqrt(-1.0)", Domain},
		{"div(1, 0)", Divide},
		{"1 + \"x\"", Method},
		{"if 1\nend", Type},
		{"throw(42)", Unknown},
	}
	for _, tc := range cases {
		eng := engine.NewUnchecked(engine.DefaultOptions())
		eng.EvalString(tc.src)
		ex, ok := Catch(eng)
		if !ok {
			t.Errorf("%q: no exception", tc.src)
			eng.Shutdown(0)
			continue
		}
		if ex.Kind != tc.kind {
			t.Errorf("%q: kind = %v (%s), want %v", tc.src, ex.Kind, ex.TypeName, tc.kind)
		}
		eng.Shutdown(0)
	}
}

func TestKindDescriptions(t *testing.T) {
	if got := Argument.Description(); got != "the parameters to a function call do not match a valid signature" {
		t.Errorf("Argument description = %q", got)
	}
	if got := Unknown.Description(); got != "unknown exception" {
		t.Errorf("Unknown description = %q", got)
	}
	if KindOf("BoundsError") != Bounds {
		t.Error("KindOf(BoundsError) != Bounds")
	}
	if KindOf("MyError") != Unknown {
		t.Error("unknown type name did not map to Unknown")
	}
}

func TestCloneSharesSlot(t *testing.T) {
	eng := testEngine(t)
	v := Str(eng, "shared")
	c := v.Clone()
	v.Drop()

	got, err := c.Str()
	if err != nil {
		t.Fatalf("clone dead after sibling drop: %v", err)
	}
	if got != "shared" {
		t.Errorf("Str = %q", got)
	}
	c.Drop()
	if _, err := c.Str(); err == nil {
		t.Error("access after final drop succeeded")
	}
}

func TestIntoInnerRequiresSoleOwner(t *testing.T) {
	eng := testEngine(t)
	v := Int64(eng, 7)
	c := v.Clone()
	if _, err := v.IntoInner(); err == nil {
		t.Fatal("IntoInner succeeded with a live clone")
	} else {
		var je *jlerrors.Error
		if !errors.As(err, &je) || je.Kind != jlerrors.KindInUse {
			t.Errorf("err = %v, want in-use", err)
		}
	}
	c.Drop()
	p, err := v.IntoInner()
	if err != nil {
		t.Fatalf("sole-owner IntoInner: %v", err)
	}
	if p == nil {
		t.Fatal("IntoInner returned nil pointer")
	}
	if _, err := v.Int64(); err == nil {
		t.Error("handle still live after IntoInner")
	}
}

func TestWithHoldsPointer(t *testing.T) {
	eng := testEngine(t)
	v := Int64(eng, 3)
	err := v.With(func(p layout.Ptr) error {
		if got := eng.UnboxInt64(p); got != 3 {
			t.Errorf("raw unbox = %v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("With: %v", err)
	}
	// Reusable after a clean With.
	if _, err := v.Int64(); err != nil {
		t.Errorf("handle unusable after With: %v", err)
	}
}

func TestPoisonIsSticky(t *testing.T) {
	eng := testEngine(t)
	v := Int64(eng, 1)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("panic did not propagate out of With")
			}
		}()
		v.With(func(layout.Ptr) error { panic("torn") })
	}()

	if _, err := v.Lock(); err == nil {
		t.Fatal("Lock succeeded on poisoned slot")
	} else {
		var je *jlerrors.Error
		if !errors.As(err, &je) || je.Kind != jlerrors.KindPoisoned {
			t.Errorf("err = %v, want poisoned", err)
		}
	}
	if _, err := v.Int64(); err == nil {
		t.Error("unbox succeeded on poisoned slot")
	}
	c := v.Clone()
	if _, err := c.Int64(); err == nil {
		t.Error("clone of poisoned slot readable")
	}
}

func TestUnboxStrictness(t *testing.T) {
	eng := testEngine(t)
	v := Int64(eng, 42)

	if got, err := v.Int64(); err != nil || got != 42 {
		t.Errorf("Int64 = %v, %v", got, err)
	}
	if _, err := v.Float64(); err == nil {
		t.Error("Float64 unbox of Int64 succeeded")
	} else {
		var je *jlerrors.Error
		if !errors.As(err, &je) || je.Kind != jlerrors.KindInvalidUnbox {
			t.Errorf("err = %v, want invalid-unbox", err)
		}
	}
	if !v.IsInt64() || v.IsFloat64() {
		t.Error("predicates disagree with tag")
	}
}

func TestBoxRoundTrips(t *testing.T) {
	eng := testEngine(t)
	if got, err := Bool(eng, true).Bool(); err != nil || !got {
		t.Errorf("Bool = %v, %v", got, err)
	}
	if got, err := Int8(eng, -5).Int8(); err != nil || got != -5 {
		t.Errorf("Int8 = %v, %v", got, err)
	}
	if got, err := Uint64(eng, 1<<63).Uint64(); err != nil || got != 1<<63 {
		t.Errorf("Uint64 = %v, %v", got, err)
	}
	if got, err := Float32(eng, 1.5).Float32(); err != nil || got != 1.5 {
		t.Errorf("Float32 = %v, %v", got, err)
	}
	if got, err := Char(eng, 'λ').Char(); err != nil || got != 'λ' {
		t.Errorf("Char = %v, %v", got, err)
	}
	if got, err := Str(eng, "héllo").Str(); err != nil || got != "héllo" {
		t.Errorf("Str = %v, %v", got, err)
	}
	if !Nothing(eng).IsNothing() {
		t.Error("Nothing() not nothing")
	}
}

func TestFieldAccess(t *testing.T) {
	eng := testEngine(t)
	mustEval(t, eng, "mutable struct Pt\n  x::Float64\n  y::Float64\nend").Drop()
	p := mustEval(t, eng, "Pt(1.0, 2.0)")

	x, err := p.Get("x")
	if err != nil {
		t.Fatalf("Get(x): %v", err)
	}
	if got, _ := x.Float64(); got != 1.0 {
		t.Errorf("x = %v", got)
	}
	if err := p.Set("y", Float64(eng, 9.0)); err != nil {
		t.Fatalf("Set(y): %v", err)
	}
	y, _ := p.Get("y")
	if got, _ := y.Float64(); got != 9.0 {
		t.Errorf("y = %v after set", got)
	}
	if _, err := p.Get("z"); err == nil {
		t.Error("Get of missing field succeeded")
	} else {
		var je *jlerrors.Error
		if !errors.As(err, &je) || je.Kind != jlerrors.KindInvalidSymbol {
			t.Errorf("err = %v, want invalid-symbol", err)
		}
	}
}

func TestCallFaultBecomesError(t *testing.T) {
	eng := testEngine(t)
	mustEval(t, eng, "g(x) = sqrt(x)").Drop()
	f, err := MainModule(eng).Function("g")
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.Call1(Float64(eng, -4.0))
	if err == nil {
		t.Fatal("faulting call returned no error")
	}
	var je *jlerrors.Error
	if !errors.As(err, &je) || je.Kind != jlerrors.KindUnhandledException {
		t.Fatalf("err = %v, want unhandled-exception", err)
	}
	var ex *Exception
	if !errors.As(err, &ex) || ex.Kind != Domain {
		t.Errorf("wrapped exception = %v, want DomainError", err)
	}
	if Occurred(eng) {
		t.Error("pending slot not cleared after failed call")
	}
}

func TestModuleBindings(t *testing.T) {
	eng := testEngine(t)
	m := MainModule(eng)
	if name, _ := m.Name(); name != "Main" {
		t.Errorf("name = %q", name)
	}
	if err := m.SetGlobal("answer", Int64(eng, 42)); err != nil {
		t.Fatal(err)
	}
	g, err := m.Global("answer")
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := g.Int64(); got != 42 {
		t.Errorf("answer = %v", got)
	}
	if _, err := m.Global("missing"); err == nil {
		t.Error("missing global resolved")
	}
	if _, err := m.Function("answer"); err == nil {
		t.Error("non-callable binding returned as function")
	}
}

func TestDataTypeView(t *testing.T) {
	eng := testEngine(t)
	intT, err := AsDataType(mustEval(t, eng, "Int64"))
	if err != nil {
		t.Fatal(err)
	}
	if name, _ := intT.Name(); name != "Int64" {
		t.Errorf("name = %q", name)
	}
	if !intT.IsPrimitive() || intT.IsAbstract() {
		t.Error("Int64 flags wrong")
	}
	if size, _ := intT.Size(); size != 8 {
		t.Errorf("size = %d", size)
	}
	numT, _ := AsDataType(mustEval(t, eng, "Number"))
	if !intT.Subtype(numT) {
		t.Error("Int64 not <: Number")
	}
	if numT.Subtype(intT) {
		t.Error("Number <: Int64")
	}
	v := Int64(eng, 1)
	if !v.Isa(numT) {
		t.Error("1 not isa Number")
	}
}

func TestExprView(t *testing.T) {
	eng := testEngine(t)
	raw := eng.ParseString("x + 1")
	if raw == nil {
		t.Fatal("parse failed")
	}
	x, err := AsExpr(NewUnchecked(eng, raw))
	if err != nil {
		t.Fatal(err)
	}
	head, _ := x.Head()
	if name, _ := head.Name(); name != "call" {
		t.Errorf("head = %q", name)
	}
	n, _ := x.NArgs()
	if n != 3 {
		t.Fatalf("nargs = %d", n)
	}

	MainModule(eng).SetGlobal("x", Int64(eng, 41))
	res, err := x.Eval(MainModule(eng))
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if got, _ := res.Int64(); got != 42 {
		t.Errorf("eval = %v", got)
	}
}

func TestArrayView(t *testing.T) {
	eng := testEngine(t)
	f64, _ := AsDataType(mustEval(t, eng, "Float64"))
	a, err := NewArray(eng, f64, 3)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := a.Len(); n != 3 {
		t.Fatalf("len = %d", n)
	}
	if err := a.Set(0, Float64(eng, 2.5)); err != nil {
		t.Fatal(err)
	}
	e, err := a.Ref(0)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := e.Float64(); got != 2.5 {
		t.Errorf("a[0] = %v", got)
	}
	if err := a.Set(1, Int64(eng, 1)); err == nil {
		t.Error("eltype mismatch store succeeded")
	}
	if _, err := a.Ref(9); err == nil {
		t.Error("out-of-bounds read succeeded")
	}
}

func TestSvecView(t *testing.T) {
	eng := testEngine(t)
	s, err := NewSvec(eng, Int64(eng, 1), Str(eng, "two"))
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Len(); n != 2 {
		t.Fatalf("len = %d", n)
	}
	e, _ := s.Ref(1)
	if got, _ := e.Str(); got != "two" {
		t.Errorf("s[1] = %q", got)
	}
	if _, err := s.Ref(5); err == nil {
		t.Error("out-of-bounds svec read succeeded")
	}
}

func TestTypeBuilder(t *testing.T) {
	eng := testEngine(t)
	f64, _ := AsDataType(mustEval(t, eng, "Float64"))

	pt, err := NewType(eng, "Vec2").
		Mutable().
		Field("x", f64).
		Field("y", f64).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if n, _ := pt.NFields(); n != 2 {
		t.Errorf("nfields = %d", n)
	}
	inst, err := pt.New(Float64(eng, 1.0), Float64(eng, 2.0))
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	x, _ := inst.Get("x")
	if got, _ := x.Float64(); got != 1.0 {
		t.Errorf("x = %v", got)
	}

	res := mustEval(t, eng, "v = Vec2(3.0, 4.0)\nv.x + v.y")
	if got, _ := res.Float64(); got != 7.0 {
		t.Errorf("guest saw Vec2 as %v, want 7.0", got)
	}
}

func TestTypeBuilderAbstractRejectsFields(t *testing.T) {
	eng := testEngine(t)
	f64, _ := AsDataType(mustEval(t, eng, "Float64"))
	_, err := NewType(eng, "Shape").Abstract().Field("x", f64).Build()
	if err == nil {
		t.Fatal("abstract type with fields built")
	}
}

func TestSymbolView(t *testing.T) {
	eng := testEngine(t)
	a := NewSymbol(eng, "foo")
	b := NewSymbol(eng, "foo")
	if a.Ptr() != b.Ptr() {
		t.Error("symbols not interned")
	}
	if name, _ := a.Name(); name != "foo" {
		t.Errorf("name = %q", name)
	}
	if _, err := AsSymbol(Int64(eng, 1)); err == nil {
		t.Error("AsSymbol accepted an Int64")
	}
}

func TestStringRendering(t *testing.T) {
	eng := testEngine(t)
	if got := Float64(eng, 5.0).String(); got != "5.0" {
		t.Errorf("String() = %q", got)
	}
	v := Int64(eng, 1)
	v.Drop()
	if got := v.String(); got != "#<dead value>" {
		t.Errorf("dead String() = %q", got)
	}
}

func TestNewRejectsNil(t *testing.T) {
	eng := testEngine(t)
	if _, err := New(eng, nil); err == nil {
		t.Fatal("New(nil) succeeded")
	} else {
		var je *jlerrors.Error
		if !errors.As(err, &je) || je.Kind != jlerrors.KindNullPointer {
			t.Errorf("err = %v, want null-pointer", err)
		}
	}
}

func TestHandleRootsAgainstCollection(t *testing.T) {
	eng := testEngine(t)
	v := Str(eng, "survivor")
	eng.GCCollect()
	if got, err := v.Str(); err != nil || got != "survivor" {
		t.Errorf("after collect: %v, %v", got, err)
	}
	v.Drop()
}
