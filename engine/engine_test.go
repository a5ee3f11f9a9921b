package engine

import (
	"strings"
	"testing"
	"unsafe"

	"github.com/wippyai/julia-runtime/layout"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewUnchecked(DefaultOptions())
	t.Cleanup(func() { e.Shutdown(0) })
	return e
}

func mustEval(t *testing.T, e *Engine, src string) layout.Ptr {
	t.Helper()
	v := e.EvalString(src)
	if v == nil {
		t.Fatalf("eval %q faulted: %s", src, e.ShowString(e.ExceptionOccurred()))
	}
	return v
}

// evalFault evaluates source expected to fault and returns the exception
// type name.
func evalFault(t *testing.T, e *Engine, src string) string {
	t.Helper()
	if v := e.EvalString(src); v != nil {
		t.Fatalf("eval %q = %s, want fault", src, e.ShowString(v))
	}
	ex := e.ExceptionOccurred()
	if ex == nil {
		t.Fatalf("eval %q returned nil without pending exception", src)
	}
	name := e.TypeNameString(ex)
	e.ExceptionClear()
	return name
}

func TestEvalArithmetic(t *testing.T) {
	e := testEngine(t)
	tests := []struct {
		src  string
		want interface{}
	}{
		{"1 + 2", int64(3)},
		{"2 * 3 - 1", int64(5)},
		{"2 ^ 10", int64(1024)},
		{"7 % 3", int64(1)},
		{"1 + 2.5", float64(3.5)},
		{"10 / 4", float64(2.5)},
		{"3.0 * 2", float64(6)},
		{"-5", int64(-5)},
		{"1 < 2", true},
		{"1 == 1.0", true},
		{"true && false", false},
		{"false || true", true},
		{"!false", true},
	}
	for _, tc := range tests {
		v := mustEval(t, e, tc.src)
		switch want := tc.want.(type) {
		case int64:
			if !layout.TypeTagIs(v, uintptr(layout.TagInt64)<<4) {
				t.Errorf("%q: got %s, want Int64", tc.src, e.TypeNameString(v))
				continue
			}
			if got := e.UnboxInt64(v); got != want {
				t.Errorf("%q = %d, want %d", tc.src, got, want)
			}
		case float64:
			if !layout.TypeTagIs(v, uintptr(layout.TagFloat64)<<4) {
				t.Errorf("%q: got %s, want Float64", tc.src, e.TypeNameString(v))
				continue
			}
			if got := e.UnboxFloat64(v); got != want {
				t.Errorf("%q = %g, want %g", tc.src, got, want)
			}
		case bool:
			if got := e.UnboxBool(v); got != want {
				t.Errorf("%q = %v, want %v", tc.src, got, want)
			}
		}
	}
}

func TestDefineAndCallFunction(t *testing.T) {
	e := testEngine(t)
	mustEval(t, e, "f(x) = x * 2 - 1")

	f := e.GetFunction(e.MainModule(), "f")
	if f == nil {
		t.Fatal("f not resolvable after definition")
	}
	res := e.Call1(f, e.BoxFloat64(3.0))
	if res == nil {
		t.Fatalf("call faulted: %s", e.ShowString(e.ExceptionOccurred()))
	}
	if got := e.UnboxFloat64(res); got != 5.0 {
		t.Errorf("f(3.0) = %g, want 5.0", got)
	}
}

func TestCallArity(t *testing.T) {
	e := testEngine(t)
	mustEval(t, e, "g(a, b) = a + b")
	f := e.GetFunction(e.MainModule(), "g")

	if res := e.Call1(f, e.BoxInt64(1)); res != nil {
		t.Fatal("expected fault for missing argument")
	}
	if name := e.TypeNameString(e.ExceptionOccurred()); name != "ArgumentError" {
		t.Errorf("too few args raised %s, want ArgumentError", name)
	}
	e.ExceptionClear()

	if res := e.Call3(f, e.BoxInt64(1), e.BoxInt64(2), e.BoxInt64(3)); res != nil {
		t.Fatal("expected fault for extra argument")
	}
	if name := e.TypeNameString(e.ExceptionOccurred()); name != "ArgumentError" {
		t.Errorf("too many args raised %s, want ArgumentError", name)
	}
}

func TestRecursion(t *testing.T) {
	e := testEngine(t)
	mustEval(t, e, `
function fact(n)
    if n <= 1
        return 1
    end
    return n * fact(n - 1)
end
`)
	v := mustEval(t, e, "fact(10)")
	if got := e.UnboxInt64(v); got != 3628800 {
		t.Errorf("fact(10) = %d, want 3628800", got)
	}
}

func TestWhileLoop(t *testing.T) {
	e := testEngine(t)
	v := mustEval(t, e, `
total = 0
i = 1
while i <= 10
    total = total + i
    i = i + 1
end
total
`)
	if got := e.UnboxInt64(v); got != 55 {
		t.Errorf("sum = %d, want 55", got)
	}
}

func TestParseErrorPending(t *testing.T) {
	e := testEngine(t)
	if v := e.EvalString("1 +"); v != nil {
		t.Fatal("expected nil result for syntax error")
	}
	ex := e.ExceptionOccurred()
	if ex == nil {
		t.Fatal("no pending exception after syntax error")
	}
	if name := e.TypeNameString(ex); name != "ParseError" {
		t.Errorf("exception type = %s, want ParseError", name)
	}
	e.ExceptionClear()
	if e.ExceptionOccurred() != nil {
		t.Error("pending exception survived ExceptionClear")
	}
}

func TestGuestFaults(t *testing.T) {
	e := testEngine(t)
	tests := []struct {
		src  string
		want string
	}{
		{"nonexistent", "UndefVarError"},
		{"sqrt(-1.0)", "DomainError"},
		{"div(1, 0)", "DivideError"},
		{`throw(ArgumentError("nope"))`, "ArgumentError"},
		{`error("boom")`, "ErrorException"},
		{"if 1\nend", "TypeError"},
		{"1 + \"a\"", "MethodError"},
	}
	for _, tc := range tests {
		if got := evalFault(t, e, tc.src); got != tc.want {
			t.Errorf("%q raised %s, want %s", tc.src, got, tc.want)
		}
	}
}

func TestThrownExceptionCarriesMessage(t *testing.T) {
	e := testEngine(t)
	if v := e.EvalString(`throw(ArgumentError("bad input"))`); v != nil {
		t.Fatal("expected fault")
	}
	ex := e.ExceptionOccurred()
	msg := e.GetNthField(ex, 0)
	if got := e.UnboxString(msg); got != "bad input" {
		t.Errorf("msg = %q, want %q", got, "bad input")
	}
}

func TestStackOverflow(t *testing.T) {
	e := testEngine(t)
	mustEval(t, e, "loop(x) = loop(x)")
	if got := evalFault(t, e, "loop(1)"); got != "StackOverflowError" {
		t.Errorf("runaway recursion raised %s, want StackOverflowError", got)
	}
}

func TestStructDefinition(t *testing.T) {
	e := testEngine(t)
	mustEval(t, e, `
mutable struct Point
    x::Float64
    y::Float64
end
`)
	v := mustEval(t, e, "p = Point(1.0, 2.0)")
	if got := e.TypeNameString(v); got != "Point" {
		t.Fatalf("typeof = %s, want Point", got)
	}
	if got := e.UnboxFloat64(mustEval(t, e, "p.x")); got != 1.0 {
		t.Errorf("p.x = %g, want 1.0", got)
	}
	mustEval(t, e, "p.x = 4.5")
	if got := e.UnboxFloat64(mustEval(t, e, "p.x")); got != 4.5 {
		t.Errorf("p.x after mutation = %g, want 4.5", got)
	}
	// Integer literals convert to the declared float field type.
	mustEval(t, e, "p.y = 7")
	if got := e.UnboxFloat64(mustEval(t, e, "p.y")); got != 7.0 {
		t.Errorf("p.y = %g, want 7.0", got)
	}
}

// A full type pointer is stored above the four tag metadata bits, so every
// allocation must land on the payload alignment boundary or the decoded
// type comes back shifted.
func TestAllocationAlignsFullTypeTags(t *testing.T) {
	e := testEngine(t)
	mustEval(t, e, "mutable struct Cell\n    v\nend")

	first := mustEval(t, e, "Cell(0)")
	dt := layout.TypeOf(first)
	if uintptr(unsafe.Pointer(dt))%layout.ObjectAlign != 0 {
		t.Fatalf("datatype at %#x is below payload alignment", uintptr(unsafe.Pointer(dt)))
	}
	for i := 0; i < 32; i++ {
		v := mustEval(t, e, "Cell(1)")
		if uintptr(unsafe.Pointer(v))%layout.ObjectAlign != 0 {
			t.Fatalf("instance at %#x is below payload alignment", uintptr(unsafe.Pointer(v)))
		}
		if got := layout.TypeOf(v); got != dt {
			t.Fatalf("instance decoded type %#x, want %#x",
				uintptr(unsafe.Pointer(got)), uintptr(unsafe.Pointer(dt)))
		}
		if got := e.TypeNameString(v); got != "Cell" {
			t.Fatalf("typeof = %s, want Cell", got)
		}
	}
}

func TestImmutableStructRejectsMutation(t *testing.T) {
	e := testEngine(t)
	mustEval(t, e, "struct Frozen\n    v\nend\nq = Frozen(1)")
	if got := evalFault(t, e, "q.v = 2"); got != "ErrorException" {
		t.Errorf("mutating immutable raised %s, want ErrorException", got)
	}
}

func TestStructMissingField(t *testing.T) {
	e := testEngine(t)
	mustEval(t, e, "struct One\n    a\nend\nw = One(1)")
	if v := e.EvalString("w.b"); v != nil {
		t.Fatal("expected fault for missing field")
	}
	if !strings.Contains(e.ShowString(e.ExceptionOccurred()), "no field b") {
		t.Errorf("unexpected message: %s", e.ShowString(e.ExceptionOccurred()))
	}
}

func TestStringOps(t *testing.T) {
	e := testEngine(t)
	if got := e.UnboxString(mustEval(t, e, `"foo" * "bar"`)); got != "foobar" {
		t.Errorf("concat = %q", got)
	}
	if got := e.UnboxString(mustEval(t, e, "string(5.0)")); got != "5.0" {
		t.Errorf("string(5.0) = %q, want 5.0", got)
	}
	if got := e.UnboxString(mustEval(t, e, "string(42)")); got != "42" {
		t.Errorf("string(42) = %q, want 42", got)
	}
	if got := e.UnboxBool(mustEval(t, e, `"a" == "a"`)); !got {
		t.Error(`"a" == "a" is false`)
	}
	if got := e.UnboxInt64(mustEval(t, e, `length("hello")`)); got != 5 {
		t.Errorf("length = %d, want 5", got)
	}
}

func TestSymbolsInterned(t *testing.T) {
	e := testEngine(t)
	a := e.Symbol("velocity")
	b := e.Symbol("velocity")
	if a != b {
		t.Error("same name produced distinct symbols")
	}
	if e.SymbolName(a) != "velocity" {
		t.Errorf("name = %q", e.SymbolName(a))
	}
	g1, g2 := e.Gensym(), e.Gensym()
	if g1 == g2 {
		t.Error("gensym returned the same symbol twice")
	}
}

func TestGlobals(t *testing.T) {
	e := testEngine(t)
	sym := e.Symbol("answer")
	e.SetGlobal(e.MainModule(), sym, e.BoxInt64(42))
	v := e.GetGlobal(e.MainModule(), sym)
	if v == nil || e.UnboxInt64(v) != 42 {
		t.Fatal("global round trip failed")
	}
	// Base bindings are visible from Main.
	if e.GetGlobal(e.MainModule(), e.Symbol("sqrt")) == nil {
		t.Error("Base binding not visible from Main")
	}
	// The reverse does not hold.
	if e.GetGlobal(e.BaseModule(), sym) != nil {
		t.Error("Main binding visible from Base")
	}
}

func TestRegisterBuiltin(t *testing.T) {
	e := testEngine(t)
	var seen int64
	e.RegisterBuiltin(e.BaseModule(), "record", func(e *Engine, args []layout.Ptr) layout.Ptr {
		seen = e.UnboxInt64(args[0])
		return e.BoxInt64(seen + 1)
	})
	v := mustEval(t, e, "record(41)")
	if seen != 41 {
		t.Errorf("builtin saw %d, want 41", seen)
	}
	if got := e.UnboxInt64(v); got != 42 {
		t.Errorf("builtin returned %d, want 42", got)
	}
}

func TestBuiltinRaiser(t *testing.T) {
	e := testEngine(t)
	e.RegisterBuiltin(e.BaseModule(), "always_eof", func(e *Engine, args []layout.Ptr) layout.Ptr {
		e.RaiseEOF()
		return nil
	})
	if got := evalFault(t, e, "always_eof()"); got != "EOFError" {
		t.Errorf("raiser produced %s, want EOFError", got)
	}
}

func TestParseStringRoundTrip(t *testing.T) {
	e := testEngine(t)
	x := e.ParseString("h(x) = x + 1")
	if x == nil {
		t.Fatalf("parse faulted: %s", e.ShowString(e.ExceptionOccurred()))
	}
	if got := e.TypeNameString(x); got != "Expr" {
		t.Fatalf("parse produced %s, want Expr", got)
	}
	if head := layout.SymbolName(layout.ExprHead(x)); head != "function" {
		t.Errorf("head = %s, want function", head)
	}
	if res := e.EvalExpr(x, e.MainModule()); res == nil {
		t.Fatalf("eval of parsed expression faulted: %s", e.ShowString(e.ExceptionOccurred()))
	}
	v := mustEval(t, e, "h(41)")
	if got := e.UnboxInt64(v); got != 42 {
		t.Errorf("h(41) = %d, want 42", got)
	}
}

func TestParseLiteral(t *testing.T) {
	e := testEngine(t)
	x := e.ParseString("42")
	if !layout.TypeTagIs(x, uintptr(layout.TagInt64)<<4) {
		t.Fatalf("parse of literal produced %s, want Int64", e.TypeNameString(x))
	}
	if e.UnboxInt64(x) != 42 {
		t.Errorf("literal = %d", e.UnboxInt64(x))
	}
}

func TestLoadStringWrapsFaults(t *testing.T) {
	e := testEngine(t)
	if v := e.LoadString("script.jl", "x = 1\nundefined_name\n"); v != nil {
		t.Fatal("expected fault")
	}
	ex := e.ExceptionOccurred()
	if got := e.TypeNameString(ex); got != "LoadError" {
		t.Fatalf("load fault = %s, want LoadError", got)
	}
	if got := e.UnboxString(e.GetNthField(ex, 0)); got != "script.jl" {
		t.Errorf("file = %q", got)
	}
	inner := e.GetNthField(ex, 2)
	if got := e.TypeNameString(inner); got != "UndefVarError" {
		t.Errorf("wrapped exception = %s, want UndefVarError", got)
	}
}

func TestBoxUnboxRoundTrip(t *testing.T) {
	e := testEngine(t)
	if got := e.UnboxInt8(e.BoxInt8(-7)); got != -7 {
		t.Errorf("int8 = %d", got)
	}
	if got := e.UnboxUint16(e.BoxUint16(65535)); got != 65535 {
		t.Errorf("uint16 = %d", got)
	}
	if got := e.UnboxInt64(e.BoxInt64(-1 << 62)); got != -1<<62 {
		t.Errorf("int64 = %d", got)
	}
	if got := e.UnboxFloat32(e.BoxFloat32(1.5)); got != 1.5 {
		t.Errorf("float32 = %g", got)
	}
	if got := e.UnboxChar(e.BoxChar('λ')); got != 'λ' {
		t.Errorf("char = %c", got)
	}
	if got := e.UnboxString(e.BoxString("héllo")); got != "héllo" {
		t.Errorf("string = %q", got)
	}
	if e.BoxBool(true) != e.BoxBool(true) {
		t.Error("true is not a singleton")
	}
}

func TestIsaHierarchy(t *testing.T) {
	e := testEngine(t)
	v := e.BoxInt64(1)
	for _, name := range []string{"Int64", "Signed", "Integer", "Real", "Number", "Any"} {
		dt := e.GetGlobal(e.CoreModule(), e.Symbol(name))
		if dt == nil {
			t.Fatalf("type %s unbound", name)
		}
		if !e.Isa(v, dt) {
			t.Errorf("Int64 value is not isa %s", name)
		}
	}
	f64 := e.GetGlobal(e.CoreModule(), e.Symbol("Float64"))
	if e.Isa(v, f64) {
		t.Error("Int64 value isa Float64")
	}
}

func TestArrays(t *testing.T) {
	e := testEngine(t)
	a := e.AllocVector(nil, 3)
	if e.ArrayLen(a) != 3 {
		t.Fatalf("len = %d", e.ArrayLen(a))
	}
	res := e.Protect(func() layout.Ptr {
		e.ArraySet(a, 1, e.BoxInt64(9))
		return e.ArrayRef(a, 1)
	})
	if res == nil || e.UnboxInt64(res) != 9 {
		t.Error("array round trip failed")
	}
	if e.Protect(func() layout.Ptr { return e.ArrayRef(a, 5) }) != nil {
		t.Fatal("out of range read succeeded")
	}
	if got := e.TypeNameString(e.ExceptionOccurred()); got != "BoundsError" {
		t.Errorf("out of range raised %s, want BoundsError", got)
	}
	e.ExceptionClear()
}

func TestCollectFreesGarbage(t *testing.T) {
	e := testEngine(t)
	mustEval(t, e, `
i = 0
while i < 1000
    s = string(i)
    i = i + 1
end
`)
	before := e.Stats()
	e.GCCollect()
	after := e.Stats()
	if after.Freed <= before.Freed {
		t.Errorf("nothing freed: before=%d after=%d", before.Freed, after.Freed)
	}
	if after.Collections == 0 {
		t.Error("collection counter not incremented")
	}
}

func TestRootedObjectSurvivesCollection(t *testing.T) {
	e := testEngine(t)
	s := e.BoxString("keep me")
	e.Root(s)
	e.GCCollect()
	if got := e.UnboxString(s); got != "keep me" {
		t.Fatalf("rooted object corrupted: %q", got)
	}
	if layout.GCBits(s) != layout.GCOldMarked {
		t.Errorf("survivor not promoted, bits = %d", layout.GCBits(s))
	}
	e.Unroot(s)
}

func TestWriteBarrierKeepsYoungField(t *testing.T) {
	e := testEngine(t)
	mustEval(t, e, "mutable struct Holder\n    v\nend")
	h := mustEval(t, e, "held = Holder(nothing)")
	e.Root(h)
	e.GCCollect() // promote the holder to the old generation

	if layout.GCBits(h) != layout.GCOldMarked {
		t.Fatalf("holder not old after collection, bits = %d", layout.GCBits(h))
	}
	young := e.BoxString("young value")
	if e.Protect(func() layout.Ptr { e.SetNthField(h, 0, young); return h }) == nil {
		t.Fatalf("setfield faulted: %s", e.ShowString(e.ExceptionOccurred()))
	}
	e.GCCollect()
	got := e.Protect(func() layout.Ptr { return e.GetNthField(h, 0) })
	if got == nil || e.UnboxString(got) != "young value" {
		t.Fatal("young field lost across collection of old parent")
	}
	e.Unroot(h)
}

func TestFinalizerRunsOnCollection(t *testing.T) {
	e := testEngine(t)
	var finalized []string
	e.RegisterBuiltin(e.BaseModule(), "on_death", func(e *Engine, args []layout.Ptr) layout.Ptr {
		finalized = append(finalized, e.UnboxString(args[0]))
		return nil
	})
	fn := e.GetFunction(e.BaseModule(), "on_death")

	doomed := e.BoxString("doomed")
	e.AddFinalizer(doomed, fn)
	e.GCCollect()
	if len(finalized) != 1 || finalized[0] != "doomed" {
		t.Fatalf("finalized = %v, want [doomed]", finalized)
	}
	// Finalizers run once.
	e.GCCollect()
	if len(finalized) != 1 {
		t.Errorf("finalizer ran again: %v", finalized)
	}
}

func TestExplicitFinalize(t *testing.T) {
	e := testEngine(t)
	var ran int
	e.RegisterBuiltin(e.BaseModule(), "bump", func(e *Engine, args []layout.Ptr) layout.Ptr {
		ran++
		return nil
	})
	fn := e.GetFunction(e.BaseModule(), "bump")
	v := e.BoxInt64(1)
	e.Root(v)
	e.AddFinalizer(v, fn)
	e.Finalize(v)
	if ran != 1 {
		t.Fatalf("finalizer ran %d times, want 1", ran)
	}
	e.GCCollect()
	if ran != 1 {
		t.Errorf("finalizer re-ran at collection")
	}
	e.Unroot(v)
}

func TestAutomaticCollectionArmsAndRuns(t *testing.T) {
	opts := DefaultOptions()
	opts.HeapBudget = 4 << 10
	e := NewUnchecked(opts)
	t.Cleanup(func() { e.Shutdown(0) })

	for i := 0; i < 200; i++ {
		if e.EvalString("string(1234567)") == nil {
			t.Fatalf("eval faulted: %s", e.ShowString(e.ExceptionOccurred()))
		}
	}
	if e.Stats().Collections == 0 {
		t.Error("no collection ran despite exceeding the budget")
	}
}

func TestGCEnableToggle(t *testing.T) {
	e := testEngine(t)
	prev := e.GCEnable(false)
	if !prev {
		t.Error("collection not enabled by default")
	}
	if e.GCIsEnabled() {
		t.Error("GCEnable(false) did not stick")
	}
	e.GCEnable(true)
}

func TestShutdownGuard(t *testing.T) {
	e, err := New(DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := New(DefaultOptions()); err == nil {
		t.Fatal("second New succeeded with an engine live")
	}
	e.Shutdown(0)
	e2, err := New(DefaultOptions())
	if err != nil {
		t.Fatalf("New after Shutdown: %v", err)
	}
	e2.Shutdown(0)
}

func TestAtExitOrder(t *testing.T) {
	e := NewUnchecked(DefaultOptions())
	var order []int
	e.AtExit(func(code int32) { order = append(order, 1) })
	e.AtExit(func(code int32) { order = append(order, 2) })
	e.Shutdown(0)
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Errorf("hooks ran in order %v, want [2 1]", order)
	}
	// Shutdown is idempotent.
	e.Shutdown(0)
	if len(order) != 2 {
		t.Error("hooks re-ran on second Shutdown")
	}
}

func TestModuleAccess(t *testing.T) {
	e := testEngine(t)
	v := mustEval(t, e, "Main.sqrt")
	if v == nil {
		t.Fatal("Main.sqrt not resolvable")
	}
	if got := e.ModuleNameString(e.MainModule()); got != "Main" {
		t.Errorf("module name = %q", got)
	}
}
