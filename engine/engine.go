package engine

import (
	"fmt"
	"hash/fnv"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"

	jlerrors "github.com/wippyai/julia-runtime/errors"
	"github.com/wippyai/julia-runtime/gc"
	"github.com/wippyai/julia-runtime/layout"

	"github.com/wippyai/julia-runtime/engine/internal/lang"
)

// Emulated runtime version, reported by VersionString and the runtime
// package's Version call.
const (
	RuntimeVersionMajor = 1
	RuntimeVersionMinor = 10
	RuntimeVersionPatch = 0
)

// VersionString returns the emulated runtime version.
func VersionString() string {
	return fmt.Sprintf("%d.%d.%d", RuntimeVersionMajor, RuntimeVersionMinor, RuntimeVersionPatch)
}

// active guards process-wide initialization. The runtime owns global tag
// registrations, so at most one engine runs at a time.
var active atomic.Bool

// Initialized reports whether a checked engine is live in this process.
func Initialized() bool {
	return active.Load()
}

// HostFunc is a host function callable from guest code. Arguments arrive
// evaluated; the return value must be a live guest object or nil together
// with a raised fault.
type HostFunc func(e *Engine, args []layout.Ptr) layout.Ptr

type moduleState struct {
	name     string
	bindings map[layout.Ptr]layout.Ptr // symbol -> value
}

type funcInfo struct {
	name   string
	params []string
	body   []lang.Node
	host   HostFunc
	mod    layout.Ptr
}

// Engine is the embedded runtime. It is affine to a single goroutine;
// callers that share one across goroutines must serialize access
// themselves, which the runtime package does.
type Engine struct {
	log  *zap.Logger
	opts Options

	heap *heap
	ts   *gc.ThreadState

	symtab  map[string]layout.Ptr
	modules map[layout.Ptr]*moduleState
	funcs   map[layout.Ptr]*funcInfo

	types basis
	exc   map[string]layout.Ptr

	main, core, base layout.Ptr

	nothing   layout.Ptr
	trueV     layout.Ptr
	falseV    layout.Ptr
	emptySvec layout.Ptr
	rootTask  layout.Ptr

	// pending holds the most recent uncaught guest exception.
	pending layout.Ptr

	// depth counts live entry-point frames; collections only run at zero.
	depth     int
	callDepth int

	gensymCounter uint64
	atexit        []func(int32)
	closed        bool
}

// New initializes the runtime. Only one engine may be live per process;
// a second New fails until the first is shut down.
func New(opts Options) (*Engine, error) {
	if !active.CompareAndSwap(false, true) {
		return nil, jlerrors.AlreadyInitialized()
	}
	e := newEngine(opts)
	return e, nil
}

// NewUnchecked initializes the runtime without the single-instance guard.
// A second live engine rebinds the process-wide tag table; the caller
// must guarantee the first is no longer used.
func NewUnchecked(opts Options) *Engine {
	active.Store(true)
	return newEngine(opts)
}

func newEngine(opts Options) *Engine {
	opts = opts.withDefaults()
	e := &Engine{
		log:     Logger(),
		opts:    opts,
		symtab:  make(map[string]layout.Ptr),
		modules: make(map[layout.Ptr]*moduleState),
		funcs:   make(map[layout.Ptr]*funcInfo),
		exc:     make(map[string]layout.Ptr),
	}
	e.heap = newHeap(opts.HeapBudget, !opts.DisableGC)
	e.ts = gc.NewThreadState(e, &e.heap.safepoint)
	e.bootstrapTypes()
	e.bootstrapModules()
	e.installBuiltins()
	e.rootTask = e.markImmortal(e.allocSmall(1, layout.TagTask))
	return e
}

// Shutdown runs at-exit hooks and all registered finalizers, then releases
// the single-instance guard.
func (e *Engine) Shutdown(code int32) {
	if e.closed {
		return
	}
	e.closed = true
	for i := len(e.atexit) - 1; i >= 0; i-- {
		e.atexit[i](code)
	}
	for v, fns := range e.heap.finalizers {
		delete(e.heap.finalizers, v)
		e.runFinalizers(v, fns)
	}
	active.Store(false)
}

// Closed reports whether Shutdown has run.
func (e *Engine) Closed() bool {
	return e.closed
}

// AtExit registers a hook called during Shutdown, last registered first.
func (e *Engine) AtExit(fn func(code int32)) {
	e.atexit = append(e.atexit, fn)
}

// begin opens an entry-point frame: the thread goes unsafe and, at the
// outermost frame only, polls the safepoint so a requested collection can
// run before any temporaries exist.
func (e *Engine) begin() func() {
	saved := e.ts.UnsafeEnter()
	if e.depth == 0 {
		e.ts.Safepoint()
	}
	e.depth++
	return func() {
		e.depth--
		e.ts.UnsafeLeave(saved)
	}
}

// guestUnwind carries a thrown guest object up to the entry-point
// boundary.
type guestUnwind struct {
	ex layout.Ptr
}

// Throw raises a guest exception. It never returns; the unwind is caught
// at the innermost entry-point boundary, which stores the object in the
// pending slot.
func (e *Engine) Throw(ex layout.Ptr) {
	panic(&guestUnwind{ex: ex})
}

// Rethrow re-raises the pending exception, clearing the slot. No-op when
// nothing is pending.
func (e *Engine) Rethrow() {
	if e.pending == nil {
		return
	}
	ex := e.pending
	e.pending = nil
	e.Throw(ex)
}

// protect runs f, converting a guest unwind into a pending exception and
// a nil result.
func (e *Engine) protect(f func() layout.Ptr) (res layout.Ptr) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		gu, ok := r.(*guestUnwind)
		if !ok {
			panic(r)
		}
		e.pending = gu.ex
		res = nil
	}()
	return f()
}

// Protect runs f at an entry-point boundary: a guest fault inside f
// becomes the pending exception and Protect returns nil.
func (e *Engine) Protect(f func() layout.Ptr) layout.Ptr {
	defer e.begin()()
	return e.protect(f)
}

// ExceptionOccurred returns the pending guest exception, or nil.
func (e *Engine) ExceptionOccurred() layout.Ptr {
	return e.pending
}

// ExceptionClear clears the pending exception slot.
func (e *Engine) ExceptionClear() {
	e.pending = nil
}

// ThreadState exposes the safe/unsafe transitions for hosts that block
// outside the engine.
func (e *Engine) ThreadState() *gc.ThreadState {
	return e.ts
}

// Symbol interns a name and returns its symbol. The same name always
// returns the same pointer.
func (e *Engine) Symbol(name string) layout.Ptr {
	if s, ok := e.symtab[name]; ok {
		return s
	}
	words := 2 + (len(name)+int(layout.WordSize)-1)/int(layout.WordSize)
	s := e.allocSmall(words, layout.TagSymbol)
	h := fnv.New64a()
	h.Write([]byte(name))
	layout.SetWord(s, 0, uintptr(h.Sum64()))
	layout.SetWord(s, 1, uintptr(len(name)))
	if len(name) > 0 {
		dst := unsafe.Slice((*byte)(unsafe.Add(unsafe.Pointer(s), 2*layout.WordSize)), len(name))
		copy(dst, name)
	}
	e.markImmortal(s)
	e.symtab[name] = s
	return s
}

// Gensym returns a fresh symbol no source text can collide with.
func (e *Engine) Gensym() layout.Ptr {
	e.gensymCounter++
	return e.Symbol(fmt.Sprintf("##%d", e.gensymCounter))
}

// SymbolName returns the interned name of a symbol.
func (e *Engine) SymbolName(sym layout.Ptr) string {
	return layout.SymbolName(sym)
}

// MainModule returns Main, the default evaluation namespace.
func (e *Engine) MainModule() layout.Ptr { return e.main }

// CoreModule returns Core, where builtin types are bound.
func (e *Engine) CoreModule() layout.Ptr { return e.core }

// BaseModule returns Base, where the standard functions are bound.
func (e *Engine) BaseModule() layout.Ptr { return e.base }

func (e *Engine) newModule(name string, parent layout.Ptr) layout.Ptr {
	m := e.allocSmall(2, layout.TagModule)
	layout.SetPtrWord(m, 0, e.Symbol(name))
	layout.SetPtrWord(m, 1, parent)
	e.markImmortal(m)
	e.modules[m] = &moduleState{
		name:     name,
		bindings: make(map[layout.Ptr]layout.Ptr),
	}
	return m
}

func (e *Engine) bootstrapModules() {
	e.core = e.newModule("Core", nil)
	layout.SetPtrWord(e.core, 1, e.core)
	e.main = e.newModule("Main", e.core)
	e.base = e.newModule("Base", e.main)
	e.bindTypes()
	e.SetGlobal(e.core, e.Symbol("Core"), e.core)
	e.SetGlobal(e.core, e.Symbol("Main"), e.main)
	e.SetGlobal(e.core, e.Symbol("Base"), e.base)
}

// ModuleNameString returns a module's name.
func (e *Engine) ModuleNameString(mod layout.Ptr) string {
	if ms, ok := e.modules[mod]; ok {
		return ms.name
	}
	return ""
}

// GetGlobal reads a module binding. Lookups from Main fall through to Base
// and Core, and from Base to Core, mirroring the default using chain.
// Returns nil when the name is unbound.
func (e *Engine) GetGlobal(mod, sym layout.Ptr) layout.Ptr {
	for _, m := range e.lookupChain(mod) {
		ms, ok := e.modules[m]
		if !ok {
			continue
		}
		if v, ok := ms.bindings[sym]; ok {
			return v
		}
	}
	return nil
}

func (e *Engine) lookupChain(mod layout.Ptr) []layout.Ptr {
	switch mod {
	case e.main:
		return []layout.Ptr{e.main, e.base, e.core}
	case e.base:
		return []layout.Ptr{e.base, e.core}
	default:
		return []layout.Ptr{mod}
	}
}

// SetGlobal binds a value in a module. The module is an old-generation
// container from the collector's point of view, so the store runs the
// write barrier.
func (e *Engine) SetGlobal(mod, sym, val layout.Ptr) {
	ms, ok := e.modules[mod]
	if !ok {
		e.RaiseError("not a module")
	}
	ms.bindings[sym] = val
	gc.WriteBarrier(e, mod, val)
}

// GetFunction resolves a name in a module to a callable, or nil.
func (e *Engine) GetFunction(mod layout.Ptr, name string) layout.Ptr {
	v := e.GetGlobal(mod, e.Symbol(name))
	if v == nil {
		return nil
	}
	if !e.IsCallable(v) {
		return nil
	}
	return v
}

// IsCallable reports whether v can sit in call position: a function or a
// constructible type.
func (e *Engine) IsCallable(v layout.Ptr) bool {
	if v == nil {
		return false
	}
	if _, ok := e.funcs[v]; ok {
		return true
	}
	return layout.TypeTagIs(v, uintptr(layout.TagDataType)<<4)
}

// RegisterBuiltin binds a host function under name in the given module and
// returns the function object.
func (e *Engine) RegisterBuiltin(mod layout.Ptr, name string, fn HostFunc) layout.Ptr {
	f := e.newFunction(name, mod, nil, nil, fn)
	e.SetGlobal(mod, e.Symbol(name), f)
	return f
}

func (e *Engine) newFunction(name string, mod layout.Ptr, params []string, body []lang.Node, host HostFunc) layout.Ptr {
	f := e.allocTyped(2, e.types.function)
	layout.SetPtrWord(f, 0, e.Symbol(name))
	layout.SetPtrWord(f, 1, mod)
	e.funcs[f] = &funcInfo{
		name:   name,
		params: params,
		body:   body,
		host:   host,
		mod:    mod,
	}
	return f
}

// FunctionName returns the name a function object was defined under.
func (e *Engine) FunctionName(f layout.Ptr) string {
	if fi, ok := e.funcs[f]; ok {
		return fi.name
	}
	return ""
}

// CurrentTask returns the root task. The embedded runtime has a single
// task; it exists so task-typed values round-trip.
func (e *Engine) CurrentTask() layout.Ptr {
	return e.rootTask
}

// Nothing returns the nothing singleton.
func (e *Engine) Nothing() layout.Ptr {
	return e.nothing
}

// Raisers. Each constructs the corresponding guest exception and throws.
// None of them return.

// RaiseError throws ErrorException with the given message.
func (e *Engine) RaiseError(msg string) {
	e.Throw(e.newException("ErrorException", e.BoxString(msg)))
}

// Raisef throws ErrorException with a formatted message.
func (e *Engine) Raisef(format string, args ...any) {
	e.RaiseError(fmt.Sprintf(format, args...))
}

// RaiseTypeError throws TypeError recording the operation name, the
// expected type and the value actually seen.
func (e *Engine) RaiseTypeError(fname string, expected, got layout.Ptr) {
	e.Throw(e.newException("TypeError", e.Symbol(fname), expected, got))
}

// RaiseBounds throws BoundsError for an out-of-range access into v.
func (e *Engine) RaiseBounds(v, idx layout.Ptr) {
	e.Throw(e.newException("BoundsError", v, idx))
}

// RaiseBoundsInt is RaiseBounds with a host-side index.
func (e *Engine) RaiseBoundsInt(v layout.Ptr, i int) {
	e.RaiseBounds(v, e.BoxInt64(int64(i)))
}

// RaiseUndefVar throws UndefVarError for an unbound name.
func (e *Engine) RaiseUndefVar(sym layout.Ptr) {
	e.Throw(e.newException("UndefVarError", sym))
}

// RaiseTooFewArgs throws ArgumentError for a call with fewer arguments
// than the callee requires.
func (e *Engine) RaiseTooFewArgs(fname string, min int) {
	e.Throw(e.newException("ArgumentError",
		e.BoxString(fmt.Sprintf("%s: too few arguments (expected %d)", fname, min))))
}

// RaiseTooManyArgs throws ArgumentError for a call with more arguments
// than the callee accepts.
func (e *Engine) RaiseTooManyArgs(fname string, max int) {
	e.Throw(e.newException("ArgumentError",
		e.BoxString(fmt.Sprintf("%s: too many arguments (expected %d)", fname, max))))
}

// RaiseEOF throws EOFError.
func (e *Engine) RaiseEOF() {
	e.Throw(e.newException("EOFError"))
}

// RaiseDomain throws DomainError for val.
func (e *Engine) RaiseDomain(val layout.Ptr, msg string) {
	e.Throw(e.newException("DomainError", val, e.BoxString(msg)))
}

// RaiseDivide throws DivideError.
func (e *Engine) RaiseDivide() {
	e.Throw(e.newException("DivideError"))
}

// RaiseKeyError throws KeyError for key.
func (e *Engine) RaiseKeyError(key layout.Ptr) {
	e.Throw(e.newException("KeyError", key))
}

// RaiseMethodError throws MethodError for calling f with args.
func (e *Engine) RaiseMethodError(f layout.Ptr, args []layout.Ptr) {
	e.Throw(e.newException("MethodError", f, e.MakeSvec(args...)))
}

// RaiseParseError throws ParseError with the parser's message.
func (e *Engine) RaiseParseError(msg string) {
	e.Throw(e.newException("ParseError", e.BoxString(msg)))
}
