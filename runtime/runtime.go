package runtime

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	juliaruntime "github.com/wippyai/julia-runtime"
	"github.com/wippyai/julia-runtime/engine"
	jlerrors "github.com/wippyai/julia-runtime/errors"
	"github.com/wippyai/julia-runtime/value"
)

// Runtime owns an engine instance and serializes access to it.
type Runtime struct {
	mu     sync.Mutex
	eng    *engine.Engine
	log    *zap.Logger
	closed bool
}

// New initializes the runtime. Only one live Runtime is allowed per
// process; a second New fails with an already-initialized error until
// the first is closed.
func New(opts engine.Options) (*Runtime, error) {
	eng, err := engine.New(opts)
	if err != nil {
		return nil, err
	}
	return &Runtime{eng: eng, log: engine.Logger()}, nil
}

// NewUnchecked initializes a runtime bypassing the process-singleton
// guard. Intended for tests.
func NewUnchecked(opts engine.Options) *Runtime {
	return &Runtime{eng: engine.NewUnchecked(opts), log: engine.Logger()}
}

// Close shuts the runtime down with exit code 0. Idempotent.
func (r *Runtime) Close() {
	r.Exit(0)
}

// Exit runs registered atexit hooks and shuts the runtime down.
func (r *Runtime) Exit(code int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.log.Debug("runtime shutdown", zap.Int32("code", code))
	r.eng.Shutdown(code)
}

// AtExit registers fn to run during Close, in reverse registration
// order.
func (r *Runtime) AtExit(fn func(code int32)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eng.AtExit(fn)
}

// Engine exposes the underlying engine. Callers taking it assume
// single-goroutine affinity themselves.
func (r *Runtime) Engine() *engine.Engine {
	return r.eng
}

// Main returns a handle to the Main module.
func (r *Runtime) Main() Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Module{rt: r, m: value.MainModule(r.eng)}
}

// Core returns a handle to the Core module.
func (r *Runtime) Core() Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Module{rt: r, m: value.CoreModule(r.eng)}
}

// Base returns a handle to the Base module.
func (r *Runtime) Base() Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Module{rt: r, m: value.BaseModule(r.eng)}
}

// EvalString parses and evaluates src in Main, returning the value of
// the last statement.
func (r *Runtime) EvalString(src string) (value.Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evalLocked(src)
}

func (r *Runtime) evalLocked(src string) (value.Value, error) {
	res := r.eng.EvalString(src)
	if ex, ok := value.Catch(r.eng); ok {
		return value.Value{}, jlerrors.Unhandled("eval", ex)
	}
	if res == nil {
		return value.Value{}, jlerrors.EvalError("eval")
	}
	return value.NewUnchecked(r.eng, res), nil
}

// Load reads a program from r and evaluates it statement by statement.
// A fault is wrapped in LoadError carrying name and the statement's
// line.
func (r *Runtime) Load(src io.Reader, name string) (value.Value, error) {
	b, err := io.ReadAll(src)
	if err != nil {
		return value.Value{}, jlerrors.IO("load", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.eng.LoadString(name, string(b))
	if ex, ok := value.Catch(r.eng); ok {
		return value.Value{}, jlerrors.Unhandled("load", ex)
	}
	if res == nil {
		return value.Value{}, jlerrors.EvalError("load")
	}
	return value.NewUnchecked(r.eng, res), nil
}

// LoadFile is a convenience wrapper over Load for on-disk programs.
func (r *Runtime) LoadFile(path string) (value.Value, error) {
	f, err := os.Open(path)
	if err != nil {
		return value.Value{}, jlerrors.IO("load", err)
	}
	defer f.Close()
	return r.Load(f, path)
}

// GC returns the collector control surface.
func (r *Runtime) GC() GC {
	return GC{rt: r}
}

// Version returns the embedded runtime's version.
func (r *Runtime) Version() juliaruntime.Version {
	return juliaruntime.Version{
		Name:    "julia",
		Major:   engine.RuntimeVersionMajor,
		Minor:   engine.RuntimeVersionMinor,
		Patch:   engine.RuntimeVersionPatch,
		Release: true,
	}
}

// GC exposes collector controls on a runtime.
type GC struct {
	rt *Runtime
}

// Enable turns automatic collection on or off, returning the previous
// setting.
func (g GC) Enable(on bool) bool {
	g.rt.mu.Lock()
	defer g.rt.mu.Unlock()
	return g.rt.eng.GCEnable(on)
}

// IsEnabled reports whether automatic collection is on.
func (g GC) IsEnabled() bool {
	g.rt.mu.Lock()
	defer g.rt.mu.Unlock()
	return g.rt.eng.GCIsEnabled()
}

// Collect forces a full collection.
func (g GC) Collect() {
	g.rt.mu.Lock()
	defer g.rt.mu.Unlock()
	stats := g.rt.eng.Stats()
	g.rt.eng.GCCollect()
	after := g.rt.eng.Stats()
	g.rt.log.Debug("gc cycle",
		zap.Int("live_before", stats.Live),
		zap.Int("live_after", after.Live),
		zap.Uint64("collections", after.Collections))
}

// Stats returns collector counters.
func (g GC) Stats() engine.GCStats {
	g.rt.mu.Lock()
	defer g.rt.mu.Unlock()
	return g.rt.eng.Stats()
}
