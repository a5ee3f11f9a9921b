// Package juliaruntime provides Go bindings for an embedded Julia-style
// dynamic-language runtime.
//
// The hard part of embedding a runtime with its own garbage collector is not
// calling into it, it is holding on to what comes back. Every pointer the
// guest hands out refers to memory the guest collector is free to reclaim or
// recolor, so the host side needs a disciplined wrapping protocol before any
// of the convenience surface (modules, eval, version strings) is usable.
//
// # Architecture Overview
//
// The library is organized into packages with distinct responsibilities:
//
//	julia-runtime/       Root package with version information
//	├── runtime/         High-level API: init, eval, load, module lookup
//	├── engine/          The fixed runtime ABI entry points and the embedded
//	│                    reference engine implementing them
//	├── value/           Shared, lockable handles over guest values, typed
//	│                    views, boxing/unboxing, and the exception bridge
//	├── layout/          Tagged-pointer and field-layout decoding for the
//	│                    guest's internal object representation
//	├── gc/              Write-barrier and safepoint coordination primitives
//	└── errors/          Structured host-level error taxonomy
//
// # Quick Start
//
//	rt, err := runtime.New(engine.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	rt.EvalString(`f(x) = x * 2 - 1`)
//
//	f, _ := rt.Main().Function("f")
//	res, _ := f.Call1(value.Float64(rt.Engine(), 3.0))
//	x, _ := res.Float64() // 5.0
//
// # Ownership Model
//
// A value.Value is a shared, reference-counted handle around one guest
// pointer. Access goes through an exclusive guard that poisons itself if a
// host panic occurs while it is held; subsequent accesses fail
// deterministically instead of silently operating on corrupted state.
// Handles are single-thread-affine: the binding assumes the guest runtime is
// not re-entered concurrently from multiple host threads.
//
// # Exception Propagation
//
// Every foreign call is immediately followed by a probe of the guest's
// pending-exception slot. A pending fault is cleared, wrapped, classified
// against a fixed taxonomy (value.Kind), and surfaced as the host error
// errors.KindUnhandledException. No partial results cross the boundary.
package juliaruntime
