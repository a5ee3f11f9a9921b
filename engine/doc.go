// Package engine provides the embedded evaluation runtime behind the
// bindings: a heap of tagged guest objects, the symbol and module tables,
// the exception machinery, and the fixed set of entry points the higher
// layers call.
//
// # Architecture
//
// The package is built around one concrete type:
//
//	Engine - owns the guest heap, interns symbols, evaluates source text,
//	         and tracks the pending exception
//
// Everything the value and runtime packages do bottoms out in an Engine
// method. The entry-point surface is deliberately flat and width-explicit:
// BoxInt32 takes an int32, UnboxFloat64 returns a float64, and so on, so a
// caller never guesses at a conversion.
//
// # Object model
//
// Guest objects live in engine-allocated word slabs. Each object carries a
// one-word header directly before its payload holding the type tag and two
// GC color bits; the layout package decodes both. The engine's object table
// keeps every slab reachable from the host side, so a payload pointer stays
// valid exactly as long as the table retains its entry.
//
// # Collection
//
// The collector is generational in the same shape the color bits suggest:
// young objects start clean, survivors are promoted, and mutations of old
// objects go through the write barriers in the gc package so old-to-young
// edges land on the remembered set. Allocation arms the safepoint word once
// the young-space budget is spent; the collection itself runs at the next
// entry-point boundary, never in the middle of an evaluation.
//
// # Exceptions
//
// Guest faults unwind as panics carrying the thrown object and are caught
// at the entry-point boundary, which stores the object in the pending
// exception slot and returns a null pointer. Hosts observe the fault via
// ExceptionOccurred and clear it with ExceptionClear.
package engine
