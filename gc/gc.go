// Package gc provides the host-side coordination primitives the guest
// collector requires: generational write barriers, safepoint polling, and
// the per-thread safe/unsafe state transitions.
//
// The collector may run concurrently with the host thread, so every color
// read here can be stale the instant a safepoint is crossed. Nothing in this
// package caches a decode.
package gc

import (
	"sync/atomic"

	"github.com/wippyai/julia-runtime/layout"
)

// Collector is the slice of the guest collector this package needs: the
// remembered-set queues and the trap taken when a poll hits an armed
// safepoint.
type Collector interface {
	// QueueRoot registers parent for re-scanning in the next cycle.
	QueueRoot(parent layout.Ptr)
	// QueueMultiRoot registers parent because the immutable child reachable
	// from it stores pointers.
	QueueMultiRoot(parent, child layout.Ptr)
	// SafepointTrap is invoked from a poll when the safepoint is armed.
	// It returns once the collector has finished its pause.
	SafepointTrap()
}

// WriteBarrier must run before parent is allowed to hold a reference to
// child. If parent is fully old and child is not, parent goes on the
// remembered set so old-to-young edges survive a minor collection without
// scanning every old object.
func WriteBarrier(c Collector, parent, child layout.Ptr) {
	if layout.GCBits(parent) == layout.GCOldMarked && layout.GCBits(child)&layout.GCMarked == 0 {
		c.QueueRoot(parent)
	}
}

// WriteBarrierBack handles the slot itself changing age rather than its
// container: an old object whose contents were just mutated in place.
func WriteBarrierBack(c Collector, p layout.Ptr) {
	if layout.GCBits(p) == layout.GCOldMarked {
		c.QueueRoot(p)
	}
}

// MultiWriteBarrier covers storing an immutable composite child into
// parent: the composite is root-queued at the parent level, but only when
// its layout actually tracks interior pointers.
func MultiWriteBarrier(c Collector, parent, child layout.Ptr) {
	if layout.GCBits(parent) != layout.GCOldMarked {
		return // parent young or already remembered
	}
	dt := layout.TypeOf(child)
	if layout.NPointers(dt) != 0 {
		c.QueueMultiRoot(parent, child)
	}
}

// Thread state values. Zero means the thread is mutating guest state and
// the collector must wait for it; Safe means the collector is free to run.
const (
	StateUnsafe = int32(0)
	StateSafe   = int32(2)
)

// ThreadState is the per-logical-thread slice of collector coordination:
// the safepoint word the collector arms and the safe/unsafe state byte it
// reads during a pause.
type ThreadState struct {
	collector Collector
	safepoint *uint32
	state     atomic.Int32
}

// NewThreadState binds a thread state to its collector and safepoint word.
func NewThreadState(c Collector, safepoint *uint32) *ThreadState {
	return &ThreadState{collector: c, safepoint: safepoint}
}

// Safepoint polls the safepoint word. The guest cannot preempt a host
// thread, so any potentially long-running operation must poll voluntarily.
// Full fences on both sides keep the poll from being reordered against the
// guest mutations it separates.
func (t *ThreadState) Safepoint() {
	fence()
	armed := atomic.LoadUint32(t.safepoint)
	fence()
	if armed != 0 {
		t.collector.SafepointTrap()
	}
}

// setState stores the state byte and closes the re-entry gap: a thread
// leaving a safe region must observe any pending collection before it
// touches guest state again.
func (t *ThreadState) setState(state, oldState int32) int32 {
	t.state.Store(state)
	if oldState != StateUnsafe && state == StateUnsafe {
		t.Safepoint()
	}
	return oldState
}

func (t *ThreadState) saveAndSet(state int32) int32 {
	return t.setState(state, t.state.Load())
}

// UnsafeEnter transitions to the unsafe (mutating) state and returns the
// previous state for the matching UnsafeLeave.
func (t *ThreadState) UnsafeEnter() int32 {
	return t.saveAndSet(StateUnsafe)
}

// UnsafeLeave restores the state saved by UnsafeEnter.
func (t *ThreadState) UnsafeLeave(saved int32) {
	t.setState(saved, StateUnsafe)
}

// SafeEnter transitions to the safe state, allowing the collector to run
// while the host blocks, and returns the previous state.
func (t *ThreadState) SafeEnter() int32 {
	return t.saveAndSet(StateSafe)
}

// SafeLeave restores the state saved by SafeEnter.
func (t *ThreadState) SafeLeave(saved int32) {
	t.setState(saved, StateSafe)
}

// State returns the current safe/unsafe state.
func (t *ThreadState) State() int32 {
	return t.state.Load()
}

var fenceWord atomic.Uint32

// fence is a full memory fence. Go exposes no standalone fence, so an
// atomic read-modify-write on a package-private word stands in for one.
func fence() {
	fenceWord.Add(0)
}
