package engine

import (
	"sync/atomic"
	"unsafe"

	"github.com/wippyai/julia-runtime/layout"
)

// object is one heap entry. The block slice is what keeps the slab alive;
// the payload pointer handed out to callers aliases the first ObjectAlign
// boundary inside it, header in the word before. desc pins the field
// layout bytes for datatype objects.
type object struct {
	block    []uintptr
	desc     []byte
	immortal bool
}

// heap is the engine's object table plus collector bookkeeping.
type heap struct {
	objects map[layout.Ptr]*object

	// roots are host-held references, refcounted per pointer.
	roots map[layout.Ptr]int

	// remset holds old objects re-queued by a write barrier since the
	// last collection.
	remset []layout.Ptr

	// finalizers maps an object to the guest functions run when it dies.
	finalizers map[layout.Ptr][]layout.Ptr

	// safepoint is the word the collector arms; polls go through
	// gc.ThreadState against it.
	safepoint uint32

	collectRequested bool
	enabled          bool
	allocated        int64
	budget           int64

	// collections and freed are lifetime counters.
	collections uint64
	freed       uint64

	marked map[layout.Ptr]bool // live set of the cycle in progress
}

func newHeap(budget int64, enabled bool) *heap {
	return &heap{
		objects:    make(map[layout.Ptr]*object),
		roots:      make(map[layout.Ptr]int),
		finalizers: make(map[layout.Ptr][]layout.Ptr),
		enabled:    enabled,
		budget:     budget,
	}
}

// allocWords allocates a guest object with the given payload word count and
// type tag. The extra leading word is the header.
func (e *Engine) allocWords(words int, typeTag uintptr) layout.Ptr {
	if words < 1 {
		words = 1
	}
	// One spare word lets the payload land on an ObjectAlign boundary: a
	// full type pointer is stored above the four metadata bits, so the
	// header encoding only round-trips for aligned objects.
	block := make([]uintptr, words+2)
	idx := 1
	if uintptr(unsafe.Pointer(&block[idx]))%layout.ObjectAlign != 0 {
		idx = 2
	}
	p := layout.Ptr(unsafe.Pointer(&block[idx]))
	layout.SetHeader(p, layout.MakeHeader(typeTag, layout.GCClean))
	e.heap.objects[p] = &object{block: block}
	e.heap.allocated += int64(words+2) * int64(layout.WordSize)
	if e.heap.enabled && e.heap.allocated >= e.heap.budget && !e.heap.collectRequested {
		e.heap.collectRequested = true
		atomic.StoreUint32(&e.heap.safepoint, 1)
	}
	return p
}

// allocTyped allocates an object tagged with a full datatype.
func (e *Engine) allocTyped(words int, dt layout.Ptr) layout.Ptr {
	return e.allocWords(words, layout.TagOfType(dt))
}

func (e *Engine) allocSmall(words int, tag layout.SmallTag) layout.Ptr {
	return e.allocWords(words, uintptr(tag)<<4)
}

func (e *Engine) markImmortal(p layout.Ptr) layout.Ptr {
	if o, ok := e.heap.objects[p]; ok {
		o.immortal = true
	}
	return p
}

// Root pins p against collection on behalf of a host handle. Calls nest;
// each Root needs a matching Unroot.
func (e *Engine) Root(p layout.Ptr) {
	if p == nil {
		return
	}
	e.heap.roots[p]++
}

// Unroot releases one Root reference.
func (e *Engine) Unroot(p layout.Ptr) {
	if p == nil {
		return
	}
	if n := e.heap.roots[p]; n <= 1 {
		delete(e.heap.roots, p)
	} else {
		e.heap.roots[p] = n - 1
	}
}

// QueueRoot implements gc.Collector. The parent is recolored so the
// barrier does not requeue it before the next cycle.
func (e *Engine) QueueRoot(parent layout.Ptr) {
	e.heap.remset = append(e.heap.remset, parent)
	layout.SetGCBits(parent, layout.GCMarked)
}

// QueueMultiRoot implements gc.Collector. The composite child's interior
// pointers are found by rescanning the parent, so queueing the parent is
// enough.
func (e *Engine) QueueMultiRoot(parent, child layout.Ptr) {
	e.QueueRoot(parent)
}

// SafepointTrap implements gc.Collector. A requested collection only runs
// once no evaluation frames are live; a trap taken mid-evaluation leaves
// the safepoint armed for the next boundary.
func (e *Engine) SafepointTrap() {
	if e.depth > 0 {
		return
	}
	if e.heap.collectRequested {
		e.collect()
	}
}

// GCEnable toggles automatic collection and reports the previous setting.
func (e *Engine) GCEnable(on bool) bool {
	prev := e.heap.enabled
	e.heap.enabled = on
	return prev
}

// GCIsEnabled reports whether automatic collection is on.
func (e *Engine) GCIsEnabled() bool {
	return e.heap.enabled
}

// GCCollect forces a collection immediately. Must not be called from
// inside a host builtin.
func (e *Engine) GCCollect() {
	e.collect()
}

// GCStats is a snapshot of collector counters.
type GCStats struct {
	Live        int
	Collections uint64
	Freed       uint64
}

// Stats returns collector counters.
func (e *Engine) Stats() GCStats {
	return GCStats{
		Live:        len(e.heap.objects),
		Collections: e.heap.collections,
		Freed:       e.heap.freed,
	}
}

// AddFinalizer arranges for fn to be called with v when v is collected.
func (e *Engine) AddFinalizer(v, fn layout.Ptr) {
	e.heap.finalizers[v] = append(e.heap.finalizers[v], fn)
}

// Finalize runs v's finalizers now and drops them.
func (e *Engine) Finalize(v layout.Ptr) {
	fns := e.heap.finalizers[v]
	delete(e.heap.finalizers, v)
	e.runFinalizers(v, fns)
}

func (e *Engine) runFinalizers(v layout.Ptr, fns []layout.Ptr) {
	for _, fn := range fns {
		// A fault inside a finalizer is swallowed; it must not clobber
		// the caller's pending exception.
		savedPending := e.pending
		func() {
			defer func() {
				if r := recover(); r != nil {
					if _, ok := r.(*guestUnwind); !ok {
						panic(r)
					}
					debugf("finalizer fault ignored")
				}
			}()
			e.call(fn, []layout.Ptr{v})
		}()
		e.pending = savedPending
	}
}

// collect runs a full mark and sweep pass. Survivors are promoted to the
// old generation; barrier-queued parents from the remembered set are
// re-scanned and re-promoted.
func (e *Engine) collect() {
	h := e.heap
	atomic.StoreUint32(&h.safepoint, 0)
	h.collectRequested = false
	h.collections++

	h.marked = make(map[layout.Ptr]bool, len(h.objects))

	for p := range h.roots {
		e.mark(p)
	}
	for _, p := range h.remset {
		e.mark(p)
	}
	h.remset = h.remset[:0]
	for m := range e.modules {
		e.mark(m)
	}
	e.mark(e.pending)
	e.mark(e.rootTask)
	for target, fns := range h.finalizers {
		// Finalizer functions must survive; their targets are revived
		// only for the duration of the callback.
		_ = target
		for _, fn := range fns {
			e.mark(fn)
		}
	}

	// Dead objects are finalized before their slabs are released so the
	// callback still sees a valid payload.
	var dead []layout.Ptr
	for p, o := range h.objects {
		if o.immortal || h.marked[p] {
			continue
		}
		dead = append(dead, p)
	}
	for _, p := range dead {
		if fns, ok := h.finalizers[p]; ok {
			delete(h.finalizers, p)
			e.runFinalizers(p, fns)
		}
	}
	for _, p := range dead {
		delete(h.objects, p)
		delete(e.funcs, p)
		h.freed++
	}

	// Promote survivors. Immortals keep their color; everything else
	// live becomes old-marked so the write barriers watch it.
	for p, o := range h.objects {
		if o.immortal {
			continue
		}
		if h.marked[p] {
			layout.SetGCBits(p, layout.GCOldMarked)
		}
	}
	h.marked = nil
	h.allocated = 0

	debugf("collection %d: %d live", h.collections, len(h.objects))
}

func (e *Engine) mark(p layout.Ptr) {
	if p == nil {
		return
	}
	h := e.heap
	if _, ok := h.objects[p]; !ok || h.marked[p] {
		return
	}
	// Immortal objects are scanned too: a mortal child of an immortal
	// parent must still survive.
	h.marked[p] = true
	e.markChildren(p)
}

func (e *Engine) markChildren(p layout.Ptr) {
	tag := layout.TypeTagOf(p)
	if tag < layout.MaxSmallTypeTag {
		switch layout.SmallTag(tag >> 4) {
		case layout.TagSimpleVector:
			n := layout.SvecLen(p)
			for i := uintptr(0); i < n; i++ {
				e.mark(layout.SvecRef(p, i))
			}
		case layout.TagModule:
			e.mark(layout.ModuleName(p))
			e.mark(layout.ModuleParent(p))
			if ms, ok := e.modules[p]; ok {
				for sym, val := range ms.bindings {
					e.mark(sym)
					e.mark(val)
				}
			}
		case layout.TagDataType:
			e.mark(layout.TypeName(p))
			e.mark(layout.SuperType(p))
			e.mark(layout.FieldNames(p))
			e.mark(layout.FieldTypes(p))
			e.mark(layout.Instance(p))
		}
		// Symbols, strings, tasks and boxed primitives hold no references.
		return
	}

	dt := layout.TypeOf(p)
	e.mark(dt)
	if dt == e.types.array {
		e.mark(arrayEltype(p))
		n := arrayLen(p)
		for i := uintptr(0); i < n; i++ {
			e.mark(layout.PtrWord(p, arrayDataWord+i))
		}
		return
	}
	desc := layout.LayoutOf(dt)
	if desc == nil || layout.IsOpaqueLayout(desc) {
		return
	}
	n := layout.NPointers(dt)
	for i := uint32(0); i < n; i++ {
		idx := layout.PtrOffset(dt, i)
		e.mark(layout.PtrWord(p, uintptr(idx)))
	}
}
