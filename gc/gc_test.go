package gc

import (
	"testing"
	"unsafe"

	"github.com/wippyai/julia-runtime/layout"
)

type recordingCollector struct {
	roots      []layout.Ptr
	multiRoots [][2]layout.Ptr
	traps      int
}

func (c *recordingCollector) QueueRoot(p layout.Ptr) {
	c.roots = append(c.roots, p)
}

func (c *recordingCollector) QueueMultiRoot(parent, child layout.Ptr) {
	c.multiRoots = append(c.multiRoots, [2]layout.Ptr{parent, child})
}

func (c *recordingCollector) SafepointTrap() {
	c.traps++
}

// allocObj fabricates a guest object: header word, then payload words on
// an ObjectAlign boundary, so the object can serve as a full type pointer.
func allocObj(t *testing.T, payloadWords int, typeTag, gcBits uintptr) layout.Ptr {
	t.Helper()
	block := make([]uintptr, 2+payloadWords)
	idx := 1
	if uintptr(unsafe.Pointer(&block[idx]))%layout.ObjectAlign != 0 {
		idx = 2
	}
	p := layout.Ptr(unsafe.Pointer(&block[idx]))
	layout.SetHeader(p, layout.MakeHeader(typeTag, gcBits))
	t.Cleanup(func() { _ = block })
	return p
}

func TestWriteBarrier(t *testing.T) {
	tests := []struct {
		name       string
		parentBits uintptr
		childBits  uintptr
		wantQueued bool
	}{
		{"old parent young child", layout.GCOldMarked, layout.GCClean, true},
		{"old parent old unmarked child", layout.GCOldMarked, layout.GCOld, true},
		{"old parent marked child", layout.GCOldMarked, layout.GCMarked, false},
		{"old parent fully old child", layout.GCOldMarked, layout.GCOldMarked, false},
		{"young parent young child", layout.GCClean, layout.GCClean, false},
		{"remembered parent young child", layout.GCOld, layout.GCClean, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &recordingCollector{}
			parent := allocObj(t, 2, layout.MaxSmallTypeTag+64, tt.parentBits)
			child := allocObj(t, 2, layout.MaxSmallTypeTag+64, tt.childBits)

			WriteBarrier(c, parent, child)

			queued := len(c.roots) == 1
			if queued != tt.wantQueued {
				t.Errorf("queued = %v, want %v", queued, tt.wantQueued)
			}
			if queued && c.roots[0] != parent {
				t.Error("queued pointer is not the parent")
			}
		})
	}
}

func TestWriteBarrierBack(t *testing.T) {
	c := &recordingCollector{}

	old := allocObj(t, 1, layout.MaxSmallTypeTag+64, layout.GCOldMarked)
	WriteBarrierBack(c, old)
	if len(c.roots) != 1 {
		t.Fatalf("old object not queued, roots = %d", len(c.roots))
	}

	young := allocObj(t, 1, layout.MaxSmallTypeTag+64, layout.GCClean)
	WriteBarrierBack(c, young)
	if len(c.roots) != 1 {
		t.Error("young object should not be queued")
	}
}

func TestMultiWriteBarrier(t *testing.T) {
	// A datatype whose instances carry one tracked pointer, and one whose
	// instances carry none.
	withPtrs := allocObj(t, int(layout.DataTypeWords), uintptr(layout.TagDataType)<<4, layout.GCOldMarked)
	descWith, err := layout.EncodeDesc(8, 8, []layout.FieldDesc{{Offset: 0, Size: 8, IsPtr: true}})
	if err != nil {
		t.Fatal(err)
	}
	layout.SetLayout(withPtrs, layout.DescPtr(descWith))

	noPtrs := allocObj(t, int(layout.DataTypeWords), uintptr(layout.TagDataType)<<4, layout.GCOldMarked)
	descBits, err := layout.EncodeDesc(8, 8, []layout.FieldDesc{{Offset: 0, Size: 8, IsPtr: false}})
	if err != nil {
		t.Fatal(err)
	}
	layout.SetLayout(noPtrs, layout.DescPtr(descBits))

	parent := allocObj(t, 2, layout.MaxSmallTypeTag+64, layout.GCOldMarked)

	c := &recordingCollector{}
	child := allocObj(t, 1, layout.TagOfType(withPtrs), layout.GCClean)
	MultiWriteBarrier(c, parent, child)
	if len(c.multiRoots) != 1 {
		t.Fatalf("composite with pointers not queued, got %d", len(c.multiRoots))
	}

	c = &recordingCollector{}
	plain := allocObj(t, 1, layout.TagOfType(noPtrs), layout.GCClean)
	MultiWriteBarrier(c, parent, plain)
	if len(c.multiRoots) != 0 {
		t.Error("pointer-free composite should not be queued")
	}

	c = &recordingCollector{}
	youngParent := allocObj(t, 2, layout.MaxSmallTypeTag+64, layout.GCClean)
	MultiWriteBarrier(c, youngParent, child)
	if len(c.multiRoots) != 0 {
		t.Error("young parent should not be queued")
	}
}

func TestSafepoint(t *testing.T) {
	c := &recordingCollector{}
	var page uint32
	ts := NewThreadState(c, &page)

	ts.Safepoint()
	if c.traps != 0 {
		t.Fatal("poll of a disarmed safepoint trapped")
	}

	page = 1
	ts.Safepoint()
	if c.traps != 1 {
		t.Fatalf("armed safepoint traps = %d, want 1", c.traps)
	}
}

func TestStateTransitions(t *testing.T) {
	c := &recordingCollector{}
	var page uint32
	ts := NewThreadState(c, &page)

	// Entering a safe region and leaving it with the safepoint armed must
	// poll exactly once, on the safe->unsafe edge.
	saved := ts.SafeEnter()
	if saved != StateUnsafe {
		t.Fatalf("saved state = %d, want %d", saved, StateUnsafe)
	}
	if ts.State() != StateSafe {
		t.Fatalf("state = %d, want %d", ts.State(), StateSafe)
	}

	page = 1
	ts.SafeLeave(saved)
	if c.traps != 1 {
		t.Fatalf("traps after SafeLeave = %d, want 1", c.traps)
	}
	if ts.State() != StateUnsafe {
		t.Fatalf("state = %d, want %d", ts.State(), StateUnsafe)
	}

	// Unsafe->unsafe transitions do not poll.
	page = 1
	c.traps = 0
	saved = ts.UnsafeEnter()
	ts.UnsafeLeave(saved)
	if c.traps != 0 {
		t.Errorf("unsafe->unsafe polled %d times, want 0", c.traps)
	}
}
