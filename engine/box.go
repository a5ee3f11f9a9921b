package engine

import (
	"math"
	"unsafe"

	"github.com/wippyai/julia-runtime/gc"
	"github.com/wippyai/julia-runtime/layout"
)

// Boxing allocates a fresh guest object per call except for Bool, whose
// two values are singletons. Unboxing reads raw payload bits without a
// type check; callers gate on the tag first.

// BoxBool returns the shared true or false singleton.
func (e *Engine) BoxBool(v bool) layout.Ptr {
	if v {
		return e.trueV
	}
	return e.falseV
}

// boxWord stores the payload in a single word. 64-bit scalars fit because
// layout pins the ABI to 64-bit hosts.
func (e *Engine) boxWord(tag layout.SmallTag, w uintptr) layout.Ptr {
	p := e.allocSmall(1, tag)
	layout.SetWord(p, 0, w)
	return p
}

// BoxInt8 boxes an int8.
func (e *Engine) BoxInt8(v int8) layout.Ptr { return e.boxWord(layout.TagInt8, uintptr(uint8(v))) }

// BoxInt16 boxes an int16.
func (e *Engine) BoxInt16(v int16) layout.Ptr { return e.boxWord(layout.TagInt16, uintptr(uint16(v))) }

// BoxInt32 boxes an int32.
func (e *Engine) BoxInt32(v int32) layout.Ptr { return e.boxWord(layout.TagInt32, uintptr(uint32(v))) }

// BoxInt64 boxes an int64.
func (e *Engine) BoxInt64(v int64) layout.Ptr { return e.boxWord(layout.TagInt64, uintptr(uint64(v))) }

// BoxUint8 boxes a uint8.
func (e *Engine) BoxUint8(v uint8) layout.Ptr { return e.boxWord(layout.TagUint8, uintptr(v)) }

// BoxUint16 boxes a uint16.
func (e *Engine) BoxUint16(v uint16) layout.Ptr { return e.boxWord(layout.TagUint16, uintptr(v)) }

// BoxUint32 boxes a uint32.
func (e *Engine) BoxUint32(v uint32) layout.Ptr { return e.boxWord(layout.TagUint32, uintptr(v)) }

// BoxUint64 boxes a uint64.
func (e *Engine) BoxUint64(v uint64) layout.Ptr { return e.boxWord(layout.TagUint64, uintptr(v)) }

// BoxFloat32 boxes a float32.
func (e *Engine) BoxFloat32(v float32) layout.Ptr {
	return e.boxWord(layout.TagFloat32, uintptr(math.Float32bits(v)))
}

// BoxFloat64 boxes a float64.
func (e *Engine) BoxFloat64(v float64) layout.Ptr {
	return e.boxWord(layout.TagFloat64, uintptr(math.Float64bits(v)))
}

// BoxChar boxes a character.
func (e *Engine) BoxChar(v rune) layout.Ptr {
	return e.boxWord(layout.TagChar, uintptr(uint32(v)))
}

// UnboxBool reads a boxed bool.
func (e *Engine) UnboxBool(p layout.Ptr) bool { return layout.Word(p, 0) != 0 }

// UnboxInt8 reads a boxed int8.
func (e *Engine) UnboxInt8(p layout.Ptr) int8 { return int8(layout.Word(p, 0)) }

// UnboxInt16 reads a boxed int16.
func (e *Engine) UnboxInt16(p layout.Ptr) int16 { return int16(layout.Word(p, 0)) }

// UnboxInt32 reads a boxed int32.
func (e *Engine) UnboxInt32(p layout.Ptr) int32 { return int32(layout.Word(p, 0)) }

// UnboxInt64 reads a boxed int64.
func (e *Engine) UnboxInt64(p layout.Ptr) int64 { return int64(layout.Word(p, 0)) }

// UnboxUint8 reads a boxed uint8.
func (e *Engine) UnboxUint8(p layout.Ptr) uint8 { return uint8(layout.Word(p, 0)) }

// UnboxUint16 reads a boxed uint16.
func (e *Engine) UnboxUint16(p layout.Ptr) uint16 { return uint16(layout.Word(p, 0)) }

// UnboxUint32 reads a boxed uint32.
func (e *Engine) UnboxUint32(p layout.Ptr) uint32 { return uint32(layout.Word(p, 0)) }

// UnboxUint64 reads a boxed uint64.
func (e *Engine) UnboxUint64(p layout.Ptr) uint64 { return uint64(layout.Word(p, 0)) }

// UnboxFloat32 reads a boxed float32.
func (e *Engine) UnboxFloat32(p layout.Ptr) float32 {
	return math.Float32frombits(uint32(layout.Word(p, 0)))
}

// UnboxFloat64 reads a boxed float64.
func (e *Engine) UnboxFloat64(p layout.Ptr) float64 {
	return math.Float64frombits(uint64(layout.Word(p, 0)))
}

// UnboxChar reads a boxed character.
func (e *Engine) UnboxChar(p layout.Ptr) rune { return rune(uint32(layout.Word(p, 0))) }

// BoxString copies a host string into a guest string object.
func (e *Engine) BoxString(s string) layout.Ptr {
	words := 1 + (len(s)+int(layout.WordSize)-1)/int(layout.WordSize)
	p := e.allocSmall(words, layout.TagString)
	layout.SetWord(p, 0, uintptr(len(s)))
	if len(s) > 0 {
		dst := unsafe.Slice((*byte)(unsafe.Add(unsafe.Pointer(p), layout.WordSize)), len(s))
		copy(dst, s)
	}
	return p
}

// UnboxString copies a guest string into host memory.
func (e *Engine) UnboxString(p layout.Ptr) string {
	return layout.GoString(p)
}

// MakeSvec builds a simple vector from the given elements.
func (e *Engine) MakeSvec(elems ...layout.Ptr) layout.Ptr {
	if len(elems) == 0 {
		return e.emptySvec
	}
	v := e.allocSmall(1+len(elems), layout.TagSimpleVector)
	layout.SetWord(v, 0, uintptr(len(elems)))
	for i, x := range elems {
		layout.SetPtrWord(v, 1+uintptr(i), x)
	}
	return v
}

// SvecSet writes one element, with the write barrier.
func (e *Engine) SvecSet(v layout.Ptr, i int, x layout.Ptr) {
	if i < 0 || uintptr(i) >= layout.SvecLen(v) {
		e.RaiseBoundsInt(v, i+1)
	}
	layout.SvecSet(v, uintptr(i), x)
	gc.WriteBarrier(e, v, x)
}

// NewExpr builds an expression object from a head symbol and arguments.
func (e *Engine) NewExpr(head layout.Ptr, args ...layout.Ptr) layout.Ptr {
	x := e.allocTyped(2, e.types.expr)
	layout.SetPtrWord(x, 0, head)
	layout.SetPtrWord(x, 1, e.MakeSvec(args...))
	return x
}

// Array payload: length word, element type, then one reference per
// element. Elements are always boxed.
const arrayDataWord = 2

func arrayLen(a layout.Ptr) uintptr     { return layout.Word(a, 0) }
func arrayEltype(a layout.Ptr) layout.Ptr { return layout.PtrWord(a, 1) }

// AllocVector creates a one-dimensional array of n elements, each
// initialized to nothing.
func (e *Engine) AllocVector(eltype layout.Ptr, n int) layout.Ptr {
	if eltype == nil {
		eltype = e.types.any
	}
	a := e.allocTyped(arrayDataWord+n, e.types.array)
	layout.SetWord(a, 0, uintptr(n))
	layout.SetPtrWord(a, 1, eltype)
	for i := 0; i < n; i++ {
		layout.SetPtrWord(a, arrayDataWord+uintptr(i), e.nothing)
	}
	return a
}

// ArrayLen returns an array's element count.
func (e *Engine) ArrayLen(a layout.Ptr) int {
	return int(arrayLen(a))
}

// ArrayEltype returns an array's element type.
func (e *Engine) ArrayEltype(a layout.Ptr) layout.Ptr {
	return arrayEltype(a)
}

// ArrayRef reads element i (0-based). Out of range throws BoundsError.
func (e *Engine) ArrayRef(a layout.Ptr, i int) layout.Ptr {
	if i < 0 || uintptr(i) >= arrayLen(a) {
		e.RaiseBoundsInt(a, i+1)
	}
	return layout.PtrWord(a, arrayDataWord+uintptr(i))
}

// ArraySet writes element i (0-based), with the write barrier. Elements
// must be instances of the array's element type.
func (e *Engine) ArraySet(a layout.Ptr, i int, x layout.Ptr) {
	if i < 0 || uintptr(i) >= arrayLen(a) {
		e.RaiseBoundsInt(a, i+1)
	}
	if et := arrayEltype(a); et != e.types.any && !e.Isa(x, et) {
		e.RaiseTypeError("setindex!", et, x)
	}
	layout.SetPtrWord(a, arrayDataWord+uintptr(i), x)
	gc.WriteBarrier(e, a, x)
}

// IsArray reports whether p is an array.
func (e *Engine) IsArray(p layout.Ptr) bool {
	return p != nil && layout.TypeIs(p, e.types.array)
}

// numericInt extracts a host integer from any boxed integer or bool.
func (e *Engine) numericInt(p layout.Ptr) (int64, bool) {
	tag := layout.TypeTagOf(p)
	if tag >= layout.MaxSmallTypeTag {
		return 0, false
	}
	w := layout.Word(p, 0)
	switch layout.SmallTag(tag >> 4) {
	case layout.TagBool:
		if w != 0 {
			return 1, true
		}
		return 0, true
	case layout.TagInt8:
		return int64(int8(w)), true
	case layout.TagInt16:
		return int64(int16(w)), true
	case layout.TagInt32:
		return int64(int32(w)), true
	case layout.TagInt64:
		return int64(w), true
	case layout.TagUint8:
		return int64(uint8(w)), true
	case layout.TagUint16:
		return int64(uint16(w)), true
	case layout.TagUint32:
		return int64(uint32(w)), true
	case layout.TagUint64:
		return int64(w), true
	case layout.TagChar:
		return int64(uint32(w)), true
	}
	return 0, false
}

// numericFloat extracts a host float from any boxed number.
func (e *Engine) numericFloat(p layout.Ptr) (float64, bool) {
	tag := layout.TypeTagOf(p)
	if tag < layout.MaxSmallTypeTag {
		switch layout.SmallTag(tag >> 4) {
		case layout.TagFloat32:
			return float64(math.Float32frombits(uint32(layout.Word(p, 0)))), true
		case layout.TagFloat64:
			return math.Float64frombits(uint64(layout.Word(p, 0))), true
		}
	}
	if i, ok := e.numericInt(p); ok {
		return float64(i), true
	}
	return 0, false
}

// isFloat reports whether p is a boxed floating point value.
func (e *Engine) isFloat(p layout.Ptr) bool {
	tag := layout.TypeTagOf(p)
	if tag >= layout.MaxSmallTypeTag {
		return false
	}
	t := layout.SmallTag(tag >> 4)
	return t == layout.TagFloat32 || t == layout.TagFloat64
}
