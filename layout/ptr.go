package layout

import (
	"sync/atomic"
	"unsafe"
)

// Ptr is an opaque reference to a guest heap object. It points at the
// object's payload; the tag word lives immediately before it.
type Ptr unsafe.Pointer

// WordSize is the native pointer width of the runtime ABI.
const WordSize = unsafe.Sizeof(uintptr(0))

// The object model packs 64-bit scalar payloads into single words, so the
// ABI requires a 64-bit host.
const _ = WordSize - 8

// ObjectAlign is the minimum alignment of an object payload address. The
// tag word stores a full type pointer above the four metadata bits, so
// type objects below this alignment would lose their low bits to the
// collector metadata.
const ObjectAlign = 16

// Tag word layout: the low four bits are collector metadata, the rest is
// either a small-type tag or a full type pointer.
const (
	gcBitsMask  = uintptr(3)
	tagMetaMask = uintptr(15)
)

// Collector color values stored in the low tag bits.
const (
	GCClean     = uintptr(0) // young, unmarked
	GCMarked    = uintptr(1) // reachable this cycle
	GCOld       = uintptr(2) // old, pending re-mark
	GCOldMarked = uintptr(3) // fully old: survived and marked
)

// SmallTag indexes the fixed small-type table. Types the runtime touches on
// every dispatch get a compact tag instead of a full type pointer.
type SmallTag uintptr

const (
	TagDataType SmallTag = iota + 1
	TagSymbol
	TagSimpleVector
	TagModule
	TagTask
	TagString
	TagBool
	TagChar
	TagInt8
	TagInt16
	TagInt32
	TagInt64
	TagUint8
	TagUint16
	TagUint32
	TagUint64
	TagFloat32
	TagFloat64
	maxSmallTag
)

// MaxSmallTypeTag is the first tag value interpreted as a full type pointer.
const MaxSmallTypeTag = uintptr(maxSmallTag) << 4

var smallTypes [maxSmallTag]Ptr

// RegisterSmallType binds a small tag to its canonical datatype object.
// Called once per tag at runtime initialization, before any decoding.
func RegisterSmallType(tag SmallTag, dt Ptr) {
	smallTypes[tag] = dt
}

// SmallType returns the canonical datatype for a small tag.
func SmallType(tag SmallTag) Ptr {
	return smallTypes[tag]
}

func headerAddr(p Ptr) *uintptr {
	return (*uintptr)(unsafe.Add(unsafe.Pointer(p), -int(WordSize)))
}

// Header returns the raw tag word of p. The collector mutates this word
// concurrently, so the read is atomic.
func Header(p Ptr) uintptr {
	return atomic.LoadUintptr(headerAddr(p))
}

// SetHeader stores the raw tag word of p.
func SetHeader(p Ptr, h uintptr) {
	atomic.StoreUintptr(headerAddr(p), h)
}

// TypeTagOf returns the type portion of the tag word: either a shifted small
// tag or a full type pointer.
func TypeTagOf(p Ptr) uintptr {
	return Header(p) &^ tagMetaMask
}

// TypeOf decodes the dynamic type of p. Small tags go through the fixed
// table; anything at or above the threshold is itself the type pointer.
func TypeOf(p Ptr) Ptr {
	return toType(TypeTagOf(p))
}

func toType(tag uintptr) Ptr {
	if tag < MaxSmallTypeTag {
		return smallTypes[tag>>4]
	}
	return Ptr(unsafe.Pointer(tag)) //nolint:govet // tag is a live type pointer
}

// TypeIs reports whether p's dynamic type is exactly t. Identity comparison
// is sound because the runtime canonicalizes types to one allocation.
func TypeIs(p, t Ptr) bool {
	return TypeOf(p) == t
}

// TypeTagIs reports whether p carries exactly the given type tag.
func TypeTagIs(p Ptr, tag uintptr) bool {
	return TypeTagOf(p) == tag
}

// SmallTagOf returns p's small tag, or 0 if p has a full type pointer.
func SmallTagOf(p Ptr) SmallTag {
	tag := TypeTagOf(p)
	if tag < MaxSmallTypeTag {
		return SmallTag(tag >> 4)
	}
	return 0
}

// GCBits returns the collector color of p.
func GCBits(p Ptr) uintptr {
	return Header(p) & gcBitsMask
}

// SetGCBits replaces the collector color of p, preserving the type tag.
func SetGCBits(p Ptr, bits uintptr) {
	for {
		old := Header(p)
		next := (old &^ gcBitsMask) | (bits & gcBitsMask)
		if atomic.CompareAndSwapUintptr(headerAddr(p), old, next) {
			return
		}
	}
}

// MakeHeader composes a tag word from a type tag and a collector color.
func MakeHeader(typeTag, gcBits uintptr) uintptr {
	return (typeTag &^ tagMetaMask) | (gcBits & gcBitsMask)
}

// TagOfType returns the type tag a full type pointer contributes to a
// header word. The pointer must satisfy ObjectAlign or the metadata bits
// would truncate it.
func TagOfType(t Ptr) uintptr {
	tag := uintptr(unsafe.Pointer(t))
	if tag&tagMetaMask != 0 {
		panic("layout: type pointer below object alignment")
	}
	return tag
}

// Word reads the i-th payload word of p.
func Word(p Ptr, i uintptr) uintptr {
	return *(*uintptr)(unsafe.Add(unsafe.Pointer(p), i*WordSize))
}

// SetWord writes the i-th payload word of p.
func SetWord(p Ptr, i uintptr, w uintptr) {
	*(*uintptr)(unsafe.Add(unsafe.Pointer(p), i*WordSize)) = w
}

// PtrWord reads the i-th payload word of p as an object reference. The load
// is atomic: the collector may be forwarding the same slot.
func PtrWord(p Ptr, i uintptr) Ptr {
	return Ptr(atomic.LoadPointer((*unsafe.Pointer)(unsafe.Add(unsafe.Pointer(p), i*WordSize))))
}

// SetPtrWord writes the i-th payload word of p as an object reference.
// Callers are responsible for the write barrier.
func SetPtrWord(p Ptr, i uintptr, v Ptr) {
	atomic.StorePointer((*unsafe.Pointer)(unsafe.Add(unsafe.Pointer(p), i*WordSize)), unsafe.Pointer(v))
}

// FieldPtr returns the address of the byte at offset off within p's payload.
func FieldPtr(p Ptr, off uintptr) Ptr {
	return Ptr(unsafe.Add(unsafe.Pointer(p), off))
}
