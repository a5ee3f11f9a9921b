package layout

import (
	"sync/atomic"
	"unsafe"
)

// Raw accessors for the builtin object shapes. These mirror the runtime's
// own representation; offsets here and in the engine allocator must agree.

// String payload: length word, then the bytes.

// StringLen returns the byte length of a guest string.
func StringLen(s Ptr) uintptr {
	return Word(s, 0)
}

// StringBytes returns the guest string's bytes without copying. The slice
// aliases guest memory and is only valid until the next safepoint.
func StringBytes(s Ptr) []byte {
	n := StringLen(s)
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Add(unsafe.Pointer(s), WordSize)), n)
}

// GoString copies a guest string into host memory.
func GoString(s Ptr) string {
	return string(StringBytes(s))
}

// Symbol payload: hash word, length word, then the interned name bytes.

// SymbolHash returns the precomputed hash of a symbol.
func SymbolHash(s Ptr) uintptr {
	return Word(s, 0)
}

// SymbolName returns the interned name of a symbol. Symbols are immortal,
// so unlike StringBytes the result does not expire at a safepoint.
func SymbolName(s Ptr) string {
	n := Word(s, 1)
	if n == 0 {
		return ""
	}
	return unsafe.String((*byte)(unsafe.Add(unsafe.Pointer(s), 2*WordSize)), n)
}

// Svec payload: length word, then the element references.

// SvecLen returns the element count of a simple vector.
func SvecLen(v Ptr) uintptr {
	return Word(v, 0)
}

// SvecRef returns element i of a simple vector.
func SvecRef(v Ptr, i uintptr) Ptr {
	return PtrWord(v, 1+i)
}

// SvecSet stores element i of a simple vector. The caller owes the
// collector a write barrier for v.
func SvecSet(v Ptr, i uintptr, x Ptr) {
	SetPtrWord(v, 1+i, x)
}

// Expr payload: head symbol, args svec.

// ExprHead returns the head symbol of an expression object.
func ExprHead(e Ptr) Ptr { return PtrWord(e, 0) }

// ExprArgs returns the argument svec of an expression object.
func ExprArgs(e Ptr) Ptr { return PtrWord(e, 1) }

// ExprNArgs returns the argument count of an expression object.
func ExprNArgs(e Ptr) uintptr { return SvecLen(ExprArgs(e)) }

// ExprArg returns argument n of an expression object.
func ExprArg(e Ptr, n uintptr) Ptr { return SvecRef(ExprArgs(e), n) }

// Module payload: name symbol, parent module.

// ModuleName returns the name symbol of a module object.
func ModuleName(m Ptr) Ptr { return PtrWord(m, 0) }

// ModuleParent returns the parent of a module object, itself for roots.
func ModuleParent(m Ptr) Ptr { return PtrWord(m, 1) }

// Struct instance accessors. Field geometry comes from the datatype's
// layout descriptor; none of it may be cached across a safepoint.

// PtrField reads a pointer-valued field of v at the descriptor offset for
// field i of dt.
func PtrField(v, dt Ptr, i uint32) Ptr {
	off := FieldOffset(dt, i)
	return Ptr(atomic.LoadPointer((*unsafe.Pointer)(unsafe.Add(unsafe.Pointer(v), off))))
}

// SetPtrField writes a pointer-valued field of v. The caller owes the
// collector a write barrier for v.
func SetPtrField(v, dt Ptr, i uint32, x Ptr) {
	off := FieldOffset(dt, i)
	atomic.StorePointer((*unsafe.Pointer)(unsafe.Add(unsafe.Pointer(v), off)), unsafe.Pointer(x))
}

// BitsField reads an inline (non-pointer) field of v as raw bits,
// little-endian, up to 8 bytes.
func BitsField(v, dt Ptr, i uint32) uint64 {
	off := FieldOffset(dt, i)
	p := unsafe.Add(unsafe.Pointer(v), off)
	switch FieldSize(dt, i) {
	case 1:
		return uint64(*(*uint8)(p))
	case 2:
		return uint64(*(*uint16)(p))
	case 4:
		return uint64(*(*uint32)(p))
	default:
		return *(*uint64)(p)
	}
}

// SetBitsField writes an inline field of v from raw bits.
func SetBitsField(v, dt Ptr, i uint32, bits uint64) {
	off := FieldOffset(dt, i)
	p := unsafe.Add(unsafe.Pointer(v), off)
	switch FieldSize(dt, i) {
	case 1:
		*(*uint8)(p) = uint8(bits)
	case 2:
		*(*uint16)(p) = uint16(bits)
	case 4:
		*(*uint32)(p) = uint32(bits)
	default:
		*(*uint64)(p) = bits
	}
}
