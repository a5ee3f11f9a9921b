package layout

import (
	"fmt"
	"unsafe"

	"fortio.org/safecast"
)

// A layout descriptor block describes the field layout of a concrete
// composite type. The runtime packs it as a fixed header followed by one
// field descriptor per field and one pointer-offset entry per tracked
// pointer, using the narrowest of three encodings that fits:
//
//	width flag 0: 8-bit units  (offset < 256, size < 128)
//	width flag 1: 16-bit units (offset < 65536, size < 32768)
//	width flag 2: 32-bit units
//
// Each field descriptor is two units: size<<1|isptr, then offset. The width
// flag lives in the low two bits of the header flags.

type descHeader struct {
	size      uint32
	nfields   uint32
	npointers uint32
	firstPtr  int32 // word index of the first pointer field, -1 if none
	alignment uint16
	flags     uint16
}

const descHeaderSize = unsafe.Sizeof(descHeader{})

func header(d Ptr) *descHeader {
	return (*descHeader)(unsafe.Pointer(d))
}

func descWidth(d Ptr) uint16 {
	return header(d).flags & 3
}

// fieldUnitSize returns the byte size of one descriptor unit for width w.
func fieldUnitSize(w uint16) uintptr {
	return uintptr(1) << w
}

// DescSize returns the instance byte size recorded in the descriptor.
func DescSize(d Ptr) uint32 { return header(d).size }

// DescAlignment returns the instance alignment recorded in the descriptor.
func DescAlignment(d Ptr) uint16 { return header(d).alignment }

// DescNFields returns the field count recorded in the descriptor.
func DescNFields(d Ptr) uint32 { return header(d).nfields }

// DescNPointers returns how many object references instances contain.
func DescNPointers(d Ptr) uint32 { return header(d).npointers }

// DescFirstPtr returns the word index of the first pointer field, or -1.
func DescFirstPtr(d Ptr) int32 { return header(d).firstPtr }

func fieldBase(d Ptr) unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(d), descHeaderSize)
}

func ptrBase(d Ptr) unsafe.Pointer {
	w := descWidth(d)
	return unsafe.Add(fieldBase(d), 2*fieldUnitSize(w)*uintptr(header(d).nfields))
}

func readUnit(base unsafe.Pointer, w uint16, i uintptr) uint32 {
	switch w {
	case 0:
		return uint32(*(*uint8)(unsafe.Add(base, i)))
	case 1:
		return uint32(*(*uint16)(unsafe.Add(base, 2*i)))
	default:
		return *(*uint32)(unsafe.Add(base, 4*i))
	}
}

// FieldOffset returns the byte offset of field i of datatype dt.
func FieldOffset(dt Ptr, i uint32) uintptr {
	d := LayoutOf(dt)
	w := descWidth(d)
	return uintptr(readUnit(fieldBase(d), w, uintptr(2*i+1)))
}

// FieldSize returns the byte size of field i of datatype dt.
func FieldSize(dt Ptr, i uint32) uintptr {
	d := LayoutOf(dt)
	w := descWidth(d)
	return uintptr(readUnit(fieldBase(d), w, uintptr(2*i)) >> 1)
}

// FieldIsPtr reports whether field i of datatype dt holds an object
// reference.
func FieldIsPtr(dt Ptr, i uint32) bool {
	d := LayoutOf(dt)
	w := descWidth(d)
	return readUnit(fieldBase(d), w, uintptr(2*i))&1 != 0
}

// PtrOffset returns the word index of the i-th tracked pointer slot in
// instances of dt.
func PtrOffset(dt Ptr, i uint32) uint32 {
	d := LayoutOf(dt)
	return readUnit(ptrBase(d), descWidth(d), uintptr(i))
}

// NFields returns the field count of datatype dt, 0 for opaque layouts.
func NFields(dt Ptr) uint32 {
	d := LayoutOf(dt)
	if d == nil {
		return 0
	}
	return DescNFields(d)
}

// NPointers returns the tracked pointer count of datatype dt.
func NPointers(dt Ptr) uint32 {
	d := LayoutOf(dt)
	if d == nil {
		return 0
	}
	return DescNPointers(d)
}

// DataTypeSize returns the instance byte size of dt.
func DataTypeSize(dt Ptr) uintptr {
	d := LayoutOf(dt)
	if d == nil {
		return 0
	}
	return uintptr(DescSize(d))
}

// DataTypeAlign returns the instance alignment of dt.
func DataTypeAlign(dt Ptr) uintptr {
	d := LayoutOf(dt)
	if d == nil {
		return uintptr(WordSize)
	}
	return uintptr(DescAlignment(d))
}

// IsOpaqueLayout reports a layout with pointers but no addressable fields.
func IsOpaqueLayout(d Ptr) bool {
	return DescNFields(d) == 0 && DescNPointers(d) > 0
}

// FieldDesc is one field in a descriptor under construction.
type FieldDesc struct {
	Offset uint32
	Size   uint32
	IsPtr  bool
}

// pickWidth selects the narrowest encoding that fits every field.
func pickWidth(fields []FieldDesc) uint16 {
	var w uint16
	for _, f := range fields {
		need := uint16(0)
		switch {
		case f.Offset >= 1<<16 || f.Size >= 1<<15:
			need = 2
		case f.Offset >= 1<<8 || f.Size >= 1<<7:
			need = 1
		}
		if need > w {
			w = need
		}
	}
	return w
}

func writeUnit(b []byte, w uint16, i uintptr, v uint32) {
	base := unsafe.Pointer(unsafe.SliceData(b))
	switch w {
	case 0:
		*(*uint8)(unsafe.Add(base, i)) = uint8(v)
	case 1:
		*(*uint16)(unsafe.Add(base, 2*i)) = uint16(v)
	default:
		*(*uint32)(unsafe.Add(base, 4*i)) = v
	}
}

// EncodeDesc builds a descriptor block for a composite type. The returned
// slice must be kept alive by the caller for as long as any datatype refers
// to it.
func EncodeDesc(size uint32, align uint16, fields []FieldDesc) ([]byte, error) {
	w := pickWidth(fields)
	unit := fieldUnitSize(w)

	nfields, err := safecast.Conv[uint32](len(fields))
	if err != nil {
		return nil, fmt.Errorf("field count: %w", err)
	}

	var ptrIdx []uint32
	firstPtr := int32(-1)
	for _, f := range fields {
		if !f.IsPtr {
			continue
		}
		if f.Offset%uint32(WordSize) != 0 {
			return nil, fmt.Errorf("pointer field at unaligned offset %d", f.Offset)
		}
		word := f.Offset / uint32(WordSize)
		if firstPtr < 0 {
			fp, err := safecast.Conv[int32](word)
			if err != nil {
				return nil, fmt.Errorf("first pointer offset: %w", err)
			}
			firstPtr = fp
		}
		ptrIdx = append(ptrIdx, word)
	}

	total := uintptr(descHeaderSize) + 2*unit*uintptr(nfields) + unit*uintptr(len(ptrIdx))
	b := make([]byte, total)

	h := (*descHeader)(unsafe.Pointer(unsafe.SliceData(b)))
	h.size = size
	h.nfields = nfields
	h.npointers = uint32(len(ptrIdx))
	h.firstPtr = firstPtr
	h.alignment = align
	h.flags = w

	fb := b[descHeaderSize:]
	for i, f := range fields {
		sz := f.Size << 1
		if f.IsPtr {
			sz |= 1
		}
		writeUnit(fb, w, uintptr(2*i), sz)
		writeUnit(fb, w, uintptr(2*i+1), f.Offset)
	}

	pb := b[uintptr(descHeaderSize)+2*unit*uintptr(nfields):]
	for i, word := range ptrIdx {
		writeUnit(pb, w, uintptr(i), word)
	}
	return b, nil
}

// DescPtr returns the Ptr for an encoded descriptor block.
func DescPtr(b []byte) Ptr {
	return Ptr(unsafe.Pointer(unsafe.SliceData(b)))
}
