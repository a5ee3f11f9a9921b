package layout

import (
	"testing"
	"unsafe"
)

// alloc fabricates a guest object: one header word, then payload words.
// The payload lands on an ObjectAlign boundary so full type pointers
// survive the header encoding. The returned block starts at the header,
// payload at index 1, and keeps the backing memory alive for the test.
func alloc(t *testing.T, payloadWords int) (Ptr, []uintptr) {
	t.Helper()
	block := make([]uintptr, 2+payloadWords)
	idx := 1
	if uintptr(unsafe.Pointer(&block[idx]))%ObjectAlign != 0 {
		idx = 2
	}
	p := Ptr(unsafe.Pointer(&block[idx]))
	t.Cleanup(func() { _ = block })
	return p, block[idx-1:]
}

func TestTagDecode(t *testing.T) {
	p, _ := alloc(t, 2)

	// Small tag path.
	SetHeader(p, MakeHeader(uintptr(TagInt64)<<4, GCClean))
	if got := SmallTagOf(p); got != TagInt64 {
		t.Errorf("SmallTagOf = %d, want %d", got, TagInt64)
	}

	dt, _ := alloc(t, int(DataTypeWords))
	RegisterSmallType(TagInt64, dt)
	if TypeOf(p) != dt {
		t.Error("small tag did not map through the fixed table")
	}
	if !TypeTagIs(p, uintptr(TagInt64)<<4) {
		t.Error("TypeTagIs mismatch for small tag")
	}

	// Full pointer path.
	full, _ := alloc(t, int(DataTypeWords))
	SetHeader(p, MakeHeader(TagOfType(full), GCClean))
	if SmallTagOf(p) != 0 {
		t.Error("full type pointer decoded as a small tag")
	}
	if TypeOf(p) != full {
		t.Error("full type pointer did not decode to itself")
	}
	if !TypeIs(p, full) {
		t.Error("TypeIs should compare decoded pointers by identity")
	}
}

func TestGCBits(t *testing.T) {
	p, _ := alloc(t, 1)
	typeTag := uintptr(TagString) << 4
	SetHeader(p, MakeHeader(typeTag, GCClean))

	for _, bits := range []uintptr{GCMarked, GCOld, GCOldMarked, GCClean} {
		SetGCBits(p, bits)
		if got := GCBits(p); got != bits {
			t.Errorf("GCBits = %d, want %d", got, bits)
		}
		if got := TypeTagOf(p); got != typeTag {
			t.Errorf("type tag disturbed by color write: %#x", got)
		}
	}
}

func TestDescRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		fields    []FieldDesc
		wantWidth uint16
	}{
		{
			name: "8-bit",
			fields: []FieldDesc{
				{Offset: 0, Size: 8, IsPtr: true},
				{Offset: 8, Size: 4, IsPtr: false},
				{Offset: 16, Size: 8, IsPtr: true},
			},
			wantWidth: 0,
		},
		{
			name: "16-bit by offset",
			fields: []FieldDesc{
				{Offset: 0, Size: 8, IsPtr: true},
				{Offset: 512, Size: 8, IsPtr: false},
			},
			wantWidth: 1,
		},
		{
			name: "16-bit by size",
			fields: []FieldDesc{
				{Offset: 0, Size: 200, IsPtr: false},
			},
			wantWidth: 1,
		},
		{
			name: "32-bit",
			fields: []FieldDesc{
				{Offset: 0, Size: 8, IsPtr: true},
				{Offset: 1 << 17, Size: 8, IsPtr: false},
			},
			wantWidth: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var size uint32
			for _, f := range tt.fields {
				if end := f.Offset + f.Size; end > size {
					size = end
				}
			}
			b, err := EncodeDesc(size, 8, tt.fields)
			if err != nil {
				t.Fatal(err)
			}

			dt, _ := alloc(t, int(DataTypeWords))
			SetHeader(dt, MakeHeader(uintptr(TagDataType)<<4, GCClean))
			SetLayout(dt, DescPtr(b))

			d := LayoutOf(dt)
			if got := descWidth(d); got != tt.wantWidth {
				t.Fatalf("width = %d, want %d", got, tt.wantWidth)
			}
			if got := DescSize(d); got != size {
				t.Errorf("size = %d, want %d", got, size)
			}
			if got := NFields(dt); got != uint32(len(tt.fields)) {
				t.Fatalf("nfields = %d, want %d", got, len(tt.fields))
			}

			var nptrs uint32
			for i, f := range tt.fields {
				if got := FieldOffset(dt, uint32(i)); got != uintptr(f.Offset) {
					t.Errorf("field %d offset = %d, want %d", i, got, f.Offset)
				}
				if got := FieldSize(dt, uint32(i)); got != uintptr(f.Size) {
					t.Errorf("field %d size = %d, want %d", i, got, f.Size)
				}
				if got := FieldIsPtr(dt, uint32(i)); got != f.IsPtr {
					t.Errorf("field %d isptr = %v, want %v", i, got, f.IsPtr)
				}
				if f.IsPtr {
					want := f.Offset / uint32(WordSize)
					if got := PtrOffset(dt, nptrs); got != want {
						t.Errorf("ptr %d offset = %d, want %d", nptrs, got, want)
					}
					nptrs++
				}
			}
			if got := NPointers(dt); got != nptrs {
				t.Errorf("npointers = %d, want %d", got, nptrs)
			}
		})
	}
}

func TestEncodeDescRejectsUnalignedPointer(t *testing.T) {
	_, err := EncodeDesc(16, 8, []FieldDesc{{Offset: 3, Size: 8, IsPtr: true}})
	if err == nil {
		t.Fatal("expected error for unaligned pointer field")
	}
}

func TestStringAccessors(t *testing.T) {
	text := "hello, guest"
	words := 1 + (len(text)+int(WordSize)-1)/int(WordSize)
	s, block := alloc(t, words)
	SetHeader(s, MakeHeader(uintptr(TagString)<<4, GCClean))
	block[1] = uintptr(len(text))
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&block[2])), len(text)), text)

	if got := StringLen(s); got != uintptr(len(text)) {
		t.Fatalf("StringLen = %d, want %d", got, len(text))
	}
	if got := GoString(s); got != text {
		t.Errorf("GoString = %q, want %q", got, text)
	}
}

func TestSymbolAccessors(t *testing.T) {
	name := "setfield!"
	words := 2 + (len(name)+int(WordSize)-1)/int(WordSize)
	s, block := alloc(t, words)
	SetHeader(s, MakeHeader(uintptr(TagSymbol)<<4, GCOldMarked))
	block[1] = 0xfeed // hash
	block[2] = uintptr(len(name))
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&block[3])), len(name)), name)

	if got := SymbolHash(s); got != 0xfeed {
		t.Errorf("SymbolHash = %#x, want 0xfeed", got)
	}
	if got := SymbolName(s); got != name {
		t.Errorf("SymbolName = %q, want %q", got, name)
	}
}

func TestSvecAccessors(t *testing.T) {
	a, _ := alloc(t, 1)
	b, _ := alloc(t, 1)
	v, block := alloc(t, 3)
	SetHeader(v, MakeHeader(uintptr(TagSimpleVector)<<4, GCClean))
	block[1] = 2

	SvecSet(v, 0, a)
	SvecSet(v, 1, b)

	if got := SvecLen(v); got != 2 {
		t.Fatalf("SvecLen = %d, want 2", got)
	}
	if SvecRef(v, 0) != a || SvecRef(v, 1) != b {
		t.Error("SvecRef returned wrong elements")
	}
}

func TestStructFields(t *testing.T) {
	// struct { x::Float64; y::Ref }
	b, err := EncodeDesc(16, 8, []FieldDesc{
		{Offset: 0, Size: 8, IsPtr: false},
		{Offset: 8, Size: 8, IsPtr: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	dt, _ := alloc(t, int(DataTypeWords))
	SetHeader(dt, MakeHeader(uintptr(TagDataType)<<4, GCClean))
	SetLayout(dt, DescPtr(b))

	inst, _ := alloc(t, 2)
	SetHeader(inst, MakeHeader(TagOfType(dt), GCClean))

	SetBitsField(inst, dt, 0, 0x400921fb54442d18) // bits of pi
	if got := BitsField(inst, dt, 0); got != 0x400921fb54442d18 {
		t.Errorf("BitsField = %#x", got)
	}

	ref, _ := alloc(t, 1)
	SetPtrField(inst, dt, 1, ref)
	if got := PtrField(inst, dt, 1); got != ref {
		t.Error("PtrField did not return the stored reference")
	}
}
