package layout

// Datatype payload layout, in words. Every datatype object the runtime
// allocates follows this shape; the layout descriptor block hangs off
// dtLayout and is decoded by desc.go.
const (
	dtName     = uintptr(0) // Symbol
	dtSuper    = uintptr(1) // DataType
	dtFields   = uintptr(2) // Svec of Symbols
	dtTypes    = uintptr(3) // Svec of DataTypes
	dtInstance = uintptr(4) // singleton instance, if any
	dtLayout   = uintptr(5) // *Desc block, 0 for opaque types
	dtFlags    = uintptr(6)

	// DataTypeWords is the payload size of a datatype object.
	DataTypeWords = uintptr(7)
)

// Datatype flag bits.
const (
	FlagAbstract  = uintptr(1 << 0)
	FlagMutable   = uintptr(1 << 1)
	FlagPrimitive = uintptr(1 << 2)
	FlagIsBits    = uintptr(1 << 3)
)

// TypeName returns the name symbol of datatype dt.
func TypeName(dt Ptr) Ptr { return PtrWord(dt, dtName) }

// SuperType returns the declared supertype of dt.
func SuperType(dt Ptr) Ptr { return PtrWord(dt, dtSuper) }

// FieldNames returns the svec of field name symbols of dt.
func FieldNames(dt Ptr) Ptr { return PtrWord(dt, dtFields) }

// FieldTypes returns the svec of field types of dt.
func FieldTypes(dt Ptr) Ptr { return PtrWord(dt, dtTypes) }

// Instance returns the singleton instance of dt, or nil.
func Instance(dt Ptr) Ptr { return PtrWord(dt, dtInstance) }

// SetTypeName installs the name symbol of dt.
func SetTypeName(dt, sym Ptr) { SetPtrWord(dt, dtName, sym) }

// SetSuperType installs the supertype of dt.
func SetSuperType(dt, super Ptr) { SetPtrWord(dt, dtSuper, super) }

// SetFieldNames installs the field-name svec of dt.
func SetFieldNames(dt, names Ptr) { SetPtrWord(dt, dtFields, names) }

// SetFieldTypes installs the field-type svec of dt.
func SetFieldTypes(dt, types Ptr) { SetPtrWord(dt, dtTypes, types) }

// SetInstance installs the singleton instance of dt.
func SetInstance(dt, inst Ptr) { SetPtrWord(dt, dtInstance, inst) }

// TypeFlags returns the raw flag word of dt.
func TypeFlags(dt Ptr) uintptr { return Word(dt, dtFlags) }

// SetTypeFlags stores the raw flag word of dt.
func SetTypeFlags(dt Ptr, flags uintptr) { SetWord(dt, dtFlags, flags) }

// IsAbstractType reports whether dt is declared abstract.
func IsAbstractType(dt Ptr) bool { return TypeFlags(dt)&FlagAbstract != 0 }

// IsMutableType reports whether instances of dt are mutable.
func IsMutableType(dt Ptr) bool { return TypeFlags(dt)&FlagMutable != 0 }

// IsPrimitiveType reports whether dt is a sized primitive.
func IsPrimitiveType(dt Ptr) bool { return TypeFlags(dt)&FlagPrimitive != 0 }

// IsBitsType reports whether instances of dt contain no object references.
func IsBitsType(dt Ptr) bool { return TypeFlags(dt)&FlagIsBits != 0 }

// LayoutOf returns dt's layout descriptor block, or nil for opaque types.
// The result must not be cached across a safepoint.
func LayoutOf(dt Ptr) Ptr { return PtrWord(dt, dtLayout) }

// SetLayout installs dt's layout descriptor block.
func SetLayout(dt, desc Ptr) { SetPtrWord(dt, dtLayout, desc) }

// IsStructType reports whether dt is a concrete composite type.
func IsStructType(dt Ptr) bool {
	return TypeIs(dt, SmallType(TagDataType)) && !IsAbstractType(dt) && !IsPrimitiveType(dt)
}
