package engine

import (
	"math"

	"github.com/wippyai/julia-runtime/gc"
	"github.com/wippyai/julia-runtime/layout"
)

// basis holds the canonical datatype objects created at bootstrap.
type basis struct {
	any      layout.Ptr
	datatype layout.Ptr
	symbol   layout.Ptr
	svec     layout.Ptr
	module   layout.Ptr
	task     layout.Ptr
	str      layout.Ptr
	expr     layout.Ptr
	function layout.Ptr
	array    layout.Ptr
	nothing  layout.Ptr

	number   layout.Ptr
	real     layout.Ptr
	integer  layout.Ptr
	signed   layout.Ptr
	unsigned layout.Ptr
	absFloat layout.Ptr

	boolT    layout.Ptr
	charT    layout.Ptr
	int8T    layout.Ptr
	int16T   layout.Ptr
	int32T   layout.Ptr
	int64T   layout.Ptr
	uint8T   layout.Ptr
	uint16T  layout.Ptr
	uint32T  layout.Ptr
	uint64T  layout.Ptr
	float32T layout.Ptr
	float64T layout.Ptr

	exception layout.Ptr
}

// rawDataType allocates a datatype object before symbols or svecs exist.
// Fields are filled by the caller.
func (e *Engine) rawDataType() layout.Ptr {
	dt := e.allocSmall(int(layout.DataTypeWords), layout.TagDataType)
	e.markImmortal(dt)
	return dt
}

func (e *Engine) finishDataType(dt layout.Ptr, name string, super layout.Ptr, flags uintptr) layout.Ptr {
	layout.SetTypeName(dt, e.Symbol(name))
	layout.SetSuperType(dt, super)
	layout.SetFieldNames(dt, e.emptySvec)
	layout.SetFieldTypes(dt, e.emptySvec)
	layout.SetTypeFlags(dt, flags)
	return dt
}

// setBitsLayout attaches a zero-field layout of the given byte size, which
// is how primitive types describe themselves.
func (e *Engine) setBitsLayout(dt layout.Ptr, size uint32) {
	desc, err := layout.EncodeDesc(size, uint16(size), nil)
	if err != nil {
		panic(err) // fixed inputs, cannot fail
	}
	e.heap.objects[dt].desc = desc
	layout.SetLayout(dt, layout.DescPtr(desc))
}

func (e *Engine) bootstrapTypes() {
	t := &e.types

	// The datatype type must exist before any tag can resolve, and
	// symbols need their own type registered before the first intern.
	t.datatype = e.rawDataType()
	t.symbol = e.rawDataType()
	t.svec = e.rawDataType()
	layout.RegisterSmallType(layout.TagDataType, t.datatype)
	layout.RegisterSmallType(layout.TagSymbol, t.symbol)
	layout.RegisterSmallType(layout.TagSimpleVector, t.svec)

	e.emptySvec = e.markImmortal(e.allocSmall(1, layout.TagSimpleVector))
	layout.SetWord(e.emptySvec, 0, 0)

	t.any = e.rawDataType()
	e.finishDataType(t.any, "Any", t.any, layout.FlagAbstract)
	e.finishDataType(t.datatype, "DataType", t.any, 0)
	e.finishDataType(t.symbol, "Symbol", t.any, 0)
	e.finishDataType(t.svec, "SimpleVector", t.any, 0)

	abstract := func(name string, super layout.Ptr) layout.Ptr {
		return e.finishDataType(e.rawDataType(), name, super, layout.FlagAbstract)
	}
	concrete := func(name string, super layout.Ptr) layout.Ptr {
		return e.finishDataType(e.rawDataType(), name, super, 0)
	}
	primitive := func(name string, super layout.Ptr, size uint32, tag layout.SmallTag) layout.Ptr {
		dt := e.finishDataType(e.rawDataType(), name, super,
			layout.FlagPrimitive|layout.FlagIsBits)
		e.setBitsLayout(dt, size)
		layout.RegisterSmallType(tag, dt)
		return dt
	}

	t.module = concrete("Module", t.any)
	t.task = concrete("Task", t.any)
	t.str = concrete("String", t.any)
	t.array = concrete("Array", t.any)
	layout.RegisterSmallType(layout.TagModule, t.module)
	layout.RegisterSmallType(layout.TagTask, t.task)
	layout.RegisterSmallType(layout.TagString, t.str)

	t.number = abstract("Number", t.any)
	t.real = abstract("Real", t.number)
	t.integer = abstract("Integer", t.real)
	t.signed = abstract("Signed", t.integer)
	t.unsigned = abstract("Unsigned", t.integer)
	t.absFloat = abstract("AbstractFloat", t.real)

	t.boolT = primitive("Bool", t.integer, 1, layout.TagBool)
	t.charT = primitive("Char", t.any, 4, layout.TagChar)
	t.int8T = primitive("Int8", t.signed, 1, layout.TagInt8)
	t.int16T = primitive("Int16", t.signed, 2, layout.TagInt16)
	t.int32T = primitive("Int32", t.signed, 4, layout.TagInt32)
	t.int64T = primitive("Int64", t.signed, 8, layout.TagInt64)
	t.uint8T = primitive("UInt8", t.unsigned, 1, layout.TagUint8)
	t.uint16T = primitive("UInt16", t.unsigned, 2, layout.TagUint16)
	t.uint32T = primitive("UInt32", t.unsigned, 4, layout.TagUint32)
	t.uint64T = primitive("UInt64", t.unsigned, 8, layout.TagUint64)
	t.float32T = primitive("Float32", t.absFloat, 4, layout.TagFloat32)
	t.float64T = primitive("Float64", t.absFloat, 8, layout.TagFloat64)

	t.nothing = concrete("Nothing", t.any)
	e.nothing = e.markImmortal(e.allocTyped(1, t.nothing))
	layout.SetInstance(t.nothing, e.nothing)

	e.trueV = e.markImmortal(e.allocSmall(1, layout.TagBool))
	layout.SetWord(e.trueV, 0, 1)
	e.falseV = e.markImmortal(e.allocSmall(1, layout.TagBool))
	layout.SetWord(e.falseV, 0, 0)

	// Expr and Function carry two reference fields each.
	t.expr = e.newStructDataType("Expr", t.any,
		[]string{"head", "args"}, []layout.Ptr{t.any, t.any}, 0)
	e.markImmortal(t.expr)
	t.function = e.newStructDataType("Function", t.any,
		[]string{"name", "module"}, []layout.Ptr{t.symbol, t.module}, 0)
	e.markImmortal(t.function)

	t.exception = abstract("Exception", t.any)
	e.bootstrapExceptionTypes()
}

// exceptionSpecs lists the builtin exception types and their fields. The
// field sets follow the runtime's own definitions where the raisers need
// them and stay minimal elsewhere.
var exceptionSpecs = []struct {
	name   string
	fields []string
}{
	{"ArgumentError", []string{"msg"}},
	{"BoundsError", []string{"a", "i"}},
	{"CompositeException", []string{"exceptions"}},
	{"DivideError", nil},
	{"DomainError", []string{"val", "msg"}},
	{"EOFError", nil},
	{"ErrorException", []string{"msg"}},
	{"InexactError", []string{"func", "val"}},
	{"InitError", []string{"mod", "error"}},
	{"InterruptException", nil},
	{"InvalidStateException", []string{"msg", "state"}},
	{"KeyError", []string{"key"}},
	{"LoadError", []string{"file", "line", "error"}},
	{"MethodError", []string{"f", "args"}},
	{"OutOfMemoryError", nil},
	{"OverflowError", []string{"msg"}},
	{"ParseError", []string{"msg"}},
	{"ReadOnlyMemoryError", nil},
	{"RemoteException", []string{"msg"}},
	{"StackOverflowError", nil},
	{"SystemError", []string{"prefix", "errnum"}},
	{"TypeError", []string{"func", "expected", "got"}},
	{"UndefRefError", nil},
	{"UndefVarError", []string{"var"}},
	{"UnicodeError", []string{"msg"}},
}

func (e *Engine) bootstrapExceptionTypes() {
	for _, spec := range exceptionSpecs {
		ftypes := make([]layout.Ptr, len(spec.fields))
		for i := range ftypes {
			ftypes[i] = e.types.any
		}
		dt := e.newStructDataType(spec.name, e.types.exception,
			spec.fields, ftypes, layout.FlagMutable)
		e.markImmortal(dt)
		e.exc[spec.name] = dt
	}
}

// ExceptionType returns the builtin exception datatype with the given
// name, or nil.
func (e *Engine) ExceptionType(name string) layout.Ptr {
	return e.exc[name]
}

// newException constructs an instance of a builtin exception type,
// padding missing fields with nothing.
func (e *Engine) newException(name string, fields ...layout.Ptr) layout.Ptr {
	dt := e.exc[name]
	n := layout.NFields(dt)
	args := make([]layout.Ptr, n)
	for i := range args {
		if i < len(fields) {
			args[i] = fields[i]
		} else {
			args[i] = e.nothing
		}
	}
	return e.newStructUnchecked(dt, args)
}

// newStructDataType builds a concrete composite datatype. Every field
// occupies one word: reference fields hold a pointer, fields of primitive
// bits type are stored inline.
func (e *Engine) newStructDataType(name string, super layout.Ptr, fieldNames []string, fieldTypes []layout.Ptr, flags uintptr) layout.Ptr {
	dt := e.rawDataType()
	e.finishDataType(dt, name, super, flags)

	names := make([]layout.Ptr, len(fieldNames))
	for i, fn := range fieldNames {
		names[i] = e.Symbol(fn)
	}
	layout.SetFieldNames(dt, e.MakeSvec(names...))
	layout.SetFieldTypes(dt, e.MakeSvec(fieldTypes...))

	descFields := make([]layout.FieldDesc, len(fieldTypes))
	for i, ft := range fieldTypes {
		descFields[i] = layout.FieldDesc{
			Offset: uint32(i) * uint32(layout.WordSize),
			Size:   uint32(layout.WordSize),
			IsPtr:  !e.isInlineBits(ft),
		}
	}
	size := uint32(len(fieldTypes)) * uint32(layout.WordSize)
	if size == 0 {
		size = uint32(layout.WordSize)
	}
	desc, err := layout.EncodeDesc(size, uint16(layout.WordSize), descFields)
	if err != nil {
		panic(err) // word-aligned by construction
	}
	e.heap.objects[dt].desc = desc
	layout.SetLayout(dt, layout.DescPtr(desc))
	return dt
}

func (e *Engine) isInlineBits(ft layout.Ptr) bool {
	return ft != nil && layout.IsPrimitiveType(ft)
}

// NewStructType creates a user-visible composite type and binds it in the
// module. Field types may be nil for untyped fields.
func (e *Engine) NewStructType(name string, mod, super layout.Ptr, fieldNames []string, fieldTypes []layout.Ptr, mutable bool) layout.Ptr {
	if super == nil {
		super = e.types.any
	}
	for i, ft := range fieldTypes {
		if ft == nil {
			fieldTypes[i] = e.types.any
		}
	}
	var flags uintptr
	if mutable {
		flags |= layout.FlagMutable
	}
	dt := e.newStructDataType(name, super, fieldNames, fieldTypes, flags)
	if mod != nil {
		e.SetGlobal(mod, e.Symbol(name), dt)
	}
	return dt
}

// NewAbstractType creates an abstract type and binds it in the module.
func (e *Engine) NewAbstractType(name string, mod, super layout.Ptr) layout.Ptr {
	if super == nil {
		super = e.types.any
	}
	dt := e.finishDataType(e.rawDataType(), name, super, layout.FlagAbstract)
	if mod != nil {
		e.SetGlobal(mod, e.Symbol(name), dt)
	}
	return dt
}

// NewPrimitiveType creates a primitive type of nbits width and binds it in
// the module. nbits must be a multiple of 8 no larger than a word.
func (e *Engine) NewPrimitiveType(name string, mod, super layout.Ptr, nbits int) layout.Ptr {
	if super == nil {
		super = e.types.real
	}
	if nbits <= 0 || nbits%8 != 0 || nbits > int(layout.WordSize)*8 {
		e.Raisef("invalid primitive type size %d", nbits)
	}
	dt := e.finishDataType(e.rawDataType(), name, super,
		layout.FlagPrimitive|layout.FlagIsBits)
	e.setBitsLayout(dt, uint32(nbits/8))
	if mod != nil {
		e.SetGlobal(mod, e.Symbol(name), dt)
	}
	return dt
}

func (e *Engine) bindTypes() {
	bind := func(name string, dt layout.Ptr) {
		e.SetGlobal(e.core, e.Symbol(name), dt)
	}
	t := &e.types
	bind("Any", t.any)
	bind("DataType", t.datatype)
	bind("Symbol", t.symbol)
	bind("SimpleVector", t.svec)
	bind("Module", t.module)
	bind("Task", t.task)
	bind("String", t.str)
	bind("Expr", t.expr)
	bind("Function", t.function)
	bind("Array", t.array)
	bind("Nothing", t.nothing)
	bind("Number", t.number)
	bind("Real", t.real)
	bind("Integer", t.integer)
	bind("Signed", t.signed)
	bind("Unsigned", t.unsigned)
	bind("AbstractFloat", t.absFloat)
	bind("Bool", t.boolT)
	bind("Char", t.charT)
	bind("Int8", t.int8T)
	bind("Int16", t.int16T)
	bind("Int32", t.int32T)
	bind("Int64", t.int64T)
	bind("Int", t.int64T)
	bind("UInt8", t.uint8T)
	bind("UInt16", t.uint16T)
	bind("UInt32", t.uint32T)
	bind("UInt64", t.uint64T)
	bind("Float32", t.float32T)
	bind("Float64", t.float64T)
	bind("Exception", t.exception)
	for name, dt := range e.exc {
		bind(name, dt)
	}
}

// TypeOf returns the datatype of a value.
func (e *Engine) TypeOf(v layout.Ptr) layout.Ptr {
	return layout.TypeOf(v)
}

// TypeNameString returns the name of a value's type.
func (e *Engine) TypeNameString(v layout.Ptr) string {
	return e.DataTypeName(layout.TypeOf(v))
}

// DataTypeName returns a datatype's name.
func (e *Engine) DataTypeName(dt layout.Ptr) string {
	if dt == nil {
		return ""
	}
	return layout.SymbolName(layout.TypeName(dt))
}

// Isa reports whether v's type is t or a subtype of t.
func (e *Engine) Isa(v, t layout.Ptr) bool {
	return e.Subtype(layout.TypeOf(v), t)
}

// Subtype walks the supertype chain from dt to t.
func (e *Engine) Subtype(dt, t layout.Ptr) bool {
	if t == e.types.any {
		return true
	}
	for dt != nil {
		if dt == t {
			return true
		}
		super := layout.SuperType(dt)
		if super == dt {
			return false
		}
		dt = super
	}
	return false
}

// TypesEqual reports type identity. Datatypes are interned at creation,
// so pointer equality is type equality.
func (e *Engine) TypesEqual(a, b layout.Ptr) bool {
	return a == b
}

// FieldIndex returns the index of the named field in dt, or -1.
func (e *Engine) FieldIndex(dt, sym layout.Ptr) int {
	names := layout.FieldNames(dt)
	n := layout.SvecLen(names)
	for i := uintptr(0); i < n; i++ {
		if layout.SvecRef(names, i) == sym {
			return int(i)
		}
	}
	return -1
}

// NFields returns the field count of a datatype.
func (e *Engine) NFields(dt layout.Ptr) int {
	return int(layout.SvecLen(layout.FieldNames(dt)))
}

// NewStruct constructs an instance of dt from the given field values.
func (e *Engine) NewStruct(dt layout.Ptr, args ...layout.Ptr) layout.Ptr {
	if layout.IsAbstractType(dt) {
		e.RaiseMethodError(dt, args)
	}
	if layout.Instance(dt) != nil {
		if len(args) != 0 {
			e.RaiseTooManyArgs(e.DataTypeName(dt), 0)
		}
		return layout.Instance(dt)
	}
	n := e.NFields(dt)
	if len(args) != n {
		e.Throw(e.newException("ArgumentError",
			e.BoxString("wrong number of arguments to constructor")))
	}
	return e.newStructUnchecked(dt, args)
}

func (e *Engine) newStructUnchecked(dt layout.Ptr, args []layout.Ptr) layout.Ptr {
	size := layout.DataTypeSize(dt)
	words := int((size + layout.WordSize - 1) / layout.WordSize)
	v := e.allocTyped(words, dt)
	for i, a := range args {
		e.storeField(v, dt, uint32(i), a, false)
	}
	return v
}

// GetNthField reads field i of a composite value, boxing inline bits
// fields. Unset reference fields throw UndefRefError.
func (e *Engine) GetNthField(v layout.Ptr, i int) layout.Ptr {
	dt := layout.TypeOf(v)
	if i < 0 || i >= e.NFields(dt) {
		e.RaiseBoundsInt(v, i+1)
	}
	if layout.FieldIsPtr(dt, uint32(i)) {
		x := layout.PtrField(v, dt, uint32(i))
		if x == nil {
			e.Throw(e.newException("UndefRefError"))
		}
		return x
	}
	ft := layout.SvecRef(layout.FieldTypes(dt), uintptr(i))
	bits := layout.BitsField(v, dt, uint32(i))
	return e.boxBits(ft, bits)
}

// SetNthField writes field i of a mutable composite value.
func (e *Engine) SetNthField(v layout.Ptr, i int, x layout.Ptr) {
	dt := layout.TypeOf(v)
	if !layout.IsMutableType(dt) {
		e.Raisef("setfield!: immutable struct of type %s cannot be changed", e.DataTypeName(dt))
	}
	if i < 0 || i >= e.NFields(dt) {
		e.RaiseBoundsInt(v, i+1)
	}
	e.storeField(v, dt, uint32(i), x, true)
}

// storeField writes one field, converting to the declared bits type when
// the field is inline. barrier selects whether the generational write
// barrier runs; construction of a fresh object skips it.
func (e *Engine) storeField(v, dt layout.Ptr, i uint32, x layout.Ptr, barrier bool) {
	if layout.FieldIsPtr(dt, i) {
		layout.SetPtrField(v, dt, i, x)
		if barrier {
			gc.WriteBarrier(e, v, x)
		}
		return
	}
	ft := layout.SvecRef(layout.FieldTypes(dt), uintptr(i))
	layout.SetBitsField(v, dt, i, e.bitsOf(ft, x))
}

// boxBits re-boxes an inline bits field value as its declared type.
func (e *Engine) boxBits(ft layout.Ptr, bits uint64) layout.Ptr {
	switch ft {
	case e.types.boolT:
		return e.BoxBool(bits != 0)
	case e.types.charT:
		return e.BoxChar(rune(uint32(bits)))
	case e.types.int8T:
		return e.BoxInt8(int8(bits))
	case e.types.int16T:
		return e.BoxInt16(int16(bits))
	case e.types.int32T:
		return e.BoxInt32(int32(bits))
	case e.types.int64T:
		return e.BoxInt64(int64(bits))
	case e.types.uint8T:
		return e.BoxUint8(uint8(bits))
	case e.types.uint16T:
		return e.BoxUint16(uint16(bits))
	case e.types.uint32T:
		return e.BoxUint32(uint32(bits))
	case e.types.uint64T:
		return e.BoxUint64(bits)
	case e.types.float32T:
		return e.BoxFloat32(math.Float32frombits(uint32(bits)))
	case e.types.float64T:
		return e.BoxFloat64(math.Float64frombits(bits))
	}
	// User primitive types round-trip through UInt64 semantics.
	return e.BoxUint64(bits)
}

// bitsOf converts a boxed value to the raw bits of the declared field
// type, converting integers to floats where the declaration asks for it.
func (e *Engine) bitsOf(ft, x layout.Ptr) uint64 {
	switch ft {
	case e.types.float64T:
		f, ok := e.numericFloat(x)
		if !ok {
			e.RaiseTypeError("convert", ft, x)
		}
		return math.Float64bits(f)
	case e.types.float32T:
		f, ok := e.numericFloat(x)
		if !ok {
			e.RaiseTypeError("convert", ft, x)
		}
		return uint64(math.Float32bits(float32(f)))
	case e.types.boolT:
		if !layout.TypeIs(x, e.types.boolT) {
			e.RaiseTypeError("convert", ft, x)
		}
		return uint64(layout.Word(x, 0))
	default:
		i, ok := e.numericInt(x)
		if !ok {
			e.RaiseTypeError("convert", ft, x)
		}
		return uint64(i)
	}
}
