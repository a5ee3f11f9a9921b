package value

import (
	"github.com/wippyai/julia-runtime/engine"
	jlerrors "github.com/wippyai/julia-runtime/errors"
	"github.com/wippyai/julia-runtime/layout"
)

// Constructors box a host scalar into a rooted handle. Unboxers on
// Value check the dynamic type tag first and fail with an
// invalid-unbox error on mismatch rather than reinterpreting bits.

// Nothing returns a handle to the nothing singleton.
func Nothing(eng *engine.Engine) Value {
	return NewUnchecked(eng, eng.Nothing())
}

// Bool boxes a host bool.
func Bool(eng *engine.Engine, v bool) Value {
	return NewUnchecked(eng, eng.BoxBool(v))
}

// Int8 boxes a host int8.
func Int8(eng *engine.Engine, v int8) Value {
	return NewUnchecked(eng, eng.BoxInt8(v))
}

// Int16 boxes a host int16.
func Int16(eng *engine.Engine, v int16) Value {
	return NewUnchecked(eng, eng.BoxInt16(v))
}

// Int32 boxes a host int32.
func Int32(eng *engine.Engine, v int32) Value {
	return NewUnchecked(eng, eng.BoxInt32(v))
}

// Int64 boxes a host int64.
func Int64(eng *engine.Engine, v int64) Value {
	return NewUnchecked(eng, eng.BoxInt64(v))
}

// Uint8 boxes a host uint8.
func Uint8(eng *engine.Engine, v uint8) Value {
	return NewUnchecked(eng, eng.BoxUint8(v))
}

// Uint16 boxes a host uint16.
func Uint16(eng *engine.Engine, v uint16) Value {
	return NewUnchecked(eng, eng.BoxUint16(v))
}

// Uint32 boxes a host uint32.
func Uint32(eng *engine.Engine, v uint32) Value {
	return NewUnchecked(eng, eng.BoxUint32(v))
}

// Uint64 boxes a host uint64.
func Uint64(eng *engine.Engine, v uint64) Value {
	return NewUnchecked(eng, eng.BoxUint64(v))
}

// Float32 boxes a host float32.
func Float32(eng *engine.Engine, v float32) Value {
	return NewUnchecked(eng, eng.BoxFloat32(v))
}

// Float64 boxes a host float64.
func Float64(eng *engine.Engine, v float64) Value {
	return NewUnchecked(eng, eng.BoxFloat64(v))
}

// Char boxes a host rune.
func Char(eng *engine.Engine, v rune) Value {
	return NewUnchecked(eng, eng.BoxChar(v))
}

// Str boxes a host string.
func Str(eng *engine.Engine, s string) Value {
	return NewUnchecked(eng, eng.BoxString(s))
}

// checkedRaw returns the pointer only if it carries the expected tag.
func (v Value) checkedRaw(want layout.SmallTag, name string) (layout.Ptr, error) {
	p, err := v.raw("unbox")
	if err != nil {
		return nil, err
	}
	if !layout.TypeTagIs(p, uintptr(want)<<4) {
		return nil, jlerrors.InvalidUnbox(name, v.s.eng.TypeNameString(p))
	}
	return p, nil
}

// Bool unboxes a guest Bool.
func (v Value) Bool() (bool, error) {
	p, err := v.checkedRaw(layout.TagBool, "Bool")
	if err != nil {
		return false, err
	}
	return v.s.eng.UnboxBool(p), nil
}

// Int8 unboxes a guest Int8.
func (v Value) Int8() (int8, error) {
	p, err := v.checkedRaw(layout.TagInt8, "Int8")
	if err != nil {
		return 0, err
	}
	return v.s.eng.UnboxInt8(p), nil
}

// Int16 unboxes a guest Int16.
func (v Value) Int16() (int16, error) {
	p, err := v.checkedRaw(layout.TagInt16, "Int16")
	if err != nil {
		return 0, err
	}
	return v.s.eng.UnboxInt16(p), nil
}

// Int32 unboxes a guest Int32.
func (v Value) Int32() (int32, error) {
	p, err := v.checkedRaw(layout.TagInt32, "Int32")
	if err != nil {
		return 0, err
	}
	return v.s.eng.UnboxInt32(p), nil
}

// Int64 unboxes a guest Int64.
func (v Value) Int64() (int64, error) {
	p, err := v.checkedRaw(layout.TagInt64, "Int64")
	if err != nil {
		return 0, err
	}
	return v.s.eng.UnboxInt64(p), nil
}

// Uint8 unboxes a guest UInt8.
func (v Value) Uint8() (uint8, error) {
	p, err := v.checkedRaw(layout.TagUint8, "UInt8")
	if err != nil {
		return 0, err
	}
	return v.s.eng.UnboxUint8(p), nil
}

// Uint16 unboxes a guest UInt16.
func (v Value) Uint16() (uint16, error) {
	p, err := v.checkedRaw(layout.TagUint16, "UInt16")
	if err != nil {
		return 0, err
	}
	return v.s.eng.UnboxUint16(p), nil
}

// Uint32 unboxes a guest UInt32.
func (v Value) Uint32() (uint32, error) {
	p, err := v.checkedRaw(layout.TagUint32, "UInt32")
	if err != nil {
		return 0, err
	}
	return v.s.eng.UnboxUint32(p), nil
}

// Uint64 unboxes a guest UInt64.
func (v Value) Uint64() (uint64, error) {
	p, err := v.checkedRaw(layout.TagUint64, "UInt64")
	if err != nil {
		return 0, err
	}
	return v.s.eng.UnboxUint64(p), nil
}

// Float32 unboxes a guest Float32.
func (v Value) Float32() (float32, error) {
	p, err := v.checkedRaw(layout.TagFloat32, "Float32")
	if err != nil {
		return 0, err
	}
	return v.s.eng.UnboxFloat32(p), nil
}

// Float64 unboxes a guest Float64.
func (v Value) Float64() (float64, error) {
	p, err := v.checkedRaw(layout.TagFloat64, "Float64")
	if err != nil {
		return 0, err
	}
	return v.s.eng.UnboxFloat64(p), nil
}

// Char unboxes a guest Char.
func (v Value) Char() (rune, error) {
	p, err := v.checkedRaw(layout.TagChar, "Char")
	if err != nil {
		return 0, err
	}
	return v.s.eng.UnboxChar(p), nil
}

// Str unboxes a guest string.
func (v Value) Str() (string, error) {
	p, err := v.checkedRaw(layout.TagString, "String")
	if err != nil {
		return "", err
	}
	return v.s.eng.UnboxString(p), nil
}
