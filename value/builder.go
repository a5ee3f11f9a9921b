package value

import (
	"github.com/wippyai/julia-runtime/engine"
	jlerrors "github.com/wippyai/julia-runtime/errors"
	"github.com/wippyai/julia-runtime/layout"
)

// TypeBuilder declares a new guest type from the host. Chain the
// setters, then Build. The zero kind is a concrete immutable struct;
// Abstract, Mutable and Primitive switch the kind.
//
// Host-declared types are experimental: they participate in dispatch
// and construction but the evaluator cannot redefine them.
type TypeBuilder struct {
	eng        *engine.Engine
	name       string
	mod        layout.Ptr
	super      layout.Ptr
	fieldNames []string
	fieldTypes []layout.Ptr
	abstract   bool
	mutable    bool
	primitive  bool
	nbits      int
	err        error
}

// NewType starts a builder for a type bound in Main under name.
func NewType(eng *engine.Engine, name string) *TypeBuilder {
	b := &TypeBuilder{eng: eng, name: name, mod: eng.MainModule()}
	if name == "" {
		b.err = jlerrors.New(jlerrors.KindInvalidSymbol, "new type")
	}
	return b
}

// InModule binds the type in mod instead of Main.
func (b *TypeBuilder) InModule(mod Module) *TypeBuilder {
	if b.err != nil {
		return b
	}
	p, err := mod.raw("new type")
	if err != nil {
		b.err = err
		return b
	}
	b.mod = p
	return b
}

// Super sets the declared supertype. Defaults to Any.
func (b *TypeBuilder) Super(t DataType) *TypeBuilder {
	if b.err != nil {
		return b
	}
	p, err := t.raw("new type")
	if err != nil {
		b.err = err
		return b
	}
	b.super = p
	return b
}

// Abstract declares an abstract type. Fields are rejected.
func (b *TypeBuilder) Abstract() *TypeBuilder {
	b.abstract = true
	return b
}

// Mutable makes instances mutable.
func (b *TypeBuilder) Mutable() *TypeBuilder {
	b.mutable = true
	return b
}

// Primitive declares a bits type of nbits. Fields are rejected.
func (b *TypeBuilder) Primitive(nbits int) *TypeBuilder {
	b.primitive = true
	b.nbits = nbits
	return b
}

// Field appends a declared field.
func (b *TypeBuilder) Field(name string, t DataType) *TypeBuilder {
	if b.err != nil {
		return b
	}
	p, err := t.raw("new type")
	if err != nil {
		b.err = err
		return b
	}
	b.fieldNames = append(b.fieldNames, name)
	b.fieldTypes = append(b.fieldTypes, p)
	return b
}

// Build declares the type and binds it in its module.
func (b *TypeBuilder) Build() (DataType, error) {
	if b.err != nil {
		return DataType{}, b.err
	}
	eng := b.eng
	super := b.super
	if super == nil {
		g := eng.GetGlobal(eng.CoreModule(), eng.Symbol("Any"))
		super = g
	}
	switch {
	case b.abstract && len(b.fieldNames) > 0:
		return DataType{}, jlerrors.Newf(jlerrors.KindEval, "new type", "abstract type %s cannot declare fields", b.name)
	case b.primitive && len(b.fieldNames) > 0:
		return DataType{}, jlerrors.Newf(jlerrors.KindEval, "new type", "primitive type %s cannot declare fields", b.name)
	case b.primitive && b.nbits%8 != 0:
		return DataType{}, jlerrors.Newf(jlerrors.KindEval, "new type", "primitive type %s size must be a multiple of 8 bits", b.name)
	}
	v, err := protected(eng, "new type", func() layout.Ptr {
		switch {
		case b.abstract:
			return eng.NewAbstractType(b.name, b.mod, super)
		case b.primitive:
			return eng.NewPrimitiveType(b.name, b.mod, super, b.nbits)
		default:
			return eng.NewStructType(b.name, b.mod, super, b.fieldNames, b.fieldTypes, b.mutable)
		}
	})
	if err != nil {
		return DataType{}, err
	}
	return DataType{v}, nil
}
