package metadata

import (
	"fmt"
	"strings"
)

// ElementType is an ECMA-335 signature element type byte.
type ElementType byte

const (
	ElementVoid        ElementType = 0x01
	ElementBoolean     ElementType = 0x02
	ElementChar        ElementType = 0x03
	ElementI1          ElementType = 0x04
	ElementU1          ElementType = 0x05
	ElementI2          ElementType = 0x06
	ElementU2          ElementType = 0x07
	ElementI4          ElementType = 0x08
	ElementU4          ElementType = 0x09
	ElementI8          ElementType = 0x0A
	ElementU8          ElementType = 0x0B
	ElementR4          ElementType = 0x0C
	ElementR8          ElementType = 0x0D
	ElementString      ElementType = 0x0E
	ElementPtr         ElementType = 0x0F
	ElementByRef       ElementType = 0x10
	ElementValueType   ElementType = 0x11
	ElementClass       ElementType = 0x12
	ElementVar         ElementType = 0x13
	ElementGenericInst ElementType = 0x15
	ElementTypedByRef  ElementType = 0x16
	ElementI           ElementType = 0x18
	ElementU           ElementType = 0x19
	ElementObject      ElementType = 0x1C
	ElementSZArray     ElementType = 0x1D
	ElementMVar        ElementType = 0x1E
	ElementCModReqd    ElementType = 0x1F
	ElementCModOpt     ElementType = 0x20
	ElementPinned      ElementType = 0x45

	localSigLead byte = 0x07
)

// TypeSig is a type in signature form. Build one with the constructors
// below; the zero value is invalid.
type TypeSig struct {
	elem  ElementType
	token Token     // class, valuetype, generic definition
	index uint32    // var, mvar
	inner *TypeSig  // ptr, szarray
	args  []TypeSig // generic arguments
}

var primitiveNames = map[string]ElementType{
	"void":       ElementVoid,
	"bool":       ElementBoolean,
	"char":       ElementChar,
	"int8":       ElementI1,
	"uint8":      ElementU1,
	"int16":      ElementI2,
	"uint16":     ElementU2,
	"int32":      ElementI4,
	"uint32":     ElementU4,
	"int64":      ElementI8,
	"uint64":     ElementU8,
	"float32":    ElementR4,
	"float64":    ElementR8,
	"string":     ElementString,
	"object":     ElementObject,
	"native int": ElementI,
	"nint":       ElementI,
	"nuint":      ElementU,
	"typedref":   ElementTypedByRef,
}

var elementNames = map[ElementType]string{
	ElementVoid:       "void",
	ElementBoolean:    "bool",
	ElementChar:       "char",
	ElementI1:         "int8",
	ElementU1:         "uint8",
	ElementI2:         "int16",
	ElementU2:         "uint16",
	ElementI4:         "int32",
	ElementU4:         "uint32",
	ElementI8:         "int64",
	ElementU8:         "uint64",
	ElementR4:         "float32",
	ElementR8:         "float64",
	ElementString:     "string",
	ElementObject:     "object",
	ElementI:          "native int",
	ElementU:          "nuint",
	ElementTypedByRef: "typedref",
}

// Primitive returns the signature of a primitive element type.
func Primitive(e ElementType) TypeSig { return TypeSig{elem: e} }

// PrimitiveByName resolves an ILAsm-style primitive name such as "int32".
func PrimitiveByName(name string) (TypeSig, bool) {
	e, ok := primitiveNames[strings.ToLower(name)]
	if !ok {
		return TypeSig{}, false
	}
	return TypeSig{elem: e}, true
}

func Class(t Token) TypeSig { return TypeSig{elem: ElementClass, token: t} }
func ValueType(t Token) TypeSig { return TypeSig{elem: ElementValueType, token: t} }
func Var(i uint32) TypeSig { return TypeSig{elem: ElementVar, index: i} }
func MVar(i uint32) TypeSig { return TypeSig{elem: ElementMVar, index: i} }
func SZArray(of TypeSig) TypeSig { return TypeSig{elem: ElementSZArray, inner: &of} }
func Ptr(to TypeSig) TypeSig { return TypeSig{elem: ElementPtr, inner: &to} }

// GenericInst instantiates a generic class or value type with args.
func GenericInst(valueType bool, def Token, args ...TypeSig) TypeSig {
	kind := ElementClass
	if valueType {
		kind = ElementValueType
	}
	return TypeSig{
		elem:  ElementGenericInst,
		token: def,
		index: uint32(kind),
		args:  append([]TypeSig(nil), args...),
	}
}

// Element returns the leading element type.
func (s TypeSig) Element() ElementType { return s.elem }

func (s TypeSig) String() string {
	switch s.elem {
	case ElementClass:
		return "class " + s.token.String()
	case ElementValueType:
		return "valuetype " + s.token.String()
	case ElementVar:
		return fmt.Sprintf("!%d", s.index)
	case ElementMVar:
		return fmt.Sprintf("!!%d", s.index)
	case ElementSZArray:
		return s.inner.String() + "[]"
	case ElementPtr:
		return s.inner.String() + "*"
	case ElementGenericInst:
		parts := make([]string, len(s.args))
		for i, a := range s.args {
			parts[i] = a.String()
		}
		return s.token.String() + "<" + strings.Join(parts, ", ") + ">"
	}
	if name, ok := elementNames[s.elem]; ok {
		return name
	}
	return fmt.Sprintf("ElementType(0x%02X)", byte(s.elem))
}

// AppendTo appends the encoded signature.
func (s TypeSig) AppendTo(buf []byte) ([]byte, error) {
	var err error
	switch s.elem {
	case ElementVoid, ElementBoolean, ElementChar, ElementI1, ElementU1,
		ElementI2, ElementU2, ElementI4, ElementU4, ElementI8, ElementU8,
		ElementR4, ElementR8, ElementString, ElementTypedByRef,
		ElementI, ElementU, ElementObject:
		return append(buf, byte(s.elem)), nil
	case ElementClass, ElementValueType:
		buf = append(buf, byte(s.elem))
		return AppendTypeDefOrRef(buf, s.token)
	case ElementVar, ElementMVar:
		buf = append(buf, byte(s.elem))
		return AppendCompressedUint(buf, s.index)
	case ElementSZArray, ElementPtr:
		if s.inner == nil {
			return buf, fmt.Errorf("%w: %v without element type", ErrInvalidSignature, s.elem)
		}
		buf = append(buf, byte(s.elem))
		return s.inner.AppendTo(buf)
	case ElementGenericInst:
		if len(s.args) == 0 {
			return buf, fmt.Errorf("%w: generic instantiation without arguments", ErrInvalidSignature)
		}
		buf = append(buf, byte(s.elem), byte(s.index))
		if buf, err = AppendTypeDefOrRef(buf, s.token); err != nil {
			return buf, err
		}
		if buf, err = AppendCompressedUint(buf, uint32(len(s.args))); err != nil {
			return buf, err
		}
		for _, a := range s.args {
			if buf, err = a.AppendTo(buf); err != nil {
				return buf, err
			}
		}
		return buf, nil
	}
	return buf, fmt.Errorf("%w: element type 0x%02X", ErrInvalidSignature, byte(s.elem))
}

// Modifier is a custom modifier applied to a local's type.
type Modifier struct {
	Required bool
	Type     Token
}

// LocalVariable declares one local slot. Name is for listings only and is
// never encoded.
type LocalVariable struct {
	Name      string
	Type      TypeSig
	ByRef     bool
	Pinned    bool
	Modifiers []Modifier
}

// EncodeLocalVarSig encodes a LocalVarSig blob.
func EncodeLocalVarSig(locals []LocalVariable) ([]byte, error) {
	buf := []byte{localSigLead}
	buf, err := AppendCompressedUint(buf, uint32(len(locals)))
	if err != nil {
		return nil, err
	}
	for i, l := range locals {
		for _, m := range l.Modifiers {
			lead := ElementCModOpt
			if m.Required {
				lead = ElementCModReqd
			}
			buf = append(buf, byte(lead))
			if buf, err = AppendTypeDefOrRef(buf, m.Type); err != nil {
				return nil, fmt.Errorf("local %d: %w", i, err)
			}
		}
		if l.Pinned {
			buf = append(buf, byte(ElementPinned))
		}
		if l.ByRef {
			buf = append(buf, byte(ElementByRef))
		}
		if buf, err = l.Type.AppendTo(buf); err != nil {
			return nil, fmt.Errorf("local %d: %w", i, err)
		}
	}
	return buf, nil
}
