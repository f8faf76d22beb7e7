package ilfile

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/ilasm/il"
	"github.com/chazu/ilasm/metadata"
	"github.com/chazu/ilasm/methodbody"
)

// ErrBadOperand is wrapped when an operand cannot be parsed for its
// instruction.
var ErrBadOperand = errors.New("bad operand")

// Builder turns the method into a methodbody.Builder. Local types are
// resolved here; instructions are encoded when the builder runs.
func (m *Method) Builder(path string) (methodbody.Builder, error) {
	b := methodbody.NewBuilder()
	if m.MaxStack != nil {
		b = b.MaxStack(*m.MaxStack)
	}
	if m.NoInit {
		b = b.InitLocals(false)
	}
	for _, l := range m.Locals {
		v, err := l.Variable()
		if err != nil {
			return b, &Error{Path: path, Pos: l.Pos, Err: err}
		}
		b = b.LocalVar(v)
	}
	for _, c := range m.Handlers {
		lh, err := c.Clause()
		if err != nil {
			return b, &Error{Path: path, Pos: c.Pos, Err: err}
		}
		b = b.Clause(lh)
	}
	stmts := m.Statements
	return b.Implementation(func(a *il.Assembler) error {
		for _, s := range stmts {
			if err := s.Emit(a); err != nil {
				return &Error{Path: path, Pos: s.Pos, Err: err}
			}
		}
		return nil
	}), nil
}

// Variable resolves the local's type.
func (l Local) Variable() (metadata.LocalVariable, error) {
	sig, err := l.Type.Sig()
	if err != nil {
		return metadata.LocalVariable{}, err
	}
	return metadata.LocalVariable{
		Name:   l.Name,
		Type:   sig,
		ByRef:  l.Type.ByRef,
		Pinned: l.Type.Pinned,
	}, nil
}

// Sig converts the expression to a signature type.
func (t TypeExpr) Sig() (metadata.TypeSig, error) {
	var sig metadata.TypeSig
	switch {
	case t.Base == "class":
		sig = metadata.Class(metadata.Token(t.Token))
	case t.Base == "valuetype":
		sig = metadata.ValueType(metadata.Token(t.Token))
	case strings.HasPrefix(t.Base, "!!"):
		n, err := strconv.ParseUint(t.Base[2:], 10, 32)
		if err != nil {
			return sig, fmt.Errorf("%w: bad method type parameter %q", metadata.ErrInvalidSignature, t.Base)
		}
		sig = metadata.MVar(uint32(n))
	case strings.HasPrefix(t.Base, "!"):
		n, err := strconv.ParseUint(t.Base[1:], 10, 32)
		if err != nil {
			return sig, fmt.Errorf("%w: bad type parameter %q", metadata.ErrInvalidSignature, t.Base)
		}
		sig = metadata.Var(uint32(n))
	default:
		prim, ok := metadata.PrimitiveByName(t.Base)
		if !ok {
			return sig, fmt.Errorf("%w: unknown type %q", metadata.ErrInvalidSignature, t.Base)
		}
		sig = prim
	}
	for _, s := range t.Suffix {
		switch s {
		case "[]":
			sig = metadata.SZArray(sig)
		case "*":
			sig = metadata.Ptr(sig)
		}
	}
	return sig, nil
}

// Clause converts the directive to a label-based handler.
func (c TryClause) Clause() (methodbody.LabeledHandler, error) {
	lh := methodbody.LabeledHandler{
		TryStart:     c.TryStart,
		TryEnd:       c.TryEnd,
		HandlerStart: c.HandlerStart,
		HandlerEnd:   c.HandlerEnd,
		FilterStart:  c.FilterStart,
		ClassToken:   metadata.Token(c.ClassToken),
	}
	switch c.Kind {
	case "catch":
		lh.Kind = methodbody.KindException
		if lh.ClassToken.IsNil() {
			lh.Kind = methodbody.KindFault
		}
	case "finally":
		lh.Kind = methodbody.KindFinally
	case "fault":
		lh.Kind = methodbody.KindFault
	case "filter":
		lh.Kind = methodbody.KindFilter
	default:
		return lh, fmt.Errorf("%w: unknown handler kind %q", ErrSyntax, c.Kind)
	}
	return lh, nil
}

// ---------------------------------------------------------------------------
// Instruction encoding
// ---------------------------------------------------------------------------

// Emit encodes the statement into a.
func (s Statement) Emit(a *il.Assembler) error {
	if s.IsLabel() {
		return a.DefineLabel(s.Label)
	}
	d, ok := il.Lookup(s.Mnemonic)
	if !ok {
		return fmt.Errorf("%w: %q", il.ErrUnknownMnemonic, s.Mnemonic)
	}

	if d.Operand == il.OperandSwitch {
		return s.emitSwitch(a)
	}
	if s.List {
		return fmt.Errorf("%w: %s does not take a list", ErrBadOperand, d.Mnemonic)
	}
	if len(s.Operands) == 0 {
		return a.Emit(d.Mnemonic, il.NoOperand)
	}
	arg := s.Operands[0]
	if d.Operand == il.OperandNone {
		return fmt.Errorf("%w: %s takes no operand, got %q", il.ErrUnexpectedOperand, d.Mnemonic, arg)
	}
	if d.IsBranch() && !isNumeric(arg) {
		return a.EmitBranch(d.Mnemonic, arg)
	}
	op, err := ParseOperand(d.Operand, arg)
	if err != nil {
		return fmt.Errorf("%s: %w", d.Mnemonic, err)
	}
	return a.Emit(d.Mnemonic, op)
}

func (s Statement) emitSwitch(a *il.Assembler) error {
	if !s.List {
		return fmt.Errorf("%w: switch wants a (target, ...) list", ErrBadOperand)
	}
	numeric := 0
	for _, o := range s.Operands {
		if isNumeric(o) {
			numeric++
		}
	}
	switch numeric {
	case 0:
		return a.EmitSwitch(s.Operands...)
	case len(s.Operands):
		targets := make([]int32, len(s.Operands))
		for i, o := range s.Operands {
			v, err := strconv.ParseInt(o, 0, 32)
			if err != nil {
				return fmt.Errorf("%w: switch target %q", ErrBadOperand, o)
			}
			targets[i] = int32(v)
		}
		return a.Emit("switch", il.Switch(targets...))
	}
	return fmt.Errorf("%w: switch mixes labels and offsets", ErrBadOperand)
}

// ParseOperand parses text as an operand of the given kind.
func ParseOperand(kind il.OperandKind, text string) (il.Operand, error) {
	bad := func(err error) (il.Operand, error) {
		return il.NoOperand, fmt.Errorf("%w: %q as %v: %v", ErrBadOperand, text, kind, err)
	}
	switch kind {
	case il.OperandInt8, il.OperandInt16, il.OperandInt32, il.OperandInt64:
		bits := 8 * kind.Width()
		v, err := parseSigned(text, bits)
		if err != nil {
			return bad(err)
		}
		switch kind {
		case il.OperandInt8:
			return il.Int8(int8(v)), nil
		case il.OperandInt16:
			return il.Int16(int16(v)), nil
		case il.OperandInt32:
			return il.Int32(int32(v)), nil
		}
		return il.Int64(v), nil
	case il.OperandUInt8, il.OperandUInt16, il.OperandUInt32, il.OperandUInt64, il.OperandToken:
		bits := 8 * kind.Width()
		v, err := strconv.ParseUint(text, 0, bits)
		if err != nil {
			return bad(err)
		}
		switch kind {
		case il.OperandUInt8:
			return il.UInt8(uint8(v)), nil
		case il.OperandUInt16:
			return il.UInt16(uint16(v)), nil
		case il.OperandUInt32:
			return il.UInt32(uint32(v)), nil
		case il.OperandToken:
			return il.Token(metadata.Token(v)), nil
		}
		return il.UInt64(v), nil
	case il.OperandFloat32:
		v, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return bad(err)
		}
		return il.Float32(float32(v)), nil
	case il.OperandFloat64:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return bad(err)
		}
		return il.Float64(v), nil
	}
	return bad(fmt.Errorf("unsupported kind"))
}

// parseSigned accepts negative decimals and hex bit patterns such as
// 0xFFFFFFFF for int32.
func parseSigned(text string, bits int) (int64, error) {
	v, err := strconv.ParseInt(text, 0, bits)
	if err == nil {
		return v, nil
	}
	u, uerr := strconv.ParseUint(text, 0, bits)
	if uerr != nil {
		return 0, err
	}
	if bits == 64 {
		return int64(u), nil
	}
	// sign-extend the bit pattern
	shift := 64 - bits
	return int64(u<<shift) >> shift, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	if c == '-' || c == '+' {
		return len(s) > 1 && s[1] >= '0' && s[1] <= '9'
	}
	return c >= '0' && c <= '9'
}
