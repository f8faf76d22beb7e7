package il

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Assembler
// ---------------------------------------------------------------------------

// fixup is a branch offset field waiting for its label.
type fixup struct {
	label string
	pos   uint32 // first byte of the offset field
	width uint8  // 1, 2 or 4
	start uint32 // first byte of the branch instruction
	base  uint32 // offsets are relative to this position
}

// Assembler encodes one method's instruction stream. It is not safe for
// concurrent use; each method body gets its own Assembler.
type Assembler struct {
	code      []byte
	labels    map[string]uint32
	fixups    []fixup
	depth     int32
	maxDepth  uint16
	finalized bool
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{
		code:   make([]byte, 0, 64),
		labels: make(map[string]uint32),
	}
}

// Len returns the number of code bytes emitted so far.
func (a *Assembler) Len() int {
	return len(a.code)
}

// StackDepth returns the current evaluation stack depth.
func (a *Assembler) StackDepth() int32 {
	return a.depth
}

// MaxStackDepth returns the deepest stack observed so far.
func (a *Assembler) MaxStackDepth() uint16 {
	return a.maxDepth
}

// LabelPosition returns the code offset of a defined label.
func (a *Assembler) LabelPosition(name string) (uint32, bool) {
	pos, ok := a.labels[name]
	return pos, ok
}

// Emit encodes one instruction with its inline operand. A failed
// instruction leaves the assembler unchanged.
func (a *Assembler) Emit(mnemonic string, operand Operand) error {
	if a.finalized {
		return ErrFinalized
	}
	d, ok := Lookup(mnemonic)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMnemonic, mnemonic)
	}
	switch {
	case d.Operand == OperandNone && !operand.IsNone():
		return fmt.Errorf("%w: %s takes no operand, got %v", ErrUnexpectedOperand, d.Mnemonic, operand.Kind())
	case d.Operand != operand.Kind():
		return fmt.Errorf("%w: %s wants %v, got %v", ErrOperandKindMismatch, d.Mnemonic, d.Operand, operand.Kind())
	}
	depth, err := a.nextDepth(d)
	if err != nil {
		return err
	}

	start := len(a.code)
	a.code = appendOpcode(a.code, d)
	if a.code, err = operand.appendTo(a.code); err != nil {
		a.code = a.code[:start]
		return err
	}
	a.setDepth(depth)
	return nil
}

// EmitBranch encodes a branch whose offset is resolved against label at
// Finalize. The offset width follows the mnemonic's operand kind.
func (a *Assembler) EmitBranch(mnemonic, label string) error {
	if a.finalized {
		return ErrFinalized
	}
	d, ok := Lookup(mnemonic)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMnemonic, mnemonic)
	}
	if !d.IsBranch() {
		return fmt.Errorf("%w: %s", ErrNotABranch, d.Mnemonic)
	}
	var width uint8
	switch d.Operand {
	case OperandInt8:
		width = 1
	case OperandInt16:
		width = 2
	case OperandInt32:
		width = 4
	default:
		return fmt.Errorf("%w: %s has %v operand", ErrInvalidBranchOperandKind, d.Mnemonic, d.Operand)
	}
	depth, err := a.nextDepth(d)
	if err != nil {
		return err
	}
	if err := a.checkRoom(d.Size()); err != nil {
		return err
	}

	start := uint32(len(a.code))
	a.code = appendOpcode(a.code, d)
	pos := uint32(len(a.code))
	a.fixups = append(a.fixups, fixup{
		label: label,
		pos:   pos,
		width: width,
		start: start,
		base:  pos + uint32(width),
	})
	a.code = append(a.code, make([]byte, width)...)
	a.setDepth(depth)
	return nil
}

// EmitSwitch encodes a switch whose targets are labels. Each target is
// relative to the end of the whole instruction.
func (a *Assembler) EmitSwitch(labels ...string) error {
	if a.finalized {
		return ErrFinalized
	}
	d, _ := Lookup("switch")
	depth, err := a.nextDepth(d)
	if err != nil {
		return err
	}
	size := d.Size() + 4*len(labels)
	if err := a.checkRoom(size); err != nil {
		return err
	}

	start := uint32(len(a.code))
	end := start + uint32(size)
	a.code = appendOpcode(a.code, d)
	a.code = binary.LittleEndian.AppendUint32(a.code, uint32(len(labels)))
	for _, label := range labels {
		a.fixups = append(a.fixups, fixup{
			label: label,
			pos:   uint32(len(a.code)),
			width: 4,
			start: start,
			base:  end,
		})
		a.code = append(a.code, 0, 0, 0, 0)
	}
	a.setDepth(depth)
	return nil
}

// DefineLabel binds name to the current code offset.
func (a *Assembler) DefineLabel(name string) error {
	if a.finalized {
		return ErrFinalized
	}
	if _, exists := a.labels[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateLabel, name)
	}
	a.labels[name] = uint32(len(a.code))
	return nil
}

// Finalize patches every branch offset and returns the code together with
// the maximum stack depth. The assembler cannot be used afterwards.
func (a *Assembler) Finalize() ([]byte, uint16, error) {
	if a.finalized {
		return nil, 0, ErrFinalized
	}
	a.finalized = true

	code := a.code
	a.code = nil
	for _, f := range a.fixups {
		target, ok := a.labels[f.label]
		if !ok {
			return nil, 0, fmt.Errorf("%w: %q (branch at 0x%04X)", ErrUndefinedLabel, f.label, f.start)
		}
		offset := int64(target) - int64(f.base)
		field := code[f.pos : f.pos+uint32(f.width)]
		switch f.width {
		case 1:
			if offset < math.MinInt8 || offset > math.MaxInt8 {
				return nil, 0, fmt.Errorf("%w: %d to %q does not fit 8 bits", ErrBranchOffsetOutOfRange, offset, f.label)
			}
			field[0] = byte(int8(offset))
		case 2:
			if offset < math.MinInt16 || offset > math.MaxInt16 {
				return nil, 0, fmt.Errorf("%w: %d to %q does not fit 16 bits", ErrBranchOffsetOutOfRange, offset, f.label)
			}
			binary.LittleEndian.PutUint16(field, uint16(int16(offset)))
		case 4:
			if offset < math.MinInt32 || offset > math.MaxInt32 {
				return nil, 0, fmt.Errorf("%w: %d to %q does not fit 32 bits", ErrBranchOffsetOutOfRange, offset, f.label)
			}
			binary.LittleEndian.PutUint32(field, uint32(int32(offset)))
		}
	}
	return code, a.maxDepth, nil
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

func appendOpcode(buf []byte, d Descriptor) []byte {
	if d.Prefix != 0 {
		buf = append(buf, d.Prefix)
	}
	return append(buf, d.Opcode)
}

func (a *Assembler) nextDepth(d Descriptor) (int32, error) {
	depth := a.depth + d.StackEffect()
	if depth < 0 {
		return 0, fmt.Errorf("%w: %s at 0x%04X would leave depth %d", ErrStackUnderflow, d.Mnemonic, len(a.code), depth)
	}
	if depth > math.MaxUint16 {
		return 0, fmt.Errorf("%w: stack depth %d", ErrOverflow, depth)
	}
	return depth, nil
}

func (a *Assembler) setDepth(depth int32) {
	a.depth = depth
	if uint16(depth) > a.maxDepth {
		a.maxDepth = uint16(depth)
	}
}

// checkRoom keeps code offsets addressable by uint32 fixups.
func (a *Assembler) checkRoom(n int) error {
	if uint64(len(a.code))+uint64(n) > math.MaxUint32 {
		return fmt.Errorf("%w: code size", ErrOverflow)
	}
	return nil
}
