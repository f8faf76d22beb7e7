package il

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// ErrTruncated is returned when code ends inside an instruction.
var ErrTruncated = errors.New("instruction truncated")

// Instruction is one decoded instruction.
type Instruction struct {
	Offset  uint32
	Desc    Descriptor
	Operand Operand
	Size    int
}

// Targets returns the absolute offsets a branch or switch jumps to.
func (in Instruction) Targets() []uint32 {
	end := int64(in.Offset) + int64(in.Size)
	switch {
	case in.Desc.Operand == OperandSwitch:
		out := make([]uint32, len(in.Operand.targets))
		for i, t := range in.Operand.targets {
			out[i] = uint32(end + int64(t))
		}
		return out
	case in.Desc.IsBranch():
		var rel int64
		switch in.Desc.Operand {
		case OperandInt8:
			rel = int64(int8(in.Operand.bits))
		case OperandInt16:
			rel = int64(int16(in.Operand.bits))
		default:
			rel = int64(int32(in.Operand.bits))
		}
		return []uint32{uint32(end + rel)}
	}
	return nil
}

func (in Instruction) String() string {
	var sb strings.Builder
	sb.WriteString(in.Desc.Mnemonic)
	switch targets := in.Targets(); {
	case in.Desc.Operand == OperandSwitch:
		sb.WriteString(" (")
		for i, t := range targets {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "IL_%04X", t)
		}
		sb.WriteString(")")
	case len(targets) == 1:
		fmt.Fprintf(&sb, " IL_%04X", targets[0])
	case !in.Operand.IsNone():
		sb.WriteString(" " + in.Operand.String())
	}
	return sb.String()
}

// Decode splits code into instructions.
func Decode(code []byte) ([]Instruction, error) {
	var out []Instruction
	for pos := 0; pos < len(code); {
		in, err := decodeAt(code, pos)
		if err != nil {
			return out, err
		}
		out = append(out, in)
		pos += in.Size
	}
	return out, nil
}

func decodeAt(code []byte, pos int) (Instruction, error) {
	in := Instruction{Offset: uint32(pos)}
	var f fact
	n := 1
	if code[pos] == PrefixExtended {
		if pos+1 >= len(code) {
			return in, fmt.Errorf("%w: prefix at %04X", ErrTruncated, pos)
		}
		if int(code[pos+1]) < len(extendedFacts) {
			f = extendedFacts[code[pos+1]]
		}
		n = 2
	} else if int(code[pos]) < len(oneByteFacts) {
		f = oneByteFacts[code[pos]]
	}
	d, ok := Lookup(f.mnemonic)
	if f.mnemonic == "" || !ok {
		return in, fmt.Errorf("%w: opcode % X at %04X", ErrUnknownMnemonic, code[pos:pos+n], pos)
	}
	in.Desc = d
	rest := code[pos+n:]

	if d.Operand == OperandSwitch {
		if len(rest) < 4 {
			return in, fmt.Errorf("%w: switch count at %04X", ErrTruncated, pos)
		}
		count := binary.LittleEndian.Uint32(rest)
		if uint64(len(rest)-4) < 4*uint64(count) {
			return in, fmt.Errorf("%w: switch table at %04X", ErrTruncated, pos)
		}
		targets := make([]int32, count)
		for i := range targets {
			targets[i] = int32(binary.LittleEndian.Uint32(rest[4+4*i:]))
		}
		in.Operand = Operand{kind: OperandSwitch, targets: targets}
		in.Size = n + 4 + 4*int(count)
		return in, nil
	}

	w := d.Operand.Width()
	if len(rest) < w {
		return in, fmt.Errorf("%w: %s operand at %04X", ErrTruncated, d.Mnemonic, pos)
	}
	var bits uint64
	for i := w - 1; i >= 0; i-- {
		bits = bits<<8 | uint64(rest[i])
	}
	in.Operand = Operand{kind: d.Operand, bits: bits}
	in.Size = n + w
	return in, nil
}

// Disassemble returns a listing of code, one instruction per line.
func Disassemble(code []byte) (string, error) {
	ins, err := Decode(code)
	var sb strings.Builder
	for _, in := range ins {
		fmt.Fprintf(&sb, "IL_%04X  %s\n", in.Offset, in)
	}
	return sb.String(), err
}
