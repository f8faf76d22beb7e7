package il

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/chazu/ilasm/metadata"
)

// Operand is the inline argument of an instruction. The zero value is the
// absent operand.
type Operand struct {
	kind    OperandKind
	bits    uint64
	targets []int32
}

// NoOperand is the absent operand.
var NoOperand = Operand{}

func Int8(v int8) Operand { return Operand{kind: OperandInt8, bits: uint64(uint8(v))} }
func UInt8(v uint8) Operand { return Operand{kind: OperandUInt8, bits: uint64(v)} }
func Int16(v int16) Operand { return Operand{kind: OperandInt16, bits: uint64(uint16(v))} }
func UInt16(v uint16) Operand { return Operand{kind: OperandUInt16, bits: uint64(v)} }
func Int32(v int32) Operand { return Operand{kind: OperandInt32, bits: uint64(uint32(v))} }
func UInt32(v uint32) Operand { return Operand{kind: OperandUInt32, bits: uint64(v)} }
func Int64(v int64) Operand { return Operand{kind: OperandInt64, bits: uint64(v)} }
func UInt64(v uint64) Operand { return Operand{kind: OperandUInt64, bits: v} }
func Float32(v float32) Operand { return Operand{kind: OperandFloat32, bits: uint64(math.Float32bits(v))} }
func Float64(v float64) Operand { return Operand{kind: OperandFloat64, bits: math.Float64bits(v)} }

// Token wraps a metadata token operand.
func Token(t metadata.Token) Operand {
	return Operand{kind: OperandToken, bits: uint64(t)}
}

// Switch builds a jump table operand from raw relative targets.
func Switch(targets ...int32) Operand {
	return Operand{kind: OperandSwitch, targets: slices.Clone(targets)}
}

// Kind returns the operand kind, OperandNone when absent.
func (o Operand) Kind() OperandKind { return o.kind }

// IsNone reports whether the operand is absent.
func (o Operand) IsNone() bool { return o.kind == OperandNone }

// Targets returns a copy of a switch operand's targets.
func (o Operand) Targets() []int32 { return slices.Clone(o.targets) }

// Bits returns the raw little-endian payload of a fixed-width operand.
func (o Operand) Bits() uint64 { return o.bits }

func (o Operand) String() string {
	switch o.kind {
	case OperandNone:
		return ""
	case OperandInt8:
		return fmt.Sprint(int8(o.bits))
	case OperandInt16:
		return fmt.Sprint(int16(o.bits))
	case OperandInt32:
		return fmt.Sprint(int32(o.bits))
	case OperandInt64:
		return fmt.Sprint(int64(o.bits))
	case OperandFloat32:
		return fmt.Sprint(math.Float32frombits(uint32(o.bits)))
	case OperandFloat64:
		return fmt.Sprint(math.Float64frombits(o.bits))
	case OperandToken:
		return metadata.Token(o.bits).String()
	case OperandSwitch:
		return fmt.Sprint(o.targets)
	default:
		return fmt.Sprint(o.bits)
	}
}

// appendTo writes the operand little-endian at its kind's width.
func (o Operand) appendTo(buf []byte) ([]byte, error) {
	switch o.kind {
	case OperandNone:
		return buf, nil
	case OperandInt8, OperandUInt8:
		return append(buf, byte(o.bits)), nil
	case OperandInt16, OperandUInt16:
		return binary.LittleEndian.AppendUint16(buf, uint16(o.bits)), nil
	case OperandInt32, OperandUInt32, OperandFloat32, OperandToken:
		return binary.LittleEndian.AppendUint32(buf, uint32(o.bits)), nil
	case OperandInt64, OperandUInt64, OperandFloat64:
		return binary.LittleEndian.AppendUint64(buf, o.bits), nil
	case OperandSwitch:
		if uint64(len(o.targets)) > math.MaxUint32 {
			return buf, fmt.Errorf("%w: switch with %d targets", ErrOverflow, len(o.targets))
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(o.targets)))
		for _, t := range o.targets {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(t))
		}
		return buf, nil
	}
	return buf, fmt.Errorf("%w: %v", ErrOperandKindMismatch, o.kind)
}
