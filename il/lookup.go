package il

import (
	"slices"
	"strings"
	"sync"
)

// Descriptor is the resolved view of one instruction.
type Descriptor struct {
	Mnemonic string
	Opcode   byte
	Prefix   byte // 0 or PrefixExtended
	Pops     uint8
	Pushes   uint8
	Operand  OperandKind
	Flow     FlowKind
}

// IsBranch reports whether the instruction takes a label operand.
func (d Descriptor) IsBranch() bool {
	return d.Flow.IsBranch()
}

// Size returns the encoded opcode length plus the fixed operand width.
// Switch instructions report the size of the opcode and count only.
func (d Descriptor) Size() int {
	n := 1
	if d.Prefix != 0 {
		n++
	}
	if d.Operand == OperandSwitch {
		return n + 4
	}
	return n + d.Operand.Width()
}

// StackEffect returns pushes minus pops.
func (d Descriptor) StackEffect() int32 {
	return int32(d.Pushes) - int32(d.Pops)
}

func (d Descriptor) String() string {
	return d.Mnemonic
}

var opcodeTable = sync.OnceValue(func() map[string]Descriptor {
	table := make(map[string]Descriptor, len(oneByteFacts)+len(extendedFacts))
	add := func(prefix byte, facts []fact) {
		for op, f := range facts {
			if f.mnemonic == "" {
				continue
			}
			table[f.mnemonic] = Descriptor{
				Mnemonic: f.mnemonic,
				Opcode:   byte(op),
				Prefix:   prefix,
				Pops:     f.pops,
				Pushes:   f.pushes,
				Operand:  f.operand,
				Flow:     f.flow,
			}
		}
	}
	add(0, oneByteFacts[:])
	add(PrefixExtended, extendedFacts[:])
	return table
})

// Lookup finds the descriptor for a mnemonic. Mnemonics are matched
// case-insensitively.
func Lookup(mnemonic string) (Descriptor, bool) {
	d, ok := opcodeTable()[strings.ToLower(mnemonic)]
	return d, ok
}

// Descriptors returns every known instruction ordered by encoding, with the
// single-byte space first.
func Descriptors() []Descriptor {
	table := opcodeTable()
	out := make([]Descriptor, 0, len(table))
	for _, d := range table {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Descriptor) int {
		if a.Prefix != b.Prefix {
			return int(a.Prefix) - int(b.Prefix)
		}
		return int(a.Opcode) - int(b.Opcode)
	})
	return out
}

// Count returns the number of known instructions.
func Count() int {
	return len(opcodeTable())
}
