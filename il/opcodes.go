package il

import "fmt"

// PrefixExtended is the lead byte of every two-byte opcode.
const PrefixExtended byte = 0xFE

// OperandKind describes the inline argument that follows an opcode.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandInt8
	OperandUInt8
	OperandInt16
	OperandUInt16
	OperandInt32
	OperandUInt32
	OperandInt64
	OperandUInt64
	OperandFloat32
	OperandFloat64
	OperandToken  // metadata token, 4 bytes
	OperandSwitch // uint32 count + count int32 targets
)

var operandKindNames = [...]string{
	OperandNone:    "none",
	OperandInt8:    "int8",
	OperandUInt8:   "uint8",
	OperandInt16:   "int16",
	OperandUInt16:  "uint16",
	OperandInt32:   "int32",
	OperandUInt32:  "uint32",
	OperandInt64:   "int64",
	OperandUInt64:  "uint64",
	OperandFloat32: "float32",
	OperandFloat64: "float64",
	OperandToken:   "token",
	OperandSwitch:  "switch",
}

func (k OperandKind) String() string {
	if int(k) < len(operandKindNames) {
		return operandKindNames[k]
	}
	return fmt.Sprintf("OperandKind(%d)", k)
}

// Width returns the fixed encoded size of an operand of this kind.
// Switch operands are variable length and report 0, as does OperandNone.
func (k OperandKind) Width() int {
	switch k {
	case OperandInt8, OperandUInt8:
		return 1
	case OperandInt16, OperandUInt16:
		return 2
	case OperandInt32, OperandUInt32, OperandFloat32, OperandToken:
		return 4
	case OperandInt64, OperandUInt64, OperandFloat64:
		return 8
	default:
		return 0
	}
}

// FlowKind classifies how an instruction affects control flow.
type FlowKind uint8

const (
	FlowSequential FlowKind = iota
	FlowConditionalBranch
	FlowUnconditionalBranch
	FlowLeave
	FlowCall
	FlowReturn
	FlowSwitch
	FlowThrow
	FlowEndFinally
)

var flowKindNames = [...]string{
	FlowSequential:          "sequential",
	FlowConditionalBranch:   "conditional-branch",
	FlowUnconditionalBranch: "unconditional-branch",
	FlowLeave:               "leave",
	FlowCall:                "call",
	FlowReturn:              "return",
	FlowSwitch:              "switch",
	FlowThrow:               "throw",
	FlowEndFinally:          "end-finally",
}

func (f FlowKind) String() string {
	if int(f) < len(flowKindNames) {
		return flowKindNames[f]
	}
	return fmt.Sprintf("FlowKind(%d)", f)
}

// IsBranch reports whether the flow kind targets a label.
func (f FlowKind) IsBranch() bool {
	return f == FlowConditionalBranch || f == FlowUnconditionalBranch || f == FlowLeave
}

// fact is one entry of a static instruction table. The opcode value is the
// entry's index; an empty mnemonic marks an unassigned slot.
type fact struct {
	mnemonic string
	operand  OperandKind
	pops     uint8
	pushes   uint8
	flow     FlowKind
}

// ---------------------------------------------------------------------------
// Single-byte opcode space (0x00-0xE0)
// ---------------------------------------------------------------------------

// Calls, ret, jmp and newobj have signature-dependent stack effects; the
// table records the fixed part only.
var oneByteFacts = [0xE1]fact{
	// Base instructions
	0x00: {"nop", OperandNone, 0, 0, FlowSequential},
	0x01: {"break", OperandNone, 0, 0, FlowSequential},
	0x02: {"ldarg.0", OperandNone, 0, 1, FlowSequential},
	0x03: {"ldarg.1", OperandNone, 0, 1, FlowSequential},
	0x04: {"ldarg.2", OperandNone, 0, 1, FlowSequential},
	0x05: {"ldarg.3", OperandNone, 0, 1, FlowSequential},
	0x06: {"ldloc.0", OperandNone, 0, 1, FlowSequential},
	0x07: {"ldloc.1", OperandNone, 0, 1, FlowSequential},
	0x08: {"ldloc.2", OperandNone, 0, 1, FlowSequential},
	0x09: {"ldloc.3", OperandNone, 0, 1, FlowSequential},
	0x0A: {"stloc.0", OperandNone, 1, 0, FlowSequential},
	0x0B: {"stloc.1", OperandNone, 1, 0, FlowSequential},
	0x0C: {"stloc.2", OperandNone, 1, 0, FlowSequential},
	0x0D: {"stloc.3", OperandNone, 1, 0, FlowSequential},
	0x0E: {"ldarg.s", OperandUInt8, 0, 1, FlowSequential},
	0x0F: {"ldarga.s", OperandUInt8, 0, 1, FlowSequential},
	0x10: {"starg.s", OperandUInt8, 1, 0, FlowSequential},
	0x11: {"ldloc.s", OperandUInt8, 0, 1, FlowSequential},
	0x12: {"ldloca.s", OperandUInt8, 0, 1, FlowSequential},
	0x13: {"stloc.s", OperandUInt8, 1, 0, FlowSequential},
	0x14: {"ldnull", OperandNone, 0, 1, FlowSequential},
	0x15: {"ldc.i4.m1", OperandNone, 0, 1, FlowSequential},
	0x16: {"ldc.i4.0", OperandNone, 0, 1, FlowSequential},
	0x17: {"ldc.i4.1", OperandNone, 0, 1, FlowSequential},
	0x18: {"ldc.i4.2", OperandNone, 0, 1, FlowSequential},
	0x19: {"ldc.i4.3", OperandNone, 0, 1, FlowSequential},
	0x1A: {"ldc.i4.4", OperandNone, 0, 1, FlowSequential},
	0x1B: {"ldc.i4.5", OperandNone, 0, 1, FlowSequential},
	0x1C: {"ldc.i4.6", OperandNone, 0, 1, FlowSequential},
	0x1D: {"ldc.i4.7", OperandNone, 0, 1, FlowSequential},
	0x1E: {"ldc.i4.8", OperandNone, 0, 1, FlowSequential},
	0x1F: {"ldc.i4.s", OperandInt8, 0, 1, FlowSequential},
	0x20: {"ldc.i4", OperandInt32, 0, 1, FlowSequential},
	0x21: {"ldc.i8", OperandInt64, 0, 1, FlowSequential},
	0x22: {"ldc.r4", OperandFloat32, 0, 1, FlowSequential},
	0x23: {"ldc.r8", OperandFloat64, 0, 1, FlowSequential},
	0x25: {"dup", OperandNone, 1, 2, FlowSequential},
	0x26: {"pop", OperandNone, 1, 0, FlowSequential},
	0x27: {"jmp", OperandToken, 0, 0, FlowCall},
	0x28: {"call", OperandToken, 0, 0, FlowCall},
	0x29: {"calli", OperandToken, 0, 0, FlowCall},
	0x2A: {"ret", OperandNone, 0, 0, FlowReturn},

	// Short branches
	0x2B: {"br.s", OperandInt8, 0, 0, FlowUnconditionalBranch},
	0x2C: {"brfalse.s", OperandInt8, 1, 0, FlowConditionalBranch},
	0x2D: {"brtrue.s", OperandInt8, 1, 0, FlowConditionalBranch},
	0x2E: {"beq.s", OperandInt8, 2, 0, FlowConditionalBranch},
	0x2F: {"bge.s", OperandInt8, 2, 0, FlowConditionalBranch},
	0x30: {"bgt.s", OperandInt8, 2, 0, FlowConditionalBranch},
	0x31: {"ble.s", OperandInt8, 2, 0, FlowConditionalBranch},
	0x32: {"blt.s", OperandInt8, 2, 0, FlowConditionalBranch},
	0x33: {"bne.un.s", OperandInt8, 2, 0, FlowConditionalBranch},
	0x34: {"bge.un.s", OperandInt8, 2, 0, FlowConditionalBranch},
	0x35: {"bgt.un.s", OperandInt8, 2, 0, FlowConditionalBranch},
	0x36: {"ble.un.s", OperandInt8, 2, 0, FlowConditionalBranch},
	0x37: {"blt.un.s", OperandInt8, 2, 0, FlowConditionalBranch},

	// Long branches
	0x38: {"br", OperandInt32, 0, 0, FlowUnconditionalBranch},
	0x39: {"brfalse", OperandInt32, 1, 0, FlowConditionalBranch},
	0x3A: {"brtrue", OperandInt32, 1, 0, FlowConditionalBranch},
	0x3B: {"beq", OperandInt32, 2, 0, FlowConditionalBranch},
	0x3C: {"bge", OperandInt32, 2, 0, FlowConditionalBranch},
	0x3D: {"bgt", OperandInt32, 2, 0, FlowConditionalBranch},
	0x3E: {"ble", OperandInt32, 2, 0, FlowConditionalBranch},
	0x3F: {"blt", OperandInt32, 2, 0, FlowConditionalBranch},
	0x40: {"bne.un", OperandInt32, 2, 0, FlowConditionalBranch},
	0x41: {"bge.un", OperandInt32, 2, 0, FlowConditionalBranch},
	0x42: {"bgt.un", OperandInt32, 2, 0, FlowConditionalBranch},
	0x43: {"ble.un", OperandInt32, 2, 0, FlowConditionalBranch},
	0x44: {"blt.un", OperandInt32, 2, 0, FlowConditionalBranch},
	0x45: {"switch", OperandSwitch, 1, 0, FlowSwitch},

	// Indirect loads and stores
	0x46: {"ldind.i1", OperandNone, 1, 1, FlowSequential},
	0x47: {"ldind.u1", OperandNone, 1, 1, FlowSequential},
	0x48: {"ldind.i2", OperandNone, 1, 1, FlowSequential},
	0x49: {"ldind.u2", OperandNone, 1, 1, FlowSequential},
	0x4A: {"ldind.i4", OperandNone, 1, 1, FlowSequential},
	0x4B: {"ldind.u4", OperandNone, 1, 1, FlowSequential},
	0x4C: {"ldind.i8", OperandNone, 1, 1, FlowSequential},
	0x4D: {"ldind.i", OperandNone, 1, 1, FlowSequential},
	0x4E: {"ldind.r4", OperandNone, 1, 1, FlowSequential},
	0x4F: {"ldind.r8", OperandNone, 1, 1, FlowSequential},
	0x50: {"ldind.ref", OperandNone, 1, 1, FlowSequential},
	0x51: {"stind.ref", OperandNone, 2, 0, FlowSequential},
	0x52: {"stind.i1", OperandNone, 2, 0, FlowSequential},
	0x53: {"stind.i2", OperandNone, 2, 0, FlowSequential},
	0x54: {"stind.i4", OperandNone, 2, 0, FlowSequential},
	0x55: {"stind.i8", OperandNone, 2, 0, FlowSequential},
	0x56: {"stind.r4", OperandNone, 2, 0, FlowSequential},
	0x57: {"stind.r8", OperandNone, 2, 0, FlowSequential},

	// Arithmetic and bitwise
	0x58: {"add", OperandNone, 2, 1, FlowSequential},
	0x59: {"sub", OperandNone, 2, 1, FlowSequential},
	0x5A: {"mul", OperandNone, 2, 1, FlowSequential},
	0x5B: {"div", OperandNone, 2, 1, FlowSequential},
	0x5C: {"div.un", OperandNone, 2, 1, FlowSequential},
	0x5D: {"rem", OperandNone, 2, 1, FlowSequential},
	0x5E: {"rem.un", OperandNone, 2, 1, FlowSequential},
	0x5F: {"and", OperandNone, 2, 1, FlowSequential},
	0x60: {"or", OperandNone, 2, 1, FlowSequential},
	0x61: {"xor", OperandNone, 2, 1, FlowSequential},
	0x62: {"shl", OperandNone, 2, 1, FlowSequential},
	0x63: {"shr", OperandNone, 2, 1, FlowSequential},
	0x64: {"shr.un", OperandNone, 2, 1, FlowSequential},
	0x65: {"neg", OperandNone, 1, 1, FlowSequential},
	0x66: {"not", OperandNone, 1, 1, FlowSequential},

	// Conversions
	0x67: {"conv.i1", OperandNone, 1, 1, FlowSequential},
	0x68: {"conv.i2", OperandNone, 1, 1, FlowSequential},
	0x69: {"conv.i4", OperandNone, 1, 1, FlowSequential},
	0x6A: {"conv.i8", OperandNone, 1, 1, FlowSequential},
	0x6B: {"conv.r4", OperandNone, 1, 1, FlowSequential},
	0x6C: {"conv.r8", OperandNone, 1, 1, FlowSequential},
	0x6D: {"conv.u4", OperandNone, 1, 1, FlowSequential},
	0x6E: {"conv.u8", OperandNone, 1, 1, FlowSequential},

	// Object model
	0x6F: {"callvirt", OperandToken, 0, 0, FlowCall},
	0x70: {"cpobj", OperandToken, 2, 0, FlowSequential},
	0x71: {"ldobj", OperandToken, 1, 1, FlowSequential},
	0x72: {"ldstr", OperandToken, 0, 1, FlowSequential},
	0x73: {"newobj", OperandToken, 0, 1, FlowCall},
	0x74: {"castclass", OperandToken, 1, 1, FlowSequential},
	0x75: {"isinst", OperandToken, 1, 1, FlowSequential},
	0x76: {"conv.r.un", OperandNone, 1, 1, FlowSequential},
	0x79: {"unbox", OperandToken, 1, 1, FlowSequential},
	0x7A: {"throw", OperandNone, 1, 0, FlowThrow},
	0x7B: {"ldfld", OperandToken, 1, 1, FlowSequential},
	0x7C: {"ldflda", OperandToken, 1, 1, FlowSequential},
	0x7D: {"stfld", OperandToken, 2, 0, FlowSequential},
	0x7E: {"ldsfld", OperandToken, 0, 1, FlowSequential},
	0x7F: {"ldsflda", OperandToken, 0, 1, FlowSequential},
	0x80: {"stsfld", OperandToken, 1, 0, FlowSequential},
	0x81: {"stobj", OperandToken, 2, 0, FlowSequential},
	0x82: {"conv.ovf.i1.un", OperandNone, 1, 1, FlowSequential},
	0x83: {"conv.ovf.i2.un", OperandNone, 1, 1, FlowSequential},
	0x84: {"conv.ovf.i4.un", OperandNone, 1, 1, FlowSequential},
	0x85: {"conv.ovf.i8.un", OperandNone, 1, 1, FlowSequential},
	0x86: {"conv.ovf.u1.un", OperandNone, 1, 1, FlowSequential},
	0x87: {"conv.ovf.u2.un", OperandNone, 1, 1, FlowSequential},
	0x88: {"conv.ovf.u4.un", OperandNone, 1, 1, FlowSequential},
	0x89: {"conv.ovf.u8.un", OperandNone, 1, 1, FlowSequential},
	0x8A: {"conv.ovf.i.un", OperandNone, 1, 1, FlowSequential},
	0x8B: {"conv.ovf.u.un", OperandNone, 1, 1, FlowSequential},
	0x8C: {"box", OperandToken, 1, 1, FlowSequential},
	0x8D: {"newarr", OperandToken, 1, 1, FlowSequential},
	0x8E: {"ldlen", OperandNone, 1, 1, FlowSequential},

	// Array elements
	0x8F: {"ldelema", OperandToken, 2, 1, FlowSequential},
	0x90: {"ldelem.i1", OperandNone, 2, 1, FlowSequential},
	0x91: {"ldelem.u1", OperandNone, 2, 1, FlowSequential},
	0x92: {"ldelem.i2", OperandNone, 2, 1, FlowSequential},
	0x93: {"ldelem.u2", OperandNone, 2, 1, FlowSequential},
	0x94: {"ldelem.i4", OperandNone, 2, 1, FlowSequential},
	0x95: {"ldelem.u4", OperandNone, 2, 1, FlowSequential},
	0x96: {"ldelem.i8", OperandNone, 2, 1, FlowSequential},
	0x97: {"ldelem.i", OperandNone, 2, 1, FlowSequential},
	0x98: {"ldelem.r4", OperandNone, 2, 1, FlowSequential},
	0x99: {"ldelem.r8", OperandNone, 2, 1, FlowSequential},
	0x9A: {"ldelem.ref", OperandNone, 2, 1, FlowSequential},
	0x9B: {"stelem.i", OperandNone, 3, 0, FlowSequential},
	0x9C: {"stelem.i1", OperandNone, 3, 0, FlowSequential},
	0x9D: {"stelem.i2", OperandNone, 3, 0, FlowSequential},
	0x9E: {"stelem.i4", OperandNone, 3, 0, FlowSequential},
	0x9F: {"stelem.i8", OperandNone, 3, 0, FlowSequential},
	0xA0: {"stelem.r4", OperandNone, 3, 0, FlowSequential},
	0xA1: {"stelem.r8", OperandNone, 3, 0, FlowSequential},
	0xA2: {"stelem.ref", OperandNone, 3, 0, FlowSequential},
	0xA3: {"ldelem", OperandToken, 2, 1, FlowSequential},
	0xA4: {"stelem", OperandToken, 3, 0, FlowSequential},
	0xA5: {"unbox.any", OperandToken, 1, 1, FlowSequential},

	// Overflow-checked conversions
	0xB3: {"conv.ovf.i1", OperandNone, 1, 1, FlowSequential},
	0xB4: {"conv.ovf.u1", OperandNone, 1, 1, FlowSequential},
	0xB5: {"conv.ovf.i2", OperandNone, 1, 1, FlowSequential},
	0xB6: {"conv.ovf.u2", OperandNone, 1, 1, FlowSequential},
	0xB7: {"conv.ovf.i4", OperandNone, 1, 1, FlowSequential},
	0xB8: {"conv.ovf.u4", OperandNone, 1, 1, FlowSequential},
	0xB9: {"conv.ovf.i8", OperandNone, 1, 1, FlowSequential},
	0xBA: {"conv.ovf.u8", OperandNone, 1, 1, FlowSequential},
	0xC2: {"refanyval", OperandToken, 1, 1, FlowSequential},
	0xC3: {"ckfinite", OperandNone, 1, 1, FlowSequential},
	0xC6: {"mkrefany", OperandToken, 1, 1, FlowSequential},
	0xD0: {"ldtoken", OperandToken, 0, 1, FlowSequential},
	0xD1: {"conv.u2", OperandNone, 1, 1, FlowSequential},
	0xD2: {"conv.u1", OperandNone, 1, 1, FlowSequential},
	0xD3: {"conv.i", OperandNone, 1, 1, FlowSequential},
	0xD4: {"conv.ovf.i", OperandNone, 1, 1, FlowSequential},
	0xD5: {"conv.ovf.u", OperandNone, 1, 1, FlowSequential},
	0xD6: {"add.ovf", OperandNone, 2, 1, FlowSequential},
	0xD7: {"add.ovf.un", OperandNone, 2, 1, FlowSequential},
	0xD8: {"mul.ovf", OperandNone, 2, 1, FlowSequential},
	0xD9: {"mul.ovf.un", OperandNone, 2, 1, FlowSequential},
	0xDA: {"sub.ovf", OperandNone, 2, 1, FlowSequential},
	0xDB: {"sub.ovf.un", OperandNone, 2, 1, FlowSequential},

	// Protected regions
	0xDC: {"endfinally", OperandNone, 0, 0, FlowEndFinally},
	0xDD: {"leave", OperandInt32, 0, 0, FlowLeave},
	0xDE: {"leave.s", OperandInt8, 0, 0, FlowLeave},
	0xDF: {"stind.i", OperandNone, 2, 0, FlowSequential},
	0xE0: {"conv.u", OperandNone, 1, 1, FlowSequential},
}

// ---------------------------------------------------------------------------
// Extended opcode space (0xFE 0x00-0x1E)
// ---------------------------------------------------------------------------

var extendedFacts = [0x1F]fact{
	0x00: {"arglist", OperandNone, 0, 1, FlowSequential},
	0x01: {"ceq", OperandNone, 2, 1, FlowSequential},
	0x02: {"cgt", OperandNone, 2, 1, FlowSequential},
	0x03: {"cgt.un", OperandNone, 2, 1, FlowSequential},
	0x04: {"clt", OperandNone, 2, 1, FlowSequential},
	0x05: {"clt.un", OperandNone, 2, 1, FlowSequential},
	0x06: {"ldftn", OperandToken, 0, 1, FlowSequential},
	0x07: {"ldvirtftn", OperandToken, 1, 1, FlowSequential},
	0x09: {"ldarg", OperandUInt16, 0, 1, FlowSequential},
	0x0A: {"ldarga", OperandUInt16, 0, 1, FlowSequential},
	0x0B: {"starg", OperandUInt16, 1, 0, FlowSequential},
	0x0C: {"ldloc", OperandUInt16, 0, 1, FlowSequential},
	0x0D: {"ldloca", OperandUInt16, 0, 1, FlowSequential},
	0x0E: {"stloc", OperandUInt16, 1, 0, FlowSequential},
	0x0F: {"localloc", OperandNone, 1, 1, FlowSequential},
	0x11: {"endfilter", OperandNone, 1, 0, FlowEndFinally},
	0x12: {"unaligned.", OperandUInt8, 0, 0, FlowSequential},
	0x13: {"volatile.", OperandNone, 0, 0, FlowSequential},
	0x14: {"tail.", OperandNone, 0, 0, FlowSequential},
	0x15: {"initobj", OperandToken, 1, 0, FlowSequential},
	0x16: {"constrained.", OperandToken, 0, 0, FlowSequential},
	0x17: {"cpblk", OperandNone, 3, 0, FlowSequential},
	0x18: {"initblk", OperandNone, 3, 0, FlowSequential},
	0x1A: {"rethrow", OperandNone, 0, 0, FlowThrow},
	0x1C: {"sizeof", OperandToken, 0, 1, FlowSequential},
	0x1D: {"refanytype", OperandNone, 1, 1, FlowSequential},
	0x1E: {"readonly.", OperandNone, 0, 0, FlowSequential},
}
