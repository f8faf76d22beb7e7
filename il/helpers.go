package il

import (
	"math"

	"github.com/chazu/ilasm/metadata"
)

// ---------------------------------------------------------------------------
// Canonical-form helpers
// ---------------------------------------------------------------------------

// LdcI4 pushes v using the shortest encoding.
func (a *Assembler) LdcI4(v int32) error {
	switch {
	case v == -1:
		return a.Emit("ldc.i4.m1", NoOperand)
	case v >= 0 && v <= 8:
		return a.Emit(ldcI4Short[v], NoOperand)
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return a.Emit("ldc.i4.s", Int8(int8(v)))
	default:
		return a.Emit("ldc.i4", Int32(v))
	}
}

var ldcI4Short = [...]string{
	"ldc.i4.0", "ldc.i4.1", "ldc.i4.2", "ldc.i4.3", "ldc.i4.4",
	"ldc.i4.5", "ldc.i4.6", "ldc.i4.7", "ldc.i4.8",
}

func (a *Assembler) LdcI8(v int64) error { return a.Emit("ldc.i8", Int64(v)) }
func (a *Assembler) LdcR4(v float32) error { return a.Emit("ldc.r4", Float32(v)) }
func (a *Assembler) LdcR8(v float64) error { return a.Emit("ldc.r8", Float64(v)) }

// LdArg loads argument i with ldarg.N, ldarg.s or ldarg.
func (a *Assembler) LdArg(i uint16) error {
	return a.indexed(i, "ldarg.", "ldarg.s", "ldarg")
}

// LdLoc loads local i with ldloc.N, ldloc.s or ldloc.
func (a *Assembler) LdLoc(i uint16) error {
	return a.indexed(i, "ldloc.", "ldloc.s", "ldloc")
}

// StLoc stores into local i with stloc.N, stloc.s or stloc.
func (a *Assembler) StLoc(i uint16) error {
	return a.indexed(i, "stloc.", "stloc.s", "stloc")
}

// StArg stores into argument i.
func (a *Assembler) StArg(i uint16) error {
	if i <= math.MaxUint8 {
		return a.Emit("starg.s", UInt8(uint8(i)))
	}
	return a.Emit("starg", UInt16(i))
}

// LdLocA loads the address of local i.
func (a *Assembler) LdLocA(i uint16) error {
	if i <= math.MaxUint8 {
		return a.Emit("ldloca.s", UInt8(uint8(i)))
	}
	return a.Emit("ldloca", UInt16(i))
}

// LdArgA loads the address of argument i.
func (a *Assembler) LdArgA(i uint16) error {
	if i <= math.MaxUint8 {
		return a.Emit("ldarga.s", UInt8(uint8(i)))
	}
	return a.Emit("ldarga", UInt16(i))
}

func (a *Assembler) indexed(i uint16, short, byteForm, wide string) error {
	switch {
	case i <= 3:
		return a.Emit(short+string(rune('0'+i)), NoOperand)
	case i <= math.MaxUint8:
		return a.Emit(byteForm, UInt8(uint8(i)))
	default:
		return a.Emit(wide, UInt16(i))
	}
}

func (a *Assembler) Call(method metadata.Token) error { return a.Emit("call", Token(method)) }
func (a *Assembler) Callvirt(method metadata.Token) error { return a.Emit("callvirt", Token(method)) }
func (a *Assembler) Newobj(ctor metadata.Token) error { return a.Emit("newobj", Token(ctor)) }
func (a *Assembler) LdStr(str metadata.Token) error { return a.Emit("ldstr", Token(str)) }
func (a *Assembler) LdFld(field metadata.Token) error { return a.Emit("ldfld", Token(field)) }
func (a *Assembler) StFld(field metadata.Token) error { return a.Emit("stfld", Token(field)) }
func (a *Assembler) Box(typ metadata.Token) error { return a.Emit("box", Token(typ)) }

func (a *Assembler) Nop() error { return a.Emit("nop", NoOperand) }
func (a *Assembler) Pop() error { return a.Emit("pop", NoOperand) }
func (a *Assembler) Dup() error { return a.Emit("dup", NoOperand) }
func (a *Assembler) Ret() error { return a.Emit("ret", NoOperand) }
func (a *Assembler) Throw() error { return a.Emit("throw", NoOperand) }
func (a *Assembler) Rethrow() error { return a.Emit("rethrow", NoOperand) }
func (a *Assembler) EndFinally() error { return a.Emit("endfinally", NoOperand) }
func (a *Assembler) EndFilter() error { return a.Emit("endfilter", NoOperand) }
func (a *Assembler) LdNull() error { return a.Emit("ldnull", NoOperand) }

// Br branches unconditionally to label; short selects br.s.
func (a *Assembler) Br(label string, short bool) error {
	return a.EmitBranch(form("br", short), label)
}

func (a *Assembler) BrTrue(label string, short bool) error {
	return a.EmitBranch(form("brtrue", short), label)
}

func (a *Assembler) BrFalse(label string, short bool) error {
	return a.EmitBranch(form("brfalse", short), label)
}

// Leave exits a protected region to label.
func (a *Assembler) Leave(label string, short bool) error {
	return a.EmitBranch(form("leave", short), label)
}

func form(mnemonic string, short bool) string {
	if short {
		return mnemonic + ".s"
	}
	return mnemonic
}
