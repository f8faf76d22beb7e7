package il

import (
	"bytes"
	"errors"
	"testing"

	"github.com/chazu/ilasm/metadata"
)

func mustEmit(t *testing.T, a *Assembler, mnemonic string, op Operand) {
	t.Helper()
	if err := a.Emit(mnemonic, op); err != nil {
		t.Fatalf("Emit(%s): %v", mnemonic, err)
	}
}

func mustFinalize(t *testing.T, a *Assembler) ([]byte, uint16) {
	t.Helper()
	code, max, err := a.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return code, max
}

// ---------------------------------------------------------------------------
// Emission
// ---------------------------------------------------------------------------

func TestEmitNoOperandSequence(t *testing.T) {
	a := NewAssembler()
	for _, m := range []string{"nop", "break", "nop", "volatile.", "tail."} {
		mustEmit(t, a, m, NoOperand)
	}
	code, max := mustFinalize(t, a)
	want := []byte{0x00, 0x01, 0x00, 0xFE, 0x13, 0xFE, 0x14}
	if !bytes.Equal(code, want) {
		t.Errorf("code = % X, want % X", code, want)
	}
	if max != 0 {
		t.Errorf("max = %d, want 0", max)
	}
}

func TestEmitOperands(t *testing.T) {
	tests := []struct {
		name     string
		mnemonic string
		operand  Operand
		want     []byte
	}{
		{"int8", "ldc.i4.s", Int8(-2), []byte{0x1F, 0xFE}},
		{"int32", "ldc.i4", Int32(0x12345678), []byte{0x20, 0x78, 0x56, 0x34, 0x12}},
		{"int64", "ldc.i8", Int64(1), []byte{0x21, 1, 0, 0, 0, 0, 0, 0, 0}},
		{"float32", "ldc.r4", Float32(1.0), []byte{0x22, 0x00, 0x00, 0x80, 0x3F}},
		{"float64", "ldc.r8", Float64(1.0), []byte{0x23, 0, 0, 0, 0, 0, 0, 0xF0, 0x3F}},
		{"uint8", "ldarg.s", UInt8(200), []byte{0x0E, 200}},
		{"uint16", "ldarg", UInt16(0x0102), []byte{0xFE, 0x09, 0x02, 0x01}},
		{"token", "ldstr", Token(metadata.Token(0x70000001)), []byte{0x72, 0x01, 0x00, 0x00, 0x70}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssembler()
			mustEmit(t, a, tt.mnemonic, tt.operand)
			code, _ := mustFinalize(t, a)
			if !bytes.Equal(code, tt.want) {
				t.Errorf("code = % X, want % X", code, tt.want)
			}
		})
	}
}

func TestEmitSwitchOperand(t *testing.T) {
	a := NewAssembler()
	mustEmit(t, a, "ldc.i4.0", NoOperand)
	mustEmit(t, a, "switch", Switch(1, -1))
	code, _ := mustFinalize(t, a)
	want := []byte{
		0x16,
		0x45, 0x02, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x00,
		0xFF, 0xFF, 0xFF, 0xFF,
	}
	if !bytes.Equal(code, want) {
		t.Errorf("code = % X, want % X", code, want)
	}
}

func TestEmitErrors(t *testing.T) {
	tests := []struct {
		name     string
		mnemonic string
		operand  Operand
		want     error
	}{
		{"unknown", "frob", NoOperand, ErrUnknownMnemonic},
		{"unexpected", "nop", Int32(1), ErrUnexpectedOperand},
		{"missing", "ldc.i4", NoOperand, ErrOperandKindMismatch},
		{"wrong width", "ldc.i4.s", Int32(1), ErrOperandKindMismatch},
		{"signedness", "ldarg.s", Int8(1), ErrOperandKindMismatch},
		{"underflow", "pop", NoOperand, ErrStackUnderflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssembler()
			err := a.Emit(tt.mnemonic, tt.operand)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if a.Len() != 0 {
				t.Errorf("failed instruction committed %d bytes", a.Len())
			}
		})
	}
}

func TestStackUnderflowNotCommitted(t *testing.T) {
	a := NewAssembler()
	mustEmit(t, a, "ldc.i4.1", NoOperand)
	mustEmit(t, a, "pop", NoOperand)
	if err := a.Emit("pop", NoOperand); !errors.Is(err, ErrStackUnderflow) {
		t.Fatalf("err = %v, want ErrStackUnderflow", err)
	}
	if a.Len() != 2 {
		t.Errorf("Len = %d, want 2", a.Len())
	}
	if a.StackDepth() != 0 {
		t.Errorf("StackDepth = %d, want 0", a.StackDepth())
	}
}

func TestShortIndexNeedsUnsigned(t *testing.T) {
	a := NewAssembler()
	if err := a.Emit("ldarg.s", Int8(1)); !errors.Is(err, ErrOperandKindMismatch) {
		t.Fatalf("err = %v, want ErrOperandKindMismatch", err)
	}
	mustEmit(t, a, "ldarg.s", UInt8(200))
	code, _ := mustFinalize(t, a)
	if !bytes.Equal(code, []byte{0x0E, 0xC8}) {
		t.Errorf("code = % X, want 0E C8", code)
	}
}

func TestStackNetEffect(t *testing.T) {
	// add pops two and pushes one; a depth of one is enough
	a := NewAssembler()
	mustEmit(t, a, "ldc.i4.1", NoOperand)
	mustEmit(t, a, "add", NoOperand)
	if a.StackDepth() != 0 {
		t.Errorf("StackDepth = %d, want 0", a.StackDepth())
	}
	if err := a.Emit("add", NoOperand); !errors.Is(err, ErrStackUnderflow) {
		t.Errorf("err = %v, want ErrStackUnderflow", err)
	}
}

func TestStackTracking(t *testing.T) {
	a := NewAssembler()
	mustEmit(t, a, "ldc.i4.1", NoOperand)
	mustEmit(t, a, "ldc.i4.2", NoOperand)
	mustEmit(t, a, "add", NoOperand)
	mustEmit(t, a, "dup", NoOperand)
	mustEmit(t, a, "pop", NoOperand)
	mustEmit(t, a, "pop", NoOperand)
	if a.StackDepth() != 0 {
		t.Errorf("StackDepth = %d, want 0", a.StackDepth())
	}
	if a.MaxStackDepth() != 2 {
		t.Errorf("MaxStackDepth = %d, want 2", a.MaxStackDepth())
	}
}

// ---------------------------------------------------------------------------
// Labels and branches
// ---------------------------------------------------------------------------

func TestForwardBranch(t *testing.T) {
	a := NewAssembler()
	mustEmit(t, a, "nop", NoOperand)
	if err := a.EmitBranch("br.s", "target"); err != nil {
		t.Fatal(err)
	}
	mustEmit(t, a, "nop", NoOperand)
	if err := a.DefineLabel("target"); err != nil {
		t.Fatal(err)
	}
	mustEmit(t, a, "ret", NoOperand)

	code, _ := mustFinalize(t, a)
	want := []byte{0x00, 0x2B, 0x01, 0x00, 0x2A}
	if !bytes.Equal(code, want) {
		t.Errorf("code = % X, want % X", code, want)
	}
}

func TestBackwardBranch(t *testing.T) {
	a := NewAssembler()
	if err := a.DefineLabel("loop"); err != nil {
		t.Fatal(err)
	}
	mustEmit(t, a, "nop", NoOperand)
	if err := a.EmitBranch("br", "loop"); err != nil {
		t.Fatal(err)
	}
	code, _ := mustFinalize(t, a)
	// offset = 0 - (2 + 4)
	want := []byte{0x00, 0x38, 0xFA, 0xFF, 0xFF, 0xFF}
	if !bytes.Equal(code, want) {
		t.Errorf("code = % X, want % X", code, want)
	}
}

func TestBranchOffsetEqualsDistance(t *testing.T) {
	for _, n := range []int{0, 1, 5, 127} {
		a := NewAssembler()
		if err := a.EmitBranch("br.s", "end"); err != nil {
			t.Fatal(err)
		}
		for i := 0; i < n; i++ {
			mustEmit(t, a, "nop", NoOperand)
		}
		if err := a.DefineLabel("end"); err != nil {
			t.Fatal(err)
		}
		code, _ := mustFinalize(t, a)
		if int(int8(code[1])) != n {
			t.Errorf("n=%d: offset = %d", n, int8(code[1]))
		}
	}
}

func TestBranchOutOfRange(t *testing.T) {
	a := NewAssembler()
	if err := a.EmitBranch("br.s", "far"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 128; i++ {
		mustEmit(t, a, "nop", NoOperand)
	}
	if err := a.DefineLabel("far"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := a.Finalize(); !errors.Is(err, ErrBranchOffsetOutOfRange) {
		t.Errorf("err = %v, want ErrBranchOffsetOutOfRange", err)
	}
}

func TestBranchStackEffect(t *testing.T) {
	a := NewAssembler()
	if err := a.EmitBranch("brtrue.s", "x"); !errors.Is(err, ErrStackUnderflow) {
		t.Fatalf("err = %v, want ErrStackUnderflow", err)
	}
	if a.Len() != 0 {
		t.Errorf("Len = %d after failed branch", a.Len())
	}
	mustEmit(t, a, "ldc.i4.1", NoOperand)
	if err := a.EmitBranch("brtrue.s", "x"); err != nil {
		t.Fatal(err)
	}
	if a.StackDepth() != 0 {
		t.Errorf("StackDepth = %d, want 0", a.StackDepth())
	}
}

func TestEmitBranchErrors(t *testing.T) {
	a := NewAssembler()
	if err := a.EmitBranch("frob", "x"); !errors.Is(err, ErrUnknownMnemonic) {
		t.Errorf("unknown: err = %v", err)
	}
	if err := a.EmitBranch("nop", "x"); !errors.Is(err, ErrNotABranch) {
		t.Errorf("nop: err = %v", err)
	}
	if err := a.EmitBranch("switch", "x"); !errors.Is(err, ErrNotABranch) {
		t.Errorf("switch: err = %v", err)
	}
}

func TestUndefinedLabel(t *testing.T) {
	a := NewAssembler()
	if err := a.EmitBranch("br", "nowhere"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := a.Finalize(); !errors.Is(err, ErrUndefinedLabel) {
		t.Errorf("err = %v, want ErrUndefinedLabel", err)
	}
}

func TestDuplicateLabel(t *testing.T) {
	a := NewAssembler()
	if err := a.DefineLabel("x"); err != nil {
		t.Fatal(err)
	}
	mustEmit(t, a, "nop", NoOperand)
	if err := a.DefineLabel("x"); !errors.Is(err, ErrDuplicateLabel) {
		t.Errorf("err = %v, want ErrDuplicateLabel", err)
	}
	if pos, _ := a.LabelPosition("x"); pos != 0 {
		t.Errorf("label moved to %d", pos)
	}
}

func TestLabelPosition(t *testing.T) {
	a := NewAssembler()
	mustEmit(t, a, "ldc.i4", Int32(7))
	if err := a.DefineLabel("after"); err != nil {
		t.Fatal(err)
	}
	pos, ok := a.LabelPosition("after")
	if !ok || pos != 5 {
		t.Errorf("LabelPosition = %d, %v, want 5, true", pos, ok)
	}
	if _, ok := a.LabelPosition("missing"); ok {
		t.Error("missing label reported as defined")
	}
}

func TestEmitSwitchLabels(t *testing.T) {
	a := NewAssembler()
	mustEmit(t, a, "ldarg.0", NoOperand)
	if err := a.EmitSwitch("a", "b"); err != nil {
		t.Fatal(err)
	}
	// switch ends at 1 + 1 + 4 + 8 = 14
	if err := a.DefineLabel("a"); err != nil {
		t.Fatal(err)
	}
	mustEmit(t, a, "nop", NoOperand)
	if err := a.DefineLabel("b"); err != nil {
		t.Fatal(err)
	}
	mustEmit(t, a, "ret", NoOperand)

	code, _ := mustFinalize(t, a)
	want := []byte{
		0x02,
		0x45, 0x02, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x00,
		0x00, 0x2A,
	}
	if !bytes.Equal(code, want) {
		t.Errorf("code = % X, want % X", code, want)
	}
}

func TestFinalizeConsumes(t *testing.T) {
	a := NewAssembler()
	mustEmit(t, a, "ret", NoOperand)
	mustFinalize(t, a)
	if _, _, err := a.Finalize(); !errors.Is(err, ErrFinalized) {
		t.Errorf("second Finalize: err = %v", err)
	}
	if err := a.Emit("nop", NoOperand); !errors.Is(err, ErrFinalized) {
		t.Errorf("Emit after Finalize: err = %v", err)
	}
	if err := a.DefineLabel("x"); !errors.Is(err, ErrFinalized) {
		t.Errorf("DefineLabel after Finalize: err = %v", err)
	}
}
