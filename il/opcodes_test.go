package il

import (
	"sync"
	"testing"
)

// ---------------------------------------------------------------------------
// Opcode table tests
// ---------------------------------------------------------------------------

func TestLookup(t *testing.T) {
	tests := []struct {
		mnemonic string
		opcode   byte
		prefix   byte
		pops     uint8
		pushes   uint8
		operand  OperandKind
		flow     FlowKind
	}{
		{"nop", 0x00, 0, 0, 0, OperandNone, FlowSequential},
		{"ldarg.0", 0x02, 0, 0, 1, OperandNone, FlowSequential},
		{"ldc.i4.s", 0x1F, 0, 0, 1, OperandInt8, FlowSequential},
		{"ldc.r8", 0x23, 0, 0, 1, OperandFloat64, FlowSequential},
		{"dup", 0x25, 0, 1, 2, OperandNone, FlowSequential},
		{"ret", 0x2A, 0, 0, 0, OperandNone, FlowReturn},
		{"br.s", 0x2B, 0, 0, 0, OperandInt8, FlowUnconditionalBranch},
		{"brtrue", 0x3A, 0, 1, 0, OperandInt32, FlowConditionalBranch},
		{"blt.un", 0x44, 0, 2, 0, OperandInt32, FlowConditionalBranch},
		{"switch", 0x45, 0, 1, 0, OperandSwitch, FlowSwitch},
		{"add", 0x58, 0, 2, 1, OperandNone, FlowSequential},
		{"callvirt", 0x6F, 0, 0, 0, OperandToken, FlowCall},
		{"stelem.ref", 0xA2, 0, 3, 0, OperandNone, FlowSequential},
		{"leave", 0xDD, 0, 0, 0, OperandInt32, FlowLeave},
		{"leave.s", 0xDE, 0, 0, 0, OperandInt8, FlowLeave},
		{"conv.u", 0xE0, 0, 1, 1, OperandNone, FlowSequential},
		{"ceq", 0x01, PrefixExtended, 2, 1, OperandNone, FlowSequential},
		{"ldarg", 0x09, PrefixExtended, 0, 1, OperandUInt16, FlowSequential},
		{"stloc", 0x0E, PrefixExtended, 1, 0, OperandUInt16, FlowSequential},
		{"endfilter", 0x11, PrefixExtended, 1, 0, OperandNone, FlowEndFinally},
		{"rethrow", 0x1A, PrefixExtended, 0, 0, OperandNone, FlowThrow},
		{"readonly.", 0x1E, PrefixExtended, 0, 0, OperandNone, FlowSequential},
	}

	for _, tt := range tests {
		d, ok := Lookup(tt.mnemonic)
		if !ok {
			t.Errorf("Lookup(%q) not found", tt.mnemonic)
			continue
		}
		if d.Opcode != tt.opcode || d.Prefix != tt.prefix {
			t.Errorf("%s: opcode = %02X %02X, want %02X %02X", tt.mnemonic, d.Prefix, d.Opcode, tt.prefix, tt.opcode)
		}
		if d.Pops != tt.pops || d.Pushes != tt.pushes {
			t.Errorf("%s: pops/pushes = %d/%d, want %d/%d", tt.mnemonic, d.Pops, d.Pushes, tt.pops, tt.pushes)
		}
		if d.Operand != tt.operand {
			t.Errorf("%s: operand = %v, want %v", tt.mnemonic, d.Operand, tt.operand)
		}
		if d.Flow != tt.flow {
			t.Errorf("%s: flow = %v, want %v", tt.mnemonic, d.Flow, tt.flow)
		}
	}
}

func TestLookupUnknown(t *testing.T) {
	for _, m := range []string{"", "bogus", "ldc.i4.9", "br.x"} {
		if _, ok := Lookup(m); ok {
			t.Errorf("Lookup(%q) should fail", m)
		}
	}
}

func TestLookupCaseInsensitive(t *testing.T) {
	d, ok := Lookup("LDC.I4.1")
	if !ok || d.Opcode != 0x17 {
		t.Errorf("Lookup(LDC.I4.1) = %v, %v", d, ok)
	}
}

func TestMnemonicsUnique(t *testing.T) {
	seen := map[string]bool{}
	count := 0
	for _, f := range oneByteFacts {
		if f.mnemonic == "" {
			continue
		}
		if seen[f.mnemonic] {
			t.Errorf("duplicate mnemonic %q", f.mnemonic)
		}
		seen[f.mnemonic] = true
		count++
	}
	for _, f := range extendedFacts {
		if f.mnemonic == "" {
			continue
		}
		if seen[f.mnemonic] {
			t.Errorf("duplicate mnemonic %q", f.mnemonic)
		}
		seen[f.mnemonic] = true
		count++
	}
	if Count() != count {
		t.Errorf("Count() = %d, want %d", Count(), count)
	}
}

func TestIndexOperandKinds(t *testing.T) {
	tests := []struct {
		mnemonic string
		operand  OperandKind
	}{
		{"ldarg.s", OperandUInt8},
		{"ldarga.s", OperandUInt8},
		{"starg.s", OperandUInt8},
		{"ldloc.s", OperandUInt8},
		{"ldloca.s", OperandUInt8},
		{"stloc.s", OperandUInt8},
		{"unaligned.", OperandUInt8},
		{"ldarg", OperandUInt16},
		{"ldarga", OperandUInt16},
		{"starg", OperandUInt16},
		{"ldloc", OperandUInt16},
		{"ldloca", OperandUInt16},
		{"stloc", OperandUInt16},
	}
	for _, tt := range tests {
		d, ok := Lookup(tt.mnemonic)
		if !ok {
			t.Errorf("Lookup(%q) not found", tt.mnemonic)
			continue
		}
		if d.Operand != tt.operand {
			t.Errorf("%s: operand = %v, want %v", tt.mnemonic, d.Operand, tt.operand)
		}
	}
}

func TestBranchesHaveOffsetOperands(t *testing.T) {
	for _, d := range Descriptors() {
		if !d.IsBranch() {
			continue
		}
		switch d.Operand {
		case OperandInt8, OperandInt32:
		default:
			t.Errorf("%s: branch with %v operand", d.Mnemonic, d.Operand)
		}
	}
}

func TestDescriptorsOrdered(t *testing.T) {
	ds := Descriptors()
	if len(ds) == 0 {
		t.Fatal("no descriptors")
	}
	if ds[0].Mnemonic != "nop" {
		t.Errorf("first descriptor = %s, want nop", ds[0].Mnemonic)
	}
	if last := ds[len(ds)-1]; last.Mnemonic != "readonly." {
		t.Errorf("last descriptor = %s, want readonly.", last.Mnemonic)
	}
}

func TestDescriptorSize(t *testing.T) {
	tests := []struct {
		mnemonic string
		size     int
	}{
		{"nop", 1},
		{"ldc.i4.s", 2},
		{"ldc.i4", 5},
		{"ldc.i8", 9},
		{"call", 5},
		{"ldarg", 4},
		{"ceq", 2},
		{"switch", 5},
	}
	for _, tt := range tests {
		d, _ := Lookup(tt.mnemonic)
		if got := d.Size(); got != tt.size {
			t.Errorf("%s: Size() = %d, want %d", tt.mnemonic, got, tt.size)
		}
	}
}

func TestLookupConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := Lookup("add"); !ok {
				t.Error("add not found")
			}
		}()
	}
	wg.Wait()
}

func TestKindStrings(t *testing.T) {
	if OperandToken.String() != "token" {
		t.Errorf("OperandToken.String() = %q", OperandToken.String())
	}
	if FlowLeave.String() != "leave" {
		t.Errorf("FlowLeave.String() = %q", FlowLeave.String())
	}
	if got := OperandKind(200).String(); got != "OperandKind(200)" {
		t.Errorf("unknown kind = %q", got)
	}
}
