package ilfile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/ilasm/il"
	"github.com/chazu/ilasm/metadata"
	"github.com/chazu/ilasm/methodbody"
)

func TestLexerTokens(t *testing.T) {
	input := ".method Main // comment\nloop: ldc.i4.s -5 ; trailing\nswitch (a, 0x10) int32[]& *"
	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenDirective, ".method"},
		{TokenWord, "Main"},
		{TokenNewline, "\n"},
		{TokenWord, "loop"},
		{TokenColon, ":"},
		{TokenWord, "ldc.i4.s"},
		{TokenNumber, "-5"},
		{TokenNewline, "\n"},
		{TokenWord, "switch"},
		{TokenLParen, "("},
		{TokenWord, "a"},
		{TokenComma, ","},
		{TokenNumber, "0x10"},
		{TokenRParen, ")"},
		{TokenWord, "int32"},
		{TokenLBracket, "["},
		{TokenRBracket, "]"},
		{TokenAmpersand, "&"},
		{TokenStar, "*"},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
		}
		if tok.Literal != exp.lit {
			t.Errorf("token[%d] literal = %q, want %q", i, tok.Literal, exp.lit)
		}
	}
}

func TestLexerPositions(t *testing.T) {
	toks := Tokenize("nop\n  ret")
	if toks[0].Pos != (Position{1, 1}) {
		t.Errorf("nop at %v", toks[0].Pos)
	}
	if toks[2].Pos != (Position{2, 3}) {
		t.Errorf("ret at %v", toks[2].Pos)
	}
}

func TestLexerFloatsAndMnemonics(t *testing.T) {
	toks := Tokenize("ldc.r8 -1.5e3 volatile. readonly.")
	want := []string{"ldc.r8", "-1.5e3", "volatile.", "readonly."}
	for i, w := range want {
		if toks[i].Literal != w {
			t.Errorf("token[%d] = %q, want %q", i, toks[i].Literal, w)
		}
	}
}

const sample = `
// adds its argument to ten
.method AddTen
  .maxstack 4
  .locals int32 sum, string[] names
  ldarg.0
  ldc.i4.s 10
  add
  stloc.0
  ldloc.0
  ret
.end

.method Guarded
  .noinit
  .try ts te finally hs he
ts:
  nop
  leave.s done
te:
hs:
  endfinally
he:
done:
  ret
.end
`

func TestParse(t *testing.T) {
	f, err := Parse("sample.il", sample)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Methods) != 2 {
		t.Fatalf("methods = %d, want 2", len(f.Methods))
	}
	m := f.Methods[0]
	if m.Name != "AddTen" || m.MaxStack == nil || *m.MaxStack != 4 {
		t.Errorf("method = %q maxstack %v", m.Name, m.MaxStack)
	}
	if len(m.Locals) != 2 || m.Locals[1].Name != "names" || len(m.Locals[1].Type.Suffix) != 1 {
		t.Errorf("locals = %+v", m.Locals)
	}
	if len(m.Statements) != 6 || m.Statements[1].Operands[0] != "10" {
		t.Errorf("statements = %+v", m.Statements)
	}

	g := f.Methods[1]
	if !g.NoInit || len(g.Handlers) != 1 || g.Handlers[0].Kind != "finally" {
		t.Errorf("guarded = %+v", g)
	}
	if !g.Statements[0].IsLabel() || g.Statements[0].Label != "ts" {
		t.Errorf("first statement = %+v", g.Statements[0])
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing end", ".method M\n ret\n"},
		{"stray instruction", "ret\n"},
		{"bad maxstack", ".method M\n .maxstack 70000\n ret\n.end\n"},
		{"unknown directive", ".method M\n .frob\n.end\n"},
		{"bad handler kind", ".method M\n .try a b except c d\n.end\n"},
		{"duplicate method", ".method M\n ret\n.end\n.method M\n ret\n.end\n"},
		{"two operands", ".method M\n ldc.i4 1 2\n.end\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("x.il", tt.src)
			if !errors.Is(err, ErrSyntax) {
				t.Errorf("err = %v, want ErrSyntax", err)
			}
		})
	}
}

func TestErrorCarriesPosition(t *testing.T) {
	_, err := Parse("x.il", ".method M\n  .frob\n.end\n")
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if perr.Pos.Line != 2 || perr.Error()[:7] != "x.il:2:" {
		t.Errorf("error = %q", perr.Error())
	}
}

func build(t *testing.T, src string) *methodbody.Body {
	t.Helper()
	f, err := Parse("t.il", src)
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.Methods[0].Builder(f.Path)
	if err != nil {
		t.Fatal(err)
	}
	body, err := b.Build(metadata.NewContext())
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestBuildTiny(t *testing.T) {
	body := build(t, ".method One\n ldc.i4.1\n ret\n.end\n")
	if !bytes.Equal(body.Bytes, []byte{0x0A, 0x17, 0x2A}) {
		t.Errorf("body = % X", body.Bytes)
	}
}

func TestBuildBranches(t *testing.T) {
	body := build(t, ".method B\n nop\n br.s target\n nop\ntarget: ret\n.end\n")
	if !bytes.Equal(body.Code(), []byte{0x00, 0x2B, 0x01, 0x00, 0x2A}) {
		t.Errorf("code = % X", body.Code())
	}
}

func TestBuildSample(t *testing.T) {
	f, err := Parse("sample.il", sample)
	if err != nil {
		t.Fatal(err)
	}
	ctx := metadata.NewContext()
	for _, m := range f.Methods {
		b, err := m.Builder(f.Path)
		if err != nil {
			t.Fatalf("%s: %v", m.Name, err)
		}
		body, err := b.Build(ctx)
		if err != nil {
			t.Fatalf("%s: %v", m.Name, err)
		}
		switch m.Name {
		case "AddTen":
			if body.LocalSig != 0x11000001 {
				t.Errorf("AddTen local sig = %v", body.LocalSig)
			}
			sig, _ := ctx.Signature(body.LocalSig)
			if !bytes.Equal(sig, []byte{0x07, 0x02, 0x08, 0x1D, 0x0E}) {
				t.Errorf("AddTen sig = % X", sig)
			}
		case "Guarded":
			if len(body.Handlers) != 1 || body.Handlers[0].Kind != methodbody.KindFinally {
				t.Errorf("Guarded handlers = %+v", body.Handlers)
			}
		}
	}
}

func TestBuildSwitchLabels(t *testing.T) {
	body := build(t, ".method S\n ldarg.0\n switch (a, b)\na: nop\nb: ret\n.end\n")
	want := []byte{0x02, 0x45, 2, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0x00, 0x2A}
	if !bytes.Equal(body.Code(), want) {
		t.Errorf("code = % X, want % X", body.Code(), want)
	}
}

func TestBuildOperandErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"out of range", ".method M\n ldc.i4.s 300\n.end\n", ErrBadOperand},
		{"unknown", ".method M\n frob\n.end\n", il.ErrUnknownMnemonic},
		{"unexpected", ".method M\n nop 1\n.end\n", il.ErrUnexpectedOperand},
		{"missing label", ".method M\n br done\n.end\n", il.ErrUndefinedLabel},
		{"mixed switch", ".method M\n ldc.i4.0\n switch (a, 1)\na: ret\n.end\n", ErrBadOperand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse("m.il", tt.src)
			if err != nil {
				t.Fatal(err)
			}
			b, err := f.Methods[0].Builder(f.Path)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := b.Build(nil); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseOperand(t *testing.T) {
	op, err := ParseOperand(il.OperandInt32, "0xFFFFFFFF")
	if err != nil || int32(op.Bits()) != -1 {
		t.Errorf("0xFFFFFFFF as int32 = %v, %v", op, err)
	}
	op, err = ParseOperand(il.OperandToken, "0x0A000001")
	if err != nil || op.Kind() != il.OperandToken || op.Bits() != 0x0A000001 {
		t.Errorf("token = %v, %v", op, err)
	}
	if _, err := ParseOperand(il.OperandUInt8, "-1"); !errors.Is(err, ErrBadOperand) {
		t.Errorf("negative uint8: err = %v", err)
	}
}

func TestLocalTypes(t *testing.T) {
	f, err := Parse("l.il", ".method L\n .locals (pinned uint8& p, class 0x01000002 c, !!0 g, int32* ptr)\n ret\n.end\n")
	if err != nil {
		t.Fatal(err)
	}
	var locals []metadata.LocalVariable
	for _, l := range f.Methods[0].Locals {
		v, err := l.Variable()
		if err != nil {
			t.Fatal(err)
		}
		locals = append(locals, v)
	}
	sig, err := metadata.EncodeLocalVarSig(locals)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x07, 0x04, 0x45, 0x10, 0x05, 0x12, 0x09, 0x1E, 0x00, 0x0F, 0x08}
	if !bytes.Equal(sig, want) {
		t.Errorf("sig = % X, want % X", sig, want)
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.il")
	if err := os.WriteFile(path, []byte(".method M\n ret\n.end\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if f.Path != path || len(f.Methods) != 1 {
		t.Errorf("file = %+v", f)
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.il")); err == nil {
		t.Error("missing file parsed")
	}
}
