package ilfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ErrSyntax is wrapped by every parse error.
var ErrSyntax = errors.New("syntax error")

// Error is a parse or build error tied to a listing position.
type Error struct {
	Path string
	Pos  Position
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Pos, e.Err)
	}
	return fmt.Sprintf("%s:%s: %v", e.Path, e.Pos, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ---------------------------------------------------------------------------
// Parser
// ---------------------------------------------------------------------------

// Parser reads listings token by token.
type Parser struct {
	lexer  *Lexer
	path   string
	cur    Token
	peek   Token
	errors []error
}

// NewParser creates a parser for src; path is used in error messages.
func NewParser(path, src string) *Parser {
	p := &Parser{lexer: NewLexer(src), path: path}
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a listing held in memory.
func Parse(path, src string) (*File, error) {
	return NewParser(path, src).ParseFile()
}

// ReadFile reads and parses the listing at path.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading listing: %w", err)
	}
	return Parse(path, string(data))
}

func (p *Parser) nextToken() {
	p.cur = p.peek
	p.peek = p.lexer.NextToken()
}

func (p *Parser) errorf(pos Position, format string, args ...any) {
	p.errors = append(p.errors, &Error{
		Path: p.path,
		Pos:  pos,
		Err:  fmt.Errorf("%w: %s", ErrSyntax, fmt.Sprintf(format, args...)),
	})
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []error {
	return p.errors
}

// skipLine drops the rest of the current line after an error.
func (p *Parser) skipLine() {
	for p.cur.Type != TokenNewline && p.cur.Type != TokenEOF {
		p.nextToken()
	}
}

func (p *Parser) skipNewlines() {
	for p.cur.Type == TokenNewline {
		p.nextToken()
	}
}

// endLine requires the current token to end the line.
func (p *Parser) endLine() {
	if p.cur.Type != TokenNewline && p.cur.Type != TokenEOF {
		p.errorf(p.cur.Pos, "unexpected %s %q", p.cur.Type, p.cur.Literal)
		p.skipLine()
	}
}

func (p *Parser) expect(tt TokenType) (Token, bool) {
	tok := p.cur
	if tok.Type != tt {
		p.errorf(tok.Pos, "expected %s, got %s %q", tt, tok.Type, tok.Literal)
		return tok, false
	}
	p.nextToken()
	return tok, true
}

// ParseFile parses every method in the input.
func (p *Parser) ParseFile() (*File, error) {
	f := &File{Path: p.path}
	names := map[string]bool{}
	for {
		p.skipNewlines()
		if p.cur.Type == TokenEOF {
			break
		}
		if p.cur.Type != TokenDirective || p.cur.Literal != ".method" {
			p.errorf(p.cur.Pos, "expected .method, got %q", p.cur.Literal)
			p.skipLine()
			continue
		}
		m := p.parseMethod()
		if m == nil {
			continue
		}
		if names[m.Name] {
			p.errorf(m.Pos, "method %q defined twice", m.Name)
			continue
		}
		names[m.Name] = true
		f.Methods = append(f.Methods, m)
	}
	if len(p.errors) > 0 {
		return nil, errors.Join(p.errors...)
	}
	return f, nil
}

func (p *Parser) parseMethod() *Method {
	m := &Method{Pos: p.cur.Pos}
	p.nextToken()
	name, ok := p.expect(TokenWord)
	if !ok {
		p.skipLine()
		return nil
	}
	m.Name = name.Literal
	p.endLine()

	for {
		p.skipNewlines()
		switch {
		case p.cur.Type == TokenEOF:
			p.errorf(p.cur.Pos, "method %q missing .end", m.Name)
			return nil
		case p.cur.Type == TokenDirective:
			if p.cur.Literal == ".end" {
				p.nextToken()
				p.endLine()
				return m
			}
			p.parseDirective(m)
		case p.cur.Type == TokenWord && p.peek.Type == TokenColon:
			m.Statements = append(m.Statements, Statement{Label: p.cur.Literal, Pos: p.cur.Pos})
			p.nextToken()
			p.nextToken()
		case p.cur.Type == TokenWord:
			m.Statements = append(m.Statements, p.parseInstruction())
		default:
			p.errorf(p.cur.Pos, "unexpected %s %q", p.cur.Type, p.cur.Literal)
			p.skipLine()
		}
	}
}

func (p *Parser) parseDirective(m *Method) {
	dir := p.cur
	p.nextToken()
	switch dir.Literal {
	case ".maxstack":
		tok, ok := p.expect(TokenNumber)
		if !ok {
			p.skipLine()
			return
		}
		n, err := strconv.ParseUint(tok.Literal, 0, 16)
		if err != nil {
			p.errorf(tok.Pos, "bad .maxstack %q", tok.Literal)
			p.skipLine()
			return
		}
		v := uint16(n)
		m.MaxStack = &v
	case ".noinit":
		m.NoInit = true
	case ".locals":
		p.parseLocals(m)
	case ".try":
		p.parseTry(m, dir.Pos)
	default:
		p.errorf(dir.Pos, "unknown directive %s", dir.Literal)
		p.skipLine()
		return
	}
	p.endLine()
}

// parseLocals reads "type name, type name" with optional parentheses.
func (p *Parser) parseLocals(m *Method) {
	paren := p.cur.Type == TokenLParen
	if paren {
		p.nextToken()
	}
	for {
		pos := p.cur.Pos
		typ, ok := p.parseType()
		if !ok {
			p.skipLine()
			return
		}
		name := ""
		if p.cur.Type == TokenWord {
			name = p.cur.Literal
			p.nextToken()
		}
		m.Locals = append(m.Locals, Local{Name: name, Type: typ, Pos: pos})
		if p.cur.Type != TokenComma {
			break
		}
		p.nextToken()
	}
	if paren {
		if _, ok := p.expect(TokenRParen); !ok {
			p.skipLine()
		}
	}
}

func (p *Parser) parseType() (TypeExpr, bool) {
	var t TypeExpr
	if p.cur.Type == TokenWord && p.cur.Literal == "pinned" {
		t.Pinned = true
		p.nextToken()
	}
	base, ok := p.expect(TokenWord)
	if !ok {
		return t, false
	}
	t.Base = base.Literal
	if t.Base == "class" || t.Base == "valuetype" {
		tok, ok := p.expect(TokenNumber)
		if !ok {
			return t, false
		}
		v, err := strconv.ParseUint(tok.Literal, 0, 32)
		if err != nil {
			p.errorf(tok.Pos, "bad type token %q", tok.Literal)
			return t, false
		}
		t.Token = uint32(v)
	}
	for {
		switch p.cur.Type {
		case TokenLBracket:
			p.nextToken()
			if _, ok := p.expect(TokenRBracket); !ok {
				return t, false
			}
			t.Suffix = append(t.Suffix, "[]")
		case TokenStar:
			p.nextToken()
			t.Suffix = append(t.Suffix, "*")
		case TokenAmpersand:
			p.nextToken()
			t.ByRef = true
			return t, true
		default:
			return t, true
		}
	}
}

// parseTry reads ".try TS TE kind ..." where kind is one of
//
//	catch HS HE [token]
//	finally HS HE
//	fault HS HE
//	filter FS HS HE
func (p *Parser) parseTry(m *Method, pos Position) {
	words := func(n int) ([]string, bool) {
		out := make([]string, 0, n)
		for range n {
			tok, ok := p.expect(TokenWord)
			if !ok {
				return nil, false
			}
			out = append(out, tok.Literal)
		}
		return out, true
	}

	region, ok := words(3)
	if !ok {
		p.skipLine()
		return
	}
	c := TryClause{Kind: region[2], TryStart: region[0], TryEnd: region[1], Pos: pos}
	var rest []string
	switch c.Kind {
	case "catch", "finally", "fault":
		rest, ok = words(2)
	case "filter":
		rest, ok = words(3)
	default:
		p.errorf(pos, "unknown handler kind %q", c.Kind)
		p.skipLine()
		return
	}
	if !ok {
		p.skipLine()
		return
	}
	if c.Kind == "filter" {
		c.FilterStart, rest = rest[0], rest[1:]
	}
	c.HandlerStart, c.HandlerEnd = rest[0], rest[1]
	if c.Kind == "catch" && p.cur.Type == TokenNumber {
		v, err := strconv.ParseUint(p.cur.Literal, 0, 32)
		if err != nil {
			p.errorf(p.cur.Pos, "bad class token %q", p.cur.Literal)
			p.skipLine()
			return
		}
		c.ClassToken = uint32(v)
		p.nextToken()
	}
	m.Handlers = append(m.Handlers, c)
}

func (p *Parser) parseInstruction() Statement {
	s := Statement{Mnemonic: p.cur.Literal, Pos: p.cur.Pos}
	p.nextToken()
	switch p.cur.Type {
	case TokenNumber, TokenWord:
		s.Operands = []string{p.cur.Literal}
		p.nextToken()
	case TokenLParen:
		s.List = true
		p.nextToken()
		for p.cur.Type != TokenRParen {
			if p.cur.Type != TokenNumber && p.cur.Type != TokenWord {
				p.errorf(p.cur.Pos, "bad list item %q", p.cur.Literal)
				p.skipLine()
				return s
			}
			s.Operands = append(s.Operands, p.cur.Literal)
			p.nextToken()
			if p.cur.Type == TokenComma {
				p.nextToken()
			} else if p.cur.Type != TokenRParen {
				p.errorf(p.cur.Pos, "expected ',' or ')' in list")
				p.skipLine()
				return s
			}
		}
		p.nextToken()
	}
	p.endLine()
	return s
}
