package ilfile

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: tokenizer for IL listings
// ---------------------------------------------------------------------------

// TokenType classifies a listing token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenError
	TokenNewline
	TokenWord      // mnemonics, labels, type names
	TokenDirective // .method, .locals, ...
	TokenNumber
	TokenColon
	TokenComma
	TokenLParen
	TokenRParen
	TokenLBracket
	TokenRBracket
	TokenAmpersand
	TokenStar
)

var tokenNames = [...]string{
	TokenEOF:       "end of file",
	TokenError:     "error",
	TokenNewline:   "newline",
	TokenWord:      "word",
	TokenDirective: "directive",
	TokenNumber:    "number",
	TokenColon:     "':'",
	TokenComma:     "','",
	TokenLParen:    "'('",
	TokenRParen:    "')'",
	TokenLBracket:  "'['",
	TokenRBracket:  "']'",
	TokenAmpersand: "'&'",
	TokenStar:      "'*'",
}

func (t TokenType) String() string {
	if int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Position is a location in a listing.
type Position struct {
	Line   int // 1-based
	Column int // 1-based
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is one lexeme.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
}

// Lexer splits a listing into tokens. Newlines are significant.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int
	col     int
}

// NewLexer creates a lexer over input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = l.readPos
		l.col++
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) position() Position {
	return Position{Line: l.line, Column: l.col}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipSpaceAndComments()
	pos := l.position()

	single := func(tt TokenType) Token {
		lit := string(l.ch)
		l.readChar()
		return Token{Type: tt, Literal: lit, Pos: pos}
	}

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Pos: pos}
	case l.ch == '\n':
		return single(TokenNewline)
	case l.ch == ':':
		return single(TokenColon)
	case l.ch == ',':
		return single(TokenComma)
	case l.ch == '(':
		return single(TokenLParen)
	case l.ch == ')':
		return single(TokenRParen)
	case l.ch == '[':
		return single(TokenLBracket)
	case l.ch == ']':
		return single(TokenRBracket)
	case l.ch == '&':
		return single(TokenAmpersand)
	case l.ch == '*':
		return single(TokenStar)
	case l.ch == '.' && isWordStart(l.peekChar()):
		l.readChar()
		tok := l.readWord(pos)
		tok.Type = TokenDirective
		tok.Literal = "." + tok.Literal
		return tok
	case isDigit(l.ch), (l.ch == '-' || l.ch == '+') && isDigit(l.peekChar()):
		return l.readNumber(pos)
	case isWordStart(l.ch):
		return l.readWord(pos)
	}
	ch := l.ch
	l.readChar()
	return Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character %q", ch), Pos: pos}
}

// skipSpaceAndComments skips blanks and // or ; comments, stopping at the
// newline that ends them.
func (l *Lexer) skipSpaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' {
			l.readChar()
		}
		if l.ch == ';' || (l.ch == '/' && l.peekChar() == '/') {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			continue
		}
		return
	}
}

func (l *Lexer) readWord(pos Position) Token {
	start := l.pos
	for isWordStart(l.ch) || isDigit(l.ch) || l.ch == '.' {
		l.readChar()
	}
	return Token{Type: TokenWord, Literal: l.input[start:l.pos], Pos: pos}
}

// readNumber reads decimal or 0x integers and decimal floats.
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	if l.ch == '-' || l.ch == '+' {
		l.readChar()
	}
	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		l.readChar()
		l.readChar()
		for isHexDigit(l.ch) {
			l.readChar()
		}
		return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: pos}
	}
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: pos}
}

func isWordStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == '!' || r == '$' || r == '@'
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isHexDigit(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// Tokenize returns every token in input up to and including EOF.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens
		}
	}
}
