package template

import (
	"strings"
	"unicode/utf8"
)

// tokenType identifies a lexical token.
type tokenType int

const (
	tokenText tokenType = iota // literal SQL
	tokenExpr                  // content of {{ ... }}
	tokenStmt                  // content of {% ... %}
	tokenEOF
)

// token is one lexical unit of a template.
type token struct {
	typ   tokenType
	value string
	pos   Position
}

// lexer tokenizes a template into text, expression, and statement tokens.
type lexer struct {
	input string
	file  string
	pos   int
	line  int
	col   int

	startLine int
	startCol  int
}

func newLexer(input, file string) *lexer {
	return &lexer{input: input, file: file, line: 1, col: 1}
}

// tokenize consumes the whole input.
func (l *lexer) tokenize() ([]token, error) {
	var tokens []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.typ == tokenEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	if l.pos >= len(l.input) {
		return token{typ: tokenEOF, pos: l.position()}, nil
	}
	switch {
	case l.lookingAt("{{"):
		return l.scanDelimited(tokenExpr, "{{", "}}")
	case l.lookingAt("{%"):
		return l.scanDelimited(tokenStmt, "{%", "%}")
	default:
		return l.scanText(), nil
	}
}

// scanText consumes literal text up to the next delimiter or EOF.
func (l *lexer) scanText() token {
	l.mark()
	start := l.pos
	for l.pos < len(l.input) && !l.lookingAt("{{") && !l.lookingAt("{%") {
		l.advance()
	}
	return token{typ: tokenText, value: l.input[start:l.pos], pos: l.startPos()}
}

// scanDelimited consumes an expression or statement between open and close.
func (l *lexer) scanDelimited(typ tokenType, open, close string) (token, error) {
	l.mark()
	l.skip(len(open))

	start := l.pos
	for l.pos < len(l.input) {
		if l.lookingAt(close) {
			value := strings.TrimSpace(l.input[start:l.pos])
			l.skip(len(close))
			return token{typ: typ, value: value, pos: l.startPos()}, nil
		}
		l.advance()
	}
	return token{}, errAt(l.startPos(), "unclosed %q: missing %q", open, close)
}

func (l *lexer) lookingAt(s string) bool {
	return strings.HasPrefix(l.input[l.pos:], s)
}

// advance moves past one rune, tracking line and column.
func (l *lexer) advance() {
	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
}

// skip moves past n bytes of known ASCII delimiter text.
func (l *lexer) skip(n int) {
	l.pos += n
	l.col += n
}

func (l *lexer) mark() {
	l.startLine = l.line
	l.startCol = l.col
}

func (l *lexer) position() Position {
	return Position{File: l.file, Line: l.line, Column: l.col}
}

func (l *lexer) startPos() Position {
	return Position{File: l.file, Line: l.startLine, Column: l.startCol}
}
