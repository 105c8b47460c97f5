package parse

import (
	"strings"

	"pklsense/internal/engine/syntax"
)

type tokKind uint8

const (
	tokEOF tokKind = iota
	tokIdent
	tokInt
	tokFloat
	tokString
	tokSym
)

type token struct {
	kind tokKind
	text string
	pos  syntax.Pos
}

// two-char symbols checked before single-char ones
var doubleSyms = []string{"&&", "||", "==", "!=", "<=", ">=", "->", "??", "!!"}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

type lexer struct {
	src  string
	off  int
	line int
	col  int
}

func newLexer(src []byte) *lexer {
	return &lexer{src: string(src), line: 1, col: 1}
}

func (l *lexer) advance(n int) {
	for i := 0; i < n && l.off < len(l.src); i++ {
		if l.src[l.off] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.off++
	}
}

func (l *lexer) skipTrivia() {
	for l.off < len(l.src) {
		c := l.src[l.off]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance(1)
		case c == '/' && l.off+1 < len(l.src) && l.src[l.off+1] == '/':
			for l.off < len(l.src) && l.src[l.off] != '\n' {
				l.advance(1)
			}
		case c == '/' && l.off+1 < len(l.src) && l.src[l.off+1] == '*':
			l.advance(2)
			for l.off < len(l.src) {
				if l.src[l.off] == '*' && l.off+1 < len(l.src) && l.src[l.off+1] == '/' {
					l.advance(2)
					break
				}
				l.advance(1)
			}
		default:
			return
		}
	}
}

func (l *lexer) pos() syntax.Pos {
	return syntax.Pos{Line: l.line, Col: l.col}
}

func (l *lexer) next() token {
	l.skipTrivia()
	start := l.pos()
	if l.off >= len(l.src) {
		return token{kind: tokEOF, pos: start}
	}

	c := l.src[l.off]

	if isIdentStart(c) {
		begin := l.off
		for l.off < len(l.src) && isIdentPart(l.src[l.off]) {
			l.advance(1)
		}
		return token{kind: tokIdent, text: l.src[begin:l.off], pos: start}
	}

	if isDigit(c) {
		begin := l.off
		isFloat := false
		for l.off < len(l.src) && (isDigit(l.src[l.off]) || l.src[l.off] == '_') {
			l.advance(1)
		}
		if l.off+1 < len(l.src) && l.src[l.off] == '.' && isDigit(l.src[l.off+1]) {
			isFloat = true
			l.advance(1)
			for l.off < len(l.src) && isDigit(l.src[l.off]) {
				l.advance(1)
			}
		}
		text := strings.ReplaceAll(l.src[begin:l.off], "_", "")
		if isFloat {
			return token{kind: tokFloat, text: text, pos: start}
		}
		return token{kind: tokInt, text: text, pos: start}
	}

	if c == '"' {
		l.advance(1)
		var sb strings.Builder
		for l.off < len(l.src) && l.src[l.off] != '"' {
			if l.src[l.off] == '\\' && l.off+1 < len(l.src) {
				l.advance(1)
				switch l.src[l.off] {
				case 'n':
					sb.WriteByte('\n')
				case 't':
					sb.WriteByte('\t')
				case 'r':
					sb.WriteByte('\r')
				default:
					sb.WriteByte(l.src[l.off])
				}
				l.advance(1)
				continue
			}
			sb.WriteByte(l.src[l.off])
			l.advance(1)
		}
		l.advance(1) // closing quote
		return token{kind: tokString, text: sb.String(), pos: start}
	}

	for _, sym := range doubleSyms {
		if strings.HasPrefix(l.src[l.off:], sym) {
			l.advance(2)
			return token{kind: tokSym, text: sym, pos: start}
		}
	}

	l.advance(1)
	return token{kind: tokSym, text: string(c), pos: start}
}

func lex(src []byte) []token {
	l := newLexer(src)
	var toks []token
	for {
		t := l.next()
		toks = append(toks, t)
		if t.kind == tokEOF {
			return toks
		}
	}
}
