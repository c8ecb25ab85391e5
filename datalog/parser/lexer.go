package parser

import (
	"strconv"

	"github.com/wbrown/janus-live/datalog/query"
)

// Lexer tokenizes rule-language source. It never fails: characters that
// start no valid token become TokenInvalid and are reported by the parser.
type Lexer struct {
	input  string
	pos    int
	line   int
	col    int
	tokens []Token
}

// NewLexer creates a lexer for input
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Lex tokenizes the whole input. The last token is always TokenEOF.
func (l *Lexer) Lex() []Token {
	for {
		l.skipWhitespaceAndComments()
		if l.pos >= len(l.input) {
			break
		}

		start := l.point()
		begin := l.pos
		ch := l.peek()
		typ := TokenInvalid
		switch {
		case ch == '(':
			l.advance()
			typ = TokenLeftParen
		case ch == ')':
			l.advance()
			typ = TokenRightParen
		case ch == ',':
			l.advance()
			typ = TokenComma
		case ch == '.':
			l.advance()
			typ = TokenDot
		case isDigit(ch) || (ch == '-' && isDigit(l.peekAt(1))):
			typ = l.readInteger()
		case isLetter(ch):
			typ = l.readWord()
		default:
			l.advance()
		}

		l.tokens = append(l.tokens, Token{
			Type:  typ,
			Value: l.input[begin:l.pos],
			Span:  query.Span{Start: start, End: l.point()},
		})
	}

	end := l.point()
	l.tokens = append(l.tokens, Token{Type: TokenEOF, Span: query.Span{Start: end, End: end}})
	return l.tokens
}

func (l *Lexer) point() query.Point {
	return query.Point{Line: l.line, Column: l.col}
}

func (l *Lexer) peek() byte { return l.peekAt(0) }

func (l *Lexer) peekAt(offset int) byte {
	if l.pos+offset >= len(l.input) {
		return 0
	}
	return l.input[l.pos+offset]
}

// advance moves to the next byte, tracking line and column
func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}
	if l.input[l.pos] == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
	l.pos++
}

// skipWhitespaceAndComments skips blanks and ';' comments to end of line
func (l *Lexer) skipWhitespaceAndComments() {
	for l.pos < len(l.input) {
		switch ch := l.peek(); {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			l.advance()
		case ch == ';':
			for l.pos < len(l.input) && l.peek() != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

// readInteger reads 0 or -?[1-9][0-9]*. Leading zeros and values outside
// int64 are invalid.
func (l *Lexer) readInteger() TokenType {
	begin := l.pos
	if l.peek() == '-' {
		l.advance()
	}
	for isDigit(l.peek()) {
		l.advance()
	}
	text := l.input[begin:l.pos]
	digits := text
	if digits[0] == '-' {
		digits = digits[1:]
	}
	if len(digits) > 1 && digits[0] == '0' || text == "-0" {
		return TokenInvalid
	}
	if _, err := strconv.ParseInt(text, 10, 64); err != nil {
		return TokenInvalid
	}
	return TokenInteger
}

// readWord reads an identifier. Variables are [a-z][a-z0-9_]*, symbols
// are [A-Z][a-zA-Z0-9]*.
func (l *Lexer) readWord() TokenType {
	begin := l.pos
	for isLetter(l.peek()) || isDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	word := l.input[begin:l.pos]

	if isUpper(word[0]) {
		for i := 1; i < len(word); i++ {
			if word[i] == '_' {
				return TokenInvalid
			}
		}
		return TokenSymbol
	}
	for i := 1; i < len(word); i++ {
		if isUpper(word[i]) {
			return TokenInvalid
		}
	}
	if _, ok := keywords[word]; ok {
		return TokenKeyword
	}
	return TokenVariable
}

func isDigit(ch byte) bool  { return ch >= '0' && ch <= '9' }
func isUpper(ch byte) bool  { return ch >= 'A' && ch <= 'Z' }
func isLetter(ch byte) bool { return isUpper(ch) || (ch >= 'a' && ch <= 'z') }
