package parser

import (
	"fmt"

	"github.com/wbrown/janus-live/datalog/query"
)

// TokenType is the lexical class of a token
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenInvalid
	TokenSymbol
	TokenVariable
	TokenKeyword
	TokenInteger
	TokenLeftParen
	TokenRightParen
	TokenComma
	TokenDot
)

// keywords are lowercase words that can never be variables
var keywords = map[string]struct{}{
	"if":          {},
	"decide":      {},
	"constrain":   {},
	"import":      {},
	"soft":        {},
	"uniform":     {},
	"cardinality": {},
	"to":          {},
	"only":        {},
	"at":          {},
	"most":        {},
	"least":       {},
}

// Token is one lexeme with its source span
type Token struct {
	Type  TokenType
	Value string
	Span  query.Span
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "EOF"
	case TokenInvalid:
		return fmt.Sprintf("Invalid(%q)", t.Value)
	case TokenSymbol:
		return fmt.Sprintf("Symbol(%s)", t.Value)
	case TokenVariable:
		return fmt.Sprintf("Variable(%s)", t.Value)
	case TokenKeyword:
		return fmt.Sprintf("Keyword(%s)", t.Value)
	case TokenInteger:
		return fmt.Sprintf("Integer(%s)", t.Value)
	case TokenLeftParen:
		return "("
	case TokenRightParen:
		return ")"
	case TokenComma:
		return ","
	case TokenDot:
		return "."
	default:
		return "Unknown"
	}
}

// is reports whether t is the keyword kw
func (t Token) is(kw string) bool {
	return t.Type == TokenKeyword && t.Value == kw
}
