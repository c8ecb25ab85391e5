// Package parser turns rule-language source text into query items.
//
// The language has four top-level forms:
//
//	Path(x, z) if Edge(x, y), Path(y, z).
//	decide Pick(x) if Option(x).
//	constrain soft(5) (x) cardinality to at most 1 Pick(x).
//	import Std.Graph.(Edge, Node)
//
// Symbols are capitalized, variables are lowercase, comments run from ';'
// to the end of the line. Imports are accepted and ignored.
package parser

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/wbrown/janus-live/datalog"
	"github.com/wbrown/janus-live/datalog/query"
)

// Parse returns the items of src in source order. It never fails: each
// syntax error becomes a "Syntax error" diagnostic item covering the text
// up to the next '.', and parsing resumes after it.
func Parse(src string) []query.Item {
	p := &parser{tokens: NewLexer(src).Lex()}
	for p.peek().Type != TokenEOF {
		item, err := p.item()
		if err != nil {
			p.recover(err)
			continue
		}
		if item != nil {
			p.items = append(p.items, item)
		}
	}
	return p.items
}

// syntaxError marks the token where parsing failed
type syntaxError struct {
	at       Token
	expected string
}

func (e *syntaxError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.at.Span.Start, e.expected, e.at)
}

type parser struct {
	tokens []Token
	pos    int
	items  []query.Item
}

func (p *parser) peek() Token { return p.tokens[p.pos] }

func (p *parser) next() Token {
	t := p.tokens[p.pos]
	if t.Type != TokenEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(typ TokenType, what string) (Token, error) {
	t := p.peek()
	if t.Type != typ {
		return t, &syntaxError{at: t, expected: what}
	}
	return p.next(), nil
}

func (p *parser) expectKeyword(kw string) (Token, error) {
	t := p.peek()
	if !t.is(kw) {
		return t, &syntaxError{at: t, expected: strconv.Quote(kw)}
	}
	return p.next(), nil
}

func (p *parser) integer() (int64, Token, error) {
	t, err := p.expect(TokenInteger, "integer")
	if err != nil {
		return 0, t, err
	}
	n, err := strconv.ParseInt(t.Value, 10, 64)
	if err != nil {
		return 0, t, &syntaxError{at: t, expected: "integer"}
	}
	return n, t, nil
}

// recover skips to just past the next '.' and records a diagnostic
// covering the skipped text
func (p *parser) recover(err error) {
	var se *syntaxError
	if !errors.As(err, &se) {
		panic(err)
	}
	span := se.at.Span
	for {
		t := p.peek()
		if t.Type == TokenEOF {
			break
		}
		p.next()
		span.End = t.Span.End
		if t.Type == TokenDot {
			break
		}
	}
	p.items = append(p.items, query.Errorf(span, "Syntax error"))
}

func (p *parser) item() (query.Item, error) {
	t := p.peek()
	switch {
	case t.is("import"):
		return nil, p.importDecl()
	case t.is("decide"):
		return p.decision()
	case t.is("constrain"):
		return p.constraint()
	case t.Type == TokenSymbol:
		return p.rule()
	default:
		return nil, &syntaxError{at: t, expected: "rule, decision, constraint or import"}
	}
}

// importDecl parses import A.B.(C, D)
func (p *parser) importDecl() error {
	p.next()
	if _, err := p.expect(TokenSymbol, "module name"); err != nil {
		return err
	}
	for {
		if _, err := p.expect(TokenDot, "'.'"); err != nil {
			return err
		}
		if p.peek().Type == TokenLeftParen {
			break
		}
		if _, err := p.expect(TokenSymbol, "module name"); err != nil {
			return err
		}
	}
	p.next()
	for {
		if _, err := p.expect(TokenSymbol, "imported name"); err != nil {
			return err
		}
		if p.peek().Type != TokenComma {
			break
		}
		p.next()
	}
	_, err := p.expect(TokenRightParen, "')'")
	return err
}

func (p *parser) rule() (*query.Rule, error) {
	head, err := p.atom()
	if err != nil {
		return nil, err
	}
	r := &query.Rule{Head: head}
	if p.peek().is("if") {
		p.next()
		if r.Body, err = p.atoms(); err != nil {
			return nil, err
		}
	}
	dot, err := p.expect(TokenDot, "'.'")
	if err != nil {
		return nil, err
	}
	r.Span = query.Span{Start: head.Span.Start, End: dot.Span.End}
	return r, nil
}

func (p *parser) decision() (*query.Decision, error) {
	kw := p.next()
	r, err := p.rule()
	if err != nil {
		return nil, err
	}
	r.Span.Start = kw.Span.Start
	return &query.Decision{Rule: *r}, nil
}

func (p *parser) constraint() (*query.Constraint, error) {
	kw := p.next()
	c := &query.Constraint{}

	if p.peek().is("soft") {
		p.next()
		if _, err := p.expect(TokenLeftParen, "'('"); err != nil {
			return nil, err
		}
		n, _, err := p.integer()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRightParen, "')'"); err != nil {
			return nil, err
		}
		c.Soft = &n
	}

	if p.peek().Type == TokenLeftParen {
		p.next()
		for {
			t := p.next()
			switch t.Type {
			case TokenVariable:
				c.Captures = append(c.Captures, query.Var(t.Value, t.Span))
			case TokenSymbol:
				c.Captures = append(c.Captures, query.Lit(datalog.Symbol(t.Value), t.Span))
			default:
				return nil, &syntaxError{at: t, expected: "capture"}
			}
			if p.peek().Type != TokenComma {
				break
			}
			p.next()
		}
		if _, err := p.expect(TokenRightParen, "')'"); err != nil {
			return nil, err
		}
	}

	if err := p.constraintKind(c); err != nil {
		return nil, err
	}

	body, err := p.atoms()
	if err != nil {
		return nil, err
	}
	c.Body = body
	dot, err := p.expect(TokenDot, "'.'")
	if err != nil {
		return nil, err
	}
	c.Span = query.Span{Start: kw.Span.Start, End: dot.Span.End}
	return c, nil
}

// constraintKind parses uniform | cardinality to (only | at most | at least) N
func (p *parser) constraintKind(c *query.Constraint) error {
	t := p.peek()
	if t.is("uniform") {
		p.next()
		c.Kind = query.Uniform
		c.KindSpan = t.Span
		return nil
	}
	if !t.is("cardinality") {
		return &syntaxError{at: t, expected: "constraint kind"}
	}
	p.next()
	if _, err := p.expectKeyword("to"); err != nil {
		return err
	}
	switch q := p.peek(); {
	case q.is("only"):
		p.next()
		c.Kind = query.CardinalityOnly
	case q.is("at"):
		p.next()
		switch b := p.peek(); {
		case b.is("most"):
			c.Kind = query.CardinalityAtMost
		case b.is("least"):
			c.Kind = query.CardinalityAtLeast
		default:
			return &syntaxError{at: b, expected: `"most" or "least"`}
		}
		p.next()
	default:
		return &syntaxError{at: q, expected: `"only" or "at"`}
	}
	n, last, err := p.integer()
	if err != nil {
		return err
	}
	c.Count = n
	c.KindSpan = query.Span{Start: t.Span.Start, End: last.Span.End}
	return nil
}

func (p *parser) atoms() ([]query.Atom, error) {
	var out []query.Atom
	for {
		a, err := p.atom()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
		if p.peek().Type != TokenComma {
			return out, nil
		}
		p.next()
	}
}

func (p *parser) atom() (query.Atom, error) {
	rel, err := p.expect(TokenSymbol, "relation name")
	if err != nil {
		return query.Atom{}, err
	}
	pat, err := p.pattern()
	if err != nil {
		return query.Atom{}, err
	}
	return query.Atom{
		Span:         query.Span{Start: rel.Span.Start, End: pat.Span.End},
		Relation:     rel.Value,
		RelationSpan: rel.Span,
		Pattern:      pat,
	}, nil
}

// pattern parses a term or a parenthesized list of patterns. A
// parenthesized list is always a tuple, even with one element.
func (p *parser) pattern() (query.Pattern, error) {
	t := p.peek()
	switch t.Type {
	case TokenVariable:
		p.next()
		return query.Leaf(query.Var(t.Value, t.Span)), nil
	case TokenSymbol:
		p.next()
		return query.Leaf(query.Lit(datalog.Symbol(t.Value), t.Span)), nil
	case TokenInteger:
		n, _, err := p.integer()
		if err != nil {
			return query.Pattern{}, err
		}
		return query.Leaf(query.Lit(datalog.Integer(n), t.Span)), nil
	case TokenLeftParen:
		p.next()
		var elems []query.Pattern
		for {
			e, err := p.pattern()
			if err != nil {
				return query.Pattern{}, err
			}
			elems = append(elems, e)
			if p.peek().Type != TokenComma {
				break
			}
			p.next()
		}
		end, err := p.expect(TokenRightParen, "')'")
		if err != nil {
			return query.Pattern{}, err
		}
		return query.TuplePattern(query.Span{Start: t.Span.Start, End: end.Span.End}, elems...), nil
	default:
		return query.Pattern{}, &syntaxError{at: t, expected: "pattern"}
	}
}
