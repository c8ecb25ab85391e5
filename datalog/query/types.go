// Package query defines the items of the rule language: rules, decisions,
// constraints and the diagnostics attached to source text.
package query

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-live/datalog"
)

// Point is a zero-based line/column position in a source document
type Point struct {
	Line   int
	Column int
}

func (p Point) String() string {
	return fmt.Sprintf("%d:%d", p.Line+1, p.Column+1)
}

// Before reports whether p comes strictly before other
func (p Point) Before(other Point) bool {
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Column < other.Column
}

// Span is a half-open range of source text
type Span struct {
	Start Point
	End   Point
}

// NewSpan builds a span from line/column pairs
func NewSpan(startLine, startCol, endLine, endCol int) Span {
	return Span{Start: Point{startLine, startCol}, End: Point{endLine, endCol}}
}

func (s Span) String() string {
	return s.Start.String() + "-" + s.End.String()
}

// Term is a pattern leaf: a variable or a literal value
type Term struct {
	Span     Span
	Variable string // Empty for literals
	Value    datalog.Value
}

// Var creates a variable term
func Var(name string, span Span) Term { return Term{Span: span, Variable: name} }

// Lit creates a literal term
func Lit(v datalog.Value, span Span) Term { return Term{Span: span, Value: v} }

// IsVariable reports whether t names a variable
func (t Term) IsVariable() bool { return t.Variable != "" }

func (t Term) String() string {
	if t.IsVariable() {
		return t.Variable
	}
	return t.Value.String()
}

// Pattern is either a single term or a tuple of nested patterns
type Pattern struct {
	Span    Span
	IsTuple bool
	Term    Term      // Set when !IsTuple
	Elems   []Pattern // Set when IsTuple
}

// Leaf wraps a term as a pattern
func Leaf(t Term) Pattern { return Pattern{Span: t.Span, Term: t} }

// TuplePattern builds a tuple pattern
func TuplePattern(span Span, elems ...Pattern) Pattern {
	return Pattern{Span: span, IsTuple: true, Elems: elems}
}

// Terms returns the leaves of p in left-to-right order
func (p Pattern) Terms() []Term {
	var out []Term
	p.walk(func(t Term) { out = append(out, t) })
	return out
}

func (p Pattern) walk(fn func(Term)) {
	if !p.IsTuple {
		fn(p.Term)
		return
	}
	for _, e := range p.Elems {
		e.walk(fn)
	}
}

// Variables calls fn for every variable occurrence in order
func (p Pattern) Variables(fn func(name string, span Span)) {
	p.walk(func(t Term) {
		if t.IsVariable() {
			fn(t.Variable, t.Span)
		}
	})
}

// IsGround reports whether p has no variables
func (p Pattern) IsGround() bool {
	ground := true
	p.Variables(func(string, Span) { ground = false })
	return ground
}

func (p Pattern) String() string {
	if !p.IsTuple {
		return p.Term.String()
	}
	parts := make([]string, len(p.Elems))
	for i, e := range p.Elems {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Atom applies a relation to a pattern: Edge(x, y)
type Atom struct {
	Span         Span
	Relation     string
	RelationSpan Span
	Pattern      Pattern
}

func (a Atom) String() string {
	if a.Pattern.IsTuple {
		return a.Relation + a.Pattern.String()
	}
	return a.Relation + " " + a.Pattern.String()
}

// Resource returns the identity of the atom's relation within context
func (a Atom) Resource(context string) datalog.ResourceID {
	return datalog.NewResourceID(context, a.Relation)
}

func formatBody(body []Atom) string {
	parts := make([]string, len(body))
	for i, a := range body {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}
