package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Item is anything that can appear at the top level of a source document
type Item interface {
	// Key identifies the item including its source position. Two items
	// with the same key are the same item.
	Key() string
	ItemSpan() Span
	String() string
	item() // Private marker method
}

// Ensure our types implement Item
func (*Rule) item()       {}
func (*Decision) item()   {}
func (*Constraint) item() {}
func (*Diagnostic) item() {}

// Rule derives Head whenever every atom in Body holds.
// A rule with an empty body is a fact.
type Rule struct {
	Span Span
	Head Atom
	Body []Atom
}

func (r *Rule) ItemSpan() Span { return r.Span }

// IsFact reports whether the rule has no body
func (r *Rule) IsFact() bool { return len(r.Body) == 0 }

func (r *Rule) String() string {
	if r.IsFact() {
		return r.Head.String() + "."
	}
	return r.Head.String() + " if " + formatBody(r.Body) + "."
}

func (r *Rule) Key() string {
	var k keyWriter
	k.tag("rule")
	k.span(r.Span)
	k.rule(r)
	return k.String()
}

// Decision is a rule whose head is chosen rather than derived. It is typed
// like a rule but does not contribute facts.
type Decision struct {
	Rule
}

func (d *Decision) String() string { return "decide " + d.Rule.String() }

func (d *Decision) Key() string {
	var k keyWriter
	k.tag("decide")
	k.span(d.Span)
	k.rule(&d.Rule)
	return k.String()
}

// ConstraintKind selects how a constraint restricts its body's matches
type ConstraintKind int

const (
	Uniform ConstraintKind = iota
	CardinalityOnly
	CardinalityAtMost
	CardinalityAtLeast
)

func (k ConstraintKind) String() string {
	switch k {
	case Uniform:
		return "uniform"
	case CardinalityOnly:
		return "cardinality to only"
	case CardinalityAtMost:
		return "cardinality to at most"
	case CardinalityAtLeast:
		return "cardinality to at least"
	default:
		return fmt.Sprintf("ConstraintKind(%d)", int(k))
	}
}

// Constraint restricts the solutions of its body
type Constraint struct {
	Span     Span
	Soft     *int64 // Penalty weight; nil for hard constraints
	Captures []Term
	Kind     ConstraintKind
	KindSpan Span
	Count    int64 // Cardinality bound, unused for Uniform
	Body     []Atom
}

func (c *Constraint) ItemSpan() Span { return c.Span }

func (c *Constraint) String() string {
	var sb strings.Builder
	sb.WriteString("constrain ")
	if c.Soft != nil {
		fmt.Fprintf(&sb, "soft(%d) ", *c.Soft)
	}
	if len(c.Captures) > 0 {
		parts := make([]string, len(c.Captures))
		for i, t := range c.Captures {
			parts[i] = t.String()
		}
		sb.WriteString("(" + strings.Join(parts, ", ") + ") ")
	}
	sb.WriteString(c.Kind.String())
	if c.Kind != Uniform {
		sb.WriteString(" " + strconv.FormatInt(c.Count, 10))
	}
	sb.WriteString(" " + formatBody(c.Body) + ".")
	return sb.String()
}

func (c *Constraint) Key() string {
	var k keyWriter
	k.tag("constrain")
	k.span(c.Span)
	if c.Soft != nil {
		k.tag("soft" + strconv.FormatInt(*c.Soft, 10))
	}
	for _, t := range c.Captures {
		k.term(t)
	}
	k.tag(c.Kind.String())
	k.span(c.KindSpan)
	k.tag(strconv.FormatInt(c.Count, 10))
	for _, a := range c.Body {
		k.atom(a)
	}
	return k.String()
}

// keyWriter builds unambiguous item keys: every field is length-prefixed
type keyWriter struct {
	strings.Builder
}

func (k *keyWriter) tag(s string) {
	k.WriteString(strconv.Itoa(len(s)))
	k.WriteByte(':')
	k.WriteString(s)
}

func (k *keyWriter) span(s Span) {
	fmt.Fprintf(k, "[%d,%d,%d,%d]", s.Start.Line, s.Start.Column, s.End.Line, s.End.Column)
}

func (k *keyWriter) term(t Term) {
	k.span(t.Span)
	if t.IsVariable() {
		k.tag("v" + t.Variable)
		return
	}
	k.tag(t.Value.Type().String()[:1] + t.Value.String())
}

func (k *keyWriter) pattern(p Pattern) {
	if !p.IsTuple {
		k.term(p.Term)
		return
	}
	k.span(p.Span)
	k.WriteByte('(')
	for _, e := range p.Elems {
		k.pattern(e)
	}
	k.WriteByte(')')
}

func (k *keyWriter) atom(a Atom) {
	k.span(a.Span)
	k.span(a.RelationSpan)
	k.tag(a.Relation)
	k.pattern(a.Pattern)
}

func (k *keyWriter) rule(r *Rule) {
	k.atom(r.Head)
	k.WriteByte('|')
	for _, a := range r.Body {
		k.atom(a)
	}
}
