// Package planner lowers rules into evaluator node graphs.
//
// A rule's body atoms are loaded, filtered against literal relations for
// every constant position, and joined left to right on the variables they
// share. The head becomes a Store projecting the bound columns. Ground
// body-less rules become facts.
package planner

import (
	"fmt"
	"slices"
	"strings"

	"github.com/wbrown/janus-live/datalog"
	"github.com/wbrown/janus-live/datalog/executor"
	"github.com/wbrown/janus-live/datalog/graph"
	"github.com/wbrown/janus-live/datalog/infer"
	"github.com/wbrown/janus-live/datalog/query"
)

// literalPrefix marks the relations holding a single constant
const literalPrefix = "#lit:"

// Literal returns the relation containing exactly the tuple (v)
func Literal(v datalog.Value) datalog.ResourceID {
	return datalog.NewResourceID("", literalPrefix+v.GoString())
}

// IsLiteral reports whether r is a relation created by Literal
func IsLiteral(r datalog.ResourceID) bool {
	return r.Context() == "" && strings.HasPrefix(r.Name(), literalPrefix)
}

// Plan is the evaluator input for one item: nodes in dependency order and
// the facts they rely on. Nodes and facts are deduplicated.
type Plan struct {
	Nodes []graph.Node
	Facts []datalog.Fact
}

// Edits returns the plan as evaluator edits with the given sign
func (p *Plan) Edits(diff int64) []executor.Edit {
	out := make([]executor.Edit, 0, len(p.Nodes)+len(p.Facts))
	for _, n := range p.Nodes {
		out = append(out, executor.Edit{Node: n, Diff: diff})
	}
	for _, f := range p.Facts {
		out = append(out, executor.Edit{Fact: f, Diff: diff})
	}
	return out
}

// Empty reports whether the plan changes nothing
func (p *Plan) Empty() bool { return len(p.Nodes) == 0 && len(p.Facts) == 0 }

func (p *Plan) String() string {
	var sb strings.Builder
	for _, n := range p.Nodes {
		fmt.Fprintf(&sb, "%s %s\n", n.Key(), n)
	}
	for _, f := range p.Facts {
		fmt.Fprintf(&sb, "fact %s\n", f)
	}
	return sb.String()
}

func (p *Plan) node(n graph.Node) graph.Key {
	k := n.Key()
	if !slices.ContainsFunc(p.Nodes, func(m graph.Node) bool { return m.Key() == k }) {
		p.Nodes = append(p.Nodes, n)
	}
	return k
}

func (p *Plan) fact(f datalog.Fact) {
	k := f.Key()
	if !slices.ContainsFunc(p.Facts, func(g datalog.Fact) bool { return g.Key() == k }) {
		p.Facts = append(p.Facts, f)
	}
}

// flatten returns the leaves of a pattern; relation tuples are the
// flattened pattern
func flatten(p query.Pattern) []query.Term {
	return p.Terms()
}

// Compile lowers one item in context. Rules compile to nodes, ground facts
// to a fact. Decisions, constraints and diagnostics compile to nothing, as
// do rules with scoping errors. The second result reports whether the
// item was compiled.
func Compile(context string, item query.Item) (*Plan, bool) {
	r, ok := item.(*query.Rule)
	if !ok || len(infer.IndexVariables(r)) > 0 {
		return &Plan{}, false
	}

	plan := &Plan{}
	head := flatten(r.Head.Pattern)
	if r.IsFact() {
		tuple := make(datalog.Tuple, len(head))
		for i, t := range head {
			tuple[i] = t.Value
		}
		plan.fact(datalog.Fact{Resource: r.Head.Resource(context), Tuple: tuple})
		return plan, true
	}

	c := &compiler{plan: plan}
	var acc relation
	for i, a := range r.Body {
		rel := c.atom(a.Resource(context), flatten(a.Pattern))
		if i == 0 {
			acc = rel
			continue
		}
		acc = c.join(acc, rel)
	}

	// Head constants are appended as extra columns
	for _, t := range head {
		if !t.IsVariable() && acc.index(constColumn(t.Value)) < 0 {
			acc = c.crossLiteral(acc, t.Value)
		}
	}
	mapping := make([]int, len(head))
	for i, t := range head {
		name := t.Variable
		if !t.IsVariable() {
			name = constColumn(t.Value)
		}
		mapping[i] = acc.index(name)
	}
	plan.node(graph.NewStore(acc.key, r.Head.Resource(context), mapping...))
	return plan, true
}

// relation is an intermediate node and the meaning of its columns: a
// variable name, a constant column, or "" for a dead column
type relation struct {
	key  graph.Key
	cols []string
}

func (r relation) index(name string) int {
	return slices.Index(r.cols, name)
}

func constColumn(v datalog.Value) string { return "#" + v.GoString() }

type compiler struct {
	plan *Plan
}

// reorder projects a relation of width columns through mapping, or
// returns it unchanged when mapping is the identity
func (c *compiler) reorder(key graph.Key, width int, mapping []int) graph.Key {
	identity := len(mapping) == width
	for i, m := range mapping {
		identity = identity && m == i
	}
	if identity {
		return key
	}
	return c.plan.node(graph.NewProject(key, mapping...))
}

func (c *compiler) project(r relation, mapping []int) relation {
	cols := make([]string, len(mapping))
	for i, m := range mapping {
		cols[i] = r.cols[m]
	}
	return relation{key: c.reorder(r.key, len(r.cols), mapping), cols: cols}
}

func (c *compiler) literal(v datalog.Value) graph.Key {
	lit := Literal(v)
	c.plan.fact(datalog.Fact{Resource: lit, Tuple: datalog.Tuple{v}})
	return c.plan.node(graph.NewLoad(lit))
}

// atom loads a relation and keeps only tuples matching its constants.
// The result has one column per variable, in pattern order.
func (c *compiler) atom(resource datalog.ResourceID, terms []query.Term) relation {
	type column struct {
		name  string
		value *datalog.Value // constant not yet filtered
	}
	cols := make([]column, len(terms))
	for i, t := range terms {
		if t.IsVariable() {
			cols[i].name = t.Variable
		} else {
			cols[i].value = &terms[i].Value
		}
	}
	dead := func(col column) bool { return col.name == "" && col.value == nil }

	key := c.plan.node(graph.NewLoad(resource))
	for {
		i := slices.IndexFunc(cols, func(col column) bool { return col.value != nil })
		if i < 0 {
			break
		}
		// Bring the constant to the front and join it with its literal
		mapping := []int{i}
		next := []column{{}}
		for j, col := range cols {
			if j != i && !dead(col) {
				mapping = append(mapping, j)
				next = append(next, col)
			}
		}
		front := c.reorder(key, len(cols), mapping)
		key = c.plan.node(graph.NewJoin(front, c.literal(*cols[i].value), 1))
		cols = next
	}

	rel := relation{key: key, cols: make([]string, len(cols))}
	var live []int
	for j, col := range cols {
		rel.cols[j] = col.name
		if !dead(col) {
			live = append(live, j)
		}
	}
	return c.project(rel, live)
}

// join joins two relations on their shared variables. The result holds
// the shared columns, then the rest of l, then the rest of r.
func (c *compiler) join(l, r relation) relation {
	var shared []string
	for _, name := range l.cols {
		if name != "" && r.index(name) >= 0 {
			shared = append(shared, name)
		}
	}
	lmap, rmap := prefixed(l, shared), prefixed(r, shared)
	lp, rp := c.project(l, lmap), c.project(r, rmap)

	cols := slices.Clone(lp.cols)
	cols = append(cols, rp.cols[len(shared):]...)
	return relation{key: c.plan.node(graph.NewJoin(lp.key, rp.key, len(shared))), cols: cols}
}

// crossLiteral appends v as a constant column
func (c *compiler) crossLiteral(r relation, v datalog.Value) relation {
	cols := append(slices.Clone(r.cols), constColumn(v))
	return relation{key: c.plan.node(graph.NewJoin(r.key, c.literal(v), 0)), cols: cols}
}

// prefixed maps r's columns so that shared come first in order
func prefixed(r relation, shared []string) []int {
	mapping := make([]int, 0, len(r.cols))
	for _, name := range shared {
		mapping = append(mapping, r.index(name))
	}
	for j, name := range r.cols {
		if name != "" && !slices.Contains(shared, name) {
			mapping = append(mapping, j)
		}
	}
	return mapping
}
