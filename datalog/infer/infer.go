// Package infer assigns a structural type to every relation and rule
// variable of a document. Types flow from ground facts through rule bodies
// into rule heads until nothing new resolves; every mismatch found on the
// way is reported as a diagnostic and never stops inference of unrelated
// relations.
package infer

import (
	"fmt"
	"slices"
	"strings"

	"github.com/wbrown/janus-live/datalog/fixpoint"
	"github.com/wbrown/janus-live/datalog/query"
)

// Result is the outcome of inferring one document
type Result struct {
	// Types holds the canonical type of each resolved relation
	Types map[string]query.Type
	// Diagnostics are deduplicated and in discovery order
	Diagnostics []*query.Diagnostic
	// Variables maps each rule's key to its variable types
	Variables map[string]map[string]query.Type
	// Hints annotate the first occurrence of every rule variable
	Hints []query.InlayHint
	// Rounds is the number of fixed point rounds run
	Rounds int
}

type diagResult[T any] = fixpoint.Result[T, *query.Diagnostic]

// proposal is a candidate type for a relation, located at the atom that
// implies it
type proposal struct {
	relation string
	typ      query.Type
	span     query.Span
}

func (p proposal) Key() string {
	return p.relation + "\x00" + p.span.String() + "\x00" + p.typ.Key()
}

func sameType(a, b proposal) bool { return a.typ.Equal(b.typ) }

// binding is a variable type implied by one occurrence
type binding struct {
	name string
	span query.Span
	typ  query.Type
}

func sameBinding(a, b binding) bool { return a.typ.Equal(b.typ) }

// ruleState tracks one rule through inference
type ruleState struct {
	rule     *query.Rule
	key      string
	vars     *fixpoint.Resolver[string, binding]
	proposed bool
}

type atomRef struct {
	rule *ruleState
	atom int
}

// Infer runs type inference over the items of one document.
// Decisions are typed like rules; constraints are not typed; diagnostic
// items are passed through.
func Infer(items []query.Item) (*Result, error) {
	diags := fixpoint.NewAggregate[*query.Diagnostic]()
	proposals := fixpoint.NewVariable[proposal]("proposed")
	var rules []*ruleState
	uses := make(map[string][]atomRef)

	for _, item := range items {
		var r *query.Rule
		switch it := item.(type) {
		case *query.Diagnostic:
			diags.Add(it)
			continue
		case *query.Rule:
			r = it
		case *query.Decision:
			r = &it.Rule
		default:
			continue
		}

		for _, d := range IndexVariables(r) {
			diags.Add(d)
		}
		state := &ruleState{
			rule: r,
			key:  item.Key(),
			vars: fixpoint.NewResolver[string, binding](sameBinding),
		}
		rules = append(rules, state)

		if r.IsFact() {
			if t, ok := query.TypeOf(r.Head.Pattern); ok {
				proposals.Insert(proposal{relation: r.Head.Relation, typ: t, span: r.Head.Span})
			}
			continue
		}
		for i, a := range r.Body {
			uses[a.Relation] = append(uses[a.Relation], atomRef{rule: state, atom: i})
		}
	}

	types := fixpoint.NewResolver[string, proposal](sameType)
	rounds, err := fixpoint.Iterate(0, func(int) (bool, error) {
		if !proposals.Advance() {
			return false, nil
		}

		// Resolve one canonical type per relation
		results := make([]diagResult[proposal], 0, len(proposals.Recent()))
		for _, p := range proposals.Recent() {
			res, report := types.Propose(p.relation, p)
			if !report {
				continue
			}
			if c, isErr := res.Diagnostic(); isErr {
				results = append(results, fixpoint.Err[proposal](mismatch(c.Canonical, c.Candidate)))
				continue
			}
			resolved, _ := res.Value()
			results = append(results, fixpoint.Ok[proposal, *query.Diagnostic](resolved.Value))
		}
		resolved := fixpoint.Split(results, diags)

		// Unify every use of a newly resolved relation and merge the
		// bindings into each rule's variable map
		var changed []*ruleState
		for _, p := range resolved {
			for _, use := range uses[p.relation] {
				atom := use.rule.rule.Body[use.atom]
				var unified []diagResult[binding]
				unify(atom.Pattern, p.typ, &unified)
				grew := false
				for _, b := range fixpoint.Split(unified, diags) {
					res, report := use.rule.vars.Propose(b.name, b)
					if !report {
						continue
					}
					if c, isErr := res.Diagnostic(); isErr {
						diags.Add(rebind(c.Canonical, c.Candidate))
						continue
					}
					grew = true
				}
				if grew && !slices.Contains(changed, use.rule) {
					changed = append(changed, use.rule)
				}
			}
		}

		// Heads whose variables are all bound propose their relation's type
		for _, rs := range changed {
			if rs.proposed {
				continue
			}
			t, ok := query.Substitute(rs.rule.Head.Pattern, func(name string) (query.Type, bool) {
				b, ok := rs.vars.Get(name)
				return b.typ, ok
			})
			if !ok {
				continue
			}
			rs.proposed = true
			proposals.Insert(proposal{relation: rs.rule.Head.Relation, typ: t, span: rs.rule.Head.Span})
		}
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("infer: %w", err)
	}

	result := &Result{
		Types:     make(map[string]query.Type, types.Len()),
		Variables: make(map[string]map[string]query.Type, len(rules)),
		Rounds:    rounds,
	}
	for _, name := range types.Keys() {
		p, _ := types.Get(name)
		result.Types[name] = p.typ
	}
	for _, rs := range rules {
		vars := make(map[string]query.Type, rs.vars.Len())
		for _, name := range rs.vars.Keys() {
			b, _ := rs.vars.Get(name)
			vars[name] = b.typ
		}
		result.Variables[rs.key] = vars
		result.Hints = append(result.Hints, hints(rs.rule, vars)...)
	}
	result.Diagnostics = diags.Items()
	return result, nil
}

func mismatch(canonical, candidate proposal) *query.Diagnostic {
	return query.Errorf(candidate.span, "Expected %s, got %s", canonical.typ, candidate.typ).
		WithLabel(canonical.span, fmt.Sprintf("%s first has type %s here", canonical.relation, canonical.typ))
}

func rebind(canonical, candidate binding) *query.Diagnostic {
	return query.Errorf(candidate.span, "Pattern expects %s but %q is %s", candidate.typ, candidate.name, canonical.typ).
		WithLabel(canonical.span, fmt.Sprintf("%q is bound to %s here", canonical.name, canonical.typ))
}

// IndexVariables checks variable scoping in a rule. Body atoms are visited
// before the head; a variable may appear only once per pattern, and a head
// variable must have appeared in the body.
func IndexVariables(r *query.Rule) []*query.Diagnostic {
	var diags []*query.Diagnostic
	scope := make(map[string]struct{})
	index := func(p query.Pattern, head bool) {
		local := make(map[string]struct{})
		p.Variables(func(name string, span query.Span) {
			if _, dup := local[name]; dup {
				diags = append(diags, query.Errorf(span, "Cannot rebind %q within same pattern", name))
			}
			local[name] = struct{}{}
			if _, known := scope[name]; known {
				return
			}
			scope[name] = struct{}{}
			if head {
				diags = append(diags, query.Errorf(span, "%q does not appear within body", name))
			}
		})
	}
	for _, a := range r.Body {
		index(a.Pattern, false)
	}
	index(r.Head.Pattern, true)
	return diags
}

// unify matches a pattern against a type, appending a binding for every
// variable leaf and a diagnostic for the first mismatch. It stops at the
// first mismatch and reports whether the whole pattern matched.
func unify(p query.Pattern, target query.Type, out *[]diagResult[binding]) bool {
	if p.IsTuple {
		if !target.IsTuple {
			*out = append(*out, fixpoint.Err[binding](
				query.Errorf(p.Span, "Expected tuple of arity %d, got %s", len(p.Elems), target)))
			return false
		}
		if len(p.Elems) != len(target.Elems) {
			*out = append(*out, fixpoint.Err[binding](
				query.Errorf(p.Span, "Expected tuple of arity %d, got tuple of arity %d", len(p.Elems), len(target.Elems))))
			return false
		}
		for i, e := range p.Elems {
			if !unify(e, target.Elems[i], out) {
				return false
			}
		}
		return true
	}

	if p.Term.IsVariable() {
		*out = append(*out, fixpoint.Ok[binding, *query.Diagnostic](binding{
			name: p.Term.Variable,
			span: p.Term.Span,
			typ:  target,
		}))
		return true
	}
	lit := query.PrimType(p.Term.Value.Type())
	if !lit.Equal(target) {
		*out = append(*out, fixpoint.Err[binding](
			query.Errorf(p.Term.Span, "Expected %s, got %s", lit, target)))
		return false
	}
	return true
}

// hints renders the type of each variable at its first occurrence, head
// first, ordered by variable name
func hints(r *query.Rule, vars map[string]query.Type) []query.InlayHint {
	first := make(map[string]query.Span)
	touch := func(name string, span query.Span) {
		if _, ok := first[name]; !ok {
			first[name] = span
		}
	}
	r.Head.Pattern.Variables(touch)
	for _, a := range r.Body {
		a.Pattern.Variables(touch)
	}

	names := make([]string, 0, len(first))
	for name := range first {
		names = append(names, name)
	}
	slices.SortFunc(names, strings.Compare)

	out := make([]query.InlayHint, len(names))
	for i, name := range names {
		contents := ": {unknown}"
		if t, ok := vars[name]; ok {
			contents = ": " + t.String()
		}
		end := first[name].End
		out[i] = query.InlayHint{Span: query.Span{Start: end, End: end}, Contents: contents}
	}
	return out
}
