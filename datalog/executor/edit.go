package executor

import (
	"fmt"

	"github.com/wbrown/janus-live/datalog"
	"github.com/wbrown/janus-live/datalog/graph"
)

// Edit is one signed change to the evaluator's inputs: either a node of the
// graph or an external fact. Node is nil for fact edits.
type Edit struct {
	Node graph.Node
	Fact datalog.Fact
	Diff int64
}

// AddNode returns an edit inserting one reference to n
func AddNode(n graph.Node) Edit { return Edit{Node: n, Diff: 1} }

// RemoveNode returns an edit dropping one reference to n
func RemoveNode(n graph.Node) Edit { return Edit{Node: n, Diff: -1} }

// AddFact returns an edit inserting tuple into resource
func AddFact(resource datalog.ResourceID, tuple datalog.Tuple) Edit {
	return Edit{Fact: datalog.Fact{Resource: resource, Tuple: tuple}, Diff: 1}
}

// RemoveFact returns an edit retracting tuple from resource
func RemoveFact(resource datalog.ResourceID, tuple datalog.Tuple) Edit {
	return Edit{Fact: datalog.Fact{Resource: resource, Tuple: tuple}, Diff: -1}
}

// IsNode reports whether e changes the graph rather than a fact
func (e Edit) IsNode() bool { return e.Node != nil }

func (e Edit) String() string {
	if e.Node != nil {
		return fmt.Sprintf("%+d %s", e.Diff, e.Node)
	}
	return fmt.Sprintf("%+d %s", e.Diff, e.Fact)
}

// Change is a signed change to the visible contents of a relation
type Change struct {
	Resource datalog.ResourceID
	Tuple    datalog.Tuple
	Diff     int64
}

// Fact returns the fact the change applies to
func (c Change) Fact() datalog.Fact {
	return datalog.Fact{Resource: c.Resource, Tuple: c.Tuple}
}

// Key identifies the changed fact
func (c Change) Key() string { return c.Fact().Key() }

func (c Change) String() string {
	return fmt.Sprintf("%+d %s", c.Diff, c.Fact())
}

// Delta is the sorted set of changes produced by one step
type Delta []Change

// For returns the changes that apply to resource
func (d Delta) For(resource datalog.ResourceID) Delta {
	var out Delta
	for _, c := range d {
		if c.Resource == resource {
			out = append(out, c)
		}
	}
	return out
}

func compareChanges(a, b Change) int {
	if c := datalog.CompareFacts(a.Fact(), b.Fact()); c != 0 {
		return c
	}
	switch {
	case a.Diff < b.Diff:
		return -1
	case a.Diff > b.Diff:
		return 1
	}
	return 0
}
