package graph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/wbrown/janus-live/datalog"
)

// ErrDangling is returned by Validate when a node reads a key that is not
// present in the graph
var ErrDangling = errors.New("graph: dangling node reference")

// ErrMalformed is returned by Validate for negative Num or map indices
var ErrMalformed = errors.New("graph: malformed node")

// Graph is an arena of nodes keyed by structural identity.
//
// Every node carries a signed reference count, so two rules that compile to
// the same sub-plan share one node and removing one rule keeps it alive.
// Nodes are present while their count is positive.
type Graph struct {
	nodes     map[Key]Node
	refs      map[Key]int64
	consumers map[Key]map[Key]struct{}
	loaders   map[datalog.ResourceID]map[Key]struct{}
}

// New creates an empty graph
func New() *Graph {
	return &Graph{
		nodes:     make(map[Key]Node),
		refs:      make(map[Key]int64),
		consumers: make(map[Key]map[Key]struct{}),
		loaders:   make(map[datalog.ResourceID]map[Key]struct{}),
	}
}

// Apply adjusts the reference count of n by diff. It reports whether the
// node became present (added) or stopped being present (removed).
func (g *Graph) Apply(n Node, diff int64) (added, removed bool) {
	key := n.Key()
	before := g.refs[key]
	after := before + diff
	if after == 0 {
		delete(g.refs, key)
	} else {
		g.refs[key] = after
	}

	switch {
	case before <= 0 && after > 0:
		g.link(key, n)
		return true, false
	case before > 0 && after <= 0:
		g.unlink(key, g.nodes[key])
		return false, true
	}
	return false, false
}

func (g *Graph) link(key Key, n Node) {
	g.nodes[key] = n
	for _, in := range n.Inputs() {
		set, ok := g.consumers[in]
		if !ok {
			set = make(map[Key]struct{})
			g.consumers[in] = set
		}
		set[key] = struct{}{}
	}
	if l, ok := n.(Load); ok {
		set, ok := g.loaders[l.Resource]
		if !ok {
			set = make(map[Key]struct{})
			g.loaders[l.Resource] = set
		}
		set[key] = struct{}{}
	}
}

func (g *Graph) unlink(key Key, n Node) {
	delete(g.nodes, key)
	for _, in := range n.Inputs() {
		if set, ok := g.consumers[in]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(g.consumers, in)
			}
		}
	}
	if l, ok := n.(Load); ok {
		if set, ok := g.loaders[l.Resource]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(g.loaders, l.Resource)
			}
		}
	}
}

// Get returns the node stored under key
func (g *Graph) Get(key Key) (Node, bool) {
	n, ok := g.nodes[key]
	return n, ok
}

// Len returns the number of present nodes
func (g *Graph) Len() int { return len(g.nodes) }

// Refs returns the reference count of key
func (g *Graph) Refs(key Key) int64 { return g.refs[key] }

// Keys returns all present node keys in ascending order
func (g *Graph) Keys() []Key {
	keys := make([]Key, 0, len(g.nodes))
	for k := range g.nodes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Consumers returns the present nodes that read key, in ascending key order
func (g *Graph) Consumers(key Key) []Key {
	return sortedKeys(g.consumers[key])
}

// Loaders returns the Load nodes reading resource, in ascending key order
func (g *Graph) Loaders(resource datalog.ResourceID) []Key {
	return sortedKeys(g.loaders[resource])
}

func sortedKeys(set map[Key]struct{}) []Key {
	if len(set) == 0 {
		return nil
	}
	keys := make([]Key, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Validate checks that every input of n is present and that its Num and
// map indices are non-negative. Invalid nodes are skipped by evaluation.
func (g *Graph) Validate(n Node) error {
	for _, in := range n.Inputs() {
		if _, ok := g.nodes[in]; !ok {
			return fmt.Errorf("%s reads %s: %w", n, in, ErrDangling)
		}
	}
	switch n := n.(type) {
	case Join:
		if n.Num < 0 {
			return fmt.Errorf("%s: negative join width: %w", n, ErrMalformed)
		}
	case Project:
		if slices.ContainsFunc(n.Map, func(i int) bool { return i < 0 }) {
			return fmt.Errorf("%s: negative index: %w", n, ErrMalformed)
		}
	case Store:
		if slices.ContainsFunc(n.Map, func(i int) bool { return i < 0 }) {
			return fmt.Errorf("%s: negative index: %w", n, ErrMalformed)
		}
	}
	return nil
}

// Nodes returns a snapshot of every present node keyed by identity
func (g *Graph) Nodes() map[Key]Node {
	out := make(map[Key]Node, len(g.nodes))
	for k, n := range g.nodes {
		out[k] = n
	}
	return out
}
