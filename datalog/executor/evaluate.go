package executor

import (
	"fmt"

	"github.com/wbrown/janus-live/datalog"
	"github.com/wbrown/janus-live/datalog/fixpoint"
	"github.com/wbrown/janus-live/datalog/graph"
)

// nodeTuple is a tuple produced by a node
type nodeTuple struct {
	node  graph.Key
	tuple datalog.Tuple
}

func (nt nodeTuple) Key() string { return string(routeKey(nt.node, nt.tuple)) }

// Evaluate computes the contents of every relation reachable from facts
// through nodes, from scratch and in the calling goroutine. Nodes that
// fail validation are skipped. The result maps each non-empty relation to
// its sorted tuples.
//
// Evaluate shares no state with Session and serves as the reference the
// incremental evaluator is checked against.
func Evaluate(nodes []graph.Node, facts []datalog.Fact, maxRounds int) (map[datalog.ResourceID][]datalog.Tuple, error) {
	g := graph.New()
	for _, n := range nodes {
		g.Apply(n, 1)
	}
	valid := make(map[graph.Key]bool, g.Len())
	for k, n := range g.Nodes() {
		valid[k] = g.Validate(n) == nil
	}

	outputs := fixpoint.NewVariable[nodeTuple]("outputs")
	relations := fixpoint.NewVariable[datalog.Fact]("relations")
	joins := make(map[graph.Key]*arrangement)
	for _, f := range facts {
		relations.Insert(f)
	}

	_, err := fixpoint.Iterate(maxRounds, func(int) (bool, error) {
		moreOutputs := outputs.Advance()
		moreRelations := relations.Advance()
		if !moreOutputs && !moreRelations {
			return false, nil
		}

		for _, f := range relations.Recent() {
			for _, k := range g.Loaders(f.Resource) {
				if valid[k] {
					outputs.Insert(nodeTuple{node: k, tuple: f.Tuple})
				}
			}
		}

		for _, nt := range outputs.Recent() {
			for _, c := range g.Consumers(nt.node) {
				if !valid[c] {
					continue
				}
				n, _ := g.Get(c)
				switch n := n.(type) {
				case graph.Project:
					if p, ok := nt.tuple.Project(n.Map); ok {
						outputs.Insert(nodeTuple{node: c, tuple: p})
					}
				case graph.Store:
					if p, ok := nt.tuple.Project(n.Map); ok {
						relations.Insert(datalog.Fact{Resource: n.Dst, Tuple: p})
					}
				case graph.Join:
					if len(nt.tuple) < n.Num {
						continue
					}
					arr := joins[c]
					if arr == nil {
						arr = newArrangement()
						joins[c] = arr
					}
					prefix, trail := nt.tuple[:n.Num:n.Num], nt.tuple[n.Num:]
					for _, s := range sidesOf(n, nt.node) {
						joined, _ := arr.insert(s, prefix, trail)
						for _, t := range joined {
							outputs.Insert(nodeTuple{node: c, tuple: t})
						}
					}
				}
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	result := make(map[datalog.ResourceID][]datalog.Tuple)
	for _, f := range relations.All() {
		result[f.Resource] = append(result[f.Resource], f.Tuple)
	}
	for _, tuples := range result {
		datalog.SortTuples(tuples)
	}
	return result, nil
}

// sidesOf returns the join inputs fed by src
func sidesOf(j graph.Join, src graph.Key) []joinSide {
	var sides []joinSide
	if j.Lhs == src {
		sides = append(sides, leftSide)
	}
	if j.Rhs == src {
		sides = append(sides, rightSide)
	}
	return sides
}
