package executor

import (
	"github.com/wbrown/janus-live/datalog"
)

type joinSide uint8

const (
	leftSide joinSide = iota
	rightSide
)

func (s joinSide) other() joinSide { return 1 - s }

// arrangement indexes both inputs of a join by their key prefix.
//
// Inserting into one side probes the other, so every (left, right) pair is
// produced by whichever of the two arrives second and never twice.
type arrangement struct {
	sides [2]map[string]*bucket
}

// bucket holds the trails seen for one prefix in arrival order
type bucket struct {
	seen   map[string]struct{}
	trails []datalog.Tuple
}

func newArrangement() *arrangement {
	return &arrangement{sides: [2]map[string]*bucket{
		make(map[string]*bucket),
		make(map[string]*bucket),
	}}
}

// insert records trail under prefix on side s and returns the joined tuples
// prefix ++ left trail ++ right trail it forms with the opposite side.
// The second result is false if the entry was already present.
func (a *arrangement) insert(s joinSide, prefix, trail datalog.Tuple) ([]datalog.Tuple, bool) {
	pk := prefix.Key()
	b := a.sides[s][pk]
	if b == nil {
		b = &bucket{seen: make(map[string]struct{})}
		a.sides[s][pk] = b
	}
	tk := trail.Key()
	if _, ok := b.seen[tk]; ok {
		return nil, false
	}
	b.seen[tk] = struct{}{}
	b.trails = append(b.trails, trail)

	opposite := a.sides[s.other()][pk]
	if opposite == nil {
		return nil, true
	}
	out := make([]datalog.Tuple, 0, len(opposite.trails))
	for _, ot := range opposite.trails {
		if s == leftSide {
			out = append(out, datalog.Concat(prefix, trail, ot))
		} else {
			out = append(out, datalog.Concat(prefix, ot, trail))
		}
	}
	return out, true
}

// size returns the number of entries on side s
func (a *arrangement) size(s joinSide) int {
	n := 0
	for _, b := range a.sides[s] {
		n += len(b.trails)
	}
	return n
}
