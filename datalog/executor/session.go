package executor

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/wbrown/janus-live/datalog"
	"github.com/wbrown/janus-live/datalog/harness"
	"github.com/wbrown/janus-live/datalog/zset"
)

// ErrSessionClosed is returned by Apply after Close or after the
// evaluation stopped because a lane failed
var ErrSessionClosed = errors.New("executor: session closed")

// Session is a synchronous handle on a running evaluation. Each Apply is
// one logical time step; the returned delta is what that step changed.
// The session also materializes every relation from the deltas it has
// seen.
type Session struct {
	inner *harness.Session[Edit, Change]

	mu        sync.Mutex
	relations map[datalog.ResourceID]*zset.ZSet[datalog.Tuple]
}

// NewSession starts an evaluation with opts.Workers lanes
func NewSession(ctx context.Context, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	s := &Session{relations: make(map[datalog.ResourceID]*zset.ZSet[datalog.Tuple])}
	inner, err := harness.NewSession(ctx, opts.harness(), NewBuilder(opts), s.absorb)
	if err != nil {
		return nil, err
	}
	s.inner = inner
	return s, nil
}

// Apply submits edits as one batch and waits until every lane reached
// quiescence
func (s *Session) Apply(ctx context.Context, edits ...Edit) (Delta, error) {
	step, err := s.inner.Apply(ctx, edits...)
	if errors.Is(err, harness.ErrClosed) {
		return nil, ErrSessionClosed
	}
	if err != nil {
		return nil, err
	}
	delta := Delta(step.Results)
	slices.SortFunc(delta, compareChanges)
	return delta, nil
}

func (s *Session) absorb(step harness.Step[Change]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range step.Results {
		rel := s.relations[c.Resource]
		if rel == nil {
			rel = zset.New[datalog.Tuple]()
			s.relations[c.Resource] = rel
		}
		rel.Update(c.Tuple, c.Diff)
		if rel.IsEmpty() {
			delete(s.relations, c.Resource)
		}
	}
}

// Relation returns the visible tuples of resource in sorted order
func (s *Session) Relation(resource datalog.ResourceID) []datalog.Tuple {
	s.mu.Lock()
	defer s.mu.Unlock()
	rel := s.relations[resource]
	if rel == nil {
		return nil
	}
	tuples := rel.Positive()
	datalog.SortTuples(tuples)
	return tuples
}

// Relations returns every relation with at least one visible tuple
func (s *Session) Relations() []datalog.ResourceID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]datalog.ResourceID, 0, len(s.relations))
	for r := range s.relations {
		out = append(out, r)
	}
	slices.SortFunc(out, datalog.CompareResources)
	return out
}

// Time returns the logical time of the last completed step
func (s *Session) Time() harness.Time { return s.inner.Time() }

// Close stops the evaluation and waits for every lane to exit
func (s *Session) Close() error { return s.inner.Close() }
