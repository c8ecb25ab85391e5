package infer

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wbrown/janus-live/datalog/annotations"
	"github.com/wbrown/janus-live/datalog/harness"
	"github.com/wbrown/janus-live/datalog/query"
	"github.com/wbrown/janus-live/datalog/zset"
)

// ErrSessionClosed is returned by Apply once the session has stopped
var ErrSessionClosed = errors.New("infer: session closed")

// Options configures an inference session
type Options struct {
	// Workers is the number of lanes. Defaults to runtime.NumCPU().
	Workers     int
	Logger      *zap.Logger
	Metrics     *harness.Metrics
	Annotations *annotations.Collector
}

// Session runs incremental inference over a set of documents and keeps
// the current diagnostics and hints of each
type Session struct {
	inner *harness.Session[Edit, Outcome]

	mu    sync.Mutex
	state map[string]*zset.ZSet[Outcome]
}

// NewSession starts inference lanes
func NewSession(ctx context.Context, opts Options) (*Session, error) {
	s := &Session{state: make(map[string]*zset.ZSet[Outcome])}
	hopts := harness.Options{
		Workers:     opts.Workers,
		Logger:      opts.Logger,
		Metrics:     opts.Metrics,
		Annotations: opts.Annotations,
	}
	inner, err := harness.NewSession(ctx, hopts, NewBuilder(opts.Annotations), s.absorb)
	if err != nil {
		return nil, err
	}
	s.inner = inner
	return s, nil
}

// Apply submits edits as one step and returns what changed
func (s *Session) Apply(ctx context.Context, edits ...Edit) ([]Outcome, error) {
	step, err := s.inner.Apply(ctx, edits...)
	if errors.Is(err, harness.ErrClosed) {
		return nil, ErrSessionClosed
	}
	if err != nil {
		return nil, err
	}
	out := step.Results
	slices.SortFunc(out, compareOutcomes)
	return out, nil
}

func (s *Session) absorb(step harness.Step[Outcome]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range step.Results {
		doc := s.state[o.Context]
		if doc == nil {
			doc = zset.New[Outcome]()
			s.state[o.Context] = doc
		}
		doc.Update(o, o.Diff)
		if doc.IsEmpty() {
			delete(s.state, o.Context)
		}
	}
}

func (s *Session) current(context string) []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.state[context]
	if doc == nil {
		return nil
	}
	out := doc.Positive()
	slices.SortFunc(out, compareOutcomes)
	return out
}

// Diagnostics returns the current diagnostics of a document in source order
func (s *Session) Diagnostics(context string) []*query.Diagnostic {
	var out []*query.Diagnostic
	for _, o := range s.current(context) {
		if o.Diagnostic != nil {
			out = append(out, o.Diagnostic)
		}
	}
	return out
}

// Hints returns the current inlay hints of a document in source order
func (s *Session) Hints(context string) []query.InlayHint {
	var out []query.InlayHint
	for _, o := range s.current(context) {
		if o.Hint != nil {
			out = append(out, *o.Hint)
		}
	}
	return out
}

// Contexts returns every document with at least one outcome
func (s *Session) Contexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.state))
	for c := range s.state {
		out = append(out, c)
	}
	slices.SortFunc(out, strings.Compare)
	return out
}

// Close stops every lane
func (s *Session) Close() error { return s.inner.Close() }
