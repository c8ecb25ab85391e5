package harness

import (
	"context"
	"sync"
)

// Session is a synchronous request/response handle on a running harness:
// every Apply is one logical time step and returns that step's results.
type Session[U, R any] struct {
	mu       sync.Mutex
	updates  chan []U
	steps    <-chan Step[R]
	cancel   context.CancelFunc
	observe  func(Step[R])
	inflight int
	closed   bool
	time     Time
}

// NewSession starts a harness with build. If observe is non-nil it sees
// every step in order, including steps whose Apply was abandoned.
func NewSession[U, R any](ctx context.Context, opts Options, build Builder[U, R], observe func(Step[R])) (*Session[U, R], error) {
	ctx, cancel := context.WithCancel(ctx)
	updates := make(chan []U)
	steps, err := Run(ctx, updates, opts, build)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Session[U, R]{
		updates: updates,
		steps:   steps,
		cancel:  cancel,
		observe: observe,
	}, nil
}

// Apply submits updates as one batch and waits until every lane reached
// quiescence. If ctx ends while waiting, the step still completes and is
// observed by the next call. ErrClosed means the harness has stopped.
func (s *Session[U, R]) Apply(ctx context.Context, updates ...U) (Step[R], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Step[R]{}, ErrClosed
	}
	for s.inflight > 0 {
		if _, err := s.next(ctx); err != nil {
			return Step[R]{}, err
		}
	}

	select {
	case s.updates <- updates:
	case <-s.steps:
		// The coordinator only stops reading updates once it has exited
		s.closed = true
		return Step[R]{}, ErrClosed
	case <-ctx.Done():
		return Step[R]{}, ctx.Err()
	}
	s.inflight++
	return s.next(ctx)
}

func (s *Session[U, R]) next(ctx context.Context) (Step[R], error) {
	select {
	case step, ok := <-s.steps:
		if !ok {
			s.closed = true
			return step, ErrClosed
		}
		s.inflight--
		s.record(step)
		return step, nil
	case <-ctx.Done():
		return Step[R]{}, ctx.Err()
	}
}

func (s *Session[U, R]) record(step Step[R]) {
	s.time = step.Time
	if s.observe != nil {
		s.observe(step)
	}
}

// Time returns the logical time of the last completed step
func (s *Session[U, R]) Time() Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.time
}

// Close stops the harness and waits for every lane to exit
func (s *Session[U, R]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updates == nil {
		return nil
	}
	close(s.updates)
	s.updates = nil
	for step := range s.steps {
		s.record(step)
	}
	s.closed = true
	s.cancel()
	return nil
}
