// Package harness drives an incremental computation spread over one or more
// lanes. A coordinator turns a push stream of edit batches into a pull
// stream of result steps: each step applies the queued edits, advances
// logical time, waits for every lane to reach quiescence and merges the
// lanes' result deltas.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wbrown/janus-live/datalog/annotations"
)

// ErrClosed is returned by lane operations after the harness shut down
var ErrClosed = errors.New("harness: closed")

// Time is a discrete logical timestamp. The coordinator is the only writer.
type Time uint64

// Input receives edits on the coordinator lane
type Input[U any] interface {
	// OnUpdate buffers one edit
	OnUpdate(update U)
	// AdvanceTo stamps buffered and future edits with t
	AdvanceTo(t Time)
	// Flush hands every buffered edit to the lanes that own it
	Flush()
}

// Output is one lane's share of the computation
type Output[R any] interface {
	// Pending reports whether the lane still has work at or before t
	Pending(t Time) bool
	// Step performs one unit of work
	Step() error
	// Results returns the lane's result delta since the last call
	Results() []R
	// AdvanceTo informs the lane that no further edits will arrive before t
	AdvanceTo(t Time)
}

// Lane describes one computation lane to a Builder
type Lane struct {
	Index  int
	Peers  int
	Logger *zap.Logger
	done   <-chan struct{}
}

// Done is closed when the harness shuts down or a lane fails
func (l Lane) Done() <-chan struct{} { return l.done }

// IsCoordinator reports whether this lane owns the input
func (l Lane) IsCoordinator() bool { return l.Index == 0 }

// Builder creates the input and output of one lane. The input is only used
// on lane 0.
type Builder[U, R any] func(lane Lane) (Input[U], Output[R], error)

// Step is the merged result of one logical time step
type Step[R any] struct {
	Time    Time
	Results []R
	// Batches is the number of edit batches coalesced into this step
	Batches int
}

// Options configure Run
type Options struct {
	// Workers is the number of lanes including the coordinator.
	// Defaults to runtime.NumCPU().
	Workers int
	Logger  *zap.Logger
	Metrics *Metrics
	// Annotations receives step/begin and step/complete events
	Annotations *annotations.Collector
	// OnPhase, if set, observes every coordinator state transition
	OnPhase func(t Time, p Phase)
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

type crew[R any] struct {
	index   int
	output  Output[R]
	advance chan Time
	results chan []R
}

// Run builds every lane and starts the coordinator. The returned channel
// yields one Step per processed time and is closed after the coordinator
// and every worker have exited.
//
// Outputs implementing io.Closer are closed once every lane has stopped.
// Closing updates ends the computation after the current step. Cancelling
// ctx takes effect only between steps; a started step always runs to
// quiescence.
func Run[U, R any](ctx context.Context, updates <-chan []U, opts Options, build Builder[U, R]) (<-chan Step[R], error) {
	opts = opts.withDefaults()
	n := opts.Workers

	done := make(chan struct{})
	var stopOnce sync.Once
	stop := func() { stopOnce.Do(func() { close(done) }) }

	var input Input[U]
	outputs := make([]Output[R], n)
	for i := 0; i < n; i++ {
		in, out, err := build(Lane{
			Index:  i,
			Peers:  n,
			Logger: opts.Logger.With(zap.Int("lane", i)),
			done:   done,
		})
		if err != nil {
			stop()
			closeAll(outputs[:i])
			return nil, fmt.Errorf("build lane %d: %w", i, err)
		}
		if i == 0 {
			input = in
		}
		outputs[i] = out
	}

	g, gctx := errgroup.WithContext(context.Background())
	crews := make([]*crew[R], n-1)
	for i := range crews {
		c := &crew[R]{
			index:   i + 1,
			output:  outputs[i+1],
			advance: make(chan Time),
			results: make(chan []R, 1),
		}
		crews[i] = c
		g.Go(func() error {
			err := c.run(done)
			if err != nil {
				stop()
			}
			return err
		})
	}

	out := make(chan Step[R])
	coord := &captain[U, R]{
		opts:    opts,
		input:   input,
		output:  outputs[0],
		crews:   crews,
		updates: updates,
		out:     out,
		failed:  gctx.Done(),
		done:    done,
	}

	go func() {
		defer close(out)
		err := coord.run(ctx)
		stop()
		for _, c := range crews {
			close(c.advance)
		}
		if werr := g.Wait(); werr != nil && !errors.Is(werr, ErrClosed) {
			opts.Logger.Error("worker failed", zap.Error(werr))
		}
		for i, o := range outputs {
			if c, ok := o.(io.Closer); ok {
				if cerr := c.Close(); cerr != nil {
					opts.Logger.Warn("close lane", zap.Int("lane", i), zap.Error(cerr))
				}
			}
		}
		if err != nil && !errors.Is(err, ErrClosed) {
			opts.Logger.Error("coordinator failed", zap.Error(err))
		}
		opts.Logger.Debug("harness stopped", zap.Uint64("time", uint64(coord.time)))
	}()

	return out, nil
}

func closeAll[R any](outputs []Output[R]) {
	for _, o := range outputs {
		if c, ok := o.(io.Closer); ok {
			_ = c.Close()
		}
	}
}

// run is a worker lane's loop: wait for a time, drain, report
func (c *crew[R]) run(done <-chan struct{}) error {
	for t := range c.advance {
		c.output.AdvanceTo(t)
		for c.output.Pending(t) {
			if err := c.output.Step(); err != nil {
				return fmt.Errorf("lane %d at time %d: %w", c.index, t, err)
			}
		}
		select {
		case c.results <- c.output.Results():
		case <-done:
			return nil
		}
	}
	return nil
}

type captain[U, R any] struct {
	opts    Options
	input   Input[U]
	output  Output[R]
	crews   []*crew[R]
	updates <-chan []U
	out     chan<- Step[R]
	failed  <-chan struct{}
	done    <-chan struct{}
	time    Time
}

func (c *captain[U, R]) phase(p Phase) {
	if c.opts.OnPhase != nil {
		c.opts.OnPhase(c.time, p)
	}
	c.opts.Metrics.observePhase(p)
}

func (c *captain[U, R]) run(ctx context.Context) error {
	for {
		c.phase(Idle)

		var first []U
		select {
		case b, ok := <-c.updates:
			if !ok {
				return nil
			}
			first = b
		case <-ctx.Done():
			return nil
		}

		// Coalesce everything queued behind the first batch
		batches := [][]U{first}
		closed := false
	drain:
		for {
			select {
			case b, ok := <-c.updates:
				if !ok {
					closed = true
					break drain
				}
				batches = append(batches, b)
			default:
				break drain
			}
		}

		step, err := c.step(batches)
		if err != nil {
			return err
		}

		select {
		case c.out <- step:
		case <-ctx.Done():
			return nil
		}
		if closed {
			return nil
		}
	}
}

// step runs one logical time step to quiescence on every lane
func (c *captain[U, R]) step(batches [][]U) (Step[R], error) {
	start := time.Now()

	edits := 0
	for _, b := range batches {
		for _, u := range b {
			c.input.OnUpdate(u)
			edits++
		}
	}
	c.time++
	c.opts.Annotations.Add(annotations.Event{
		Name:  annotations.StepBegin,
		Start: start,
		Data:  map[string]any{"time": uint64(c.time), "batches": len(batches), "edits": edits},
	})
	c.input.AdvanceTo(c.time)
	c.input.Flush()
	c.phase(EditsApplied)

	c.phase(Advancing)
	for _, w := range c.crews {
		select {
		case w.advance <- c.time:
		case <-c.failed:
			return Step[R]{}, fmt.Errorf("advance lane %d: %w", w.index, ErrClosed)
		}
	}

	c.phase(Draining)
	c.output.AdvanceTo(c.time)
	for c.output.Pending(c.time) {
		if err := c.output.Step(); err != nil {
			return Step[R]{}, fmt.Errorf("lane 0 at time %d: %w", c.time, err)
		}
	}

	results := c.output.Results()
	c.opts.Metrics.observeLane(0, len(results))
	for _, w := range c.crews {
		select {
		case r := <-w.results:
			c.opts.Metrics.observeLane(w.index, len(r))
			results = append(results, r...)
		case <-c.failed:
			return Step[R]{}, fmt.Errorf("collect lane %d: %w", w.index, ErrClosed)
		}
	}
	c.phase(ResultsCollected)

	elapsed := time.Since(start)
	c.opts.Metrics.observeStep(len(batches), elapsed)
	c.opts.Annotations.AddTiming(annotations.StepComplete, 0, start, map[string]any{
		"time":    uint64(c.time),
		"results": len(results),
	})
	c.opts.Logger.Debug("step complete",
		zap.Uint64("time", uint64(c.time)),
		zap.Int("batches", len(batches)),
		zap.Int("edits", edits),
		zap.Int("results", len(results)),
		zap.Duration("elapsed", elapsed))

	return Step[R]{Time: c.time, Results: results, Batches: len(batches)}, nil
}
