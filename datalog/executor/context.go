package executor

import (
	"time"

	"github.com/wbrown/janus-live/datalog"
	"github.com/wbrown/janus-live/datalog/annotations"
	"github.com/wbrown/janus-live/datalog/graph"
	"github.com/wbrown/janus-live/datalog/harness"
)

// Context provides annotation points for one lane's evaluation.
type Context interface {
	// Evaluation lifecycle for one logical time
	EvalBegin(t harness.Time)
	EvalRound(round, messages int)
	EvalRebuild(reason string)
	EvalComplete(rounds, changes int)

	// Precondition violations
	Dropped(node graph.Node, tuple datalog.Tuple, reason string)

	// Join probes
	JoinProbe(join graph.Key, matches int)

	// Storage failures
	BackendError(op string, err error)

	// Get underlying collector
	Collector() *annotations.Collector
}

// NewContext creates an appropriate context based on whether annotations
// are needed
func NewContext(collector *annotations.Collector, lane int) Context {
	if !collector.Enabled() {
		return BaseContext{}
	}
	return &AnnotatedContext{collector: collector, lane: lane}
}

// BaseContext provides a no-op implementation with zero overhead.
type BaseContext struct{}

func (BaseContext) EvalBegin(harness.Time)                    {}
func (BaseContext) EvalRound(int, int)                        {}
func (BaseContext) EvalRebuild(string)                        {}
func (BaseContext) EvalComplete(int, int)                     {}
func (BaseContext) Dropped(graph.Node, datalog.Tuple, string) {}
func (BaseContext) JoinProbe(graph.Key, int)                  {}
func (BaseContext) BackendError(string, error)                {}
func (BaseContext) Collector() *annotations.Collector         { return nil }

// AnnotatedContext provides full annotation tracking
type AnnotatedContext struct {
	collector *annotations.Collector
	lane      int
	time      harness.Time
	start     time.Time
	round     time.Time
}

func (c *AnnotatedContext) EvalBegin(t harness.Time) {
	c.time = t
	c.start = time.Now()
	c.round = c.start
}

func (c *AnnotatedContext) EvalRound(round, messages int) {
	start := c.round
	c.round = time.Now()
	c.collector.AddTiming(annotations.EvalRound, c.lane, start, map[string]any{
		"time":     uint64(c.time),
		"round":    round,
		"messages": messages,
	})
}

func (c *AnnotatedContext) EvalRebuild(reason string) {
	c.collector.Add(annotations.Event{
		Name:  annotations.EvalRebuild,
		Start: time.Now(),
		Lane:  c.lane,
		Data: map[string]any{
			"time":   uint64(c.time),
			"reason": reason,
		},
	})
}

func (c *AnnotatedContext) EvalComplete(rounds, changes int) {
	c.collector.AddTiming(annotations.EvalComplete, c.lane, c.start, map[string]any{
		"time":    uint64(c.time),
		"rounds":  rounds,
		"changes": changes,
	})
}

func (c *AnnotatedContext) Dropped(node graph.Node, tuple datalog.Tuple, reason string) {
	c.collector.Add(annotations.Event{
		Name:  annotations.EvalDropped,
		Start: time.Now(),
		Lane:  c.lane,
		Data: map[string]any{
			"node":   node.String(),
			"tuple":  tuple.String(),
			"reason": reason,
		},
	})
}

func (c *AnnotatedContext) JoinProbe(join graph.Key, matches int) {
	c.collector.Add(annotations.Event{
		Name:  annotations.JoinProbe,
		Start: time.Now(),
		Lane:  c.lane,
		Data: map[string]any{
			"join":    join.String(),
			"matches": matches,
		},
	})
}

func (c *AnnotatedContext) BackendError(op string, err error) {
	c.collector.Add(annotations.Event{
		Name:  annotations.ErrorBackend,
		Start: time.Now(),
		Lane:  c.lane,
		Data: map[string]any{
			"op":    op,
			"error": err.Error(),
		},
	})
}

func (c *AnnotatedContext) Collector() *annotations.Collector { return c.collector }
