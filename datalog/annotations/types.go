// Package annotations records what the live evaluator does while it runs:
// harness steps, evaluation rounds, rebuilds, join probes and per-document
// inference passes. Events go to a Handler as they happen and are kept by a
// Collector for later inspection.
package annotations

import (
	"sync"
	"time"
)

// Event name constants following hierarchical naming pattern
const (
	// Harness steps
	StepBegin    = "step/begin"
	StepComplete = "step/complete"

	// Relational evaluation
	EvalRound    = "eval/round"
	EvalRebuild  = "eval/rebuild"
	EvalDropped  = "eval/dropped"
	EvalComplete = "eval/complete"

	// Join operations
	JoinProbe = "join/probe"

	// Type inference
	InferContext = "infer/context"

	// Errors
	ErrorBackend = "error/backend"
)

// Event is a single annotation
type Event struct {
	Name    string         // Event name using hierarchical constants above
	Start   time.Time      // Start timestamp
	End     time.Time      // End timestamp
	Latency time.Duration  // Duration (End - Start)
	Lane    int            // Lane that produced the event
	Data    map[string]any // Additional event-specific data
}

// Handler processes annotation events as they occur.
// Handlers may be called from several lanes at once.
type Handler func(event Event)

// Collector accumulates events. A nil *Collector discards everything, so
// callers never need to check whether annotation is enabled.
type Collector struct {
	handler Handler
	keep    bool

	mu     sync.Mutex
	events []Event
}

// NewCollector creates a collector forwarding to handler and keeping every
// event for Events
func NewCollector(handler Handler) *Collector {
	return &Collector{handler: handler, keep: true, events: make([]Event, 0, 64)}
}

// NewForwarder creates a collector that only forwards to handler
func NewForwarder(handler Handler) *Collector {
	if handler == nil {
		return nil
	}
	return &Collector{handler: handler}
}

// Enabled reports whether events are recorded at all
func (c *Collector) Enabled() bool { return c != nil }

// Add records a new event
func (c *Collector) Add(event Event) {
	if c == nil {
		return
	}
	if c.keep {
		c.mu.Lock()
		c.events = append(c.events, event)
		c.mu.Unlock()
	}
	// Call handler outside the lock to avoid deadlocks
	if c.handler != nil {
		c.handler(event)
	}
}

// AddTiming records an event that started at start and ends now
func (c *Collector) AddTiming(name string, lane int, start time.Time, data map[string]any) {
	if c == nil {
		return
	}
	end := time.Now()
	c.Add(Event{
		Name:    name,
		Start:   start,
		End:     end,
		Latency: end.Sub(start),
		Lane:    lane,
		Data:    data,
	})
}

// Events returns a copy of the collected events
func (c *Collector) Events() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Named returns the collected events with the given name
func (c *Collector) Named(name string) []Event {
	var out []Event
	for _, e := range c.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears collected events
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}
