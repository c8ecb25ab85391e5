package annotations

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-live/datalog"
	"github.com/wbrown/janus-live/datalog/query"
)

func TestNilCollectorDiscards(t *testing.T) {
	var c *Collector
	assert.False(t, c.Enabled())
	c.Add(Event{Name: EvalRound})
	c.AddTiming(StepComplete, 0, time.Now(), nil)
	c.Reset()
	assert.Nil(t, c.Events())
	assert.Nil(t, NewForwarder(nil))
}

func TestCollectorKeepsAndForwards(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	c := NewCollector(func(e Event) {
		mu.Lock()
		seen = append(seen, e.Name)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for lane := 0; lane < 4; lane++ {
		wg.Add(1)
		go func(lane int) {
			defer wg.Done()
			c.AddTiming(EvalRound, lane, time.Now(), map[string]any{"round": 1})
		}(lane)
	}
	wg.Wait()
	c.Add(Event{Name: EvalComplete})

	assert.Len(t, c.Events(), 5)
	assert.Len(t, c.Named(EvalRound), 4)
	assert.Len(t, seen, 5)
	for _, e := range c.Named(EvalRound) {
		assert.False(t, e.End.Before(e.Start))
		assert.Equal(t, e.End.Sub(e.Start), e.Latency)
	}

	c.Reset()
	assert.Empty(t, c.Events())
}

func TestForwarderDoesNotKeep(t *testing.T) {
	n := 0
	c := NewForwarder(func(Event) { n++ })
	c.Add(Event{Name: JoinProbe})
	assert.Equal(t, 1, n)
	assert.Empty(t, c.Events())
}

func TestFormatEvents(t *testing.T) {
	f := NewPlainFormatter(nil)
	tests := []struct {
		event Event
		want  string
	}{
		{
			Event{Name: StepBegin, Data: map[string]any{"time": uint64(3), "batches": 2, "edits": 7}},
			"=== Step 3: 7 edits in 2 batches",
		},
		{
			Event{Name: StepComplete, Latency: 1500 * time.Microsecond, Data: map[string]any{"time": uint64(3), "results": 4}},
			"[1.5ms] === Step 3 done with 4 results",
		},
		{
			Event{Name: EvalRound, Lane: 1, Latency: 20 * time.Microsecond, Data: map[string]any{"round": 2, "messages": 9}},
			"[20µs] lane 1 round 2 exchanged 9 messages",
		},
		{
			Event{Name: EvalComplete, Lane: 0, Data: map[string]any{"rounds": 3, "changes": 5}},
			"[0µs] lane 0 converged in 3 rounds with 5 tuples",
		},
		{
			Event{Name: InferContext, Lane: 2, Data: map[string]any{"context": "a.dl", "rounds": 2, "types": 4, "diagnostics": 1}},
			"[0µs] lane 2 ✗ a.dl: 4 types in 2 rounds, 1 diagnostics",
		},
		{
			Event{Name: ErrorBackend, Data: map[string]any{"op": "scan", "error": "closed"}},
			"✗ lane 0 scan failed: closed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.event.Name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Format(tt.event))
		})
	}
}

func TestHandleWritesLines(t *testing.T) {
	var buf bytes.Buffer
	f := NewOutputFormatter(&buf)
	f.Handle(Event{Name: "custom/event", Data: map[string]any{"k": 1}})
	assert.Equal(t, "[0µs] custom/event map[k:1]\n", buf.String())
}

func TestRenderChange(t *testing.T) {
	r := NewRelationRenderer(false)
	path := datalog.NewResourceID("a.dl", "Path")
	assert.Equal(t, "+ Path(1, 2)", r.RenderChange(path, datalog.Ints(1, 2), 1))
	assert.Equal(t, "- Path(1, 2) ×3", r.RenderChange(path, datalog.Ints(1, 2), -3))
	assert.Equal(t, "Path (2 Tuples)", r.RenderRelation(path, 2))
}

func TestRenderDiagnostic(t *testing.T) {
	r := NewRelationRenderer(false)
	src := "Edge(1, 2).\nPath(x, y) if Edge(x).\n"
	d := query.Errorf(query.NewSpan(1, 14, 1, 21), "Expected (Integer, Integer), got (Integer)").
		WithLabel(query.NewSpan(0, 0, 0, 10), "Edge first used here")

	got := r.RenderDiagnostic("a.dl", src, d)
	lines := strings.Split(got, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "a.dl:2:15: error: Expected (Integer, Integer), got (Integer)", lines[0])
	assert.Equal(t, "   2 | Path(x, y) if Edge(x).", lines[1])
	assert.Equal(t, strings.Repeat(" ", 7+14)+"^^^^^^^", lines[2])
	assert.Equal(t, "     = 1:1: Edge first used here", lines[3])
}

func TestRenderDiagnosticOutsideSource(t *testing.T) {
	r := NewRelationRenderer(false)
	d := query.Errorf(query.NewSpan(9, 0, 9, 1), "Syntax error")
	assert.Equal(t, "a.dl:10:1: error: Syntax error", r.RenderDiagnostic("a.dl", "", d))
}

func TestRenderHint(t *testing.T) {
	r := NewRelationRenderer(false)
	src := "Path(x, y) if Edge(x, y)."
	h := query.InlayHint{Span: query.NewSpan(0, 5, 0, 6), Contents: ": Integer"}
	assert.Equal(t, "1:6 x: Integer", r.RenderHint(src, h))
}
