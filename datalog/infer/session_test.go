package infer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/wbrown/janus-live/datalog/annotations"
	"github.com/wbrown/janus-live/datalog/query"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func edits(context string, diff int64, items ...query.Item) []Edit {
	out := make([]Edit, len(items))
	for i, it := range items {
		out[i] = Edit{Context: context, Item: it, Diff: diff}
	}
	return out
}

func TestSessionTracksDocuments(t *testing.T) {
	ctx := context.Background()
	s, err := NewSession(ctx, Options{Workers: 3})
	require.NoError(t, err)
	defer s.Close()

	a := &doc{}
	a.rule(a.atom("Edge", a.tup(a.i(1), a.i(2))))
	bad := a.rule(a.atom("Edge", a.i(3)))

	b := &doc{}
	b.rule(b.atom("A", b.i(1)))
	b.rule(b.atom("R", b.v("x")), b.atom("A", b.v("x")))

	out, err := s.Apply(ctx, append(edits("a.dl", 1, a.items...), edits("b.dl", 1, b.items...)...)...)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a.dl", out[0].Context)
	require.NotNil(t, out[0].Diagnostic)
	assert.Equal(t, "Expected (Integer, Integer), got Integer", out[0].Diagnostic.Message)
	for _, o := range out[1:] {
		assert.Equal(t, "b.dl", o.Context)
		require.NotNil(t, o.Hint)
		assert.Equal(t, ": Integer", o.Hint.Contents)
		assert.Equal(t, int64(1), o.Diff)
	}
	assert.Equal(t, []string{"a.dl", "b.dl"}, s.Contexts())

	// Removing the conflicting fact retracts only its diagnostic
	out, err = s.Apply(ctx, edits("a.dl", -1, bad)...)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(-1), out[0].Diff)
	assert.Empty(t, s.Diagnostics("a.dl"))
	assert.Len(t, s.Hints("b.dl"), 1)
	assert.Equal(t, []string{"b.dl"}, s.Contexts())

	// Re-applying an unchanged document reports nothing
	out, err = s.Apply(ctx, edits("b.dl", 1)...)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSessionDocumentRemoval(t *testing.T) {
	ctx := context.Background()
	s, err := NewSession(ctx, Options{Workers: 2})
	require.NoError(t, err)
	defer s.Close()

	d := &doc{}
	d.rule(d.atom("A", d.i(1)))
	d.rule(d.atom("R", d.v("y")), d.atom("A", d.v("x")))

	_, err = s.Apply(ctx, edits("main.dl", 1, d.items...)...)
	require.NoError(t, err)
	require.Len(t, s.Diagnostics("main.dl"), 1)
	hints := s.Hints("main.dl")
	require.Len(t, hints, 2)
	// Hints follow source order: the head variable comes first
	assert.Equal(t, ": {unknown}", hints[0].Contents)
	assert.Equal(t, ": Integer", hints[1].Contents)

	out, err := s.Apply(ctx, edits("main.dl", -1, d.items...)...)
	require.NoError(t, err)
	assert.Len(t, out, 3)
	for _, o := range out {
		assert.Equal(t, int64(-1), o.Diff)
	}
	assert.Empty(t, s.Contexts())
}

func TestSessionAnnotations(t *testing.T) {
	ctx := context.Background()
	collector := annotations.NewCollector(nil)
	s, err := NewSession(ctx, Options{Workers: 2, Annotations: collector})
	require.NoError(t, err)

	d := &doc{}
	d.rule(d.atom("A", d.i(1)))
	_, err = s.Apply(ctx, edits("x.dl", 1, d.items...)...)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	events := collector.Named(annotations.InferContext)
	require.Len(t, events, 1)
	assert.Equal(t, "x.dl", events[0].Data["context"])
}

func TestSessionClosed(t *testing.T) {
	ctx := context.Background()
	s, err := NewSession(ctx, Options{Workers: 1})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Apply(ctx)
	assert.ErrorIs(t, err, ErrSessionClosed)
}
