package executor

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-live/datalog"
	"github.com/wbrown/janus-live/datalog/annotations"
	"github.com/wbrown/janus-live/datalog/fixpoint"
	"github.com/wbrown/janus-live/datalog/graph"
	"github.com/wbrown/janus-live/datalog/storage"
)

var (
	edgeR = datalog.NewResourceID("test.dl", "edge")
	pathR = datalog.NewResourceID("test.dl", "path")
)

// closure builds
//
//	path(x, y) if edge(x, y).
//	path(x, z) if edge(x, y), path(y, z).
func closure() []graph.Node {
	edges := graph.NewLoad(edgeR)
	paths := graph.NewLoad(pathR)
	base := graph.NewStore(edges.Key(), pathR, 0, 1)
	edgeByY := graph.NewProject(edges.Key(), 1, 0)
	join := graph.NewJoin(edgeByY.Key(), paths.Key(), 1) // (y, x, z)
	step := graph.NewStore(join.Key(), pathR, 1, 2)
	return []graph.Node{edges, paths, base, edgeByY, join, step}
}

func nodeEdits(nodes []graph.Node, diff int64) []Edit {
	edits := make([]Edit, len(nodes))
	for i, n := range nodes {
		edits[i] = Edit{Node: n, Diff: diff}
	}
	return edits
}

func edgeEdits(diff int64, pairs ...[2]int64) []Edit {
	edits := make([]Edit, len(pairs))
	for i, p := range pairs {
		edits[i] = Edit{Fact: datalog.Fact{Resource: edgeR, Tuple: datalog.Ints(p[0], p[1])}, Diff: diff}
	}
	return edits
}

func newSession(t *testing.T, opts Options) *Session {
	t.Helper()
	s, err := NewSession(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// forEachConfig runs fn for every lane count and storage backend
func forEachConfig(t *testing.T, fn func(t *testing.T, opts Options)) {
	for _, workers := range []int{1, 3} {
		for _, backend := range []string{storage.BackendMemory, storage.BackendBadger} {
			t.Run(fmt.Sprintf("%s/%d", backend, workers), func(t *testing.T) {
				fn(t, Options{Workers: workers, Store: backend})
			})
		}
	}
}

func TestTransitiveClosure(t *testing.T) {
	forEachConfig(t, func(t *testing.T, opts Options) {
		s := newSession(t, opts)
		ctx := context.Background()

		edits := append(nodeEdits(closure(), 1), edgeEdits(1, [2]int64{1, 2}, [2]int64{2, 3}, [2]int64{3, 4})...)
		delta, err := s.Apply(ctx, edits...)
		require.NoError(t, err)

		assert.Equal(t, []datalog.Tuple{
			datalog.Ints(1, 2), datalog.Ints(1, 3), datalog.Ints(1, 4),
			datalog.Ints(2, 3), datalog.Ints(2, 4), datalog.Ints(3, 4),
		}, s.Relation(pathR))
		assert.Len(t, delta.For(pathR), 6)
		assert.Len(t, delta.For(edgeR), 3)
		for _, c := range delta {
			assert.Equal(t, int64(1), c.Diff)
		}
	})
}

func TestRetraction(t *testing.T) {
	forEachConfig(t, func(t *testing.T, opts Options) {
		s := newSession(t, opts)
		ctx := context.Background()

		edits := append(nodeEdits(closure(), 1), edgeEdits(1, [2]int64{1, 2}, [2]int64{2, 3})...)
		_, err := s.Apply(ctx, edits...)
		require.NoError(t, err)
		require.Len(t, s.Relation(pathR), 3)

		delta, err := s.Apply(ctx, edgeEdits(-1, [2]int64{2, 3})...)
		require.NoError(t, err)

		assert.Equal(t, []datalog.Tuple{datalog.Ints(1, 2)}, s.Relation(pathR))
		assert.Equal(t, Delta{
			{Resource: edgeR, Tuple: datalog.Ints(2, 3), Diff: -1},
			{Resource: pathR, Tuple: datalog.Ints(1, 3), Diff: -1},
			{Resource: pathR, Tuple: datalog.Ints(2, 3), Diff: -1},
		}, delta)
	})
}

func TestIdempotentEdits(t *testing.T) {
	s := newSession(t, Options{Workers: 2})
	ctx := context.Background()

	edits := append(nodeEdits(closure(), 1), edgeEdits(1, [2]int64{1, 2}, [2]int64{2, 3})...)
	_, err := s.Apply(ctx, edits...)
	require.NoError(t, err)

	// Same nodes and facts again only raise multiplicities
	delta, err := s.Apply(ctx, edits...)
	require.NoError(t, err)
	assert.Empty(t, delta)

	// One retraction leaves one reference of everything
	delta, err = s.Apply(ctx, append(nodeEdits(closure(), -1), edgeEdits(-1, [2]int64{1, 2}, [2]int64{2, 3})...)...)
	require.NoError(t, err)
	assert.Empty(t, delta)
	assert.Len(t, s.Relation(pathR), 3)
}

func TestCancellingEditsInOneBatch(t *testing.T) {
	s := newSession(t, Options{Workers: 2})
	ctx := context.Background()

	_, err := s.Apply(ctx, nodeEdits(closure(), 1)...)
	require.NoError(t, err)

	edits := append(edgeEdits(1, [2]int64{1, 2}), edgeEdits(-1, [2]int64{1, 2})...)
	delta, err := s.Apply(ctx, edits...)
	require.NoError(t, err)
	assert.Empty(t, delta)
	assert.Empty(t, s.Relation(pathR))
}

func TestNodesAddedAfterFacts(t *testing.T) {
	forEachConfig(t, func(t *testing.T, opts Options) {
		s := newSession(t, opts)
		ctx := context.Background()

		_, err := s.Apply(ctx, edgeEdits(1, [2]int64{1, 2}, [2]int64{2, 3})...)
		require.NoError(t, err)
		assert.Empty(t, s.Relation(pathR))

		// Add the base rule first, then the recursive one in a later step
		nodes := closure()
		_, err = s.Apply(ctx, nodeEdits(nodes[:3], 1)...)
		require.NoError(t, err)
		assert.Equal(t, []datalog.Tuple{datalog.Ints(1, 2), datalog.Ints(2, 3)}, s.Relation(pathR))

		delta, err := s.Apply(ctx, nodeEdits(nodes[3:], 1)...)
		require.NoError(t, err)
		assert.Equal(t, Delta{{Resource: pathR, Tuple: datalog.Ints(1, 3), Diff: 1}}, delta)
	})
}

func TestRemovingRuleRetractsDerivations(t *testing.T) {
	s := newSession(t, Options{Workers: 3})
	ctx := context.Background()

	nodes := closure()
	_, err := s.Apply(ctx, append(nodeEdits(nodes, 1), edgeEdits(1, [2]int64{1, 2}, [2]int64{2, 3})...)...)
	require.NoError(t, err)

	// Dropping the recursive store keeps only the base case
	delta, err := s.Apply(ctx, RemoveNode(nodes[5]))
	require.NoError(t, err)
	assert.Equal(t, Delta{{Resource: pathR, Tuple: datalog.Ints(1, 3), Diff: -1}}, delta)
	assert.Equal(t, []datalog.Tuple{datalog.Ints(1, 2), datalog.Ints(2, 3)}, s.Relation(pathR))
}

func TestExternalAndDerivedFact(t *testing.T) {
	s := newSession(t, Options{Workers: 2})
	ctx := context.Background()

	_, err := s.Apply(ctx, append(nodeEdits(closure(), 1), edgeEdits(1, [2]int64{1, 2})...)...)
	require.NoError(t, err)

	// path(1, 2) is both stated and derived
	delta, err := s.Apply(ctx, AddFact(pathR, datalog.Ints(1, 2)))
	require.NoError(t, err)
	assert.Empty(t, delta)

	delta, err = s.Apply(ctx, RemoveFact(pathR, datalog.Ints(1, 2)))
	require.NoError(t, err)
	assert.Empty(t, delta)
	assert.Equal(t, []datalog.Tuple{datalog.Ints(1, 2)}, s.Relation(pathR))

	delta, err = s.Apply(ctx, edgeEdits(-1, [2]int64{1, 2})...)
	require.NoError(t, err)
	assert.Equal(t, Delta{
		{Resource: edgeR, Tuple: datalog.Ints(1, 2), Diff: -1},
		{Resource: pathR, Tuple: datalog.Ints(1, 2), Diff: -1},
	}, delta)
}

func TestJoin(t *testing.T) {
	a := datalog.NewResourceID("", "a")
	b := datalog.NewResourceID("", "b")
	ab := datalog.NewResourceID("", "ab")

	la, lb := graph.NewLoad(a), graph.NewLoad(b)
	join := graph.NewJoin(la.Key(), lb.Key(), 1)
	store := graph.NewStore(join.Key(), ab, 0, 1, 2)

	s := newSession(t, Options{Workers: 3})
	_, err := s.Apply(context.Background(),
		AddNode(la), AddNode(lb), AddNode(join), AddNode(store),
		AddFact(a, datalog.NewTuple(datalog.Integer(1), datalog.Symbol("x"))),
		AddFact(a, datalog.NewTuple(datalog.Integer(2), datalog.Symbol("y"))),
		AddFact(b, datalog.Ints(1, 10)),
		AddFact(b, datalog.Ints(1, 11)),
		AddFact(b, datalog.Ints(3, 12)),
	)
	require.NoError(t, err)

	assert.Equal(t, []datalog.Tuple{
		datalog.NewTuple(datalog.Integer(1), datalog.Symbol("x"), datalog.Integer(10)),
		datalog.NewTuple(datalog.Integer(1), datalog.Symbol("x"), datalog.Integer(11)),
	}, s.Relation(ab))
}

func TestMalformedTuplesAreDropped(t *testing.T) {
	a := datalog.NewResourceID("", "a")
	out := datalog.NewResourceID("", "out")
	wide := datalog.NewResourceID("", "wide")

	la := graph.NewLoad(a)
	// Join key longer than the input arity
	bad := graph.NewJoin(la.Key(), la.Key(), 3)
	badStore := graph.NewStore(bad.Key(), wide, 0)
	good := graph.NewStore(la.Key(), out, 1)

	collector := annotations.NewCollector(nil)
	s := newSession(t, Options{Workers: 2, Annotations: collector})
	_, err := s.Apply(context.Background(),
		AddNode(la), AddNode(bad), AddNode(badStore), AddNode(good),
		AddFact(a, datalog.Ints(1, 2)),
	)
	require.NoError(t, err)

	assert.Equal(t, []datalog.Tuple{datalog.Ints(2)}, s.Relation(out))
	assert.Empty(t, s.Relation(wide))
	assert.NotEmpty(t, collector.Named(annotations.EvalDropped))
}

func TestDanglingNodeIsIgnored(t *testing.T) {
	a := datalog.NewResourceID("", "a")
	out := datalog.NewResourceID("", "out")
	la := graph.NewLoad(a)
	store := graph.NewStore(la.Key(), out, 0)

	s := newSession(t, Options{Workers: 1})
	ctx := context.Background()
	_, err := s.Apply(ctx, AddNode(store), AddFact(a, datalog.Ints(7)))
	require.NoError(t, err)
	assert.Empty(t, s.Relation(out))

	// The store becomes valid once its source exists
	delta, err := s.Apply(ctx, AddNode(la))
	require.NoError(t, err)
	assert.Equal(t, Delta{{Resource: out, Tuple: datalog.Ints(7), Diff: 1}}, delta)
}

func TestSessionMatchesEvaluate(t *testing.T) {
	var facts []datalog.Fact
	var edits []Edit
	for i := int64(0); i < 12; i++ {
		f := datalog.Fact{Resource: edgeR, Tuple: datalog.Ints(i, (i*5+3)%12)}
		facts = append(facts, f)
		edits = append(edits, Edit{Fact: f, Diff: 1})
	}
	want, err := Evaluate(closure(), facts, 0)
	require.NoError(t, err)

	s := newSession(t, Options{Workers: 3})
	_, err = s.Apply(context.Background(), append(nodeEdits(closure(), 1), edits...)...)
	require.NoError(t, err)

	assert.Equal(t, want[pathR], s.Relation(pathR))
	assert.Equal(t, want[edgeR], s.Relation(edgeR))
}

func TestEvaluateRoundLimit(t *testing.T) {
	facts := []datalog.Fact{
		{Resource: edgeR, Tuple: datalog.Ints(1, 2)},
		{Resource: edgeR, Tuple: datalog.Ints(2, 3)},
	}
	_, err := Evaluate(closure(), facts, 2)
	assert.ErrorIs(t, err, fixpoint.ErrDiverged)
}

func TestSessionRoundLimit(t *testing.T) {
	s := newSession(t, Options{Workers: 2, MaxRounds: 1})
	_, err := s.Apply(context.Background(), append(nodeEdits(closure(), 1), edgeEdits(1, [2]int64{1, 2}, [2]int64{2, 3})...)...)
	assert.ErrorIs(t, err, ErrSessionClosed)

	_, err = s.Apply(context.Background(), edgeEdits(1, [2]int64{3, 4})...)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestEvaluationAnnotations(t *testing.T) {
	collector := annotations.NewCollector(nil)
	s := newSession(t, Options{Workers: 2, Annotations: collector})
	ctx := context.Background()

	_, err := s.Apply(ctx, append(nodeEdits(closure(), 1), edgeEdits(1, [2]int64{1, 2}, [2]int64{2, 3})...)...)
	require.NoError(t, err)
	assert.Len(t, collector.Named(annotations.EvalComplete), 2)
	assert.NotEmpty(t, collector.Named(annotations.EvalRound))
	assert.Empty(t, collector.Named(annotations.EvalRebuild))

	_, err = s.Apply(ctx, edgeEdits(-1, [2]int64{2, 3})...)
	require.NoError(t, err)
	assert.Len(t, collector.Named(annotations.EvalRebuild), 2)
}
