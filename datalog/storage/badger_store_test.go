package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-live/datalog"
)

var (
	edge = datalog.NewResourceID("file:///graph.dl", "Edge")
	name = datalog.NewResourceID("file:///graph.dl", "Name")
)

// Both backends must agree on every operation
func forEachBackend(t *testing.T, fn func(t *testing.T, s FactStore)) {
	for _, backend := range []string{BackendMemory, BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			s, err := Open(backend)
			require.NoError(t, err)
			defer s.Close()
			fn(t, s)
		})
	}
}

func TestUpdateMultiplicity(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s FactStore) {
		f := datalog.Fact{Resource: edge, Tuple: datalog.Ints(1, 2)}

		before, after, err := s.Update(f, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(0), before)
		assert.Equal(t, int64(1), after)

		_, after, err = s.Update(f, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), after)

		n, err := s.Count(f)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		assert.Equal(t, 1, s.Len())

		_, after, err = s.Update(f, -2)
		require.NoError(t, err)
		assert.Equal(t, int64(0), after)
		assert.Equal(t, 0, s.Len(), "zero multiplicity facts are absent")

		n, err = s.Count(f)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})
}

func TestRemovalBeforeAddition(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s FactStore) {
		f := datalog.Fact{Resource: edge, Tuple: datalog.Ints(2, 3)}

		_, after, err := s.Update(f, -1)
		require.NoError(t, err)
		assert.Equal(t, int64(-1), after)
		assert.False(t, Visible(after))

		_, after, err = s.Update(f, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(0), after, "removal and addition net out")
	})
}

func TestScanAndEach(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s FactStore) {
		facts := []datalog.Fact{
			{Resource: edge, Tuple: datalog.Ints(1, 2)},
			{Resource: edge, Tuple: datalog.Ints(2, 3)},
			{Resource: name, Tuple: datalog.NewTuple(datalog.Integer(1), datalog.Symbol("Alice"))},
		}
		for _, f := range facts {
			_, _, err := s.Update(f, 1)
			require.NoError(t, err)
		}

		var tuples []datalog.Tuple
		require.NoError(t, s.Scan(edge, func(tup datalog.Tuple, n int64) bool {
			assert.Equal(t, int64(1), n)
			tuples = append(tuples, tup)
			return true
		}))
		assert.ElementsMatch(t, []datalog.Tuple{datalog.Ints(1, 2), datalog.Ints(2, 3)}, tuples)

		var all []datalog.Fact
		require.NoError(t, s.Each(func(f datalog.Fact, _ int64) bool {
			all = append(all, f)
			return true
		}))
		assert.ElementsMatch(t, facts, all)

		seen := 0
		require.NoError(t, s.Each(func(datalog.Fact, int64) bool {
			seen++
			return false
		}))
		assert.Equal(t, 1, seen, "Each stops when fn returns false")
	})
}

func TestClosedStore(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s FactStore) {
		require.NoError(t, s.Close())
		_, _, err := s.Update(datalog.Fact{Resource: edge, Tuple: datalog.Ints(1)}, 1)
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, s.Each(func(datalog.Fact, int64) bool { return true }), ErrClosed)
	})
}

func TestBadgerResourceTable(t *testing.T) {
	s, err := NewBadgerStore()
	require.NoError(t, err)
	defer s.Close()

	_, _, err = s.Update(datalog.Fact{Resource: edge, Tuple: datalog.Ints(1, 2)}, 1)
	require.NoError(t, err)
	_, _, err = s.Update(datalog.Fact{Resource: name, Tuple: datalog.Ints(1)}, 1)
	require.NoError(t, err)

	resources, err := s.Resources()
	require.NoError(t, err)
	assert.ElementsMatch(t, []datalog.ResourceID{edge, name}, resources)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("postgres")
	assert.Error(t, err)
}

func TestFactKeyRoundTrip(t *testing.T) {
	f := datalog.Fact{Resource: edge, Tuple: datalog.NewTuple(datalog.Symbol("A"), datalog.Integer(-9))}
	hash, tup, err := splitFactKey(factKey(f))
	require.NoError(t, err)
	assert.Equal(t, edge.Hash(), hash)
	assert.True(t, f.Tuple.Equal(tup))

	r, err := decodeResource(encodeResource(edge))
	require.NoError(t, err)
	assert.Equal(t, edge, r)
}
