package zset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type word string

func (w word) Key() string { return string(w) }

func TestUpdateCancels(t *testing.T) {
	z := New[word]()

	before, after := z.Update("a", 1)
	assert.Equal(t, int64(0), before)
	assert.Equal(t, int64(1), after)

	before, after = z.Update("a", -1)
	assert.Equal(t, int64(1), before)
	assert.Equal(t, int64(0), after)

	assert.True(t, z.IsEmpty(), "zero multiplicity entries are absent")
	assert.Equal(t, 0, z.Len())
}

func TestNegativeMultiplicity(t *testing.T) {
	z := New[word]()
	z.Update("a", -1)
	assert.Equal(t, int64(-1), z.Count("a"))
	assert.False(t, z.Contains("a"))
	assert.Equal(t, 1, z.Len())

	z.Update("a", 2)
	assert.True(t, z.Contains("a"))
}

func TestAddSubtract(t *testing.T) {
	a := FromEntries(Entry[word]{"x", 1}, Entry[word]{"y", 2})
	b := FromEntries(Entry[word]{"y", -2}, Entry[word]{"z", 1})

	sum := a.Clone()
	sum.Add(b)
	assert.Equal(t, []Entry[word]{{"x", 1}, {"z", 1}}, sum.Entries())

	sum.Subtract(b)
	assert.Equal(t, a.Entries(), sum.Entries())

	assert.Equal(t, []Entry[word]{{"x", -1}, {"y", -2}}, a.Negate().Entries())
}

func TestDistinct(t *testing.T) {
	z := FromEntries(Entry[word]{"x", 3}, Entry[word]{"y", -1}, Entry[word]{"w", 1})
	assert.Equal(t, []Entry[word]{{"w", 1}, {"x", 1}}, z.Distinct().Entries())
	assert.Equal(t, []word{"w", "x"}, z.Positive())
}

func TestDiff(t *testing.T) {
	old := FromEntries(Entry[word]{"keep", 1}, Entry[word]{"gone", 2})
	cur := FromEntries(Entry[word]{"keep", 5}, Entry[word]{"new", 1}, Entry[word]{"neg", -1})

	d := cur.Diff(old)
	require.Equal(t, 2, d.Len())
	assert.Equal(t, int64(1), d.Count("new"))
	assert.Equal(t, int64(-1), d.Count("gone"))
}

func TestEachStops(t *testing.T) {
	z := FromEntries(Entry[word]{"a", 1}, Entry[word]{"b", 1}, Entry[word]{"c", 1})
	n := 0
	z.Each(func(word, int64) bool {
		n++
		return n < 2
	})
	assert.Equal(t, 2, n)
}
