package datalog

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueAccessors(t *testing.T) {
	s := Symbol("Alice")
	i := Integer(-7)

	assert.Equal(t, SymbolType, s.Type())
	assert.Equal(t, IntegerType, i.Type())

	text, ok := s.AsSymbol()
	assert.True(t, ok)
	assert.Equal(t, "Alice", text)
	_, ok = s.AsInteger()
	assert.False(t, ok)

	n, ok := i.AsInteger()
	assert.True(t, ok)
	assert.Equal(t, int64(-7), n)

	assert.Equal(t, "Alice", s.String())
	assert.Equal(t, "-7", i.String())
	assert.Equal(t, "Symbol", SymbolType.String())
	assert.Equal(t, "Integer", IntegerType.String())
}

func TestValueEquality(t *testing.T) {
	assert.True(t, Symbol("A").Equal(Symbol("A")))
	assert.False(t, Symbol("A").Equal(Symbol("B")))
	assert.False(t, Integer(0).Equal(Symbol("")), "zero values of different types differ")

	m := map[Value]int{Integer(1): 1, Symbol("1"): 2}
	assert.Len(t, m, 2)
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name        string
		left, right Value
		want        int
	}{
		{"symbol before integer", Symbol("Z"), Integer(-100), -1},
		{"integer after symbol", Integer(0), Symbol("A"), 1},
		{"integers", Integer(-1), Integer(1), -1},
		{"equal integers", Integer(5), Integer(5), 0},
		{"symbols", Symbol("Bob"), Symbol("Alice"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareValues(tt.left, tt.right))
		})
	}
}

func TestCompareTuples(t *testing.T) {
	assert.Equal(t, -1, CompareTuples(Ints(1, 2), Ints(1, 3)))
	assert.Equal(t, -1, CompareTuples(Ints(1), Ints(1, 0)))
	assert.Equal(t, 0, CompareTuples(Ints(4, 4), Ints(4, 4)))

	tuples := []Tuple{Ints(2, 3), Ints(1, 3), Ints(1, 2)}
	SortTuples(tuples)
	assert.Equal(t, []Tuple{Ints(1, 2), Ints(1, 3), Ints(2, 3)}, tuples)
}

func TestValueEncodingRoundTrip(t *testing.T) {
	values := []Value{
		Integer(0), Integer(-1), Integer(math.MaxInt64), Integer(math.MinInt64),
		Symbol(""), Symbol("Alice"),
	}
	for _, v := range values {
		buf := AppendValue(nil, v)
		got, n, err := DecodeValue(buf)
		require.NoError(t, err)
		assert.Equal(t, len(buf), n)
		assert.Equal(t, v, got)
	}
}

func TestIntegerEncodingPreservesOrder(t *testing.T) {
	ordered := []int64{math.MinInt64, -1000, -1, 0, 1, 1000, math.MaxInt64}
	for i := 1; i < len(ordered); i++ {
		a := string(AppendValue(nil, Integer(ordered[i-1])))
		b := string(AppendValue(nil, Integer(ordered[i])))
		assert.Less(t, a, b, "%d should encode before %d", ordered[i-1], ordered[i])
	}
}

func TestDecodeErrors(t *testing.T) {
	_, _, err := DecodeValue(nil)
	assert.ErrorIs(t, err, ErrShortBuffer)

	_, _, err = DecodeValue([]byte{tagInteger, 0, 0})
	assert.ErrorIs(t, err, ErrShortBuffer)

	_, _, err = DecodeValue([]byte{0x7f})
	assert.ErrorIs(t, err, ErrUnknownTag)

	buf := AppendTuple(nil, Ints(1, 2))
	_, _, err = DecodeTuple(buf[:len(buf)-1])
	assert.ErrorIs(t, err, ErrShortBuffer)
}
