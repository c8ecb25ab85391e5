package datalog

import (
	"bytes"
	"cmp"
	"slices"
	"strings"
)

// CompareValues compares two values and returns:
//
//	-1 if left < right
//	 0 if left == right
//	 1 if left > right
//
// Symbols order before integers; within a type the natural order applies.
func CompareValues(left, right Value) int {
	if left.typ != right.typ {
		return cmp.Compare(left.typ, right.typ)
	}
	if left.typ == IntegerType {
		return cmp.Compare(left.num, right.num)
	}
	return strings.Compare(left.sym, right.sym)
}

// CompareTuples orders tuples lexicographically, shorter tuples first on a
// common prefix
func CompareTuples(left, right Tuple) int {
	n := min(len(left), len(right))
	for i := 0; i < n; i++ {
		if c := CompareValues(left[i], right[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(left), len(right))
}

// SortTuples sorts tuples in place using CompareTuples
func SortTuples(tuples []Tuple) {
	slices.SortFunc(tuples, CompareTuples)
}

// CompareResources orders relations by context, then name
func CompareResources(left, right ResourceID) int {
	if c := strings.Compare(left.context, right.context); c != 0 {
		return c
	}
	if c := strings.Compare(left.name, right.name); c != 0 {
		return c
	}
	return bytes.Compare(left.hash[:], right.hash[:])
}

// CompareFacts orders facts by relation, then tuple
func CompareFacts(left, right Fact) int {
	if c := CompareResources(left.Resource, right.Resource); c != 0 {
		return c
	}
	return CompareTuples(left.Tuple, right.Tuple)
}
