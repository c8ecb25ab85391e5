package datalog

import (
	"strings"
)

// Tuple is a fixed-length ordered sequence of values.
// Tuples are never mutated after construction; operators build new ones.
type Tuple []Value

// NewTuple builds a tuple from values
func NewTuple(values ...Value) Tuple {
	t := make(Tuple, len(values))
	copy(t, values)
	return t
}

// Ints is a shorthand for an all-integer tuple, mostly used by tests
func Ints(values ...int64) Tuple {
	t := make(Tuple, len(values))
	for i, v := range values {
		t[i] = Integer(v)
	}
	return t
}

// Equal reports element-wise equality
func (t Tuple) Equal(other Tuple) bool {
	if len(t) != len(other) {
		return false
	}
	for i := range t {
		if t[i] != other[i] {
			return false
		}
	}
	return true
}

// Key returns the canonical encoding of the tuple, suitable as a map key
func (t Tuple) Key() string {
	return string(AppendTuple(nil, t))
}

// Project builds a new tuple from the given positions.
// Returns false if any index is out of range.
func (t Tuple) Project(indices []int) (Tuple, bool) {
	out := make(Tuple, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(t) {
			return nil, false
		}
		out[i] = t[idx]
	}
	return out, true
}

// Concat returns a new tuple holding the elements of all parts in order
func Concat(parts ...Tuple) Tuple {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make(Tuple, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// String renders the tuple as "(a, b, c)"
func (t Tuple) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, v := range t {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(v.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// Fact is a ground tuple belonging to a relation
type Fact struct {
	Resource ResourceID
	Tuple    Tuple
}

// Key identifies the fact by relation identity and tuple contents
func (f Fact) Key() string {
	buf := make([]byte, 0, 24+len(f.Tuple)*9)
	buf = append(buf, f.Resource.hash[:]...)
	return string(AppendTuple(buf, f.Tuple))
}

// String returns a string representation of the fact
func (f Fact) String() string {
	return f.Resource.Name() + f.Tuple.String()
}
