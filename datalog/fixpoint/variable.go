// Package fixpoint is the shared machinery for monotone recursive
// computation: set variables with semi-naive deltas, an Ok/Err split with a
// deduplicated diagnostics side channel, a first-wins resolver, and the
// round driver.
package fixpoint

import (
	"github.com/wbrown/janus-live/datalog/zset"
)

// Keyed is anything with a stable identity
type Keyed = zset.Keyed

// Variable is a monotone set that grows across rounds.
//
// Insert queues new elements, Advance makes the queued elements the recent
// delta. Elements are kept in insertion order, which gives every consumer a
// deterministic enumeration.
type Variable[T Keyed] struct {
	Name   string
	seen   map[string]struct{}
	stable []T
	recent []T
	toAdd  []T
}

// NewVariable creates an empty variable
func NewVariable[T Keyed](name string) *Variable[T] {
	return &Variable[T]{Name: name, seen: make(map[string]struct{})}
}

// Insert queues v for the next round. Returns false if v is already known.
func (v *Variable[T]) Insert(item T) bool {
	key := item.Key()
	if _, ok := v.seen[key]; ok {
		return false
	}
	v.seen[key] = struct{}{}
	v.toAdd = append(v.toAdd, item)
	return true
}

// Contains reports whether item was ever inserted
func (v *Variable[T]) Contains(item T) bool {
	_, ok := v.seen[item.Key()]
	return ok
}

// Advance folds the previous delta into the stable set and promotes queued
// insertions to the new delta. Returns true if the new delta is non-empty.
func (v *Variable[T]) Advance() bool {
	v.stable = append(v.stable, v.recent...)
	v.recent = v.toAdd
	v.toAdd = nil
	return len(v.recent) > 0
}

// Recent returns the delta produced by the last Advance
func (v *Variable[T]) Recent() []T { return v.recent }

// Stable returns the elements known before the last Advance
func (v *Variable[T]) Stable() []T { return v.stable }

// All returns every element that has gone through Advance, in insertion
// order
func (v *Variable[T]) All() []T {
	out := make([]T, 0, len(v.stable)+len(v.recent))
	out = append(out, v.stable...)
	return append(out, v.recent...)
}

// Len returns the number of known elements including queued ones
func (v *Variable[T]) Len() int { return len(v.seen) }

// Pending reports whether insertions are queued
func (v *Variable[T]) Pending() bool { return len(v.toAdd) > 0 }

// Reset discards every element
func (v *Variable[T]) Reset() {
	v.seen = make(map[string]struct{})
	v.stable, v.recent, v.toAdd = nil, nil, nil
}
