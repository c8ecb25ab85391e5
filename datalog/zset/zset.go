// Package zset implements Z-sets: multisets whose elements carry signed
// integer multiplicities. Adding an element with multiplicity +1 and then -1
// leaves no trace; entries whose count reaches zero are removed.
package zset

import (
	"slices"
	"strings"
)

// Keyed is implemented by anything that can live in a Z-set. Two elements
// with the same key are the same element.
type Keyed interface {
	Key() string
}

// Entry is an element with its multiplicity
type Entry[T Keyed] struct {
	Item T
	Diff int64
}

// ZSet is a multiset with signed multiplicities.
// The zero value is not usable; use New.
type ZSet[T Keyed] struct {
	items  map[string]T
	counts map[string]int64
}

// New creates an empty Z-set
func New[T Keyed]() *ZSet[T] {
	return &ZSet[T]{
		items:  make(map[string]T),
		counts: make(map[string]int64),
	}
}

// FromEntries builds a Z-set, consolidating repeated items
func FromEntries[T Keyed](entries ...Entry[T]) *ZSet[T] {
	z := New[T]()
	for _, e := range entries {
		z.Update(e.Item, e.Diff)
	}
	return z
}

// Update adds diff to the multiplicity of item in place and returns the
// multiplicity before and after the change
func (z *ZSet[T]) Update(item T, diff int64) (before, after int64) {
	key := item.Key()
	before = z.counts[key]
	if diff == 0 {
		return before, before
	}
	after = before + diff
	if after == 0 {
		delete(z.counts, key)
		delete(z.items, key)
		return before, 0
	}
	if before == 0 {
		z.items[key] = item
	}
	z.counts[key] = after
	return before, after
}

// Count returns the multiplicity of item (zero when absent)
func (z *ZSet[T]) Count(item T) int64 {
	return z.counts[item.Key()]
}

// CountKey returns the multiplicity stored under key
func (z *ZSet[T]) CountKey(key string) int64 {
	return z.counts[key]
}

// Contains reports whether item has positive multiplicity
func (z *ZSet[T]) Contains(item T) bool {
	return z.counts[item.Key()] > 0
}

// Len returns the number of entries with non-zero multiplicity
func (z *ZSet[T]) Len() int {
	return len(z.counts)
}

// IsEmpty reports whether every multiplicity is zero
func (z *ZSet[T]) IsEmpty() bool {
	return len(z.counts) == 0
}

// Add merges other into z in place (Z-set addition)
func (z *ZSet[T]) Add(other *ZSet[T]) {
	if other == nil {
		return
	}
	for key, count := range other.counts {
		z.Update(other.items[key], count)
	}
}

// Subtract removes other from z in place
func (z *ZSet[T]) Subtract(other *ZSet[T]) {
	if other == nil {
		return
	}
	for key, count := range other.counts {
		z.Update(other.items[key], -count)
	}
}

// Negate returns a new Z-set with every multiplicity flipped
func (z *ZSet[T]) Negate() *ZSet[T] {
	result := New[T]()
	for key, count := range z.counts {
		result.items[key] = z.items[key]
		result.counts[key] = -count
	}
	return result
}

// Distinct converts to set semantics: entries with positive multiplicity
// get multiplicity 1, everything else is dropped
func (z *ZSet[T]) Distinct() *ZSet[T] {
	result := New[T]()
	for key, count := range z.counts {
		if count > 0 {
			result.items[key] = z.items[key]
			result.counts[key] = 1
		}
	}
	return result
}

// Clone returns a shallow copy
func (z *ZSet[T]) Clone() *ZSet[T] {
	result := &ZSet[T]{
		items:  make(map[string]T, len(z.items)),
		counts: make(map[string]int64, len(z.counts)),
	}
	for key, item := range z.items {
		result.items[key] = item
		result.counts[key] = z.counts[key]
	}
	return result
}

// Entries returns every entry sorted by key, so output is deterministic
func (z *ZSet[T]) Entries() []Entry[T] {
	keys := make([]string, 0, len(z.counts))
	for key := range z.counts {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, strings.Compare)

	result := make([]Entry[T], len(keys))
	for i, key := range keys {
		result[i] = Entry[T]{Item: z.items[key], Diff: z.counts[key]}
	}
	return result
}

// Positive returns the items with positive multiplicity, sorted by key
func (z *ZSet[T]) Positive() []T {
	var result []T
	for _, e := range z.Entries() {
		if e.Diff > 0 {
			result = append(result, e.Item)
		}
	}
	return result
}

// Each calls fn for every entry in unspecified order, stopping when fn
// returns false
func (z *ZSet[T]) Each(fn func(item T, count int64) bool) {
	for key, count := range z.counts {
		if !fn(z.items[key], count) {
			return
		}
	}
}

// Diff returns the signed change that turns the set view of old into the
// set view of z: +1 for keys that became positive, -1 for keys that
// stopped being positive
func (z *ZSet[T]) Diff(old *ZSet[T]) *ZSet[T] {
	result := New[T]()
	for key, count := range z.counts {
		if count > 0 && old.counts[key] <= 0 {
			result.Update(z.items[key], 1)
		}
	}
	for key, count := range old.counts {
		if count > 0 && z.counts[key] <= 0 {
			result.Update(old.items[key], -1)
		}
	}
	return result
}
