// Package storage holds the externally supplied facts of each relation as a
// Z-set: every fact carries a signed multiplicity and is visible while that
// multiplicity is positive.
package storage

import (
	"errors"
	"fmt"

	"github.com/wbrown/janus-live/datalog"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("storage: store is closed")

// FactStore holds signed fact multiplicities
type FactStore interface {
	// Update adds diff to the multiplicity of fact and returns the
	// multiplicity before and after
	Update(fact datalog.Fact, diff int64) (before, after int64, err error)

	// Count returns the multiplicity of fact
	Count(fact datalog.Fact) (int64, error)

	// Scan calls fn for every tuple of resource with non-zero multiplicity
	// until fn returns false
	Scan(resource datalog.ResourceID, fn func(tuple datalog.Tuple, count int64) bool) error

	// Each calls fn for every stored fact until fn returns false
	Each(fn func(fact datalog.Fact, count int64) bool) error

	// Len returns the number of facts with non-zero multiplicity
	Len() int

	Close() error
}

// Backend names accepted by Open
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// Open creates a store for the named backend
func Open(backend string) (FactStore, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendBadger:
		return NewBadgerStore()
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// Visible reports whether a multiplicity makes a fact visible
func Visible(count int64) bool { return count > 0 }
