package storage

import (
	"github.com/wbrown/janus-live/datalog"
	"github.com/wbrown/janus-live/datalog/zset"
)

// MemoryStore is a FactStore backed by one Z-set per relation
type MemoryStore struct {
	relations map[datalog.ResourceID]*zset.ZSet[datalog.Tuple]
	size      int
	closed    bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{relations: make(map[datalog.ResourceID]*zset.ZSet[datalog.Tuple])}
}

func (s *MemoryStore) Update(fact datalog.Fact, diff int64) (int64, int64, error) {
	if s.closed {
		return 0, 0, ErrClosed
	}
	z, ok := s.relations[fact.Resource]
	if !ok {
		z = zset.New[datalog.Tuple]()
		s.relations[fact.Resource] = z
	}
	lenBefore := z.Len()
	before, after := z.Update(fact.Tuple, diff)
	s.size += z.Len() - lenBefore
	if z.IsEmpty() {
		delete(s.relations, fact.Resource)
	}
	return before, after, nil
}

func (s *MemoryStore) Count(fact datalog.Fact) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	z, ok := s.relations[fact.Resource]
	if !ok {
		return 0, nil
	}
	return z.Count(fact.Tuple), nil
}

func (s *MemoryStore) Scan(resource datalog.ResourceID, fn func(datalog.Tuple, int64) bool) error {
	if s.closed {
		return ErrClosed
	}
	z, ok := s.relations[resource]
	if !ok {
		return nil
	}
	for _, e := range z.Entries() {
		if !fn(e.Item, e.Diff) {
			break
		}
	}
	return nil
}

func (s *MemoryStore) Each(fn func(datalog.Fact, int64) bool) error {
	if s.closed {
		return ErrClosed
	}
	for resource, z := range s.relations {
		for _, e := range z.Entries() {
			if !fn(datalog.Fact{Resource: resource, Tuple: e.Item}, e.Diff) {
				return nil
			}
		}
	}
	return nil
}

func (s *MemoryStore) Len() int { return s.size }

func (s *MemoryStore) Close() error {
	s.closed = true
	s.relations = nil
	return nil
}
