package storage

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/wbrown/janus-live/datalog"
)

// BadgerStore implements FactStore using an in-memory BadgerDB.
// Relations are not persisted across restarts.
type BadgerStore struct {
	db        *badger.DB
	resources map[[hashLen]byte]datalog.ResourceID
	size      int
}

// NewBadgerStore opens an in-memory BadgerDB-backed store
func NewBadgerStore() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable BadgerDB logs
	opts.DetectConflicts = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStore{
		db:        db,
		resources: make(map[[hashLen]byte]datalog.ResourceID),
	}, nil
}

func (s *BadgerStore) Update(fact datalog.Fact, diff int64) (before, after int64, err error) {
	if s.db.IsClosed() {
		return 0, 0, ErrClosed
	}
	key := factKey(fact)
	err = s.db.Update(func(txn *badger.Txn) error {
		before, err = getCount(txn, key)
		if err != nil {
			return err
		}
		after = before + diff
		if after == 0 {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("failed to delete fact: %w", err)
			}
			return nil
		}
		if _, known := s.resources[fact.Resource.Hash()]; !known {
			if err := txn.Set(resourceKey(fact.Resource), encodeResource(fact.Resource)); err != nil {
				return fmt.Errorf("failed to write resource: %w", err)
			}
		}
		if err := txn.Set(key, encodeCount(after)); err != nil {
			return fmt.Errorf("failed to write fact: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	s.resources[fact.Resource.Hash()] = fact.Resource
	switch {
	case before == 0 && after != 0:
		s.size++
	case before != 0 && after == 0:
		s.size--
	}
	return before, after, nil
}

func getCount(txn *badger.Txn, key []byte) (int64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read fact: %w", err)
	}
	var n int64
	err = item.Value(func(val []byte) error {
		n, err = decodeCount(val)
		return err
	})
	return n, err
}

func (s *BadgerStore) Count(fact datalog.Fact) (int64, error) {
	if s.db.IsClosed() {
		return 0, ErrClosed
	}
	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		n, err = getCount(txn, factKey(fact))
		return err
	})
	return n, err
}

func (s *BadgerStore) Scan(resource datalog.ResourceID, fn func(datalog.Tuple, int64) bool) error {
	return s.scan(factPrefix(resource), func(_ [hashLen]byte, t datalog.Tuple, n int64) bool {
		return fn(t, n)
	})
}

func (s *BadgerStore) Each(fn func(datalog.Fact, int64) bool) error {
	return s.scan([]byte{prefixFact}, func(hash [hashLen]byte, t datalog.Tuple, n int64) bool {
		return fn(datalog.Fact{Resource: s.resources[hash], Tuple: t}, n)
	})
}

func (s *BadgerStore) scan(prefix []byte, fn func([hashLen]byte, datalog.Tuple, int64) bool) error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			hash, t, err := splitFactKey(item.Key())
			if err != nil {
				return err
			}
			var n int64
			if err := item.Value(func(val []byte) error {
				n, err = decodeCount(val)
				return err
			}); err != nil {
				return err
			}
			if !fn(hash, t, n) {
				return nil
			}
		}
		return nil
	})
}

// Resources loads the resource table from the database. Used to verify the
// on-database records agree with the in-process cache.
func (s *BadgerStore) Resources() ([]datalog.ResourceID, error) {
	var out []datalog.ResourceID
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte{prefixResource}
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				r, err := decodeResource(val)
				if err != nil {
					return err
				}
				out = append(out, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) Len() int { return s.size }

// Close closes the store
func (s *BadgerStore) Close() error {
	if s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}
