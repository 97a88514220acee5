// Package mem implements an in-memory layered snapshot.
//
// A snapshot keeps the writes made on top of a parent readable store. Reads
// look up the pending writes first, then the parent. Snapshots can be nested
// to create speculative views: a child is applied to its parent only when its
// writes should be kept, otherwise it is simply dropped.
package mem

import (
	"sort"

	"go.dedis.ch/swarm/core/store"
	"golang.org/x/xerrors"
)

type item struct {
	value   []byte
	deleted bool
}

// Snapshot is an in-memory overlay over a parent store.
//
// - implements store.Snapshot
type Snapshot struct {
	parent store.Readable
	store  map[string]item
}

// NewSnapshot returns a new empty snapshot on top of the parent. The parent can
// be nil in which case the snapshot starts from an empty store.
func NewSnapshot(parent store.Readable) *Snapshot {
	return &Snapshot{
		parent: parent,
		store:  make(map[string]item),
	}
}

// Get implements store.Readable. It returns the value of the key in the
// overlay if it has been written or deleted, otherwise the value of the
// parent.
func (s *Snapshot) Get(key []byte) ([]byte, error) {
	it, found := s.store[string(key)]
	if found {
		if it.deleted {
			return nil, nil
		}

		return it.value, nil
	}

	if s.parent == nil {
		return nil, nil
	}

	value, err := s.parent.Get(key)
	if err != nil {
		return nil, xerrors.Errorf("parent read failed: %v", err)
	}

	return value, nil
}

// Set implements store.Writable. It writes a copy of the value for the key in
// the overlay.
func (s *Snapshot) Set(key, value []byte) error {
	s.store[string(key)] = item{value: append([]byte{}, value...)}

	return nil
}

// Delete implements store.Writable. It marks the key as deleted in the
// overlay.
func (s *Snapshot) Delete(key []byte) error {
	s.store[string(key)] = item{deleted: true}

	return nil
}

// Len returns the number of pending writes.
func (s *Snapshot) Len() int {
	return len(s.store)
}

// Child returns a new snapshot on top of this one.
func (s *Snapshot) Child() *Snapshot {
	return NewSnapshot(s)
}

// Apply writes the pending writes of the snapshot into its parent and clears
// them. The parent must be writable.
func (s *Snapshot) Apply() error {
	parent, ok := s.parent.(store.Writable)
	if !ok {
		return xerrors.Errorf("parent '%T' is not writable", s.parent)
	}

	err := s.ForEach(func(key, value []byte, deleted bool) error {
		if deleted {
			return parent.Delete(key)
		}

		return parent.Set(key, value)
	})
	if err != nil {
		return xerrors.Errorf("couldn't apply: %v", err)
	}

	s.store = make(map[string]item)

	return nil
}

// ForEach iterates over the pending writes in the byte order of the keys. The
// iteration stops when the callback returns an error.
func (s *Snapshot) ForEach(fn func(key, value []byte, deleted bool) error) error {
	keys := make([]string, 0, len(s.store))
	for key := range s.store {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		it := s.store[key]

		err := fn([]byte(key), it.value, it.deleted)
		if err != nil {
			return err
		}
	}

	return nil
}
