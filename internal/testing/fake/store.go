package fake

import "go.dedis.ch/swarm/core/store"

// InMemorySnapshot is a snapshot backed by a map. Each kind of operation
// returns its error when it is set.
//
// - implements store.Snapshot
type InMemorySnapshot struct {
	values map[string][]byte

	ErrRead   error
	ErrWrite  error
	ErrDelete error
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *InMemorySnapshot {
	return &InMemorySnapshot{values: map[string][]byte{}}
}

// NewBadSnapshot returns an empty snapshot failing every operation.
func NewBadSnapshot() *InMemorySnapshot {
	snap := NewSnapshot()
	snap.ErrRead, snap.ErrWrite, snap.ErrDelete = fakeErr, fakeErr, fakeErr

	return snap
}

// NewBadWriteSnapshot returns an empty snapshot failing the writes only.
func NewBadWriteSnapshot() *InMemorySnapshot {
	snap := NewSnapshot()
	snap.ErrWrite = fakeErr

	return snap
}

// Len returns the number of keys.
func (s *InMemorySnapshot) Len() int {
	return len(s.values)
}

// Get implements store.Readable.
func (s *InMemorySnapshot) Get(key []byte) ([]byte, error) {
	if s.ErrRead != nil {
		return nil, s.ErrRead
	}

	return s.values[string(key)], nil
}

// Set implements store.Writable.
func (s *InMemorySnapshot) Set(key, value []byte) error {
	if s.ErrWrite == nil {
		s.values[string(key)] = value
	}

	return s.ErrWrite
}

// Delete implements store.Writable.
func (s *InMemorySnapshot) Delete(key []byte) error {
	if s.ErrDelete == nil {
		delete(s.values, string(key))
	}

	return s.ErrDelete
}

var _ store.Snapshot = (*InMemorySnapshot)(nil)
