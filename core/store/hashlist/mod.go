// Package hashlist defines the specialization of the store as an append-only
// Merkle list. It allows the creation of proofs to demonstrate that a range of
// entries is part of a list of a given length and root.
package hashlist

import "go.dedis.ch/swarm/core/store"

// Head is the summary of a list at a given length.
type Head struct {
	Len  uint64
	Root []byte
}

// RangeProof is a proof that a range of entries is part of a list.
type RangeProof interface {
	// GetStart returns the index of the first entry of the range.
	GetStart() uint64

	// GetEnd returns the index after the last entry of the range.
	GetEnd() uint64

	// GetLen returns the length of the list the proof is created for.
	GetLen() uint64

	// Verify returns nil if the entries in the range of the proof produce the
	// root, otherwise an error.
	Verify(root []byte, entries [][]byte) error
}

// List is an authenticated append-only list of entries. The root of a list is
// a function of its sequence of entries only.
type List interface {
	// Len returns the number of entries.
	Len() uint64

	// Get returns the entry at the index.
	Get(index uint64) ([]byte, error)

	// GetRoot returns the root of the list.
	GetRoot() ([]byte, error)

	// RootAt returns the root of the list when it had the given length.
	RootAt(n uint64) ([]byte, error)

	// ProveRange returns a proof that the entries in [start, end) are part of
	// the list when it had the length n.
	ProveRange(start, end, n uint64) (RangeProof, error)
}

// WritableList is a list that entries can be appended to.
type WritableList interface {
	List

	// Append adds the entry at the end of the list and returns the new head.
	Append(entry []byte) (Head, error)
}

// Factory is the interface to open lists stored in a store.
type Factory interface {
	// Open returns a read-only view of the list with the identifier.
	Open(rd store.Readable, id []byte) (List, error)

	// OpenWritable returns the list with the identifier that writes in the
	// snapshot.
	OpenWritable(snap store.Snapshot, id []byte) (WritableList, error)
}
