// Package hashtree defines the authenticated store of the ledger. Its root
// commits to every key and value, and a path proves either the value of a key
// or that the key is not set.
package hashtree

import "go.dedis.ch/swarm/core/store"

// Path links a key to the root of a tree.
type Path interface {
	GetKey() []byte

	// GetValue returns nil when the path proves the absence of the key.
	GetValue() []byte

	// GetRoot recomputes the root from the key, the value and the siblings.
	// The path is valid only if it matches the root of the tree.
	GetRoot() []byte
}

// Tree is a read-only version of the authenticated store.
type Tree interface {
	store.Readable

	GetRoot() []byte

	// GetPath returns the proof of the value of the key, or of its absence.
	GetPath(key []byte) (Path, error)

	// ForEach calls the function for every pair, in no particular order,
	// until it returns an error.
	ForEach(fn func(key, value []byte) error) error
}

// WritableTree is a tree that accepts updates. The older versions remain
// readable at their root.
type WritableTree interface {
	Tree
	store.Writable
}

// Factory opens the versions of a tree persisted in a store.
type Factory interface {
	// Open returns the version at the root, or the empty tree for a nil root.
	Open(rd store.Readable, root []byte) (Tree, error)

	// OpenWritable returns the version at the root whose updates are written
	// to the snapshot.
	OpenWritable(snap store.Snapshot, root []byte) (WritableTree, error)
}
