// Package kv abstracts the key/value databases holding the blocks and the
// state of a node.
//
// Two engines are provided, selected by the db.engine key of the
// configuration: bbolt, the default, and goleveldb.
package kv

import "go.dedis.ch/swarm/core/store"

// Bucket is a named collection of keys of a database.
type Bucket interface {
	// Get returns the value of the key, or nil when it is absent.
	Get(key []byte) []byte

	Set(key, value []byte) error

	Delete(key []byte) error

	// ForEach calls fn with every pair of the bucket until fn fails.
	ForEach(fn func(k, v []byte) error) error

	// Scan calls fn with the pairs whose key starts with the prefix, in the
	// order of the keys, until fn fails.
	Scan(prefix []byte, fn func(k, v []byte) error) error
}

// ReadableTx is a read-only view of the database.
type ReadableTx interface {
	// GetBucket returns the bucket or nil when it does not exist.
	GetBucket(name []byte) Bucket
}

// WritableTx is a view of the database that is applied atomically when the
// update function returns without error.
type WritableTx interface {
	store.Transaction
	ReadableTx

	GetBucketOrCreate(name []byte) (Bucket, error)
}

// DB is a key/value database.
type DB interface {
	View(fn func(ReadableTx) error) error

	// Update runs fn in a writable transaction that is rolled back when fn
	// returns an error.
	Update(fn func(WritableTx) error) error

	Close() error
}
