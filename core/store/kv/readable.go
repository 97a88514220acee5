package kv

import (
	"go.dedis.ch/swarm/core/store"
)

// readable is an adapter of a database bucket to a readable store. Each read
// is performed in its own read-only transaction.
//
// - implements store.Readable
type readable struct {
	db     DB
	bucket []byte
}

// NewReadable returns a readable store over the bucket of the database. A
// missing bucket reads as empty.
func NewReadable(db DB, bucket []byte) store.Readable {
	return readable{
		db:     db,
		bucket: bucket,
	}
}

// Get implements store.Readable. It returns a copy of the value of the key, or
// nil if it does not exist.
func (r readable) Get(key []byte) ([]byte, error) {
	var value []byte

	err := r.db.View(func(tx ReadableTx) error {
		bucket := tx.GetBucket(r.bucket)
		if bucket == nil {
			return nil
		}

		raw := bucket.Get(key)
		if raw != nil {
			value = append([]byte{}, raw...)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return value, nil
}

// bucketSnapshot is an adapter of a bucket to a store snapshot, which allows
// to write in the context of a database transaction.
//
// - implements store.Snapshot
type bucketSnapshot struct {
	bucket Bucket
}

// NewSnapshot returns a snapshot that reads and writes in the bucket. It is
// only valid during the transaction of the bucket.
func NewSnapshot(bucket Bucket) store.Snapshot {
	return bucketSnapshot{bucket: bucket}
}

// Get implements store.Readable. It returns the value of the key, or nil if it
// does not exist.
func (s bucketSnapshot) Get(key []byte) ([]byte, error) {
	return s.bucket.Get(key), nil
}

// Set implements store.Writable. It sets the key to the value.
func (s bucketSnapshot) Set(key, value []byte) error {
	return s.bucket.Set(key, value)
}

// Delete implements store.Writable. It deletes the key.
func (s bucketSnapshot) Delete(key []byte) error {
	return s.bucket.Delete(key)
}
