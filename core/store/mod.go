// Package store declares the minimal key/value access shared by the
// databases, the authenticated trees and the snapshots given to the
// contracts.
//
// An absent key is not an error. It reads as a nil value and each structure
// built on top decides what absence means.
package store

// Readable gives read access to the keys.
type Readable interface {
	Get(key []byte) ([]byte, error)
}

// Writable gives write access to the keys.
type Writable interface {
	Set(key []byte, value []byte) error

	Delete(key []byte) error
}

// Snapshot is a copy of a state that can be modified without altering the
// state it comes from.
type Snapshot interface {
	Readable
	Writable
}

// Transaction is the atomic unit of a store.
type Transaction interface {
	// OnCommit registers a function run once the transaction is committed.
	OnCommit(func())
}
