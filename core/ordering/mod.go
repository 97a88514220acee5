// Package ordering defines the interface of the ordering service. The
// high-level purpose of this service is to order the transactions from the
// pool into blocks and to commit their effects.
//
// Depending on the implementation, the service can be composed of multiple
// sub-components. For instance, an ordering service driven by a consensus
// engine receives the blocks from it while one running PoW orders the
// transactions locally and creates a block with the proof of work.
//
// Every block commits to a global state tree: each registered state provider
// contributes one authenticator stored under its name, and the root of the
// tree is written in the block header.
package ordering

import (
	"context"

	"go.dedis.ch/swarm/core/store"
	"go.dedis.ch/swarm/core/store/hashtree"
	"go.dedis.ch/swarm/core/txn"
	"go.dedis.ch/swarm/core/validation"
	"go.dedis.ch/swarm/crypto"
	"go.dedis.ch/swarm/serde"
)

// Header is the part of a block that commits to the state. It can be verified
// without the rest of the block.
type Header interface {
	serde.Message
	serde.Fingerprinter

	// GetIndex returns the height of the block.
	GetIndex() uint64

	// GetRoot returns the root of the global state tree after the block.
	GetRoot() []byte

	// GetHash returns the digest of the header.
	GetHash() []byte

	// Verify returns nil if the header is consistent with its digest and the
	// rules of the ordering service, otherwise an error.
	Verify(fac crypto.HashFactory) error
}

// HeaderFactory is the factory to deserialize block headers.
type HeaderFactory interface {
	serde.Factory

	HeaderOf(serde.Context, []byte) (Header, error)
}

// Event is the notification of a new committed block.
type Event struct {
	Index        uint64
	Header       Header
	Transactions []validation.TransactionResult
}

// StateProvider is implemented by the services folding an authenticator in
// the global state tree.
type StateProvider interface {
	// GetName returns the key of the authenticator in the global state tree.
	GetName() string

	// GetStateRoot returns the authenticator of the service for the state.
	GetStateRoot(store.Readable) ([]byte, error)
}

// Service is the interface of an ordering service. It provides the primitives
// to read the committed state and to be notified of new blocks.
type Service interface {
	// GetHeader returns the header of the block at the index.
	GetHeader(index uint64) (Header, error)

	// GetLatestHeader returns the header of the last committed block. It
	// returns an error when no block is committed yet.
	GetLatestHeader() (Header, error)

	// GetStore returns a read-only view of the committed state.
	GetStore() store.Readable

	// GetStateTree returns the global state tree of the header.
	GetStateTree(Header) (hashtree.Tree, error)

	// GetTransaction returns the committed transaction with the identifier.
	GetTransaction(id []byte) (txn.Transaction, error)

	// Watch returns a channel populated with the events of new blocks until
	// the context is done.
	Watch(ctx context.Context) <-chan Event

	// Close stops the service.
	Close() error
}
