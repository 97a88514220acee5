// Package txn declares the transactions submitted to the ledger.
//
// A transaction carries the arguments of a contract call. It is identified by
// its digest and ordered among the transactions of its signer by a nonce, so
// that the same call cannot be replayed.
package txn

import (
	"go.dedis.ch/swarm/crypto"
	"go.dedis.ch/swarm/serde"
)

// Transaction is an input of the execution of a block.
type Transaction interface {
	serde.Message
	serde.Fingerprinter

	// GetID returns the digest identifying the transaction.
	GetID() []byte

	// GetNonce returns the sequence number of the transaction for its
	// identity.
	GetNonce() uint64

	// GetIdentity returns the public key that signed the transaction.
	GetIdentity() crypto.PublicKey

	// GetArg returns the value of the argument, or nil.
	GetArg(key string) []byte
}

// Factory decodes transactions.
type Factory interface {
	serde.Factory

	TransactionOf(serde.Context, []byte) (Transaction, error)
}

// Arg is a named argument of a transaction.
type Arg struct {
	Key   string
	Value []byte
}

// Manager creates the transactions of a client. It tracks the nonce of the
// client which Sync refreshes from the committed state.
type Manager interface {
	Make(args ...Arg) (Transaction, error)

	Sync() error
}
