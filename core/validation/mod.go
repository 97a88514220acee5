// Package validation defines the validation service. It processes a batch of
// transactions into a result that can be used as the payload of a block.
package validation

import (
	"go.dedis.ch/swarm/core/store"
	"go.dedis.ch/swarm/core/txn"
	"go.dedis.ch/swarm/crypto"
	"go.dedis.ch/swarm/serde"
)

// TransactionResult is the result of a transaction processing.
type TransactionResult interface {
	serde.Message

	// GetTransaction returns the transaction associated to the result.
	GetTransaction() txn.Transaction

	// GetStatus returns the status of execution and the reason of the
	// rejection if any.
	GetStatus() (bool, string)

	// GetCode returns the codespace and the code of a rejection. The
	// codespace is empty when the rejection has no code.
	GetCode() (string, uint32)
}

// Result is the result of a validation.
type Result interface {
	serde.Message
	serde.Fingerprinter

	// GetTransactionResults returns the results of the transactions in the
	// order they have been processed.
	GetTransactionResults() []TransactionResult
}

// ResultFactory is the factory to deserialize results.
type ResultFactory interface {
	serde.Factory

	ResultOf(serde.Context, []byte) (Result, error)
}

// Service is the validation service that will process a batch of transactions
// into a validated result that can be used as a payload of a block.
type Service interface {
	// GetFactory returns the result factory.
	GetFactory() ResultFactory

	// GetNonce returns the nonce associated with the identity. The value
	// returned should be used for the next transaction to be valid.
	GetNonce(store.Readable, crypto.PublicKey) (uint64, error)

	// Validate takes a snapshot and a list of transactions and returns a
	// result bundle that can be used to build a block. The snapshot is only
	// updated with the accepted transactions.
	Validate(store.Snapshot, []txn.Transaction) (Result, error)
}
