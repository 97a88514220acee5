// Package execution defines the service that applies a transaction to a
// snapshot of the storage.
package execution

import (
	"go.dedis.ch/swarm/core/store"
	"go.dedis.ch/swarm/core/txn"
)

// Step is a context of execution. It contains the transaction to execute and
// the ones that have been executed before it in the same block.
type Step struct {
	Previous []txn.Transaction
	Current  txn.Transaction
}

// Result is the result of a transaction execution.
type Result struct {
	// Accepted is the success state of the transaction.
	Accepted bool

	// Codespace is the namespace of the error code. It is empty when the
	// transaction is accepted or when the rejection carries no code.
	Codespace string

	// Code is the stable code of the rejection inside its codespace.
	Code uint32

	// Message gives a chance to the execution to explain why a transaction has
	// failed.
	Message string
}

// Coder is implemented by the errors that carry a stable code. A contract
// returning such an error produces a result with the codespace and the code.
type Coder interface {
	error

	// Codespace returns the namespace of the code.
	Codespace() string

	// ErrorCode returns the code of the error.
	ErrorCode() uint32
}

// Service is the execution service that defines the primitives to execute a
// transaction.
type Service interface {
	// Execute must apply the transaction to the snapshot and return the result
	// of it. An error is returned only when the execution itself fails, not
	// when the transaction is rejected.
	Execute(snap store.Snapshot, step Step) (Result, error)
}
