// Package pool declares the pool of the transactions submitted to a node and
// not yet included in a block.
package pool

import (
	"context"

	"go.dedis.ch/swarm/core/txn"
)

// Config describes the transactions expected by a call of Gather.
type Config struct {
	// Min is the number of pending transactions Gather waits for.
	Min int

	// Callback, if set, is called when Gather starts to wait.
	Callback func()
}

// Pool holds the pending transactions.
type Pool interface {
	Len() int

	Add(tx txn.Transaction) error

	// Remove drops a transaction, usually because it is part of a block.
	Remove(tx txn.Transaction) error

	// Gather blocks until the configuration is satisfied and returns the
	// pending transactions sorted by nonce. It returns nil when the context
	// is done first.
	Gather(ctx context.Context, cfg Config) []txn.Transaction

	Close() error
}
