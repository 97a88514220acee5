package pool

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"go.dedis.ch/swarm/core/txn"
	"golang.org/x/xerrors"
)

// KeyMaxLength is the maximum length of a transaction identifier.
const KeyMaxLength = 32

// HistorySize is the number of removed transactions remembered to refuse
// their resubmission. An older transaction is refused by its nonce anyway.
const HistorySize = 4096

// Key is the identifier of a transaction padded with zeros.
type Key [KeyMaxLength]byte

// String implements fmt.Stringer. It prints the first bytes of the key.
func (k Key) String() string {
	return fmt.Sprintf("%#x", k[:4])
}

// Gatherer keeps the pending transactions of a pool and serves the requests
// of the ordering for them.
type Gatherer interface {
	Len() int

	Add(tx txn.Transaction) error

	// Remove deletes a pending transaction, which cannot be added again.
	Remove(tx txn.Transaction) error

	// Wait returns the pending transactions once there are enough of them
	// for the configuration, or nil when the context is done or the gatherer
	// is closed.
	Wait(ctx context.Context, cfg Config) []txn.Transaction

	Close()
}

// waiter is a call of Wait blocked until enough transactions are pending.
type waiter struct {
	min int
	ch  chan []txn.Transaction
}

type simpleGatherer struct {
	sync.Mutex

	pending map[Key]txn.Transaction
	removed *lru.Cache
	waiters map[*waiter]struct{}
}

// NewSimpleGatherer returns an empty gatherer.
func NewSimpleGatherer() Gatherer {
	removed, err := lru.New(HistorySize)
	if err != nil {
		// Only a negative size fails.
		panic(err)
	}

	return &simpleGatherer{
		pending: map[Key]txn.Transaction{},
		removed: removed,
		waiters: map[*waiter]struct{}{},
	}
}

func makeKey(tx txn.Transaction) (Key, error) {
	var key Key

	id := tx.GetID()
	if len(id) > KeyMaxLength {
		return key, xerrors.Errorf("tx identifier is too long: %d > %d", len(id), KeyMaxLength)
	}

	copy(key[:], id)

	return key, nil
}

// Len implements pool.Gatherer.
func (g *simpleGatherer) Len() int {
	g.Lock()
	defer g.Unlock()

	return len(g.pending)
}

// Add implements pool.Gatherer. Adding a pending transaction again replaces
// it.
func (g *simpleGatherer) Add(tx txn.Transaction) error {
	key, err := makeKey(tx)
	if err != nil {
		return err
	}

	g.Lock()
	defer g.Unlock()

	if g.removed.Contains(key) {
		return xerrors.Errorf("tx %v already exists", key)
	}

	g.pending[key] = tx

	for w := range g.waiters {
		if len(g.pending) >= w.min {
			w.ch <- g.sorted()
			delete(g.waiters, w)
		}
	}

	return nil
}

// Remove implements pool.Gatherer.
func (g *simpleGatherer) Remove(tx txn.Transaction) error {
	key, err := makeKey(tx)
	if err != nil {
		return err
	}

	g.Lock()
	defer g.Unlock()

	_, found := g.pending[key]
	if !found {
		return xerrors.Errorf("transaction %v not found", key)
	}

	delete(g.pending, key)
	g.removed.Add(key, nil)

	return nil
}

// Wait implements pool.Gatherer. The callback of the configuration is called
// when the transactions are not there yet.
func (g *simpleGatherer) Wait(ctx context.Context, cfg Config) []txn.Transaction {
	g.Lock()

	if len(g.pending) >= cfg.Min {
		defer g.Unlock()

		return g.sorted()
	}

	w := &waiter{min: cfg.Min, ch: make(chan []txn.Transaction, 1)}
	g.waiters[w] = struct{}{}

	g.Unlock()

	if cfg.Callback != nil {
		cfg.Callback()
	}

	select {
	case txs := <-w.ch:
		return txs
	case <-ctx.Done():
		g.Lock()
		delete(g.waiters, w)
		g.Unlock()

		return nil
	}
}

// Close implements pool.Gatherer. The pending transactions are dropped and
// the waiters are released.
func (g *simpleGatherer) Close() {
	g.Lock()
	defer g.Unlock()

	for w := range g.waiters {
		close(w.ch)
	}

	g.pending = map[Key]txn.Transaction{}
	g.waiters = map[*waiter]struct{}{}
	g.removed.Purge()
}

// sorted returns the pending transactions by increasing nonce, so that the
// transactions of an identity are executed in order. The identifiers break
// the ties.
func (g *simpleGatherer) sorted() []txn.Transaction {
	txs := make([]txn.Transaction, 0, len(g.pending))
	for _, tx := range g.pending {
		txs = append(txs, tx)
	}

	sort.Slice(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		if a.GetNonce() != b.GetNonce() {
			return a.GetNonce() < b.GetNonce()
		}

		return bytes.Compare(a.GetID(), b.GetID()) < 0
	})

	return txs
}
