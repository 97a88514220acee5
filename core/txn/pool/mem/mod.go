// Package mem implements the pool of a node, kept in memory. The
// transactions are lost when the node stops, and the clients submit them
// again.
package mem

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.dedis.ch/swarm"
	"go.dedis.ch/swarm/core/txn"
	"go.dedis.ch/swarm/core/txn/pool"
	"golang.org/x/xerrors"
)

var (
	pendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swarm_pool_pending_transactions",
		Help: "number of transactions waiting in the pool",
	})

	refusedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarm_pool_refused_transactions_total",
		Help: "number of transactions refused by the pool",
	})
)

func init() {
	swarm.PromCollectors = append(swarm.PromCollectors, pendingGauge, refusedCounter)
}

// Pool is the in-memory pool.
//
// - implements pool.Pool
type Pool struct {
	gatherer pool.Gatherer
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{gatherer: pool.NewSimpleGatherer()}
}

// Len implements pool.Pool.
func (p *Pool) Len() int {
	return p.gatherer.Len()
}

// Add implements pool.Pool. A transaction already removed from the pool is
// refused.
func (p *Pool) Add(tx txn.Transaction) error {
	err := p.gatherer.Add(tx)
	if err != nil {
		refusedCounter.Inc()

		return xerrors.Errorf("store failed: %v", err)
	}

	pendingGauge.Set(float64(p.gatherer.Len()))

	return nil
}

// Remove implements pool.Pool.
func (p *Pool) Remove(tx txn.Transaction) error {
	err := p.gatherer.Remove(tx)
	if err != nil {
		return xerrors.Errorf("store failed: %v", err)
	}

	pendingGauge.Set(float64(p.gatherer.Len()))

	return nil
}

// Gather implements pool.Pool.
func (p *Pool) Gather(ctx context.Context, cfg pool.Config) []txn.Transaction {
	return p.gatherer.Wait(ctx, cfg)
}

// Close implements pool.Pool. The waiting calls of Gather return nil.
func (p *Pool) Close() error {
	p.gatherer.Close()
	pendingGauge.Set(0)

	return nil
}
