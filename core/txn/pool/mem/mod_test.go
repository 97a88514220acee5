package mem

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/swarm/core/txn"
	"go.dedis.ch/swarm/core/txn/pool"
	"go.dedis.ch/swarm/internal/testing/fake"
)

func TestPool_Scenario(t *testing.T) {
	p := NewPool()

	for i := byte(1); i <= 3; i++ {
		require.NoError(t, p.Add(fakeTx{id: []byte{i}}))
	}

	require.Equal(t, 3, p.Len())
	require.Equal(t, 3.0, testutil.ToFloat64(pendingGauge))

	txs := p.Gather(context.Background(), pool.Config{Min: 3})
	require.Len(t, txs, 3)

	require.NoError(t, p.Remove(txs[0]))
	require.Equal(t, 2, p.Len())
	require.Equal(t, 2.0, testutil.ToFloat64(pendingGauge))

	// A transaction of a block cannot be submitted again.
	refused := testutil.ToFloat64(refusedCounter)

	err := p.Add(txs[0])
	require.Error(t, err)
	require.Regexp(t, "^store failed: tx 0x01000000 already exists", err.Error())
	require.Equal(t, refused+1, testutil.ToFloat64(refusedCounter))

	err = p.Remove(txs[0])
	require.EqualError(t, err, "store failed: transaction 0x01000000 not found")

	require.NoError(t, p.Close())
	require.Equal(t, 0, p.Len())
	require.Equal(t, 0.0, testutil.ToFloat64(pendingGauge))
}

func TestPool_Gather(t *testing.T) {
	p := NewPool()

	txs := p.Gather(context.Background(), pool.Config{Min: 1, Callback: func() {
		require.NoError(t, p.Add(fakeTx{id: []byte{1}}))
	}})
	require.Len(t, txs, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Nil(t, p.Gather(ctx, pool.Config{Min: 2}))
}

func TestPool_GathererFailure(t *testing.T) {
	p := &Pool{gatherer: badGatherer{}}

	err := p.Add(fakeTx{})
	require.EqualError(t, err, fake.Err("store failed"))

	err = p.Remove(fakeTx{})
	require.EqualError(t, err, fake.Err("store failed"))
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeTx struct {
	txn.Transaction

	id []byte
}

func (tx fakeTx) GetID() []byte {
	return tx.id
}

func (tx fakeTx) GetNonce() uint64 {
	return 0
}

type badGatherer struct {
	pool.Gatherer
}

func (badGatherer) Add(txn.Transaction) error {
	return fake.GetError()
}

func (badGatherer) Remove(txn.Transaction) error {
	return fake.GetError()
}
