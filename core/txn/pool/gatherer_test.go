package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/swarm/core/txn"
)

func TestSimpleGatherer_Add(t *testing.T) {
	g := NewSimpleGatherer()

	require.NoError(t, g.Add(fakeTx{id: []byte{1}}))
	require.NoError(t, g.Add(fakeTx{id: []byte{1}}))
	require.NoError(t, g.Add(fakeTx{id: []byte{2}}))
	require.Equal(t, 2, g.Len())

	err := g.Add(fakeTx{id: make([]byte, 33)})
	require.EqualError(t, err, "tx identifier is too long: 33 > 32")
}

func TestSimpleGatherer_Remove(t *testing.T) {
	g := NewSimpleGatherer()

	require.NoError(t, g.Add(fakeTx{id: []byte{0xab, 0xcd}}))
	require.NoError(t, g.Remove(fakeTx{id: []byte{0xab, 0xcd}}))
	require.Equal(t, 0, g.Len())

	err := g.Remove(fakeTx{id: []byte{0xab, 0xcd}})
	require.EqualError(t, err, "transaction 0xabcd0000 not found")

	err = g.Add(fakeTx{id: []byte{0xab, 0xcd}})
	require.EqualError(t, err, "tx 0xabcd0000 already exists")

	err = g.Remove(fakeTx{id: make([]byte, 40)})
	require.EqualError(t, err, "tx identifier is too long: 40 > 32")
}

func TestSimpleGatherer_History(t *testing.T) {
	g := NewSimpleGatherer()

	for i := 0; i <= HistorySize; i++ {
		tx := fakeTx{id: []byte{byte(i), byte(i >> 8)}}

		require.NoError(t, g.Add(tx))
		require.NoError(t, g.Remove(tx))
	}

	// The oldest identifier is forgotten.
	require.NoError(t, g.Add(fakeTx{id: []byte{0, 0}}))
	require.Error(t, g.Add(fakeTx{id: []byte{1, 0}}))
}

func TestSimpleGatherer_Wait(t *testing.T) {
	g := NewSimpleGatherer()

	txs := g.Wait(context.Background(), Config{Min: 1, Callback: func() {
		require.NoError(t, g.Add(fakeTx{id: []byte{1}}))
	}})
	require.Len(t, txs, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Enough transactions are returned even with a done context.
	require.Len(t, g.Wait(ctx, Config{Min: 1}), 1)

	require.Nil(t, g.Wait(ctx, Config{Min: 2}))
	require.Empty(t, g.(*simpleGatherer).waiters)
}

func TestSimpleGatherer_Sorted(t *testing.T) {
	g := NewSimpleGatherer()

	for _, tx := range []fakeTx{
		{id: []byte{4}, nonce: 5},
		{id: []byte{3}, nonce: 2},
		{id: []byte{2}, nonce: 2},
		{id: []byte{1}, nonce: 9},
	} {
		require.NoError(t, g.Add(tx))
	}

	txs := g.Wait(context.Background(), Config{Min: 4})

	ids := make([]byte, len(txs))
	for i, tx := range txs {
		ids[i] = tx.GetID()[0]
	}

	require.Equal(t, []byte{2, 3, 4, 1}, ids)
}

func TestSimpleGatherer_Close(t *testing.T) {
	g := NewSimpleGatherer()

	started := make(chan struct{})
	res := make(chan []txn.Transaction)

	go func() {
		res <- g.Wait(context.Background(), Config{Min: 1, Callback: func() {
			close(started)
		}})
	}()

	<-started
	g.Close()

	select {
	case txs := <-res:
		require.Nil(t, txs)
	case <-time.After(time.Second):
		t.Fatal("waiter not released")
	}
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeTx struct {
	txn.Transaction

	id    []byte
	nonce uint64
}

func (tx fakeTx) GetID() []byte {
	return tx.id
}

func (tx fakeTx) GetNonce() uint64 {
	return tx.nonce
}
