package simple

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/swarm/core/execution"
	"go.dedis.ch/swarm/core/store"
	"go.dedis.ch/swarm/core/store/mem"
	"go.dedis.ch/swarm/core/txn"
	"go.dedis.ch/swarm/crypto"
	"go.dedis.ch/swarm/internal/testing/fake"
	"golang.org/x/xerrors"
)

func TestService_GetFactory(t *testing.T) {
	srvc := NewService(fakeExec{}, nil)
	require.NotNil(t, srvc.GetFactory())
}

func TestService_GetNonce(t *testing.T) {
	srvc := NewService(fakeExec{}, nil)

	nonce, err := srvc.GetNonce(fakeSnapshot{}, fake.PublicKey{})
	require.NoError(t, err)
	require.Equal(t, uint64(0), nonce)

	buffer := make([]byte, 8)
	buffer[0] = 2
	nonce, err = srvc.GetNonce(fakeSnapshot{value: buffer}, fake.PublicKey{})
	require.NoError(t, err)
	require.Equal(t, uint64(3), nonce)

	_, err = srvc.GetNonce(fakeSnapshot{}, fake.NewBadPublicKey())
	require.EqualError(t, err, fake.Err("key: failed to marshal identity"))

	_, err = srvc.GetNonce(fakeSnapshot{errGet: xerrors.New("oops")}, fake.PublicKey{})
	require.EqualError(t, err, "store: oops")
}

func TestService_Validate(t *testing.T) {
	srvc := NewService(fakeExec{}, nil)

	res, err := srvc.Validate(fakeSnapshot{}, []txn.Transaction{newTx()})
	require.NoError(t, err)
	require.Len(t, res.GetTransactionResults(), 1)

	tx := newTx()
	tx.nonce = 1
	res, err = srvc.Validate(fakeSnapshot{}, []txn.Transaction{tx})
	require.NoError(t, err)

	status, reason := res.GetTransactionResults()[0].GetStatus()
	require.False(t, status)
	require.Equal(t, "nonce is invalid, expected 0, got 1", reason)

	_, err = srvc.Validate(fakeSnapshot{}, []txn.Transaction{fakeTx{}})
	require.EqualError(t, err, "tx 0x0a0b0c0d: nonce: key: missing identity in transaction")

	_, err = srvc.Validate(fakeSnapshot{errSet: xerrors.New("oops")}, []txn.Transaction{newTx()})
	require.EqualError(t, err, "tx 0x0a0b0c0d: failed to set nonce: store: oops")

	srvc.hashFac = fake.NewHashFactory(fake.NewBadHash())
	err = srvc.storeNonce(fakeSnapshot{}, fake.PublicKey{}, 0)
	require.EqualError(t, err, fake.Err("key: failed to write identity"))

	srvc.hashFac = crypto.NewSha256Factory()
	srvc.execution = fakeExec{err: xerrors.New("oops")}
	_, err = srvc.Validate(fakeSnapshot{}, []txn.Transaction{newTx()})
	require.EqualError(t, err, "tx 0x0a0b0c0d: failed to execute tx: oops")
}

func TestService_ValidateAtomicity(t *testing.T) {
	exec := writerExec{}
	srvc := NewService(exec, nil)

	snap := mem.NewSnapshot(nil)

	txs := []txn.Transaction{
		fakeTx{id: []byte{1}, nonce: 0, pubkey: fake.PublicKey{}, arg: "accept"},
		fakeTx{id: []byte{2}, nonce: 1, pubkey: fake.PublicKey{}, arg: "reject"},
		fakeTx{id: []byte{3}, nonce: 1, pubkey: fake.PublicKey{}, arg: "accept"},
		fakeTx{id: []byte{4}, nonce: 3, pubkey: fake.PublicKey{}, arg: "accept"},
	}

	res, err := srvc.Validate(snap, txs)
	require.NoError(t, err)

	results := res.GetTransactionResults()
	require.Len(t, results, 4)

	accepted, _ := results[0].GetStatus()
	require.True(t, accepted)

	accepted, reason := results[1].GetStatus()
	require.False(t, accepted)
	require.Equal(t, "rejected", reason)

	codespace, code := results[1].GetCode()
	require.Equal(t, "test", codespace)
	require.Equal(t, uint32(7), code)

	// The rejected transaction consumed its nonce.
	accepted, reason = results[2].GetStatus()
	require.False(t, accepted)
	require.Equal(t, "nonce is invalid, expected 2, got 1", reason)

	accepted, reason = results[3].GetStatus()
	require.False(t, accepted)
	require.Equal(t, "nonce is invalid, expected 2, got 3", reason)

	value, err := snap.Get([]byte{1})
	require.NoError(t, err)
	require.Equal(t, []byte("accept"), value)

	// The writes of the rejected transaction are discarded.
	value, err = snap.Get([]byte{2})
	require.NoError(t, err)
	require.Nil(t, value)

	nonce, err := srvc.GetNonce(snap, fake.PublicKey{})
	require.NoError(t, err)
	require.Equal(t, uint64(2), nonce)
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeExec struct {
	err error
}

func (e fakeExec) Execute(store.Snapshot, execution.Step) (execution.Result, error) {
	return execution.Result{Accepted: true}, e.err
}

// writerExec writes the argument of the transaction under its identifier and
// rejects the transaction when the argument says so.
type writerExec struct{}

func (writerExec) Execute(snap store.Snapshot, step execution.Step) (execution.Result, error) {
	arg := step.Current.GetArg("")

	err := snap.Set(step.Current.GetID(), arg)
	if err != nil {
		return execution.Result{}, err
	}

	if string(arg) == "reject" {
		return execution.Result{Codespace: "test", Code: 7, Message: "rejected"}, nil
	}

	return execution.Result{Accepted: true}, nil
}

type fakeSnapshot struct {
	store.Snapshot

	value  []byte
	errGet error
	errSet error
}

func (s fakeSnapshot) Get(key []byte) ([]byte, error) {
	return s.value, s.errGet
}

func (s fakeSnapshot) Set(key, value []byte) error {
	return s.errSet
}
