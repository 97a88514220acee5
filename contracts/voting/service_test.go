package voting

import (
	"context"
	"path/filepath"
	"testing"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/swarm/contracts/voting/ledger"
	"go.dedis.ch/swarm/contracts/voting/proof"
	"go.dedis.ch/swarm/contracts/voting/types"
	"go.dedis.ch/swarm/core/execution/native"
	"go.dedis.ch/swarm/core/ordering/abci"
	"go.dedis.ch/swarm/core/store/kv"
	"go.dedis.ch/swarm/core/txn"
	"go.dedis.ch/swarm/core/txn/signed"
	"go.dedis.ch/swarm/core/validation/simple"
	"go.dedis.ch/swarm/crypto"
	"go.dedis.ch/swarm/internal/testing/fake"
	"golang.org/x/xerrors"
)

func TestService_Scenario(t *testing.T) {
	host := newTestHost(t)

	require.Equal(t, ledger.TableName, host.srv.GetName())

	_, err := host.srv.GetVotingInfo([]byte("A"))
	require.EqualError(t, err, "latest header: no block committed yet")
	require.IsType(t, proof.NoBlockError{}, err)

	votings, err := host.srv.ListVotings()
	require.NoError(t, err)
	require.Empty(t, votings)

	host.submit(t, types.CreateVoting{SubjectKey: []byte("A"), DroneKey: []byte("drone")})
	host.submit(t, castVote(1, []byte("A"), []byte("v1"), true, 0))

	for _, res := range host.commit(t) {
		require.Equal(t, abcitypes.CodeTypeOK, res.Code, res.Log)
	}

	host.submit(t, types.CreateVoting{SubjectKey: []byte("B"), DroneKey: []byte("drone")})
	host.submit(t, castVote(2, []byte("A"), []byte("v2"), false, 0))
	host.submit(t, castVote(3, []byte("A"), []byte("v1"), false, 0))

	results := host.commit(t)
	require.Equal(t, abcitypes.CodeTypeOK, results[0].Code)
	require.Equal(t, abcitypes.CodeTypeOK, results[1].Code)
	require.Equal(t, uint32(CodeValidatorAlreadyVoted)+1, results[2].Code)
	require.Equal(t, Codespace, results[2].Codespace)
	require.Equal(t, "Validator already voted", results[2].Log)

	voting, err := host.srv.GetVoting([]byte("A"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), voting.GetApprovalCount())
	require.Len(t, voting.GetActions(), 2)
	require.Equal(t, uint64(3), voting.GetHistoryLen())

	_, err = host.srv.GetVoting([]byte("C"))
	require.Equal(t, ErrNotFound, err)

	votings, err = host.srv.ListVotings()
	require.NoError(t, err)
	require.Len(t, votings, 2)

	root, err := host.srv.GetStateRoot(host.app.GetStore())
	require.NoError(t, err)

	header, err := host.app.GetLatestHeader()
	require.NoError(t, err)

	tree, err := host.app.GetStateTree(header)
	require.NoError(t, err)

	value, err := tree.Get([]byte(ledger.TableName))
	require.NoError(t, err)
	require.Equal(t, root, value)

	// The proof at the latest height binds the record to the header.
	info, err := host.srv.GetVotingInfo([]byte("A"))
	require.NoError(t, err)
	require.NoError(t, info.Verify(header.GetHash(), crypto.NewSha256Factory()))

	proven, err := info.GetVoting()
	require.NoError(t, err)
	require.Equal(t, voting, *proven)
	require.Len(t, info.GetHistory().GetTransactions(), 3)

	// An older height still proves the record as it was.
	info, err = host.srv.GetVotingInfoAt([]byte("A"), 1)
	require.NoError(t, err)
	require.NoError(t, info.Verify(nil, crypto.NewSha256Factory()))

	proven, err = info.GetVoting()
	require.NoError(t, err)
	require.Equal(t, uint64(2), proven.GetHistoryLen())
	require.Len(t, info.GetHistory().GetTransactions(), 2)

	info, err = host.srv.GetVotingInfoAt([]byte("B"), 1)
	require.NoError(t, err)
	require.NoError(t, info.Verify(nil, crypto.NewSha256Factory()))

	proven, err = info.GetVoting()
	require.NoError(t, err)
	require.Nil(t, proven)
	require.Nil(t, info.GetHistory())

	_, err = host.srv.GetVotingInfoAt([]byte("A"), 5)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no block at height 5")

	var noBlock proof.NoBlockError
	require.True(t, xerrors.As(err, &noBlock))
}

func TestService_SubmitTransaction(t *testing.T) {
	pool := &fakePool{}
	srv := NewService(nil, pool, ledger.NewFactory(), signed.NewTransactionFactory())

	tx := makeTx(t, 0, types.CreateVoting{SubjectKey: []byte("A"), DroneKey: []byte("B")}.Args()...)

	id, err := srv.SubmitTransaction(encodeTx(t, tx))
	require.NoError(t, err)
	require.Equal(t, tx.GetID(), id)
	require.Len(t, pool.txs, 1)

	_, err = srv.SubmitTransaction([]byte("garbage"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to decode tx")

	other, err := signed.NewTransaction(0, testSigner.GetPublicKey(),
		signed.WithArg(native.ContractArg, []byte("other")))
	require.NoError(t, err)

	_, err = srv.SubmitTx(other)
	require.EqualError(t, err, "unexpected contract 'other'")

	_, err = srv.SubmitTx(makeTx(t, 0))
	require.EqualError(t, err, "invalid command: 'voting:command' not found in tx arg")

	pool.err = fake.GetError()

	_, err = srv.SubmitTx(tx)
	require.EqualError(t, err, fake.Err("failed to add tx"))
	require.Len(t, pool.txs, 1)
}

// -----------------------------------------------------------------------------
// Utility functions

// testHost is a single node driving the ABCI application directly. The
// transactions submitted to the pool are finalized in the next block.
type testHost struct {
	app    *abci.Application
	srv    Service
	pool   *fakePool
	nonce  uint64
	height int64
}

func newTestHost(t *testing.T) *testHost {
	db, err := kv.New(filepath.Join(t.TempDir(), "voting.db"))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	fac := ledger.NewFactory()

	exec := native.NewExecution()
	RegisterContract(exec, NewContract(fac))

	val := simple.NewService(exec, signed.NewTransactionFactory())

	app, err := abci.NewApplication(val, db, signed.NewTransactionFactory())
	require.NoError(t, err)

	pool := &fakePool{}

	srv := NewService(app, pool, fac, signed.NewTransactionFactory())
	app.Register(srv)

	return &testHost{
		app:  app,
		srv:  srv,
		pool: pool,
	}
}

func (h *testHost) submit(t *testing.T, cmd types.Command) {
	tx := makeTx(t, h.nonce, cmd.Args()...)
	h.nonce++

	_, err := h.srv.SubmitTx(tx)
	require.NoError(t, err)
}

func (h *testHost) commit(t *testing.T) []*abcitypes.ExecTxResult {
	h.height++

	txs := make([][]byte, len(h.pool.txs))
	for i, tx := range h.pool.txs {
		txs[i] = encodeTx(t, tx)
	}

	h.pool.txs = nil

	ctx := context.Background()

	resp, err := h.app.FinalizeBlock(ctx, &abcitypes.RequestFinalizeBlock{Height: h.height, Txs: txs})
	require.NoError(t, err)

	_, err = h.app.Commit(ctx, &abcitypes.RequestCommit{})
	require.NoError(t, err)

	return resp.TxResults
}

type fakePool struct {
	txs []txn.Transaction
	err error
}

func (p *fakePool) Add(tx txn.Transaction) error {
	if p.err != nil {
		return p.err
	}

	p.txs = append(p.txs, tx)

	return nil
}

var _ Pool = (*fakePool)(nil)
