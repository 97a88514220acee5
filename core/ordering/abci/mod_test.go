package abci

import (
	"context"
	"encoding/binary"
	"path/filepath"
	"testing"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/swarm/core/execution"
	"go.dedis.ch/swarm/core/execution/native"
	"go.dedis.ch/swarm/core/ordering"
	"go.dedis.ch/swarm/core/store"
	"go.dedis.ch/swarm/core/store/kv"
	"go.dedis.ch/swarm/core/txn"
	"go.dedis.ch/swarm/core/txn/signed"
	_ "go.dedis.ch/swarm/core/txn/signed/json"
	"go.dedis.ch/swarm/core/validation"
	"go.dedis.ch/swarm/core/validation/simple"
	_ "go.dedis.ch/swarm/core/validation/simple/json"
	"go.dedis.ch/swarm/crypto"
	"go.dedis.ch/swarm/crypto/ed25519"
	"go.dedis.ch/swarm/serde/json"
	"golang.org/x/xerrors"
)

func TestApplication_Scenario(t *testing.T) {
	db := makeDB(t)
	defer db.Close()

	app, err := NewApplication(makeValidation(), db, signed.NewTransactionFactory())
	require.NoError(t, err)

	app.Register(testProvider{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	evts := app.Watch(ctx)

	info, err := app.Info(ctx, &abcitypes.RequestInfo{})
	require.NoError(t, err)
	require.Equal(t, int64(0), info.LastBlockHeight)
	require.Empty(t, info.LastBlockAppHash)

	signer := ed25519.NewSigner()

	tx0 := makeTx(t, signer, 0, "pong")

	check, err := app.CheckTx(ctx, &abcitypes.RequestCheckTx{Tx: encodeTx(t, tx0)})
	require.NoError(t, err)
	require.Equal(t, abcitypes.CodeTypeOK, check.Code)

	check, err = app.CheckTx(ctx, &abcitypes.RequestCheckTx{Tx: []byte("garbage")})
	require.NoError(t, err)
	require.Equal(t, CodeMalformed, check.Code)
	require.Equal(t, Codespace, check.Codespace)

	// The block contains a valid transaction, an undecodable one and one
	// rejected by the contract.
	resp, err := app.FinalizeBlock(ctx, &abcitypes.RequestFinalizeBlock{
		Height: 1,
		Txs: [][]byte{
			encodeTx(t, tx0),
			[]byte("garbage"),
			encodeTx(t, makeTx(t, signer, 1, "")),
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.TxResults, 3)
	require.Equal(t, abcitypes.CodeTypeOK, resp.TxResults[0].Code)
	require.Equal(t, CodeMalformed, resp.TxResults[1].Code)
	require.Equal(t, uint32(8), resp.TxResults[2].Code)
	require.Equal(t, "test", resp.TxResults[2].Codespace)
	require.NotEmpty(t, resp.AppHash)

	// Nothing is visible before the commit.
	_, err = app.GetLatestHeader()
	require.EqualError(t, err, "no block committed yet")

	_, err = app.Commit(ctx, &abcitypes.RequestCommit{})
	require.NoError(t, err)

	evt := <-evts
	require.Equal(t, uint64(1), evt.Index)
	require.Len(t, evt.Transactions, 2)

	header, err := app.GetLatestHeader()
	require.NoError(t, err)
	require.Equal(t, resp.AppHash, header.GetRoot())
	require.NoError(t, header.Verify(crypto.NewSha256Factory()))

	tree, err := app.GetStateTree(header)
	require.NoError(t, err)

	value, err := tree.Get([]byte("test"))
	require.NoError(t, err)
	require.Equal(t, []byte("pong"), value)

	stored, err := app.GetTransaction(tx0.GetID())
	require.NoError(t, err)
	require.Equal(t, tx0.GetID(), stored.GetID())

	// The nonce of the first transaction is now used.
	check, err = app.CheckTx(ctx, &abcitypes.RequestCheckTx{Tx: encodeTx(t, tx0)})
	require.NoError(t, err)
	require.Equal(t, CodeInvalidNonce, check.Code)

	query, err := app.Query(ctx, &abcitypes.RequestQuery{
		Path: "/nonce",
		Data: marshalKey(t, signer.GetPublicKey()),
	})
	require.NoError(t, err)
	require.Equal(t, uint64(2), binary.LittleEndian.Uint64(query.Value))

	query, err = app.Query(ctx, &abcitypes.RequestQuery{Path: "/header"})
	require.NoError(t, err)
	require.Equal(t, int64(1), query.Height)

	decoded, err := NewHeaderFactory(crypto.NewSha256Factory()).HeaderOf(json.NewContext(), query.Value)
	require.NoError(t, err)
	require.Equal(t, header.GetHash(), decoded.GetHash())

	// The application restarts from the database.
	app, err = NewApplication(makeValidation(), db, signed.NewTransactionFactory())
	require.NoError(t, err)

	info, err = app.Info(ctx, &abcitypes.RequestInfo{})
	require.NoError(t, err)
	require.Equal(t, int64(1), info.LastBlockHeight)
	require.Equal(t, resp.AppHash, info.LastBlockAppHash)
}

func TestApplication_UnknownContract(t *testing.T) {
	db := makeDB(t)
	defer db.Close()

	exec := native.NewExecution()
	exec.Set("test", testContract{})

	val := simple.NewService(exec, signed.NewTransactionFactory())

	app, err := NewApplication(val, db, signed.NewTransactionFactory(), WithTxCheck(exec.Check))
	require.NoError(t, err)

	ctx := context.Background()
	signer := ed25519.NewSigner()

	good := makeTx(t, signer, 0, "pong")

	unknown, err := signed.NewTransaction(1, signer.GetPublicKey(),
		signed.WithArg(native.ContractArg, []byte("bogus")))
	require.NoError(t, err)
	require.NoError(t, unknown.Sign(signer))

	check, err := app.CheckTx(ctx, &abcitypes.RequestCheckTx{Tx: encodeTx(t, unknown)})
	require.NoError(t, err)
	require.Equal(t, CodeMalformed, check.Code)
	require.Equal(t, "invalid tx: unknown contract 'bogus'", check.Log)

	// The transaction can still be decided by a block when it reaches the
	// engine through another node, and only that transaction is refused.
	resp, err := app.FinalizeBlock(ctx, &abcitypes.RequestFinalizeBlock{
		Height: 1,
		Txs:    [][]byte{encodeTx(t, good), encodeTx(t, unknown)},
	})
	require.NoError(t, err)
	require.Len(t, resp.TxResults, 2)
	require.Equal(t, abcitypes.CodeTypeOK, resp.TxResults[0].Code)
	require.Equal(t, CodeRejected, resp.TxResults[1].Code)
	require.Contains(t, resp.TxResults[1].Log, "unknown contract 'bogus'")

	_, err = app.Commit(ctx, &abcitypes.RequestCommit{})
	require.NoError(t, err)

	value, err := app.GetStore().Get([]byte("test:value"))
	require.NoError(t, err)
	require.Equal(t, []byte("pong"), value)
}

func TestApplication_New(t *testing.T) {
	db := makeDB(t)
	defer db.Close()

	_, err := NewApplication(makeValidation(), db, nil, WithCacheSize(-1))
	require.Error(t, err)
	require.Regexp(t, "^tx store: failed to create cache: ", err.Error())

	err = db.Update(func(tx kv.WritableTx) error {
		bucket, err := tx.GetBucketOrCreate(headerBucket)
		require.NoError(t, err)

		return bucket.Set(heightKey(1), []byte("[]"))
	})
	require.NoError(t, err)

	_, err = NewApplication(makeValidation(), db, nil)
	require.Error(t, err)
	require.Regexp(t, "^failed to load headers: malformed header: ", err.Error())
}

func TestApplication_FinalizeBlockFailures(t *testing.T) {
	db := makeDB(t)
	defer db.Close()

	app, err := NewApplication(badValidation{}, db, signed.NewTransactionFactory())
	require.NoError(t, err)

	ctx := context.Background()
	req := &abcitypes.RequestFinalizeBlock{Height: 1}

	_, err = app.FinalizeBlock(ctx, req)
	require.EqualError(t, err, "failed to validate: oops")

	app.validation = makeValidation()
	app.Register(testProvider{err: xerrors.New("oops")})

	_, err = app.FinalizeBlock(ctx, req)
	require.EqualError(t, err, "failed to update state: provider 'test': oops")

	_, err = app.Commit(ctx, &abcitypes.RequestCommit{})
	require.EqualError(t, err, "no block to commit")
}

func TestApplication_Query(t *testing.T) {
	db := makeDB(t)
	defer db.Close()

	app, err := NewApplication(makeValidation(), db, signed.NewTransactionFactory())
	require.NoError(t, err)

	ctx := context.Background()

	resp, err := app.Query(ctx, &abcitypes.RequestQuery{Path: "/unknown"})
	require.NoError(t, err)
	require.Equal(t, CodeUnknownQuery, resp.Code)
	require.Equal(t, "unknown path '/unknown'", resp.Log)

	resp, err = app.Query(ctx, &abcitypes.RequestQuery{Path: "/nonce", Data: []byte{1}})
	require.NoError(t, err)
	require.Equal(t, CodeMalformed, resp.Code)

	resp, err = app.Query(ctx, &abcitypes.RequestQuery{Path: "/header", Height: 3})
	require.NoError(t, err)
	require.Equal(t, CodeRejected, resp.Code)
	require.Equal(t, "header store: header at height 3 not found", resp.Log)

	resp, err = app.Query(ctx, &abcitypes.RequestQuery{
		Path: "/nonce",
		Data: marshalKey(t, ed25519.NewSigner().GetPublicKey()),
	})
	require.NoError(t, err)
	require.Equal(t, uint64(0), binary.LittleEndian.Uint64(resp.Value))

	require.NoError(t, app.Close())
}

// -----------------------------------------------------------------------------
// Utility functions

func makeDB(t *testing.T) kv.DB {
	db, err := kv.New(filepath.Join(t.TempDir(), "abci.db"))
	require.NoError(t, err)

	return db
}

func makeValidation() validation.Service {
	exec := native.NewExecution()
	exec.Set("test", testContract{})

	return simple.NewService(exec, signed.NewTransactionFactory())
}

func makeTx(t *testing.T, signer crypto.Signer, nonce uint64, value string) txn.Transaction {
	tx, err := signed.NewTransaction(nonce, signer.GetPublicKey(),
		signed.WithArg(native.ContractArg, []byte("test")),
		signed.WithArg("value", []byte(value)))
	require.NoError(t, err)

	require.NoError(t, tx.Sign(signer))

	return tx
}

func encodeTx(t *testing.T, tx txn.Transaction) []byte {
	data, err := tx.Serialize(json.NewContext())
	require.NoError(t, err)

	return data
}

func marshalKey(t *testing.T, pk crypto.PublicKey) []byte {
	data, err := pk.MarshalBinary()
	require.NoError(t, err)

	return data
}

// testContract writes the value argument under a fixed key. A missing value
// is rejected with a code.
type testContract struct{}

func (testContract) Execute(snap store.Snapshot, step execution.Step) error {
	value := step.Current.GetArg("value")
	if len(value) == 0 {
		return testError{}
	}

	return snap.Set([]byte("test:value"), value)
}

type testError struct{}

func (testError) Error() string {
	return "value is missing"
}

func (testError) Codespace() string {
	return "test"
}

func (testError) ErrorCode() uint32 {
	return 7
}

type testProvider struct {
	err error
}

func (p testProvider) GetName() string {
	return "test"
}

func (p testProvider) GetStateRoot(rd store.Readable) ([]byte, error) {
	if p.err != nil {
		return nil, p.err
	}

	return rd.Get([]byte("test:value"))
}

type badValidation struct {
	validation.Service
}

func (badValidation) Validate(store.Snapshot, []txn.Transaction) (validation.Result, error) {
	return nil, xerrors.New("oops")
}

var (
	_ ordering.Service      = (*Application)(nil)
	_ abcitypes.Application = (*Application)(nil)
	_ execution.Coder       = testError{}
)
