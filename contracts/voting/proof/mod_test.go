package proof

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/swarm/contracts/voting/ledger"
	"go.dedis.ch/swarm/contracts/voting/types"
	"go.dedis.ch/swarm/core/ordering"
	"go.dedis.ch/swarm/core/ordering/abci"
	"go.dedis.ch/swarm/core/store"
	"go.dedis.ch/swarm/core/store/hashlist"
	"go.dedis.ch/swarm/core/store/hashlist/binlist"
	"go.dedis.ch/swarm/core/store/hashtree"
	"go.dedis.ch/swarm/core/store/hashtree/binprefix"
	"go.dedis.ch/swarm/core/store/mem"
	"go.dedis.ch/swarm/core/store/prefixed"
	"go.dedis.ch/swarm/core/txn"
	"go.dedis.ch/swarm/core/txn/signed"
	_ "go.dedis.ch/swarm/core/txn/signed/json"
	"go.dedis.ch/swarm/crypto"
	"go.dedis.ch/swarm/crypto/ed25519"
	"go.dedis.ch/swarm/internal/testing/fake"
	"go.dedis.ch/swarm/serde/json"
	"golang.org/x/xerrors"
)

var hashFac = crypto.NewSha256Factory()

func TestComposer_ComposeProof(t *testing.T) {
	ord := newFakeOrdering(t)
	ord.create(t, []byte("A"), []byte("drone"))
	ord.vote(t, []byte("A"), []byte("v1"), true)
	ord.vote(t, []byte("A"), []byte("v2"), false)
	ord.commit(t)

	composer := NewComposer(ord, ledger.NewFactory())

	p, err := composer.ComposeProof([]byte("A"), 1)
	require.NoError(t, err)
	require.NoError(t, p.Verify(ord.headers[0].GetHash(), hashFac))
	require.Equal(t, []byte("A"), p.GetSubjectKey())
	require.Equal(t, ord.headers[0], p.GetHeader())
	require.Equal(t, []byte(ledger.TableName), p.GetTablePath().GetKey())
	require.NotNil(t, p.GetRecordPath().GetValue())

	voting, err := p.GetVoting()
	require.NoError(t, err)
	require.Equal(t, uint64(1), voting.GetApprovalCount())
	require.Equal(t, uint64(3), voting.GetHistoryLen())

	txs := p.GetHistory().GetTransactions()
	require.Len(t, txs, 3)

	for i, tx := range txs {
		require.Equal(t, ord.ids[i], tx.GetID())
	}

	p, err = composer.ComposeProof([]byte("B"), 1)
	require.NoError(t, err)
	require.NoError(t, p.Verify(nil, hashFac))
	require.Nil(t, p.GetRecordPath().GetValue())
	require.Nil(t, p.GetHistory())

	_, err = composer.ComposeProof([]byte("A"), 2)
	require.EqualError(t, err, fake.Err("no block at height 2"))
	require.IsType(t, NoBlockError{}, err)

	ord.errTx = fake.GetError()

	_, err = composer.ComposeProof([]byte("A"), 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to resolve tx")
}

func TestComposer_ProofAtPreviousHeight(t *testing.T) {
	ord := newFakeOrdering(t)
	ord.create(t, []byte("A"), []byte("drone"))
	ord.commit(t)

	ord.vote(t, []byte("A"), []byte("v1"), true)
	ord.create(t, []byte("B"), []byte("drone"))
	ord.commit(t)

	composer := NewComposer(ord, ledger.NewFactory())

	p, err := composer.ComposeProof([]byte("A"), 1)
	require.NoError(t, err)
	require.NoError(t, p.Verify(ord.headers[0].GetHash(), hashFac))
	require.Len(t, p.GetHistory().GetTransactions(), 1)

	p, err = composer.ComposeProof([]byte("B"), 1)
	require.NoError(t, err)
	require.NoError(t, p.Verify(ord.headers[0].GetHash(), hashFac))
	require.Nil(t, p.GetHistory())

	p, err = composer.ComposeProof([]byte("A"), 2)
	require.NoError(t, err)
	require.NoError(t, p.Verify(ord.headers[1].GetHash(), hashFac))
	require.Len(t, p.GetHistory().GetTransactions(), 2)

	// A proof of an older height does not verify against a newer header.
	p, err = composer.ComposeProof([]byte("A"), 1)
	require.NoError(t, err)
	require.Error(t, p.Verify(ord.headers[1].GetHash(), hashFac))
}

func TestVotingInfoProof_Verify(t *testing.T) {
	ord := newFakeOrdering(t)
	ord.create(t, []byte("A"), []byte("drone"))
	ord.vote(t, []byte("A"), []byte("v1"), true)
	ord.create(t, []byte("B"), []byte("drone"))
	ord.commit(t)

	composer := NewComposer(ord, ledger.NewFactory())

	valid, err := composer.ComposeProof([]byte("A"), 1)
	require.NoError(t, err)

	other, err := composer.ComposeProof([]byte("B"), 1)
	require.NoError(t, err)

	absent, err := composer.ComposeProof([]byte("C"), 1)
	require.NoError(t, err)

	err = VotingInfoProof{}.Verify(nil, hashFac)
	require.EqualError(t, err, "incomplete proof")

	err = valid.Verify([]byte{1, 2, 3}, hashFac)
	require.EqualError(t, err,
		xerrors.Errorf("mismatch header %#x != 0x010203", valid.header.GetHash()).Error())

	p := valid
	p.header, err = abci.NewHeader(hashFac, 1, []byte("root"))
	require.NoError(t, err)
	err = p.Verify(nil, hashFac)
	require.Error(t, err)
	require.Contains(t, err.Error(), "mismatch state root")

	p = valid
	p.table = valid.record
	err = p.Verify(nil, hashFac)
	require.EqualError(t, err, "invalid table key 'A'")

	p = valid
	p.record = other.record
	err = p.Verify(nil, hashFac)
	require.Error(t, err)
	require.Contains(t, err.Error(), "mismatch record key")

	p = other
	p.subject = []byte("A")
	p.record = valid.record
	p.history = other.history
	err = p.Verify(nil, hashFac)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid history: range [0, 1) of 1 does not cover the 2 entries")

	p = valid
	p.history = nil
	err = p.Verify(nil, hashFac)
	require.EqualError(t, err, "missing history")

	p = absent
	p.history = valid.history
	err = p.Verify(nil, hashFac)
	require.EqualError(t, err, "unexpected history for an absent voting")

	// The history must reference the transactions of the record.
	p = valid
	history := *valid.history
	history.transactions = []txn.Transaction{history.transactions[1], history.transactions[0]}
	p.history = &history
	err = p.Verify(nil, hashFac)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid history: range proof")

	p = valid
	history = *valid.history
	history.transactions = []txn.Transaction{history.transactions[0], other.history.transactions[0]}
	p.history = &history
	err = p.Verify(nil, hashFac)
	require.Error(t, err)
	require.Contains(t, err.Error(), "is about another subject")

	p = valid
	history = *valid.history
	history.transactions = []txn.Transaction{history.transactions[0], makeTx(t, 99)}
	p.history = &history
	err = p.Verify(nil, hashFac)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid command")
}

func TestVotingInfoProof_Serialize(t *testing.T) {
	ord := newFakeOrdering(t)
	ord.create(t, []byte("A"), []byte("drone"))
	ord.vote(t, []byte("A"), []byte("v1"), true)
	ord.commit(t)

	composer := NewComposer(ord, ledger.NewFactory())

	fac := NewFactory(
		abci.NewHeaderFactory(hashFac),
		binprefix.NewPathFactory(hashFac),
		binlist.NewRangeProofFactory(hashFac),
		signed.NewTransactionFactory(),
	)

	ctx := json.NewContext()

	for _, subject := range []string{"A", "B"} {
		p, err := composer.ComposeProof([]byte(subject), 1)
		require.NoError(t, err)

		data, err := p.Serialize(ctx)
		require.NoError(t, err)

		decoded, err := fac.Deserialize(ctx, data)
		require.NoError(t, err)
		require.IsType(t, VotingInfoProof{}, decoded)

		proof := decoded.(VotingInfoProof)
		require.NoError(t, proof.Verify(ord.headers[0].GetHash(), hashFac))

		expected, err := p.GetVoting()
		require.NoError(t, err)

		actual, err := proof.GetVoting()
		require.NoError(t, err)
		require.Equal(t, expected, actual)
	}

	p, err := composer.ComposeProof([]byte("A"), 1)
	require.NoError(t, err)

	_, err = p.Serialize(fake.NewBadContext())
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to encode proof")

	_, err = fac.ProofOf(ctx, []byte("garbage"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "format failed: failed to unmarshal")

	_, err = fac.ProofOf(fake.NewBadContext(), []byte("{}"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "format failed")
}

// -----------------------------------------------------------------------------
// Utility functions

var testSigner = ed25519.NewSigner()

func makeTx(t *testing.T, nonce uint64, args ...txn.Arg) txn.Transaction {
	opts := make([]signed.TransactionOption, len(args))
	for i, arg := range args {
		opts[i] = signed.WithArg(arg.Key, arg.Value)
	}

	tx, err := signed.NewTransaction(nonce, testSigner.GetPublicKey(), opts...)
	require.NoError(t, err)

	require.NoError(t, tx.Sign(testSigner))

	return tx
}

// fakeOrdering is a host that applies the commands of the voting contract
// directly on the ledger and commits a header on demand.
type fakeOrdering struct {
	ordering.Service

	snap    *mem.Snapshot
	ledgers ledger.Factory
	trees   binprefix.Factory
	headers []ordering.Header
	txs     map[string]txn.Transaction
	ids     [][]byte
	nonce   uint64
	errTx   error
}

func newFakeOrdering(t *testing.T) *fakeOrdering {
	return &fakeOrdering{
		snap:    mem.NewSnapshot(nil),
		ledgers: ledger.NewFactory(),
		trees:   binprefix.NewFactory(binprefix.Nonce{}),
		txs:     make(map[string]txn.Transaction),
	}
}

func (o *fakeOrdering) apply(t *testing.T, cmd types.Command,
	fn func(*ledger.Ledger, hashlist.Head)) {

	tx := makeTx(t, o.nonce, cmd.Args()...)
	o.nonce++

	o.txs[string(tx.GetID())] = tx
	o.ids = append(o.ids, tx.GetID())

	ldg, err := o.ledgers.OpenWritable(o.snap)
	require.NoError(t, err)

	head, err := ldg.AppendHistory(cmd.GetSubjectKey(), tx.GetID())
	require.NoError(t, err)

	fn(ldg, head)
}

func (o *fakeOrdering) create(t *testing.T, subject, drone []byte) {
	cmd := types.CreateVoting{SubjectKey: subject, DroneKey: drone}

	o.apply(t, cmd, func(ldg *ledger.Ledger, head hashlist.Head) {
		voting := types.NewVoting(subject, drone, types.WithHistory(head))
		require.NoError(t, ldg.Put(subject, voting))
	})
}

func (o *fakeOrdering) vote(t *testing.T, subject, validator []byte, decision bool) {
	cmd := types.CastVote{SubjectKey: subject, ValidatorKey: validator, Decision: decision}

	o.apply(t, cmd, func(ldg *ledger.Ledger, head hashlist.Head) {
		current, err := ldg.Lookup(subject)
		require.NoError(t, err)

		require.NoError(t, ldg.Put(subject, current.Vote(cmd.ToAction(), head)))
	})
}

func (o *fakeOrdering) commit(t *testing.T) {
	root, err := o.ledgers.Root(o.snap)
	require.NoError(t, err)

	state := prefixed.NewSnapshot("state", o.snap)

	var prev []byte
	if len(o.headers) > 0 {
		prev = o.headers[len(o.headers)-1].GetRoot()
	}

	tree, err := o.trees.OpenWritable(state, prev)
	require.NoError(t, err)

	require.NoError(t, tree.Set([]byte(ledger.TableName), root))

	header, err := abci.NewHeader(hashFac, uint64(len(o.headers)+1), tree.GetRoot())
	require.NoError(t, err)

	o.headers = append(o.headers, header)
}

func (o *fakeOrdering) GetHeader(index uint64) (ordering.Header, error) {
	if index == 0 || index > uint64(len(o.headers)) {
		return nil, fake.GetError()
	}

	return o.headers[index-1], nil
}

func (o *fakeOrdering) GetStore() store.Readable {
	return o.snap
}

func (o *fakeOrdering) GetStateTree(header ordering.Header) (hashtree.Tree, error) {
	return o.trees.Open(prefixed.NewReadable("state", o.snap), header.GetRoot())
}

func (o *fakeOrdering) GetTransaction(id []byte) (txn.Transaction, error) {
	if o.errTx != nil {
		return nil, o.errTx
	}

	return o.txs[string(id)], nil
}
