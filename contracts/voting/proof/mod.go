// Package proof implements the proof that binds a voting record, and the
// transactions that produced it, to the header of a block.
//
// The proof is made of four layers that are verified from the header down:
//   - the header of the block, which commits to the global state tree
//   - the path of the voting table in the global state tree
//   - the path of the subject in the map of the votings, which proves either
//     the exact bytes of the record or its absence
//   - when the record exists, the range proof of its whole history log and the
//     transactions referenced by the log
//
// The composer only gathers the evidence. The verification relies on nothing
// else than the header and the hash function.
package proof

import (
	"bytes"

	"go.dedis.ch/swarm/contracts/voting/ledger"
	"go.dedis.ch/swarm/contracts/voting/types"
	"go.dedis.ch/swarm/core/ordering"
	"go.dedis.ch/swarm/core/store/hashlist"
	"go.dedis.ch/swarm/core/store/hashtree"
	"go.dedis.ch/swarm/core/txn"
	"go.dedis.ch/swarm/crypto"
	"go.dedis.ch/swarm/serde"
	"go.dedis.ch/swarm/serde/json"
	"go.dedis.ch/swarm/serde/registry"
	"golang.org/x/xerrors"
)

var proofFormats = registry.NewSimpleRegistry()

// RegisterProofFormat registers the engine for the provided format.
func RegisterProofFormat(format serde.Format, engine serde.FormatEngine) {
	proofFormats.Register(format, engine)
}

// History is the evidence of the history log of a voting.
type History struct {
	proof        hashlist.RangeProof
	transactions []txn.Transaction
}

// NewHistory creates the evidence of a history log from the range proof of the
// log and the transactions of its entries.
func NewHistory(proof hashlist.RangeProof, txs []txn.Transaction) History {
	return History{
		proof:        proof,
		transactions: txs,
	}
}

// GetProof returns the range proof of the log.
func (h History) GetProof() hashlist.RangeProof {
	return h.proof
}

// GetTransactions returns the transactions referenced by the entries of the
// log, in order.
func (h History) GetTransactions() []txn.Transaction {
	return append([]txn.Transaction{}, h.transactions...)
}

// VotingInfoProof is the proof of the content of a voting at a given block.
//
// - implements serde.Message
type VotingInfoProof struct {
	subject []byte
	header  ordering.Header
	table   hashtree.Path
	record  hashtree.Path
	history *History
}

// NewVotingInfoProof creates a proof from its layers. The history is nil when
// the record does not exist.
func NewVotingInfoProof(subject []byte, header ordering.Header, table, record hashtree.Path,
	history *History) VotingInfoProof {

	return VotingInfoProof{
		subject: subject,
		header:  header,
		table:   table,
		record:  record,
		history: history,
	}
}

// GetSubjectKey returns the key of the subject the proof is about.
func (p VotingInfoProof) GetSubjectKey() []byte {
	return append([]byte{}, p.subject...)
}

// GetHeader returns the header of the block the proof is bound to.
func (p VotingInfoProof) GetHeader() ordering.Header {
	return p.header
}

// GetTablePath returns the path of the voting table in the global state tree.
func (p VotingInfoProof) GetTablePath() hashtree.Path {
	return p.table
}

// GetRecordPath returns the path of the subject in the map of the votings.
func (p VotingInfoProof) GetRecordPath() hashtree.Path {
	return p.record
}

// GetHistory returns the evidence of the history log, or nil when the record
// does not exist.
func (p VotingInfoProof) GetHistory() *History {
	return p.history
}

// GetVoting returns the record proven by the proof, or nil if the proof is a
// proof of absence. The proof must be verified for the record to be trusted.
func (p VotingInfoProof) GetVoting() (*types.Voting, error) {
	value := p.record.GetValue()
	if value == nil {
		return nil, nil
	}

	voting, err := types.NewVotingFactory().VotingOf(json.NewContext(), value)
	if err != nil {
		return nil, xerrors.Errorf("malformed voting: %v", err)
	}

	return &voting, nil
}

// Verify returns nil if every layer of the proof is consistent with the header
// of the given digest. A nil digest trusts the header of the proof.
func (p VotingInfoProof) Verify(headerHash []byte, fac crypto.HashFactory) error {
	if p.header == nil || p.table == nil || p.record == nil {
		return xerrors.New("incomplete proof")
	}

	err := p.header.Verify(fac)
	if err != nil {
		return xerrors.Errorf("invalid header: %v", err)
	}

	if headerHash != nil && !bytes.Equal(headerHash, p.header.GetHash()) {
		return xerrors.Errorf("mismatch header %#x != %#x", p.header.GetHash(), headerHash)
	}

	if string(p.table.GetKey()) != ledger.TableName {
		return xerrors.Errorf("invalid table key '%s'", p.table.GetKey())
	}

	if !bytes.Equal(p.table.GetRoot(), p.header.GetRoot()) {
		return xerrors.Errorf("mismatch state root %#x != %#x",
			p.table.GetRoot(), p.header.GetRoot())
	}

	if p.table.GetValue() == nil {
		return xerrors.New("table not found in the state")
	}

	if !bytes.Equal(p.record.GetKey(), p.subject) {
		return xerrors.Errorf("mismatch record key %#x != %#x", p.record.GetKey(), p.subject)
	}

	if !bytes.Equal(p.record.GetRoot(), p.table.GetValue()) {
		return xerrors.Errorf("mismatch table root %#x != %#x",
			p.record.GetRoot(), p.table.GetValue())
	}

	voting, err := p.GetVoting()
	if err != nil {
		return err
	}

	if voting == nil {
		if p.history != nil {
			return xerrors.New("unexpected history for an absent voting")
		}

		return nil
	}

	if !bytes.Equal(voting.GetSubjectKey(), p.subject) {
		return xerrors.Errorf("mismatch voting subject %#x != %#x",
			voting.GetSubjectKey(), p.subject)
	}

	if p.history == nil {
		return xerrors.New("missing history")
	}

	err = p.history.verify(*voting)
	if err != nil {
		return xerrors.Errorf("invalid history: %v", err)
	}

	return nil
}

// Serialize implements serde.Message. It returns the data of the proof.
func (p VotingInfoProof) Serialize(ctx serde.Context) ([]byte, error) {
	format := proofFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, p)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode proof: %v", err)
	}

	return data, nil
}

func (h History) verify(voting types.Voting) error {
	n := voting.GetHistoryLen()

	if h.proof.GetStart() != 0 || h.proof.GetEnd() != n || h.proof.GetLen() != n {
		return xerrors.Errorf("range [%d, %d) of %d does not cover the %d entries",
			h.proof.GetStart(), h.proof.GetEnd(), h.proof.GetLen(), n)
	}

	entries := make([][]byte, len(h.transactions))

	for i, tx := range h.transactions {
		cmd, err := types.CommandOf(tx)
		if err != nil {
			return xerrors.Errorf("tx %#x: invalid command: %v", tx.GetID(), err)
		}

		if !bytes.Equal(cmd.GetSubjectKey(), voting.GetSubjectKey()) {
			return xerrors.Errorf("tx %#x is about another subject", tx.GetID())
		}

		entries[i] = tx.GetID()
	}

	err := h.proof.Verify(voting.GetHistoryRoot(), entries)
	if err != nil {
		return xerrors.Errorf("range proof: %v", err)
	}

	return nil
}

// Composer gathers the proofs of the votings from the committed state of the
// host.
type Composer struct {
	ordering ordering.Service
	ledgers  ledger.Factory
}

// NoBlockError is the error of a proof asked for a block that is not
// committed.
type NoBlockError struct {
	err error
}

// NewNoBlockError returns the error of a missing block with its cause.
func NewNoBlockError(err error) NoBlockError {
	return NoBlockError{err: err}
}

// Error implements error.
func (e NoBlockError) Error() string {
	return e.err.Error()
}

// NewComposer creates a composer over the ordering service.
func NewComposer(ord ordering.Service, fac ledger.Factory) Composer {
	return Composer{
		ordering: ord,
		ledgers:  fac,
	}
}

// ComposeProof returns the proof of the voting of the subject at the block of
// the given height. It fails if no block exists at that height.
func (c Composer) ComposeProof(subject []byte, height uint64) (VotingInfoProof, error) {
	header, err := c.ordering.GetHeader(height)
	if err != nil {
		return VotingInfoProof{}, NewNoBlockError(xerrors.Errorf("no block at height %d: %v", height, err))
	}

	tree, err := c.ordering.GetStateTree(header)
	if err != nil {
		return VotingInfoProof{}, xerrors.Errorf("failed to open state: %v", err)
	}

	table, err := tree.GetPath([]byte(ledger.TableName))
	if err != nil {
		return VotingInfoProof{}, xerrors.Errorf("failed to prove table: %v", err)
	}

	ldg, err := c.ledgers.Open(c.ordering.GetStore(), table.GetValue())
	if err != nil {
		return VotingInfoProof{}, xerrors.Errorf("failed to open ledger: %v", err)
	}

	record, err := ldg.GetPath(subject)
	if err != nil {
		return VotingInfoProof{}, xerrors.Errorf("failed to prove voting: %v", err)
	}

	proof := NewVotingInfoProof(subject, header, table, record, nil)

	voting, err := proof.GetVoting()
	if err != nil {
		return VotingInfoProof{}, err
	}

	if voting == nil {
		return proof, nil
	}

	history, err := c.composeHistory(ldg, subject, voting.GetHistoryLen())
	if err != nil {
		return VotingInfoProof{}, xerrors.Errorf("history: %v", err)
	}

	proof.history = &history

	return proof, nil
}

func (c Composer) composeHistory(ldg *ledger.Ledger, subject []byte, n uint64) (History, error) {
	list, err := ldg.History(subject)
	if err != nil {
		return History{}, err
	}

	rp, err := list.ProveRange(0, n, n)
	if err != nil {
		return History{}, xerrors.Errorf("failed to prove range: %v", err)
	}

	txs := make([]txn.Transaction, n)

	for i := uint64(0); i < n; i++ {
		id, err := list.Get(i)
		if err != nil {
			return History{}, xerrors.Errorf("failed to read entry: %v", err)
		}

		txs[i], err = c.ordering.GetTransaction(id)
		if err != nil {
			return History{}, xerrors.Errorf("failed to resolve tx %#x: %v", id, err)
		}
	}

	return NewHistory(rp, txs), nil
}

// Factory is the factory to deserialize the proofs.
//
// - implements serde.Factory
type Factory struct {
	headers ordering.HeaderFactory
	paths   serde.Factory
	ranges  serde.Factory
	txs     txn.Factory
}

// NewFactory returns a factory of proofs. The path and range proof factories
// must recompute the roots with the hash function of the host.
func NewFactory(headers ordering.HeaderFactory, paths, ranges serde.Factory, txs txn.Factory) Factory {
	return Factory{
		headers: headers,
		paths:   paths,
		ranges:  ranges,
		txs:     txs,
	}
}

// Deserialize implements serde.Factory. It returns the proof of the data,
// otherwise an error.
func (f Factory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.ProofOf(ctx, data)
}

// ProofOf returns the proof of the data, otherwise an error.
func (f Factory) ProofOf(ctx serde.Context, data []byte) (VotingInfoProof, error) {
	format := proofFormats.Get(ctx.GetFormat())

	ctx = serde.WithFactory(ctx, HeaderKey{}, f.headers)
	ctx = serde.WithFactory(ctx, PathKey{}, f.paths)
	ctx = serde.WithFactory(ctx, RangeKey{}, f.ranges)
	ctx = serde.WithFactory(ctx, TxKey{}, f.txs)

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return VotingInfoProof{}, xerrors.Errorf("format failed: %v", err)
	}

	proof, ok := msg.(VotingInfoProof)
	if !ok {
		return VotingInfoProof{}, xerrors.Errorf("invalid proof of type '%T'", msg)
	}

	return proof, nil
}
