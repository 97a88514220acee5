package proof

import (
	"encoding/json"

	"go.dedis.ch/swarm/core/ordering"
	"go.dedis.ch/swarm/core/store/hashlist"
	"go.dedis.ch/swarm/core/store/hashtree"
	"go.dedis.ch/swarm/core/txn"
	"go.dedis.ch/swarm/serde"
	"golang.org/x/xerrors"
)

func init() {
	RegisterProofFormat(serde.FormatJSON, proofFormat{})
}

// HistoryJSON is the JSON message of the evidence of a history log.
type HistoryJSON struct {
	Proof        json.RawMessage
	Transactions []json.RawMessage
}

// VotingInfoProofJSON is the JSON message of a proof. The roots of the paths
// are not sent as they are recomputed when decoding.
type VotingInfoProofJSON struct {
	Subject []byte
	Header  json.RawMessage
	Table   json.RawMessage
	Record  json.RawMessage
	History *HistoryJSON `json:",omitempty"`
}

// HeaderKey is the key of the header factory.
type HeaderKey struct{}

// PathKey is the key of the factory of the paths of the state tree and of the
// map of the votings.
type PathKey struct{}

// RangeKey is the key of the range proof factory.
type RangeKey struct{}

// TxKey is the key of the transaction factory.
type TxKey struct{}

// proofFormat is the engine to encode and decode proofs in JSON.
//
// - implements serde.FormatEngine
type proofFormat struct{}

// Encode implements serde.FormatEngine. It returns the JSON data of the proof.
func (f proofFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	p, ok := msg.(VotingInfoProof)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	if p.header == nil || p.table == nil || p.record == nil {
		return nil, xerrors.New("incomplete proof")
	}

	header, err := p.header.Serialize(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to serialize header: %v", err)
	}

	table, err := serializePath(ctx, p.table)
	if err != nil {
		return nil, xerrors.Errorf("table: %v", err)
	}

	record, err := serializePath(ctx, p.record)
	if err != nil {
		return nil, xerrors.Errorf("record: %v", err)
	}

	m := VotingInfoProofJSON{
		Subject: p.subject,
		Header:  header,
		Table:   table,
		Record:  record,
	}

	if p.history != nil {
		m.History, err = encodeHistory(ctx, *p.history)
		if err != nil {
			return nil, xerrors.Errorf("history: %v", err)
		}
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine. It returns the proof of the JSON data.
func (f proofFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := VotingInfoProofJSON{}
	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal: %v", err)
	}

	headerFac, ok := ctx.GetFactory(HeaderKey{}).(ordering.HeaderFactory)
	if !ok {
		return nil, xerrors.Errorf("invalid header factory '%T'", ctx.GetFactory(HeaderKey{}))
	}

	header, err := headerFac.HeaderOf(ctx, m.Header)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode header: %v", err)
	}

	table, err := decodePath(ctx, m.Table)
	if err != nil {
		return nil, xerrors.Errorf("table: %v", err)
	}

	record, err := decodePath(ctx, m.Record)
	if err != nil {
		return nil, xerrors.Errorf("record: %v", err)
	}

	p := NewVotingInfoProof(m.Subject, header, table, record, nil)

	if m.History != nil {
		history, err := decodeHistory(ctx, *m.History)
		if err != nil {
			return nil, xerrors.Errorf("history: %v", err)
		}

		p.history = &history
	}

	return p, nil
}

func serializePath(ctx serde.Context, path hashtree.Path) ([]byte, error) {
	msg, ok := path.(serde.Message)
	if !ok {
		return nil, xerrors.Errorf("path '%T' is not a message", path)
	}

	data, err := msg.Serialize(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to serialize path: %v", err)
	}

	return data, nil
}

func decodePath(ctx serde.Context, data []byte) (hashtree.Path, error) {
	fac := ctx.GetFactory(PathKey{})
	if fac == nil {
		return nil, xerrors.New("missing path factory")
	}

	msg, err := fac.Deserialize(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode path: %v", err)
	}

	path, ok := msg.(hashtree.Path)
	if !ok {
		return nil, xerrors.Errorf("invalid path of type '%T'", msg)
	}

	return path, nil
}

func encodeHistory(ctx serde.Context, h History) (*HistoryJSON, error) {
	rp, ok := h.proof.(serde.Message)
	if !ok {
		return nil, xerrors.Errorf("range proof '%T' is not a message", h.proof)
	}

	proof, err := rp.Serialize(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to serialize range proof: %v", err)
	}

	txs := make([]json.RawMessage, len(h.transactions))
	for i, tx := range h.transactions {
		txs[i], err = tx.Serialize(ctx)
		if err != nil {
			return nil, xerrors.Errorf("failed to serialize tx: %v", err)
		}
	}

	m := &HistoryJSON{
		Proof:        proof,
		Transactions: txs,
	}

	return m, nil
}

func decodeHistory(ctx serde.Context, m HistoryJSON) (History, error) {
	fac := ctx.GetFactory(RangeKey{})
	if fac == nil {
		return History{}, xerrors.New("missing range proof factory")
	}

	msg, err := fac.Deserialize(ctx, m.Proof)
	if err != nil {
		return History{}, xerrors.Errorf("failed to decode range proof: %v", err)
	}

	rp, ok := msg.(hashlist.RangeProof)
	if !ok {
		return History{}, xerrors.Errorf("invalid range proof of type '%T'", msg)
	}

	txFac, ok := ctx.GetFactory(TxKey{}).(txn.Factory)
	if !ok {
		return History{}, xerrors.Errorf("invalid tx factory '%T'", ctx.GetFactory(TxKey{}))
	}

	txs := make([]txn.Transaction, len(m.Transactions))
	for i, data := range m.Transactions {
		txs[i], err = txFac.TransactionOf(ctx, data)
		if err != nil {
			return History{}, xerrors.Errorf("failed to decode tx: %v", err)
		}
	}

	return NewHistory(rp, txs), nil
}
