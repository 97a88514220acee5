package simple

import (
	"encoding/binary"
	"io"

	"go.dedis.ch/swarm/core/txn"
	"go.dedis.ch/swarm/serde"
	"go.dedis.ch/swarm/serde/registry"
	"golang.org/x/xerrors"
)

// statusLen is the size of the accepted flag followed by the code.
const statusLen = 1 + 4

var txResFormats = registry.NewSimpleRegistry()

// RegisterTransactionResultFormat sets the engine used for the transaction
// results in the given format.
func RegisterTransactionResultFormat(f serde.Format, e serde.FormatEngine) {
	txResFormats.Register(f, e)
}

// TransactionResult tells whether a transaction of a block has been accepted
// by the contracts, and why not when it has been refused.
//
// - implements validation.TransactionResult
type TransactionResult struct {
	tx        txn.Transaction
	accepted  bool
	reason    string
	codespace string
	code      uint32
}

// TransactionResultOption changes a transaction result when it is created.
type TransactionResultOption func(*TransactionResult)

// WithCode attaches the code of a refusal, scoped by its codespace.
func WithCode(codespace string, code uint32) TransactionResultOption {
	return func(res *TransactionResult) {
		res.codespace, res.code = codespace, code
	}
}

// NewTransactionResult returns the result of the transaction. The reason is
// expected to be empty for an accepted one.
func NewTransactionResult(tx txn.Transaction, accepted bool, reason string,
	opts ...TransactionResultOption) TransactionResult {

	res := TransactionResult{tx: tx, accepted: accepted, reason: reason}
	for _, apply := range opts {
		apply(&res)
	}

	return res
}

// GetTransaction implements validation.TransactionResult.
func (res TransactionResult) GetTransaction() txn.Transaction {
	return res.tx
}

// GetStatus implements validation.TransactionResult.
func (res TransactionResult) GetStatus() (bool, string) {
	return res.accepted, res.reason
}

// GetCode implements validation.TransactionResult. Both values are zero for an
// accepted transaction.
func (res TransactionResult) GetCode() (string, uint32) {
	return res.codespace, res.code
}

// fingerprint writes the transaction, then its status as the flag, the code in
// little-endian and the codespace.
func (res TransactionResult) fingerprint(w io.Writer) error {
	err := res.tx.Fingerprint(w)
	if err != nil {
		return xerrors.Errorf("couldn't fingerprint tx: %v", err)
	}

	buf := make([]byte, statusLen, statusLen+len(res.codespace))
	if res.accepted {
		buf[0] = 1
	}

	binary.LittleEndian.PutUint32(buf[1:statusLen], res.code)
	buf = append(buf, res.codespace...)

	_, err = w.Write(buf)
	if err != nil {
		return xerrors.Errorf("couldn't write status: %v", err)
	}

	return nil
}

// Serialize implements serde.Message.
func (res TransactionResult) Serialize(ctx serde.Context) ([]byte, error) {
	data, err := txResFormats.Get(ctx.GetFormat()).Encode(ctx, res)
	if err != nil {
		return nil, xerrors.Errorf("encoding failed: %v", err)
	}

	return data, nil
}

// TransactionKey is the key of the transaction factory in the serde context of
// a transaction result.
type TransactionKey struct{}

// TransactionResultFactory decodes transaction results with the transaction
// factory it holds.
//
// - implements serde.Factory
type TransactionResultFactory struct {
	txFac txn.Factory
}

// NewTransactionResultFactory returns a factory of transaction results.
func NewTransactionResultFactory(f txn.Factory) TransactionResultFactory {
	return TransactionResultFactory{txFac: f}
}

// Deserialize implements serde.Factory.
func (f TransactionResultFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	ctx = serde.WithFactory(ctx, TransactionKey{}, f.txFac)

	msg, err := txResFormats.Get(ctx.GetFormat()).Decode(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("decoding failed: %v", err)
	}

	return msg, nil
}
