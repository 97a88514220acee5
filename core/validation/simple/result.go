package simple

import (
	"io"

	"go.dedis.ch/swarm/core/txn"
	"go.dedis.ch/swarm/core/validation"
	"go.dedis.ch/swarm/serde"
	"go.dedis.ch/swarm/serde/registry"
	"golang.org/x/xerrors"
)

var resFormats = registry.NewSimpleRegistry()

// RegisterResultFormat sets the engine used for the block results in the given
// format.
func RegisterResultFormat(f serde.Format, e serde.FormatEngine) {
	resFormats.Register(f, e)
}

// Result gathers the results of the transactions of a block, in the order of
// the block.
//
// - implements validation.Result
type Result struct {
	txs []TransactionResult
}

// NewResult returns the result made of the transaction results.
func NewResult(results []TransactionResult) Result {
	return Result{txs: results}
}

// GetTransactionResults implements validation.Result.
func (r Result) GetTransactionResults() []validation.TransactionResult {
	list := make([]validation.TransactionResult, 0, len(r.txs))
	for _, txres := range r.txs {
		list = append(list, txres)
	}

	return list
}

// Fingerprint implements serde.Fingerprinter. Two results with the same
// transactions but a different outcome for one of them have different
// fingerprints.
func (r Result) Fingerprint(w io.Writer) error {
	for _, txres := range r.txs {
		err := txres.fingerprint(w)
		if err != nil {
			return err
		}
	}

	return nil
}

// Serialize implements serde.Message.
func (r Result) Serialize(ctx serde.Context) ([]byte, error) {
	data, err := resFormats.Get(ctx.GetFormat()).Encode(ctx, r)
	if err != nil {
		return nil, xerrors.Errorf("encoding failed: %v", err)
	}

	return data, nil
}

// ResultKey is the key of the transaction result factory in the serde context
// of a result.
type ResultKey struct{}

// ResultFactory decodes the results of the blocks.
//
// - implements validation.ResultFactory
type ResultFactory struct {
	txResFac serde.Factory
}

// NewResultFactory returns a factory of results decoding the transactions with
// the given factory.
func NewResultFactory(f txn.Factory) ResultFactory {
	return ResultFactory{txResFac: NewTransactionResultFactory(f)}
}

// Deserialize implements serde.Factory.
func (f ResultFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.ResultOf(ctx, data)
}

// ResultOf implements validation.ResultFactory.
func (f ResultFactory) ResultOf(ctx serde.Context, data []byte) (validation.Result, error) {
	ctx = serde.WithFactory(ctx, ResultKey{}, f.txResFac)

	msg, err := resFormats.Get(ctx.GetFormat()).Decode(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("decoding failed: %v", err)
	}

	res, ok := msg.(Result)
	if !ok {
		return nil, xerrors.Errorf("invalid result type '%T'", msg)
	}

	return res, nil
}
