// Package json registers the JSON format of the block results. A result is a
// list of transaction results, each one embedding the JSON of its
// transaction.
package json

import (
	"encoding/json"

	"go.dedis.ch/swarm/core/txn"
	"go.dedis.ch/swarm/core/validation/simple"
	"go.dedis.ch/swarm/serde"
	"golang.org/x/xerrors"
)

func init() {
	simple.RegisterTransactionResultFormat(serde.FormatJSON, txResFormat{})
	simple.RegisterResultFormat(serde.FormatJSON, resFormat{})
}

// TransactionResultJSON is the JSON message of a transaction result. The code
// is left out for an accepted transaction.
type TransactionResultJSON struct {
	Transaction json.RawMessage
	Accepted    bool
	Reason      string `json:",omitempty"`
	Codespace   string `json:",omitempty"`
	Code        uint32 `json:",omitempty"`
}

// ResultJSON is the JSON message of the result of a block.
type ResultJSON struct {
	Results []json.RawMessage
}

// txResFormat is the engine of the transaction results.
//
// - implements serde.FormatEngine
type txResFormat struct{}

// Encode implements serde.FormatEngine.
func (txResFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	res, ok := msg.(simple.TransactionResult)
	if !ok {
		return nil, xerrors.Errorf("unsupported message '%T'", msg)
	}

	var m TransactionResultJSON
	var err error

	m.Transaction, err = res.GetTransaction().Serialize(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to serialize tx: %v", err)
	}

	m.Accepted, m.Reason = res.GetStatus()
	m.Codespace, m.Code = res.GetCode()

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine. It expects the transaction factory in
// the context.
func (txResFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	var m TransactionResultJSON

	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal: %v", err)
	}

	raw := ctx.GetFactory(simple.TransactionKey{})

	txFac, ok := raw.(txn.Factory)
	if !ok {
		return nil, xerrors.Errorf("invalid transaction factory '%T'", raw)
	}

	tx, err := txFac.TransactionOf(ctx, m.Transaction)
	if err != nil {
		return nil, xerrors.Errorf("failed to deserialize tx: %v", err)
	}

	return simple.NewTransactionResult(tx, m.Accepted, m.Reason,
		simple.WithCode(m.Codespace, m.Code)), nil
}

// resFormat is the engine of the block results.
//
// - implements serde.FormatEngine
type resFormat struct{}

// Encode implements serde.FormatEngine.
func (resFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	res, ok := msg.(simple.Result)
	if !ok {
		return nil, xerrors.Errorf("unsupported message '%T'", msg)
	}

	var m ResultJSON

	for _, txres := range res.GetTransactionResults() {
		data, err := txres.Serialize(ctx)
		if err != nil {
			return nil, xerrors.Errorf("failed to serialize tx result: %v", err)
		}

		m.Results = append(m.Results, data)
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine. It expects the factory of the
// transaction results in the context.
func (resFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	var m ResultJSON

	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal: %v", err)
	}

	txResFac := ctx.GetFactory(simple.ResultKey{})
	if txResFac == nil {
		return nil, xerrors.New("missing result factory")
	}

	list := make([]simple.TransactionResult, 0, len(m.Results))

	for _, raw := range m.Results {
		msg, err := txResFac.Deserialize(ctx, raw)
		if err != nil {
			return nil, xerrors.Errorf("failed to deserialize tx result: %v", err)
		}

		txres, ok := msg.(simple.TransactionResult)
		if !ok {
			return nil, xerrors.Errorf("invalid transaction result '%T'", msg)
		}

		list = append(list, txres)
	}

	return simple.NewResult(list), nil
}
