// Package json registers the JSON format of the signed transactions. The
// identity and the signature are embedded in the format of their own
// packages.
package json

import (
	"encoding/json"

	"go.dedis.ch/swarm/core/txn/signed"
	"go.dedis.ch/swarm/crypto"
	_ "go.dedis.ch/swarm/crypto/ed25519/json"
	"go.dedis.ch/swarm/serde"
	"golang.org/x/xerrors"
)

func init() {
	signed.RegisterTransactionFormat(serde.FormatJSON, txFormat{})
}

// TransactionJSON is the JSON message of a transaction.
type TransactionJSON struct {
	Nonce     uint64
	Args      map[string][]byte
	PublicKey json.RawMessage
	Signature json.RawMessage
}

// txFormat is the JSON engine of the transactions.
//
// - implements serde.FormatEngine
type txFormat struct {
	hashFactory crypto.HashFactory
}

// Encode implements serde.FormatEngine. Only signed transactions are encoded.
func (txFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	tx, ok := msg.(*signed.Transaction)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	if tx.GetSignature() == nil {
		return nil, xerrors.New("signature is missing")
	}

	m := TransactionJSON{
		Nonce: tx.GetNonce(),
		Args:  make(map[string][]byte, len(tx.GetArgs())),
	}

	for _, key := range tx.GetArgs() {
		m.Args[key] = tx.GetArg(key)
	}

	var err error

	m.PublicKey, err = tx.GetIdentity().Serialize(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode public key: %v", err)
	}

	m.Signature, err = tx.GetSignature().Serialize(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode signature: %v", err)
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine. The transaction is rebuilt from its
// fields so that its identifier and its signature are checked.
func (f txFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	var m TransactionJSON

	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal: %v", err)
	}

	pkFac, ok := ctx.GetFactory(signed.PublicKeyFac{}).(crypto.PublicKeyFactory)
	if !ok {
		return nil, xerrors.Errorf("invalid public key factory '%T'",
			ctx.GetFactory(signed.PublicKeyFac{}))
	}

	sigFac, ok := ctx.GetFactory(signed.SignatureFac{}).(crypto.SignatureFactory)
	if !ok {
		return nil, xerrors.Errorf("invalid signature factory '%T'",
			ctx.GetFactory(signed.SignatureFac{}))
	}

	pk, err := pkFac.PublicKeyOf(ctx, m.PublicKey)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode public key: %v", err)
	}

	sig, err := sigFac.SignatureOf(ctx, m.Signature)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode signature: %v", err)
	}

	opts := []signed.TransactionOption{signed.WithSignature(sig)}
	if f.hashFactory != nil {
		opts = append(opts, signed.WithHashFactory(f.hashFactory))
	}

	for key, value := range m.Args {
		opts = append(opts, signed.WithArg(key, value))
	}

	tx, err := signed.NewTransaction(m.Nonce, pk, opts...)
	if err != nil {
		return nil, xerrors.Errorf("failed to create tx: %v", err)
	}

	return tx, nil
}
