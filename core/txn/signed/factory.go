package signed

import (
	"go.dedis.ch/swarm/core/txn"
	"go.dedis.ch/swarm/crypto"
	"go.dedis.ch/swarm/crypto/ed25519"
	"go.dedis.ch/swarm/serde"
	"golang.org/x/xerrors"
)

// PublicKeyFac is the context key of the factory of the identities.
type PublicKeyFac struct{}

// SignatureFac is the context key of the factory of the signatures.
type SignatureFac struct{}

// TransactionFactory decodes signed transactions. The identity and the
// signature are decoded by the factories it carries in the context.
//
// - implements txn.Factory
type TransactionFactory struct {
	pubkeyFac crypto.PublicKeyFactory
	sigFac    crypto.SignatureFactory
}

// NewTransactionFactory returns the factory of transactions signed with
// ed25519 keys.
func NewTransactionFactory() TransactionFactory {
	return NewTransactionFactoryWith(ed25519.NewPublicKeyFactory(), ed25519.NewSignatureFactory())
}

// NewTransactionFactoryWith returns the factory of transactions with other
// kinds of identities.
func NewTransactionFactoryWith(pkFac crypto.PublicKeyFactory, sigFac crypto.SignatureFactory) TransactionFactory {
	return TransactionFactory{pubkeyFac: pkFac, sigFac: sigFac}
}

// Deserialize implements serde.Factory.
func (f TransactionFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.TransactionOf(ctx, data)
}

// TransactionOf implements txn.Factory.
func (f TransactionFactory) TransactionOf(ctx serde.Context, data []byte) (txn.Transaction, error) {
	ctx = serde.WithFactory(ctx, PublicKeyFac{}, f.pubkeyFac)
	ctx = serde.WithFactory(ctx, SignatureFac{}, f.sigFac)

	msg, err := txFormats.Get(ctx.GetFormat()).Decode(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode: %v", err)
	}

	tx, ok := msg.(*Transaction)
	if !ok {
		return nil, xerrors.Errorf("invalid transaction of type '%T'", msg)
	}

	return tx, nil
}
