// Package json registers the JSON format of the ed25519 public keys and
// signatures. Both are written as the name of the algorithm and the binary
// form of the value.
package json

import (
	"go.dedis.ch/swarm/crypto/ed25519"
	"go.dedis.ch/swarm/serde"
	"golang.org/x/xerrors"
)

func init() {
	ed25519.RegisterPublicKeyFormat(serde.FormatJSON, pubkeyFormat{})
	ed25519.RegisterSignatureFormat(serde.FormatJSON, sigFormat{})
}

// Message is the JSON message of a public key or a signature.
type Message struct {
	Name string
	Data []byte
}

// pubkeyFormat is the JSON engine of the public keys.
//
// - implements serde.FormatEngine
type pubkeyFormat struct{}

// Encode implements serde.FormatEngine.
func (pubkeyFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	pk, ok := msg.(ed25519.PublicKey)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	raw, err := pk.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal point: %v", err)
	}

	return marshal(ctx, raw)
}

// Decode implements serde.FormatEngine.
func (pubkeyFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	raw, err := unmarshal(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("couldn't unmarshal public key: %v", err)
	}

	pk, err := ed25519.NewPublicKey(raw)
	if err != nil {
		return nil, xerrors.Errorf("couldn't create public key: %v", err)
	}

	return pk, nil
}

// sigFormat is the JSON engine of the signatures.
//
// - implements serde.FormatEngine
type sigFormat struct{}

// Encode implements serde.FormatEngine.
func (sigFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	sig, ok := msg.(ed25519.Signature)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	raw, _ := sig.MarshalBinary()

	return marshal(ctx, raw)
}

// Decode implements serde.FormatEngine.
func (sigFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	raw, err := unmarshal(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("couldn't unmarshal signature: %v", err)
	}

	return ed25519.NewSignature(raw), nil
}

func marshal(ctx serde.Context, raw []byte) ([]byte, error) {
	data, err := ctx.Marshal(Message{Name: ed25519.Algorithm, Data: raw})
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return data, nil
}

func unmarshal(ctx serde.Context, data []byte) ([]byte, error) {
	var m Message

	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, err
	}

	if m.Name != ed25519.Algorithm {
		return nil, xerrors.Errorf("unexpected algorithm '%s'", m.Name)
	}

	return m.Data, nil
}
