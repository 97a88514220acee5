// Package ed25519 provides the Schnorr signatures over the Edwards 25519 curve
// of Kyber.
//
// A public key identifies a client of the ledger, a drone or a validator, and
// the key pair of a node signs the transactions it submits.
package ed25519

import (
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/sign/schnorr"
	"go.dedis.ch/kyber/v3/suites"
	"go.dedis.ch/kyber/v3/util/key"
	"go.dedis.ch/swarm/crypto"
	"go.dedis.ch/swarm/serde"
	"go.dedis.ch/swarm/serde/registry"
	"golang.org/x/xerrors"
)

// Algorithm identifies the keys and signatures of the package in their
// serialized forms.
const Algorithm = "CURVE-ED25519"

var (
	suite = suites.MustFind("Ed25519")

	pubkeyFormats = registry.NewSimpleRegistry()
	sigFormats    = registry.NewSimpleRegistry()
)

// RegisterPublicKeyFormat sets the engine of the public keys for the format.
func RegisterPublicKeyFormat(f serde.Format, e serde.FormatEngine) {
	pubkeyFormats.Register(f, e)
}

// RegisterSignatureFormat sets the engine of the signatures for the format.
func RegisterSignatureFormat(f serde.Format, e serde.FormatEngine) {
	sigFormats.Register(f, e)
}

// Signer signs with a private key of the curve.
//
// - implements crypto.Signer
type Signer struct {
	pair *key.Pair
}

// NewSigner returns a signer of a random key pair.
func NewSigner() Signer {
	return Signer{pair: key.NewKeyPair(suite)}
}

// NewSignerFromBytes returns the signer of a private key produced by
// MarshalBinary.
func NewSignerFromBytes(data []byte) (Signer, error) {
	secret := suite.Scalar()

	err := secret.UnmarshalBinary(data)
	if err != nil {
		return Signer{}, xerrors.Errorf("couldn't unmarshal scalar: %v", err)
	}

	pair := &key.Pair{Private: secret, Public: suite.Point().Mul(secret, nil)}

	return Signer{pair: pair}, nil
}

// GetPublicKeyFactory implements crypto.Signer.
func (Signer) GetPublicKeyFactory() crypto.PublicKeyFactory {
	return publicKeyFactory{}
}

// GetSignatureFactory implements crypto.Signer.
func (Signer) GetSignatureFactory() crypto.SignatureFactory {
	return signatureFactory{}
}

// GetPublicKey implements crypto.Signer.
func (s Signer) GetPublicKey() crypto.PublicKey {
	return PublicKey{point: s.pair.Public}
}

// GetPrivateKey returns the secret scalar of the signer.
func (s Signer) GetPrivateKey() kyber.Scalar {
	return s.pair.Private
}

// MarshalBinary implements encoding.BinaryMarshaler. Only the private key is
// written as the public one is derived from it.
func (s Signer) MarshalBinary() ([]byte, error) {
	return s.pair.Private.MarshalBinary()
}

// Sign implements crypto.Signer.
func (s Signer) Sign(msg []byte) (crypto.Signature, error) {
	data, err := schnorr.Sign(suite, s.pair.Private, msg)
	if err != nil {
		return nil, xerrors.Errorf("couldn't make schnorr signature: %v", err)
	}

	return Signature{data: data}, nil
}

// encode serializes the message with the engine of the context format.
func encode(formats registry.Registry, ctx serde.Context, msg serde.Message) ([]byte, error) {
	return formats.Get(ctx.GetFormat()).Encode(ctx, msg)
}

// decode deserializes the data with the engine of the context format and
// checks that the message is a T.
func decode[T serde.Message](formats registry.Registry, ctx serde.Context, data []byte) (T, error) {
	var zero T

	msg, err := formats.Get(ctx.GetFormat()).Decode(ctx, data)
	if err != nil {
		return zero, err
	}

	typed, ok := msg.(T)
	if !ok {
		return zero, xerrors.Errorf("invalid message of type '%T'", msg)
	}

	return typed, nil
}
