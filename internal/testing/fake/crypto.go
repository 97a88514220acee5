package fake

import (
	"go.dedis.ch/swarm/crypto"
	"go.dedis.ch/swarm/serde"
)

// SignatureByte is the binary form of every fake signature.
const SignatureByte = 0xfe

// Signature is a signature equal to any other fake signature. It returns its
// error, if any, on every encoding.
//
// - implements crypto.Signature
type Signature struct {
	crypto.Signature
	err error
}

// NewBadSignature returns a signature that cannot be encoded.
func NewBadSignature() Signature {
	return Signature{err: fakeErr}
}

// Equal implements crypto.Signature.
func (s Signature) Equal(other crypto.Signature) bool {
	_, same := other.(Signature)
	return same
}

// Serialize implements serde.Message.
func (s Signature) Serialize(serde.Context) ([]byte, error) {
	return []byte("{}"), s.err
}

// MarshalBinary implements crypto.Signature.
func (s Signature) MarshalBinary() ([]byte, error) {
	return []byte{SignatureByte}, s.err
}

// SignatureFactory always decodes a fake signature, or fails with its error.
//
// - implements crypto.SignatureFactory
type SignatureFactory struct {
	crypto.SignatureFactory
	err error
}

// NewBadSignatureFactory returns a factory failing to decode.
func NewBadSignatureFactory() SignatureFactory {
	return SignatureFactory{err: fakeErr}
}

// Deserialize implements serde.Factory.
func (f SignatureFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.SignatureOf(ctx, data)
}

// SignatureOf implements crypto.SignatureFactory.
func (f SignatureFactory) SignatureOf(serde.Context, []byte) (crypto.Signature, error) {
	return Signature{}, f.err
}

// PublicKey is a public key equal to any other fake public key. A key with an
// error fails the verifications and the encodings.
//
// - implements crypto.PublicKey
type PublicKey struct {
	crypto.PublicKey
	err error
}

// NewBadPublicKey returns a public key failing every operation.
func NewBadPublicKey() PublicKey {
	return PublicKey{err: fakeErr}
}

// Verify implements crypto.PublicKey.
func (pk PublicKey) Verify([]byte, crypto.Signature) error {
	return pk.err
}

// Equal implements crypto.PublicKey.
func (pk PublicKey) Equal(other interface{}) bool {
	_, same := other.(PublicKey)
	return same
}

// MarshalBinary implements crypto.PublicKey.
func (pk PublicKey) MarshalBinary() ([]byte, error) {
	return []byte("fake public key"), pk.err
}

// MarshalText implements crypto.PublicKey.
func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte("fake:public key"), pk.err
}

// Serialize implements serde.Message.
func (pk PublicKey) Serialize(serde.Context) ([]byte, error) {
	return []byte("{}"), pk.err
}

// PublicKeyFactory decodes always the same public key, or fails with its
// error.
//
// - implements crypto.PublicKeyFactory
type PublicKeyFactory struct {
	crypto.PublicKeyFactory
	pubkey PublicKey
	err    error
}

// NewPublicKeyFactory returns a factory decoding the public key.
func NewPublicKeyFactory(pubkey PublicKey) PublicKeyFactory {
	return PublicKeyFactory{pubkey: pubkey}
}

// NewBadPublicKeyFactory returns a factory failing to decode.
func NewBadPublicKeyFactory() PublicKeyFactory {
	return PublicKeyFactory{err: fakeErr}
}

// Deserialize implements serde.Factory.
func (f PublicKeyFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.PublicKeyOf(ctx, data)
}

// PublicKeyOf implements crypto.PublicKeyFactory.
func (f PublicKeyFactory) PublicKeyOf(serde.Context, []byte) (crypto.PublicKey, error) {
	return f.pubkey, f.err
}

// FromBytes implements crypto.PublicKeyFactory.
func (f PublicKeyFactory) FromBytes([]byte) (crypto.PublicKey, error) {
	return f.pubkey, f.err
}

// Signer produces fake signatures for a fake public key.
//
// - implements crypto.Signer
type Signer struct {
	crypto.Signer
	err error
}

// NewSigner returns a signer that never fails.
func NewSigner() Signer {
	return Signer{}
}

// NewBadSigner returns a signer failing to sign and to marshal.
func NewBadSigner() Signer {
	return Signer{err: fakeErr}
}

// GetPublicKeyFactory implements crypto.Signer.
func (Signer) GetPublicKeyFactory() crypto.PublicKeyFactory {
	return PublicKeyFactory{}
}

// GetSignatureFactory implements crypto.Signer.
func (Signer) GetSignatureFactory() crypto.SignatureFactory {
	return SignatureFactory{}
}

// GetPublicKey implements crypto.Signer.
func (Signer) GetPublicKey() crypto.PublicKey {
	return PublicKey{}
}

// MarshalBinary implements crypto.Signer.
func (s Signer) MarshalBinary() ([]byte, error) {
	return []byte("fake private key"), s.err
}

// Sign implements crypto.Signer.
func (s Signer) Sign([]byte) (crypto.Signature, error) {
	return Signature{}, s.err
}
