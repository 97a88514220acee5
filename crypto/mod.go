// Package crypto defines the cryptographic primitives used to sign and verify
// the transactions of the ledger, and to hash its authenticated structures.
package crypto

import (
	"encoding"
	"hash"

	"go.dedis.ch/swarm/serde"
)

// HashFactory creates hashes of a single algorithm.
type HashFactory interface {
	New() hash.Hash
}

// PublicKey identifies the author of a transaction.
type PublicKey interface {
	encoding.BinaryMarshaler
	encoding.TextMarshaler
	serde.Message

	// Verify returns an error unless the signature is the one of the message
	// by the owner of the key.
	Verify(msg []byte, signature Signature) error

	Equal(other interface{}) bool
}

// PublicKeyFactory decodes the public keys of a signature scheme.
type PublicKeyFactory interface {
	serde.Factory

	PublicKeyOf(serde.Context, []byte) (PublicKey, error)

	// FromBytes decodes the output of MarshalBinary.
	FromBytes([]byte) (PublicKey, error)
}

// Signature is the proof that a key holder approved a message.
type Signature interface {
	encoding.BinaryMarshaler
	serde.Message

	Equal(other Signature) bool
}

// SignatureFactory decodes the signatures of a signature scheme.
type SignatureFactory interface {
	serde.Factory

	SignatureOf(serde.Context, []byte) (Signature, error)
}

// Signer holds a private key. Its binary form is the private key itself.
type Signer interface {
	encoding.BinaryMarshaler

	// GetPublicKeyFactory returns the factory of the public keys of the same
	// scheme.
	GetPublicKeyFactory() PublicKeyFactory

	// GetSignatureFactory returns the factory of the signatures of the same
	// scheme.
	GetSignatureFactory() SignatureFactory

	GetPublicKey() PublicKey

	Sign(msg []byte) (Signature, error)
}
