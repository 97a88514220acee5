package crypto

import (
	"crypto/sha256"
	"hash"

	"golang.org/x/crypto/sha3"
)

// HashAlgorithm selects the hash function of a factory.
type HashAlgorithm int

// Supported hash functions.
const (
	Sha256 HashAlgorithm = iota
	Sha3_224
	Sha3_256
)

var hashConstructors = map[HashAlgorithm]func() hash.Hash{
	Sha256:   sha256.New,
	Sha3_224: sha3.New224,
	Sha3_256: sha3.New256,
}

// hashFactory creates the hashes of one algorithm.
//
// - implements crypto.HashFactory
type hashFactory struct {
	algo HashAlgorithm
}

// NewSha256Factory returns the factory of SHA-256, the hash of the block
// headers, the transactions and the tree.
func NewSha256Factory() HashFactory {
	return NewHashFactory(Sha256)
}

// NewHashFactory returns the factory of the algorithm. It panics for an
// unknown algorithm.
func NewHashFactory(a HashAlgorithm) HashFactory {
	_, found := hashConstructors[a]
	if !found {
		panic("unknown hash type")
	}

	return hashFactory{algo: a}
}

// New implements crypto.HashFactory.
func (f hashFactory) New() hash.Hash {
	return hashConstructors[f.algo]()
}
