package binprefix

import (
	"bytes"

	"go.dedis.ch/swarm/crypto"
	"go.dedis.ch/swarm/serde"
	"go.dedis.ch/swarm/serde/registry"
	"golang.org/x/xerrors"
)

var pathFormats = registry.NewSimpleRegistry()

// RegisterPathFormat registers the engine for the provided format.
func RegisterPathFormat(format serde.Format, engine serde.FormatEngine) {
	pathFormats.Register(format, engine)
}

// Path is a path from the root to a leaf, represented as a series of interior
// nodes hashes. The end of the path is either a leaf with a key holding a
// value, an empty node, or a leaf holding a different key whose prefix is the
// same as the key of the path up to that leaf.
//
// - implements hashtree.Path
// - implements serde.Message
type Path struct {
	nonce []byte
	key   []byte
	value []byte

	// Key and value of the leaf found at the end of the path when the key is
	// not set.
	leafKey   []byte
	leafValue []byte

	// Hashes of the siblings from the root to the end of the path.
	interiors [][]byte

	// Root is the root of the hash tree. It is not serialized and reproduced
	// from the leaf and the interior nodes when deserializing.
	root []byte
}

// newPath creates an empty path for the provided key. It must be filled to be
// valid.
func newPath(nonce, key []byte) Path {
	return Path{
		nonce: nonce,
		key:   key,
	}
}

// NewPath creates a path from its components. The root is not computed.
func NewPath(nonce, key, value, leafKey, leafValue []byte, interiors [][]byte) Path {
	return Path{
		nonce:     nonce,
		key:       key,
		value:     value,
		leafKey:   leafKey,
		leafValue: leafValue,
		interiors: interiors,
	}
}

// GetKey implements hashtree.Path. It returns the key associated to the path.
func (s Path) GetKey() []byte {
	return s.key
}

// GetValue implements hashtree.Path. It returns the value pointed by the path.
func (s Path) GetValue() []byte {
	return s.value
}

// GetRoot implements hashtree.Path. It returns the hash of the root node
// calculated from the leaf up to the root.
func (s Path) GetRoot() []byte {
	return s.root
}

// GetNonce returns the nonce of the tree of the path.
func (s Path) GetNonce() []byte {
	return s.nonce
}

// GetLeaf returns the key and the value of the leaf that proves the absence of
// the key, if any.
func (s Path) GetLeaf() ([]byte, []byte) {
	return s.leafKey, s.leafValue
}

// GetInteriors returns the hashes of the siblings along the path.
func (s Path) GetInteriors() [][]byte {
	return s.interiors
}

// Serialize implements serde.Message. It returns the data of the path.
func (s Path) Serialize(ctx serde.Context) ([]byte, error) {
	format := pathFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, s)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode path: %v", err)
	}

	return data, nil
}

func (s Path) computeRoot(fac crypto.HashFactory) ([]byte, error) {
	h := hasher{nonce: s.nonce, fac: fac}

	khash, key, err := h.keyOf(s.key)
	if err != nil {
		return nil, xerrors.Errorf("while preparing: %v", err)
	}

	depth := len(s.interiors)
	if depth > h.maxDepth() {
		return nil, xerrors.Errorf("path too long: %d > %d", depth, h.maxDepth())
	}

	var curr []byte

	switch {
	case s.value != nil:
		curr, err = h.leaf(uint16(depth), khash, s.value)
	case s.leafKey != nil:
		curr, err = s.divergingLeaf(h, depth)
	default:
		curr, err = h.empty(uint16(depth), prefixOf(key, depth))
	}

	if err != nil {
		return nil, xerrors.Errorf("while preparing: %v", err)
	}

	for i := depth - 1; i >= 0; i-- {
		if key.Bit(i) == 0 {
			curr, err = h.interior(curr, s.interiors[i])
		} else {
			curr, err = h.interior(s.interiors[i], curr)
		}

		if err != nil {
			return nil, xerrors.Errorf("while computing: %v", err)
		}
	}

	return curr, nil
}

// divergingLeaf returns the hash of the leaf that ends the path of an absent
// key. The leaf must hold a different key whose prefix is the same.
func (s Path) divergingLeaf(h hasher, depth int) ([]byte, error) {
	if bytes.Equal(s.leafKey, s.key) {
		return nil, xerrors.New("leaf has the same key")
	}

	_, key, err := h.keyOf(s.key)
	if err != nil {
		return nil, err
	}

	lhash, other, err := h.keyOf(s.leafKey)
	if err != nil {
		return nil, err
	}

	for i := 0; i < depth; i++ {
		if key.Bit(i) != other.Bit(i) {
			return nil, xerrors.Errorf("leaf prefix mismatch at bit %d", i)
		}
	}

	return h.leaf(uint16(depth), lhash, s.leafValue)
}

// PathFactory is the factory to deserialize paths. The root of the path is
// computed when deserializing.
//
// - implements serde.Factory
type PathFactory struct {
	hashFactory crypto.HashFactory
}

// NewPathFactory returns a new factory of paths that uses the hash function to
// compute the root.
func NewPathFactory(fac crypto.HashFactory) PathFactory {
	return PathFactory{hashFactory: fac}
}

// Deserialize implements serde.Factory. It returns the path of the data with
// its root computed, otherwise an error.
func (f PathFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.PathOf(ctx, data)
}

// PathOf returns the path of the data with its root computed, otherwise an
// error.
func (f PathFactory) PathOf(ctx serde.Context, data []byte) (Path, error) {
	format := pathFormats.Get(ctx.GetFormat())

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return Path{}, xerrors.Errorf("format failed: %v", err)
	}

	path, ok := msg.(Path)
	if !ok {
		return Path{}, xerrors.Errorf("invalid path of type '%T'", msg)
	}

	path.root, err = path.computeRoot(f.hashFactory)
	if err != nil {
		return Path{}, xerrors.Errorf("couldn't compute root: %v", err)
	}

	return path, nil
}
