package binprefix

import (
	"encoding/binary"
	"math/big"

	"go.dedis.ch/swarm/crypto"
	"go.dedis.ch/swarm/serde"
	"go.dedis.ch/swarm/serde/registry"
	"golang.org/x/xerrors"
)

// DepthLength is the length in bytes of the binary representation of the
// depth.
const DepthLength = 2

const (
	emptyNodeType byte = iota
	interiorNodeType
	leafNodeType
)

var nodeFormats = registry.NewSimpleRegistry()

// RegisterNodeFormat registers the engine for the provided format.
func RegisterNodeFormat(format serde.Format, engine serde.FormatEngine) {
	nodeFormats.Register(format, engine)
}

// TreeNode is the interface of the nodes that are stored. Empty nodes are
// never stored as their digest only depends on their position.
type TreeNode interface {
	serde.Message

	GetType() byte

	GetDepth() uint16
}

// Child is the reference of an interior node to one of its children.
type Child struct {
	Type   byte
	Digest []byte
}

func (c Child) isEmpty() bool {
	return c.Type == emptyNodeType
}

// InteriorNode is a node with two children.
//
// - implements binprefix.TreeNode
type InteriorNode struct {
	depth uint16
	left  Child
	right Child
}

// NewInteriorNode creates a new interior node with the two children.
func NewInteriorNode(depth uint16, left, right Child) InteriorNode {
	return InteriorNode{
		depth: depth,
		left:  left,
		right: right,
	}
}

// GetType implements binprefix.TreeNode. It returns the interior node type.
func (n InteriorNode) GetType() byte {
	return interiorNodeType
}

// GetDepth implements binprefix.TreeNode. It returns the depth of the node.
func (n InteriorNode) GetDepth() uint16 {
	return n.depth
}

// GetLeft returns the reference to the left child.
func (n InteriorNode) GetLeft() Child {
	return n.left
}

// GetRight returns the reference to the right child.
func (n InteriorNode) GetRight() Child {
	return n.right
}

// Serialize implements serde.Message. It returns the data of the interior
// node.
func (n InteriorNode) Serialize(ctx serde.Context) ([]byte, error) {
	format := nodeFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, n)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode interior node: %v", err)
	}

	return data, nil
}

// LeafNode is a node with a key and a value. The leaf is placed at the
// shortest unique prefix of the hash of its key.
//
// - implements binprefix.TreeNode
type LeafNode struct {
	depth uint16
	key   []byte
	value []byte
}

// NewLeafNode creates a new leaf node.
func NewLeafNode(depth uint16, key, value []byte) LeafNode {
	return LeafNode{
		depth: depth,
		key:   key,
		value: value,
	}
}

// GetType implements binprefix.TreeNode. It returns the leaf node type.
func (n LeafNode) GetType() byte {
	return leafNodeType
}

// GetDepth implements binprefix.TreeNode. It returns the depth of the node.
func (n LeafNode) GetDepth() uint16 {
	return n.depth
}

// GetKey returns the key of the leaf node.
func (n LeafNode) GetKey() []byte {
	return n.key
}

// GetValue returns the value of the leaf node.
func (n LeafNode) GetValue() []byte {
	return n.value
}

// Serialize implements serde.Message. It returns the data of the leaf node.
func (n LeafNode) Serialize(ctx serde.Context) ([]byte, error) {
	format := nodeFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, n)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode leaf node: %v", err)
	}

	return data, nil
}

// NodeFactory is the factory to deserialize tree nodes.
//
// - implements serde.Factory
type NodeFactory struct{}

// Deserialize implements serde.Factory. It populates the tree node associated
// to the data if appropriate, otherwise it returns an error.
func (f NodeFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	format := nodeFormats.Get(ctx.GetFormat())

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("format failed: %v", err)
	}

	return msg, nil
}

// hasher computes the digests of the nodes of a tree.
//
// The digests are:
//   - empty:    H(0x00 || nonce || depth || prefix)
//   - interior: H(0x01 || left || right)
//   - leaf:     H(0x02 || nonce || depth || H(key) || value)
//
// where the depth is encoded on two bytes in little-endian and the prefix on
// the size of a digest.
type hasher struct {
	nonce []byte
	fac   crypto.HashFactory
}

func (h hasher) size() int {
	return h.fac.New().Size()
}

func (h hasher) maxDepth() int {
	return h.size() * 8
}

// keyOf returns the digest of the key that decides its position in the tree.
func (h hasher) keyOf(key []byte) ([]byte, *big.Int, error) {
	hash := h.fac.New()

	_, err := hash.Write(key)
	if err != nil {
		return nil, nil, xerrors.Errorf("key hash failed: %v", err)
	}

	digest := hash.Sum(nil)

	return digest, new(big.Int).SetBytes(digest), nil
}

func (h hasher) empty(depth uint16, prefix *big.Int) ([]byte, error) {
	hash := h.fac.New()

	data := make([]byte, 1+len(h.nonce)+DepthLength+h.size())
	data[0] = emptyNodeType
	cursor := 1
	copy(data[cursor:], h.nonce)
	cursor += len(h.nonce)
	copy(data[cursor:], int2buffer(depth))
	cursor += DepthLength
	prefix.FillBytes(data[cursor:])

	_, err := hash.Write(data)
	if err != nil {
		return nil, xerrors.Errorf("empty node failed: %v", err)
	}

	return hash.Sum(nil), nil
}

func (h hasher) interior(left, right []byte) ([]byte, error) {
	hash := h.fac.New()

	data := make([]byte, 1+len(left)+len(right))
	data[0] = interiorNodeType
	copy(data[1:], left)
	copy(data[1+len(left):], right)

	_, err := hash.Write(data)
	if err != nil {
		return nil, xerrors.Errorf("interior node failed: %v", err)
	}

	return hash.Sum(nil), nil
}

func (h hasher) leaf(depth uint16, keyHash, value []byte) ([]byte, error) {
	hash := h.fac.New()

	data := make([]byte, 1+len(h.nonce)+DepthLength+len(keyHash)+len(value))
	data[0] = leafNodeType
	cursor := 1
	copy(data[cursor:], h.nonce)
	cursor += len(h.nonce)
	copy(data[cursor:], int2buffer(depth))
	cursor += DepthLength
	copy(data[cursor:], keyHash)
	cursor += len(keyHash)
	copy(data[cursor:], value)

	_, err := hash.Write(data)
	if err != nil {
		return nil, xerrors.Errorf("leaf node failed: %v", err)
	}

	return hash.Sum(nil), nil
}

func int2buffer(depth uint16) []byte {
	buffer := make([]byte, DepthLength)
	binary.LittleEndian.PutUint16(buffer, depth)

	return buffer
}

// prefixOf returns the prefix made of the first bits of the key.
func prefixOf(key *big.Int, depth int) *big.Int {
	prefix := new(big.Int)
	for i := 0; i < depth; i++ {
		prefix.SetBit(prefix, i, key.Bit(i))
	}

	return prefix
}
