// Package binprefix implements the hash tree interface by following the merkle
// binary prefix tree algorithm.
//
// https://www.usenix.org/system/files/conference/usenixsecurity15/sec15-paper-melara.pdf
//
// The keys are hashed and the bits of the digest decide the path from the root
// to the leaf holding the pair. A leaf is always placed at the shortest unique
// prefix of its key, which makes the shape of the tree, and thus its root, a
// function of the set of pairs only.
//
//	                     Interior (Root)
//	                       /        \
//	                    0 /          \ 1
//	                     /            \
//	                  Interior        Leaf
//	                   /    \
//	                0 /      \ 1
//	                 /        \
//	              Leaf       Empty
//
// The nodes are immutable and stored in a snapshot under their digest, so that
// an update writes the nodes of the new path only. The tree of a previous root
// stays readable as long as the snapshot holds its nodes, which provides
// consistent views of the past versions without locking.
package binprefix

import (
	"bytes"
	"math/big"

	"go.dedis.ch/swarm/core/store"
	"go.dedis.ch/swarm/core/store/hashtree"
	"go.dedis.ch/swarm/crypto"
	"go.dedis.ch/swarm/serde"
	"go.dedis.ch/swarm/serde/json"
	"golang.org/x/xerrors"
)

// Nonce is the type of the tree nonce. Two trees with a different nonce have
// different roots for the same content.
type Nonce [8]byte

// Factory is the factory to open binary prefix trees.
//
// - implements hashtree.Factory
type Factory struct {
	nonce       Nonce
	hashFactory crypto.HashFactory
}

// FactoryOption is the type of option to set some fields of the factory.
type FactoryOption func(*Factory)

// WithHashFactory is an option to set the hash function of the trees.
func WithHashFactory(fac crypto.HashFactory) FactoryOption {
	return func(f *Factory) {
		f.hashFactory = fac
	}
}

// NewFactory returns a factory of trees using the nonce.
func NewFactory(nonce Nonce, opts ...FactoryOption) Factory {
	f := Factory{
		nonce:       nonce,
		hashFactory: crypto.NewSha256Factory(),
	}

	for _, opt := range opts {
		opt(&f)
	}

	return f
}

// Open implements hashtree.Factory. It returns a read-only tree at the root.
func (f Factory) Open(rd store.Readable, root []byte) (hashtree.Tree, error) {
	tree, err := f.open(rd, nil, root)
	if err != nil {
		return nil, err
	}

	return tree, nil
}

// OpenWritable implements hashtree.Factory. It returns a tree at the root that
// writes the new nodes in the snapshot.
func (f Factory) OpenWritable(snap store.Snapshot, root []byte) (hashtree.WritableTree, error) {
	tree, err := f.open(snap, snap, root)
	if err != nil {
		return nil, err
	}

	return tree, nil
}

// EmptyRoot returns the root of an empty tree.
func (f Factory) EmptyRoot() ([]byte, error) {
	return f.hasher().empty(0, new(big.Int))
}

func (f Factory) hasher() hasher {
	return hasher{
		nonce: f.nonce[:],
		fac:   f.hashFactory,
	}
}

func (f Factory) open(rd store.Readable, wr store.Writable, root []byte) (*Tree, error) {
	tree := &Tree{
		hasher:  f.hasher(),
		reader:  rd,
		writer:  wr,
		context: json.NewContext(),
		factory: NodeFactory{},
	}

	empty, err := tree.empty(0, new(big.Int))
	if err != nil {
		return nil, xerrors.Errorf("couldn't compute empty root: %v", err)
	}

	if root == nil || bytes.Equal(root, empty) {
		tree.root = Child{Type: emptyNodeType, Digest: empty}
		return tree, nil
	}

	node, err := tree.load(root)
	if err != nil {
		return nil, xerrors.Errorf("couldn't load root: %v", err)
	}

	if node.GetDepth() != 0 {
		return nil, xerrors.Errorf("root %#x has depth %d", root, node.GetDepth())
	}

	tree.root = Child{Type: node.GetType(), Digest: root}

	return tree, nil
}

// Tree is an implementation of a Merkle binary prefix tree on top of a store.
//
// - implements hashtree.Tree
// - implements hashtree.WritableTree
type Tree struct {
	hasher

	reader  store.Readable
	writer  store.Writable
	context serde.Context
	factory serde.Factory
	root    Child
}

// GetRoot implements hashtree.Tree. It returns the root hash of the tree.
func (t *Tree) GetRoot() []byte {
	return append([]byte{}, t.root.Digest...)
}

// Get implements store.Readable. It returns the value associated with the key
// if it exists, otherwise it returns nil.
func (t *Tree) Get(key []byte) ([]byte, error) {
	path, err := t.search(key)
	if err != nil {
		return nil, xerrors.Errorf("couldn't search key: %v", err)
	}

	return path.value, nil
}

// GetPath implements hashtree.Tree. It returns a path to the key that proves
// its inclusion if it is set, or its absence.
func (t *Tree) GetPath(key []byte) (hashtree.Path, error) {
	path, err := t.search(key)
	if err != nil {
		return nil, xerrors.Errorf("couldn't search key: %v", err)
	}

	path.root, err = path.computeRoot(t.fac)
	if err != nil {
		return nil, xerrors.Errorf("couldn't compute root: %v", err)
	}

	return path, nil
}

// Set implements store.Writable. It sets the value of the key and updates the
// root of the tree.
func (t *Tree) Set(key, value []byte) error {
	if t.writer == nil {
		return xerrors.New("tree is read-only")
	}

	if value == nil {
		value = []byte{}
	}

	_, kh, err := t.keyOf(key)
	if err != nil {
		return xerrors.Errorf("failed to insert: %v", err)
	}

	root, err := t.insert(t.root, 0, new(big.Int), kh, key, value)
	if err != nil {
		return xerrors.Errorf("failed to insert: %v", err)
	}

	t.root = root

	return nil
}

// Delete implements store.Writable. It removes the key from the tree if it
// exists and updates the root of the tree.
func (t *Tree) Delete(key []byte) error {
	if t.writer == nil {
		return xerrors.New("tree is read-only")
	}

	_, kh, err := t.keyOf(key)
	if err != nil {
		return xerrors.Errorf("failed to delete: %v", err)
	}

	root, _, err := t.remove(t.root, 0, new(big.Int), kh, key)
	if err != nil {
		return xerrors.Errorf("failed to delete: %v", err)
	}

	t.root = root

	return nil
}

// ForEach implements hashtree.Tree. It iterates over the pairs of the tree in
// the order of their key digests.
func (t *Tree) ForEach(fn func(key, value []byte) error) error {
	return t.visit(t.root, fn)
}

func (t *Tree) visit(curr Child, fn func(key, value []byte) error) error {
	switch curr.Type {
	case emptyNodeType:
		return nil
	case leafNodeType:
		leaf, err := t.loadLeaf(curr.Digest)
		if err != nil {
			return err
		}

		return fn(leaf.key, leaf.value)
	default:
		node, err := t.loadInterior(curr.Digest)
		if err != nil {
			return err
		}

		err = t.visit(node.left, fn)
		if err != nil {
			return err
		}

		return t.visit(node.right, fn)
	}
}

func (t *Tree) search(key []byte) (Path, error) {
	khash, kh, err := t.keyOf(key)
	if err != nil {
		return Path{}, err
	}

	path := newPath(t.nonce, key)

	curr := t.root
	depth := 0

	for curr.Type == interiorNodeType {
		if depth >= t.maxDepth() {
			return Path{}, xerrors.Errorf("max depth reached for key %#x", khash)
		}

		node, err := t.loadInterior(curr.Digest)
		if err != nil {
			return Path{}, err
		}

		if kh.Bit(depth) == 0 {
			path.interiors = append(path.interiors, node.right.Digest)
			curr = node.left
		} else {
			path.interiors = append(path.interiors, node.left.Digest)
			curr = node.right
		}

		depth++
	}

	if curr.Type == leafNodeType {
		leaf, err := t.loadLeaf(curr.Digest)
		if err != nil {
			return Path{}, err
		}

		if bytes.Equal(leaf.key, key) {
			path.value = leaf.value
		} else {
			path.leafKey = leaf.key
			path.leafValue = leaf.value
		}
	}

	return path, nil
}

func (t *Tree) insert(curr Child, depth uint16, prefix, kh *big.Int, key, value []byte) (Child, error) {
	switch curr.Type {
	case emptyNodeType:
		return t.makeLeaf(depth, key, value)
	case leafNodeType:
		leaf, err := t.loadLeaf(curr.Digest)
		if err != nil {
			return Child{}, err
		}

		if bytes.Equal(leaf.key, key) {
			return t.makeLeaf(depth, key, value)
		}

		_, other, err := t.keyOf(leaf.key)
		if err != nil {
			return Child{}, err
		}

		return t.split(depth, prefix, kh, key, value, other, leaf)
	default:
		node, err := t.loadInterior(curr.Digest)
		if err != nil {
			return Child{}, err
		}

		bit := kh.Bit(int(depth))
		next := new(big.Int).SetBit(prefix, int(depth), bit)

		if bit == 0 {
			node.left, err = t.insert(node.left, depth+1, next, kh, key, value)
		} else {
			node.right, err = t.insert(node.right, depth+1, next, kh, key, value)
		}

		if err != nil {
			// No wrapping to prevent recursive calls to create huge error
			// messages.
			return Child{}, err
		}

		return t.makeInterior(depth, node.left, node.right)
	}
}

// split creates the subtree that holds both the new pair and the existing leaf
// by creating interior nodes until the prefixes of the keys diverge.
func (t *Tree) split(depth uint16, prefix, kh *big.Int, key, value []byte,
	other *big.Int, leaf LeafNode) (Child, error) {

	if int(depth) >= t.maxDepth() {
		return Child{}, xerrors.Errorf("max depth reached at prefix %#x", prefix)
	}

	bit := kh.Bit(int(depth))
	next := new(big.Int).SetBit(prefix, int(depth), bit)

	var sub, sibling Child
	var err error

	if bit != other.Bit(int(depth)) {
		sub, err = t.makeLeaf(depth+1, key, value)
		if err != nil {
			return Child{}, err
		}

		sibling, err = t.makeLeaf(depth+1, leaf.key, leaf.value)
		if err != nil {
			return Child{}, err
		}
	} else {
		sub, err = t.split(depth+1, next, kh, key, value, other, leaf)
		if err != nil {
			return Child{}, err
		}

		sibling, err = t.makeEmpty(depth+1, new(big.Int).SetBit(prefix, int(depth), 1-bit))
		if err != nil {
			return Child{}, err
		}
	}

	if bit == 0 {
		return t.makeInterior(depth, sub, sibling)
	}

	return t.makeInterior(depth, sibling, sub)
}

// remove deletes the key from the subtree and returns the new subtree in its
// canonical form, and whether it has changed.
func (t *Tree) remove(curr Child, depth uint16, prefix, kh *big.Int, key []byte) (Child, bool, error) {
	switch curr.Type {
	case emptyNodeType:
		return curr, false, nil
	case leafNodeType:
		leaf, err := t.loadLeaf(curr.Digest)
		if err != nil {
			return curr, false, err
		}

		if !bytes.Equal(leaf.key, key) {
			return curr, false, nil
		}

		empty, err := t.makeEmpty(depth, prefix)

		return empty, true, err
	default:
		node, err := t.loadInterior(curr.Digest)
		if err != nil {
			return curr, false, err
		}

		bit := kh.Bit(int(depth))
		next := new(big.Int).SetBit(prefix, int(depth), bit)

		var child, sibling Child
		var changed bool

		if bit == 0 {
			child, changed, err = t.remove(node.left, depth+1, next, kh, key)
			node.left = child
			sibling = node.right
		} else {
			child, changed, err = t.remove(node.right, depth+1, next, kh, key)
			node.right = child
			sibling = node.left
		}

		if err != nil || !changed {
			return curr, false, err
		}

		var res Child

		switch {
		case child.isEmpty() && sibling.isEmpty():
			res, err = t.makeEmpty(depth, prefix)
		case child.isEmpty() && sibling.Type == leafNodeType:
			res, err = t.moveUp(depth, sibling)
		case sibling.isEmpty() && child.Type == leafNodeType:
			res, err = t.moveUp(depth, child)
		default:
			res, err = t.makeInterior(depth, node.left, node.right)
		}

		return res, true, err
	}
}

// moveUp moves the leaf at the given depth after its sibling has been
// removed, so that it stays at the shortest unique prefix.
func (t *Tree) moveUp(depth uint16, ref Child) (Child, error) {
	leaf, err := t.loadLeaf(ref.Digest)
	if err != nil {
		return Child{}, err
	}

	return t.makeLeaf(depth, leaf.key, leaf.value)
}

func (t *Tree) makeEmpty(depth uint16, prefix *big.Int) (Child, error) {
	digest, err := t.empty(depth, prefix)
	if err != nil {
		return Child{}, err
	}

	return Child{Type: emptyNodeType, Digest: digest}, nil
}

func (t *Tree) makeLeaf(depth uint16, key, value []byte) (Child, error) {
	khash, _, err := t.keyOf(key)
	if err != nil {
		return Child{}, err
	}

	digest, err := t.leaf(depth, khash, value)
	if err != nil {
		return Child{}, err
	}

	err = t.store(digest, NewLeafNode(depth, key, value))
	if err != nil {
		return Child{}, err
	}

	return Child{Type: leafNodeType, Digest: digest}, nil
}

func (t *Tree) makeInterior(depth uint16, left, right Child) (Child, error) {
	digest, err := t.interior(left.Digest, right.Digest)
	if err != nil {
		return Child{}, err
	}

	err = t.store(digest, NewInteriorNode(depth, left, right))
	if err != nil {
		return Child{}, err
	}

	return Child{Type: interiorNodeType, Digest: digest}, nil
}

func (t *Tree) store(digest []byte, node TreeNode) error {
	data, err := node.Serialize(t.context)
	if err != nil {
		return xerrors.Errorf("failed to serialize node: %v", err)
	}

	err = t.writer.Set(digest, data)
	if err != nil {
		return xerrors.Errorf("failed to store node: %v", err)
	}

	return nil
}

func (t *Tree) load(digest []byte) (TreeNode, error) {
	data, err := t.reader.Get(digest)
	if err != nil {
		return nil, xerrors.Errorf("failed to read node: %v", err)
	}

	if data == nil {
		return nil, xerrors.Errorf("node %#x not found", digest)
	}

	msg, err := t.factory.Deserialize(t.context, data)
	if err != nil {
		return nil, xerrors.Errorf("tree node malformed: %v", err)
	}

	node, ok := msg.(TreeNode)
	if !ok {
		return nil, xerrors.Errorf("invalid node of type '%T'", msg)
	}

	return node, nil
}

func (t *Tree) loadLeaf(digest []byte) (LeafNode, error) {
	node, err := t.load(digest)
	if err != nil {
		return LeafNode{}, err
	}

	leaf, ok := node.(LeafNode)
	if !ok {
		return LeafNode{}, xerrors.Errorf("expected leaf node but got '%T'", node)
	}

	return leaf, nil
}

func (t *Tree) loadInterior(digest []byte) (InteriorNode, error) {
	node, err := t.load(digest)
	if err != nil {
		return InteriorNode{}, err
	}

	interior, ok := node.(InteriorNode)
	if !ok {
		return InteriorNode{}, xerrors.Errorf("expected interior node but got '%T'", node)
	}

	return interior, nil
}
