// Package binlist implements the hash list interface with the Merkle tree of
// RFC 6962 (Certificate Transparency).
//
// https://www.rfc-editor.org/rfc/rfc6962#section-2.1
//
// The hash of an entry is H(0x00 || entry) and the hash of an interior node is
// H(0x01 || left || right). The list of n entries is split at the largest
// power of two smaller than n, which makes the root a function of the sequence
// of entries only.
//
// The hashes of the perfect subtrees are stored next to the entries when they
// are completed by an append. The root of any past length is then folded from
// at most log(n) of them.
//
//	           root(7)
//	          /       \
//	      h(2,0)       \
//	     /      \       \
//	 h(1,0)   h(1,1)   h(1,2)   e6
//	 /   \    /   \    /   \
//	e0   e1  e2   e3  e4   e5
package binlist

import (
	"encoding/binary"
	"math/bits"

	"go.dedis.ch/swarm/core/store"
	"go.dedis.ch/swarm/core/store/hashlist"
	"go.dedis.ch/swarm/crypto"
	"golang.org/x/xerrors"
)

const (
	leafPrefix     byte = 0x00
	interiorPrefix byte = 0x01
)

const (
	entryKeyType byte = 'e'
	hashKeyType  byte = 'h'
	lenKeyType   byte = 'l'
)

// Factory is the factory to open Merkle lists.
//
// - implements hashlist.Factory
type Factory struct {
	hashFactory crypto.HashFactory
}

// FactoryOption is the type of option to set some fields of the factory.
type FactoryOption func(*Factory)

// WithHashFactory is an option to set the hash function of the lists.
func WithHashFactory(fac crypto.HashFactory) FactoryOption {
	return func(f *Factory) {
		f.hashFactory = fac
	}
}

// NewFactory returns a new factory of lists.
func NewFactory(opts ...FactoryOption) Factory {
	f := Factory{
		hashFactory: crypto.NewSha256Factory(),
	}

	for _, opt := range opts {
		opt(&f)
	}

	return f
}

// Open implements hashlist.Factory. It returns a read-only view of the list.
func (f Factory) Open(rd store.Readable, id []byte) (hashlist.List, error) {
	list, err := f.open(rd, nil, id)
	if err != nil {
		return nil, err
	}

	return list, nil
}

// OpenWritable implements hashlist.Factory. It returns the list that writes in
// the snapshot.
func (f Factory) OpenWritable(snap store.Snapshot, id []byte) (hashlist.WritableList, error) {
	list, err := f.open(snap, snap, id)
	if err != nil {
		return nil, err
	}

	return list, nil
}

func (f Factory) open(rd store.Readable, wr store.Writable, id []byte) (*List, error) {
	if len(id) > 0xffff {
		return nil, xerrors.Errorf("identifier too long: %d", len(id))
	}

	list := &List{
		id:          id,
		reader:      rd,
		writer:      wr,
		hashFactory: f.hashFactory,
	}

	data, err := rd.Get(list.key(lenKeyType))
	if err != nil {
		return nil, xerrors.Errorf("failed to read length: %v", err)
	}

	if data != nil {
		if len(data) != 8 {
			return nil, xerrors.Errorf("invalid length of size %d", len(data))
		}

		list.length = binary.BigEndian.Uint64(data)
	}

	return list, nil
}

// List is an append-only Merkle list stored in a store.
//
// - implements hashlist.List
// - implements hashlist.WritableList
type List struct {
	id          []byte
	reader      store.Readable
	writer      store.Writable
	hashFactory crypto.HashFactory
	length      uint64
}

// Len implements hashlist.List. It returns the number of entries.
func (l *List) Len() uint64 {
	return l.length
}

// Get implements hashlist.List. It returns the entry at the index.
func (l *List) Get(index uint64) ([]byte, error) {
	if index >= l.length {
		return nil, xerrors.Errorf("index %d out of bounds (%d)", index, l.length)
	}

	entry, err := l.reader.Get(l.key(entryKeyType, index))
	if err != nil {
		return nil, xerrors.Errorf("failed to read entry: %v", err)
	}

	if entry == nil {
		return nil, xerrors.Errorf("entry %d not found", index)
	}

	return entry, nil
}

// GetRoot implements hashlist.List. It returns the root of the list.
func (l *List) GetRoot() ([]byte, error) {
	return l.RootAt(l.length)
}

// RootAt implements hashlist.List. It returns the root of the list when it had
// the given length.
func (l *List) RootAt(n uint64) ([]byte, error) {
	if n > l.length {
		return nil, xerrors.Errorf("length %d out of bounds (%d)", n, l.length)
	}

	if n == 0 {
		return emptyRoot(l.hashFactory), nil
	}

	root, err := l.subtree(0, n)
	if err != nil {
		return nil, xerrors.Errorf("couldn't compute root: %v", err)
	}

	return root, nil
}

// ProveRange implements hashlist.List. It returns a proof that the entries in
// [start, end) are part of the list of length n.
func (l *List) ProveRange(start, end, n uint64) (hashlist.RangeProof, error) {
	if start > end || end > n || n > l.length {
		return nil, xerrors.Errorf("invalid range [%d, %d) for length %d (%d)",
			start, end, n, l.length)
	}

	proof := RangeProof{
		start:       start,
		end:         end,
		length:      n,
		hashFactory: l.hashFactory,
	}

	if n == 0 {
		return proof, nil
	}

	err := l.prove(0, n, &proof)
	if err != nil {
		return nil, xerrors.Errorf("couldn't prove range: %v", err)
	}

	return proof, nil
}

// prove appends to the proof the hashes of the subtrees of [lo, hi) that are
// disjoint from the range of the proof, from left to right.
func (l *List) prove(lo, hi uint64, proof *RangeProof) error {
	if hi <= proof.start || lo >= proof.end {
		digest, err := l.subtree(lo, hi)
		if err != nil {
			return err
		}

		proof.hashes = append(proof.hashes, digest)

		return nil
	}

	if proof.start <= lo && hi <= proof.end {
		return nil
	}

	k := split(hi - lo)

	err := l.prove(lo, lo+k, proof)
	if err != nil {
		return err
	}

	return l.prove(lo+k, hi, proof)
}

// Append implements hashlist.WritableList. It writes the entry and the hashes
// of the perfect subtrees it completes, then returns the new head of the
// list.
func (l *List) Append(entry []byte) (hashlist.Head, error) {
	if l.writer == nil {
		return hashlist.Head{}, xerrors.New("list is read-only")
	}

	index := l.length

	err := l.writer.Set(l.key(entryKeyType, index), entry)
	if err != nil {
		return hashlist.Head{}, xerrors.Errorf("failed to write entry: %v", err)
	}

	digest, err := leafHash(l.hashFactory, entry)
	if err != nil {
		return hashlist.Head{}, xerrors.Errorf("failed to hash entry: %v", err)
	}

	err = l.writer.Set(l.key(hashKeyType, 0, index), digest)
	if err != nil {
		return hashlist.Head{}, xerrors.Errorf("failed to write hash: %v", err)
	}

	// Every trailing one in the binary representation of the index completes
	// a perfect subtree of the level above.
	for level := uint64(1); (index+1)%(1<<level) == 0; level++ {
		offset := (index + 1) >> level

		left, err := l.perfect(level-1, 2*(offset-1))
		if err != nil {
			return hashlist.Head{}, err
		}

		digest, err = interiorHash(l.hashFactory, left, digest)
		if err != nil {
			return hashlist.Head{}, xerrors.Errorf("failed to hash subtree: %v", err)
		}

		err = l.writer.Set(l.key(hashKeyType, level, offset-1), digest)
		if err != nil {
			return hashlist.Head{}, xerrors.Errorf("failed to write hash: %v", err)
		}
	}

	l.length++

	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, l.length)

	err = l.writer.Set(l.key(lenKeyType), data)
	if err != nil {
		return hashlist.Head{}, xerrors.Errorf("failed to write length: %v", err)
	}

	root, err := l.GetRoot()
	if err != nil {
		return hashlist.Head{}, err
	}

	return hashlist.Head{Len: l.length, Root: root}, nil
}

// subtree returns the hash of the entries in [lo, hi).
func (l *List) subtree(lo, hi uint64) ([]byte, error) {
	size := hi - lo

	if size&(size-1) == 0 && lo%size == 0 {
		level := uint64(bits.TrailingZeros64(size))
		return l.perfect(level, lo>>level)
	}

	k := split(size)

	left, err := l.subtree(lo, lo+k)
	if err != nil {
		return nil, err
	}

	right, err := l.subtree(lo+k, hi)
	if err != nil {
		return nil, err
	}

	return interiorHash(l.hashFactory, left, right)
}

// perfect returns the stored hash of the perfect subtree at the level and the
// offset.
func (l *List) perfect(level, offset uint64) ([]byte, error) {
	digest, err := l.reader.Get(l.key(hashKeyType, level, offset))
	if err != nil {
		return nil, xerrors.Errorf("failed to read hash: %v", err)
	}

	if digest == nil {
		return nil, xerrors.Errorf("hash (%d, %d) not found", level, offset)
	}

	return digest, nil
}

// key returns the store key of the given type for the list. The key is made
// of the type, the length-prefixed identifier and the big-endian parameters.
func (l *List) key(typ byte, params ...uint64) []byte {
	key := make([]byte, 1+2+len(l.id)+8*len(params))
	key[0] = typ
	binary.BigEndian.PutUint16(key[1:], uint16(len(l.id)))
	copy(key[3:], l.id)

	cursor := 3 + len(l.id)
	for _, param := range params {
		binary.BigEndian.PutUint64(key[cursor:], param)
		cursor += 8
	}

	return key
}

// split returns the largest power of two smaller than n, for n > 1.
func split(n uint64) uint64 {
	return 1 << (bits.Len64(n-1) - 1)
}

func emptyRoot(fac crypto.HashFactory) []byte {
	return fac.New().Sum(nil)
}

func leafHash(fac crypto.HashFactory, entry []byte) ([]byte, error) {
	h := fac.New()

	_, err := h.Write(append([]byte{leafPrefix}, entry...))
	if err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

func interiorHash(fac crypto.HashFactory, left, right []byte) ([]byte, error) {
	h := fac.New()

	data := make([]byte, 1+len(left)+len(right))
	data[0] = interiorPrefix
	copy(data[1:], left)
	copy(data[1+len(left):], right)

	_, err := h.Write(data)
	if err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}
