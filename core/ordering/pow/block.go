package pow

import (
	"bytes"
	"context"
	"encoding"
	"encoding/binary"
	"hash"
	"io"
	"math/big"

	"go.dedis.ch/swarm/core/ordering"
	"go.dedis.ch/swarm/core/validation"
	"go.dedis.ch/swarm/crypto"
	"go.dedis.ch/swarm/serde"
	"go.dedis.ch/swarm/serde/registry"
	"golang.org/x/xerrors"
)

// MaxDifficulty is the highest difficulty supported by the proof of work.
const MaxDifficulty = 255

var (
	headerFormats = registry.NewSimpleRegistry()
	blockFormats  = registry.NewSimpleRegistry()
)

// RegisterHeaderFormat registers the engine for the provided format.
func RegisterHeaderFormat(f serde.Format, e serde.FormatEngine) {
	headerFormats.Register(f, e)
}

// RegisterBlockFormat registers the engine for the provided format.
func RegisterBlockFormat(f serde.Format, e serde.FormatEngine) {
	blockFormats.Register(f, e)
}

// Header is the header of a block created with a proof of work. The digest of
// the header must be lower than the target of the difficulty.
//
// - implements ordering.Header
type Header struct {
	index      uint64
	previous   []byte
	root       []byte
	dataHash   []byte
	difficulty uint32
	nonce      uint64
	hash       []byte
}

// HeaderOption is the type of option to set some fields of a header.
type HeaderOption func(*Header)

// WithIndex is an option to set the index of the block.
func WithIndex(index uint64) HeaderOption {
	return func(h *Header) {
		h.index = index
	}
}

// WithPrevious is an option to set the digest of the previous block.
func WithPrevious(digest []byte) HeaderOption {
	return func(h *Header) {
		h.previous = digest
	}
}

// WithRoot is an option to set the root of the global state tree.
func WithRoot(root []byte) HeaderOption {
	return func(h *Header) {
		h.root = root
	}
}

// WithDataHash is an option to set the digest of the payload.
func WithDataHash(digest []byte) HeaderOption {
	return func(h *Header) {
		h.dataHash = digest
	}
}

// WithDifficulty is an option to set the number of leading zero bits the
// digest must have.
func WithDifficulty(diff uint32) HeaderOption {
	return func(h *Header) {
		h.difficulty = diff
	}
}

// WithNonce is an option to set the nonce of the header.
func WithNonce(nonce uint64) HeaderOption {
	return func(h *Header) {
		h.nonce = nonce
	}
}

// NewHeader creates a new header from the options and computes its digest.
// The proof of work is not performed.
func NewHeader(fac crypto.HashFactory, opts ...HeaderOption) (Header, error) {
	h := Header{}

	for _, opt := range opts {
		opt(&h)
	}

	digest, err := h.computeHash(fac)
	if err != nil {
		return h, xerrors.Errorf("failed to compute hash: %v", err)
	}

	h.hash = digest

	return h, nil
}

// GetIndex implements ordering.Header. It returns the index of the block.
func (h Header) GetIndex() uint64 {
	return h.index
}

// GetPrevious returns the digest of the previous block.
func (h Header) GetPrevious() []byte {
	return append([]byte{}, h.previous...)
}

// GetRoot implements ordering.Header. It returns the root of the global state
// tree.
func (h Header) GetRoot() []byte {
	return append([]byte{}, h.root...)
}

// GetDataHash returns the digest of the payload of the block.
func (h Header) GetDataHash() []byte {
	return append([]byte{}, h.dataHash...)
}

// GetDifficulty returns the difficulty of the proof of work.
func (h Header) GetDifficulty() uint32 {
	return h.difficulty
}

// GetNonce returns the nonce of the proof of work.
func (h Header) GetNonce() uint64 {
	return h.nonce
}

// GetHash implements ordering.Header. It returns the digest of the header.
func (h Header) GetHash() []byte {
	return append([]byte{}, h.hash...)
}

// Fingerprint implements serde.Fingerprinter. It writes a deterministic binary
// representation of the header, the nonce included.
func (h Header) Fingerprint(w io.Writer) error {
	err := h.fingerprintPrefix(w)
	if err != nil {
		return err
	}

	_, err = w.Write(uint64Bytes(h.nonce))
	if err != nil {
		return xerrors.Errorf("couldn't write nonce: %v", err)
	}

	return nil
}

// Verify implements ordering.Header. It checks that the digest matches the
// content of the header and the target of the difficulty.
func (h Header) Verify(fac crypto.HashFactory) error {
	digest, err := h.computeHash(fac)
	if err != nil {
		return xerrors.Errorf("failed to compute hash: %v", err)
	}

	if !bytes.Equal(digest, h.hash) {
		return xerrors.Errorf("mismatch hash %#x != %#x", digest, h.hash)
	}

	if !checkHash(digest, makeTarget(h.difficulty)) {
		return xerrors.Errorf("hash %#x does not match difficulty %d", digest, h.difficulty)
	}

	return nil
}

// Serialize implements serde.Message. It returns the serialized data of the
// header.
func (h Header) Serialize(ctx serde.Context) ([]byte, error) {
	format := headerFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, h)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode header: %v", err)
	}

	return data, nil
}

func (h Header) fingerprintPrefix(w io.Writer) error {
	_, err := w.Write(uint64Bytes(h.index))
	if err != nil {
		return xerrors.Errorf("couldn't write index: %v", err)
	}

	for _, field := range [][]byte{h.previous, h.root, h.dataHash} {
		_, err = w.Write(field)
		if err != nil {
			return xerrors.Errorf("couldn't write digest: %v", err)
		}
	}

	diff := make([]byte, 4)
	binary.LittleEndian.PutUint32(diff, h.difficulty)

	_, err = w.Write(diff)
	if err != nil {
		return xerrors.Errorf("couldn't write difficulty: %v", err)
	}

	return nil
}

func (h Header) computeHash(fac crypto.HashFactory) ([]byte, error) {
	digest := fac.New()

	err := h.Fingerprint(digest)
	if err != nil {
		return nil, err
	}

	return digest.Sum(nil), nil
}

// mine is the actual proof of work on the header. It will find the nonce to
// match the difficulty level.
func (h *Header) mine(ctx context.Context, fac crypto.HashFactory) error {
	digest := fac.New()

	err := h.fingerprintPrefix(digest)
	if err != nil {
		return err
	}

	// The state before writing the nonce is saved so it does not need to be
	// computed all the time.
	marshaler, ok := digest.(encoding.BinaryMarshaler)
	if !ok {
		return xerrors.Errorf("hash '%T' state cannot be saved", digest)
	}

	inter, err := marshaler.MarshalBinary()
	if err != nil {
		return xerrors.Errorf("failed to save hash state: %v", err)
	}

	var res []byte
	target := makeTarget(h.difficulty)

	nonce := h.nonce
	attempt := fac.New()

	for !checkHash(res, target) {
		// Allow the proof of work to be aborted at any time if the context is
		// cancelled earlier.
		if ctx.Err() != nil {
			return xerrors.Errorf("context error: %v", ctx.Err())
		}

		nonce++

		res, err = tryNonce(attempt, inter, nonce)
		if err != nil {
			return err
		}
	}

	h.nonce = nonce
	h.hash = res

	return nil
}

func tryNonce(digest hash.Hash, state []byte, nonce uint64) ([]byte, error) {
	unmarshaler, ok := digest.(encoding.BinaryUnmarshaler)
	if !ok {
		return nil, xerrors.Errorf("hash '%T' state cannot be restored", digest)
	}

	// Restore the state before the nonce is written.
	err := unmarshaler.UnmarshalBinary(state)
	if err != nil {
		return nil, xerrors.Errorf("failed to restore hash state: %v", err)
	}

	_, err = digest.Write(uint64Bytes(nonce))
	if err != nil {
		return nil, xerrors.Errorf("failed to write nonce: %v", err)
	}

	return digest.Sum(nil), nil
}

// HeaderFactory is the factory to deserialize headers. The digest of a header
// is recomputed from its content.
//
// - implements ordering.HeaderFactory
type HeaderFactory struct {
	hashFactory crypto.HashFactory
}

// NewHeaderFactory creates a new header factory that uses the hash factory to
// compute the digests.
func NewHeaderFactory(fac crypto.HashFactory) HeaderFactory {
	return HeaderFactory{
		hashFactory: fac,
	}
}

// GetHashFactory returns the hash factory of the headers.
func (f HeaderFactory) GetHashFactory() crypto.HashFactory {
	return f.hashFactory
}

// Deserialize implements serde.Factory. It populates the header if
// appropriate, otherwise it returns an error.
func (f HeaderFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.HeaderOf(ctx, data)
}

// HeaderOf implements ordering.HeaderFactory. It returns the header of the
// data if appropriate, otherwise an error.
func (f HeaderFactory) HeaderOf(ctx serde.Context, data []byte) (ordering.Header, error) {
	format := headerFormats.Get(ctx.GetFormat())

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode header: %v", err)
	}

	header, ok := msg.(Header)
	if !ok {
		return nil, xerrors.Errorf("invalid header of type '%T'", msg)
	}

	header.hash, err = header.computeHash(f.hashFactory)
	if err != nil {
		return nil, xerrors.Errorf("failed to compute hash: %v", err)
	}

	return header, nil
}

// Block is a batch of validated transactions with the header that commits to
// them and to the state after them.
//
// - implements serde.Message
type Block struct {
	header Header
	data   validation.Result
}

// NewBlock creates a new block for the payload and performs the proof of work
// on its header. The digest of the payload is computed from the fingerprint of
// the data.
func NewBlock(ctx context.Context, data validation.Result, fac crypto.HashFactory,
	opts ...HeaderOption) (Block, error) {

	digest := fac.New()

	err := data.Fingerprint(digest)
	if err != nil {
		return Block{}, xerrors.Errorf("failed to fingerprint data: %v", err)
	}

	opts = append(opts, WithDataHash(digest.Sum(nil)))

	header := Header{}
	for _, opt := range opts {
		opt(&header)
	}

	err = header.mine(ctx, fac)
	if err != nil {
		return Block{}, xerrors.Errorf("failed to mine: %v", err)
	}

	return Block{header: header, data: data}, nil
}

// GetHeader returns the header of the block.
func (b Block) GetHeader() Header {
	return b.header
}

// GetIndex returns the index of the block.
func (b Block) GetIndex() uint64 {
	return b.header.index
}

// GetData returns the payload of the block.
func (b Block) GetData() validation.Result {
	return b.data
}

// Serialize implements serde.Message. It returns the serialized data of the
// block.
func (b Block) Serialize(ctx serde.Context) ([]byte, error) {
	format := blockFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, b)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode block: %v", err)
	}

	return data, nil
}

// HeaderKey is the key of the header factory.
type HeaderKey struct{}

// DataKey is the key of the validation result factory.
type DataKey struct{}

// BlockFactory is the factory to deserialize blocks.
//
// - implements serde.Factory
type BlockFactory struct {
	headerFac HeaderFactory
	dataFac   validation.ResultFactory
}

// NewBlockFactory creates a new block factory.
func NewBlockFactory(hf HeaderFactory, df validation.ResultFactory) BlockFactory {
	return BlockFactory{
		headerFac: hf,
		dataFac:   df,
	}
}

// Deserialize implements serde.Factory. It populates the block if appropriate,
// otherwise it returns an error.
func (f BlockFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.BlockOf(ctx, data)
}

// BlockOf returns the block of the data if appropriate, otherwise an error.
// The digest of the payload must match the header.
func (f BlockFactory) BlockOf(ctx serde.Context, data []byte) (Block, error) {
	format := blockFormats.Get(ctx.GetFormat())

	ctx = serde.WithFactory(ctx, HeaderKey{}, f.headerFac)
	ctx = serde.WithFactory(ctx, DataKey{}, f.dataFac)

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return Block{}, xerrors.Errorf("failed to decode block: %v", err)
	}

	block, ok := msg.(Block)
	if !ok {
		return Block{}, xerrors.Errorf("invalid block of type '%T'", msg)
	}

	digest := f.headerFac.hashFactory.New()

	err = block.data.Fingerprint(digest)
	if err != nil {
		return Block{}, xerrors.Errorf("failed to fingerprint data: %v", err)
	}

	if !bytes.Equal(digest.Sum(nil), block.header.dataHash) {
		return Block{}, xerrors.Errorf("mismatch data hash for block %d", block.GetIndex())
	}

	return block, nil
}

func makeTarget(diff uint32) *big.Int {
	target := new(big.Int)
	if diff > MaxDifficulty {
		return target
	}

	target.SetBit(target, 256-int(diff), 1)

	return target
}

func checkHash(hash []byte, limit *big.Int) bool {
	if len(hash) == 0 {
		return false
	}

	value := new(big.Int)
	value.SetBytes(hash)

	return value.Cmp(limit) == -1
}

func uint64Bytes(value uint64) []byte {
	buffer := make([]byte, 8)
	binary.LittleEndian.PutUint64(buffer, value)

	return buffer
}
