package abci

import (
	"bytes"
	"encoding/binary"
	"io"

	"go.dedis.ch/swarm/core/ordering"
	"go.dedis.ch/swarm/crypto"
	"go.dedis.ch/swarm/serde"
	"golang.org/x/xerrors"
)

// Header is the header of a block decided by the consensus engine. It commits
// to the root of the global state tree after the block, which is also the
// application hash of the block.
//
// - implements ordering.Header
type Header struct {
	height uint64
	root   []byte
	hash   []byte
}

// NewHeader creates a new header for the height and computes its digest.
func NewHeader(fac crypto.HashFactory, height uint64, root []byte) (Header, error) {
	h := Header{
		height: height,
		root:   root,
	}

	digest, err := h.computeHash(fac)
	if err != nil {
		return h, xerrors.Errorf("failed to compute hash: %v", err)
	}

	h.hash = digest

	return h, nil
}

// GetIndex implements ordering.Header. It returns the height of the block.
func (h Header) GetIndex() uint64 {
	return h.height
}

// GetRoot implements ordering.Header. It returns the root of the global state
// tree.
func (h Header) GetRoot() []byte {
	return append([]byte{}, h.root...)
}

// GetHash implements ordering.Header. It returns the digest of the header.
func (h Header) GetHash() []byte {
	return append([]byte{}, h.hash...)
}

// Fingerprint implements serde.Fingerprinter. It writes a deterministic binary
// representation of the header.
func (h Header) Fingerprint(w io.Writer) error {
	buffer := make([]byte, 8)
	binary.LittleEndian.PutUint64(buffer, h.height)

	_, err := w.Write(buffer)
	if err != nil {
		return xerrors.Errorf("couldn't write height: %v", err)
	}

	_, err = w.Write(h.root)
	if err != nil {
		return xerrors.Errorf("couldn't write root: %v", err)
	}

	return nil
}

// Verify implements ordering.Header. It checks that the digest matches the
// content. The finality of the block is guaranteed by the consensus engine.
func (h Header) Verify(fac crypto.HashFactory) error {
	digest, err := h.computeHash(fac)
	if err != nil {
		return xerrors.Errorf("failed to compute hash: %v", err)
	}

	if !bytes.Equal(digest, h.hash) {
		return xerrors.Errorf("mismatch hash %#x != %#x", digest, h.hash)
	}

	return nil
}

// Serialize implements serde.Message. It returns the JSON data of the header.
func (h Header) Serialize(ctx serde.Context) ([]byte, error) {
	m := HeaderJSON{
		Height: h.height,
		Root:   h.root,
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal: %v", err)
	}

	return data, nil
}

func (h Header) computeHash(fac crypto.HashFactory) ([]byte, error) {
	digest := fac.New()

	err := h.Fingerprint(digest)
	if err != nil {
		return nil, err
	}

	return digest.Sum(nil), nil
}

// HeaderJSON is the JSON message of a header.
type HeaderJSON struct {
	Height uint64
	Root   []byte
}

// HeaderFactory is the factory to deserialize headers.
//
// - implements ordering.HeaderFactory
type HeaderFactory struct {
	hashFactory crypto.HashFactory
}

// NewHeaderFactory creates a new header factory.
func NewHeaderFactory(fac crypto.HashFactory) HeaderFactory {
	return HeaderFactory{
		hashFactory: fac,
	}
}

// Deserialize implements serde.Factory. It populates the header if
// appropriate, otherwise it returns an error.
func (f HeaderFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.HeaderOf(ctx, data)
}

// HeaderOf implements ordering.HeaderFactory. It returns the header of the
// data, with its digest recomputed.
func (f HeaderFactory) HeaderOf(ctx serde.Context, data []byte) (ordering.Header, error) {
	m := HeaderJSON{}

	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal: %v", err)
	}

	header, err := NewHeader(f.hashFactory, m.Height, m.Root)
	if err != nil {
		return nil, err
	}

	return header, nil
}
