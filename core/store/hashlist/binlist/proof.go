package binlist

import (
	"bytes"

	"go.dedis.ch/swarm/crypto"
	"go.dedis.ch/swarm/serde"
	"go.dedis.ch/swarm/serde/registry"
	"golang.org/x/xerrors"
)

var proofFormats = registry.NewSimpleRegistry()

// RegisterProofFormat registers the engine for the provided format.
func RegisterProofFormat(format serde.Format, engine serde.FormatEngine) {
	proofFormats.Register(format, engine)
}

// RangeProof is a proof that a range of entries is part of a list. It contains
// the hashes of the subtrees that are disjoint from the range, from left to
// right, in the order they are met by the split of RFC 6962.
//
// - implements hashlist.RangeProof
// - implements serde.Message
type RangeProof struct {
	start       uint64
	end         uint64
	length      uint64
	hashes      [][]byte
	hashFactory crypto.HashFactory
}

// NewRangeProof creates a new range proof from its components.
func NewRangeProof(start, end, length uint64, hashes [][]byte) RangeProof {
	return RangeProof{
		start:       start,
		end:         end,
		length:      length,
		hashes:      hashes,
		hashFactory: crypto.NewSha256Factory(),
	}
}

// GetStart implements hashlist.RangeProof. It returns the index of the first
// entry of the range.
func (p RangeProof) GetStart() uint64 {
	return p.start
}

// GetEnd implements hashlist.RangeProof. It returns the index after the last
// entry of the range.
func (p RangeProof) GetEnd() uint64 {
	return p.end
}

// GetLen implements hashlist.RangeProof. It returns the length of the list.
func (p RangeProof) GetLen() uint64 {
	return p.length
}

// GetHashes returns the hashes of the subtrees outside of the range.
func (p RangeProof) GetHashes() [][]byte {
	return p.hashes
}

// Verify implements hashlist.RangeProof. It returns nil if the entries and the
// hashes of the proof produce the root, otherwise an error.
func (p RangeProof) Verify(root []byte, entries [][]byte) error {
	if p.start > p.end || p.end > p.length {
		return xerrors.Errorf("invalid range [%d, %d) for length %d", p.start, p.end, p.length)
	}

	if uint64(len(entries)) != p.end-p.start {
		return xerrors.Errorf("expected %d entries but got %d", p.end-p.start, len(entries))
	}

	fac := p.hashFactory
	if fac == nil {
		fac = crypto.NewSha256Factory()
	}

	var computed []byte

	if p.length == 0 {
		computed = emptyRoot(fac)
	} else {
		cursor := 0

		var err error
		computed, err = p.compute(fac, 0, p.length, entries, &cursor)
		if err != nil {
			return xerrors.Errorf("couldn't compute root: %v", err)
		}

		if cursor != len(p.hashes) {
			return xerrors.Errorf("%d unused hashes", len(p.hashes)-cursor)
		}
	}

	if !bytes.Equal(computed, root) {
		return xerrors.Errorf("mismatch root %#x != %#x", computed, root)
	}

	return nil
}

func (p RangeProof) compute(fac crypto.HashFactory, lo, hi uint64, entries [][]byte, cursor *int) ([]byte, error) {
	if hi <= p.start || lo >= p.end {
		if *cursor >= len(p.hashes) {
			return nil, xerrors.Errorf("missing hash for [%d, %d)", lo, hi)
		}

		digest := p.hashes[*cursor]
		*cursor++

		return digest, nil
	}

	if p.start <= lo && hi <= p.end {
		return treeHash(fac, entries[lo-p.start:hi-p.start])
	}

	k := split(hi - lo)

	left, err := p.compute(fac, lo, lo+k, entries, cursor)
	if err != nil {
		return nil, err
	}

	right, err := p.compute(fac, lo+k, hi, entries, cursor)
	if err != nil {
		return nil, err
	}

	return interiorHash(fac, left, right)
}

// Serialize implements serde.Message. It returns the data of the proof.
func (p RangeProof) Serialize(ctx serde.Context) ([]byte, error) {
	format := proofFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, p)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode proof: %v", err)
	}

	return data, nil
}

// treeHash returns the hash of the Merkle tree of the entries.
func treeHash(fac crypto.HashFactory, entries [][]byte) ([]byte, error) {
	if len(entries) == 1 {
		return leafHash(fac, entries[0])
	}

	k := split(uint64(len(entries)))

	left, err := treeHash(fac, entries[:k])
	if err != nil {
		return nil, err
	}

	right, err := treeHash(fac, entries[k:])
	if err != nil {
		return nil, err
	}

	return interiorHash(fac, left, right)
}

// RangeProofFactory is the factory to deserialize range proofs.
//
// - implements serde.Factory
type RangeProofFactory struct {
	hashFactory crypto.HashFactory
}

// NewRangeProofFactory returns a factory of proofs that verify with the hash
// function.
func NewRangeProofFactory(fac crypto.HashFactory) RangeProofFactory {
	return RangeProofFactory{hashFactory: fac}
}

// Deserialize implements serde.Factory. It returns the proof of the data,
// otherwise an error.
func (f RangeProofFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.ProofOf(ctx, data)
}

// ProofOf returns the range proof of the data, otherwise an error.
func (f RangeProofFactory) ProofOf(ctx serde.Context, data []byte) (RangeProof, error) {
	format := proofFormats.Get(ctx.GetFormat())

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return RangeProof{}, xerrors.Errorf("format failed: %v", err)
	}

	proof, ok := msg.(RangeProof)
	if !ok {
		return RangeProof{}, xerrors.Errorf("invalid proof of type '%T'", msg)
	}

	proof.hashFactory = f.hashFactory

	return proof, nil
}

// RangeProofJSON is the JSON representation of a range proof.
type RangeProofJSON struct {
	Start  uint64
	End    uint64
	Len    uint64
	Hashes [][]byte
}

func init() {
	RegisterProofFormat(serde.FormatJSON, proofFormat{})
}

// proofFormat is the engine to encode and decode range proofs in JSON format.
//
// - implements serde.FormatEngine
type proofFormat struct{}

// Encode implements serde.FormatEngine. It returns the JSON data of the proof.
func (f proofFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	proof, ok := msg.(RangeProof)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	m := RangeProofJSON{
		Start:  proof.start,
		End:    proof.end,
		Len:    proof.length,
		Hashes: proof.hashes,
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine. It returns the proof of the JSON data.
func (f proofFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := RangeProofJSON{}
	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal: %v", err)
	}

	return NewRangeProof(m.Start, m.End, m.Len, m.Hashes), nil
}
