package pow

import (
	"encoding/json"

	"go.dedis.ch/swarm/core/validation"
	"go.dedis.ch/swarm/serde"
	"golang.org/x/xerrors"
)

func init() {
	RegisterHeaderFormat(serde.FormatJSON, headerFormat{})
	RegisterBlockFormat(serde.FormatJSON, blockFormat{})
}

// HeaderJSON is the JSON message of a header. The digest is not sent as it is
// recomputed from the content.
type HeaderJSON struct {
	Index      uint64
	Previous   []byte
	Root       []byte
	DataHash   []byte
	Difficulty uint32
	Nonce      uint64
}

// BlockJSON is the JSON message of a block.
type BlockJSON struct {
	Header json.RawMessage
	Data   json.RawMessage
}

// headerFormat is the engine to encode and decode headers in JSON.
//
// - implements serde.FormatEngine
type headerFormat struct{}

// Encode implements serde.FormatEngine. It returns the JSON data of the header.
func (f headerFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	header, ok := msg.(Header)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	m := HeaderJSON{
		Index:      header.index,
		Previous:   header.previous,
		Root:       header.root,
		DataHash:   header.dataHash,
		Difficulty: header.difficulty,
		Nonce:      header.nonce,
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine. It returns the header of the JSON
// data. The digest is left empty.
func (f headerFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := HeaderJSON{}
	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal: %v", err)
	}

	header := Header{
		index:      m.Index,
		previous:   m.Previous,
		root:       m.Root,
		dataHash:   m.DataHash,
		difficulty: m.Difficulty,
		nonce:      m.Nonce,
	}

	return header, nil
}

// blockFormat is the engine to encode and decode blocks in JSON.
//
// - implements serde.FormatEngine
type blockFormat struct{}

// Encode implements serde.FormatEngine. It returns the JSON data of the block.
func (f blockFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	block, ok := msg.(Block)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	header, err := block.header.Serialize(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to serialize header: %v", err)
	}

	payload, err := block.data.Serialize(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to serialize data: %v", err)
	}

	m := BlockJSON{
		Header: header,
		Data:   payload,
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine. It returns the block of the JSON data.
func (f blockFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := BlockJSON{}
	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal: %v", err)
	}

	hfac, ok := ctx.GetFactory(HeaderKey{}).(HeaderFactory)
	if !ok {
		return nil, xerrors.Errorf("invalid header factory '%T'", ctx.GetFactory(HeaderKey{}))
	}

	header, err := hfac.HeaderOf(ctx, m.Header)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode header: %v", err)
	}

	dfac, ok := ctx.GetFactory(DataKey{}).(validation.ResultFactory)
	if !ok {
		return nil, xerrors.Errorf("invalid data factory '%T'", ctx.GetFactory(DataKey{}))
	}

	payload, err := dfac.ResultOf(ctx, m.Data)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode data: %v", err)
	}

	block := Block{
		header: header.(Header),
		data:   payload,
	}

	return block, nil
}
