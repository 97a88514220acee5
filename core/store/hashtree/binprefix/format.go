package binprefix

import (
	"go.dedis.ch/swarm/serde"
	"golang.org/x/xerrors"
)

func init() {
	RegisterNodeFormat(serde.FormatJSON, nodeFormat{})
	RegisterPathFormat(serde.FormatJSON, pathFormat{})
}

// ChildJSON is the JSON representation of a reference to a child.
type ChildJSON struct {
	Type   byte
	Digest []byte
}

// LeafNodeJSON is the JSON representation of a leaf node.
type LeafNodeJSON struct {
	Depth uint16
	Key   []byte
	Value []byte
}

// InteriorNodeJSON is the JSON representation of an interior node.
type InteriorNodeJSON struct {
	Depth uint16
	Left  ChildJSON
	Right ChildJSON
}

// NodeJSON is the wrapper around the different types of a tree node.
type NodeJSON struct {
	Leaf     *LeafNodeJSON     `json:",omitempty"`
	Interior *InteriorNodeJSON `json:",omitempty"`
}

// PathJSON is the JSON representation of a path.
type PathJSON struct {
	Nonce     []byte
	Key       []byte
	Value     []byte
	LeafKey   []byte
	LeafValue []byte
	Interiors [][]byte
}

// nodeFormat is the engine to encode and decode tree nodes in JSON format.
//
// - implements serde.FormatEngine
type nodeFormat struct{}

// Encode implements serde.FormatEngine. It returns the JSON data of the node.
func (f nodeFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	var m NodeJSON

	switch node := msg.(type) {
	case LeafNode:
		m.Leaf = &LeafNodeJSON{
			Depth: node.depth,
			Key:   node.key,
			Value: node.value,
		}
	case InteriorNode:
		m.Interior = &InteriorNodeJSON{
			Depth: node.depth,
			Left:  ChildJSON(node.left),
			Right: ChildJSON(node.right),
		}
	default:
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine. It returns the node of the JSON data.
func (f nodeFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := NodeJSON{}
	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal: %v", err)
	}

	if m.Leaf != nil {
		value := m.Leaf.Value
		if value == nil {
			value = []byte{}
		}

		return NewLeafNode(m.Leaf.Depth, m.Leaf.Key, value), nil
	}

	if m.Interior != nil {
		node := NewInteriorNode(
			m.Interior.Depth,
			Child(m.Interior.Left),
			Child(m.Interior.Right),
		)

		return node, nil
	}

	return nil, xerrors.New("message is empty")
}

// pathFormat is the engine to encode and decode paths in JSON format.
//
// - implements serde.FormatEngine
type pathFormat struct{}

// Encode implements serde.FormatEngine. It returns the JSON data of the path.
func (f pathFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	path, ok := msg.(Path)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	m := PathJSON{
		Nonce:     path.nonce,
		Key:       path.key,
		Value:     path.value,
		LeafKey:   path.leafKey,
		LeafValue: path.leafValue,
		Interiors: path.interiors,
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine. It returns the path of the JSON data.
// The root is not computed.
func (f pathFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := PathJSON{}
	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal: %v", err)
	}

	path := NewPath(m.Nonce, m.Key, m.Value, m.LeafKey, m.LeafValue, m.Interiors)

	return path, nil
}
