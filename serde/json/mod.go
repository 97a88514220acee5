// Package json provides the context of the JSON format, the one used by the
// ledger for its transactions, blocks and proofs.
package json

import (
	"encoding/json"

	"go.dedis.ch/swarm/serde"
)

// engine relies on the standard encoding so that the messages are readable
// by any HTTP client of the proxy.
//
// - implements serde.ContextEngine
type engine struct{}

// NewContext returns a context of the JSON format.
func NewContext() serde.Context {
	return serde.NewContext(engine{})
}

// GetFormat implements serde.ContextEngine.
func (engine) GetFormat() serde.Format {
	return serde.FormatJSON
}

// Marshal implements serde.ContextEngine.
func (engine) Marshal(m interface{}) ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal implements serde.ContextEngine. Unknown fields are ignored.
func (engine) Unmarshal(data []byte, m interface{}) error {
	return json.Unmarshal(data, m)
}
