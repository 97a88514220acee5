package registry

import (
	"sync"

	"go.dedis.ch/swarm/serde"
	"golang.org/x/xerrors"
)

// SimpleRegistry is a registry safe for concurrent use. The engines are
// usually registered by the init functions of the format packages.
//
// - implements registry.Registry
type SimpleRegistry struct {
	engines sync.Map
}

// NewSimpleRegistry returns an empty registry.
func NewSimpleRegistry() *SimpleRegistry {
	return &SimpleRegistry{}
}

// Register implements registry.Registry.
func (r *SimpleRegistry) Register(f serde.Format, e serde.FormatEngine) {
	r.engines.Store(f, e)
}

// Get implements registry.Registry.
func (r *SimpleRegistry) Get(f serde.Format) serde.FormatEngine {
	e, found := r.engines.Load(f)
	if !found {
		return missingFormat(f)
	}

	return e.(serde.FormatEngine)
}

// missingFormat is the engine of a format without registration.
//
// - implements serde.FormatEngine
type missingFormat serde.Format

// Encode implements serde.FormatEngine.
func (f missingFormat) Encode(serde.Context, serde.Message) ([]byte, error) {
	return nil, f.err()
}

// Decode implements serde.FormatEngine.
func (f missingFormat) Decode(serde.Context, []byte) (serde.Message, error) {
	return nil, f.err()
}

func (f missingFormat) err() error {
	return xerrors.Errorf("format '%s' is not implemented", string(f))
}
