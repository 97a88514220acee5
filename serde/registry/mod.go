// Package registry maps the serialization formats to the engines of a type of
// message.
//
// A lookup always yields an engine. An unknown format resolves to an engine
// failing every call, so that a message can be encoded without checking the
// format first.
package registry

import "go.dedis.ch/swarm/serde"

// Registry stores an engine per format.
type Registry interface {
	// Register sets the engine of the format, replacing any previous one.
	Register(serde.Format, serde.FormatEngine)

	Get(serde.Format) serde.FormatEngine
}
