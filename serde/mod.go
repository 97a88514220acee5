// Package serde defines the primitives to serialize and deserialize (serde)
// the data models of the ledger.
//
// A message implementation does not know how it is encoded. It looks up the
// format engine registered for the format of the context, which allows a
// package to declare its data models while a sub-package registers the
// concrete encodings.
package serde

import "io"

// Format is the identifier of a serialization format.
type Format string

// FormatJSON is the identifier of the JSON format.
const FormatJSON Format = "JSON"

// Message is the interface a data model should implement to be serialized.
type Message interface {
	// Serialize returns the bytes of the message encoded with the format of
	// the context.
	Serialize(ctx Context) ([]byte, error)
}

// Factory is the interface to implement to instantiate a data model from the
// raw message.
type Factory interface {
	// Deserialize returns the message decoded from the data with the format of
	// the context.
	Deserialize(ctx Context, data []byte) (Message, error)
}

// Fingerprinter is the interface implemented by messages that can produce a
// deterministic binary representation of themselves, usually to compute a
// digest.
type Fingerprinter interface {
	// Fingerprint writes a deterministic binary representation of the object
	// into the writer.
	Fingerprint(writer io.Writer) error
}

// FormatEngine is the interface to implement to support a format for a
// message.
type FormatEngine interface {
	// Encode returns the bytes of the message.
	Encode(ctx Context, message Message) ([]byte, error)

	// Decode returns the message from the data.
	Decode(ctx Context, data []byte) (Message, error)
}
