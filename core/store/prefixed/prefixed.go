// Package prefixed implements a store adapter that isolates the keys of a
// component in a namespace of a shared store.
//
// The keys are hashed together with the namespace so that two namespaces can
// never collide, whatever the length of their keys.
package prefixed

import (
	"encoding/binary"

	"go.dedis.ch/swarm/core/store"
	"go.dedis.ch/swarm/crypto"
)

// namespace translates the keys before they reach the parent store. The
// writable side is nil for a read-only namespace.
//
// - implements store.Snapshot
type namespace struct {
	prefix []byte
	rd     store.Readable
	wr     store.Writable
}

// NewSnapshot returns the snapshot of the namespace in the parent snapshot.
func NewSnapshot(prefix string, parent store.Snapshot) store.Snapshot {
	return namespace{prefix: []byte(prefix), rd: parent, wr: parent}
}

// NewReadable returns the read-only view of the namespace in the parent store.
func NewReadable(prefix string, parent store.Readable) store.Readable {
	return namespace{prefix: []byte(prefix), rd: parent}
}

// Get implements store.Readable.
func (ns namespace) Get(key []byte) ([]byte, error) {
	return ns.rd.Get(NewPrefixedKey(ns.prefix, key))
}

// Set implements store.Writable.
func (ns namespace) Set(key, value []byte) error {
	return ns.wr.Set(NewPrefixedKey(ns.prefix, key), value)
}

// Delete implements store.Writable.
func (ns namespace) Delete(key []byte) error {
	return ns.wr.Delete(NewPrefixedKey(ns.prefix, key))
}

// NewPrefixedKey returns the SHA-256 digest of the prefix and the key, each
// one preceded by its length as a little-endian uint16.
func NewPrefixedKey(prefix, key []byte) []byte {
	buf := make([]byte, 0, 4+len(prefix)+len(key))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(prefix)))
	buf = append(buf, prefix...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(key)))
	buf = append(buf, key...)

	h := crypto.NewSha256Factory().New()
	h.Write(buf)

	return h.Sum(nil)
}
