// Package loader reads and writes the keys of a node. A key is kept on disk
// hex-encoded so that it can be copied by hand between machines.
package loader

// Generator produces the bytes of a new key.
type Generator interface {
	Generate() ([]byte, error)
}

// Loader gives access to a key kept in a storage.
type Loader interface {
	// Load returns the key, or an error when there is none.
	Load() ([]byte, error)

	// LoadOrCreate returns the key if there is one. Otherwise the generator
	// makes a new key which is stored before being returned.
	LoadOrCreate(Generator) ([]byte, error)

	// Store writes the key. An existing key is only replaced when overwrite
	// is set.
	Store(data []byte, overwrite bool) error
}
