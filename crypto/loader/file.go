package loader

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"

	"golang.org/x/xerrors"
)

// keyPerm only lets the owner read the key.
const keyPerm fs.FileMode = 0400

// ErrExist is returned by Store when a key is already present.
var ErrExist = errors.New("key already exists")

// fileLoader keeps the key in a single file.
//
// - implements loader.Loader
type fileLoader struct {
	path string

	readFile  func(name string) ([]byte, error)
	writeFile func(name string, data []byte, perm fs.FileMode) error
	remove    func(name string) error
}

// NewFileLoader returns a loader of the key in the file at the given path.
func NewFileLoader(path string) Loader {
	return fileLoader{
		path:      path,
		readFile:  os.ReadFile,
		writeFile: os.WriteFile,
		remove:    os.Remove,
	}
}

// Load implements loader.Loader.
func (l fileLoader) Load() ([]byte, error) {
	text, err := l.readFile(l.path)
	if err != nil {
		return nil, xerrors.Errorf("while reading file: %w", err)
	}

	data, err := hex.DecodeString(string(bytes.TrimSpace(text)))
	if err != nil {
		return nil, xerrors.Errorf("malformed key: %v", err)
	}

	return data, nil
}

// LoadOrCreate implements loader.Loader.
func (l fileLoader) LoadOrCreate(g Generator) ([]byte, error) {
	data, err := l.Load()
	if err == nil {
		return data, nil
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return nil, xerrors.Errorf("failed to load file: %w", err)
	}

	data, err = g.Generate()
	if err != nil {
		return nil, xerrors.Errorf("generator failed: %v", err)
	}

	err = l.Store(data, false)
	if err != nil {
		return nil, xerrors.Errorf("failed to store key: %v", err)
	}

	return data, nil
}

// Store implements loader.Loader. The file is replaced rather than written in
// place as the owner has no write permission on it.
func (l fileLoader) Store(data []byte, overwrite bool) error {
	_, err := l.readFile(l.path)
	switch {
	case err == nil && !overwrite:
		return xerrors.Errorf("%s: %w", l.path, ErrExist)
	case err == nil:
		err = l.remove(l.path)
		if err != nil {
			return xerrors.Errorf("while removing file: %v", err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return xerrors.Errorf("while reading file: %v", err)
	}

	err = l.writeFile(l.path, []byte(hex.EncodeToString(data)+"\n"), keyPerm)
	if err != nil {
		return xerrors.Errorf("while writing file: %v", err)
	}

	return nil
}
