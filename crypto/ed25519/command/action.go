package command

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"go.dedis.ch/swarm/cli"
	"go.dedis.ch/swarm/crypto/ed25519"
	"go.dedis.ch/swarm/crypto/loader"
	"golang.org/x/xerrors"
)

// Formats of the public key printed by the show command. The hexadecimal form
// is the one expected by the voting commands.
const (
	FormatHex    = "hex"
	FormatBase64 = "base64"
	FormatText   = "text"
)

// keyAction holds the dependencies of the key commands.
type keyAction struct {
	out    io.Writer
	newKey func() ([]byte, error)
	open   func(path string) loader.Loader
}

func (a keyAction) generate(flags cli.Flags) error {
	data, err := a.newKey()
	if err != nil {
		return xerrors.Errorf("failed to generate key: %v", err)
	}

	path := flags.Path("out")
	if path == "" {
		fmt.Fprintln(a.out, hex.EncodeToString(data))
		return nil
	}

	err = a.open(path).Store(data, flags.Bool("force"))
	if err != nil {
		return xerrors.Errorf("failed to store key (use --force to replace "+
			"it): %v", err)
	}

	return nil
}

func (a keyAction) show(flags cli.Flags) error {
	data, err := a.open(flags.Path("path")).Load()
	if err != nil {
		return xerrors.Errorf("failed to load key: %v", err)
	}

	signer, err := ed25519.NewSignerFromBytes(data)
	if err != nil {
		return xerrors.Errorf("invalid key: %v", err)
	}

	pk := signer.GetPublicKey()

	raw, err := pk.MarshalBinary()
	if err != nil {
		return xerrors.Errorf("failed to encode public key: %v", err)
	}

	var text string

	switch format := flags.String("format"); format {
	case FormatHex:
		text = hex.EncodeToString(raw)
	case FormatBase64:
		text = base64.StdEncoding.EncodeToString(raw)
	case FormatText:
		buf, err := pk.MarshalText()
		if err != nil {
			return xerrors.Errorf("failed to encode public key: %v", err)
		}

		text = string(buf)
	default:
		return xerrors.Errorf("unknown format '%s'", format)
	}

	fmt.Fprintln(a.out, text)

	return nil
}
