// Package command provides the commands to manage the ed25519 key of a node
// from the command line.
//
//	swarm key new --out node.key
//	swarm key show --path .swarm/private.key --format base64
package command

import (
	"os"

	"go.dedis.ch/swarm/cli"
	"go.dedis.ch/swarm/crypto/ed25519"
	"go.dedis.ch/swarm/crypto/loader"
)

// Initializer adds the key commands to an application.
//
// - implements cli.Initializer
type Initializer struct{}

// SetCommands implements cli.Initializer.
func (Initializer) SetCommands(provider cli.Provider) {
	a := keyAction{
		out:    os.Stdout,
		newKey: newKey,
		open:   loader.NewFileLoader,
	}

	key := provider.SetCommand("key")
	key.SetDescription("manage ed25519 keys")

	sub := key.SetSubCommand("new")
	sub.SetDescription("generate a key, printed unless --out is given")
	sub.SetFlags(
		cli.StringFlag{
			Name:  "out",
			Usage: "file to write the key to",
		},
		cli.BoolFlag{
			Name:  "force",
			Usage: "replace the key of the output file",
		},
	)
	sub.SetAction(a.generate)

	sub = key.SetSubCommand("show")
	sub.SetDescription("print the public key of a key file")
	sub.SetFlags(
		cli.StringFlag{
			Name:     "path",
			Usage:    "key file, such as the private.key of a node",
			Required: true,
		},
		cli.StringFlag{
			Name:  "format",
			Usage: "one of hex, base64 or text",
			Value: FormatHex,
		},
	)
	sub.SetAction(a.show)
}

func newKey() ([]byte, error) {
	return ed25519.NewSigner().MarshalBinary()
}
