// Package main implements a node of the voting ledger.
//
// The node orders the transactions either with its own proof-of-work chain,
// or as the application of a CometBFT node when the ordering of the
// configuration is "abci".
//
//	swarm --config /tmp/node start
//	swarm --config /tmp/node voting create --subject aa --drone bb --wait 10s
//	swarm --config /tmp/node voting vote --subject aa --validator cc \
//	  --action 1 --decision approve
//	swarm --config /tmp/node voting info --subject aa --verify
//	swarm --config /tmp/node ordering info
//	swarm key show --path /tmp/node/private.key
package main

import (
	"fmt"
	"io"
	"os"

	"go.dedis.ch/swarm/cli"
	"go.dedis.ch/swarm/cli/node"
	voting "go.dedis.ch/swarm/contracts/voting/controller"
	keys "go.dedis.ch/swarm/crypto/ed25519/command"
	ordering "go.dedis.ch/swarm/core/ordering/controller"
	proxy "go.dedis.ch/swarm/proxy/http/controller"
)

type config struct {
	Channel chan os.Signal
	Writer  io.Writer
}

func main() {
	err := run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	return runWithCfg(args, config{Writer: os.Stdout})
}

func runWithCfg(args []string, cfg config) error {
	builder := node.NewBuilderWithCfg(
		cfg.Channel,
		cfg.Writer,
		ordering.NewController(),
		proxy.NewController(),
		voting.NewController(),
		ordering.NewListener(),
		localCommands{keys.Initializer{}},
	)

	app := builder.Build()

	return app.Run(args)
}

// localCommands adds commands that run in the client without the daemon.
//
// - implements node.Initializer
type localCommands struct {
	cli.Initializer
}

// SetCommands implements node.Initializer. The node builder is handed to the
// embedded initializer as a plain command provider.
func (c localCommands) SetCommands(builder node.Builder) {
	c.Initializer.SetCommands(builder)
}

// OnStart implements node.Initializer.
func (localCommands) OnStart(cli.Flags, node.Injector) error {
	return nil
}

// OnStop implements node.Initializer.
func (localCommands) OnStop(node.Injector) error {
	return nil
}
