// This file contains the builder of the node application.

package node

import (
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	urfave "github.com/urfave/cli/v2"
	"go.dedis.ch/swarm"
	"go.dedis.ch/swarm/cli"
	"go.dedis.ch/swarm/cli/ucli"
	"golang.org/x/xerrors"
)

// CLIBuilder builds the application of a node: the start command runs the
// initializers and the daemon, the other commands are forwarded to it.
//
// - implements node.Builder
// - implements cli.Builder
type CLIBuilder struct {
	cli.Builder

	daemonFactory DaemonFactory
	injector      Injector
	actions       *actionMap
	startFlags    []cli.Flag
	inits         []Initializer

	// stop is the channel that stops the daemon. It is fed by the signals of
	// the process unless it is provided to the builder.
	stop       chan os.Signal
	ownSignals bool
}

// NewBuilder returns a new builder of the initializers, writing the output of
// the actions to the standard output.
func NewBuilder(inits ...Initializer) *CLIBuilder {
	return NewBuilderWithCfg(nil, nil, inits...)
}

// NewBuilderWithCfg returns a new builder. The daemon is stopped by the
// channel if any, otherwise by SIGINT or SIGTERM. The output of the actions is
// written to out, or to the standard output when nil.
func NewBuilderWithCfg(stop chan os.Signal, out io.Writer, inits ...Initializer) *CLIBuilder {
	if out == nil {
		out = os.Stdout
	}

	ownSignals := stop == nil
	if ownSignals {
		stop = make(chan os.Signal, 1)
	}

	injector := NewInjector()
	actions := &actionMap{}

	root := ucli.NewBuilder("swarm", nil, cli.StringFlag{
		Name:  "config",
		Usage: "path to the config folder",
		Value: ".swarm",
	})

	return &CLIBuilder{
		Builder:  root,
		injector: injector,
		actions:  actions,
		daemonFactory: socketFactory{
			injector: injector,
			actions:  actions,
			out:      out,
		},
		inits:      inits,
		stop:       stop,
		ownSignals: ownSignals,
	}
}

// SetStartFlags implements node.Builder.
func (b *CLIBuilder) SetStartFlags(flags ...cli.Flag) {
	b.startFlags = append(b.startFlags, flags...)
}

// MakeAction implements node.Builder. The action sends the index of the
// template and the flags of the command to the daemon, which executes the
// template with them.
func (b *CLIBuilder) MakeAction(tmpl ActionTemplate) cli.Action {
	index := b.actions.Set(tmpl)

	return func(flags cli.Flags) error {
		client, err := b.daemonFactory.ClientFromContext(flags)
		if err != nil {
			return xerrors.Errorf("couldn't make client: %v", err)
		}

		req := request{
			Action: index,
			Flags:  collectFlags(flags.(*urfave.Context)),
		}

		data, err := json.Marshal(req)
		if err != nil {
			return xerrors.Errorf("failed to marshal request: %v", err)
		}

		err = client.Send(data)
		if err != nil {
			return xerrors.Opaque(err)
		}

		return nil
	}
}

// collectFlags returns the values of the flags of the command and of its
// parents. A flag of a command hides the one of a parent with the same name.
func collectFlags(ctx *urfave.Context) FlagSet {
	fset := FlagSet{}

	lineage := ctx.Lineage()
	for i := len(lineage) - 1; i >= 0; i-- {
		c := lineage[i]

		if c.App != nil {
			collect(fset, c, c.App.Flags)
		}

		if c.Command != nil {
			collect(fset, c, c.Command.Flags)
		}
	}

	return fset
}

func collect(fset FlagSet, ctx *urfave.Context, flags []urfave.Flag) {
	for _, flag := range flags {
		names := flag.Names()
		if len(names) == 0 {
			continue
		}

		value := ctx.Value(names[0])

		// A string slice is only marshaled correctly as its values.
		slice, ok := value.(urfave.StringSlice)
		if ok {
			value = slice.Value()
		}

		fset[names[0]] = value
	}
}

// Build implements cli.Builder. It adds the start command to the commands of
// the initializers.
func (b *CLIBuilder) Build() cli.Application {
	for _, init := range b.inits {
		init.SetCommands(b)
	}

	cmd := b.SetCommand("start")
	cmd.SetDescription("start the daemon of the node")
	cmd.SetFlags(b.startFlags...)
	cmd.SetAction(b.start)

	return b.Builder.Build()
}

func (b *CLIBuilder) start(flags cli.Flags) error {
	if b.ownSignals {
		signal.Notify(b.stop, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(b.stop)
	}

	dir := flags.Path("config")
	if dir != "" {
		err := os.MkdirAll(dir, 0700)
		if err != nil {
			return xerrors.Errorf("couldn't make path: %v", err)
		}
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		return xerrors.Errorf("couldn't load config: %v", err)
	}

	b.injector.Inject(cfg)

	daemon, err := b.daemonFactory.DaemonFromContext(flags)
	if err != nil {
		return xerrors.Errorf("couldn't make daemon: %v", err)
	}

	for _, init := range b.inits {
		err = init.OnStart(flags, b.injector)
		if err != nil {
			return xerrors.Errorf("couldn't run the controller: %v", err)
		}
	}

	// The actions can only be received once every component is running.
	err = daemon.Listen()
	if err != nil {
		return xerrors.Errorf("couldn't start the daemon: %v", err)
	}

	defer daemon.Close()

	swarm.Logger.Info().Str("config", dir).Msg("node is running")

	<-b.stop

	// Reverse order so that a component stops before the ones it depends on.
	for i := len(b.inits) - 1; i >= 0; i-- {
		err = b.inits[i].OnStop(b.injector)
		if err != nil {
			return xerrors.Errorf("couldn't stop controller: %v", err)
		}
	}

	swarm.Logger.Info().Msg("node has been stopped")

	return nil
}

// actionMap assigns an index to each template.
type actionMap struct {
	list []ActionTemplate
}

func (m *actionMap) Set(a ActionTemplate) uint16 {
	m.list = append(m.list, a)

	return uint16(len(m.list) - 1)
}

func (m *actionMap) Get(index uint16) ActionTemplate {
	if int(index) >= len(m.list) {
		return nil
	}

	return m.list[index]
}
