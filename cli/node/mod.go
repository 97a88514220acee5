// Package node builds the command-line application of a swarm node.
//
// The start command loads the configuration of the config folder, starts the
// initializers in order and serves the actions on a UNIX socket until the
// process is interrupted. Every other command runs in a separate process that
// forwards its flags to the running node, which executes the action and
// streams its output back.
package node

import (
	"io"

	"go.dedis.ch/swarm/cli"
)

// Builder is given to the initializers so that they declare their commands.
type Builder interface {
	// SetCommand returns the builder of a new top-level command.
	SetCommand(name string) cli.CommandBuilder

	// SetStartFlags adds flags to the start command.
	SetStartFlags(...cli.Flag)

	// MakeAction returns the action of a command that executes the template
	// on the running node.
	MakeAction(ActionTemplate) cli.Action
}

// ActionTemplate is the part of a command executed by the node.
type ActionTemplate interface {
	Execute(Context) error
}

// Context is what an action has access to on the node: the components of the
// initializers, the flags of the command and the output of the client.
type Context struct {
	Injector Injector
	Flags    cli.Flags
	Out      io.Writer
}

// Injector shares the components between the initializers and the actions.
type Injector interface {
	// Resolve sets the pointer to the first dependency assignable to it.
	Resolve(interface{}) error

	// Inject adds a dependency.
	Inject(interface{})
}

// Initializer is a module of the node. It declares its commands, and creates
// its components when the node starts.
type Initializer interface {
	SetCommands(Builder)

	// OnStart creates the components with the start flags and the
	// dependencies of the previous initializers, and injects them.
	OnStart(cli.Flags, Injector) error

	// OnStop releases the components. The initializers are stopped in the
	// reverse order.
	OnStop(Injector) error
}

// Client sends a request to the daemon of the node.
type Client interface {
	Send([]byte) error
}

// Daemon receives the requests of the clients while the node runs.
type Daemon interface {
	Listen() error
	Close() error
}

// DaemonFactory creates the daemon and its clients from the flags of a
// command.
type DaemonFactory interface {
	ClientFromContext(cli.Flags) (Client, error)
	DaemonFromContext(cli.Flags) (Daemon, error)
}
