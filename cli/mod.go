// Package cli declares an application as a tree of commands, independently of
// the library that parses the arguments. Each package contributes its own
// commands to the tree:
//
//	cmd := provider.SetCommand("key")
//	cmd.SetDescription("manage keys")
//
//	sub := cmd.SetSubCommand("show")
//	sub.SetFlags(StringFlag{Name: "path", Required: true})
//	sub.SetAction(func(flags Flags) error {
//		return show(flags.Path("path"))
//	})
package cli

import "time"

// Provider creates the top-level commands of an application.
type Provider interface {
	SetCommand(name string) CommandBuilder
}

// Builder is a provider that can produce the application once every command
// is declared.
type Builder interface {
	Provider

	Build() Application
}

// Initializer is implemented by a package to declare its commands.
type Initializer interface {
	SetCommands(Provider)
}

// Application runs the command selected by the arguments.
type Application interface {
	Run(arguments []string) error
}

// CommandBuilder declares a command.
type CommandBuilder interface {
	SetDescription(value string)

	SetFlags(...Flag)

	// SetAction sets the function run when the command is selected. A command
	// with subcommands usually has none.
	SetAction(Action)

	SetSubCommand(name string) CommandBuilder
}

// Action is run with the flags of the command line.
type Action func(Flags) error

// Flag is the definition of a flag. The implementations are StringFlag,
// StringSliceFlag, DurationFlag, IntFlag and BoolFlag.
type Flag interface {
	Flag()
}

// Flags gives the values of the flags of a command and of its parents.
type Flags interface {
	String(name string) string

	Duration(name string) time.Duration

	Path(name string) string

	Int(name string) int

	Bool(name string) bool
}
