// Package ucli implements the CLI builder with urfave/cli.
package ucli

import (
	"fmt"

	urfave "github.com/urfave/cli/v2"
	"go.dedis.ch/swarm/cli"
)

// Builder builds a urfave application.
//
// - implements cli.Builder
type Builder struct {
	name     string
	action   cli.Action
	flags    []cli.Flag
	commands []*cmdBuilder
}

// NewBuilder returns a builder of an application. The action runs when no
// command is given and can be nil. The flags are global to the commands.
func NewBuilder(name string, action cli.Action, flags ...cli.Flag) cli.Builder {
	return &Builder{
		name:   name,
		action: action,
		flags:  flags,
	}
}

// SetCommand implements cli.Provider.
func (b *Builder) SetCommand(name string) cli.CommandBuilder {
	cmd := &cmdBuilder{name: name}
	b.commands = append(b.commands, cmd)

	return cmd
}

// Build implements cli.Builder. The application is set up, so that the help
// command is the last one.
func (b *Builder) Build() cli.Application {
	app := &urfave.App{
		Name:     b.name,
		Flags:    toUrfaveFlags(b.flags),
		Action:   toUrfaveAction(b.action),
		Commands: toUrfaveCommands(b.commands),
	}

	app.Setup()

	return app
}

// cmdBuilder collects the definition of a command.
//
// - implements cli.CommandBuilder
type cmdBuilder struct {
	name        string
	description string
	action      cli.Action
	flags       []cli.Flag
	subcommands []*cmdBuilder
}

// SetDescription implements cli.CommandBuilder.
func (b *cmdBuilder) SetDescription(value string) {
	b.description = value
}

// SetFlags implements cli.CommandBuilder. It replaces the flags of the
// command.
func (b *cmdBuilder) SetFlags(flags ...cli.Flag) {
	b.flags = flags
}

// SetAction implements cli.CommandBuilder.
func (b *cmdBuilder) SetAction(action cli.Action) {
	b.action = action
}

// SetSubCommand implements cli.CommandBuilder.
func (b *cmdBuilder) SetSubCommand(name string) cli.CommandBuilder {
	sub := &cmdBuilder{name: name}
	b.subcommands = append(b.subcommands, sub)

	return sub
}

func toUrfaveCommands(cmds []*cmdBuilder) []*urfave.Command {
	res := make([]*urfave.Command, 0, len(cmds))

	for _, cmd := range cmds {
		res = append(res, &urfave.Command{
			Name:        cmd.name,
			Usage:       cmd.description,
			Flags:       toUrfaveFlags(cmd.flags),
			Action:      toUrfaveAction(cmd.action),
			Subcommands: toUrfaveCommands(cmd.subcommands),
		})
	}

	return res
}

// toUrfaveFlags converts the definitions. It panics on an unknown definition,
// which is a programming error.
func toUrfaveFlags(flags []cli.Flag) []urfave.Flag {
	res := make([]urfave.Flag, 0, len(flags))

	for _, flag := range flags {
		res = append(res, toUrfaveFlag(flag))
	}

	return res
}

func toUrfaveFlag(flag cli.Flag) urfave.Flag {
	switch f := flag.(type) {
	case cli.StringFlag:
		return &urfave.StringFlag{Name: f.Name, Usage: f.Usage, Required: f.Required, Value: f.Value}
	case cli.StringSliceFlag:
		return &urfave.StringSliceFlag{Name: f.Name, Usage: f.Usage, Required: f.Required,
			Value: urfave.NewStringSlice(f.Value...)}
	case cli.DurationFlag:
		return &urfave.DurationFlag{Name: f.Name, Usage: f.Usage, Required: f.Required, Value: f.Value}
	case cli.IntFlag:
		return &urfave.IntFlag{Name: f.Name, Usage: f.Usage, Required: f.Required, Value: f.Value}
	case cli.BoolFlag:
		return &urfave.BoolFlag{Name: f.Name, Usage: f.Usage, Required: f.Required, Value: f.Value}
	}

	panic(fmt.Sprintf("flag type '%T' not supported", flag))
}

// toUrfaveAction wraps the action. The urfave context implements cli.Flags.
func toUrfaveAction(action cli.Action) urfave.ActionFunc {
	if action == nil {
		return nil
	}

	return func(ctx *urfave.Context) error {
		return action(ctx)
	}
}
