package cli

import "time"

// StringFlag defines a flag parsed as a string.
type StringFlag struct {
	Name, Usage string
	Required    bool
	Value       string
}

// StringSliceFlag defines a flag that can be repeated, parsed as a list of
// strings.
type StringSliceFlag struct {
	Name, Usage string
	Required    bool
	Value       []string
}

// DurationFlag defines a flag parsed as a duration such as "10s".
type DurationFlag struct {
	Name, Usage string
	Required    bool
	Value       time.Duration
}

// IntFlag defines a flag parsed as an integer.
type IntFlag struct {
	Name, Usage string
	Required    bool
	Value       int
}

// BoolFlag defines a flag set by its presence.
type BoolFlag struct {
	Name, Usage string
	Required    bool
	Value       bool
}

// Flag implements cli.Flag.
func (StringFlag) Flag() {}

// Flag implements cli.Flag.
func (StringSliceFlag) Flag() {}

// Flag implements cli.Flag.
func (DurationFlag) Flag() {}

// Flag implements cli.Flag.
func (IntFlag) Flag() {}

// Flag implements cli.Flag.
func (BoolFlag) Flag() {}
