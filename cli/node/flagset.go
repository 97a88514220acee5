package node

import (
	"math"
	"time"
)

// FlagSet holds the values of the flags of a command so that they can be sent
// to the daemon. The values decoded from JSON are strings, booleans, floats
// and slices of interfaces, which the getters convert back. A missing or
// mistyped value reads as the zero value.
//
// - implements cli.Flags
type FlagSet map[string]interface{}

// String implements cli.Flags.
func (fset FlagSet) String(name string) string {
	v, _ := fset[name].(string)
	return v
}

// StringSlice returns the strings of the flag, or nil.
func (fset FlagSet) StringSlice(name string) []string {
	switch v := fset[name].(type) {
	case []string:
		return v
	case []interface{}:
		values := make([]string, 0, len(v))

		for _, elem := range v {
			str, ok := elem.(string)
			if !ok {
				return nil
			}

			values = append(values, str)
		}

		return values
	}

	return nil
}

// Duration implements cli.Flags. A duration travels as its number of
// nanoseconds.
func (fset FlagSet) Duration(name string) time.Duration {
	switch v := fset[name].(type) {
	case time.Duration:
		return v
	case float64:
		return time.Duration(v)
	}

	return 0
}

// Path implements cli.Flags.
func (fset FlagSet) Path(name string) string {
	return fset.String(name)
}

// Int implements cli.Flags. A float is accepted when it has no fractional
// part.
func (fset FlagSet) Int(name string) int {
	switch v := fset[name].(type) {
	case int:
		return v
	case float64:
		if v == math.Trunc(v) {
			return int(v)
		}
	}

	return 0
}

// Bool implements cli.Flags.
func (fset FlagSet) Bool(name string) bool {
	v, _ := fset[name].(bool)
	return v
}
