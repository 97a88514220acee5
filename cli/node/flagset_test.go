package node

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFlagSet_Getters(t *testing.T) {
	fset := FlagSet{
		"str":      "abc",
		"slice":    []string{"a", "b"},
		"duration": 2 * time.Second,
		"int":      -4,
		"bool":     true,
	}

	require.Equal(t, "abc", fset.String("str"))
	require.Equal(t, "abc", fset.Path("str"))
	require.Equal(t, []string{"a", "b"}, fset.StringSlice("slice"))
	require.Equal(t, 2*time.Second, fset.Duration("duration"))
	require.Equal(t, -4, fset.Int("int"))
	require.True(t, fset.Bool("bool"))

	require.Empty(t, fset.String("int"))
	require.Nil(t, fset.StringSlice("str"))
	require.Zero(t, fset.Duration("str"))
	require.Zero(t, fset.Int("missing"))
	require.False(t, fset.Bool("str"))
}

func TestFlagSet_JSON(t *testing.T) {
	data, err := json.Marshal(FlagSet{
		"str":      "abc",
		"slice":    []string{"a", "b"},
		"duration": 2 * time.Second,
		"int":      -4,
		"bool":     true,
	})
	require.NoError(t, err)

	fset := FlagSet{}
	require.NoError(t, json.Unmarshal(data, &fset))

	require.Equal(t, "abc", fset.String("str"))
	require.Equal(t, []string{"a", "b"}, fset.StringSlice("slice"))
	require.Equal(t, 2*time.Second, fset.Duration("duration"))
	require.Equal(t, -4, fset.Int("int"))
	require.True(t, fset.Bool("bool"))
}

func TestFlagSet_Mistyped(t *testing.T) {
	fset := FlagSet{
		"float": 1.5,
		"mixed": []interface{}{"a", 2.0},
	}

	require.Zero(t, fset.Int("float"))
	require.Nil(t, fset.StringSlice("mixed"))
}
