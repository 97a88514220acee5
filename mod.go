// Package swarm defines the global variables shared by the packages of the
// voting ledger.
//
// The logger level can be changed with the LLVL environment variable, which
// accepts the zerolog level names (trace, debug, info, warn, error, fatal,
// panic) or "disabled". The default level is info.
package swarm

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// EnvLogLevel is the name of the environment variable to change the logging
// level.
const EnvLogLevel = "LLVL"

const defaultLevel = zerolog.InfoLevel

var logout = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// Logger is a globally available logger instance.
var Logger = zerolog.New(logout).
	With().Timestamp().Logger().
	With().Caller().Logger().
	Level(levelFromEnv())

// PromCollectors exposes the Prometheus collectors created by the packages of
// the module. They are registered by the proxy when the metrics handler is
// started.
var PromCollectors []prometheus.Collector

func levelFromEnv() zerolog.Level {
	lvl := os.Getenv(EnvLogLevel)
	if lvl == "" {
		return defaultLevel
	}

	level, err := zerolog.ParseLevel(lvl)
	if err != nil {
		return defaultLevel
	}

	return level
}
