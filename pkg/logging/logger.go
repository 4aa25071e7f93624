// Package logging constructs the engine's structured zerolog loggers.
//
// Subsystems receive a logger by value at construction rather than reaching
// for a process-wide instance, so tests and embedders control output per
// simulation.
package logging

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a logger for the named application at the given level, in
// "console" (human-readable, timestamped) or "json" format.
func New(app, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parse log level %q: %w", level, err)
	}

	var logger zerolog.Logger
	switch format {
	case "json":
		logger = zerolog.New(os.Stdout)
	case "console":
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", format)
	}

	return logger.Level(lvl).With().Timestamp().Str("app", app).Logger(), nil
}
