// Package simconfig loads engine configuration from TOML files.
package simconfig

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config holds the engine settings a driver needs to build and run a
// simulation.
type Config struct {
	// Threads is the worker-pool size target; 0 means single-threaded.
	Threads int `toml:"threads"`

	// Periods is the number of Run calls the driver performs.
	Periods int `toml:"periods"`

	Log LogConfig `toml:"log"`
}

// LogConfig configures engine logging.
type LogConfig struct {
	// Level is the zerolog level name: trace, debug, info, warn, error.
	Level string `toml:"level"`

	// Format is "console" or "json".
	Format string `toml:"format"`
}

// Default returns the configuration used when no file is given: one period,
// single-threaded, info-level console logging.
func Default() Config {
	return Config{
		Periods: 1,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a TOML config file, fills in defaults for unset fields, and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the engine cannot honor.
func (c Config) Validate() error {
	if c.Threads < 0 {
		return fmt.Errorf("threads must be >= 0, got %d", c.Threads)
	}
	if c.Periods < 1 {
		return fmt.Errorf("periods must be >= 1, got %d", c.Periods)
	}
	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}
