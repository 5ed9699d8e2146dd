// Package config loads coordinator configuration.
//
// Configuration comes from a YAML file, with GRAPHLITE_* environment
// variables taking precedence so deployments can override a checked-in
// file without editing it.
//
// Environment variables:
//   - GRAPHLITE_DATA_DIR="./data"
//   - GRAPHLITE_IN_MEMORY=true
//   - GRAPHLITE_SYNC_WRITES=true
//   - GRAPHLITE_MAX_SESSIONS=64
//   - GRAPHLITE_LOG_LEVEL=debug
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the coordinator.
type Config struct {
	// DataDir is the on-disk database directory. Ignored when
	// InMemory is set.
	DataDir string `yaml:"data_dir"`

	// InMemory selects the volatile engine.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites forces every commit to disk before returning.
	SyncWrites bool `yaml:"sync_writes"`

	// MaxSessions bounds concurrently open sessions. Zero means
	// unlimited.
	MaxSessions int `yaml:"max_sessions"`

	// LogLevel is a logrus level name: trace, debug, info, warn,
	// error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when nothing is specified:
// an on-disk database under ./graphlite-data with info logging.
func Default() *Config {
	return &Config{
		DataDir:  "./graphlite-data",
		LogLevel: "info",
	}
}

// Load reads a YAML config file and applies environment overrides. An
// empty path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GRAPHLITE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("GRAPHLITE_IN_MEMORY"); v != "" {
		c.InMemory = parseBool(v, c.InMemory)
	}
	if v := os.Getenv("GRAPHLITE_SYNC_WRITES"); v != "" {
		c.SyncWrites = parseBool(v, c.SyncWrites)
	}
	if v := os.Getenv("GRAPHLITE_MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxSessions = n
		}
	}
	if v := os.Getenv("GRAPHLITE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func parseBool(s string, fallback bool) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return b
}

// Validate rejects configurations the coordinator cannot run with.
func (c *Config) Validate() error {
	if !c.InMemory && c.DataDir == "" {
		return fmt.Errorf("data_dir is required unless in_memory is set")
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("max_sessions must not be negative, got %d", c.MaxSessions)
	}
	switch c.LogLevel {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

// Path returns the storage path Open expects: the data directory, or
// the in-memory marker.
func (c *Config) Path() string {
	if c.InMemory {
		return ":memory:"
	}
	return c.DataDir
}
