// Package config provides unified configuration loading for simreplay.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvandessel/simreplay/internal/constants"
	"github.com/nvandessel/simreplay/internal/engine"
	"github.com/nvandessel/simreplay/internal/params"
	"github.com/nvandessel/simreplay/internal/replay"
	"gopkg.in/yaml.v3"
)

// Config contains all simreplay configuration settings.
type Config struct {
	// Engine describes how the simulator is constructed. Engine.Params
	// holds the simulation parameters.
	Engine engine.Config `json:"engine" yaml:"engine"`

	// Replay selects the replayed agent and tolerances.
	Replay ReplayConfig `json:"replay" yaml:"replay"`

	// Store configures run history persistence.
	Store StoreConfig `json:"store" yaml:"store"`

	// Logging contains settings for operational and trace logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ReplayConfig selects what to replay.
type ReplayConfig struct {
	World      int               `json:"world" yaml:"world"`
	Agent      int               `json:"agent" yaml:"agent"`
	// Tolerances of all zeros fall back to 1e-2 each rather than exact matching.
	Tolerances replay.Tolerances `json:"tolerances" yaml:"tolerances"`
	// Parallel bounds how many scenarios are replayed concurrently.
	Parallel int `json:"parallel" yaml:"parallel"`
}

// StoreConfig configures run history.
type StoreConfig struct {
	// Backend is "sqlite" (default) or "memory".
	Backend constants.StoreBackend `json:"backend" yaml:"backend"`
	// Path is the SQLite database file. Supports ${VAR} syntax.
	Path string `json:"path" yaml:"path"`
}

// LoggingConfig configures simreplay's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables the per-step replay trace in TraceDir.
	Level string `json:"level" yaml:"level"`

	// TraceDir holds one JSONL trace file per replay.
	TraceDir string `json:"trace_dir,omitempty" yaml:"trace_dir,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Engine: engine.DefaultConfig(),
		Replay: ReplayConfig{
			World:      0,
			Agent:      0,
			Tolerances: replay.DefaultTolerances(),
			Parallel:   1,
		},
		Store: StoreConfig{
			Backend: constants.BackendSQLite,
			Path:    filepath.Join(HomeDir(), "runs.db"),
		},
		Logging: LoggingConfig{
			Level:    "info",
			TraceDir: HomeDir(),
		},
	}
}

// HomeDir returns ~/.simreplay, or .simreplay when the home directory is
// unknown.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".simreplay"
	}
	return filepath.Join(home, ".simreplay")
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.simreplay/config.yaml -> environment variables
func Load() (*Config, error) {
	config := Default()

	configPath := filepath.Join(HomeDir(), "config.yaml")
	if _, statErr := os.Stat(configPath); statErr == nil {
		fileConfig, loadErr := LoadFromFile(configPath)
		if loadErr != nil {
			return nil, fmt.Errorf("loading config file: %w", loadErr)
		}
		config = fileConfig
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadPath loads path with environment overrides applied, or behaves like
// Load when path is empty.
func LoadPath(path string) (*Config, error) {
	if path == "" {
		return Load()
	}
	config, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(config)
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Engine.DataPath = expandEnvVars(config.Engine.DataPath)
	config.Store.Path = expandEnvVars(config.Store.Path)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}

	if c.Replay.World < 0 || c.Replay.World >= c.Engine.NumWorlds {
		return &params.ConfigurationError{
			Field:  "replay.world",
			Value:  strconv.Itoa(c.Replay.World),
			Reason: fmt.Sprintf("must be in [0,%d)", c.Engine.NumWorlds),
		}
	}
	if c.Replay.Agent < 0 || c.Replay.Agent >= c.Engine.MaxAgentCount {
		return &params.ConfigurationError{
			Field:  "replay.agent",
			Value:  strconv.Itoa(c.Replay.Agent),
			Reason: fmt.Sprintf("must be in [0,%d)", c.Engine.MaxAgentCount),
		}
	}
	if err := c.Replay.Tolerances.Validate(); err != nil {
		return err
	}
	if c.Replay.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1, got %d", c.Replay.Parallel)
	}

	if c.Store.Backend != "" && !c.Store.Backend.Valid() {
		return fmt.Errorf("invalid store backend: %s (valid: sqlite, memory)", c.Store.Backend)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("SIMREPLAY_DATA_PATH"); v != "" {
		config.Engine.DataPath = expandEnvVars(v)
	}

	if v := os.Getenv("SIMREPLAY_EXEC_MODE"); v != "" {
		if m, err := engine.ParseExecMode(v); err == nil {
			config.Engine.ExecMode = m
		}
	}

	if v := os.Getenv("SIMREPLAY_NUM_WORLDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Engine.NumWorlds = n
		}
	}

	if v := os.Getenv("SIMREPLAY_AUTO_RESET"); v != "" {
		config.Engine.AutoReset = v == "true" || v == "1"
	}

	if v := os.Getenv("SIMREPLAY_WORLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Replay.World = n
		}
	}

	if v := os.Getenv("SIMREPLAY_AGENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Replay.Agent = n
		}
	}

	if v := os.Getenv("SIMREPLAY_STORE_PATH"); v != "" {
		config.Store.Path = expandEnvVars(v)
	}

	if v := os.Getenv("SIMREPLAY_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
