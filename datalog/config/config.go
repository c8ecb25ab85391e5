// Package config loads janus-live settings from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wbrown/janus-live/datalog/storage"
)

// Config holds all janus-live configuration.
type Config struct {
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Planner    PlannerConfig    `yaml:"planner"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Watch      WatchConfig      `yaml:"watch"`
}

// EvaluationConfig configures both worker sessions.
type EvaluationConfig struct {
	Workers   int    `yaml:"workers"`    // 0 = one per CPU
	Store     string `yaml:"store"`      // memory, badger
	MaxRounds int    `yaml:"max_rounds"` // 0 = unbounded in practice
}

// PlannerConfig configures rule compilation.
type PlannerConfig struct {
	CacheSize int `yaml:"cache_size"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level       string `yaml:"level"`  // debug, info, warn, error
	Format      string `yaml:"format"` // console, json
	Annotations bool   `yaml:"annotations"`
}

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// WatchConfig configures the watch command.
type WatchConfig struct {
	Debounce string `yaml:"debounce"`
}

var (
	ValidStores     = []string{storage.BackendMemory, storage.BackendBadger}
	ValidLevels     = []string{"debug", "info", "warn", "error"}
	ValidLogFormats = []string{"console", "json"}
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Evaluation: EvaluationConfig{
			Store: storage.BackendMemory,
		},
		Planner: PlannerConfig{
			CacheSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Address: "127.0.0.1:9464",
		},
		Watch: WatchConfig{
			Debounce: "100ms",
		},
	}
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults; environment variables override the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("JANUS_LIVE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("JANUS_LIVE_WORKERS: %w", err)
		}
		c.Evaluation.Workers = n
	}
	if v := os.Getenv("JANUS_LIVE_STORE"); v != "" {
		c.Evaluation.Store = v
	}
	if v := os.Getenv("JANUS_LIVE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// GetDebounce returns the watch debounce interval, defaulting to 100ms
func (c *Config) GetDebounce() time.Duration {
	if d, err := time.ParseDuration(c.Watch.Debounce); err == nil {
		return d
	}
	return 100 * time.Millisecond
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	if c.Evaluation.Workers < 0 {
		return fmt.Errorf("invalid worker count: %d", c.Evaluation.Workers)
	}
	if c.Evaluation.MaxRounds < 0 {
		return fmt.Errorf("invalid max rounds: %d", c.Evaluation.MaxRounds)
	}
	if !slices.Contains(ValidStores, c.Evaluation.Store) {
		return fmt.Errorf("invalid store: %s (valid: %v)", c.Evaluation.Store, ValidStores)
	}
	if !slices.Contains(ValidLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLevels)
	}
	if !slices.Contains(ValidLogFormats, c.Logging.Format) {
		return fmt.Errorf("invalid log format: %s (valid: %v)", c.Logging.Format, ValidLogFormats)
	}
	if c.Watch.Debounce != "" {
		if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
			return fmt.Errorf("invalid watch debounce: %w", err)
		}
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics enabled without an address")
	}
	return nil
}
