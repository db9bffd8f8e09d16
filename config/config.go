// Package config holds the engine configuration, loadable from YAML files
// and DUCKTYPE_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// Config represents the complete engine configuration
type Config struct {
	Resolver ResolverConfig `yaml:"resolver"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ResolverConfig controls member resolution
type ResolverConfig struct {
	// Number of resolved members memoised; 0 disables the memo
	CacheSize int `yaml:"cache_size"`
	// Disable the case-insensitive fallback search
	CaseSensitive bool `yaml:"case_sensitive"`
	// Search members promoted from embedded structs
	Embedded bool `yaml:"embedded"`
}

// LoggingConfig controls the engine logger
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls prometheus metrics
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Resolver: ResolverConfig{
			CacheSize:     1024,
			CaseSensitive: false,
			Embedded:      true,
		},
		Logging: LoggingConfig{
			Level:  "WARN",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "ducktype",
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if val := os.Getenv("DUCKTYPE_RESOLVER_CACHE_SIZE"); val != "" {
		size, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid DUCKTYPE_RESOLVER_CACHE_SIZE: %w", err)
		}
		c.Resolver.CacheSize = size
	}
	if val := os.Getenv("DUCKTYPE_RESOLVER_CASE_SENSITIVE"); val != "" {
		c.Resolver.CaseSensitive = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("DUCKTYPE_RESOLVER_EMBEDDED"); val != "" {
		c.Resolver.Embedded = strings.ToLower(val) == "true"
	}

	if val := os.Getenv("DUCKTYPE_LOG_LEVEL"); val != "" {
		c.Logging.Level = strings.ToUpper(val)
	}
	if val := os.Getenv("DUCKTYPE_LOG_FORMAT"); val != "" {
		c.Logging.Format = strings.ToLower(val)
	}

	if val := os.Getenv("DUCKTYPE_METRICS_ENABLED"); val != "" {
		c.Metrics.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("DUCKTYPE_METRICS_NAMESPACE"); val != "" {
		c.Metrics.Namespace = val
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

var validLogLevels = []string{"DEBUG", "INFO", "WARN", "ERROR"}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Resolver.CacheSize < 0 {
		return fmt.Errorf("resolver.cache_size must not be negative")
	}

	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging.format: %s (must be text or json)", c.Logging.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return fmt.Errorf("metrics.namespace is required when metrics are enabled")
	}

	return nil
}

// SlogLevel returns the configured log level
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToUpper(c.Logging.Level) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid logging.level: %s (must be one of: %s)",
			c.Logging.Level, strings.Join(validLogLevels, ", "))
	}
}
