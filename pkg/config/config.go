// Package config provides the application configuration, the scenario file
// schema, scenario discovery and a file watcher for re-running scenarios.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the global configuration for a huntgen run.
type Config struct {
	OutputDir   string          `yaml:"output_dir"`
	ConfigDir   string          `yaml:"config_dir"`
	Parallelism int             `yaml:"parallelism"`
	Logging     LoggingConfig   `yaml:"logging"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		OutputDir:   "output",
		ConfigDir:   "configs",
		Parallelism: 1,
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a file and applies environment variable overrides.
// An empty path yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is controlled by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if val := os.Getenv("HUNTGEN_OUTPUT_DIR"); val != "" {
		cfg.OutputDir = val
	}
	if val := os.Getenv("HUNTGEN_CONFIG_DIR"); val != "" {
		cfg.ConfigDir = val
	}
	if val := os.Getenv("HUNTGEN_PARALLELISM"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("HUNTGEN_PARALLELISM: %w", err)
		}
		cfg.Parallelism = n
	}

	if val := os.Getenv("HUNTGEN_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("HUNTGEN_LOG_PRETTY"); val == "true" {
		cfg.Logging.Pretty = true
	}

	if val := os.Getenv("HUNTGEN_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("HUNTGEN_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	return nil
}

// Validate checks the configuration and fills empty fields with defaults.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.OutputDir) == "" {
		c.OutputDir = "output"
	}
	if c.Parallelism == 0 {
		c.Parallelism = 1
	}
	if c.Parallelism < 0 {
		errs = append(errs, fmt.Errorf("parallelism must be positive, got %d", c.Parallelism))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging configuration: %w", err))
	}
	return errors.Join(errs...)
}

// Validate checks the log level.
func (c *LoggingConfig) Validate() error {
	if c.Level == "" {
		c.Level = "info"
	}
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("unknown log level %q", c.Level)
	}
}
