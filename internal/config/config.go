package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads, parses and normalizes a TOML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	expandEnvVars(&cfg)

	return &cfg, nil
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() []error {
	var errors []error

	if c.Storage.DataDir == "" {
		errors = append(errors, fmt.Errorf("storage.data_dir is required"))
	}

	if c.Daemon.CheckIntervalSeconds <= 0 {
		errors = append(errors, fmt.Errorf("daemon.check_interval_seconds must be positive, got %d", c.Daemon.CheckIntervalSeconds))
	}
	if c.Daemon.MinFileSizeBytes < 0 {
		errors = append(errors, fmt.Errorf("daemon.min_file_size_bytes cannot be negative, got %d", c.Daemon.MinFileSizeBytes))
	}
	if c.Daemon.MaxParallel < 0 {
		errors = append(errors, fmt.Errorf("daemon.max_parallel cannot be negative, got %d", c.Daemon.MaxParallel))
	}

	if c.Rules.Path == "" {
		errors = append(errors, fmt.Errorf("rules.path is required"))
	}
	if c.Rules.PollIntervalSeconds <= 0 {
		errors = append(errors, fmt.Errorf("rules.poll_interval_seconds must be positive, got %d", c.Rules.PollIntervalSeconds))
	}

	if c.Logging.Level == "" {
		errors = append(errors, fmt.Errorf("logging.level is required"))
	} else {
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[strings.ToLower(c.Logging.Level)] {
			errors = append(errors, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
		}
	}
	if c.Logging.Format == "" {
		errors = append(errors, fmt.Errorf("logging.format is required"))
	} else {
		validFormats := map[string]bool{"json": true, "text": true}
		if !validFormats[strings.ToLower(c.Logging.Format)] {
			errors = append(errors, fmt.Errorf("invalid logging.format: %s (expected: json, text)", c.Logging.Format))
		}
	}
	if c.Logging.Output == "" {
		errors = append(errors, fmt.Errorf("logging.output is required"))
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errors = append(errors, fmt.Errorf("metrics.listen is required when metrics are enabled"))
	}

	return errors
}

func expandEnvVars(c *Config) {
	c.Storage.DataDir = expandEnv(c.Storage.DataDir)
	c.Rules.Path = expandEnv(c.Rules.Path)
	c.Logging.Output = expandEnv(c.Logging.Output)
	c.Metrics.Listen = expandEnv(c.Metrics.Listen)
}

// expandEnv expands a ${VAR} or ${VAR:default} reference.
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") {
		return s
	}

	end := strings.Index(s, "}")
	if end < 0 {
		return s
	}

	expr := s[2:end]
	name, def := expr, ""
	if i := strings.Index(expr, ":"); i >= 0 {
		name, def = expr[:i], expr[i+1:]
	}

	if value, ok := os.LookupEnv(name); ok && value != "" {
		return value + s[end+1:]
	}
	return def + s[end+1:]
}
