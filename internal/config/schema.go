// Package config provides configuration loading and validation for strata.
// It supports TOML configuration files with environment variable expansion,
// default values, and validation.
//
// Configuration structure:
//   - [storage]: data directory for database and view index files
//   - [daemon]: compaction daemon check interval, thresholds and concurrency
//   - [rules]: location and poll interval of the hot-reloadable rules file
//   - [logging]: logging level, format, and output
//   - [metrics]: optional Prometheus listener
//
// Environment variables can be referenced using ${VAR} or ${VAR:default}
// syntax, for example: data_dir = "${STRATA_DATA:/var/lib/strata}".
package config

// Config represents the main application configuration.
type Config struct {
	Storage StorageConfig `toml:"storage"`
	Daemon  DaemonConfig  `toml:"daemon"`
	Rules   RulesConfig   `toml:"rules"`
	Logging LoggingConfig `toml:"logging"`
	Metrics MetricsConfig `toml:"metrics"`
}

// StorageConfig describes where the storage engine keeps its files.
type StorageConfig struct {
	DataDir string `toml:"data_dir"`
}

// DaemonConfig configures the compaction daemon loop.
type DaemonConfig struct {
	Enabled              bool   `toml:"enabled"`
	CheckIntervalSeconds int    `toml:"check_interval_seconds"`
	MinFileSizeBytes     int64  `toml:"min_file_size_bytes"`
	MaxParallel          int    `toml:"max_parallel"`
	Schedule             string `toml:"schedule"` // optional cron expression gating checks
}

// RulesConfig configures the hot-reloadable compaction rules file.
type RulesConfig struct {
	Path                string `toml:"path"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

// MetricsConfig configures the Prometheus metrics listener.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}
