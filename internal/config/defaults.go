package config

// Defaults applied when the configuration file leaves a value unset.
const (
	DefaultCheckIntervalSeconds = 60
	DefaultMinFileSizeBytes     = 131072 // 128 KiB
	DefaultMaxParallel          = 2
	DefaultRulesPollSeconds     = 5
)

func applyDefaults(cfg *Config) {
	if cfg.Daemon.CheckIntervalSeconds == 0 {
		cfg.Daemon.CheckIntervalSeconds = DefaultCheckIntervalSeconds
	}
	if cfg.Daemon.MinFileSizeBytes == 0 {
		cfg.Daemon.MinFileSizeBytes = DefaultMinFileSizeBytes
	}
	if cfg.Daemon.MaxParallel == 0 {
		cfg.Daemon.MaxParallel = DefaultMaxParallel
	}
	if cfg.Rules.PollIntervalSeconds == 0 {
		cfg.Rules.PollIntervalSeconds = DefaultRulesPollSeconds
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}
}
