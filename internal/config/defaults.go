package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Executor defaults
	cfg.Executor.MaxParallel = 6
	cfg.Executor.ToolTimeoutMs = 30000
	cfg.Executor.MaxRetries = 2
	cfg.Executor.RetryBackoffMs = 1000

	// Auth defaults
	cfg.Auth.Enabled = true

	// Audit defaults
	cfg.Audit.Enabled = true
	cfg.Audit.Path = "logs/audit"

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.FilePath = "logs/kerneld.log"
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 10
	cfg.Logging.MaxAgeDays = 30
	cfg.Logging.Compress = true

	// Metrics defaults
	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddr = ":9090"

	// Demo defaults
	cfg.Demo.Enabled = true
	cfg.Demo.FailureRate = 0
	cfg.Demo.LatencyMs = 0

	return cfg
}
