package config

import "context"

// Package config provides configuration management for the basinops kernel.
//
// Configuration sources (priority order, high to low):
//   1. Environment variables (BASINOPS_* prefix)
//   2. YAML config file (path passed to NewManager)
//   3. Built-in defaults
//
// Sections:
//
//   executor
//      - max_parallel: concurrency bound for scatter-gather (default 6)
//      - tool_timeout_ms: per-invocation timeout
//      - max_retries: retries for retryable failures
//      - retry_backoff_ms: base of the exponential backoff
//
//   auth
//      - enabled: when false every call is allowed (demo configurations)
//
//   audit
//      - enabled: when false the audit trail is a total no-op
//      - path: directory receiving the dated JSONL files
//
//   logging
//      - level, file_path, max_size_mb, max_backups, max_age_days, compress
//
//   metrics
//      - enabled, listen_addr for the /metrics endpoint
//
//   demo
//      - enabled: wire the simulated worker backend at startup
//      - failure_rate, latency_ms: fault/latency injection for the simulator

// Config contains all configuration fields.
type Config struct {
	// Executor configuration
	Executor struct {
		MaxParallel    int
		ToolTimeoutMs  int
		MaxRetries     int
		RetryBackoffMs int
	}

	// Auth configuration
	Auth struct {
		Enabled bool
	}

	// Audit trail configuration
	Audit struct {
		Enabled bool
		Path    string
	}

	// Application logging configuration
	Logging struct {
		Level      string
		FilePath   string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
		Compress   bool
	}

	// Metrics endpoint configuration
	Metrics struct {
		Enabled    bool
		ListenAddr string
	}

	// Demo / simulated backend configuration
	Demo struct {
		Enabled     bool
		FailureRate float64
		LatencyMs   int
	}
}

// ConfigManager loads, validates and watches configuration.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and emits reloaded configs.
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error
}

// NewManager creates a ConfigManager reading from the given file path.
// The file is optional; defaults and environment variables always apply.
func NewManager(configPath string) ConfigManager {
	return &viperConfigManager{
		configPath: configPath,
		watchChan:  make(chan Config, 1),
	}
}
