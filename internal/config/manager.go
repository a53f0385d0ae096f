package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("BASINOPS")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	// The config file is optional; defaults plus env vars are a complete
	// configuration on their own.
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// fall through to defaults
		} else if os.IsNotExist(err) {
			// fall through to defaults
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	m.unmarshalConfig()
	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		m.unmarshalConfig()
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full, skip this update
		}
	})

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	m.unmarshalConfig()
	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	m.viper.SetDefault("executor.max_parallel", defaults.Executor.MaxParallel)
	m.viper.SetDefault("executor.tool_timeout_ms", defaults.Executor.ToolTimeoutMs)
	m.viper.SetDefault("executor.max_retries", defaults.Executor.MaxRetries)
	m.viper.SetDefault("executor.retry_backoff_ms", defaults.Executor.RetryBackoffMs)

	m.viper.SetDefault("auth.enabled", defaults.Auth.Enabled)

	m.viper.SetDefault("audit.enabled", defaults.Audit.Enabled)
	m.viper.SetDefault("audit.path", defaults.Audit.Path)

	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.file_path", defaults.Logging.FilePath)
	m.viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)
	m.viper.SetDefault("logging.compress", defaults.Logging.Compress)

	m.viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	m.viper.SetDefault("metrics.listen_addr", defaults.Metrics.ListenAddr)

	m.viper.SetDefault("demo.enabled", defaults.Demo.Enabled)
	m.viper.SetDefault("demo.failure_rate", defaults.Demo.FailureRate)
	m.viper.SetDefault("demo.latency_ms", defaults.Demo.LatencyMs)
}

// unmarshalConfig copies viper values into the typed Config struct.
func (m *viperConfigManager) unmarshalConfig() {
	cfg := &Config{}

	cfg.Executor.MaxParallel = m.viper.GetInt("executor.max_parallel")
	cfg.Executor.ToolTimeoutMs = m.viper.GetInt("executor.tool_timeout_ms")
	cfg.Executor.MaxRetries = m.viper.GetInt("executor.max_retries")
	cfg.Executor.RetryBackoffMs = m.viper.GetInt("executor.retry_backoff_ms")

	cfg.Auth.Enabled = m.viper.GetBool("auth.enabled")

	cfg.Audit.Enabled = m.viper.GetBool("audit.enabled")
	cfg.Audit.Path = m.viper.GetString("audit.path")

	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.FilePath = m.viper.GetString("logging.file_path")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")
	cfg.Logging.Compress = m.viper.GetBool("logging.compress")

	cfg.Metrics.Enabled = m.viper.GetBool("metrics.enabled")
	cfg.Metrics.ListenAddr = m.viper.GetString("metrics.listen_addr")

	cfg.Demo.Enabled = m.viper.GetBool("demo.enabled")
	cfg.Demo.FailureRate = m.viper.GetFloat64("demo.failure_rate")
	cfg.Demo.LatencyMs = m.viper.GetInt("demo.latency_ms")

	m.config = cfg
}
