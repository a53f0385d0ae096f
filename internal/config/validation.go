package config

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	if c.Executor.MaxParallel < 1 {
		errs = append(errs, &ValidationError{
			Field:   "executor.max_parallel",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Executor.MaxParallel),
		})
	}

	if c.Executor.ToolTimeoutMs < 1 {
		errs = append(errs, &ValidationError{
			Field:   "executor.tool_timeout_ms",
			Message: fmt.Sprintf("must be positive, got %d", c.Executor.ToolTimeoutMs),
		})
	}

	if c.Executor.MaxRetries < 0 {
		errs = append(errs, &ValidationError{
			Field:   "executor.max_retries",
			Message: fmt.Sprintf("must not be negative, got %d", c.Executor.MaxRetries),
		})
	}

	if c.Executor.RetryBackoffMs < 1 {
		errs = append(errs, &ValidationError{
			Field:   "executor.retry_backoff_ms",
			Message: fmt.Sprintf("must be positive, got %d", c.Executor.RetryBackoffMs),
		})
	}

	if c.Audit.Enabled && c.Audit.Path == "" {
		errs = append(errs, &ValidationError{
			Field:   "audit.path",
			Message: "path is required when audit is enabled",
		})
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unknown level %q", c.Logging.Level),
		})
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		errs = append(errs, &ValidationError{
			Field:   "metrics.listen_addr",
			Message: "listen_addr is required when metrics are enabled",
		})
	}

	if c.Demo.FailureRate < 0 || c.Demo.FailureRate > 1 {
		errs = append(errs, &ValidationError{
			Field:   "demo.failure_rate",
			Message: fmt.Sprintf("must be within [0,1], got %v", c.Demo.FailureRate),
		})
	}

	return errs
}
