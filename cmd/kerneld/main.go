package main

// Package main is the entry point for the basinops kernel daemon.
//
// Responsibilities:
//   - Load and validate configuration from YAML, environment variables, and CLI flags
//   - Build the application logger (stderr plus rotating file)
//   - Initialize the kernel with the built-in worker fleet
//   - Wire the simulated worker backend when demo mode is enabled
//   - Serve the Prometheus /metrics endpoint when metrics are enabled
//   - Optionally run one bundle and print its result as JSON (-bundle flag)
//   - Implement graceful shutdown on SIGINT/SIGTERM
//
// Without -bundle the daemon idles serving metrics until a signal arrives;
// a real deployment fronts the kernel with its own transport and uses this
// binary for smoke-testing the orchestration path.

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/basinops/basinops-kernel/internal/config"
	"github.com/basinops/basinops-kernel/internal/invoker"
	"github.com/basinops/basinops-kernel/internal/kernel"
	"github.com/basinops/basinops-kernel/internal/logging"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		bundleName = flag.String("bundle", "", "run one bundle and print its result as JSON")
		basin      = flag.String("basin", "Permian", "basin argument passed to bundle steps")
	)
	flag.Parse()

	if err := run(*configPath, *bundleName, *basin); err != nil {
		fmt.Fprintf(os.Stderr, "kerneld: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, bundleName, basin string) error {
	ctx := context.Background()

	mgr := config.NewManager(configPath)
	if err := mgr.Load(ctx); err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := mgr.Validate(ctx); err != nil {
		return fmt.Errorf("validating configuration: %w", err)
	}
	cfg := mgr.Get(ctx)

	logger, err := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	k, err := kernel.NewDefault(cfg, logger)
	if err != nil {
		return fmt.Errorf("building kernel: %w", err)
	}
	defer k.Close() //nolint:errcheck

	if cfg.Demo.Enabled {
		sim := invoker.New(invoker.Config{
			FailureRate: cfg.Demo.FailureRate,
			Latency:     time.Duration(cfg.Demo.LatencyMs) * time.Millisecond,
		}, logger)
		k.SetExecutorFn(sim.InvokeFunc())
		logger.Info("demo mode: simulated worker backend wired",
			zap.Float64("failure_rate", cfg.Demo.FailureRate),
			zap.Int("latency_ms", cfg.Demo.LatencyMs),
		)
	}

	// File edits retune the executor without a restart.
	go func() {
		for updated := range mgr.Watch(ctx) {
			updated := updated
			k.ApplyConfig(&updated)
		}
	}()

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.Metrics.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics endpoint listening", zap.String("addr", cfg.Metrics.ListenAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	if bundleName != "" {
		if err := runBundle(ctx, k, bundleName, basin); err != nil {
			return err
		}
	} else {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		logger.Info("shutdown signal received")
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics endpoint shutdown", zap.Error(err))
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// runBundle executes one built-in bundle against a fresh session and prints
// the gathered result as indented JSON on stdout.
func runBundle(ctx context.Context, k kernel.Kernel, bundleName, basin string) error {
	s := k.CreateSession(nil, nil)
	defer k.DestroySession(s.ID())

	result, err := k.ExecuteBundle(ctx, bundleName, map[string]any{"basin": basin}, s.ID())
	if err != nil {
		return fmt.Errorf("running bundle %s: %w", bundleName, err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
