package executor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/basinops/basinops-kernel/internal/metrics"
	"github.com/basinops/basinops-kernel/internal/registry"
	"github.com/basinops/basinops-kernel/internal/resilience"
	"github.com/basinops/basinops-kernel/internal/shaper"
	"github.com/basinops/basinops-kernel/pkg/contracts"
	"github.com/basinops/basinops-kernel/pkg/types"
)

// Package executor runs tool invocations with timeout and retry discipline,
// fans bundles out phase by phase under a concurrency bound, and parks
// side-effecting calls at the confirmation gate. The executor does not know
// any transport; it holds a single injectable invoke function and treats
// each invocation as opaque.

// Config tunes the executor. Zero values fall back to the defaults below.
type Config struct {
	// MaxParallel bounds in-flight invoker calls per scatter-gather.
	MaxParallel int

	// ToolTimeout bounds a single invoker call.
	ToolTimeout time.Duration

	// MaxRetries is the number of retries after the first attempt; it
	// applies only to retryable failures.
	MaxRetries int

	// RetryBackoff is the base of the exponential backoff between retries.
	RetryBackoff time.Duration
}

// DefaultConfig returns the documented executor defaults.
func DefaultConfig() Config {
	return Config{
		MaxParallel:  6,
		ToolTimeout:  30 * time.Second,
		MaxRetries:   2,
		RetryBackoff: time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxParallel < 1 {
		c.MaxParallel = d.MaxParallel
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = d.ToolTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	return c
}

// ExecFunc runs one request and always yields a response; it is the shape
// shared by Execute and the gate-aware path, and what bundle execution fans
// out over.
type ExecFunc func(ctx context.Context, req types.ToolRequest) *types.ToolResponse

// Executor is the kernel's execution engine.
type Executor struct {
	reg    *registry.Registry
	logger *zap.Logger

	cfgMu sync.RWMutex
	cfg   Config

	invokeMu sync.RWMutex
	invoke   contracts.InvokeFunc

	pendingMu sync.Mutex
	pending   map[string]pendingEntry

	rngMu sync.Mutex
	rng   *rand.Rand

	// sleep is swapped out in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an Executor over a registry. The invoker is wired separately
// through SetInvoker; until then every call fails as not connected.
func New(reg *registry.Registry, cfg Config, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		reg:     reg,
		logger:  logger,
		cfg:     cfg.withDefaults(),
		pending: make(map[string]pendingEntry),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:   sleepCtx,
	}
}

// SetInvoker wires the worker-fleet seam.
func (e *Executor) SetInvoker(invoke contracts.InvokeFunc) {
	e.invokeMu.Lock()
	e.invoke = invoke
	e.invokeMu.Unlock()
}

// UpdateConfig applies retuned settings, normalizing bad values to the
// defaults. Safe to call while executions are in flight; running calls keep
// the settings they started with.
func (e *Executor) UpdateConfig(cfg Config) {
	e.cfgMu.Lock()
	e.cfg = cfg.withDefaults()
	e.cfgMu.Unlock()
}

func (e *Executor) config() Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

func (e *Executor) invoker() contracts.InvokeFunc {
	e.invokeMu.RLock()
	defer e.invokeMu.RUnlock()
	return e.invoke
}

// Execute runs one tool request: resolve the server, invoke under a
// timeout, classify any failure, retry the retryable ones with exponential
// backoff, and shape the successful payload to the requested detail level.
func (e *Executor) Execute(ctx context.Context, req types.ToolRequest) *types.ToolResponse {
	start := time.Now()
	cfg := e.config()

	serverCfg, ok := e.reg.ResolveServer(req.ToolName)
	if !ok {
		detail := &types.ErrorDetail{
			Type:    types.ErrPermanent,
			Message: fmt.Sprintf("unknown tool: %s", req.ToolName),
		}
		return e.failureResponse(req, types.ServerConfig{Name: registry.ServerName(req.ToolName)}, detail, 0, 0, time.Since(start))
	}

	invoke := e.invoker()
	if invoke == nil {
		detail := &types.ErrorDetail{
			Type:    types.ErrUserAction,
			Message: "kernel is not connected to a worker backend",
			Reason:  "wire an invoker with SetExecutorFn before calling tools",
		}
		return e.failureResponse(req, serverCfg, detail, 0, 0, time.Since(start))
	}

	var totalDelay time.Duration
	for attempt := 0; ; attempt++ {
		resp, detail := e.invokeOnce(ctx, invoke, serverCfg.Name, req.Args, cfg.ToolTimeout)
		if detail == nil {
			shaped := e.shapeSuccess(resp, serverCfg, req, time.Since(start))
			shaped.Metadata.RetryAttempts = attempt
			shaped.Metadata.TotalRetryDelayMs = totalDelay.Milliseconds()
			e.observe(req.ToolName, "success", time.Since(start))
			return shaped
		}

		classified := resilience.ClassifyErrorDetail(detail)
		if classified.Type != types.ErrRetryable || attempt >= cfg.MaxRetries {
			e.observe(req.ToolName, "failure", time.Since(start))
			return e.failureResponse(req, serverCfg, classified, attempt, totalDelay, time.Since(start))
		}

		delay := e.backoffDelay(cfg.RetryBackoff, attempt)
		totalDelay += delay
		metrics.ToolRetriesTotal.WithLabelValues(req.ToolName).Inc()
		e.logger.Debug("retrying tool call",
			zap.String("tool", req.ToolName),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.String("cause", classified.Message),
		)
		if err := e.sleep(ctx, delay); err != nil {
			cancelled := &types.ErrorDetail{
				Type:    types.ErrRetryable,
				Message: classified.Message,
				Reason:  "caller cancelled while waiting to retry",
			}
			e.observe(req.ToolName, "failure", time.Since(start))
			return e.failureResponse(req, serverCfg, cancelled, attempt, totalDelay, time.Since(start))
		}
	}
}

// invokeOnce performs a single bounded invocation. A nil ErrorDetail means
// success. Timeouts orphan the in-flight call; the kernel only stops
// waiting, it cannot abort work it does not control.
func (e *Executor) invokeOnce(ctx context.Context, invoke contracts.InvokeFunc, server string, args map[string]any, timeout time.Duration) (*types.ToolResponse, *types.ErrorDetail) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		resp *types.ToolResponse
		err  error
	}
	done := make(chan outcome, 1)

	metrics.ToolCallsInFlight.Inc()
	go func() {
		defer metrics.ToolCallsInFlight.Dec()
		resp, err := invoke(callCtx, server, args)
		done <- outcome{resp, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, &types.ErrorDetail{Type: types.ErrRetryable, Message: out.err.Error()}
		}
		if out.resp == nil {
			return nil, &types.ErrorDetail{Type: types.ErrPermanent, Message: "invalid response: worker returned no payload"}
		}
		if !out.resp.Success {
			detail := out.resp.Error
			if detail == nil {
				detail = &types.ErrorDetail{Message: "worker reported failure without detail"}
			}
			return nil, detail
		}
		return out.resp, nil
	case <-callCtx.Done():
		return nil, &types.ErrorDetail{
			Type:    types.ErrRetryable,
			Message: fmt.Sprintf("timed out waiting for %s", server),
		}
	}
}

// shapeSuccess projects the worker's raw payload to the requested detail
// level and stamps execution metadata.
func (e *Executor) shapeSuccess(resp *types.ToolResponse, serverCfg types.ServerConfig, req types.ToolRequest, elapsed time.Duration) *types.ToolResponse {
	opts := shaper.Options{
		Server:          serverCfg.Name,
		Persona:         serverCfg.Persona,
		ExecutionTimeMs: elapsed.Milliseconds(),
		DetailLevel:     req.DetailLevel,
	}
	if resp.Confidence != 0 {
		c := resp.Confidence
		opts.Confidence = &c
	}
	return shaper.Shape(resp.Data, opts)
}

// failureResponse builds the uniform failure record: classified detail,
// recovery guide, and execution metadata.
func (e *Executor) failureResponse(req types.ToolRequest, serverCfg types.ServerConfig, detail *types.ErrorDetail, retries int, totalDelay, elapsed time.Duration) *types.ToolResponse {
	guide := resilience.BuildRecoveryGuide(req.ToolName, detail)
	full := resilience.ApplyGuide(detail, guide)

	level := req.DetailLevel
	if level == "" {
		level = types.DetailStandard
	}

	return &types.ToolResponse{
		Success:      false,
		Summary:      fmt.Sprintf("%s failed: %s", req.ToolName, detail.Message),
		Confidence:   0,
		DetailLevel:  level,
		Completeness: 0,
		Metadata: types.ResponseMetadata{
			Server:            serverCfg.Name,
			Persona:           serverCfg.Persona,
			ExecutionTimeMs:   elapsed.Milliseconds(),
			Timestamp:         time.Now().UTC().Format(time.RFC3339),
			RetryAttempts:     retries,
			TotalRetryDelayMs: totalDelay.Milliseconds(),
		},
		Error: full,
	}
}

// backoffDelay computes the wait before retry i (0-indexed among retries):
// base doubled per retry, plus jitter drawn from [0, 0.3*base]. Doubling
// dominates the jitter bound, so successive delays grow strictly.
func (e *Executor) backoffDelay(base time.Duration, retry int) time.Duration {
	delay := base * (1 << retry)
	if jitterMax := base * 3 / 10; jitterMax > 0 {
		e.rngMu.Lock()
		delay += time.Duration(e.rng.Int63n(int64(jitterMax) + 1))
		e.rngMu.Unlock()
	}
	return delay
}

func (e *Executor) observe(tool, outcome string, elapsed time.Duration) {
	metrics.ToolExecutionsTotal.WithLabelValues(tool, outcome).Inc()
	metrics.ToolExecutionDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// seedRNG pins the jitter source, used by tests that assert on backoff.
func (e *Executor) seedRNG(seed int64) {
	e.rngMu.Lock()
	e.rng = rand.New(rand.NewSource(seed))
	e.rngMu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
