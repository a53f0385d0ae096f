package kernel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/basinops/basinops-kernel/internal/audit"
	"github.com/basinops/basinops-kernel/internal/auth"
	"github.com/basinops/basinops-kernel/internal/bundles"
	"github.com/basinops/basinops-kernel/internal/config"
	"github.com/basinops/basinops-kernel/internal/executor"
	"github.com/basinops/basinops-kernel/internal/metrics"
	"github.com/basinops/basinops-kernel/internal/registry"
	"github.com/basinops/basinops-kernel/internal/session"
	"github.com/basinops/basinops-kernel/pkg/contracts"
	"github.com/basinops/basinops-kernel/pkg/types"
)

// kernelImpl is the concrete Kernel.
type kernelImpl struct {
	cfg    *config.Config
	logger *zap.Logger

	authz    *auth.Authorizer
	trail    audit.Trail
	sessions *session.Manager

	mu        sync.RWMutex
	reg       *registry.Registry
	exec      *executor.Executor
	invoke    contracts.InvokeFunc
	startTime time.Time

	// Statistics
	stats struct {
		sync.RWMutex
		TotalCalls      int64
		SuccessfulCalls int64
		FailedCalls     int64
		AvgDuration     time.Duration
		CallsByTool     map[string]int64
	}

	limiter *rateLimiter
}

// New creates a Kernel from configuration. Initialize must be called
// before tools resolve; NewDefault does both for the built-in fleet.
func New(cfg *config.Config, logger *zap.Logger) (Kernel, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	trail, err := audit.New(audit.Config{
		Enabled: cfg.Audit.Enabled,
		Path:    cfg.Audit.Path,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("building audit trail: %w", err)
	}

	k := &kernelImpl{
		cfg:       cfg,
		logger:    logger,
		authz:     auth.New(cfg.Auth.Enabled),
		trail:     trail,
		sessions:  session.NewManager(logger),
		startTime: time.Now(),
		limiter:   newRateLimiter(1000, time.Millisecond),
	}
	k.stats.CallsByTool = make(map[string]int64)
	return k, nil
}

// NewDefault creates a Kernel initialized with the built-in fleet.
func NewDefault(cfg *config.Config, logger *zap.Logger) (Kernel, error) {
	k, err := New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := k.Initialize(registry.DefaultServerConfigs); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *kernelImpl) Initialize(configs []types.ServerConfig) error {
	reg, err := registry.New(configs)
	if err != nil {
		return fmt.Errorf("building registry: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	execCfg := executor.Config{
		MaxParallel:  k.cfg.Executor.MaxParallel,
		ToolTimeout:  time.Duration(k.cfg.Executor.ToolTimeoutMs) * time.Millisecond,
		MaxRetries:   k.cfg.Executor.MaxRetries,
		RetryBackoff: time.Duration(k.cfg.Executor.RetryBackoffMs) * time.Millisecond,
	}
	k.reg = reg
	k.exec = executor.New(reg, execCfg, k.logger)
	if k.invoke != nil {
		k.exec.SetInvoker(k.invoke)
	}

	k.logger.Info("kernel initialized",
		zap.Int("servers", reg.ServerCount()),
		zap.Int("max_parallel", execCfg.MaxParallel),
	)
	return nil
}

func (k *kernelImpl) SetExecutorFn(invoke contracts.InvokeFunc) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.invoke = invoke
	if k.exec != nil {
		k.exec.SetInvoker(invoke)
	}
}

func (k *kernelImpl) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.cfg = cfg
	if k.exec != nil {
		k.exec.UpdateConfig(executor.Config{
			MaxParallel:  cfg.Executor.MaxParallel,
			ToolTimeout:  time.Duration(cfg.Executor.ToolTimeoutMs) * time.Millisecond,
			MaxRetries:   cfg.Executor.MaxRetries,
			RetryBackoff: time.Duration(cfg.Executor.RetryBackoffMs) * time.Millisecond,
		})
	}
	k.logger.Info("executor settings retuned",
		zap.Int("max_parallel", cfg.Executor.MaxParallel),
		zap.Int("tool_timeout_ms", cfg.Executor.ToolTimeoutMs),
		zap.Int("max_retries", cfg.Executor.MaxRetries),
	)
}

func (k *kernelImpl) executor() *executor.Executor {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.exec
}

func (k *kernelImpl) CreateSession(identity *types.Identity, prefs *types.SessionPreferences) *session.Session {
	return k.sessions.Create(identity, prefs)
}

func (k *kernelImpl) GetSession(sessionID string) (*session.Session, bool) {
	return k.sessions.Get(sessionID)
}

func (k *kernelImpl) DestroySession(sessionID string) bool {
	return k.sessions.Destroy(sessionID)
}

func (k *kernelImpl) WhoAmI(sessionID string) (*types.WhoAmI, bool) {
	s, ok := k.sessions.Get(sessionID)
	if !ok {
		return nil, false
	}
	return &types.WhoAmI{
		Identity: s.Identity(),
		Context:  s.Context(),
	}, true
}

func (k *kernelImpl) Execute(ctx context.Context, req types.ToolRequest) *types.ToolResponse {
	exec := k.executor()
	if exec == nil {
		return notInitializedResponse(req)
	}
	resp := exec.Execute(ctx, req)
	k.record(req.ToolName, resp.Success, time.Duration(resp.Metadata.ExecutionTimeMs)*time.Millisecond)
	return resp
}

func (k *kernelImpl) CallTool(ctx context.Context, req types.ToolRequest, sessionID string) *types.ToolResponse {
	return k.callStep(ctx, req, k.resolveIdentity(sessionID), sessionID, true)
}

// callStep is the shared auth -> audit -> execute path used by CallTool
// and by every bundle step.
func (k *kernelImpl) callStep(ctx context.Context, req types.ToolRequest, identity types.Identity, sessionID string, applyPrefs bool) *types.ToolResponse {
	exec := k.executor()
	if exec == nil {
		return notInitializedResponse(req)
	}

	if !k.limiter.Allow() {
		detail := &types.ErrorDetail{
			Type:    types.ErrRetryable,
			Message: "rate limit exceeded",
			Reason:  "too many calls; slow down and retry",
		}
		k.record(req.ToolName, false, 0)
		return failureResponse(req, detail)
	}

	decision := k.authz.Evaluate(req.ToolName, identity)
	if !decision.Allowed {
		metrics.AuthDenialsTotal.WithLabelValues(req.ToolName, string(identity.Role)).Inc()
		k.trail.Record(&types.AuditEntry{
			Tool:       req.ToolName,
			Action:     types.AuditDenied,
			Parameters: req.Args,
			UserID:     identity.UserID,
			SessionID:  sessionID,
			Role:       identity.Role,
			Timestamp:  time.Now().UTC(),
			ErrorType:  types.ErrAuthRequired,
		})
		k.record(req.ToolName, false, 0)
		k.logger.Warn("tool call denied",
			zap.String("tool", req.ToolName),
			zap.String("user_id", identity.UserID),
			zap.String("role", string(identity.Role)),
		)
		return failureResponse(req, &types.ErrorDetail{
			Type:                types.ErrAuthRequired,
			Message:             decision.Reason,
			Reason:              decision.Reason,
			RequiredPermissions: decision.RequiredPermissions,
			RequiredRole:        decision.RequiredRole,
		})
	}

	if applyPrefs && req.DetailLevel == "" {
		if s, ok := k.sessions.Get(sessionID); ok {
			req.DetailLevel = s.Preferences().DetailLevel
		}
	}

	k.trail.Record(&types.AuditEntry{
		Tool:       req.ToolName,
		Action:     types.AuditRequest,
		Parameters: req.Args,
		UserID:     identity.UserID,
		SessionID:  sessionID,
		Role:       identity.Role,
		Timestamp:  time.Now().UTC(),
	})

	start := time.Now()
	resp := exec.ExecuteWithConfirmation(ctx, req)
	elapsed := time.Since(start)

	outcome := &types.AuditEntry{
		Tool:       req.ToolName,
		Action:     types.AuditResponse,
		UserID:     identity.UserID,
		SessionID:  sessionID,
		Role:       identity.Role,
		Timestamp:  time.Now().UTC(),
		Success:    &resp.Success,
		DurationMs: elapsed.Milliseconds(),
	}
	if resp.Error != nil {
		outcome.Action = types.AuditError
		outcome.ErrorType = resp.Error.Type
	}
	k.trail.Record(outcome)

	k.record(req.ToolName, resp.Success, elapsed)
	return resp
}

func (k *kernelImpl) ExecuteBundle(ctx context.Context, bundleName string, args map[string]any, sessionID string) (*types.BundleResult, error) {
	bundle, ok := bundles.Get(bundleName)
	if !ok {
		return nil, fmt.Errorf("unknown bundle: %s", bundleName)
	}
	return k.runBundle(ctx, bundle, args, sessionID)
}

func (k *kernelImpl) runBundle(ctx context.Context, bundle types.Bundle, args map[string]any, sessionID string) (*types.BundleResult, error) {
	exec := k.executor()
	if exec == nil {
		return nil, fmt.Errorf("kernel is not initialized")
	}
	if err := bundles.Validate(bundle); err != nil {
		return nil, err
	}

	identity := k.resolveIdentity(sessionID)
	start := time.Now()

	stepFn := func(ctx context.Context, req types.ToolRequest) *types.ToolResponse {
		return k.callStep(ctx, req, identity, sessionID, false)
	}
	result, err := exec.ExecuteBundleWith(ctx, bundle, args, stepFn)
	if err != nil {
		return nil, err
	}

	outcome := "failure"
	if result.OverallSuccess {
		outcome = "success"
	}
	metrics.BundleExecutionsTotal.WithLabelValues(bundle.Name, outcome).Inc()
	metrics.BundleDuration.WithLabelValues(bundle.Name).Observe(time.Since(start).Seconds())
	k.logger.Info("bundle executed",
		zap.String("bundle", bundle.Name),
		zap.Int("completeness", result.Completeness),
		zap.Bool("overall_success", result.OverallSuccess),
	)
	return result, nil
}

func (k *kernelImpl) QuickScreen(ctx context.Context, args map[string]any, sessionID string) (*types.BundleResult, error) {
	return k.ExecuteBundle(ctx, bundles.QuickScreen, args, sessionID)
}

func (k *kernelImpl) FullDueDiligence(ctx context.Context, args map[string]any, sessionID string) (*types.BundleResult, error) {
	return k.ExecuteBundle(ctx, bundles.FullDueDiligence, args, sessionID)
}

func (k *kernelImpl) GeologicalDeepDive(ctx context.Context, args map[string]any, sessionID string) (*types.BundleResult, error) {
	return k.ExecuteBundle(ctx, bundles.GeologicalDeepDive, args, sessionID)
}

func (k *kernelImpl) FinancialReview(ctx context.Context, args map[string]any, sessionID string) (*types.BundleResult, error) {
	return k.ExecuteBundle(ctx, bundles.FinancialReview, args, sessionID)
}

func (k *kernelImpl) AuthCheck(toolName string, sessionID string) types.AuthDecision {
	return k.authz.Evaluate(toolName, k.resolveIdentity(sessionID))
}

func (k *kernelImpl) ConfirmAction(ctx context.Context, actionID string) *types.ToolResponse {
	exec := k.executor()
	if exec == nil {
		return notInitializedResponse(types.ToolRequest{})
	}
	resp := exec.ConfirmAction(ctx, actionID)

	// Confirmed runs carry no session of their own; the original request
	// was already audited with full attribution when it was parked.
	if resp.Metadata.Server != "" {
		tool := registry.CanonicalToolName(resp.Metadata.Server)
		entry := &types.AuditEntry{
			Tool:       tool,
			Action:     types.AuditResponse,
			Timestamp:  time.Now().UTC(),
			Success:    &resp.Success,
			DurationMs: resp.Metadata.ExecutionTimeMs,
		}
		if resp.Error != nil {
			entry.Action = types.AuditError
			entry.ErrorType = resp.Error.Type
		}
		k.trail.Record(entry)
		k.record(tool, resp.Success, time.Duration(resp.Metadata.ExecutionTimeMs)*time.Millisecond)
	}
	return resp
}

func (k *kernelImpl) CancelAction(actionID string) bool {
	exec := k.executor()
	if exec == nil {
		return false
	}
	return exec.CancelAction(actionID)
}

func (k *kernelImpl) ListBundles() []types.Bundle {
	return bundles.List()
}

func (k *kernelImpl) ListServers(filter *registry.Filter) []types.ServerConfig {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.reg == nil {
		return nil
	}
	return k.reg.ListServers(filter)
}

func (k *kernelImpl) DescribeTools(serverName string) []types.Tool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.reg == nil {
		return nil
	}
	return k.reg.DescribeTools(serverName)
}

func (k *kernelImpl) FindCapability(name string) []types.ServerConfig {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.reg == nil {
		return nil
	}
	return k.reg.FindCapability(name)
}

func (k *kernelImpl) GenerateIdempotencyKey(toolName string, args map[string]any, sessionID string) string {
	return executor.GenerateIdempotencyKey(toolName, args, sessionID)
}

func (k *kernelImpl) Stats() map[string]any {
	k.stats.RLock()
	defer k.stats.RUnlock()

	var successRate float64
	if k.stats.TotalCalls > 0 {
		successRate = float64(k.stats.SuccessfulCalls) / float64(k.stats.TotalCalls) * 100
	}

	callsByTool := make(map[string]int64, len(k.stats.CallsByTool))
	for tool, n := range k.stats.CallsByTool {
		callsByTool[tool] = n
	}

	pending := 0
	if exec := k.executor(); exec != nil {
		pending = exec.PendingCount()
	}

	return map[string]any{
		"uptime":           time.Since(k.startTime).String(),
		"total_calls":      k.stats.TotalCalls,
		"successful_calls": k.stats.SuccessfulCalls,
		"failed_calls":     k.stats.FailedCalls,
		"success_rate":     fmt.Sprintf("%.2f%%", successRate),
		"avg_duration":     k.stats.AvgDuration.String(),
		"calls_by_tool":    callsByTool,
		"active_sessions":  k.sessions.Count(),
		"pending_actions":  pending,
	}
}

func (k *kernelImpl) Close() error {
	return k.trail.Close()
}

// resolveIdentity maps a session id to its identity; unknown or empty
// sessions act as the demo analyst.
func (k *kernelImpl) resolveIdentity(sessionID string) types.Identity {
	if sessionID != "" {
		if s, ok := k.sessions.Get(sessionID); ok {
			return s.Identity()
		}
	}
	return session.DefaultIdentity()
}

func (k *kernelImpl) record(toolName string, success bool, duration time.Duration) {
	k.stats.Lock()
	defer k.stats.Unlock()

	k.stats.TotalCalls++
	if success {
		k.stats.SuccessfulCalls++
	} else {
		k.stats.FailedCalls++
	}
	if toolName != "" {
		k.stats.CallsByTool[toolName]++
	}
	if k.stats.TotalCalls == 1 {
		k.stats.AvgDuration = duration
	} else {
		k.stats.AvgDuration = time.Duration(
			(int64(k.stats.AvgDuration)*(k.stats.TotalCalls-1) + int64(duration)) / k.stats.TotalCalls,
		)
	}
}

func failureResponse(req types.ToolRequest, detail *types.ErrorDetail) *types.ToolResponse {
	level := req.DetailLevel
	if level == "" {
		level = types.DetailStandard
	}
	return &types.ToolResponse{
		Success:     false,
		Summary:     fmt.Sprintf("%s failed: %s", req.ToolName, detail.Message),
		DetailLevel: level,
		Metadata: types.ResponseMetadata{
			Server:    registry.ServerName(req.ToolName),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
		Error: detail,
	}
}

func notInitializedResponse(req types.ToolRequest) *types.ToolResponse {
	return failureResponse(req, &types.ErrorDetail{
		Type:    types.ErrUserAction,
		Message: "kernel is not initialized",
		Reason:  "call Initialize with server configs first",
	})
}

// rateLimiter is a token bucket refilling one token per interval.
type rateLimiter struct {
	mu         sync.Mutex
	maxTokens  int
	tokens     int
	refillRate time.Duration
	lastRefill time.Time
}

func newRateLimiter(maxTokens int, refillRate time.Duration) *rateLimiter {
	return &rateLimiter{
		maxTokens:  maxTokens,
		tokens:     maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow consumes a token when one is available.
func (rl *rateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(rl.lastRefill); elapsed >= rl.refillRate {
		refill := int(elapsed / rl.refillRate)
		rl.tokens = min(rl.maxTokens, rl.tokens+refill)
		rl.lastRefill = now
	}
	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}
