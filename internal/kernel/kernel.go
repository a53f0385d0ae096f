package kernel

import (
	"context"

	"github.com/basinops/basinops-kernel/internal/config"
	"github.com/basinops/basinops-kernel/internal/registry"
	"github.com/basinops/basinops-kernel/internal/session"
	"github.com/basinops/basinops-kernel/pkg/contracts"
	"github.com/basinops/basinops-kernel/pkg/types"
)

// Package kernel is the facade binding the orchestration layers into one
// entry point. CallTool is the canonical path for externally triggered
// invocations: auth, then audit, then execution; bundles fan the same path
// out per step. The kernel never returns Go errors for tool outcomes;
// failures travel inside ToolResponses.

// Kernel is the tool-orchestration facade.
type Kernel interface {
	// Initialize builds the server catalog. Re-initializing with the same
	// configs yields identical state; the wired invoker survives.
	Initialize(configs []types.ServerConfig) error

	// SetExecutorFn wires the worker-fleet invoker.
	SetExecutorFn(invoke contracts.InvokeFunc)

	// ApplyConfig retunes the executor from a reloaded configuration.
	// Only executor settings take effect at runtime; audit, auth and
	// logging changes need a restart.
	ApplyConfig(cfg *config.Config)

	// Sessions.
	CreateSession(identity *types.Identity, prefs *types.SessionPreferences) *session.Session
	GetSession(sessionID string) (*session.Session, bool)
	DestroySession(sessionID string) bool
	WhoAmI(sessionID string) (*types.WhoAmI, bool)

	// Execute runs one request without auth or audit; library callers that
	// front their own policy use this.
	Execute(ctx context.Context, req types.ToolRequest) *types.ToolResponse

	// CallTool is the canonical entry point: auth, audit, then gate-aware
	// execution. An empty or unknown session falls back to the demo
	// identity.
	CallTool(ctx context.Context, req types.ToolRequest, sessionID string) *types.ToolResponse

	// ExecuteBundle runs a built-in bundle by name, auth-checking and
	// auditing every step.
	ExecuteBundle(ctx context.Context, bundleName string, args map[string]any, sessionID string) (*types.BundleResult, error)

	// Convenience wrappers over the four built-in bundles.
	QuickScreen(ctx context.Context, args map[string]any, sessionID string) (*types.BundleResult, error)
	FullDueDiligence(ctx context.Context, args map[string]any, sessionID string) (*types.BundleResult, error)
	GeologicalDeepDive(ctx context.Context, args map[string]any, sessionID string) (*types.BundleResult, error)
	FinancialReview(ctx context.Context, args map[string]any, sessionID string) (*types.BundleResult, error)

	// AuthCheck evaluates a tool for a session without executing.
	AuthCheck(toolName string, sessionID string) types.AuthDecision

	// Confirmation gate.
	ConfirmAction(ctx context.Context, actionID string) *types.ToolResponse
	CancelAction(actionID string) bool

	// Catalog queries.
	ListBundles() []types.Bundle
	ListServers(filter *registry.Filter) []types.ServerConfig
	DescribeTools(serverName string) []types.Tool
	FindCapability(name string) []types.ServerConfig

	// GenerateIdempotencyKey derives the stable key for a call triple.
	GenerateIdempotencyKey(toolName string, args map[string]any, sessionID string) string

	// Stats returns kernel statistics.
	Stats() map[string]any

	// Close flushes the audit trail.
	Close() error
}
