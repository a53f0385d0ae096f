package kernel

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basinops/basinops-kernel/internal/bundles"
	"github.com/basinops/basinops-kernel/internal/config"
	"github.com/basinops/basinops-kernel/internal/registry"
	"github.com/basinops/basinops-kernel/pkg/contracts"
	"github.com/basinops/basinops-kernel/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Executor.MaxParallel = 4
	cfg.Executor.ToolTimeoutMs = 2000
	cfg.Executor.MaxRetries = 0
	cfg.Executor.RetryBackoffMs = 1
	cfg.Auth.Enabled = true
	cfg.Audit.Enabled = true
	cfg.Audit.Path = t.TempDir()
	return cfg
}

// countingInvoker answers every call with a confident payload and keeps
// an atomic call count so tests can assert the backend was (not) reached.
func countingInvoker(calls *atomic.Int64) contracts.InvokeFunc {
	return func(ctx context.Context, server string, args map[string]any) (*types.ToolResponse, error) {
		calls.Add(1)
		return &types.ToolResponse{
			Success: true,
			Data: map[string]any{
				"server":     server,
				"confidence": float64(80),
			},
		}, nil
	}
}

func newTestKernel(t *testing.T, cfg *config.Config) (Kernel, *atomic.Int64) {
	t.Helper()
	k, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })

	var calls atomic.Int64
	k.SetExecutorFn(countingInvoker(&calls))
	require.NoError(t, k.Initialize(registry.DefaultServerConfigs))
	return k, &calls
}

func todayUTC() string {
	return time.Now().UTC().Format("2006-01-02")
}

func TestCallToolDeniedForAnalyst(t *testing.T) {
	k, calls := newTestKernel(t, testConfig(t))

	s := k.CreateSession(nil, nil) // demo analyst
	resp := k.CallTool(context.Background(), types.ToolRequest{
		ToolName: "decision.analyze",
		Args:     map[string]any{"basin": "Permian"},
	}, s.ID())

	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, types.ErrAuthRequired, resp.Error.Type)
	assert.Equal(t, []types.Permission{types.PermExecuteDecisions}, resp.Error.RequiredPermissions)
	assert.Equal(t, types.RoleExecutive, resp.Error.RequiredRole)
	assert.Contains(t, resp.Error.Message, "lacks execute:decisions")

	// The worker backend must never see a denied call.
	assert.Equal(t, int64(0), calls.Load())

	entries, err := k.(*kernelImpl).trail.GetEntries(todayUTC())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.AuditDenied, entries[0].Action)
	assert.Equal(t, "decision.analyze", entries[0].Tool)
	assert.Equal(t, "demo-analyst", entries[0].UserID)
	assert.Equal(t, types.RoleAnalyst, entries[0].Role)
	assert.Equal(t, types.ErrAuthRequired, entries[0].ErrorType)
}

func TestCallToolAuditsRequestAndResponse(t *testing.T) {
	k, calls := newTestKernel(t, testConfig(t))

	s := k.CreateSession(nil, nil)
	resp := k.CallTool(context.Background(), types.ToolRequest{
		ToolName: "geowiz.analyze",
		Args:     map[string]any{"basin": "Delaware"},
	}, s.ID())

	require.True(t, resp.Success)
	assert.Equal(t, int64(1), calls.Load())

	entries, err := k.(*kernelImpl).trail.GetEntries(todayUTC())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, types.AuditRequest, entries[0].Action)
	assert.Equal(t, types.AuditResponse, entries[1].Action)
	require.NotNil(t, entries[1].Success)
	assert.True(t, *entries[1].Success)
	for _, e := range entries {
		assert.Equal(t, "geowiz.analyze", e.Tool)
		assert.Equal(t, s.ID(), e.SessionID)
	}
}

func TestConfirmationFlowThroughFacade(t *testing.T) {
	k, calls := newTestKernel(t, testConfig(t))

	exec := types.Identity{UserID: "exec-1", Role: types.RoleExecutive}
	s := k.CreateSession(&exec, nil)

	resp := k.CallTool(context.Background(), types.ToolRequest{
		ToolName: "decision.analyze",
		Args:     map[string]any{"basin": "Permian"},
	}, s.ID())

	require.True(t, resp.Success)
	require.Equal(t, true, resp.Data["requires_confirmation"])
	assert.Equal(t, int64(0), calls.Load(), "gated call must not reach the backend before confirmation")

	pending, ok := resp.Data["pending_action"].(map[string]any)
	require.True(t, ok)
	actionID, _ := pending["actionId"].(string)
	require.NotEmpty(t, actionID)

	confirmed := k.ConfirmAction(context.Background(), actionID)
	require.True(t, confirmed.Success)
	assert.Equal(t, int64(1), calls.Load())

	// Pending entries are single-use.
	assert.False(t, k.CancelAction(actionID))
}

func TestCancelledActionCannotBeConfirmed(t *testing.T) {
	k, calls := newTestKernel(t, testConfig(t))

	exec := types.Identity{UserID: "exec-1", Role: types.RoleExecutive}
	s := k.CreateSession(&exec, nil)

	resp := k.CallTool(context.Background(), types.ToolRequest{ToolName: "reporter.analyze"}, s.ID())
	require.True(t, resp.Success)
	pending := resp.Data["pending_action"].(map[string]any)
	actionID := pending["actionId"].(string)

	require.True(t, k.CancelAction(actionID))

	confirmed := k.ConfirmAction(context.Background(), actionID)
	require.False(t, confirmed.Success)
	require.NotNil(t, confirmed.Error)
	assert.Equal(t, types.ErrUserAction, confirmed.Error.Type)
	assert.Equal(t, int64(0), calls.Load())
}

func TestDetailLevelPrecedence(t *testing.T) {
	k, _ := newTestKernel(t, testConfig(t))

	prefs := types.SessionPreferences{DetailLevel: types.DetailSummary}
	s := k.CreateSession(nil, &prefs)

	// Session preference applies when the request does not say.
	resp := k.CallTool(context.Background(), types.ToolRequest{ToolName: "geowiz.analyze"}, s.ID())
	require.True(t, resp.Success)
	assert.Equal(t, types.DetailSummary, resp.DetailLevel)

	// An explicit request level wins over the session preference.
	resp = k.CallTool(context.Background(), types.ToolRequest{
		ToolName:    "geowiz.analyze",
		DetailLevel: types.DetailFull,
	}, s.ID())
	require.True(t, resp.Success)
	assert.Equal(t, types.DetailFull, resp.DetailLevel)
}

func TestWhoAmI(t *testing.T) {
	k, _ := newTestKernel(t, testConfig(t))

	ident := types.Identity{UserID: "eng-7", Role: types.RoleEngineer, Organization: "basinops"}
	s := k.CreateSession(&ident, &types.SessionPreferences{DefaultBasin: "Midland"})

	who, ok := k.WhoAmI(s.ID())
	require.True(t, ok)
	assert.Equal(t, ident, who.Identity)
	assert.Equal(t, s.ID(), who.Context.SessionID)
	assert.Equal(t, "Midland", who.Context.DefaultBasin)

	_, ok = k.WhoAmI("nope")
	assert.False(t, ok)
}

func TestEmptySessionActsAsDemoAnalyst(t *testing.T) {
	k, _ := newTestKernel(t, testConfig(t))

	resp := k.CallTool(context.Background(), types.ToolRequest{ToolName: "geowiz.analyze"}, "")
	assert.True(t, resp.Success)

	resp = k.CallTool(context.Background(), types.ToolRequest{ToolName: "decision.analyze"}, "")
	require.False(t, resp.Success)
	assert.Equal(t, types.ErrAuthRequired, resp.Error.Type)
}

func TestInitializeKeepsInvoker(t *testing.T) {
	k, calls := newTestKernel(t, testConfig(t))

	resp := k.CallTool(context.Background(), types.ToolRequest{ToolName: "geowiz.analyze"}, "")
	require.True(t, resp.Success)

	// Re-initializing rebuilds the executor but keeps the wired backend.
	require.NoError(t, k.Initialize(registry.DefaultServerConfigs))
	resp = k.CallTool(context.Background(), types.ToolRequest{ToolName: "geowiz.analyze"}, "")
	require.True(t, resp.Success)
	assert.Equal(t, int64(2), calls.Load())
}

func TestQuickScreenBundle(t *testing.T) {
	k, calls := newTestKernel(t, testConfig(t))

	s := k.CreateSession(nil, nil)
	result, err := k.QuickScreen(context.Background(), map[string]any{"basin": "Permian"}, s.ID())
	require.NoError(t, err)

	assert.Equal(t, bundles.QuickScreen, result.BundleName)
	assert.True(t, result.OverallSuccess)
	assert.Equal(t, 100, result.Completeness)
	assert.Len(t, result.Results, 4)
	assert.Len(t, result.Phases, 1)
	assert.Empty(t, result.Failures)
	assert.Equal(t, int64(4), calls.Load())
}

func TestFullDueDiligenceDeniesGatedStepsForAnalyst(t *testing.T) {
	k, _ := newTestKernel(t, testConfig(t))

	s := k.CreateSession(nil, nil) // analyst: no write:reports, no execute:decisions
	result, err := k.FullDueDiligence(context.Background(), map[string]any{"basin": "Permian"}, s.ID())
	require.NoError(t, err)

	reporter := result.Results["reporter.analyze"]
	require.NotNil(t, reporter)
	require.NotNil(t, reporter.Error)
	assert.Equal(t, types.ErrAuthRequired, reporter.Error.Type)

	// decision depends on reporter, so it is skipped rather than denied.
	decision := result.Results["decision.analyze"]
	require.NotNil(t, decision)
	require.NotNil(t, decision.Error)
	assert.Equal(t, types.ErrUserAction, decision.Error.Type)

	// Denial happens before the gate, so nothing is parked.
	assert.Equal(t, 0, k.(*kernelImpl).exec.PendingCount())

	// Twelve of fourteen steps still succeed; majority strategy passes.
	assert.True(t, result.OverallSuccess)
	assert.Equal(t, 86, result.Completeness)
}

func TestExecuteBundleUnknownName(t *testing.T) {
	k, _ := newTestKernel(t, testConfig(t))
	_, err := k.ExecuteBundle(context.Background(), "grand_tour", nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown bundle")
}

func TestStats(t *testing.T) {
	k, _ := newTestKernel(t, testConfig(t))

	s := k.CreateSession(nil, nil)
	k.CallTool(context.Background(), types.ToolRequest{ToolName: "geowiz.analyze"}, s.ID())
	k.CallTool(context.Background(), types.ToolRequest{ToolName: "decision.analyze"}, s.ID())

	stats := k.Stats()
	assert.Equal(t, int64(2), stats["total_calls"])
	assert.Equal(t, int64(1), stats["successful_calls"])
	assert.Equal(t, int64(1), stats["failed_calls"])
	assert.Equal(t, 1, stats["active_sessions"])

	byTool, ok := stats["calls_by_tool"].(map[string]int64)
	require.True(t, ok)
	assert.Equal(t, int64(1), byTool["geowiz.analyze"])
}

func TestAuthCheck(t *testing.T) {
	k, _ := newTestKernel(t, testConfig(t))

	s := k.CreateSession(nil, nil)
	decision := k.AuthCheck("geowiz.analyze", s.ID())
	assert.True(t, decision.Allowed)

	decision = k.AuthCheck("reporter.analyze", s.ID())
	require.False(t, decision.Allowed)
	assert.Equal(t, types.RoleEngineer, decision.RequiredRole)
}

func TestCatalogQueries(t *testing.T) {
	k, _ := newTestKernel(t, testConfig(t))

	assert.Len(t, k.ListBundles(), 4)
	assert.Len(t, k.ListServers(nil), 14)

	geology := k.ListServers(&registry.Filter{Domain: "geology"})
	require.Len(t, geology, 1)
	assert.Equal(t, "geowiz", geology[0].Name)

	tools := k.DescribeTools("geowiz")
	require.Len(t, tools, 1)
	assert.Equal(t, "geowiz.analyze", tools[0].Name)

	matches := k.FindCapability("npv")
	require.Len(t, matches, 1)
	assert.Equal(t, "econobot", matches[0].Name)
}
