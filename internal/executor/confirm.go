package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/basinops/basinops-kernel/internal/metrics"
	"github.com/basinops/basinops-kernel/pkg/types"
)

// Confirmation gate. Command tools never run directly: the first call parks
// the request as a PendingAction and hands back a synthetic response; the
// real invocation happens only on ConfirmAction. Pending entries are
// single-use, so a cancelled action can never be confirmed afterwards.

type pendingEntry struct {
	action types.PendingAction
	req    types.ToolRequest
}

// ExecuteWithConfirmation behaves exactly like Execute for unconfirmed
// tools and intercepts gated ones.
func (e *Executor) ExecuteWithConfirmation(ctx context.Context, req types.ToolRequest) *types.ToolResponse {
	tool, ok := e.reg.ResolveTool(req.ToolName)
	if !ok || !tool.RequiresConfirmation {
		return e.Execute(ctx, req)
	}

	action := types.PendingAction{
		ActionID:  uuid.NewString(),
		ToolName:  req.ToolName,
		Args:      req.Args,
		CreatedAt: time.Now().UTC(),
	}

	e.pendingMu.Lock()
	e.pending[action.ActionID] = pendingEntry{action: action, req: req}
	e.pendingMu.Unlock()
	metrics.PendingActions.Inc()

	e.logger.Info("action parked at confirmation gate",
		zap.String("tool", req.ToolName),
		zap.String("action_id", action.ActionID),
	)

	level := req.DetailLevel
	if level == "" {
		level = types.DetailStandard
	}
	return &types.ToolResponse{
		Success:    true,
		Summary:    fmt.Sprintf("%s requires confirmation before it runs", req.ToolName),
		Confidence: 0,
		Data: map[string]any{
			"requires_confirmation": true,
			"pending_action": map[string]any{
				"actionId": action.ActionID,
				"toolName": action.ToolName,
				"args":     action.Args,
			},
		},
		DetailLevel:  level,
		Completeness: 100,
		Metadata: types.ResponseMetadata{
			Server:    tool.Server,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// ConfirmAction releases a parked action and runs the original request
// through the non-gated path, returning the real response.
func (e *Executor) ConfirmAction(ctx context.Context, actionID string) *types.ToolResponse {
	entry, ok := e.takePending(actionID)
	if !ok {
		return &types.ToolResponse{
			Success: false,
			Summary: fmt.Sprintf("no pending action %s", actionID),
			Error: &types.ErrorDetail{
				Type:    types.ErrUserAction,
				Message: fmt.Sprintf("no pending action %s; it may have been confirmed or cancelled already", actionID),
			},
			Metadata: types.ResponseMetadata{
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			},
		}
	}

	e.logger.Info("action confirmed",
		zap.String("tool", entry.req.ToolName),
		zap.String("action_id", actionID),
	)
	return e.Execute(ctx, entry.req)
}

// CancelAction discards a parked action and reports whether it existed.
func (e *Executor) CancelAction(actionID string) bool {
	entry, ok := e.takePending(actionID)
	if ok {
		e.logger.Info("action cancelled",
			zap.String("tool", entry.req.ToolName),
			zap.String("action_id", actionID),
		)
	}
	return ok
}

// PendingActions returns the currently parked actions.
func (e *Executor) PendingActions() []types.PendingAction {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	out := make([]types.PendingAction, 0, len(e.pending))
	for _, entry := range e.pending {
		out = append(out, entry.action)
	}
	return out
}

// PendingCount returns the number of parked actions.
func (e *Executor) PendingCount() int {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	return len(e.pending)
}

// takePending removes and returns a pending entry.
func (e *Executor) takePending(actionID string) (pendingEntry, bool) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	entry, ok := e.pending[actionID]
	if ok {
		delete(e.pending, actionID)
		metrics.PendingActions.Dec()
	}
	return entry, ok
}
