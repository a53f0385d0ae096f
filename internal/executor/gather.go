package executor

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/basinops/basinops-kernel/internal/registry"
	"github.com/basinops/basinops-kernel/internal/resilience"
	"github.com/basinops/basinops-kernel/pkg/types"
)

// Gather executes independent requests concurrently, bounded by
// MaxParallel, and aggregates every request's outcome. Individual failures
// never block peers.
func (e *Executor) Gather(ctx context.Context, requests []types.ToolRequest) *types.GatheredResult {
	return e.GatherWith(ctx, requests, e.Execute)
}

// GatherWith is Gather with a caller-supplied per-request function; the
// facade uses it to thread auth and audit around each step.
func (e *Executor) GatherWith(ctx context.Context, requests []types.ToolRequest, fn ExecFunc) *types.GatheredResult {
	start := time.Now()

	responses := make([]*types.ToolResponse, len(requests))
	g := new(errgroup.Group)
	g.SetLimit(e.config().MaxParallel)
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			responses[i] = fn(ctx, req)
			return nil
		})
	}
	// Workers never return errors; failures travel inside the responses.
	_ = g.Wait()

	gathered := &types.GatheredResult{
		Results: make(map[string]*types.ToolResponse, len(requests)),
	}
	succeeded := 0
	for i, req := range requests {
		resp := responses[i]
		gathered.Results[req.ToolName] = resp
		if resp.Success {
			succeeded++
			continue
		}
		gathered.Failures = append(gathered.Failures, types.StepFailure{
			ToolName:      req.ToolName,
			Error:         resp.Error,
			RecoveryGuide: resilience.BuildRecoveryGuide(req.ToolName, resp.Error),
		})
	}
	gathered.Completeness = resilience.Completeness(succeeded, len(requests))
	gathered.TotalTimeMs = time.Since(start).Milliseconds()
	return gathered
}

// ExecuteBundle runs a bundle phase by phase. Steps inside a phase run
// concurrently; phases run sequentially. Command steps pass through the
// confirmation gate, so they come back as pending responses rather than
// real invocations.
func (e *Executor) ExecuteBundle(ctx context.Context, bundle types.Bundle, args map[string]any) (*types.BundleResult, error) {
	return e.ExecuteBundleWith(ctx, bundle, args, e.ExecuteWithConfirmation)
}

// ExecuteBundleWith is ExecuteBundle with a caller-supplied step function.
func (e *Executor) ExecuteBundleWith(ctx context.Context, bundle types.Bundle, args map[string]any, fn ExecFunc) (*types.BundleResult, error) {
	phases, err := ResolvePhases(bundle.Steps)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := &types.BundleResult{
		GatheredResult: types.GatheredResult{
			Results: make(map[string]*types.ToolResponse, len(bundle.Steps)),
		},
		BundleName: bundle.Name,
		Phases:     phases,
	}

	optional := make(map[string]bool, len(bundle.Steps))
	for _, step := range bundle.Steps {
		optional[step.ToolName] = step.Optional
	}
	failed := make(map[string]bool)

	for _, phase := range phases {
		runnable := make([]types.BundleStep, 0, len(phase))
		for _, step := range phase {
			if dep := failedRequiredDep(step, failed, optional); dep != "" {
				e.markDependencyFailure(result, step, dep)
				failed[step.ToolName] = true
				continue
			}
			runnable = append(runnable, step)
		}
		if len(runnable) == 0 {
			continue
		}

		requests := make([]types.ToolRequest, len(runnable))
		for i, step := range runnable {
			requests[i] = types.ToolRequest{
				ToolName:    step.ToolName,
				Args:        args,
				DetailLevel: step.DetailLevel,
			}
		}
		phaseResult := e.GatherWith(ctx, requests, fn)
		for name, resp := range phaseResult.Results {
			result.Results[name] = resp
			if !resp.Success {
				failed[name] = true
			}
		}
		result.Failures = append(result.Failures, phaseResult.Failures...)
	}

	succeeded := 0
	for _, step := range bundle.Steps {
		if resp, ok := result.Results[step.ToolName]; ok && resp.Success {
			succeeded++
		}
	}
	result.Completeness = resilience.Completeness(succeeded, len(bundle.Steps))
	result.TotalTimeMs = time.Since(start).Milliseconds()
	result.OverallSuccess = overallSuccess(bundle, result.Results)
	return result, nil
}

// failedRequiredDep returns the first required predecessor that failed, or
// empty when the step may run. Failed optional predecessors do not block.
func failedRequiredDep(step types.BundleStep, failed, optional map[string]bool) string {
	for _, dep := range step.DependsOn {
		if failed[dep] && !optional[dep] {
			return dep
		}
	}
	return ""
}

// markDependencyFailure records a step that was never invoked because a
// required predecessor failed.
func (e *Executor) markDependencyFailure(result *types.BundleResult, step types.BundleStep, dep string) {
	detail := &types.ErrorDetail{
		Type:    types.ErrUserAction,
		Message: "dependency failed: " + dep,
		Reason:  "dependency failed: " + dep,
	}
	level := step.DetailLevel
	if level == "" {
		level = types.DetailStandard
	}
	result.Results[step.ToolName] = &types.ToolResponse{
		Success:     false,
		Summary:     step.ToolName + " skipped: dependency failed: " + dep,
		DetailLevel: level,
		Metadata: types.ResponseMetadata{
			Server:    registry.ServerName(step.ToolName),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
		Error: detail,
	}
	result.Failures = append(result.Failures, types.StepFailure{
		ToolName:      step.ToolName,
		Error:         detail,
		RecoveryGuide: resilience.BuildRecoveryGuide(step.ToolName, detail),
	})
}

// overallSuccess rolls required-step outcomes up per the gather strategy:
// all means every required step succeeded, majority means strictly more
// than half did.
func overallSuccess(bundle types.Bundle, results map[string]*types.ToolResponse) bool {
	required, succeeded := 0, 0
	for _, step := range bundle.Steps {
		if step.Optional {
			continue
		}
		required++
		if resp, ok := results[step.ToolName]; ok && resp.Success {
			succeeded++
		}
	}
	if required == 0 {
		return true
	}
	if bundle.GatherStrategy == types.GatherMajority {
		return 2*succeeded > required
	}
	return succeeded == required
}
