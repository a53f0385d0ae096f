package executor

import (
	"fmt"

	"github.com/basinops/basinops-kernel/pkg/types"
)

// ResolvePhases computes a topological layering of bundle steps: every step
// lands in the earliest phase whose predecessors are all in strictly
// earlier phases. Cycles and dangling references fail fast.
func ResolvePhases(steps []types.BundleStep) ([][]types.BundleStep, error) {
	byName := make(map[string]types.BundleStep, len(steps))
	for _, step := range steps {
		if _, dup := byName[step.ToolName]; dup {
			return nil, fmt.Errorf("duplicate step %s", step.ToolName)
		}
		byName[step.ToolName] = step
	}
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("step %s depends on unknown step %s", step.ToolName, dep)
			}
		}
	}

	placed := make(map[string]bool, len(steps))
	remaining := len(steps)
	var phases [][]types.BundleStep

	for remaining > 0 {
		var phase []types.BundleStep
		for _, step := range steps {
			if placed[step.ToolName] {
				continue
			}
			ready := true
			for _, dep := range step.DependsOn {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				phase = append(phase, step)
			}
		}
		if len(phase) == 0 {
			return nil, fmt.Errorf("dependency cycle among remaining steps")
		}
		for _, step := range phase {
			placed[step.ToolName] = true
		}
		remaining -= len(phase)
		phases = append(phases, phase)
	}
	return phases, nil
}
