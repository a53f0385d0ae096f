package bundles

import (
	"fmt"

	"github.com/basinops/basinops-kernel/pkg/types"
)

// Package bundles holds the built-in declarative workflows: named step
// lists with dependency edges and a gather strategy. The library is a
// read-only table initialized at startup; custom bundles go through the
// same Validate before execution.

// Bundle names.
const (
	QuickScreen        = "quick_screen"
	FullDueDiligence   = "full_due_diligence"
	GeologicalDeepDive = "geological_deep_dive"
	FinancialReview    = "financial_review"
)

// library lists the built-in bundles in presentation order.
var library = []types.Bundle{
	{
		Name:        QuickScreen,
		Description: "Fast four-way screen of a prospect: geology, economics, decline curves and risk.",
		Steps: []types.BundleStep{
			{ToolName: "geowiz.analyze", DetailLevel: types.DetailSummary, Parallel: true},
			{ToolName: "econobot.analyze", DetailLevel: types.DetailSummary, Parallel: true},
			{ToolName: "curve-smith.analyze", DetailLevel: types.DetailSummary, Parallel: true},
			{ToolName: "risk-analysis.analyze", DetailLevel: types.DetailSummary, Parallel: true},
		},
		GatherStrategy: types.GatherAll,
	},
	{
		Name:        FullDueDiligence,
		Description: "Complete fourteen-worker due-diligence run ending in a report and an investment call.",
		Steps: []types.BundleStep{
			// Phase 1: independent groundwork.
			{ToolName: "geowiz.analyze", DetailLevel: types.DetailStandard, Parallel: true},
			{ToolName: "econobot.analyze", DetailLevel: types.DetailStandard, Parallel: true},
			{ToolName: "curve-smith.analyze", DetailLevel: types.DetailStandard, Parallel: true},
			{ToolName: "market.analyze", DetailLevel: types.DetailStandard, Parallel: true},
			{ToolName: "research.analyze", DetailLevel: types.DetailStandard, Parallel: true, Optional: true},
			{ToolName: "legal.analyze", DetailLevel: types.DetailStandard, Parallel: true},
			{ToolName: "title.analyze", DetailLevel: types.DetailStandard, Parallel: true},

			// Phase 2: built on the groundwork.
			{ToolName: "risk-analysis.analyze", DetailLevel: types.DetailStandard, Parallel: true,
				DependsOn: []string{"geowiz.analyze", "econobot.analyze"}},
			{ToolName: "drilling.analyze", DetailLevel: types.DetailStandard, Parallel: true,
				DependsOn: []string{"geowiz.analyze", "curve-smith.analyze"}},
			{ToolName: "infrastructure.analyze", DetailLevel: types.DetailStandard, Parallel: true, Optional: true,
				DependsOn: []string{"market.analyze"}},
			{ToolName: "test.analyze", DetailLevel: types.DetailStandard, Parallel: true,
				DependsOn: []string{"geowiz.analyze", "econobot.analyze", "curve-smith.analyze"}},

			// Phase 3: planning plus the report.
			{ToolName: "development.analyze", DetailLevel: types.DetailStandard, Parallel: true, Optional: true,
				DependsOn: []string{"drilling.analyze"}},
			{ToolName: "reporter.analyze", DetailLevel: types.DetailFull, Parallel: true,
				DependsOn: []string{"test.analyze"}},

			// Phase 4: the investment call.
			{ToolName: "decision.analyze", DetailLevel: types.DetailFull, Parallel: true,
				DependsOn: []string{"reporter.analyze"}},
		},
		GatherStrategy: types.GatherMajority,
	},
	{
		Name:        GeologicalDeepDive,
		Description: "Geology-first look: full formation evaluation with decline-curve support.",
		Steps: []types.BundleStep{
			{ToolName: "geowiz.analyze", DetailLevel: types.DetailFull, Parallel: true},
			{ToolName: "curve-smith.analyze", DetailLevel: types.DetailStandard, Parallel: true},
			{ToolName: "research.analyze", DetailLevel: types.DetailSummary, Parallel: true, Optional: true},
		},
		GatherStrategy: types.GatherAll,
	},
	{
		Name:        FinancialReview,
		Description: "Economics-first look: full cash-flow model with risk and market context.",
		Steps: []types.BundleStep{
			{ToolName: "econobot.analyze", DetailLevel: types.DetailFull, Parallel: true},
			{ToolName: "risk-analysis.analyze", DetailLevel: types.DetailStandard, Parallel: true},
			{ToolName: "market.analyze", DetailLevel: types.DetailSummary, Parallel: true, Optional: true},
		},
		GatherStrategy: types.GatherAll,
	},
}

// Get returns a built-in bundle by name.
func Get(name string) (types.Bundle, bool) {
	for _, b := range library {
		if b.Name == name {
			return b, true
		}
	}
	return types.Bundle{}, false
}

// List returns the built-in bundles in presentation order.
func List() []types.Bundle {
	out := make([]types.Bundle, len(library))
	copy(out, library)
	return out
}

// Validate checks a bundle's structural invariants: a non-empty name and
// step list, a known gather strategy, no duplicate steps, every dependency
// referencing a peer step, and an acyclic dependency graph.
func Validate(bundle types.Bundle) error {
	if bundle.Name == "" {
		return fmt.Errorf("bundle has no name")
	}
	if len(bundle.Steps) == 0 {
		return fmt.Errorf("bundle %s has no steps", bundle.Name)
	}
	if bundle.GatherStrategy != types.GatherAll && bundle.GatherStrategy != types.GatherMajority {
		return fmt.Errorf("bundle %s has unknown gather strategy %q", bundle.Name, bundle.GatherStrategy)
	}

	steps := make(map[string]types.BundleStep, len(bundle.Steps))
	for _, step := range bundle.Steps {
		if step.ToolName == "" {
			return fmt.Errorf("bundle %s has a step without a tool name", bundle.Name)
		}
		if _, dup := steps[step.ToolName]; dup {
			return fmt.Errorf("bundle %s lists %s twice", bundle.Name, step.ToolName)
		}
		steps[step.ToolName] = step
	}

	for _, step := range bundle.Steps {
		for _, dep := range step.DependsOn {
			if _, ok := steps[dep]; !ok {
				return fmt.Errorf("bundle %s: step %s depends on unknown step %s", bundle.Name, step.ToolName, dep)
			}
			if dep == step.ToolName {
				return fmt.Errorf("bundle %s: step %s depends on itself", bundle.Name, step.ToolName)
			}
		}
	}

	if err := checkAcyclic(bundle); err != nil {
		return err
	}
	return nil
}

// checkAcyclic runs a depth-first walk over the dependency edges.
func checkAcyclic(bundle types.Bundle) error {
	deps := make(map[string][]string, len(bundle.Steps))
	for _, step := range bundle.Steps {
		deps[step.ToolName] = step.DependsOn
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(deps))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("bundle %s: dependency cycle through %s", bundle.Name, name)
		case done:
			return nil
		}
		state[name] = visiting
		for _, dep := range deps[name] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for _, step := range bundle.Steps {
		if err := visit(step.ToolName); err != nil {
			return err
		}
	}
	return nil
}
