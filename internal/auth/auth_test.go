package auth

import (
	"strings"
	"testing"

	"github.com/basinops/basinops-kernel/pkg/types"
)

func TestRoleMatrixDefaults(t *testing.T) {
	cases := []struct {
		role  types.Role
		count int
	}{
		{types.RoleAnalyst, 1},
		{types.RoleEngineer, 2},
		{types.RoleExecutive, 3},
		{types.RoleAdmin, 5},
	}
	for _, tc := range cases {
		if got := len(RolePermissions(tc.role)); got != tc.count {
			t.Errorf("role %s has %d default permissions, want %d", tc.role, got, tc.count)
		}
	}
}

func TestEvaluateAllowsWithinRole(t *testing.T) {
	a := New(true)

	decision := a.Evaluate("geowiz.analyze", types.Identity{UserID: "u1", Role: types.RoleAnalyst})
	if !decision.Allowed {
		t.Fatalf("analyst should read analyses, got %+v", decision)
	}

	decision = a.Evaluate("reporter.analyze", types.Identity{UserID: "u2", Role: types.RoleEngineer})
	if !decision.Allowed {
		t.Fatalf("engineer should write reports, got %+v", decision)
	}

	decision = a.Evaluate("decision.analyze", types.Identity{UserID: "u3", Role: types.RoleExecutive})
	if !decision.Allowed {
		t.Fatalf("executive should execute decisions, got %+v", decision)
	}
}

func TestEvaluateDeniesAnalystDecision(t *testing.T) {
	a := New(true)

	decision := a.Evaluate("decision.analyze", types.Identity{UserID: "u1", Role: types.RoleAnalyst})
	if decision.Allowed {
		t.Fatal("analyst must not execute decisions")
	}
	if len(decision.RequiredPermissions) != 1 || decision.RequiredPermissions[0] != types.PermExecuteDecisions {
		t.Errorf("requiredPermissions = %v, want [execute:decisions]", decision.RequiredPermissions)
	}
	if decision.RequiredRole != types.RoleExecutive {
		t.Errorf("requiredRole = %s, want executive", decision.RequiredRole)
	}
	if !strings.Contains(decision.Reason, "analyst") || !strings.Contains(decision.Reason, "execute:decisions") {
		t.Errorf("denial reason should name role and permission, got %q", decision.Reason)
	}
}

func TestEvaluateResolvesByServerSegment(t *testing.T) {
	a := New(true)

	// Alternate verb spellings of the same server authorize identically.
	forAnalyze := a.Evaluate("decision.analyze", types.Identity{Role: types.RoleAnalyst})
	forVerb := a.Evaluate("decision.make_recommendation", types.Identity{Role: types.RoleAnalyst})
	if forAnalyze.Allowed != forVerb.Allowed || forAnalyze.RequiredRole != forVerb.RequiredRole {
		t.Errorf("verb spelling changed the decision: %+v vs %+v", forAnalyze, forVerb)
	}
}

func TestExplicitGrantsExtendRoleDefaults(t *testing.T) {
	a := New(true)

	identity := types.Identity{
		UserID:      "u1",
		Role:        types.RoleAnalyst,
		Permissions: []types.Permission{types.PermExecuteDecisions},
	}
	if decision := a.Evaluate("decision.analyze", identity); !decision.Allowed {
		t.Errorf("explicit grant should allow the call, got %+v", decision)
	}
	// The grant does not leak into unrelated permissions.
	if decision := a.Evaluate("admin.servers", identity); decision.Allowed {
		t.Errorf("grant for decisions must not unlock admin tools")
	}
}

func TestDisabledModeAllowsEverything(t *testing.T) {
	a := New(false)
	if decision := a.Evaluate("admin.servers", types.Identity{Role: types.RoleAnalyst}); !decision.Allowed {
		t.Errorf("disabled authorizer must allow unconditionally, got %+v", decision)
	}
}

func TestMinimalRoleFor(t *testing.T) {
	cases := map[types.Permission]types.Role{
		types.PermReadAnalysis:     types.RoleAnalyst,
		types.PermWriteReports:     types.RoleEngineer,
		types.PermExecuteDecisions: types.RoleExecutive,
		types.PermAdminServers:     types.RoleAdmin,
		types.PermAdminUsers:       types.RoleAdmin,
	}
	for perm, want := range cases {
		if got := MinimalRoleFor(perm); got != want {
			t.Errorf("MinimalRoleFor(%s) = %s, want %s", perm, got, want)
		}
	}
}

func TestEffectivePermissionsDeduplicates(t *testing.T) {
	identity := types.Identity{
		Role:        types.RoleEngineer,
		Permissions: []types.Permission{types.PermReadAnalysis, types.PermWriteReports},
	}
	if got := EffectivePermissions(identity); len(got) != 2 {
		t.Errorf("effective permissions should de-duplicate, got %v", got)
	}
}
