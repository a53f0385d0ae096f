package auth

import (
	"fmt"
	"sort"

	"github.com/basinops/basinops-kernel/internal/registry"
	"github.com/basinops/basinops-kernel/pkg/types"
)

// Package auth evaluates whether an identity may call a tool. The role
// matrix and the tool-to-permission mapping are fixed tables; an identity's
// effective permissions are the union of its role defaults and its explicit
// grants.

// roleMatrix holds the default permissions per role. Read-only after init.
var roleMatrix = map[types.Role][]types.Permission{
	types.RoleAnalyst: {
		types.PermReadAnalysis,
	},
	types.RoleEngineer: {
		types.PermReadAnalysis,
		types.PermWriteReports,
	},
	types.RoleExecutive: {
		types.PermReadAnalysis,
		types.PermWriteReports,
		types.PermExecuteDecisions,
	},
	types.RoleAdmin: {
		types.PermReadAnalysis,
		types.PermWriteReports,
		types.PermExecuteDecisions,
		types.PermAdminServers,
		types.PermAdminUsers,
	},
}

// roleOrder ranks roles from least to most privileged, used to find the
// minimal role whose defaults cover a denied permission.
var roleOrder = []types.Role{
	types.RoleAnalyst,
	types.RoleEngineer,
	types.RoleExecutive,
	types.RoleAdmin,
}

// Authorizer evaluates (tool, identity) pairs. With enabled=false every
// call is allowed; demo configurations run this way.
type Authorizer struct {
	enabled bool
}

// New creates an Authorizer.
func New(enabled bool) *Authorizer {
	return &Authorizer{enabled: enabled}
}

// Enabled reports whether evaluation is active.
func (a *Authorizer) Enabled() bool {
	return a.enabled
}

// Evaluate decides whether the identity may call the tool. The required
// permission is derived from the tool's leading server segment, so alternate
// verb spellings of the same server authorize identically.
func (a *Authorizer) Evaluate(toolName string, identity types.Identity) types.AuthDecision {
	if !a.enabled {
		return types.AuthDecision{Allowed: true}
	}

	required := registry.RequiredPermission(toolName)
	if hasPermission(EffectivePermissions(identity), required) {
		return types.AuthDecision{Allowed: true}
	}

	return types.AuthDecision{
		Allowed:             false,
		Reason:              fmt.Sprintf("role %s lacks %s", identity.Role, required),
		RequiredPermissions: []types.Permission{required},
		RequiredRole:        MinimalRoleFor(required),
	}
}

// EffectivePermissions returns the union of role defaults and explicit
// grants, sorted and de-duplicated.
func EffectivePermissions(identity types.Identity) []types.Permission {
	seen := make(map[types.Permission]bool)
	for _, p := range roleMatrix[identity.Role] {
		seen[p] = true
	}
	for _, p := range identity.Permissions {
		seen[p] = true
	}

	out := make([]types.Permission, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MinimalRoleFor returns the least privileged role whose default
// permissions include the given permission. Permissions no role grants by
// default resolve to admin.
func MinimalRoleFor(perm types.Permission) types.Role {
	for _, role := range roleOrder {
		if hasPermission(roleMatrix[role], perm) {
			return role
		}
	}
	return types.RoleAdmin
}

// RolePermissions returns a copy of the default permissions for a role.
func RolePermissions(role types.Role) []types.Permission {
	defaults := roleMatrix[role]
	out := make([]types.Permission, len(defaults))
	copy(out, defaults)
	return out
}

func hasPermission(perms []types.Permission, want types.Permission) bool {
	for _, p := range perms {
		if p == want {
			return true
		}
	}
	return false
}
