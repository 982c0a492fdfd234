package authz_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tascade-run/tascade/internal/authz"
	"github.com/tascade-run/tascade/internal/domain/apikey"
	"github.com/tascade-run/tascade/pkg/tascadeerr"
)

func TestRequireRejectsUnresolvedPrincipal(t *testing.T) {
	err := authz.Require(authz.Principal{}, authz.CapTaskRead, "proj-1")
	require.Error(t, err)
	assert.True(t, tascadeerr.Is(err, tascadeerr.Unauthenticated))
}

func TestRequireAdminOnlyCapabilityRejectsRoleScope(t *testing.T) {
	p := authz.Principal{ID: "p1", ProjectID: "proj-1", RoleScopes: []apikey.Role{apikey.RolePlanner}}
	err := authz.Require(p, authz.CapProjectCreate, "")
	require.Error(t, err)
	assert.True(t, tascadeerr.Is(err, tascadeerr.RoleScopeViolation))
}

func TestRequireAdminOnlyCapabilityAllowsAdmin(t *testing.T) {
	p := authz.Principal{ID: "admin", Admin: true}
	assert.NoError(t, authz.Require(p, authz.CapProjectCreate, ""))
}

func TestRequireRejectsCrossProjectScope(t *testing.T) {
	p := authz.Principal{ID: "p1", ProjectID: "proj-1", RoleScopes: []apikey.Role{apikey.RolePlanner}}
	err := authz.Require(p, authz.CapPlanWrite, "proj-2")
	require.Error(t, err)
	assert.True(t, tascadeerr.Is(err, tascadeerr.ProjectScopeViolation))
}

func TestRequireAdminBypassesProjectScope(t *testing.T) {
	p := authz.Principal{ID: "admin", Admin: true}
	assert.NoError(t, authz.Require(p, authz.CapPlanWrite, "any-project"))
}

func TestRequireAllowsMatchingRole(t *testing.T) {
	p := authz.Principal{ID: "p1", ProjectID: "proj-1", RoleScopes: []apikey.Role{apikey.RolePlanner}}
	assert.NoError(t, authz.Require(p, authz.CapPlanWrite, "proj-1"))
}

func TestRequireRejectsMissingRole(t *testing.T) {
	p := authz.Principal{ID: "p1", ProjectID: "proj-1", RoleScopes: []apikey.Role{apikey.RoleAgent}}
	err := authz.Require(p, authz.CapPlanWrite, "proj-1")
	require.Error(t, err)
	assert.True(t, tascadeerr.Is(err, tascadeerr.RoleScopeViolation))
}

func TestRequireOperatorCanAssignButNotDecideGate(t *testing.T) {
	p := authz.Principal{ID: "p1", ProjectID: "proj-1", RoleScopes: []apikey.Role{apikey.RoleOperator}}
	assert.NoError(t, authz.Require(p, authz.CapSchedulerAssign, "proj-1"))
	err := authz.Require(p, authz.CapGateDecide, "proj-1")
	require.Error(t, err)
	assert.True(t, tascadeerr.Is(err, tascadeerr.RoleScopeViolation))
}
