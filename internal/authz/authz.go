// Package authz implements C7: project-scoped principals and the uniform
// role-capability checks applied before every C2-C6 operation.
package authz

import (
	"github.com/tascade-run/tascade/internal/domain/apikey"
	"github.com/tascade-run/tascade/pkg/tascadeerr"
)

// Capability is a single operation-level permission required by an engine
// method. Every exported engine operation declares exactly one.
type Capability string

const (
	CapProjectCreate     Capability = "project.create"
	CapProjectRead       Capability = "project.read"
	CapPlanWrite         Capability = "plan.write" // phase/milestone/task create, dependency add/remove
	CapTaskRead          Capability = "task.read"
	CapTaskUpdate        Capability = "task.update"
	CapSchedulerPull     Capability = "scheduler.pull" // list_ready, claim, heartbeat, release_lease
	CapSchedulerAssign   Capability = "scheduler.assign" // assign, release_reservation
	CapTransitionAgent   Capability = "transition.agent" // start, submit_implemented, block/unblock, abandon
	CapIntegrate         Capability = "transition.integrate" // request_integrate, report_integration_result
	CapReplanWrite       Capability = "replan.write" // submit/preview change set
	CapReplanApply       Capability = "replan.apply"
	CapGateRead          Capability = "gate.read"
	CapGateDecide        Capability = "gate.decide"
	CapAPIKeyAdmin       Capability = "apikey.admin"
)

// Principal is the resolved, authenticated caller of an engine operation.
type Principal struct {
	ID         string
	ProjectID  string // empty for the bootstrap/admin principal used to create projects
	RoleScopes []apikey.Role
	Admin      bool
}

func (p Principal) hasRole(r apikey.Role) bool {
	if p.Admin {
		return true
	}
	for _, have := range p.RoleScopes {
		if have == r {
			return true
		}
	}
	return false
}

// capabilityRoles lists which role scopes grant each capability. A
// principal needs at least one of the listed roles (or Admin, which bypasses
// the check entirely).
var capabilityRoles = map[Capability][]apikey.Role{
	CapProjectCreate:   {}, // admin-only; see Require
	CapProjectRead:     {apikey.RolePlanner, apikey.RoleAgent, apikey.RoleReviewer, apikey.RoleOperator},
	CapPlanWrite:       {apikey.RolePlanner},
	CapTaskRead:        {apikey.RolePlanner, apikey.RoleAgent, apikey.RoleReviewer, apikey.RoleOperator},
	CapTaskUpdate:      {apikey.RolePlanner},
	CapSchedulerPull:   {apikey.RoleAgent},
	CapSchedulerAssign: {apikey.RoleOperator, apikey.RolePlanner},
	CapTransitionAgent: {apikey.RoleAgent},
	CapIntegrate:       {apikey.RoleAgent, apikey.RoleOperator},
	CapReplanWrite:     {apikey.RolePlanner},
	CapReplanApply:     {apikey.RolePlanner, apikey.RoleOperator},
	CapGateRead:        {apikey.RolePlanner, apikey.RoleReviewer, apikey.RoleOperator},
	CapGateDecide:      {apikey.RoleReviewer},
	CapAPIKeyAdmin:     {}, // admin-only
}

// adminOnly is the set of capabilities that only the Admin flag (never a
// role scope) may satisfy, per spec.md section 4.7: "Project creation is
// treated as a bootstrap/admin-only capability."
var adminOnly = map[Capability]bool{
	CapProjectCreate: true,
	CapAPIKeyAdmin:   true,
}

// Require enforces project scope and role-capability checks uniformly.
// targetProjectID is the project the operation acts on; pass "" for
// operations with no project target (e.g. project creation).
func Require(p Principal, cap Capability, targetProjectID string) error {
	if p.ID == "" {
		return tascadeerr.UnauthenticatedErr("no principal resolved")
	}

	if adminOnly[cap] {
		if !p.Admin {
			return tascadeerr.RoleScopeViolationErr(string(cap))
		}
		return nil
	}

	if targetProjectID != "" && !p.Admin && p.ProjectID != targetProjectID {
		return tascadeerr.ProjectScopeViolationErr(p.ProjectID, targetProjectID)
	}

	if p.Admin {
		return nil
	}

	allowed := capabilityRoles[cap]
	for _, role := range allowed {
		if p.hasRole(role) {
			return nil
		}
	}
	return tascadeerr.RoleScopeViolationErr(string(cap))
}
