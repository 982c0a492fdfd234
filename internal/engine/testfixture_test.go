package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/tascade-run/tascade/internal/authz"
	"github.com/tascade-run/tascade/internal/dagengine"
	"github.com/tascade-run/tascade/internal/domain/apikey"
	"github.com/tascade-run/tascade/internal/domain/edge"
	"github.com/tascade-run/tascade/internal/domain/task"
	"github.com/tascade-run/tascade/internal/engine"
	"github.com/tascade-run/tascade/internal/store/memory"
	"github.com/tascade-run/tascade/pkg/logger"
)

// fixture wires a fresh engine over a fresh memory store and a bootstrap
// admin principal, mirroring the teacher's service-level test helpers that
// build a store.New() + service per test rather than sharing global state.
type fixture struct {
	t      *testing.T
	ctx    context.Context
	engine *engine.Engine
	admin  authz.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.New(logger.LoggingConfig{Level: "error", Format: "text", Output: "stdout"})
	return &fixture{
		t:      t,
		ctx:    context.Background(),
		engine: engine.New(memory.New(), log),
		admin:  authz.Principal{ID: "admin-principal", Admin: true},
	}
}

// principal builds a project-scoped principal carrying the given role
// scopes, as if minted by CreateAPIKey/ResolvePrincipal.
func (f *fixture) principal(projectID string, roles ...apikey.Role) authz.Principal {
	return authz.Principal{ID: "principal-" + projectID + "-" + string(roles[0]), ProjectID: projectID, RoleScopes: roles}
}

// seedProject creates one project/phase/milestone and returns their ids
// plus a planner principal scoped to the project.
func (f *fixture) seedProject(name string) (projectID, phaseID, milestoneID string, planner authz.Principal) {
	f.t.Helper()
	proj, err := f.engine.CreateProject(f.ctx, f.admin, name, "")
	if err != nil {
		f.t.Fatalf("create project: %v", err)
	}
	planner = f.principal(proj.ID, apikey.RolePlanner)
	ph, err := f.engine.CreatePhase(f.ctx, planner, proj.ID, "Phase 1", "")
	if err != nil {
		f.t.Fatalf("create phase: %v", err)
	}
	m, err := f.engine.CreateMilestone(f.ctx, planner, ph.ID, "Milestone 1", "")
	if err != nil {
		f.t.Fatalf("create milestone: %v", err)
	}
	return proj.ID, ph.ID, m.ID, planner
}

func (f *fixture) createTask(planner authz.Principal, projectID, phaseID, milestoneID, title string, capTags ...string) task.Task {
	f.t.Helper()
	tk, err := f.engine.CreateTask(f.ctx, planner, dagengine.CreateTaskInput{
		ProjectID:      projectID,
		PhaseID:        phaseID,
		MilestoneID:    milestoneID,
		Title:          title,
		TaskClass:      task.ClassBackend,
		CapabilityTags: capTags,
		WorkSpec:       task.WorkSpec{Objective: "do " + title},
	}, "")
	if err != nil {
		f.t.Fatalf("create task %q: %v", title, err)
	}
	return tk
}

func (f *fixture) addDependency(planner authz.Principal, projectID, from, to string, unlock edge.UnlockOn) {
	f.t.Helper()
	if _, err := f.engine.AddDependency(f.ctx, planner, projectID, from, to, unlock, ""); err != nil {
		f.t.Fatalf("add dependency %s->%s: %v", from, to, err)
	}
}

// expireLease rewinds a lease's expires_at into the past directly in the
// store, the way a time-travel test fakes TTL elapse without a real clock.
func expireLease(f *fixture, leaseToken string) {
	f.t.Helper()
	l, err := f.engine.Store.GetLeaseByToken(f.ctx, leaseToken)
	if err != nil {
		f.t.Fatalf("get lease: %v", err)
	}
	l.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	if _, err := f.engine.Store.UpdateLease(f.ctx, l); err != nil {
		f.t.Fatalf("update lease: %v", err)
	}
}
