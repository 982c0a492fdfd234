package engine

import (
	"context"

	"github.com/tascade-run/tascade/internal/authz"
	"github.com/tascade-run/tascade/internal/domain/phase"
	"github.com/tascade-run/tascade/internal/domain/milestone"
	"github.com/tascade-run/tascade/internal/domain/project"
)

// CreateProject is bootstrap/admin-only per spec.md section 4.7.
func (e *Engine) CreateProject(ctx context.Context, p authz.Principal, name, correlationID string) (project.Project, error) {
	if err := authz.Require(p, authz.CapProjectCreate, ""); err != nil {
		return project.Project{}, err
	}
	return withIdempotency(ctx, e, "", correlationID, func(ctx context.Context) (project.Project, error) {
		var out project.Project
		err := e.Store.WithLock(ctx, func(ctx context.Context) error {
			var err error
			out, err = e.DAG.CreateProject(ctx, name)
			if err != nil {
				return err
			}
			return e.emit(ctx, out.ID, "project", out.ID, "project.created", map[string]any{"name": name}, correlationID)
		})
		return out, err
	})
}

// GetProject reads one project.
func (e *Engine) GetProject(ctx context.Context, p authz.Principal, projectID string) (project.Project, error) {
	if err := authz.Require(p, authz.CapProjectRead, projectID); err != nil {
		return project.Project{}, err
	}
	return e.Store.GetProject(ctx, projectID)
}

// ListProjects lists every project visible to the principal (admin sees
// all; a project-scoped principal sees only its own).
func (e *Engine) ListProjects(ctx context.Context, p authz.Principal) ([]project.Project, error) {
	all, err := e.Store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	if p.Admin {
		return all, nil
	}
	var out []project.Project
	for _, proj := range all {
		if proj.ID == p.ProjectID {
			out = append(out, proj)
		}
	}
	return out, nil
}

// CreatePhase creates a phase within a project (planner).
func (e *Engine) CreatePhase(ctx context.Context, p authz.Principal, projectID, name, correlationID string) (phase.Phase, error) {
	if err := authz.Require(p, authz.CapPlanWrite, projectID); err != nil {
		return phase.Phase{}, err
	}
	return withIdempotency(ctx, e, projectID, correlationID, func(ctx context.Context) (phase.Phase, error) {
		var out phase.Phase
		err := e.Store.WithLock(ctx, func(ctx context.Context) error {
			var err error
			out, err = e.DAG.CreatePhase(ctx, projectID, name)
			if err != nil {
				return err
			}
			return e.emit(ctx, projectID, "phase", out.ID, "phase.created", map[string]any{"name": name}, correlationID)
		})
		return out, err
	})
}

// GetPhase reads a phase.
func (e *Engine) GetPhase(ctx context.Context, p authz.Principal, phaseID string) (phase.Phase, error) {
	ph, err := e.Store.GetPhase(ctx, phaseID)
	if err != nil {
		return phase.Phase{}, err
	}
	if err := authz.Require(p, authz.CapTaskRead, ph.ProjectID); err != nil {
		return phase.Phase{}, err
	}
	return ph, nil
}

// CreateMilestone creates a milestone within a phase (planner).
func (e *Engine) CreateMilestone(ctx context.Context, p authz.Principal, phaseID, name, correlationID string) (milestone.Milestone, error) {
	ph, err := e.Store.GetPhase(ctx, phaseID)
	if err != nil {
		return milestone.Milestone{}, err
	}
	if err := authz.Require(p, authz.CapPlanWrite, ph.ProjectID); err != nil {
		return milestone.Milestone{}, err
	}
	return withIdempotency(ctx, e, ph.ProjectID, correlationID, func(ctx context.Context) (milestone.Milestone, error) {
		var out milestone.Milestone
		err := e.Store.WithLock(ctx, func(ctx context.Context) error {
			var err error
			out, err = e.DAG.CreateMilestone(ctx, phaseID, name)
			if err != nil {
				return err
			}
			return e.emit(ctx, ph.ProjectID, "milestone", out.ID, "milestone.created", map[string]any{"name": name}, correlationID)
		})
		return out, err
	})
}

// GetMilestone reads a milestone.
func (e *Engine) GetMilestone(ctx context.Context, p authz.Principal, milestoneID string) (milestone.Milestone, error) {
	m, err := e.Store.GetMilestone(ctx, milestoneID)
	if err != nil {
		return milestone.Milestone{}, err
	}
	if err := authz.Require(p, authz.CapTaskRead, m.ProjectID); err != nil {
		return milestone.Milestone{}, err
	}
	return m, nil
}
