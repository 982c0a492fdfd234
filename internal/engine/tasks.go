package engine

import (
	"context"

	"github.com/tascade-run/tascade/internal/authz"
	service "github.com/tascade-run/tascade/internal/core/service"
	"github.com/tascade-run/tascade/internal/dagengine"
	"github.com/tascade-run/tascade/internal/domain/edge"
	"github.com/tascade-run/tascade/internal/domain/task"
	"github.com/tascade-run/tascade/internal/store"
)

// CreateTask creates a task (planner).
func (e *Engine) CreateTask(ctx context.Context, p authz.Principal, in dagengine.CreateTaskInput, correlationID string) (task.Task, error) {
	if err := authz.Require(p, authz.CapPlanWrite, in.ProjectID); err != nil {
		return task.Task{}, err
	}
	return withIdempotency(ctx, e, in.ProjectID, correlationID, func(ctx context.Context) (task.Task, error) {
		var out task.Task
		err := e.Store.WithLock(ctx, func(ctx context.Context) error {
			var err error
			out, err = e.DAG.CreateTask(ctx, in)
			if err != nil {
				return err
			}
			if err := e.emit(ctx, in.ProjectID, "task", out.ID, "task.created", map[string]any{"title": in.Title}, correlationID); err != nil {
				return err
			}
			// A task with no incoming edges vacuously satisfies readiness and
			// must leave Backlog on creation rather than waiting for an edge
			// event that will never come (spec.md section 4.4).
			if err := e.Scheduler.RecomputeReadiness(ctx, out.ID); err != nil {
				return err
			}
			out, err = e.Store.GetTask(ctx, out.ID)
			return err
		})
		return out, err
	})
}

// UpdateTaskInput carries the planner-mutable fields of an out-of-band task
// update (outside a change set — for metadata corrections that are not
// meant to invalidate active claims).
type UpdateTaskInput struct {
	TaskID      string
	Title       string
	Description string
	Priority    *int
}

// UpdateTask applies a direct metadata update (planner). Unlike a replan
// change-set operation, this never bumps MaterialPlanVersion — it is meant
// for corrections (typo fixes, description clarifications), not execution
// semantics changes.
func (e *Engine) UpdateTask(ctx context.Context, p authz.Principal, in UpdateTaskInput, correlationID string) (task.Task, error) {
	t, err := e.Store.GetTask(ctx, in.TaskID)
	if err != nil {
		return task.Task{}, err
	}
	if err := authz.Require(p, authz.CapTaskUpdate, t.ProjectID); err != nil {
		return task.Task{}, err
	}
	return withIdempotency(ctx, e, t.ProjectID, correlationID, func(ctx context.Context) (task.Task, error) {
		var out task.Task
		err := e.Store.WithLock(ctx, func(ctx context.Context) error {
			t, err := e.Store.GetTask(ctx, in.TaskID)
			if err != nil {
				return err
			}
			if in.Title != "" {
				t.Title = in.Title
			}
			if in.Description != "" {
				t.Description = in.Description
			}
			if in.Priority != nil {
				t.Priority = *in.Priority
			}
			t.Version++
			out, err = e.Store.UpdateTask(ctx, t)
			if err != nil {
				return err
			}
			return e.emit(ctx, t.ProjectID, "task", t.ID, "task.updated", map[string]any{"task_id": t.ID}, correlationID)
		})
		return out, err
	})
}

// GetTask reads a task.
func (e *Engine) GetTask(ctx context.Context, p authz.Principal, taskID string) (task.Task, error) {
	t, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return task.Task{}, err
	}
	if err := authz.Require(p, authz.CapTaskRead, t.ProjectID); err != nil {
		return task.Task{}, err
	}
	return t, nil
}

// ListTasks lists tasks with filters (state, phase, milestone, class,
// capability, text, pagination).
func (e *Engine) ListTasks(ctx context.Context, p authz.Principal, filter store.TaskFilter) ([]task.Task, error) {
	if err := authz.Require(p, authz.CapTaskRead, filter.ProjectID); err != nil {
		return nil, err
	}
	filter.Limit = service.ClampLimit(filter.Limit, service.DefaultListLimit, service.MaxListLimit)
	return e.Store.ListTasks(ctx, filter)
}

// AddDependency adds a dependency edge (planner).
func (e *Engine) AddDependency(ctx context.Context, p authz.Principal, projectID, fromTaskID, toTaskID string, unlockOn edge.UnlockOn, correlationID string) (edge.Edge, error) {
	if err := authz.Require(p, authz.CapPlanWrite, projectID); err != nil {
		return edge.Edge{}, err
	}
	return withIdempotency(ctx, e, projectID, correlationID, func(ctx context.Context) (edge.Edge, error) {
		var out edge.Edge
		err := e.Store.WithLock(ctx, func(ctx context.Context) error {
			var err error
			out, err = e.DAG.AddEdge(ctx, projectID, fromTaskID, toTaskID, unlockOn)
			if err != nil {
				return err
			}
			if err := e.emit(ctx, projectID, "edge", out.ID, "edge.added", map[string]any{"from": fromTaskID, "to": toTaskID}, correlationID); err != nil {
				return err
			}
			return e.Scheduler.RecomputeReadiness(ctx, toTaskID)
		})
		return out, err
	})
}

// RemoveDependency removes a dependency edge (planner).
func (e *Engine) RemoveDependency(ctx context.Context, p authz.Principal, projectID, fromTaskID, toTaskID, correlationID string) error {
	if err := authz.Require(p, authz.CapPlanWrite, projectID); err != nil {
		return err
	}
	_, err := withIdempotency(ctx, e, projectID, correlationID, func(ctx context.Context) (struct{}, error) {
		err := e.Store.WithLock(ctx, func(ctx context.Context) error {
			if err := e.DAG.RemoveEdge(ctx, projectID, fromTaskID, toTaskID); err != nil {
				return err
			}
			if err := e.emit(ctx, projectID, "edge", fromTaskID+"->"+toTaskID, "edge.removed", map[string]any{"from": fromTaskID, "to": toTaskID}, correlationID); err != nil {
				return err
			}
			return e.Scheduler.RecomputeReadiness(ctx, toTaskID)
		})
		return struct{}{}, err
	})
	return err
}

// GetContext returns the bounded ancestor/dependent subgraph for a task.
func (e *Engine) GetContext(ctx context.Context, p authz.Principal, projectID string, q dagengine.ContextQuery) (dagengine.ContextSubgraph, error) {
	if err := authz.Require(p, authz.CapTaskRead, projectID); err != nil {
		return dagengine.ContextSubgraph{}, err
	}
	q.ProjectID = projectID
	return e.DAG.GetContext(ctx, q)
}
