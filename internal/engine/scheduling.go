package engine

import (
	"context"

	"github.com/tascade-run/tascade/internal/authz"
	"github.com/tascade-run/tascade/internal/domain/lease"
	"github.com/tascade-run/tascade/internal/domain/reservation"
	"github.com/tascade-run/tascade/internal/domain/task"
	"github.com/tascade-run/tascade/internal/scheduler"
)

// ListReadyTasks returns the ranked pull queue for an agent (agent).
func (e *Engine) ListReadyTasks(ctx context.Context, p authz.Principal, projectID string, capabilities []string) ([]task.Task, error) {
	if err := authz.Require(p, authz.CapSchedulerPull, projectID); err != nil {
		return nil, err
	}
	return e.Scheduler.ListReady(ctx, projectID, capabilities)
}

// Claim runs the pull-mode claim protocol for an agent (agent). Returns
// (result, false, nil) when no candidate is currently claimable.
func (e *Engine) Claim(ctx context.Context, p authz.Principal, projectID, agentID string, capabilities []string, seenPlanVersion *int64) (scheduler.ClaimResult, bool, error) {
	if err := authz.Require(p, authz.CapSchedulerPull, projectID); err != nil {
		return scheduler.ClaimResult{}, false, err
	}
	var result scheduler.ClaimResult
	var ok bool
	err := e.Store.WithLock(ctx, func(ctx context.Context) error {
		var err error
		result, ok, err = e.Scheduler.Claim(ctx, projectID, agentID, capabilities, seenPlanVersion)
		return err
	})
	return result, ok, err
}

// Assign directs a task to a specific agent via a hard reservation
// (operator/planner).
func (e *Engine) Assign(ctx context.Context, p authz.Principal, projectID, taskID, assigneeAgentID string, ttlSeconds int) (task.Task, reservation.Reservation, error) {
	if err := authz.Require(p, authz.CapSchedulerAssign, projectID); err != nil {
		return task.Task{}, reservation.Reservation{}, err
	}
	var t task.Task
	var r reservation.Reservation
	err := e.Store.WithLock(ctx, func(ctx context.Context) error {
		var err error
		t, r, err = e.Scheduler.Assign(ctx, taskID, assigneeAgentID, ttlSeconds)
		return err
	})
	return t, r, err
}

// ReleaseReservation releases an active reservation (operator).
func (e *Engine) ReleaseReservation(ctx context.Context, p authz.Principal, projectID, taskID string) error {
	if err := authz.Require(p, authz.CapSchedulerAssign, projectID); err != nil {
		return err
	}
	return e.Store.WithLock(ctx, func(ctx context.Context) error {
		return e.Scheduler.ReleaseReservation(ctx, taskID)
	})
}

// Heartbeat extends an active lease (agent).
func (e *Engine) Heartbeat(ctx context.Context, p authz.Principal, projectID, token string, seenPlanVersion *int64) (lease.Lease, error) {
	if err := authz.Require(p, authz.CapSchedulerPull, projectID); err != nil {
		return lease.Lease{}, err
	}
	var l lease.Lease
	err := e.Store.WithLock(ctx, func(ctx context.Context) error {
		var err error
		l, err = e.Scheduler.Heartbeat(ctx, token, seenPlanVersion)
		return err
	})
	return l, err
}

// ReleaseLease explicitly releases an active lease (agent).
func (e *Engine) ReleaseLease(ctx context.Context, p authz.Principal, projectID, token string) error {
	if err := authz.Require(p, authz.CapSchedulerPull, projectID); err != nil {
		return err
	}
	return e.Store.WithLock(ctx, func(ctx context.Context) error {
		return e.Scheduler.ReleaseLease(ctx, token)
	})
}
