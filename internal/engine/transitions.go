package engine

import (
	"context"

	"github.com/tascade-run/tascade/internal/authz"
	"github.com/tascade-run/tascade/internal/domain/artifact"
	"github.com/tascade-run/tascade/internal/domain/integrationattempt"
	"github.com/tascade-run/tascade/internal/domain/task"
	"github.com/tascade-run/tascade/internal/lifecycle"
)

func (e *Engine) fire(ctx context.Context, taskID string, ev lifecycle.Event, tc lifecycle.TransitionContext, eventType string, correlationID string) (task.Task, error) {
	var out task.Task
	err := e.Store.WithLock(ctx, func(ctx context.Context) error {
		t, err := e.Store.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		next, err := e.Lifecycle.Fire(ctx, t, ev, tc)
		if err != nil {
			return err
		}
		out, err = e.Store.UpdateTask(ctx, next)
		if err != nil {
			return err
		}
		if err := e.emit(ctx, t.ProjectID, "task", t.ID, eventType, map[string]any{"task_id": t.ID, "actor_id": tc.ActorID}, correlationID); err != nil {
			return err
		}
		// Gate rules are re-evaluated on every task state change, not only on
		// the periodic supervisor tick, per spec.md section 4.6.
		return e.Gate.EvaluateProject(ctx, t.ProjectID)
	})
	return out, err
}

// Start transitions Claimed->InProgress (agent).
func (e *Engine) Start(ctx context.Context, p authz.Principal, taskID, actorID, correlationID string) (task.Task, error) {
	t, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return task.Task{}, err
	}
	if err := authz.Require(p, authz.CapTransitionAgent, t.ProjectID); err != nil {
		return task.Task{}, err
	}
	return withIdempotency(ctx, e, t.ProjectID, correlationID, func(ctx context.Context) (task.Task, error) {
		return e.fire(ctx, taskID, lifecycle.EventStart, lifecycle.TransitionContext{ActorID: actorID}, "task.started", correlationID)
	})
}

// SubmitImplementedInput carries the artifact evidence accompanying a
// submit_implemented transition.
type SubmitImplementedInput struct {
	TaskID      string
	ActorID     string
	Branch      string
	CommitSHA   string
	CheckStatus artifact.CheckStatus
	TouchedFiles []string
	ForceAdmin  bool
	ForceReason string
}

// SubmitImplemented appends the artifact and transitions InProgress->Implemented
// (agent); check_status must be passed for at least one artifact, or admin
// force mode with a reason.
func (e *Engine) SubmitImplemented(ctx context.Context, p authz.Principal, in SubmitImplementedInput, correlationID string) (task.Task, error) {
	t, err := e.Store.GetTask(ctx, in.TaskID)
	if err != nil {
		return task.Task{}, err
	}
	if err := authz.Require(p, authz.CapTransitionAgent, t.ProjectID); err != nil {
		return task.Task{}, err
	}
	if in.ForceAdmin && !p.Admin {
		return task.Task{}, authz.Require(p, authz.CapAPIKeyAdmin, "") // surfaces ROLE_SCOPE_VIOLATION
	}
	return withIdempotency(ctx, e, t.ProjectID, correlationID, func(ctx context.Context) (task.Task, error) {
		var out task.Task
		err := e.Store.WithLock(ctx, func(ctx context.Context) error {
			if _, err := e.Store.AppendArtifact(ctx, artifact.Artifact{
				TaskID: in.TaskID, Branch: in.Branch, CommitSHA: in.CommitSHA,
				CheckStatus: in.CheckStatus, TouchedFiles: in.TouchedFiles,
			}); err != nil {
				return err
			}
			current, err := e.Store.GetTask(ctx, in.TaskID)
			if err != nil {
				return err
			}
			tc := lifecycle.TransitionContext{
				ActorID:        in.ActorID,
				ArtifactPassed: in.CheckStatus == artifact.CheckPassed,
				ForceAdmin:     in.ForceAdmin,
				ForceReason:    in.ForceReason,
			}
			next, err := e.Lifecycle.Fire(ctx, current, lifecycle.EventSubmitImplemented, tc)
			if err != nil {
				return err
			}
			out, err = e.Store.UpdateTask(ctx, next)
			if err != nil {
				return err
			}
			eventType := "task.implemented"
			if in.ForceAdmin {
				eventType = "task.implemented_forced"
			}
			if err := e.emit(ctx, current.ProjectID, "task", current.ID, eventType, map[string]any{
				"task_id": current.ID, "branch": in.Branch, "commit_sha": in.CommitSHA,
			}, correlationID); err != nil {
				return err
			}
			return e.Gate.EvaluateProject(ctx, current.ProjectID)
		})
		return out, err
	})
}

// RequestIntegrateInput carries the optional force-mode fields for
// Implemented->Integrated.
type RequestIntegrateInput struct {
	TaskID      string
	ActorID     string
	ForceAdmin  bool
	ForceReason string
}

// RequestIntegrate transitions Implemented->Integrated (integrator),
// enforced by the gate engine unless force mode is used by an admin with a
// backfill reason.
func (e *Engine) RequestIntegrate(ctx context.Context, p authz.Principal, in RequestIntegrateInput, correlationID string) (task.Task, error) {
	t, err := e.Store.GetTask(ctx, in.TaskID)
	if err != nil {
		return task.Task{}, err
	}
	if err := authz.Require(p, authz.CapIntegrate, t.ProjectID); err != nil {
		return task.Task{}, err
	}
	if in.ForceAdmin && !p.Admin {
		return task.Task{}, authz.Require(p, authz.CapAPIKeyAdmin, "")
	}
	tc := lifecycle.TransitionContext{ActorID: in.ActorID, ForceAdmin: in.ForceAdmin, ForceReason: in.ForceReason}
	eventType := "task.integrated"
	if in.ForceAdmin {
		eventType = "task.integrated_forced"
	}
	return withIdempotency(ctx, e, t.ProjectID, correlationID, func(ctx context.Context) (task.Task, error) {
		return e.fire(ctx, in.TaskID, lifecycle.EventRequestIntegrate, tc, eventType, correlationID)
	})
}

// ReportIntegrationResult records a merge outcome and, on conflict,
// transitions Implemented->Conflict (integrator).
func (e *Engine) ReportIntegrationResult(ctx context.Context, p authz.Principal, taskID, actorID string, outcome integrationattempt.Outcome, details, correlationID string) (task.Task, error) {
	t, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return task.Task{}, err
	}
	if err := authz.Require(p, authz.CapIntegrate, t.ProjectID); err != nil {
		return task.Task{}, err
	}
	return withIdempotency(ctx, e, t.ProjectID, correlationID, func(ctx context.Context) (task.Task, error) {
		var out task.Task
		err := e.Store.WithLock(ctx, func(ctx context.Context) error {
			if _, err := e.Store.AppendIntegrationAttempt(ctx, integrationattempt.IntegrationAttempt{
				TaskID: taskID, Outcome: outcome, Details: details,
			}); err != nil {
				return err
			}
			current, err := e.Store.GetTask(ctx, taskID)
			if err != nil {
				return err
			}
			if outcome != integrationattempt.OutcomeConflict {
				out = current
				return e.emit(ctx, current.ProjectID, "task", current.ID, "integration.reported", map[string]any{
					"task_id": taskID, "outcome": string(outcome),
				}, correlationID)
			}
			next, err := e.Lifecycle.Fire(ctx, current, lifecycle.EventIntegrationConflict, lifecycle.TransitionContext{ActorID: actorID})
			if err != nil {
				return err
			}
			out, err = e.Store.UpdateTask(ctx, next)
			if err != nil {
				return err
			}
			return e.emit(ctx, current.ProjectID, "task", current.ID, "task.integration_conflict", map[string]any{"task_id": taskID}, correlationID)
		})
		return out, err
	})
}

// RetryFromConflict transitions Conflict->Ready (agent).
func (e *Engine) RetryFromConflict(ctx context.Context, p authz.Principal, taskID, actorID, correlationID string) (task.Task, error) {
	t, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return task.Task{}, err
	}
	if err := authz.Require(p, authz.CapTransitionAgent, t.ProjectID); err != nil {
		return task.Task{}, err
	}
	return withIdempotency(ctx, e, t.ProjectID, correlationID, func(ctx context.Context) (task.Task, error) {
		return e.fire(ctx, taskID, lifecycle.EventRetryFromConflict, lifecycle.TransitionContext{ActorID: actorID}, "task.retry_from_conflict", correlationID)
	})
}

// Block transitions Ready/InProgress->Blocked with a reason (agent).
func (e *Engine) Block(ctx context.Context, p authz.Principal, taskID, actorID, reason, correlationID string) (task.Task, error) {
	t, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return task.Task{}, err
	}
	if err := authz.Require(p, authz.CapTransitionAgent, t.ProjectID); err != nil {
		return task.Task{}, err
	}
	tc := lifecycle.TransitionContext{ActorID: actorID, BlockReason: reason}
	return withIdempotency(ctx, e, t.ProjectID, correlationID, func(ctx context.Context) (task.Task, error) {
		return e.fire(ctx, taskID, lifecycle.EventBlock, tc, "task.blocked", correlationID)
	})
}

// Unblock transitions Blocked->Ready (agent).
func (e *Engine) Unblock(ctx context.Context, p authz.Principal, taskID, actorID, correlationID string) (task.Task, error) {
	t, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return task.Task{}, err
	}
	if err := authz.Require(p, authz.CapTransitionAgent, t.ProjectID); err != nil {
		return task.Task{}, err
	}
	return withIdempotency(ctx, e, t.ProjectID, correlationID, func(ctx context.Context) (task.Task, error) {
		return e.fire(ctx, taskID, lifecycle.EventUnblock, lifecycle.TransitionContext{ActorID: actorID}, "task.unblocked", correlationID)
	})
}

// Cancel transitions Backlog/Ready->Cancelled (planner).
func (e *Engine) Cancel(ctx context.Context, p authz.Principal, taskID, actorID, correlationID string) (task.Task, error) {
	t, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return task.Task{}, err
	}
	if err := authz.Require(p, authz.CapPlanWrite, t.ProjectID); err != nil {
		return task.Task{}, err
	}
	return withIdempotency(ctx, e, t.ProjectID, correlationID, func(ctx context.Context) (task.Task, error) {
		return e.fire(ctx, taskID, lifecycle.EventCancel, lifecycle.TransitionContext{ActorID: actorID}, "task.cancelled", correlationID)
	})
}

// Abandon transitions InProgress->Abandoned (agent).
func (e *Engine) Abandon(ctx context.Context, p authz.Principal, taskID, actorID, correlationID string) (task.Task, error) {
	t, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return task.Task{}, err
	}
	if err := authz.Require(p, authz.CapTransitionAgent, t.ProjectID); err != nil {
		return task.Task{}, err
	}
	return withIdempotency(ctx, e, t.ProjectID, correlationID, func(ctx context.Context) (task.Task, error) {
		return e.fire(ctx, taskID, lifecycle.EventAbandon, lifecycle.TransitionContext{ActorID: actorID}, "task.abandoned", correlationID)
	})
}
