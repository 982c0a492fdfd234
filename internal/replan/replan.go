package replan

import (
	"context"

	"github.com/tascade-run/tascade/internal/dagengine"
	"github.com/tascade-run/tascade/internal/domain/changeset"
	"github.com/tascade-run/tascade/internal/domain/planversion"
	"github.com/tascade-run/tascade/internal/domain/task"
	"github.com/tascade-run/tascade/internal/eventlog"
	"github.com/tascade-run/tascade/internal/scheduler"
	"github.com/tascade-run/tascade/internal/store"
	"github.com/tascade-run/tascade/pkg/tascadeerr"
)

// Engine implements C5's operations: change-set lifecycle, impact preview,
// atomic apply, and material-change invalidation.
type Engine struct {
	Store     store.Store
	DAG       *dagengine.Engine
	Scheduler *scheduler.Engine
	Hub       *eventlog.Hub
}

// New wires a replan.Engine.
func New(s store.Store, dag *dagengine.Engine, sched *scheduler.Engine, hub *eventlog.Hub) *Engine {
	return &Engine{Store: s, DAG: dag, Scheduler: sched, Hub: hub}
}

func (e *Engine) emit(ctx context.Context, projectID, entityType, entityID, eventType string, payload map[string]any, correlationID string) error {
	ev, err := e.Store.Append(ctx, projectID, entityType, entityID, eventType, payload, correlationID)
	if err != nil {
		return err
	}
	if e.Hub != nil {
		e.Hub.Publish(ev)
	}
	return nil
}

// SubmitChangeSet creates a draft change set pinned to the project's current
// plan version as its base.
func (e *Engine) SubmitChangeSet(ctx context.Context, projectID string, ops []changeset.OperationRecord, createdBy string) (changeset.ChangeSet, error) {
	if len(ops) == 0 {
		return changeset.ChangeSet{}, tascadeerr.InvalidArgumentf("operations", "change set must carry at least one operation")
	}
	base, err := e.Store.CurrentPlanVersion(ctx, projectID)
	if err != nil {
		return changeset.ChangeSet{}, err
	}
	cs := changeset.ChangeSet{
		ProjectID:     projectID,
		BaseVersion:   base,
		TargetVersion: base + 1,
		Operations:    ops,
		Status:        changeset.StatusDraft,
		CreatedBy:     createdBy,
	}
	return e.Store.CreateChangeSet(ctx, cs)
}

// Preview validates a draft change set against the live store (without
// mutating it) and computes its impact preview, transitioning it to
// validated on success. Repeat calls on an already-validated set recompute
// and overwrite the preview, since no mutation has happened yet.
func (e *Engine) Preview(ctx context.Context, changeSetID string) (changeset.ChangeSet, error) {
	cs, err := e.Store.GetChangeSet(ctx, changeSetID)
	if err != nil {
		return changeset.ChangeSet{}, err
	}
	if cs.Status == changeset.StatusApplied || cs.Status == changeset.StatusRejected {
		return changeset.ChangeSet{}, tascadeerr.PreconditionFailedErr("change set is no longer previewable")
	}

	ops := make([]Operation, 0, len(cs.Operations))
	for _, r := range cs.Operations {
		op, err := Decode(r)
		if err != nil {
			return changeset.ChangeSet{}, err
		}
		if err := op.Validate(ctx, e.Store, cs.ProjectID); err != nil {
			return changeset.ChangeSet{}, err
		}
		ops = append(ops, op)
	}

	preview, err := e.computeImpactPreview(ctx, cs.ProjectID, ops)
	if err != nil {
		return changeset.ChangeSet{}, err
	}
	cs.ImpactPreview = preview
	cs.Status = changeset.StatusValidated
	return e.Store.UpdateChangeSet(ctx, cs)
}

// computeImpactPreview classifies each affected task's material status and
// tallies the preview fields from spec.md section 4.5, without mutating
// anything.
func (e *Engine) computeImpactPreview(ctx context.Context, projectID string, ops []Operation) (changeset.ImpactPreview, error) {
	var preview changeset.ImpactPreview
	seen := map[string]bool{}
	for _, op := range ops {
		for _, taskID := range op.AffectedTaskIDs() {
			if seen[taskID] {
				continue
			}
			seen[taskID] = true
			t, err := e.Store.GetTask(ctx, taskID)
			if err != nil {
				continue
			}
			if t.State == task.Claimed || t.State == task.Reserved {
				preview.ActiveTaskConflicts = append(preview.ActiveTaskConflicts, taskID)
			}
			switch op.Kind() {
			case changeset.OpRemoveTask, changeset.OpDeprecate:
				preview.NewlyBlockedTaskIDs = append(preview.NewlyBlockedTaskIDs, taskID)
			case changeset.OpAddEdge:
				preview.NewlyBlockedTaskIDs = append(preview.NewlyBlockedTaskIDs, taskID)
			case changeset.OpRemoveEdge:
				preview.NewlyUnblockedTaskIDs = append(preview.NewlyUnblockedTaskIDs, taskID)
			}
			if t.TaskClass == task.ClassReviewGate || t.TaskClass == task.ClassMergeGate {
				preview.GateImplications = append(preview.GateImplications, "checkpoint task "+t.ShortID+" is affected by this change set")
			}
		}
	}
	preview.ReadyQueueDelta = len(preview.NewlyUnblockedTaskIDs) - len(preview.NewlyBlockedTaskIDs)
	return preview, nil
}

// Apply commits a validated change set atomically: it locks the store for
// the whole operation, verifies the plan-version lock, applies every
// operation, bumps the project plan version, records the plan_version row,
// emits one event per operation plus a summary event, and releases any
// Claimed/Reserved task whose change was material.
func (e *Engine) Apply(ctx context.Context, changeSetID string) (changeset.ChangeSet, error) {
	var result changeset.ChangeSet
	err := e.Store.WithLock(ctx, func(ctx context.Context) error {
		cs, err := e.Store.GetChangeSet(ctx, changeSetID)
		if err != nil {
			return err
		}
		if cs.Status != changeset.StatusValidated && cs.Status != changeset.StatusDraft {
			return tascadeerr.PreconditionFailedErr("change set must be draft or validated to apply")
		}
		previewPending := cs.Status == changeset.StatusDraft

		current, err := e.Store.CurrentPlanVersion(ctx, cs.ProjectID)
		if err != nil {
			return err
		}
		if cs.BaseVersion != current {
			return tascadeerr.PlanVersionConflictErr(cs.BaseVersion, current)
		}
		target := current + 1

		ops := make([]Operation, 0, len(cs.Operations))
		for _, r := range cs.Operations {
			op, err := Decode(r)
			if err != nil {
				return err
			}
			if err := op.Validate(ctx, e.Store, cs.ProjectID); err != nil {
				return err
			}
			ops = append(ops, op)
		}

		materialTasks := map[string]bool{}
		for i, op := range ops {
			if err := op.Apply(ctx, e.DAG, e.Store, cs.ProjectID, target); err != nil {
				return err
			}
			payload := map[string]any{"kind": string(op.Kind())}
			if r := cs.Operations[i]; r.Kind == changeset.OpPostpone && r.Reason != "" {
				payload["reason"] = r.Reason
			}
			if err := e.emit(ctx, cs.ProjectID, "changeset", cs.ID, "changeset.operation_applied", payload, ""); err != nil {
				return err
			}
			// A task added by this change set has no incoming edges yet and
			// must leave Backlog immediately, same as an out-of-band CreateTask.
			if at, ok := op.(*addTask); ok && e.Scheduler != nil {
				if err := e.Scheduler.RecomputeReadiness(ctx, at.createdID); err != nil {
					return err
				}
			}
			if isMaterial(op.Kind()) {
				for _, taskID := range op.AffectedTaskIDs() {
					materialTasks[taskID] = true
				}
			}
		}

		if _, err := e.Store.RecordPlanVersion(ctx, planversion.PlanVersion{
			ProjectID:     cs.ProjectID,
			VersionNumber: target,
			ChangeSetID:   cs.ID,
		}); err != nil {
			return err
		}

		for taskID := range materialTasks {
			if e.Scheduler != nil {
				if err := e.Scheduler.InvalidateForReplan(ctx, taskID); err != nil {
					return err
				}
				// The task itself may have gained or lost a satisfied incoming
				// edge (add_edge/remove_edge target it directly), so its own
				// readiness needs re-evaluating, not just its dependents'.
				if err := e.Scheduler.RecomputeReadiness(ctx, taskID); err != nil {
					return err
				}
			}
			if err := e.recomputeDependents(ctx, taskID); err != nil {
				return err
			}
		}

		cs.Status = changeset.StatusApplied
		if previewPending {
			preview, err := e.computeImpactPreview(ctx, cs.ProjectID, ops)
			if err != nil {
				return err
			}
			cs.ImpactPreview = preview
		}
		result, err = e.Store.UpdateChangeSet(ctx, cs)
		if err != nil {
			return err
		}

		return e.emit(ctx, cs.ProjectID, "changeset", cs.ID, "changeset.applied", map[string]any{
			"change_set_id": cs.ID, "target_version": target, "material_task_count": len(materialTasks),
		}, "")
	})
	if err != nil {
		return changeset.ChangeSet{}, err
	}
	return result, nil
}

// recomputeDependents re-evaluates readiness for every task that directly
// depends on taskID, since an edge/state change to taskID may have changed
// their unlock_on satisfaction.
func (e *Engine) recomputeDependents(ctx context.Context, taskID string) error {
	if e.Scheduler == nil {
		return nil
	}
	out, err := e.Store.ListOutgoing(ctx, taskID)
	if err != nil {
		return err
	}
	for _, ed := range out {
		if err := e.Scheduler.RecomputeReadiness(ctx, ed.ToTask); err != nil {
			return err
		}
	}
	return nil
}

// Reject marks a draft or validated change set rejected; it is never
// applied. Idempotent on an already-rejected set.
func (e *Engine) Reject(ctx context.Context, changeSetID, reason string) (changeset.ChangeSet, error) {
	cs, err := e.Store.GetChangeSet(ctx, changeSetID)
	if err != nil {
		return changeset.ChangeSet{}, err
	}
	if cs.Status == changeset.StatusApplied {
		return changeset.ChangeSet{}, tascadeerr.PreconditionFailedErr("an applied change set cannot be rejected")
	}
	if cs.Status == changeset.StatusRejected {
		return cs, nil
	}
	cs.Status = changeset.StatusRejected
	updated, err := e.Store.UpdateChangeSet(ctx, cs)
	if err != nil {
		return changeset.ChangeSet{}, err
	}
	if err := e.emit(ctx, cs.ProjectID, "changeset", cs.ID, "changeset.rejected", map[string]any{"reason": reason}, ""); err != nil {
		return changeset.ChangeSet{}, err
	}
	return updated, nil
}

// isMaterial reports whether an OperationKind's effects count as material
// per spec.md section 4.5's FR-24/25/25a rule: priority-only changes
// (reprioritize) and informational postpones are never material; everything
// that touches work_spec, readiness edges, or task metadata is.
func isMaterial(k changeset.OperationKind) bool {
	switch k {
	case changeset.OpReprioritize, changeset.OpPostpone:
		return false
	default:
		return true
	}
}

// PauseClaims / ResumeClaims implement the replan barrier mode: while
// active, new claims are refused (CLAIMS_PAUSED) but heartbeats and
// completions still proceed.
func (e *Engine) PauseClaims(ctx context.Context, projectID string) error {
	return e.Store.SetClaimsPaused(ctx, projectID, true)
}

func (e *Engine) ResumeClaims(ctx context.Context, projectID string) error {
	return e.Store.SetClaimsPaused(ctx, projectID, false)
}
