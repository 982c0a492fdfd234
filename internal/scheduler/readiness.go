package scheduler

import (
	"context"

	"github.com/tascade-run/tascade/internal/domain/task"
)

// Satisfied reports whether every incoming edge's source state meets its
// unlock_on criterion, i.e. whether t may be Ready.
func (e *Engine) Satisfied(ctx context.Context, t task.Task) (bool, error) {
	incoming, err := e.Store.ListIncoming(ctx, t.ID)
	if err != nil {
		return false, err
	}
	for _, ed := range incoming {
		from, err := e.Store.GetTask(ctx, ed.FromTask)
		if err != nil {
			return false, err
		}
		if task.FinalityRank(from.State) < ed.UnlockOn.RequiredRank() {
			return false, nil
		}
	}
	return true, nil
}

// RecomputeReadiness re-evaluates one task's readiness and fires
// Backlog->Ready, or Ready->Backlog on regression, persisting and emitting
// an event when the state actually changes. It is idempotent: calling it
// when no change is warranted is a no-op.
func (e *Engine) RecomputeReadiness(ctx context.Context, taskID string) error {
	t, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	satisfied, err := e.Satisfied(ctx, t)
	if err != nil {
		return err
	}

	switch {
	case t.State == task.Backlog && satisfied:
		return e.fireReadiness(ctx, t, true)
	case t.State == task.Ready && !satisfied:
		return e.fireReadiness(ctx, t, false)
	default:
		return nil
	}
}

func (e *Engine) fireReadiness(ctx context.Context, t task.Task, toReady bool) error {
	ev := eventForReadiness(toReady)
	next, err := e.Lifecycle.Fire(ctx, t, ev, transitionContext())
	if err != nil {
		return err
	}
	now := Clock()
	if toReady {
		next.ReadySince = &now
	} else {
		next.ReadySince = nil
	}
	if _, err := e.Store.UpdateTask(ctx, next); err != nil {
		return err
	}
	return e.emit(ctx, t.ProjectID, "task", t.ID, readinessEventType(toReady), map[string]any{
		"task_id": t.ID, "short_id": t.ShortID,
	}, "")
}

func readinessEventType(toReady bool) string {
	if toReady {
		return "task.ready"
	}
	return "task.readiness_regressed"
}
