package engine

import (
	"context"

	"github.com/tascade-run/tascade/internal/domain/lease"
	"github.com/tascade-run/tascade/internal/domain/task"
	"github.com/tascade-run/tascade/internal/lifecycle"
	"github.com/tascade-run/tascade/pkg/tascadeerr"
)

// registerLifecycleHooks attaches the guards/effects C3's table leaves open
// for C4/C5/C6 to fill in, per design note "Cyclic state graph".
func (e *Engine) registerLifecycleHooks() {
	e.Lifecycle.RegisterEffect(task.Claimed, lifecycle.EventStart, func(ctx context.Context, t *task.Task, tc lifecycle.TransitionContext) error {
		return nil // execution snapshot was already captured at claim time
	})

	e.Lifecycle.RegisterGuard(task.InProgress, lifecycle.EventSubmitImplemented, func(ctx context.Context, t task.Task, tc lifecycle.TransitionContext) error {
		if tc.ArtifactPassed {
			return nil
		}
		if tc.ForceAdmin && tc.ForceReason != "" {
			return nil
		}
		return tascadeerr.PreconditionFailedErr("submit_implemented requires a passed artifact check_status or admin force mode with a reason")
	})

	e.Lifecycle.RegisterGuard(task.Implemented, lifecycle.EventRequestIntegrate, func(ctx context.Context, t task.Task, tc lifecycle.TransitionContext) error {
		if tc.ForceAdmin {
			if tc.ForceReason == "" {
				return tascadeerr.GateForceRequiresAdminErr()
			}
			return nil
		}
		return e.Gate.EnforceIntegration(ctx, t, false, "")
	})

	e.Lifecycle.RegisterEffect(task.Implemented, lifecycle.EventRequestIntegrate, func(ctx context.Context, t *task.Task, tc lifecycle.TransitionContext) error {
		if tc.ForceAdmin && tc.ForceReason != "" {
			t.WorkSpec.Extras = withExtra(t.WorkSpec.Extras, "integration_forced_reason", tc.ForceReason)
		}
		return nil
	})

	e.Lifecycle.RegisterEffect(task.InProgress, lifecycle.EventAbandon, func(ctx context.Context, t *task.Task, tc lifecycle.TransitionContext) error {
		if l, has, err := e.Store.GetActiveLeaseByTask(ctx, t.ID); err == nil && has {
			l.Status = lease.StatusReleased
			_, _ = e.Store.UpdateLease(ctx, l)
		}
		t.ClaimedBy = ""
		return nil
	})
}

func withExtra(extras map[string]any, key string, value any) map[string]any {
	if extras == nil {
		extras = make(map[string]any)
	}
	extras[key] = value
	return extras
}
