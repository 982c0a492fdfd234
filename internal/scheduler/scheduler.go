// Package scheduler implements C4: readiness computation, the ranked pull
// queue, hard reservations, and lease acquisition with fencing.
package scheduler

import (
	"context"
	"time"

	"github.com/tascade-run/tascade/internal/domain/lease"
	"github.com/tascade-run/tascade/internal/domain/reservation"
	"github.com/tascade-run/tascade/internal/domain/snapshot"
	"github.com/tascade-run/tascade/internal/domain/task"
	"github.com/tascade-run/tascade/internal/eventlog"
	"github.com/tascade-run/tascade/internal/lifecycle"
	"github.com/tascade-run/tascade/internal/store"
	"github.com/tascade-run/tascade/pkg/tascadeerr"
)

// DefaultLeaseTTL is the default lease TTL, per spec.md section 6
// configuration surface. Overridable via Engine fields.
const DefaultLeaseTTL = 10 * time.Minute

// Engine implements C4's operations against a store.Store and the shared
// lifecycle transition table.
type Engine struct {
	Store     store.Store
	Lifecycle *lifecycle.Table
	Hub       *eventlog.Hub
	LeaseTTL  time.Duration
}

// New wires a scheduler.Engine.
func New(s store.Store, lc *lifecycle.Table, hub *eventlog.Hub) *Engine {
	return &Engine{Store: s, Lifecycle: lc, Hub: hub, LeaseTTL: DefaultLeaseTTL}
}

// Clock is overridable in tests.
var Clock = func() time.Time { return time.Now().UTC() }

func eventForReadiness(toReady bool) lifecycle.Event {
	if toReady {
		return lifecycle.EventSchedulerReady
	}
	return lifecycle.EventReadinessRegressed
}

func transitionContext() lifecycle.TransitionContext { return lifecycle.TransitionContext{} }

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

// ListReady returns active, non-reserved Ready tasks in projectID whose
// capability_tags are satisfied by agentCapabilities, ranked for pull.
func (e *Engine) ListReady(ctx context.Context, projectID string, agentCapabilities []string) ([]task.Task, error) {
	candidates, err := e.Store.ListTasks(ctx, store.TaskFilter{ProjectID: projectID, States: []task.State{task.Ready}})
	if err != nil {
		return nil, err
	}
	var eligible []task.Task
	for _, t := range candidates {
		if _, reserved, _ := e.Store.GetActiveReservationByTask(ctx, t.ID); reserved {
			continue
		}
		if !t.HasCapabilities(agentCapabilities) {
			continue
		}
		eligible = append(eligible, t)
	}
	active, err := e.activeExclusivePaths(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return Rank(eligible, active, Clock()), nil
}

func (e *Engine) activeExclusivePaths(ctx context.Context, projectID string) ([][]string, error) {
	active, err := e.Store.ListTasks(ctx, store.TaskFilter{ProjectID: projectID, States: []task.State{task.Claimed, task.InProgress}})
	if err != nil {
		return nil, err
	}
	out := make([][]string, 0, len(active))
	for _, t := range active {
		if len(t.ExclusivePaths) > 0 {
			out = append(out, t.ExclusivePaths)
		}
	}
	return out, nil
}

// ClaimResult is the outcome of a successful Claim.
type ClaimResult struct {
	Task     task.Task
	Lease    lease.Lease
	Snapshot snapshot.TaskExecutionSnapshot
}

// Claim runs the pull-mode claim protocol from spec.md section 4.4: rejects
// a stale seen plan version, selects the top-ranked eligible candidate,
// atomically creates the lease (racing callers lose to the store's
// active-lease uniqueness check and fall through to the next candidate),
// transitions the task to Claimed, and captures an execution snapshot.
//
// Returns (result, true, nil) on success or (zero, false, nil) when no
// candidate is currently claimable — not an error, per the spec.md section 8
// "Parallel claim" scenario ("the other receives the next candidate or an
// empty result").
func (e *Engine) Claim(ctx context.Context, projectID, agentID string, agentCapabilities []string, seenPlanVersion *int64) (ClaimResult, bool, error) {
	paused, err := e.Store.ClaimsPaused(ctx, projectID)
	if err != nil {
		return ClaimResult{}, false, err
	}
	if paused {
		return ClaimResult{}, false, tascadeerr.ClaimsPausedErr(projectID)
	}

	current, err := e.Store.CurrentPlanVersion(ctx, projectID)
	if err != nil {
		return ClaimResult{}, false, err
	}
	if seenPlanVersion != nil && *seenPlanVersion < current {
		return ClaimResult{}, false, tascadeerr.PlanStaleErr(*seenPlanVersion, current)
	}

	candidates, err := e.claimCandidates(ctx, projectID, agentID, agentCapabilities)
	if err != nil {
		return ClaimResult{}, false, err
	}
	active, err := e.activeExclusivePaths(ctx, projectID)
	if err != nil {
		return ClaimResult{}, false, err
	}
	ranked := Rank(candidates, active, Clock())

	for _, t := range ranked {
		result, ok, err := e.tryClaimOne(ctx, t, agentID, current)
		if err != nil {
			return ClaimResult{}, false, err
		}
		if ok {
			return result, true, nil
		}
		// LEASE_CONFLICT: another caller won the race; try the next candidate.
	}
	return ClaimResult{}, false, nil
}

func (e *Engine) claimCandidates(ctx context.Context, projectID, agentID string, agentCapabilities []string) ([]task.Task, error) {
	ready, err := e.Store.ListTasks(ctx, store.TaskFilter{ProjectID: projectID, States: []task.State{task.Ready}})
	if err != nil {
		return nil, err
	}
	reserved, err := e.Store.ListTasks(ctx, store.TaskFilter{ProjectID: projectID, States: []task.State{task.Reserved}})
	if err != nil {
		return nil, err
	}
	var out []task.Task
	for _, t := range ready {
		if !t.HasCapabilities(agentCapabilities) {
			continue
		}
		if _, has, _ := e.Store.GetActiveReservationByTask(ctx, t.ID); has {
			continue // reserved for someone else (or a race just created one)
		}
		out = append(out, t)
	}
	for _, t := range reserved {
		r, has, err := e.Store.GetActiveReservationByTask(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		if has && r.AssigneeAgentID == agentID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (e *Engine) tryClaimOne(ctx context.Context, t task.Task, agentID string, currentPlanVersion int64) (ClaimResult, bool, error) {
	fencing, err := e.Store.NextFencingCounter(ctx, t.ID)
	if err != nil {
		return ClaimResult{}, false, err
	}
	l, err := e.Store.CreateLease(ctx, lease.Lease{
		TaskID:         t.ID,
		AgentID:        agentID,
		ExpiresAt:      Clock().Add(e.leaseTTL()),
		HeartbeatAt:    Clock(),
		FencingCounter: fencing,
		Status:         lease.StatusActive,
	})
	if err != nil {
		if tascadeerr.Is(err, tascadeerr.LeaseConflict) {
			return ClaimResult{}, false, nil
		}
		return ClaimResult{}, false, err
	}

	next, err := e.Lifecycle.Fire(ctx, t, lifecycle.EventClaim, lifecycle.TransitionContext{ActorID: agentID})
	if err != nil {
		return ClaimResult{}, false, err
	}
	next.ClaimedBy = agentID
	next.ReadySince = nil
	if _, err := e.Store.UpdateTask(ctx, next); err != nil {
		return ClaimResult{}, false, err
	}

	if r, has, err := e.Store.GetActiveReservationByTask(ctx, t.ID); err == nil && has {
		r.Status = reservation.StatusConsumed
		if _, err := e.Store.UpdateReservation(ctx, r); err != nil {
			return ClaimResult{}, false, err
		}
	}

	snap, err := e.Store.CreateSnapshot(ctx, snapshot.TaskExecutionSnapshot{
		TaskID:      t.ID,
		LeaseToken:  l.Token,
		WorkSpec:    next.WorkSpec.Clone(),
		PlanVersion: currentPlanVersion,
	})
	if err != nil {
		return ClaimResult{}, false, err
	}

	if err := e.emit(ctx, t.ProjectID, "task", t.ID, "task.claimed", map[string]any{
		"task_id": t.ID, "agent_id": agentID, "lease_token": l.Token, "fencing_counter": fencing,
	}, ""); err != nil {
		return ClaimResult{}, false, err
	}

	return ClaimResult{Task: next, Lease: l, Snapshot: snap}, true, nil
}

func (e *Engine) leaseTTL() time.Duration {
	if e.LeaseTTL <= 0 {
		return DefaultLeaseTTL
	}
	return e.LeaseTTL
}

// Assign creates a hard reservation directing taskID to assigneeAgentID and
// transitions the task Ready->Reserved.
func (e *Engine) Assign(ctx context.Context, taskID, assigneeAgentID string, ttlSeconds int) (task.Task, reservation.Reservation, error) {
	t, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return task.Task{}, reservation.Reservation{}, err
	}
	ttl := reservation.ClampTTL(ttlSeconds)
	r, err := e.Store.CreateReservation(ctx, reservation.Reservation{
		TaskID:          taskID,
		AssigneeAgentID: assigneeAgentID,
		Mode:            "hard",
		TTLSeconds:      ttl,
		ExpiresAt:       Clock().Add(time.Duration(ttl) * time.Second),
		Status:          reservation.StatusActive,
	})
	if err != nil {
		return task.Task{}, reservation.Reservation{}, err
	}
	next, err := e.Lifecycle.Fire(ctx, t, lifecycle.EventAssign, lifecycle.TransitionContext{ActorID: assigneeAgentID})
	if err != nil {
		return task.Task{}, reservation.Reservation{}, err
	}
	next.ReadySince = nil
	if _, err := e.Store.UpdateTask(ctx, next); err != nil {
		return task.Task{}, reservation.Reservation{}, err
	}
	if err := e.emit(ctx, t.ProjectID, "task", t.ID, "task.assigned", map[string]any{
		"task_id": t.ID, "assignee_agent_id": assigneeAgentID, "ttl_seconds": ttl,
	}, ""); err != nil {
		return task.Task{}, reservation.Reservation{}, err
	}
	return next, r, nil
}

// ReleaseReservation releases the active reservation on taskID (explicit
// release) and returns the task to Ready if it was Reserved.
func (e *Engine) ReleaseReservation(ctx context.Context, taskID string) error {
	r, has, err := e.Store.GetActiveReservationByTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !has {
		return nil
	}
	r.Status = reservation.StatusReleased
	if _, err := e.Store.UpdateReservation(ctx, r); err != nil {
		return err
	}
	return e.returnToReadyIfNeeded(ctx, taskID, task.Reserved, "reservation.released")
}

func (e *Engine) returnToReadyIfNeeded(ctx context.Context, taskID string, fromExpected task.State, eventType string) error {
	t, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.State != fromExpected {
		return nil
	}
	next, err := e.Lifecycle.Fire(ctx, t, lifecycle.EventReleaseToReady, lifecycle.TransitionContext{})
	if err != nil {
		return err
	}
	now := Clock()
	next.ReadySince = &now
	next.ClaimedBy = ""
	if _, err := e.Store.UpdateTask(ctx, next); err != nil {
		return err
	}
	return e.emit(ctx, t.ProjectID, "task", t.ID, eventType, map[string]any{"task_id": t.ID}, "")
}

// Heartbeat extends a lease's expiry when it is active and the caller's
// seen plan version is not behind the task's latest material plan version.
func (e *Engine) Heartbeat(ctx context.Context, token string, seenPlanVersion *int64) (lease.Lease, error) {
	l, err := e.Store.GetLeaseByToken(ctx, token)
	if err != nil {
		return lease.Lease{}, err
	}
	if l.Status != lease.StatusActive {
		return lease.Lease{}, tascadeerr.LeaseExpiredErr(token)
	}
	t, err := e.Store.GetTask(ctx, l.TaskID)
	if err != nil {
		return lease.Lease{}, err
	}
	if seenPlanVersion != nil && *seenPlanVersion < t.MaterialPlanVersion {
		return lease.Lease{}, tascadeerr.PlanStaleErr(*seenPlanVersion, t.MaterialPlanVersion)
	}
	l.ExpiresAt = Clock().Add(e.leaseTTL())
	l.HeartbeatAt = Clock()
	return e.Store.UpdateLease(ctx, l)
}

// ReleaseLease explicitly releases an active lease and returns its task to
// Ready if it was Claimed.
func (e *Engine) ReleaseLease(ctx context.Context, token string) error {
	l, err := e.Store.GetLeaseByToken(ctx, token)
	if err != nil {
		return err
	}
	if l.Status != lease.StatusActive {
		return nil
	}
	l.Status = lease.StatusReleased
	if _, err := e.Store.UpdateLease(ctx, l); err != nil {
		return err
	}
	return e.returnToReadyIfNeeded(ctx, l.TaskID, task.Claimed, "lease.released")
}

// InvalidateForReplan releases taskID's active lease and/or reservation,
// bumps its fencing counter, and returns it to Ready if it is Claimed or
// Reserved. Used by the replan engine's material-change rule (spec.md
// section 4.5). Tasks in any other state, InProgress included, are left
// untouched: their lease, reservation and fencing counter stay as they are.
func (e *Engine) InvalidateForReplan(ctx context.Context, taskID string) error {
	t, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.State != task.Claimed && t.State != task.Reserved {
		return nil
	}
	if l, has, err := e.Store.GetActiveLeaseByTask(ctx, taskID); err != nil {
		return err
	} else if has {
		l.Status = lease.StatusReleased
		if _, err := e.Store.UpdateLease(ctx, l); err != nil {
			return err
		}
	}
	if r, has, err := e.Store.GetActiveReservationByTask(ctx, taskID); err != nil {
		return err
	} else if has {
		r.Status = reservation.StatusReleased
		if _, err := e.Store.UpdateReservation(ctx, r); err != nil {
			return err
		}
	}
	if _, err := e.Store.NextFencingCounter(ctx, taskID); err != nil {
		return err
	}
	t, err = e.Store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	next, err := e.Lifecycle.Fire(ctx, t, lifecycle.EventReleaseToReady, lifecycle.TransitionContext{})
	if err != nil {
		return err
	}
	now := Clock()
	next.ReadySince = &now
	next.ClaimedBy = ""
	if _, err := e.Store.UpdateTask(ctx, next); err != nil {
		return err
	}
	return e.emit(ctx, t.ProjectID, "task", t.ID, "task.replan_invalidated", map[string]any{"task_id": t.ID}, "")
}

// SweepExpiredLeases marks leases past their expiry as expired, bumps each
// task's fencing counter, and returns Claimed tasks to Ready. It never
// surfaces errors to a caller's caller; background runners log and continue.
func (e *Engine) SweepExpiredLeases(ctx context.Context, batchSize int) (int, error) {
	expired, err := e.Store.ListExpiredLeases(ctx, Clock(), batchSize)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, l := range expired {
		l.Status = lease.StatusExpired
		if _, err := e.Store.UpdateLease(ctx, l); err != nil {
			return count, err
		}
		if _, err := e.Store.NextFencingCounter(ctx, l.TaskID); err != nil {
			return count, err
		}
		if err := e.returnToReadyIfNeeded(ctx, l.TaskID, task.Claimed, "lease.expired"); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// SweepExpiredReservations marks reservations past their expiry as expired
// and returns their tasks to Ready.
func (e *Engine) SweepExpiredReservations(ctx context.Context, batchSize int) (int, error) {
	expired, err := e.Store.ListExpiredReservations(ctx, Clock(), batchSize)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, r := range expired {
		r.Status = reservation.StatusExpired
		if _, err := e.Store.UpdateReservation(ctx, r); err != nil {
			return count, err
		}
		if err := e.returnToReadyIfNeeded(ctx, r.TaskID, task.Reserved, "reservation.expired"); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
