// Package lifecycle implements C3: the task state machine. Per design note
// "Cyclic state graph" (spec.md section 9), transitions are modeled as a
// table keyed by (from_state, event) rather than state-specific methods, so
// C4/C5/C6 can register guards and effects without the table hard-coding
// cross-component knowledge.
package lifecycle

import (
	"context"

	"github.com/tascade-run/tascade/internal/domain/task"
	"github.com/tascade-run/tascade/pkg/tascadeerr"
)

// Event names the trigger driving a transition attempt.
type Event string

const (
	EventBootstrapReady   Event = "bootstrap_ready"
	EventSchedulerReady    Event = "scheduler_ready"
	EventAssign            Event = "assign"
	EventClaim              Event = "claim"
	EventStart              Event = "start"
	EventSubmitImplemented  Event = "submit_implemented"
	EventRequestIntegrate   Event = "request_integrate"
	EventIntegrationSuccess Event = "integration_success"
	EventIntegrationConflict Event = "integration_conflict"
	EventRetryFromConflict  Event = "retry_from_conflict"
	EventBlock               Event = "block"
	EventUnblock             Event = "unblock"
	EventCancel              Event = "cancel"
	EventAbandon             Event = "abandon"
	EventReleaseToReady      Event = "release_to_ready"
	EventReadinessRegressed  Event = "readiness_regressed"
)

// TransitionContext carries whatever a Guard/Effect needs beyond the task
// itself. Fields are populated by the caller (internal/engine) per event.
type TransitionContext struct {
	ActorID        string
	ForceAdmin     bool
	ForceReason    string
	LeaseToken     string
	ArtifactPassed bool
	BlockReason    string
	Extra          map[string]any
}

// Guard returns a *tascadeerr.Error (nil if satisfied) after inspecting t and tc.
type Guard func(ctx context.Context, t task.Task, tc TransitionContext) error

// Effect runs after a guard passes, on a copy of the task that still carries
// the pre-transition state; it may mutate that copy through the pointer. The
// table then applies the target state and bumps Version, overriding any state
// change the effect made.
type Effect func(ctx context.Context, t *task.Task, tc TransitionContext) error

type transitionKey struct {
	from  task.State
	event Event
}

type transitionEntry struct {
	to      task.State
	guard   Guard
	effect  Effect
}

// Table is the transition table. Zero value has no transitions; use
// NewTable to build the default one.
type Table struct {
	entries map[transitionKey]transitionEntry
}

// NewTable builds the transition table with the legal transitions from
// spec.md section 4.3. Guards/effects are nil here; register them with
// RegisterGuard/RegisterEffect before running the engine — this separation
// lets C4/C5/C6 attach their own side effects without this package
// depending on them.
func NewTable() *Table {
	t := &Table{entries: make(map[transitionKey]transitionEntry)}
	add := func(from task.State, ev Event, to task.State) {
		t.entries[transitionKey{from, ev}] = transitionEntry{to: to}
	}

	add(task.Backlog, EventBootstrapReady, task.Ready)
	add(task.Backlog, EventSchedulerReady, task.Ready)
	add(task.Ready, EventAssign, task.Reserved)
	add(task.Ready, EventClaim, task.Claimed)
	add(task.Reserved, EventClaim, task.Claimed)
	add(task.Claimed, EventStart, task.InProgress)
	add(task.InProgress, EventSubmitImplemented, task.Implemented)
	add(task.Implemented, EventRequestIntegrate, task.Integrated)
	add(task.Implemented, EventIntegrationConflict, task.Conflict)
	add(task.Conflict, EventRetryFromConflict, task.Ready)
	add(task.Ready, EventBlock, task.Blocked)
	add(task.InProgress, EventBlock, task.Blocked)
	add(task.Blocked, EventUnblock, task.Ready)
	add(task.Backlog, EventCancel, task.Cancelled)
	add(task.Ready, EventCancel, task.Cancelled)
	add(task.InProgress, EventAbandon, task.Abandoned)
	add(task.Claimed, EventReleaseToReady, task.Ready)
	add(task.Reserved, EventReleaseToReady, task.Ready)
	add(task.Ready, EventReadinessRegressed, task.Backlog)

	return t
}

// RegisterGuard attaches a guard to an existing transition. Panics if the
// transition is not in the table — this is a wiring-time programmer error.
func (t *Table) RegisterGuard(from task.State, ev Event, g Guard) {
	key := transitionKey{from, ev}
	entry, ok := t.entries[key]
	if !ok {
		panic("lifecycle: RegisterGuard on undefined transition")
	}
	entry.guard = g
	t.entries[key] = entry
}

// RegisterEffect attaches an effect to an existing transition.
func (t *Table) RegisterEffect(from task.State, ev Event, e Effect) {
	key := transitionKey{from, ev}
	entry, ok := t.entries[key]
	if !ok {
		panic("lifecycle: RegisterEffect on undefined transition")
	}
	entry.effect = e
	t.entries[key] = entry
}

// Fire attempts the transition for (t.State, ev). On success it returns the
// updated task (state advanced, version bumped) ready for the caller to
// persist inside its transaction; it does not itself touch any store.
func (t *Table) Fire(ctx context.Context, current task.Task, ev Event, tc TransitionContext) (task.Task, error) {
	key := transitionKey{current.State, ev}
	entry, ok := t.entries[key]
	if !ok {
		return task.Task{}, tascadeerr.IllegalTransitionErr(string(current.State), string(ev))
	}
	if entry.guard != nil {
		if err := entry.guard(ctx, current, tc); err != nil {
			return task.Task{}, err
		}
	}
	next := current.Clone()
	if entry.effect != nil {
		if err := entry.effect(ctx, &next, tc); err != nil {
			return task.Task{}, err
		}
	}
	next.State = entry.to
	next.Version++
	return next, nil
}

// CanFire reports whether (from, ev) has a registered transition, without
// running guards/effects. Used by the scheduler and gate engine to check
// reachability before attempting a full Fire.
func (t *Table) CanFire(from task.State, ev Event) bool {
	_, ok := t.entries[transitionKey{from, ev}]
	return ok
}
