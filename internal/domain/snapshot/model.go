// Package snapshot defines the immutable execution snapshot captured when a
// lease is created, binding the lease to the work_spec and plan_version in
// effect at that moment so InProgress tasks survive later replans unchanged.
package snapshot

import (
	"time"

	"github.com/tascade-run/tascade/internal/domain/task"
)

// TaskExecutionSnapshot is captured at claim/start and read by workers
// instead of the live task row, so a later replan cannot change the ground
// truth an in-flight agent is executing against.
type TaskExecutionSnapshot struct {
	ID          string
	TaskID      string
	LeaseToken  string
	WorkSpec    task.WorkSpec
	PlanVersion int64
	CapturedAt  time.Time
}
