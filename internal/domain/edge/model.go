// Package edge defines the directed dependency relationship between tasks.
package edge

import "time"

// UnlockOn is the predecessor state at which an edge stops blocking its
// successor.
type UnlockOn string

const (
	UnlockOnImplemented UnlockOn = "implemented"
	UnlockOnIntegrated  UnlockOn = "integrated"
)

// RequiredRank returns the task.FinalityRank a predecessor must reach for
// this unlock criterion to be satisfied.
func (u UnlockOn) RequiredRank() int {
	if u == UnlockOnIntegrated {
		return 2
	}
	return 1
}

// Edge is a directed, per-project dependency: From must reach the state
// implied by UnlockOn before To may become Ready.
type Edge struct {
	ID        string
	ProjectID string
	FromTask  string
	ToTask    string
	UnlockOn  UnlockOn
	CreatedAt time.Time
}
