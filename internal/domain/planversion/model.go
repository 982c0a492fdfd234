// Package planversion defines the monotonic per-project counter bumped on
// every applied change set.
package planversion

import "time"

// PlanVersion links an applied plan version number to the change set that
// produced it.
type PlanVersion struct {
	ID            string
	ProjectID     string
	VersionNumber int64
	ChangeSetID   string
	CreatedAt     time.Time
}
