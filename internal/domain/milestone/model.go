// Package milestone defines the grouping entity between a phase and its tasks.
package milestone

import "time"

// Milestone groups tasks within a phase. ShortID has the form "P<n>.M<m>"
// derived from hierarchy and insertion order.
type Milestone struct {
	ID        string
	ProjectID string
	PhaseID   string
	ShortID   string
	Name      string
	Sequence  int
	CreatedAt time.Time
	UpdatedAt time.Time
}
