// Package phase defines the project-scoped grouping entity above milestones.
package phase

import "time"

// Phase groups milestones within a project. ShortID has the form "P<n>"
// derived from insertion order within the project.
type Phase struct {
	ID        string
	ProjectID string
	ShortID   string
	Name      string
	Sequence  int
	CreatedAt time.Time
	UpdatedAt time.Time
}
