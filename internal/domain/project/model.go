// Package project defines the top-level isolation unit all other Tascade
// entities belong to.
package project

import "time"

// Status is the lifecycle state of a project.
type Status string

const (
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusArchived Status = "archived"
)

// Project is the root entity every phase, milestone, task, and edge belongs
// to. Deleting a project cascades to everything it owns.
type Project struct {
	ID        string
	Name      string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}
