// Package integrationattempt defines append-only merge-outcome records.
package integrationattempt

import "time"

// Outcome is the disposition of a merge attempt.
type Outcome string

const (
	OutcomeQueued       Outcome = "queued"
	OutcomeSuccess      Outcome = "success"
	OutcomeConflict     Outcome = "conflict"
	OutcomeFailedChecks Outcome = "failed_checks"
)

// IntegrationAttempt is an append-only record of a merge outcome.
type IntegrationAttempt struct {
	ID        string
	TaskID    string
	Outcome   Outcome
	Details   string
	CreatedAt time.Time
}
