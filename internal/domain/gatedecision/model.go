// Package gatedecision defines the outcome record of a human (or forced
// admin) review decision against a gate checkpoint.
package gatedecision

import "time"

// Outcome is the disposition a reviewer records.
type Outcome string

const (
	OutcomeApproved         Outcome = "approved"
	OutcomeRejected          Outcome = "rejected"
	OutcomeApprovedWithRisk Outcome = "approved_with_risk"
)

// Decision is a recorded gate outcome, optionally forced by an admin with a
// backfill reason.
type Decision struct {
	ID             string
	CheckpointTaskID string
	RuleID         string
	ActorID        string
	Outcome        Outcome
	Reason         string
	EvidenceRefs   map[string]string
	Forced         bool
	CreatedAt      time.Time
}

// Approving reports whether this decision counts as an approving decision
// for integration-gate enforcement.
func (d Decision) Approving() bool {
	return d.Outcome == OutcomeApproved || d.Outcome == OutcomeApprovedWithRisk
}
