// Package gatecandidate links a synthesized checkpoint task to the tasks it
// batches for human decision.
package gatecandidate

import "time"

// Link binds one checkpoint task to one candidate task.
type Link struct {
	ID             string
	CheckpointTaskID string
	CandidateTaskID  string
	CreatedAt      time.Time
}
