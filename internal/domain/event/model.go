// Package event defines the append-only event-log entry every mutating core
// operation emits inside its committing transaction.
package event

import "time"

// Entry is one append-only event-log row. ID is drawn from a monotonic
// counter and reflects commit order; storage rejects any update or delete.
type Entry struct {
	ID            int64
	ProjectID     string
	EntityType    string
	EntityID      string
	EventType     string
	Payload       map[string]any
	CorrelationID string
	CreatedAt     time.Time
}
