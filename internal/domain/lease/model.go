// Package lease defines the exclusive, fencing-counter-guarded hold an agent
// takes on a task while executing it.
package lease

import "time"

// Status is the current disposition of a lease.
type Status string

const (
	StatusActive   Status = "active"
	StatusExpired  Status = "expired"
	StatusReleased Status = "released"
	StatusConsumed Status = "consumed"
)

// Lease is an exclusive, time-bounded hold on a task. Token is the opaque
// value an agent presents on subsequent operations (heartbeat, release,
// submit); FencingCounter is the authoritative anti-replay guard.
type Lease struct {
	ID             string
	Token          string
	TaskID         string
	AgentID        string
	ExpiresAt      time.Time
	HeartbeatAt    time.Time
	FencingCounter int64
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Active reports whether the lease is currently usable.
func (l Lease) Active() bool { return l.Status == StatusActive }
