// Package apikey defines the per-project authorization principal: only the
// cryptographic hash of the key material is ever persisted.
package apikey

import "time"

// Role is a capability bundle a principal may carry.
type Role string

const (
	RolePlanner  Role = "planner"
	RoleAgent    Role = "agent"
	RoleReviewer Role = "reviewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// Status is whether a key may still authenticate.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// APIKey is a project-scoped principal. Hash is the only persisted form of
// the secret; the plaintext is returned once, at creation time, and never
// stored.
type APIKey struct {
	ID         string
	ProjectID  string
	Hash       string
	RoleScopes []Role
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasRole reports whether the key carries the given role scope.
func (k APIKey) HasRole(r Role) bool {
	for _, have := range k.RoleScopes {
		if have == r {
			return true
		}
	}
	return false
}
