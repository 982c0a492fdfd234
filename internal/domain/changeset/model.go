// Package changeset defines the persisted record of a plan change set: a
// versioned, atomically-applied batch of DAG mutations.
package changeset

import "time"

// Status is the lifecycle state of a change set.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusValidated Status = "validated"
	StatusApplied   Status = "applied"
	StatusRejected  Status = "rejected"
)

// OperationKind is the closed set of mutation kinds a change set may carry.
type OperationKind string

const (
	OpAddTask      OperationKind = "add_task"
	OpRemoveTask   OperationKind = "remove_task"
	OpUpdateTask   OperationKind = "update_task"
	OpAddEdge      OperationKind = "add_edge"
	OpRemoveEdge   OperationKind = "remove_edge"
	OpReprioritize OperationKind = "reprioritize"
	OpPostpone     OperationKind = "postpone"
	OpDeprecate    OperationKind = "deprecate"
)

// OperationRecord is the serialized form of one operation within a change
// set, as persisted and replayed. Fields are a superset across all kinds;
// internal/replan.Operation implementations know which fields apply to
// their kind and how to validate/apply them.
type OperationRecord struct {
	Kind OperationKind

	// Targets an existing task (update/remove/reprioritize/postpone/deprecate).
	TaskID string

	// add_task / update_task payload.
	Title           string
	Description     string
	Priority        int
	TaskClass       string
	CapabilityTags  []string
	ExpectedTouches []string
	ExclusivePaths  []string
	SharedPaths     []string
	PhaseID         string
	MilestoneID     string
	WorkSpecObjective          string
	WorkSpecConstraints        []string
	WorkSpecAcceptanceCriteria []string
	WorkSpecInterfaces         []string
	WorkSpecPathHints          []string

	// add_edge / remove_edge payload.
	FromTaskID string
	ToTaskID   string
	UnlockOn   string

	// postpone payload: a ready-blocking reason, informational only.
	Reason string
}

// ImpactPreview summarizes the effect of applying a change set without
// committing it.
type ImpactPreview struct {
	NewlyBlockedTaskIDs   []string
	NewlyUnblockedTaskIDs []string
	ReadyQueueDelta       int
	ActiveTaskConflicts   []string // task ids in Claimed/Reserved that will be released
	GateImplications      []string // human-readable notes on affected gate scopes
}

// ChangeSet is a versioned batch of DAG mutations applied atomically.
type ChangeSet struct {
	ID               string
	ProjectID        string
	BaseVersion      int64
	TargetVersion    int64
	Operations       []OperationRecord
	Status           Status
	ImpactPreview     ImpactPreview
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
