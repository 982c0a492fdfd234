// Package store defines the persistence contracts every Tascade component
// is built against. Two implementations exist: internal/store/memory (the
// primary runtime and test double, following the teacher's
// internal/app/storage/memory.go pattern) and internal/store/postgres (the
// durable backend, following the teacher's internal/app/storage/postgres
// layout).
package store

import (
	"context"
	"time"

	"github.com/tascade-run/tascade/internal/domain/apikey"
	"github.com/tascade-run/tascade/internal/domain/artifact"
	"github.com/tascade-run/tascade/internal/domain/changeset"
	"github.com/tascade-run/tascade/internal/domain/edge"
	"github.com/tascade-run/tascade/internal/domain/event"
	"github.com/tascade-run/tascade/internal/domain/gatecandidate"
	"github.com/tascade-run/tascade/internal/domain/gatedecision"
	"github.com/tascade-run/tascade/internal/domain/gaterule"
	"github.com/tascade-run/tascade/internal/domain/integrationattempt"
	"github.com/tascade-run/tascade/internal/domain/lease"
	"github.com/tascade-run/tascade/internal/domain/milestone"
	"github.com/tascade-run/tascade/internal/domain/phase"
	"github.com/tascade-run/tascade/internal/domain/planversion"
	"github.com/tascade-run/tascade/internal/domain/project"
	"github.com/tascade-run/tascade/internal/domain/reservation"
	"github.com/tascade-run/tascade/internal/domain/snapshot"
	"github.com/tascade-run/tascade/internal/domain/task"
)

// TaskFilter narrows Task.List results. Zero-value fields are unfiltered.
type TaskFilter struct {
	ProjectID      string
	PhaseID        string
	MilestoneID    string
	Class          task.Class
	CapabilityTag  string
	TextQuery      string // matched against title/description, case-insensitive substring
	States         []task.State
	Offset, Limit  int
}

// ProjectStore persists projects.
type ProjectStore interface {
	CreateProject(ctx context.Context, p project.Project) (project.Project, error)
	GetProject(ctx context.Context, id string) (project.Project, error)
	ListProjects(ctx context.Context) ([]project.Project, error)
	UpdateProjectStatus(ctx context.Context, id string, status project.Status) (project.Project, error)
}

// PhaseStore persists phases and their short-id sequence.
type PhaseStore interface {
	CreatePhase(ctx context.Context, p phase.Phase) (phase.Phase, error)
	GetPhase(ctx context.Context, id string) (phase.Phase, error)
	ListPhasesByProject(ctx context.Context, projectID string) ([]phase.Phase, error)
	NextPhaseSequence(ctx context.Context, projectID string) (int, error)
}

// MilestoneStore persists milestones and their short-id sequence.
type MilestoneStore interface {
	CreateMilestone(ctx context.Context, m milestone.Milestone) (milestone.Milestone, error)
	GetMilestone(ctx context.Context, id string) (milestone.Milestone, error)
	ListMilestonesByPhase(ctx context.Context, phaseID string) ([]milestone.Milestone, error)
	NextMilestoneSequence(ctx context.Context, phaseID string) (int, error)
}

// TaskStore persists tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, t task.Task) (task.Task, error)
	GetTask(ctx context.Context, id string) (task.Task, error)
	GetTaskByShortID(ctx context.Context, projectID, shortID string) (task.Task, error)
	// UpdateTask persists t verbatim; callers must have bumped Version.
	UpdateTask(ctx context.Context, t task.Task) (task.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]task.Task, error)
	NextTaskSequence(ctx context.Context, milestoneID string) (int, error)
}

// EdgeStore persists dependency edges and answers cycle queries.
type EdgeStore interface {
	AddEdge(ctx context.Context, e edge.Edge) (edge.Edge, error)
	RemoveEdge(ctx context.Context, projectID, fromTaskID, toTaskID string) error
	GetEdge(ctx context.Context, projectID, fromTaskID, toTaskID string) (edge.Edge, error)
	ListEdgesByProject(ctx context.Context, projectID string) ([]edge.Edge, error)
	ListOutgoing(ctx context.Context, taskID string) ([]edge.Edge, error)
	ListIncoming(ctx context.Context, taskID string) ([]edge.Edge, error)
	// WouldCycle reports whether adding an edge from->to would close a
	// cycle, without mutating the edge set.
	WouldCycle(ctx context.Context, projectID, fromTaskID, toTaskID string) (bool, error)
}

// LeaseStore persists leases, enforcing at most one active lease per task.
type LeaseStore interface {
	CreateLease(ctx context.Context, l lease.Lease) (lease.Lease, error)
	GetLeaseByToken(ctx context.Context, token string) (lease.Lease, error)
	GetActiveLeaseByTask(ctx context.Context, taskID string) (lease.Lease, bool, error)
	UpdateLease(ctx context.Context, l lease.Lease) (lease.Lease, error)
	ListExpiredLeases(ctx context.Context, before time.Time, limit int) ([]lease.Lease, error)
	NextFencingCounter(ctx context.Context, taskID string) (int64, error)
}

// ReservationStore persists reservations, enforcing at most one active
// reservation per task.
type ReservationStore interface {
	CreateReservation(ctx context.Context, r reservation.Reservation) (reservation.Reservation, error)
	GetActiveReservationByTask(ctx context.Context, taskID string) (reservation.Reservation, bool, error)
	UpdateReservation(ctx context.Context, r reservation.Reservation) (reservation.Reservation, error)
	ListExpiredReservations(ctx context.Context, before time.Time, limit int) ([]reservation.Reservation, error)
}

// ArtifactStore persists append-only work evidence.
type ArtifactStore interface {
	AppendArtifact(ctx context.Context, a artifact.Artifact) (artifact.Artifact, error)
	ListArtifactsByTask(ctx context.Context, taskID string) ([]artifact.Artifact, error)
}

// IntegrationAttemptStore persists append-only merge outcomes.
type IntegrationAttemptStore interface {
	AppendIntegrationAttempt(ctx context.Context, a integrationattempt.IntegrationAttempt) (integrationattempt.IntegrationAttempt, error)
	ListIntegrationAttemptsByTask(ctx context.Context, taskID string) ([]integrationattempt.IntegrationAttempt, error)
}

// ChangeSetStore persists plan change sets.
type ChangeSetStore interface {
	CreateChangeSet(ctx context.Context, cs changeset.ChangeSet) (changeset.ChangeSet, error)
	GetChangeSet(ctx context.Context, id string) (changeset.ChangeSet, error)
	UpdateChangeSet(ctx context.Context, cs changeset.ChangeSet) (changeset.ChangeSet, error)
}

// PlanVersionStore persists the monotonic per-project plan version counter.
type PlanVersionStore interface {
	CurrentPlanVersion(ctx context.Context, projectID string) (int64, error)
	// RecordPlanVersion inserts the row for a just-applied version; it must
	// fail if versionNumber is not exactly current+1 (PLAN_VERSION_CONFLICT
	// is the caller's responsibility to detect before calling this, this is
	// the storage-level invariant backstop).
	RecordPlanVersion(ctx context.Context, pv planversion.PlanVersion) (planversion.PlanVersion, error)
	ListPlanVersions(ctx context.Context, projectID string) ([]planversion.PlanVersion, error)
}

// SnapshotStore persists immutable task execution snapshots.
type SnapshotStore interface {
	CreateSnapshot(ctx context.Context, s snapshot.TaskExecutionSnapshot) (snapshot.TaskExecutionSnapshot, error)
	LatestSnapshotByTask(ctx context.Context, taskID string) (snapshot.TaskExecutionSnapshot, bool, error)
}

// GateRuleStore persists gate policy definitions.
type GateRuleStore interface {
	CreateGateRule(ctx context.Context, r gaterule.Rule) (gaterule.Rule, error)
	ListGateRulesByProject(ctx context.Context, projectID string) ([]gaterule.Rule, error)
}

// GateDecisionStore persists gate decision outcomes.
type GateDecisionStore interface {
	CreateGateDecision(ctx context.Context, d gatedecision.Decision) (gatedecision.Decision, error)
	ListGateDecisionsByCheckpoint(ctx context.Context, checkpointTaskID string) ([]gatedecision.Decision, error)
}

// GateCandidateStore persists checkpoint-to-candidate links and which
// scopes currently have an open checkpoint (so the gate engine does not
// synthesize duplicates).
type GateCandidateStore interface {
	CreateGateCandidateLink(ctx context.Context, l gatecandidate.Link) (gatecandidate.Link, error)
	ListCandidatesByCheckpoint(ctx context.Context, checkpointTaskID string) ([]gatecandidate.Link, error)
	ListCheckpointsByCandidate(ctx context.Context, candidateTaskID string) ([]gatecandidate.Link, error)
	// OpenCheckpointForScope returns the checkpoint task id already open for
	// (ruleID, scopeKey), if any.
	OpenCheckpointForScope(ctx context.Context, ruleID, scopeKey string) (string, bool, error)
	RecordOpenCheckpoint(ctx context.Context, ruleID, scopeKey, checkpointTaskID string) error
	CloseCheckpointScope(ctx context.Context, ruleID, scopeKey string) error
}

// EventStore is re-declared here (not imported from eventlog) to avoid an
// import cycle; internal/eventlog.Store and this interface are structurally
// identical and a single implementation satisfies both.
type EventStore interface {
	Append(ctx context.Context, projectID, entityType, entityID, eventType string, payload map[string]any, correlationID string) (event.Entry, error)
	ListByProject(ctx context.Context, projectID string, afterID int64, limit int) ([]event.Entry, error)
	ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]event.Entry, error)
}

// APIKeyStore persists API key principals; only the hash is stored.
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, k apikey.APIKey) (apikey.APIKey, error)
	GetAPIKeyByHash(ctx context.Context, hash string) (apikey.APIKey, bool, error)
	RevokeAPIKey(ctx context.Context, id string) (apikey.APIKey, error)
	ListAPIKeysByProject(ctx context.Context, projectID string) ([]apikey.APIKey, error)
}

// IdempotencyStore records the outcome of the first attempt of a mutating
// operation keyed by (projectID, correlationID) so replays short-circuit.
type IdempotencyStore interface {
	GetIdempotentOutcome(ctx context.Context, projectID, correlationID string) ([]byte, bool, error)
	PutIdempotentOutcome(ctx context.Context, projectID, correlationID string, outcome []byte) error
}

// ClaimsPausedStore tracks per-project replan barrier mode.
type ClaimsPausedStore interface {
	SetClaimsPaused(ctx context.Context, projectID string, paused bool) error
	ClaimsPaused(ctx context.Context, projectID string) (bool, error)
}

// ContextCacheStore memoizes bounded ancestor/dependent subgraphs.
type ContextCacheStore interface {
	GetContextCache(ctx context.Context, key string) (value any, computedAt time.Time, ok bool)
	PutContextCache(ctx context.Context, key string, value any)
	InvalidateContextCache(ctx context.Context, projectID string)
	// GCContextCache drops entries older than maxAge and reports how many
	// were removed, for the background cache-GC sweep.
	GCContextCache(ctx context.Context, maxAge time.Duration) int
}

// Store aggregates every persistence contract the engine depends on. Both
// the memory and postgres backends implement it in full.
type Store interface {
	ProjectStore
	PhaseStore
	MilestoneStore
	TaskStore
	EdgeStore
	LeaseStore
	ReservationStore
	ArtifactStore
	IntegrationAttemptStore
	ChangeSetStore
	PlanVersionStore
	SnapshotStore
	GateRuleStore
	GateDecisionStore
	GateCandidateStore
	EventStore
	APIKeyStore
	IdempotencyStore
	ClaimsPausedStore
	ContextCacheStore

	// WithLock serializes an entire engine operation against the store's
	// single coordination point, giving memory-store callers the same
	// "one operation, one transaction" atomicity a Postgres BEGIN/COMMIT
	// provides. Postgres's implementation opens a *sql.Tx for the duration
	// of fn instead (see store/postgres).
	WithLock(ctx context.Context, fn func(ctx context.Context) error) error
}
