// Package memory is the in-memory implementation of store.Store. It follows
// the teacher's internal/app/storage/memory.go pattern: a single mutex-guarded
// struct of maps, safe for concurrent use, serving as both the default test
// double and (per SPEC_FULL.md) the non-Postgres runtime backend.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

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

type contextCacheEntry struct {
	value      any
	computedAt time.Time
}

// Store is the in-memory store.Store implementation. The zero value is not
// usable; call New.
//
// Concurrency: individual CRUD methods below do not lock mu themselves —
// they assume the caller is inside a WithLock callback (the engine wraps
// every operation in WithLock, mirroring a Postgres BEGIN/COMMIT). Calling
// a method directly without WithLock is only safe single-threaded, which is
// how this store's own unit tests use it.
type Store struct {
	mu sync.Mutex

	projects map[string]project.Project
	phases   map[string]phase.Phase
	phaseSeq map[string]int // projectID -> next sequence

	milestones   map[string]milestone.Milestone
	milestoneSeq map[string]int // phaseID -> next sequence

	tasks     map[string]task.Task
	taskByShort map[string]string // projectID|shortID -> task id
	taskSeq   map[string]int      // milestoneID -> next sequence

	edges map[string]edge.Edge // edgeID -> edge
	// outByTask/inByTask index edge ids by task for fast traversal.
	outByTask map[string][]string
	inByTask  map[string][]string

	leases          map[string]lease.Lease // leaseID -> lease
	leaseByToken    map[string]string      // token -> leaseID
	activeLeaseTask map[string]string      // taskID -> leaseID (only while active)
	fencing         map[string]int64        // taskID -> current fencing counter

	reservations          map[string]reservation.Reservation
	activeReservationTask map[string]string // taskID -> reservationID (only while active)

	artifacts        map[string][]artifact.Artifact // taskID -> artifacts
	integrationAttempts map[string][]integrationattempt.IntegrationAttempt

	changeSets map[string]changeset.ChangeSet

	planVersionCurrent map[string]int64 // projectID -> current version
	planVersions       map[string][]planversion.PlanVersion

	snapshots map[string][]snapshot.TaskExecutionSnapshot // taskID -> history, latest last

	gateRules     map[string][]gaterule.Rule // projectID -> rules
	gateDecisions map[string][]gatedecision.Decision // checkpointTaskID -> decisions
	gateLinks     map[string][]gatecandidate.Link     // checkpointTaskID -> links
	gateLinksByCandidate map[string][]gatecandidate.Link // candidateTaskID -> links
	openCheckpoints map[string]string // ruleID|scopeKey -> checkpoint task id

	apiKeys map[string]apikey.APIKey // id -> key
	apiKeyByHash map[string]string

	events        []event.Entry
	eventsByEntity map[string][]event.Entry
	nextEventID   int64

	idempotency map[string][]byte // projectID|correlationID -> outcome

	claimsPaused map[string]bool

	contextCache map[string]contextCacheEntry
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		projects:              make(map[string]project.Project),
		phases:                make(map[string]phase.Phase),
		phaseSeq:              make(map[string]int),
		milestones:            make(map[string]milestone.Milestone),
		milestoneSeq:          make(map[string]int),
		tasks:                 make(map[string]task.Task),
		taskByShort:           make(map[string]string),
		taskSeq:               make(map[string]int),
		edges:                 make(map[string]edge.Edge),
		outByTask:             make(map[string][]string),
		inByTask:              make(map[string][]string),
		leases:                make(map[string]lease.Lease),
		leaseByToken:          make(map[string]string),
		activeLeaseTask:       make(map[string]string),
		fencing:               make(map[string]int64),
		reservations:          make(map[string]reservation.Reservation),
		activeReservationTask: make(map[string]string),
		artifacts:             make(map[string][]artifact.Artifact),
		integrationAttempts:   make(map[string][]integrationattempt.IntegrationAttempt),
		changeSets:            make(map[string]changeset.ChangeSet),
		planVersionCurrent:    make(map[string]int64),
		planVersions:          make(map[string][]planversion.PlanVersion),
		snapshots:             make(map[string][]snapshot.TaskExecutionSnapshot),
		gateRules:             make(map[string][]gaterule.Rule),
		gateDecisions:         make(map[string][]gatedecision.Decision),
		gateLinks:             make(map[string][]gatecandidate.Link),
		gateLinksByCandidate:  make(map[string][]gatecandidate.Link),
		openCheckpoints:       make(map[string]string),
		apiKeys:               make(map[string]apikey.APIKey),
		apiKeyByHash:          make(map[string]string),
		eventsByEntity:        make(map[string][]event.Entry),
		idempotency:           make(map[string][]byte),
		claimsPaused:          make(map[string]bool),
		contextCache:          make(map[string]contextCacheEntry),
	}
}

func newID() string { return uuid.NewString() }

func now() time.Time { return time.Now().UTC() }

// WithLock runs fn holding the store's single mutex for its entire
// duration, giving every engine operation the same all-or-nothing semantics
// a Postgres transaction would provide. The memory store never partially
// applies a failed fn: callers build the next state before mutating maps,
// or mutate maps that are trivially reversible (see each method).
func (s *Store) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx)
}
