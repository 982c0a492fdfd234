// Package gaterule defines policy definitions that trigger checkpoint
// synthesis when their scope and condition are satisfied.
package gaterule

import (
	"time"

	"github.com/tascade-run/tascade/internal/domain/task"
)

// ScopeType identifies what a rule's scope predicate matches against.
type ScopeType string

const (
	ScopePhase     ScopeType = "phase"
	ScopeMilestone ScopeType = "milestone"
	ScopeTaskClass ScopeType = "task_class"
)

// ConditionType is the trigger condition evaluated against a rule's scope.
type ConditionType string

const (
	ConditionMilestoneCompletion      ConditionType = "milestone_completion"
	ConditionImplementedBacklog       ConditionType = "implemented_backlog_threshold"
	ConditionRiskThreshold            ConditionType = "risk_threshold"
	ConditionImplementedAgeThreshold  ConditionType = "implemented_age_threshold"
)

// Rule describes a gate policy: where it applies, what condition fires it,
// what checkpoint class it synthesizes, and what evidence an Integrated
// transition within its scope requires.
type Rule struct {
	ID        string
	ProjectID string
	Name      string

	ScopeType      ScopeType
	ScopeID        string     // phase or milestone id, when applicable
	TaskClassScope task.Class // when ScopeType == ScopeTaskClass

	ConditionType ConditionType
	Threshold     float64       // count or fraction depending on ConditionType
	AgeThreshold  time.Duration // for ConditionImplementedAgeThreshold

	GateTaskClass    task.Class // review_gate or merge_gate
	EvidenceWindow   time.Duration
	RequiredEvidence []string // evidence_refs keys a satisfying gate_decision must carry

	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
