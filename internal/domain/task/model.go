// Package task defines the unit of execution in the Tascade DAG: its
// identity, description, execution payload, and lifecycle state.
package task

import "time"

// State is a task's position in the lifecycle state machine (see
// internal/lifecycle for the transition table).
type State string

const (
	Backlog     State = "backlog"
	Ready       State = "ready"
	Reserved    State = "reserved"
	Claimed     State = "claimed"
	InProgress  State = "in_progress"
	Implemented State = "implemented"
	Integrated  State = "integrated"
	Conflict    State = "conflict"
	Blocked     State = "blocked"
	Abandoned   State = "abandoned"
	Cancelled   State = "cancelled"
)

// FinalityRank orders states for unlock_on comparisons: Integrated >
// Implemented > everything else. Edge.UnlockOn compares a predecessor's
// FinalityRank against the rank required by the unlock criterion.
func FinalityRank(s State) int {
	switch s {
	case Integrated:
		return 2
	case Implemented:
		return 1
	default:
		return 0
	}
}

// Class classifies the kind of work a task represents.
type Class string

const (
	ClassArchitecture Class = "architecture"
	ClassDBSchema     Class = "db_schema"
	ClassSecurity     Class = "security"
	ClassCrossCutting Class = "cross_cutting"
	ClassReviewGate   Class = "review_gate"
	ClassMergeGate    Class = "merge_gate"
	ClassFrontend     Class = "frontend"
	ClassBackend      Class = "backend"
	ClassCRUD         Class = "crud"
	ClassOther        Class = "other"
)

// WorkSpec is the execution payload bound to a task: the objective,
// constraints, acceptance criteria, interfaces, and path hints an agent
// needs to execute it. Extras carries any additional variant-specific
// fields (see design note "Polymorphism over payloads").
type WorkSpec struct {
	Objective          string
	Constraints        []string
	AcceptanceCriteria []string
	Interfaces         []string
	PathHints          []string
	Extras             map[string]any
}

// Clone returns a deep copy so stores never hand out aliased slices/maps.
func (w WorkSpec) Clone() WorkSpec {
	out := WorkSpec{
		Objective:          w.Objective,
		Constraints:        append([]string(nil), w.Constraints...),
		AcceptanceCriteria: append([]string(nil), w.AcceptanceCriteria...),
		Interfaces:         append([]string(nil), w.Interfaces...),
		PathHints:          append([]string(nil), w.PathHints...),
	}
	if w.Extras != nil {
		out.Extras = make(map[string]any, len(w.Extras))
		for k, v := range w.Extras {
			out.Extras[k] = v
		}
	}
	return out
}

// Task is the unit of execution: identity, description, capability/path
// metadata, execution payload, and lifecycle state.
type Task struct {
	ID         string
	ShortID    string // "P.M.T<k>" within its milestone
	ProjectID  string
	PhaseID    string // empty if task has no phase
	MilestoneID string // empty if task has no milestone

	Title           string
	Description     string
	Priority        int // lower = more urgent
	TaskClass       Class
	CapabilityTags  []string
	ExpectedTouches []string
	ExclusivePaths  []string
	SharedPaths     []string

	WorkSpec WorkSpec

	State                   State
	Version                 int64
	IntroducedInPlanVersion int64
	DeprecatedInPlanVersion *int64
	// MaterialPlanVersion is the highest plan version that materially
	// changed this task's execution semantics (work_spec, readiness edges,
	// capability/class/paths). heartbeat compares seen_plan_version
	// against this, not the project's raw current plan version, so a
	// priority-only replan never stales an in-flight agent.
	MaterialPlanVersion int64

	// ClaimedBy is the agent currently holding the active lease/reservation
	// on this task, if any. It is cleared whenever the task returns to Ready.
	ClaimedBy string

	ReadySince *time.Time // set when the task enters Ready; drives the aging factor

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of t, safe for a caller to mutate without
// affecting store-held state.
func (t Task) Clone() Task {
	out := t
	out.CapabilityTags = append([]string(nil), t.CapabilityTags...)
	out.ExpectedTouches = append([]string(nil), t.ExpectedTouches...)
	out.ExclusivePaths = append([]string(nil), t.ExclusivePaths...)
	out.SharedPaths = append([]string(nil), t.SharedPaths...)
	out.WorkSpec = t.WorkSpec.Clone()
	if t.DeprecatedInPlanVersion != nil {
		v := *t.DeprecatedInPlanVersion
		out.DeprecatedInPlanVersion = &v
	}
	if t.ReadySince != nil {
		rs := *t.ReadySince
		out.ReadySince = &rs
	}
	return out
}

// HasCapabilities reports whether t's required capability_tags are a subset
// of the agent's declared capabilities.
func (t Task) HasCapabilities(agentCapabilities []string) bool {
	have := make(map[string]struct{}, len(agentCapabilities))
	for _, c := range agentCapabilities {
		have[c] = struct{}{}
	}
	for _, need := range t.CapabilityTags {
		if _, ok := have[need]; !ok {
			return false
		}
	}
	return true
}
