// Package gateengine implements C6: policy-triggered checkpoint synthesis,
// integration-gate enforcement, and the checkpoint read view.
package gateengine

import (
	"context"
	"fmt"
	"time"

	"github.com/tascade-run/tascade/internal/dagengine"
	"github.com/tascade-run/tascade/internal/domain/gatecandidate"
	"github.com/tascade-run/tascade/internal/domain/gatedecision"
	"github.com/tascade-run/tascade/internal/domain/gaterule"
	"github.com/tascade-run/tascade/internal/domain/task"
	"github.com/tascade-run/tascade/internal/eventlog"
	"github.com/tascade-run/tascade/internal/store"
	"github.com/tascade-run/tascade/pkg/tascadeerr"
)

// Clock is overridable in tests.
var Clock = func() time.Time { return time.Now().UTC() }

// Engine implements C6's operations against a store.Store.
type Engine struct {
	Store store.Store
	DAG   *dagengine.Engine
	Hub   *eventlog.Hub
}

// New wires a gateengine.Engine.
func New(s store.Store, dag *dagengine.Engine, hub *eventlog.Hub) *Engine {
	return &Engine{Store: s, DAG: dag, Hub: hub}
}

func (e *Engine) emit(ctx context.Context, projectID, entityType, entityID, eventType string, payload map[string]any, correlationID string) error {
	ev, err := e.Store.Append(ctx, projectID, entityType, entityID, eventType, payload, correlationID)
	if err != nil {
		return err
	}
	if e.Hub != nil {
		e.Hub.Publish(ev)
	}
	return nil
}

// CreateRule creates a gate rule.
func (e *Engine) CreateRule(ctx context.Context, r gaterule.Rule) (gaterule.Rule, error) {
	if r.Name == "" {
		return gaterule.Rule{}, tascadeerr.InvalidArgumentf("name", "must not be empty")
	}
	r.Enabled = true
	return e.Store.CreateGateRule(ctx, r)
}

// EvaluateProject evaluates every enabled rule in projectID, synthesizing a
// checkpoint task for each scope whose condition newly fires and which does
// not already have one open. Called on every task state-change event and on
// the periodic cron tick (spec.md section 4.6).
func (e *Engine) EvaluateProject(ctx context.Context, projectID string) error {
	rules, err := e.Store.ListGateRulesByProject(ctx, projectID)
	if err != nil {
		return err
	}
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		if err := e.evaluateRule(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) evaluateRule(ctx context.Context, r gaterule.Rule) error {
	scopeKey, candidates, fired, err := e.evaluateCondition(ctx, r)
	if err != nil {
		return err
	}
	if !fired {
		return nil
	}
	if _, open, err := e.Store.OpenCheckpointForScope(ctx, r.ID, scopeKey); err != nil {
		return err
	} else if open {
		return nil
	}
	return e.synthesizeCheckpoint(ctx, r, scopeKey, candidates)
}

// evaluateCondition returns the scope key, the candidate task ids in scope,
// and whether the rule's condition currently holds.
func (e *Engine) evaluateCondition(ctx context.Context, r gaterule.Rule) (string, []task.Task, bool, error) {
	scoped, err := e.tasksInScope(ctx, r)
	if err != nil {
		return "", nil, false, err
	}
	scopeKey := ruleScopeKey(r)

	switch r.ConditionType {
	case gaterule.ConditionMilestoneCompletion:
		if len(scoped) == 0 {
			return scopeKey, nil, false, nil
		}
		for _, t := range scoped {
			if t.State != task.Implemented && t.State != task.Integrated {
				return scopeKey, nil, false, nil
			}
		}
		return scopeKey, scoped, true, nil

	case gaterule.ConditionImplementedBacklog:
		var implemented []task.Task
		for _, t := range scoped {
			if t.State == task.Implemented {
				implemented = append(implemented, t)
			}
		}
		threshold := int(r.Threshold)
		if threshold <= 0 {
			threshold = 1
		}
		if len(implemented) >= threshold {
			return scopeKey, implemented, true, nil
		}
		return scopeKey, nil, false, nil

	case gaterule.ConditionImplementedAgeThreshold:
		var aged []task.Task
		for _, t := range scoped {
			if t.State == task.Implemented && Clock().Sub(t.UpdatedAt) >= r.AgeThreshold {
				aged = append(aged, t)
			}
		}
		if len(aged) > 0 {
			return scopeKey, aged, true, nil
		}
		return scopeKey, nil, false, nil

	case gaterule.ConditionRiskThreshold:
		var risky []task.Task
		for _, t := range scoped {
			if t.TaskClass == task.ClassSecurity || t.TaskClass == task.ClassArchitecture {
				risky = append(risky, t)
			}
		}
		threshold := int(r.Threshold)
		if threshold <= 0 {
			threshold = 1
		}
		if len(risky) >= threshold {
			return scopeKey, risky, true, nil
		}
		return scopeKey, nil, false, nil

	default:
		return scopeKey, nil, false, nil
	}
}

// ruleScopeKey is the stable scope identity of a rule: a rule governs
// exactly one phase, milestone, or task class, so the key is a pure
// function of the rule's own scope fields, never of whatever checkpoint or
// candidate happens to be evaluated against it.
func ruleScopeKey(r gaterule.Rule) string {
	if r.ScopeType == gaterule.ScopeTaskClass {
		return fmt.Sprintf("%s:%s", r.ScopeType, r.TaskClassScope)
	}
	return fmt.Sprintf("%s:%s", r.ScopeType, r.ScopeID)
}

func (e *Engine) tasksInScope(ctx context.Context, r gaterule.Rule) ([]task.Task, error) {
	filter := store.TaskFilter{ProjectID: r.ProjectID}
	switch r.ScopeType {
	case gaterule.ScopePhase:
		filter.PhaseID = r.ScopeID
	case gaterule.ScopeMilestone:
		filter.MilestoneID = r.ScopeID
	case gaterule.ScopeTaskClass:
		filter.Class = r.TaskClassScope
	}
	tasks, err := e.Store.ListTasks(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := tasks[:0:0]
	for _, t := range tasks {
		if t.TaskClass == task.ClassReviewGate || t.TaskClass == task.ClassMergeGate {
			continue // checkpoint tasks are never their own rule's candidates
		}
		out = append(out, t)
	}
	return out, nil
}

// synthesizeCheckpoint creates a checkpoint task of the rule's gate class,
// links it to the candidates, and records it as the scope's open
// checkpoint.
func (e *Engine) synthesizeCheckpoint(ctx context.Context, r gaterule.Rule, scopeKey string, candidates []task.Task) error {
	if len(candidates) == 0 {
		return nil
	}
	anchor := candidates[0]
	class := r.GateTaskClass
	if class == "" {
		class = task.ClassReviewGate
	}
	checkpoint, err := e.DAG.CreateTask(ctx, dagengine.CreateTaskInput{
		ProjectID:   r.ProjectID,
		PhaseID:     anchor.PhaseID,
		MilestoneID: anchor.MilestoneID,
		Title:       fmt.Sprintf("Checkpoint: %s", r.Name),
		Description: fmt.Sprintf("Synthesized by gate rule %q", r.Name),
		TaskClass:   class,
		WorkSpec: task.WorkSpec{
			Objective: fmt.Sprintf("Review %d candidate task(s) for rule %q", len(candidates), r.Name),
		},
	})
	if err != nil {
		return err
	}

	for _, c := range candidates {
		if _, err := e.Store.CreateGateCandidateLink(ctx, gatecandidate.Link{
			CheckpointTaskID: checkpoint.ID,
			CandidateTaskID:  c.ID,
		}); err != nil {
			return err
		}
	}
	if err := e.Store.RecordOpenCheckpoint(ctx, r.ID, scopeKey, checkpoint.ID); err != nil {
		return err
	}
	return e.emit(ctx, r.ProjectID, "task", checkpoint.ID, "gate.checkpoint_synthesized", map[string]any{
		"rule_id": r.ID, "rule_name": r.Name, "candidate_count": len(candidates),
	}, "")
}

// RecordDecision records a reviewer's decision against a checkpoint task.
// Rejects self-review (actorID == the claimant of any candidate this
// decision targets is the caller's responsibility to avoid; GATE_SELF_REVIEW
// is enforced at EnforceIntegration time, against the specific task being
// integrated, per spec.md section 4.6).
func (e *Engine) RecordDecision(ctx context.Context, checkpointTaskID, ruleID, actorID string, outcome gatedecision.Outcome, reason string, evidenceRefs map[string]string, forced bool) (gatedecision.Decision, error) {
	if forced && outcome == gatedecision.OutcomeRejected {
		return gatedecision.Decision{}, tascadeerr.InvalidArgumentf("outcome", "forced decisions must be approving")
	}
	d, err := e.Store.CreateGateDecision(ctx, gatedecision.Decision{
		CheckpointTaskID: checkpointTaskID,
		RuleID:           ruleID,
		ActorID:          actorID,
		Outcome:          outcome,
		Reason:           reason,
		EvidenceRefs:     evidenceRefs,
		Forced:           forced,
	})
	if err != nil {
		return gatedecision.Decision{}, err
	}
	eventType := "gate.decision_recorded"
	if forced {
		eventType = "gate.decision_forced"
	}
	checkpoint, err := e.Store.GetTask(ctx, checkpointTaskID)
	if err != nil {
		return gatedecision.Decision{}, err
	}
	if err := e.emit(ctx, checkpoint.ProjectID, "task", checkpointTaskID, eventType, map[string]any{
		"outcome": string(outcome), "actor_id": actorID, "reason": reason,
	}, ""); err != nil {
		return gatedecision.Decision{}, err
	}
	rule, found, err := e.findRule(ctx, checkpoint.ProjectID, ruleID)
	if err != nil {
		return gatedecision.Decision{}, err
	}
	if found {
		if err := e.Store.CloseCheckpointScope(ctx, ruleID, ruleScopeKey(rule)); err != nil {
			return gatedecision.Decision{}, err
		}
	}
	return d, nil
}

// findRule looks up a rule by id among a project's rules. Rules are few per
// project, so a linear scan over ListGateRulesByProject avoids adding a
// get-by-id path to the store contract for a single caller.
func (e *Engine) findRule(ctx context.Context, projectID, ruleID string) (gaterule.Rule, bool, error) {
	rules, err := e.Store.ListGateRulesByProject(ctx, projectID)
	if err != nil {
		return gaterule.Rule{}, false, err
	}
	for _, r := range rules {
		if r.ID == ruleID {
			return r, true, nil
		}
	}
	return gaterule.Rule{}, false, nil
}

// EnforceIntegration implements the Implemented->Integrated gate check from
// spec.md section 4.6: unless forced by an admin, there must exist, within
// the applicable rule's evidence window, an approving gate_decision whose
// actor is not the task's claimant and whose evidence_refs satisfy the
// rule's required_evidence schema.
func (e *Engine) EnforceIntegration(ctx context.Context, t task.Task, isAdmin bool, forceReason string) error {
	rules, err := e.Store.ListGateRulesByProject(ctx, t.ProjectID)
	if err != nil {
		return err
	}
	applicable := applicableRules(rules, t)
	if len(applicable) == 0 {
		return nil // no gate rule governs this task's class/scope
	}

	if forceReason != "" {
		if !isAdmin {
			return tascadeerr.GateForceRequiresAdminErr()
		}
		return nil
	}

	links, err := e.Store.ListCheckpointsByCandidate(ctx, t.ID)
	if err != nil {
		return err
	}
	for _, rule := range applicable {
		satisfied := false
		for _, link := range links {
			decisions, err := e.Store.ListGateDecisionsByCheckpoint(ctx, link.CheckpointTaskID)
			if err != nil {
				return err
			}
			for _, d := range decisions {
				if !d.Approving() {
					continue
				}
				if d.ActorID == t.ClaimedBy {
					return tascadeerr.GateSelfReviewErr(d.ActorID)
				}
				if Clock().Sub(d.CreatedAt) > rule.EvidenceWindow && rule.EvidenceWindow > 0 {
					continue
				}
				if !satisfiesEvidence(d.EvidenceRefs, rule.RequiredEvidence) {
					continue
				}
				satisfied = true
			}
		}
		if !satisfied {
			return tascadeerr.GateEvidenceRequiredErr(rule.Name)
		}
	}
	return nil
}

func applicableRules(rules []gaterule.Rule, t task.Task) []gaterule.Rule {
	var out []gaterule.Rule
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		switch r.ScopeType {
		case gaterule.ScopePhase:
			if r.ScopeID == t.PhaseID {
				out = append(out, r)
			}
		case gaterule.ScopeMilestone:
			if r.ScopeID == t.MilestoneID {
				out = append(out, r)
			}
		case gaterule.ScopeTaskClass:
			if r.TaskClassScope == t.TaskClass {
				out = append(out, r)
			}
		}
	}
	return out
}

func satisfiesEvidence(refs map[string]string, required []string) bool {
	for _, key := range required {
		if _, ok := refs[key]; !ok {
			return false
		}
	}
	return true
}

// Checkpoint is the read view of an open gate, per spec.md section 4.6.
type Checkpoint struct {
	TaskID          string
	ShortID         string
	Age             time.Duration
	SLABreached     bool
	ReadyCandidates int
	BlockedCandidates int
	ScopeDescription string
}

// ListCheckpoints returns the read-only view of every open checkpoint in a
// project: age, SLA state, and a ready/blocked candidate summary.
func (e *Engine) ListCheckpoints(ctx context.Context, projectID string) ([]Checkpoint, error) {
	rules, err := e.Store.ListGateRulesByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var out []Checkpoint
	seen := map[string]bool{}
	for _, r := range rules {
		checkpoints, err := e.openCheckpointsForRule(ctx, r)
		if err != nil {
			return nil, err
		}
		for _, cp := range checkpoints {
			if seen[cp.TaskID] {
				continue
			}
			seen[cp.TaskID] = true
			out = append(out, cp)
		}
	}
	return out, nil
}

func (e *Engine) openCheckpointsForRule(ctx context.Context, r gaterule.Rule) ([]Checkpoint, error) {
	scopeKey := ruleScopeKey(r)
	checkpointID, open, err := e.Store.OpenCheckpointForScope(ctx, r.ID, scopeKey)
	if err != nil || !open {
		return nil, err
	}
	t, err := e.Store.GetTask(ctx, checkpointID)
	if err != nil {
		return nil, err
	}
	links, err := e.Store.ListCandidatesByCheckpoint(ctx, checkpointID)
	if err != nil {
		return nil, err
	}
	ready, blocked := 0, 0
	for _, l := range links {
		c, err := e.Store.GetTask(ctx, l.CandidateTaskID)
		if err != nil {
			continue
		}
		switch c.State {
		case task.Ready, task.Implemented, task.Integrated:
			ready++
		case task.Blocked, task.Conflict:
			blocked++
		}
	}
	age := Clock().Sub(t.CreatedAt)
	return []Checkpoint{{
		TaskID:            t.ID,
		ShortID:           t.ShortID,
		Age:               age,
		SLABreached:       r.EvidenceWindow > 0 && age > r.EvidenceWindow,
		ReadyCandidates:   ready,
		BlockedCandidates: blocked,
		ScopeDescription:  scopeKey,
	}}, nil
}
