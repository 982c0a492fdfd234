package engine

import (
	"context"

	"github.com/tascade-run/tascade/internal/authz"
	"github.com/tascade-run/tascade/internal/domain/gatedecision"
	"github.com/tascade-run/tascade/internal/gateengine"
)

// ListCheckpoints returns the open-gate read view for a project (planner/reviewer/operator).
func (e *Engine) ListCheckpoints(ctx context.Context, p authz.Principal, projectID string) ([]gateengine.Checkpoint, error) {
	if err := authz.Require(p, authz.CapGateRead, projectID); err != nil {
		return nil, err
	}
	return e.Gate.ListCheckpoints(ctx, projectID)
}

// RecordGateDecisionInput carries a reviewer's decision against a checkpoint.
type RecordGateDecisionInput struct {
	ProjectID        string
	CheckpointTaskID string
	RuleID           string
	ActorID          string
	Outcome          gatedecision.Outcome
	Reason           string
	EvidenceRefs     map[string]string
	Forced           bool
}

// RecordDecision records a gate decision (reviewer, or admin in force mode).
func (e *Engine) RecordDecision(ctx context.Context, p authz.Principal, in RecordGateDecisionInput) (gatedecision.Decision, error) {
	if in.Forced {
		if !p.Admin {
			return gatedecision.Decision{}, authz.Require(p, authz.CapAPIKeyAdmin, "")
		}
	} else if err := authz.Require(p, authz.CapGateDecide, in.ProjectID); err != nil {
		return gatedecision.Decision{}, err
	}
	var out gatedecision.Decision
	err := e.Store.WithLock(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.Gate.RecordDecision(ctx, in.CheckpointTaskID, in.RuleID, in.ActorID, in.Outcome, in.Reason, in.EvidenceRefs, in.Forced)
		return err
	})
	return out, err
}
