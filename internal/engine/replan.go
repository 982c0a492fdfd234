package engine

import (
	"context"

	"github.com/tascade-run/tascade/internal/authz"
	"github.com/tascade-run/tascade/internal/domain/changeset"
)

// SubmitChangeSet creates a draft change set (planner).
func (e *Engine) SubmitChangeSet(ctx context.Context, p authz.Principal, projectID string, ops []changeset.OperationRecord, correlationID string) (changeset.ChangeSet, error) {
	if err := authz.Require(p, authz.CapReplanWrite, projectID); err != nil {
		return changeset.ChangeSet{}, err
	}
	return withIdempotency(ctx, e, projectID, correlationID, func(ctx context.Context) (changeset.ChangeSet, error) {
		var out changeset.ChangeSet
		err := e.Store.WithLock(ctx, func(ctx context.Context) error {
			var err error
			out, err = e.Replan.SubmitChangeSet(ctx, projectID, ops, p.ID)
			return err
		})
		return out, err
	})
}

// PreviewChangeSet validates a draft/validated change set and computes its
// impact preview without committing it (planner). Resolves the change
// set's project before scope enforcement, per spec.md section 4.7.
func (e *Engine) PreviewChangeSet(ctx context.Context, p authz.Principal, changeSetID string) (changeset.ChangeSet, error) {
	cs, err := e.Store.GetChangeSet(ctx, changeSetID)
	if err != nil {
		return changeset.ChangeSet{}, err
	}
	if err := authz.Require(p, authz.CapReplanWrite, cs.ProjectID); err != nil {
		return changeset.ChangeSet{}, err
	}
	var out changeset.ChangeSet
	err = e.Store.WithLock(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.Replan.Preview(ctx, changeSetID)
		return err
	})
	return out, err
}

// ApplyChangeSet atomically applies a change set (planner/operator).
// Resolution of the change set's project must occur before scope
// enforcement for this cross-project-sensitive operation, per spec.md
// section 4.7's scenario 2 (cross-project scope).
func (e *Engine) ApplyChangeSet(ctx context.Context, p authz.Principal, changeSetID, correlationID string) (changeset.ChangeSet, error) {
	cs, err := e.Store.GetChangeSet(ctx, changeSetID)
	if err != nil {
		return changeset.ChangeSet{}, err
	}
	if err := authz.Require(p, authz.CapReplanApply, cs.ProjectID); err != nil {
		return changeset.ChangeSet{}, err
	}
	// Replan.Apply already wraps the whole operation in WithLock itself.
	return withIdempotency(ctx, e, cs.ProjectID, correlationID, func(ctx context.Context) (changeset.ChangeSet, error) {
		return e.Replan.Apply(ctx, changeSetID)
	})
}

// RejectChangeSet marks a draft/validated change set rejected (planner).
func (e *Engine) RejectChangeSet(ctx context.Context, p authz.Principal, changeSetID, reason string) (changeset.ChangeSet, error) {
	cs, err := e.Store.GetChangeSet(ctx, changeSetID)
	if err != nil {
		return changeset.ChangeSet{}, err
	}
	if err := authz.Require(p, authz.CapReplanWrite, cs.ProjectID); err != nil {
		return changeset.ChangeSet{}, err
	}
	return e.Replan.Reject(ctx, changeSetID, reason)
}

// PauseClaims / ResumeClaims toggle the replan barrier mode (planner/operator).
func (e *Engine) PauseClaims(ctx context.Context, p authz.Principal, projectID string) error {
	if err := authz.Require(p, authz.CapReplanApply, projectID); err != nil {
		return err
	}
	return e.Replan.PauseClaims(ctx, projectID)
}

func (e *Engine) ResumeClaims(ctx context.Context, p authz.Principal, projectID string) error {
	if err := authz.Require(p, authz.CapReplanApply, projectID); err != nil {
		return err
	}
	return e.Replan.ResumeClaims(ctx, projectID)
}
