package engine

import (
	"context"

	"github.com/tascade-run/tascade/internal/authz"
	"github.com/tascade-run/tascade/internal/domain/artifact"
	"github.com/tascade-run/tascade/internal/domain/integrationattempt"
)

// AppendArtifact records append-only work evidence against a task (agent).
func (e *Engine) AppendArtifact(ctx context.Context, p authz.Principal, a artifact.Artifact, correlationID string) (artifact.Artifact, error) {
	t, err := e.Store.GetTask(ctx, a.TaskID)
	if err != nil {
		return artifact.Artifact{}, err
	}
	if err := authz.Require(p, authz.CapTransitionAgent, t.ProjectID); err != nil {
		return artifact.Artifact{}, err
	}
	return withIdempotency(ctx, e, t.ProjectID, correlationID, func(ctx context.Context) (artifact.Artifact, error) {
		var out artifact.Artifact
		err := e.Store.WithLock(ctx, func(ctx context.Context) error {
			var err error
			out, err = e.Store.AppendArtifact(ctx, a)
			if err != nil {
				return err
			}
			return e.emit(ctx, t.ProjectID, "task", a.TaskID, "artifact.appended", map[string]any{
				"branch": a.Branch, "commit_sha": a.CommitSHA, "check_status": string(a.CheckStatus),
			}, correlationID)
		})
		return out, err
	})
}

// ListArtifacts lists a task's append-only evidence.
func (e *Engine) ListArtifacts(ctx context.Context, p authz.Principal, taskID string) ([]artifact.Artifact, error) {
	t, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := authz.Require(p, authz.CapTaskRead, t.ProjectID); err != nil {
		return nil, err
	}
	return e.Store.ListArtifactsByTask(ctx, taskID)
}

// AppendIntegrationAttempt records an append-only merge outcome (integrator).
func (e *Engine) AppendIntegrationAttempt(ctx context.Context, p authz.Principal, a integrationattempt.IntegrationAttempt, correlationID string) (integrationattempt.IntegrationAttempt, error) {
	t, err := e.Store.GetTask(ctx, a.TaskID)
	if err != nil {
		return integrationattempt.IntegrationAttempt{}, err
	}
	if err := authz.Require(p, authz.CapIntegrate, t.ProjectID); err != nil {
		return integrationattempt.IntegrationAttempt{}, err
	}
	return withIdempotency(ctx, e, t.ProjectID, correlationID, func(ctx context.Context) (integrationattempt.IntegrationAttempt, error) {
		var out integrationattempt.IntegrationAttempt
		err := e.Store.WithLock(ctx, func(ctx context.Context) error {
			var err error
			out, err = e.Store.AppendIntegrationAttempt(ctx, a)
			return err
		})
		return out, err
	})
}
