package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tascade-run/tascade/internal/domain/artifact"
	"github.com/tascade-run/tascade/internal/domain/integrationattempt"
)

func (s *Store) AppendArtifact(ctx context.Context, a artifact.Artifact) (artifact.Artifact, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	touched, err := marshalJSON(a.TouchedFiles)
	if err != nil {
		return artifact.Artifact{}, err
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO artifact (id, task_id, branch, commit_sha, check_status, touched_files, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, a.ID, a.TaskID, a.Branch, a.CommitSHA, a.CheckStatus, touched, a.CreatedAt)
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("insert artifact: %w", err)
	}
	return a, nil
}

func (s *Store) ListArtifactsByTask(ctx context.Context, taskID string) ([]artifact.Artifact, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, task_id, branch, commit_sha, check_status, touched_files, created_at
		FROM artifact WHERE task_id = $1 ORDER BY created_at
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []artifact.Artifact
	for rows.Next() {
		var a artifact.Artifact
		var touched []byte
		if err := rows.Scan(&a.ID, &a.TaskID, &a.Branch, &a.CommitSHA, &a.CheckStatus, &touched, &a.CreatedAt); err != nil {
			return nil, err
		}
		_ = jsonUnmarshal(touched, &a.TouchedFiles)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) AppendIntegrationAttempt(ctx context.Context, a integrationattempt.IntegrationAttempt) (integrationattempt.IntegrationAttempt, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO integration_attempt (id, task_id, outcome, details, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, a.ID, a.TaskID, a.Outcome, a.Details, a.CreatedAt)
	if err != nil {
		return integrationattempt.IntegrationAttempt{}, fmt.Errorf("insert integration attempt: %w", err)
	}
	return a, nil
}

func (s *Store) ListIntegrationAttemptsByTask(ctx context.Context, taskID string) ([]integrationattempt.IntegrationAttempt, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, task_id, outcome, details, created_at
		FROM integration_attempt WHERE task_id = $1 ORDER BY created_at
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []integrationattempt.IntegrationAttempt
	for rows.Next() {
		var a integrationattempt.IntegrationAttempt
		if err := rows.Scan(&a.ID, &a.TaskID, &a.Outcome, &a.Details, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
