package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/tascade-run/tascade/internal/domain/changeset"
	"github.com/tascade-run/tascade/internal/domain/planversion"
)

func (s *Store) CreateChangeSet(ctx context.Context, cs changeset.ChangeSet) (changeset.ChangeSet, error) {
	if cs.ID == "" {
		cs.ID = uuid.NewString()
	}
	ops, err := json.Marshal(cs.Operations)
	if err != nil {
		return changeset.ChangeSet{}, err
	}
	preview, err := json.Marshal(cs.ImpactPreview)
	if err != nil {
		return changeset.ChangeSet{}, err
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO change_set (id, project_id, base_version, target_version, operations,
			status, impact_preview, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, cs.ID, cs.ProjectID, cs.BaseVersion, cs.TargetVersion, ops, cs.Status, preview,
		cs.CreatedBy, cs.CreatedAt, cs.UpdatedAt)
	if err != nil {
		return changeset.ChangeSet{}, fmt.Errorf("insert change set: %w", err)
	}
	return cs, nil
}

func scanChangeSet(row interface{ Scan(...any) error }) (changeset.ChangeSet, error) {
	var cs changeset.ChangeSet
	var ops, preview []byte
	err := row.Scan(&cs.ID, &cs.ProjectID, &cs.BaseVersion, &cs.TargetVersion, &ops,
		&cs.Status, &preview, &cs.CreatedBy, &cs.CreatedAt, &cs.UpdatedAt)
	if err != nil {
		return changeset.ChangeSet{}, err
	}
	_ = jsonUnmarshal(ops, &cs.Operations)
	_ = jsonUnmarshal(preview, &cs.ImpactPreview)
	return cs, nil
}

func (s *Store) GetChangeSet(ctx context.Context, id string) (changeset.ChangeSet, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT id, project_id, base_version, target_version, operations, status,
			impact_preview, created_by, created_at, updated_at
		FROM change_set WHERE id = $1
	`, id)
	return scanChangeSet(row)
}

func (s *Store) UpdateChangeSet(ctx context.Context, cs changeset.ChangeSet) (changeset.ChangeSet, error) {
	ops, err := json.Marshal(cs.Operations)
	if err != nil {
		return changeset.ChangeSet{}, err
	}
	preview, err := json.Marshal(cs.ImpactPreview)
	if err != nil {
		return changeset.ChangeSet{}, err
	}
	result, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE change_set SET status = $2, impact_preview = $3, operations = $4, updated_at = $5
		WHERE id = $1
	`, cs.ID, cs.Status, preview, ops, cs.UpdatedAt)
	if err != nil {
		return changeset.ChangeSet{}, fmt.Errorf("update change set: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return changeset.ChangeSet{}, sql.ErrNoRows
	}
	return cs, nil
}

func (s *Store) CurrentPlanVersion(ctx context.Context, projectID string) (int64, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version_number), 0) FROM plan_version WHERE project_id = $1
	`, projectID)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) RecordPlanVersion(ctx context.Context, pv planversion.PlanVersion) (planversion.PlanVersion, error) {
	if pv.ID == "" {
		pv.ID = uuid.NewString()
	}
	current, err := s.CurrentPlanVersion(ctx, pv.ProjectID)
	if err != nil {
		return planversion.PlanVersion{}, err
	}
	if pv.VersionNumber != current+1 {
		return planversion.PlanVersion{}, fmt.Errorf("plan version out of order: have %d, want %d", pv.VersionNumber, current+1)
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO plan_version (id, project_id, version_number, change_set_id, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, pv.ID, pv.ProjectID, pv.VersionNumber, pv.ChangeSetID, pv.CreatedAt)
	if err != nil {
		return planversion.PlanVersion{}, fmt.Errorf("insert plan version: %w", err)
	}
	return pv, nil
}

func (s *Store) ListPlanVersions(ctx context.Context, projectID string) ([]planversion.PlanVersion, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, project_id, version_number, change_set_id, created_at
		FROM plan_version WHERE project_id = $1 ORDER BY version_number
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []planversion.PlanVersion
	for rows.Next() {
		var pv planversion.PlanVersion
		if err := rows.Scan(&pv.ID, &pv.ProjectID, &pv.VersionNumber, &pv.ChangeSetID, &pv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, pv)
	}
	return out, rows.Err()
}
