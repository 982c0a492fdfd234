package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/tascade-run/tascade/internal/domain/milestone"
	"github.com/tascade-run/tascade/internal/domain/phase"
	"github.com/tascade-run/tascade/internal/domain/project"
)

func (s *Store) CreateProject(ctx context.Context, p project.Project) (project.Project, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO project (id, name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.Name, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return project.Project{}, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (project.Project, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT id, name, status, created_at, updated_at FROM project WHERE id = $1
	`, id)
	var p project.Project
	if err := row.Scan(&p.ID, &p.Name, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return project.Project{}, err
	}
	return p, nil
}

func (s *Store) ListProjects(ctx context.Context) ([]project.Project, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, name, status, created_at, updated_at FROM project ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []project.Project
	for rows.Next() {
		var p project.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdateProjectStatus(ctx context.Context, id string, status project.Status) (project.Project, error) {
	result, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE project SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		return project.Project{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return project.Project{}, sql.ErrNoRows
	}
	return s.GetProject(ctx, id)
}

func (s *Store) CreatePhase(ctx context.Context, p phase.Phase) (phase.Phase, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO phase (id, project_id, short_id, name, sequence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.ProjectID, p.ShortID, p.Name, p.Sequence, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return phase.Phase{}, fmt.Errorf("insert phase: %w", err)
	}
	return p, nil
}

func (s *Store) GetPhase(ctx context.Context, id string) (phase.Phase, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT id, project_id, short_id, name, sequence, created_at, updated_at
		FROM phase WHERE id = $1
	`, id)
	var p phase.Phase
	if err := row.Scan(&p.ID, &p.ProjectID, &p.ShortID, &p.Name, &p.Sequence, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return phase.Phase{}, err
	}
	return p, nil
}

func (s *Store) ListPhasesByProject(ctx context.Context, projectID string) ([]phase.Phase, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, project_id, short_id, name, sequence, created_at, updated_at
		FROM phase WHERE project_id = $1 ORDER BY sequence
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []phase.Phase
	for rows.Next() {
		var p phase.Phase
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.ShortID, &p.Name, &p.Sequence, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) NextPhaseSequence(ctx context.Context, projectID string) (int, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence), 0) + 1 FROM phase WHERE project_id = $1
	`, projectID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) CreateMilestone(ctx context.Context, m milestone.Milestone) (milestone.Milestone, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO milestone (id, project_id, phase_id, short_id, name, sequence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.ID, m.ProjectID, m.PhaseID, m.ShortID, m.Name, m.Sequence, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return milestone.Milestone{}, fmt.Errorf("insert milestone: %w", err)
	}
	return m, nil
}

func (s *Store) GetMilestone(ctx context.Context, id string) (milestone.Milestone, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT id, project_id, phase_id, short_id, name, sequence, created_at, updated_at
		FROM milestone WHERE id = $1
	`, id)
	var m milestone.Milestone
	if err := row.Scan(&m.ID, &m.ProjectID, &m.PhaseID, &m.ShortID, &m.Name, &m.Sequence, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return milestone.Milestone{}, err
	}
	return m, nil
}

func (s *Store) ListMilestonesByPhase(ctx context.Context, phaseID string) ([]milestone.Milestone, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, project_id, phase_id, short_id, name, sequence, created_at, updated_at
		FROM milestone WHERE phase_id = $1 ORDER BY sequence
	`, phaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []milestone.Milestone
	for rows.Next() {
		var m milestone.Milestone
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.PhaseID, &m.ShortID, &m.Name, &m.Sequence, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) NextMilestoneSequence(ctx context.Context, phaseID string) (int, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence), 0) + 1 FROM milestone WHERE phase_id = $1
	`, phaseID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
