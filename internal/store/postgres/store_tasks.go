package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tascade-run/tascade/internal/domain/edge"
	"github.com/tascade-run/tascade/internal/domain/task"
	"github.com/tascade-run/tascade/internal/store"
)

func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func (s *Store) CreateTask(ctx context.Context, t task.Task) (task.Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Version == 0 {
		t.Version = 1
	}
	capTags, err := marshalJSON(t.CapabilityTags)
	if err != nil {
		return task.Task{}, err
	}
	touches, err := marshalJSON(t.ExpectedTouches)
	if err != nil {
		return task.Task{}, err
	}
	exclusive, err := marshalJSON(t.ExclusivePaths)
	if err != nil {
		return task.Task{}, err
	}
	shared, err := marshalJSON(t.SharedPaths)
	if err != nil {
		return task.Task{}, err
	}
	workSpec, err := marshalJSON(t.WorkSpec)
	if err != nil {
		return task.Task{}, err
	}

	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO task (
			id, short_id, project_id, phase_id, milestone_id, title, description,
			priority, task_class, capability_tags, expected_touches, exclusive_paths,
			shared_paths, work_spec, state, version, introduced_in_plan_version,
			deprecated_in_plan_version, material_plan_version, claimed_by,
			ready_since, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
	`, t.ID, t.ShortID, t.ProjectID, t.PhaseID, t.MilestoneID, t.Title, t.Description,
		t.Priority, t.TaskClass, capTags, touches, exclusive, shared, workSpec, t.State,
		t.Version, t.IntroducedInPlanVersion, t.DeprecatedInPlanVersion, t.MaterialPlanVersion,
		t.ClaimedBy, t.ReadySince, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return task.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

const taskColumns = `
	id, short_id, project_id, phase_id, milestone_id, title, description,
	priority, task_class, capability_tags, expected_touches, exclusive_paths,
	shared_paths, work_spec, state, version, introduced_in_plan_version,
	deprecated_in_plan_version, material_plan_version, claimed_by,
	ready_since, created_at, updated_at
`

func scanTask(row interface{ Scan(...any) error }) (task.Task, error) {
	var t task.Task
	var capTags, touches, exclusive, shared, workSpec []byte
	err := row.Scan(&t.ID, &t.ShortID, &t.ProjectID, &t.PhaseID, &t.MilestoneID, &t.Title,
		&t.Description, &t.Priority, &t.TaskClass, &capTags, &touches, &exclusive, &shared,
		&workSpec, &t.State, &t.Version, &t.IntroducedInPlanVersion, &t.DeprecatedInPlanVersion,
		&t.MaterialPlanVersion, &t.ClaimedBy, &t.ReadySince, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return task.Task{}, err
	}
	_ = json.Unmarshal(capTags, &t.CapabilityTags)
	_ = json.Unmarshal(touches, &t.ExpectedTouches)
	_ = json.Unmarshal(exclusive, &t.ExclusivePaths)
	_ = json.Unmarshal(shared, &t.SharedPaths)
	_ = json.Unmarshal(workSpec, &t.WorkSpec)
	return t, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (task.Task, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM task WHERE id = $1`, id)
	return scanTask(row)
}

func (s *Store) GetTaskByShortID(ctx context.Context, projectID, shortID string) (task.Task, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM task WHERE project_id = $1 AND short_id = $2
	`, projectID, shortID)
	return scanTask(row)
}

func (s *Store) UpdateTask(ctx context.Context, t task.Task) (task.Task, error) {
	capTags, err := marshalJSON(t.CapabilityTags)
	if err != nil {
		return task.Task{}, err
	}
	touches, err := marshalJSON(t.ExpectedTouches)
	if err != nil {
		return task.Task{}, err
	}
	exclusive, err := marshalJSON(t.ExclusivePaths)
	if err != nil {
		return task.Task{}, err
	}
	shared, err := marshalJSON(t.SharedPaths)
	if err != nil {
		return task.Task{}, err
	}
	workSpec, err := marshalJSON(t.WorkSpec)
	if err != nil {
		return task.Task{}, err
	}

	result, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE task SET
			title = $2, description = $3, priority = $4, task_class = $5,
			capability_tags = $6, expected_touches = $7, exclusive_paths = $8,
			shared_paths = $9, work_spec = $10, state = $11, version = $12,
			deprecated_in_plan_version = $13, material_plan_version = $14,
			claimed_by = $15, ready_since = $16, updated_at = $17
		WHERE id = $1
	`, t.ID, t.Title, t.Description, t.Priority, t.TaskClass, capTags, touches, exclusive,
		shared, workSpec, t.State, t.Version, t.DeprecatedInPlanVersion, t.MaterialPlanVersion,
		t.ClaimedBy, t.ReadySince, t.UpdatedAt)
	if err != nil {
		return task.Task{}, fmt.Errorf("update task: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return task.Task{}, sql.ErrNoRows
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO task_changelog_entry (task_id, version, state) VALUES ($1, $2, $3)
	`, t.ID, t.Version, t.State)
	if err != nil {
		return task.Task{}, fmt.Errorf("append task changelog: %w", err)
	}
	return t, nil
}

func (s *Store) ListTasks(ctx context.Context, filter store.TaskFilter) ([]task.Task, error) {
	where := []string{"1=1"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.ProjectID != "" {
		where = append(where, "project_id = "+arg(filter.ProjectID))
	}
	if filter.PhaseID != "" {
		where = append(where, "phase_id = "+arg(filter.PhaseID))
	}
	if filter.MilestoneID != "" {
		where = append(where, "milestone_id = "+arg(filter.MilestoneID))
	}
	if filter.Class != "" {
		where = append(where, "task_class = "+arg(filter.Class))
	}
	if filter.CapabilityTag != "" {
		where = append(where, "capability_tags @> "+arg(fmt.Sprintf(`["%s"]`, filter.CapabilityTag)))
	}
	if filter.TextQuery != "" {
		like := "%" + filter.TextQuery + "%"
		where = append(where, fmt.Sprintf("(title ILIKE %s OR description ILIKE %s)", arg(like), arg(like)))
	}
	if len(filter.States) > 0 {
		var in []string
		for _, st := range filter.States {
			in = append(in, arg(st))
		}
		where = append(where, "state IN ("+strings.Join(in, ",")+")")
	}

	query := `SELECT ` + taskColumns + ` FROM task WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_at`
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) NextTaskSequence(ctx context.Context, milestoneID string) (int, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(MAX(
			CAST(NULLIF(regexp_replace(short_id, '^.*T', ''), '') AS INTEGER)
		), 0) + 1 FROM task WHERE milestone_id = $1
	`, milestoneID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) AddEdge(ctx context.Context, e edge.Edge) (edge.Edge, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO dependency_edge (id, project_id, from_task, to_task, unlock_on, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.ProjectID, e.FromTask, e.ToTask, e.UnlockOn, e.CreatedAt)
	if err != nil {
		return edge.Edge{}, fmt.Errorf("insert edge: %w", err)
	}
	return e, nil
}

func (s *Store) RemoveEdge(ctx context.Context, projectID, fromTaskID, toTaskID string) error {
	result, err := s.conn(ctx).ExecContext(ctx, `
		DELETE FROM dependency_edge WHERE project_id = $1 AND from_task = $2 AND to_task = $3
	`, projectID, fromTaskID, toTaskID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) GetEdge(ctx context.Context, projectID, fromTaskID, toTaskID string) (edge.Edge, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT id, project_id, from_task, to_task, unlock_on, created_at
		FROM dependency_edge WHERE project_id = $1 AND from_task = $2 AND to_task = $3
	`, projectID, fromTaskID, toTaskID)
	var e edge.Edge
	if err := row.Scan(&e.ID, &e.ProjectID, &e.FromTask, &e.ToTask, &e.UnlockOn, &e.CreatedAt); err != nil {
		return edge.Edge{}, err
	}
	return e, nil
}

func (s *Store) ListEdgesByProject(ctx context.Context, projectID string) ([]edge.Edge, error) {
	return s.queryEdges(ctx, `
		SELECT id, project_id, from_task, to_task, unlock_on, created_at
		FROM dependency_edge WHERE project_id = $1
	`, projectID)
}

func (s *Store) ListOutgoing(ctx context.Context, taskID string) ([]edge.Edge, error) {
	return s.queryEdges(ctx, `
		SELECT id, project_id, from_task, to_task, unlock_on, created_at
		FROM dependency_edge WHERE from_task = $1
	`, taskID)
}

func (s *Store) ListIncoming(ctx context.Context, taskID string) ([]edge.Edge, error) {
	return s.queryEdges(ctx, `
		SELECT id, project_id, from_task, to_task, unlock_on, created_at
		FROM dependency_edge WHERE to_task = $1
	`, taskID)
}

func (s *Store) queryEdges(ctx context.Context, query string, arg string) ([]edge.Edge, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []edge.Edge
	for rows.Next() {
		var e edge.Edge
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.FromTask, &e.ToTask, &e.UnlockOn, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// WouldCycle walks forward from "to" along existing edges, reporting
// whether it can reach "from" (which would close a cycle if from->to were
// added), via a recursive CTE rather than pulling the whole graph into Go.
func (s *Store) WouldCycle(ctx context.Context, projectID, fromTaskID, toTaskID string) (bool, error) {
	if fromTaskID == toTaskID {
		return true, nil
	}
	row := s.conn(ctx).QueryRowContext(ctx, `
		WITH RECURSIVE reachable(task_id) AS (
			SELECT to_task FROM dependency_edge WHERE project_id = $1 AND from_task = $2
			UNION
			SELECT de.to_task FROM dependency_edge de
			JOIN reachable r ON de.from_task = r.task_id
			WHERE de.project_id = $1
		)
		SELECT EXISTS (SELECT 1 FROM reachable WHERE task_id = $3)
	`, projectID, toTaskID, fromTaskID)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
