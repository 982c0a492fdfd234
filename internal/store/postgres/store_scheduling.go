package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tascade-run/tascade/internal/domain/lease"
	"github.com/tascade-run/tascade/internal/domain/reservation"
	"github.com/tascade-run/tascade/internal/domain/snapshot"
	"github.com/tascade-run/tascade/pkg/tascadeerr"
)

func (s *Store) CreateLease(ctx context.Context, l lease.Lease) (lease.Lease, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	// uq_lease_active_task enforces "at most one active lease per task" at
	// the database level; a conflicting insert surfaces as a unique
	// violation, which is returned as LEASE_CONFLICT.
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO lease (id, token, task_id, agent_id, expires_at, heartbeat_at,
			fencing_counter, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, l.ID, l.Token, l.TaskID, l.AgentID, l.ExpiresAt, l.HeartbeatAt, l.FencingCounter,
		l.Status, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Constraint == "uq_lease_active_task" {
			return lease.Lease{}, tascadeerr.LeaseConflictErr(l.TaskID)
		}
		return lease.Lease{}, fmt.Errorf("insert lease: %w", err)
	}
	return l, nil
}

const leaseColumns = `id, token, task_id, agent_id, expires_at, heartbeat_at, fencing_counter, status, created_at, updated_at`

func scanLease(row interface{ Scan(...any) error }) (lease.Lease, error) {
	var l lease.Lease
	err := row.Scan(&l.ID, &l.Token, &l.TaskID, &l.AgentID, &l.ExpiresAt, &l.HeartbeatAt,
		&l.FencingCounter, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func (s *Store) GetLeaseByToken(ctx context.Context, token string) (lease.Lease, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `SELECT `+leaseColumns+` FROM lease WHERE token = $1`, token)
	return scanLease(row)
}

func (s *Store) GetActiveLeaseByTask(ctx context.Context, taskID string) (lease.Lease, bool, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT `+leaseColumns+` FROM lease WHERE task_id = $1 AND status = 'active'
	`, taskID)
	l, err := scanLease(row)
	if err == sql.ErrNoRows {
		return lease.Lease{}, false, nil
	}
	if err != nil {
		return lease.Lease{}, false, err
	}
	return l, true, nil
}

func (s *Store) UpdateLease(ctx context.Context, l lease.Lease) (lease.Lease, error) {
	result, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE lease SET expires_at = $2, heartbeat_at = $3, fencing_counter = $4,
			status = $5, updated_at = $6
		WHERE id = $1
	`, l.ID, l.ExpiresAt, l.HeartbeatAt, l.FencingCounter, l.Status, l.UpdatedAt)
	if err != nil {
		return lease.Lease{}, fmt.Errorf("update lease: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return lease.Lease{}, sql.ErrNoRows
	}
	return l, nil
}

func (s *Store) ListExpiredLeases(ctx context.Context, before time.Time, limit int) ([]lease.Lease, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT `+leaseColumns+` FROM lease WHERE status = 'active' AND expires_at < $1
		ORDER BY expires_at LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lease.Lease
	for rows.Next() {
		l, err := scanLease(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) NextFencingCounter(ctx context.Context, taskID string) (int64, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		INSERT INTO task_fencing_counter (task_id, value) VALUES ($1, 1)
		ON CONFLICT (task_id) DO UPDATE SET value = task_fencing_counter.value + 1
		RETURNING value
	`, taskID)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) CreateReservation(ctx context.Context, r reservation.Reservation) (reservation.Reservation, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO reservation (id, task_id, assignee_agent_id, mode, ttl_seconds,
			expires_at, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, r.ID, r.TaskID, r.AssigneeAgentID, r.Mode, r.TTLSeconds, r.ExpiresAt, r.Status,
		r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return reservation.Reservation{}, fmt.Errorf("insert reservation: %w", err)
	}
	return r, nil
}

const reservationColumns = `id, task_id, assignee_agent_id, mode, ttl_seconds, expires_at, status, created_at, updated_at`

func scanReservation(row interface{ Scan(...any) error }) (reservation.Reservation, error) {
	var r reservation.Reservation
	err := row.Scan(&r.ID, &r.TaskID, &r.AssigneeAgentID, &r.Mode, &r.TTLSeconds, &r.ExpiresAt,
		&r.Status, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (s *Store) GetActiveReservationByTask(ctx context.Context, taskID string) (reservation.Reservation, bool, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT `+reservationColumns+` FROM reservation WHERE task_id = $1 AND status = 'active'
	`, taskID)
	r, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return reservation.Reservation{}, false, nil
	}
	if err != nil {
		return reservation.Reservation{}, false, err
	}
	return r, true, nil
}

func (s *Store) UpdateReservation(ctx context.Context, r reservation.Reservation) (reservation.Reservation, error) {
	result, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE reservation SET expires_at = $2, status = $3, updated_at = $4 WHERE id = $1
	`, r.ID, r.ExpiresAt, r.Status, r.UpdatedAt)
	if err != nil {
		return reservation.Reservation{}, fmt.Errorf("update reservation: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return reservation.Reservation{}, sql.ErrNoRows
	}
	return r, nil
}

func (s *Store) ListExpiredReservations(ctx context.Context, before time.Time, limit int) ([]reservation.Reservation, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT `+reservationColumns+` FROM reservation WHERE status = 'active' AND expires_at < $1
		ORDER BY expires_at LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reservation.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CreateSnapshot(ctx context.Context, snap snapshot.TaskExecutionSnapshot) (snapshot.TaskExecutionSnapshot, error) {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	workSpec, err := json.Marshal(snap.WorkSpec)
	if err != nil {
		return snapshot.TaskExecutionSnapshot{}, err
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO task_execution_snapshot (id, task_id, lease_token, work_spec, plan_version, captured_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, snap.ID, snap.TaskID, snap.LeaseToken, workSpec, snap.PlanVersion, snap.CapturedAt)
	if err != nil {
		return snapshot.TaskExecutionSnapshot{}, fmt.Errorf("insert snapshot: %w", err)
	}
	return snap, nil
}

func (s *Store) LatestSnapshotByTask(ctx context.Context, taskID string) (snapshot.TaskExecutionSnapshot, bool, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT id, task_id, lease_token, work_spec, plan_version, captured_at
		FROM task_execution_snapshot WHERE task_id = $1 ORDER BY captured_at DESC LIMIT 1
	`, taskID)
	var snap snapshot.TaskExecutionSnapshot
	var workSpec []byte
	err := row.Scan(&snap.ID, &snap.TaskID, &snap.LeaseToken, &workSpec, &snap.PlanVersion, &snap.CapturedAt)
	if err == sql.ErrNoRows {
		return snapshot.TaskExecutionSnapshot{}, false, nil
	}
	if err != nil {
		return snapshot.TaskExecutionSnapshot{}, false, err
	}
	_ = json.Unmarshal(workSpec, &snap.WorkSpec)
	return snap, true, nil
}
