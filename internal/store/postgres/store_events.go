package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tascade-run/tascade/internal/domain/apikey"
	"github.com/tascade-run/tascade/internal/domain/event"
)

func (s *Store) Append(ctx context.Context, projectID, entityType, entityID, eventType string, payload map[string]any, correlationID string) (event.Entry, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return event.Entry{}, err
	}
	row := s.conn(ctx).QueryRowContext(ctx, `
		INSERT INTO event_log (project_id, entity_type, entity_id, event_type, payload, correlation_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, projectID, entityType, entityID, eventType, payloadJSON, correlationID, time.Now().UTC())
	var e event.Entry
	if err := row.Scan(&e.ID); err != nil {
		return event.Entry{}, fmt.Errorf("append event: %w", err)
	}
	e.ProjectID = projectID
	e.EntityType = entityType
	e.EntityID = entityID
	e.EventType = eventType
	e.Payload = payload
	e.CorrelationID = correlationID
	return e, nil
}

func (s *Store) ListByProject(ctx context.Context, projectID string, afterID int64, limit int) ([]event.Entry, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, project_id, entity_type, entity_id, event_type, payload, correlation_id, created_at
		FROM event_log WHERE project_id = $1 AND id > $2 ORDER BY id LIMIT $3
	`, projectID, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Store) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]event.Entry, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, project_id, entity_type, entity_id, event_type, payload, correlation_id, created_at
		FROM event_log WHERE entity_type = $1 AND entity_id = $2 ORDER BY id LIMIT $3
	`, entityType, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]event.Entry, error) {
	var out []event.Entry
	for rows.Next() {
		var e event.Entry
		var payload []byte
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.EntityType, &e.EntityID, &e.EventType, &payload, &e.CorrelationID, &e.CreatedAt); err != nil {
			return nil, err
		}
		_ = jsonUnmarshal(payload, &e.Payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CreateAPIKey(ctx context.Context, k apikey.APIKey) (apikey.APIKey, error) {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	roles, err := json.Marshal(k.RoleScopes)
	if err != nil {
		return apikey.APIKey{}, err
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO api_key (id, project_id, hash, role_scopes, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, k.ID, k.ProjectID, k.Hash, roles, k.Status, k.CreatedAt, k.UpdatedAt)
	if err != nil {
		return apikey.APIKey{}, fmt.Errorf("insert api key: %w", err)
	}
	return k, nil
}

func scanAPIKey(row interface{ Scan(...any) error }) (apikey.APIKey, error) {
	var k apikey.APIKey
	var roles []byte
	err := row.Scan(&k.ID, &k.ProjectID, &k.Hash, &roles, &k.Status, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return apikey.APIKey{}, err
	}
	_ = jsonUnmarshal(roles, &k.RoleScopes)
	return k, nil
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (apikey.APIKey, bool, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT id, project_id, hash, role_scopes, status, created_at, updated_at
		FROM api_key WHERE hash = $1
	`, hash)
	k, err := scanAPIKey(row)
	if err == sql.ErrNoRows {
		return apikey.APIKey{}, false, nil
	}
	if err != nil {
		return apikey.APIKey{}, false, err
	}
	return k, true, nil
}

func (s *Store) RevokeAPIKey(ctx context.Context, id string) (apikey.APIKey, error) {
	result, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE api_key SET status = $2, updated_at = now() WHERE id = $1
	`, id, apikey.StatusRevoked)
	if err != nil {
		return apikey.APIKey{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apikey.APIKey{}, sql.ErrNoRows
	}
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT id, project_id, hash, role_scopes, status, created_at, updated_at
		FROM api_key WHERE id = $1
	`, id)
	return scanAPIKey(row)
}

func (s *Store) ListAPIKeysByProject(ctx context.Context, projectID string) ([]apikey.APIKey, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, project_id, hash, role_scopes, status, created_at, updated_at
		FROM api_key WHERE project_id = $1
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []apikey.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) GetIdempotentOutcome(ctx context.Context, projectID, correlationID string) ([]byte, bool, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT outcome FROM idempotency_outcome WHERE project_id = $1 AND correlation_id = $2
	`, projectID, correlationID)
	var outcome []byte
	if err := row.Scan(&outcome); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return outcome, true, nil
}

func (s *Store) PutIdempotentOutcome(ctx context.Context, projectID, correlationID string, outcome []byte) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO idempotency_outcome (project_id, correlation_id, outcome)
		VALUES ($1,$2,$3)
		ON CONFLICT (project_id, correlation_id) DO NOTHING
	`, projectID, correlationID, outcome)
	return err
}

func (s *Store) SetClaimsPaused(ctx context.Context, projectID string, paused bool) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO claims_paused (project_id, paused) VALUES ($1, $2)
		ON CONFLICT (project_id) DO UPDATE SET paused = $2
	`, projectID, paused)
	return err
}

func (s *Store) ClaimsPaused(ctx context.Context, projectID string) (bool, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT paused FROM claims_paused WHERE project_id = $1
	`, projectID)
	var paused bool
	if err := row.Scan(&paused); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return paused, nil
}

// GetContextCache, PutContextCache, InvalidateContextCache, and
// GCContextCache intentionally swallow errors: the cache is a best-effort
// accelerator for internal/dagengine's bounded context computation, never a
// correctness dependency (a miss just recomputes).

func (s *Store) GetContextCache(ctx context.Context, key string) (any, time.Time, bool) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT value, computed_at FROM context_cache WHERE cache_key = $1
	`, key)
	var raw []byte
	var computedAt time.Time
	if err := row.Scan(&raw, &computedAt); err != nil {
		return nil, time.Time{}, false
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, time.Time{}, false
	}
	return value, computedAt, true
}

func (s *Store) PutContextCache(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	_, _ = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO context_cache (cache_key, value, computed_at) VALUES ($1, $2, $3)
		ON CONFLICT (cache_key) DO UPDATE SET value = $2, computed_at = $3
	`, key, raw, time.Now().UTC())
}

func (s *Store) InvalidateContextCache(ctx context.Context, projectID string) {
	_, _ = s.conn(ctx).ExecContext(ctx, `
		DELETE FROM context_cache WHERE cache_key LIKE $1
	`, projectID+"|%")
}

func (s *Store) GCContextCache(ctx context.Context, maxAge time.Duration) int {
	result, err := s.conn(ctx).ExecContext(ctx, `
		DELETE FROM context_cache WHERE computed_at < $1
	`, time.Now().UTC().Add(-maxAge))
	if err != nil {
		return 0
	}
	n, _ := result.RowsAffected()
	return int(n)
}
