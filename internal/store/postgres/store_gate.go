package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/tascade-run/tascade/internal/domain/gatecandidate"
	"github.com/tascade-run/tascade/internal/domain/gatedecision"
	"github.com/tascade-run/tascade/internal/domain/gaterule"
)

func (s *Store) CreateGateRule(ctx context.Context, r gaterule.Rule) (gaterule.Rule, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	evidence, err := json.Marshal(r.RequiredEvidence)
	if err != nil {
		return gaterule.Rule{}, err
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO gate_rule (id, project_id, name, scope_type, scope_id, task_class_scope,
			condition_type, threshold, age_threshold_secs, gate_task_class,
			evidence_window_secs, required_evidence, enabled, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, r.ID, r.ProjectID, r.Name, r.ScopeType, r.ScopeID, r.TaskClassScope, r.ConditionType,
		r.Threshold, int64(r.AgeThreshold.Seconds()), r.GateTaskClass, int64(r.EvidenceWindow.Seconds()),
		evidence, r.Enabled, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return gaterule.Rule{}, fmt.Errorf("insert gate rule: %w", err)
	}
	return r, nil
}

func (s *Store) ListGateRulesByProject(ctx context.Context, projectID string) ([]gaterule.Rule, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, project_id, name, scope_type, scope_id, task_class_scope, condition_type,
			threshold, age_threshold_secs, gate_task_class, evidence_window_secs,
			required_evidence, enabled, created_at, updated_at
		FROM gate_rule WHERE project_id = $1
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []gaterule.Rule
	for rows.Next() {
		var r gaterule.Rule
		var evidence []byte
		var ageSecs, windowSecs int64
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Name, &r.ScopeType, &r.ScopeID, &r.TaskClassScope,
			&r.ConditionType, &r.Threshold, &ageSecs, &r.GateTaskClass, &windowSecs, &evidence,
			&r.Enabled, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.AgeThreshold = secondsToDuration(ageSecs)
		r.EvidenceWindow = secondsToDuration(windowSecs)
		_ = jsonUnmarshal(evidence, &r.RequiredEvidence)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CreateGateDecision(ctx context.Context, d gatedecision.Decision) (gatedecision.Decision, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	evidence, err := json.Marshal(d.EvidenceRefs)
	if err != nil {
		return gatedecision.Decision{}, err
	}
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO gate_decision (id, checkpoint_task_id, rule_id, actor_id, outcome, reason,
			evidence_refs, forced, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, d.ID, d.CheckpointTaskID, d.RuleID, d.ActorID, d.Outcome, d.Reason, evidence, d.Forced, d.CreatedAt)
	if err != nil {
		return gatedecision.Decision{}, fmt.Errorf("insert gate decision: %w", err)
	}
	return d, nil
}

func (s *Store) ListGateDecisionsByCheckpoint(ctx context.Context, checkpointTaskID string) ([]gatedecision.Decision, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, checkpoint_task_id, rule_id, actor_id, outcome, reason, evidence_refs, forced, created_at
		FROM gate_decision WHERE checkpoint_task_id = $1 ORDER BY created_at
	`, checkpointTaskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []gatedecision.Decision
	for rows.Next() {
		var d gatedecision.Decision
		var evidence []byte
		if err := rows.Scan(&d.ID, &d.CheckpointTaskID, &d.RuleID, &d.ActorID, &d.Outcome, &d.Reason,
			&evidence, &d.Forced, &d.CreatedAt); err != nil {
			return nil, err
		}
		_ = jsonUnmarshal(evidence, &d.EvidenceRefs)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) CreateGateCandidateLink(ctx context.Context, l gatecandidate.Link) (gatecandidate.Link, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO gate_candidate_link (id, checkpoint_task_id, candidate_task_id, created_at)
		VALUES ($1,$2,$3,$4)
	`, l.ID, l.CheckpointTaskID, l.CandidateTaskID, l.CreatedAt)
	if err != nil {
		return gatecandidate.Link{}, fmt.Errorf("insert gate candidate link: %w", err)
	}
	return l, nil
}

func (s *Store) ListCandidatesByCheckpoint(ctx context.Context, checkpointTaskID string) ([]gatecandidate.Link, error) {
	return s.queryGateLinks(ctx, `
		SELECT id, checkpoint_task_id, candidate_task_id, created_at
		FROM gate_candidate_link WHERE checkpoint_task_id = $1
	`, checkpointTaskID)
}

func (s *Store) ListCheckpointsByCandidate(ctx context.Context, candidateTaskID string) ([]gatecandidate.Link, error) {
	return s.queryGateLinks(ctx, `
		SELECT id, checkpoint_task_id, candidate_task_id, created_at
		FROM gate_candidate_link WHERE candidate_task_id = $1
	`, candidateTaskID)
}

func (s *Store) queryGateLinks(ctx context.Context, query, arg string) ([]gatecandidate.Link, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []gatecandidate.Link
	for rows.Next() {
		var l gatecandidate.Link
		if err := rows.Scan(&l.ID, &l.CheckpointTaskID, &l.CandidateTaskID, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) OpenCheckpointForScope(ctx context.Context, ruleID, scopeKey string) (string, bool, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT checkpoint_task_id FROM gate_open_checkpoint WHERE rule_id = $1 AND scope_key = $2
	`, ruleID, scopeKey)
	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return id, true, nil
}

func (s *Store) RecordOpenCheckpoint(ctx context.Context, ruleID, scopeKey, checkpointTaskID string) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO gate_open_checkpoint (rule_id, scope_key, checkpoint_task_id)
		VALUES ($1,$2,$3)
		ON CONFLICT (rule_id, scope_key) DO UPDATE SET checkpoint_task_id = $3
	`, ruleID, scopeKey, checkpointTaskID)
	return err
}

func (s *Store) CloseCheckpointScope(ctx context.Context, ruleID, scopeKey string) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		DELETE FROM gate_open_checkpoint WHERE rule_id = $1 AND scope_key = $2
	`, ruleID, scopeKey)
	return err
}
