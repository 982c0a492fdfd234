package memory

import (
	"context"

	"github.com/tascade-run/tascade/internal/domain/gatecandidate"
	"github.com/tascade-run/tascade/internal/domain/gatedecision"
	"github.com/tascade-run/tascade/internal/domain/gaterule"
)

func (s *Store) CreateGateRule(_ context.Context, r gaterule.Rule) (gaterule.Rule, error) {
	if r.ID == "" {
		r.ID = newID()
	}
	ts := now()
	r.CreatedAt, r.UpdatedAt = ts, ts
	s.gateRules[r.ProjectID] = append(s.gateRules[r.ProjectID], r)
	return r, nil
}

func (s *Store) ListGateRulesByProject(_ context.Context, projectID string) ([]gaterule.Rule, error) {
	out := make([]gaterule.Rule, len(s.gateRules[projectID]))
	copy(out, s.gateRules[projectID])
	return out, nil
}

func (s *Store) CreateGateDecision(_ context.Context, d gatedecision.Decision) (gatedecision.Decision, error) {
	if d.ID == "" {
		d.ID = newID()
	}
	d.CreatedAt = now()
	s.gateDecisions[d.CheckpointTaskID] = append(s.gateDecisions[d.CheckpointTaskID], d)
	return d, nil
}

func (s *Store) ListGateDecisionsByCheckpoint(_ context.Context, checkpointTaskID string) ([]gatedecision.Decision, error) {
	out := make([]gatedecision.Decision, len(s.gateDecisions[checkpointTaskID]))
	copy(out, s.gateDecisions[checkpointTaskID])
	return out, nil
}

func (s *Store) CreateGateCandidateLink(_ context.Context, l gatecandidate.Link) (gatecandidate.Link, error) {
	if l.ID == "" {
		l.ID = newID()
	}
	l.CreatedAt = now()
	s.gateLinks[l.CheckpointTaskID] = append(s.gateLinks[l.CheckpointTaskID], l)
	s.gateLinksByCandidate[l.CandidateTaskID] = append(s.gateLinksByCandidate[l.CandidateTaskID], l)
	return l, nil
}

func (s *Store) ListCandidatesByCheckpoint(_ context.Context, checkpointTaskID string) ([]gatecandidate.Link, error) {
	out := make([]gatecandidate.Link, len(s.gateLinks[checkpointTaskID]))
	copy(out, s.gateLinks[checkpointTaskID])
	return out, nil
}

func (s *Store) ListCheckpointsByCandidate(_ context.Context, candidateTaskID string) ([]gatecandidate.Link, error) {
	out := make([]gatecandidate.Link, len(s.gateLinksByCandidate[candidateTaskID]))
	copy(out, s.gateLinksByCandidate[candidateTaskID])
	return out, nil
}

func scopeKey(ruleID, scope string) string { return ruleID + "|" + scope }

func (s *Store) OpenCheckpointForScope(_ context.Context, ruleID, scope string) (string, bool, error) {
	id, ok := s.openCheckpoints[scopeKey(ruleID, scope)]
	return id, ok, nil
}

func (s *Store) RecordOpenCheckpoint(_ context.Context, ruleID, scope, checkpointTaskID string) error {
	s.openCheckpoints[scopeKey(ruleID, scope)] = checkpointTaskID
	return nil
}

func (s *Store) CloseCheckpointScope(_ context.Context, ruleID, scope string) error {
	delete(s.openCheckpoints, scopeKey(ruleID, scope))
	return nil
}
