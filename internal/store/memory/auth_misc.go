package memory

import (
	"context"
	"time"

	"github.com/tascade-run/tascade/internal/domain/apikey"
	"github.com/tascade-run/tascade/internal/domain/event"
	"github.com/tascade-run/tascade/pkg/tascadeerr"
)

// --- API keys ----------------------------------------------------------------

func (s *Store) CreateAPIKey(_ context.Context, k apikey.APIKey) (apikey.APIKey, error) {
	if k.ID == "" {
		k.ID = newID()
	}
	ts := now()
	k.CreatedAt, k.UpdatedAt = ts, ts
	if k.Status == "" {
		k.Status = apikey.StatusActive
	}
	s.apiKeys[k.ID] = k
	s.apiKeyByHash[k.Hash] = k.ID
	return k, nil
}

func (s *Store) GetAPIKeyByHash(_ context.Context, hash string) (apikey.APIKey, bool, error) {
	id, ok := s.apiKeyByHash[hash]
	if !ok {
		return apikey.APIKey{}, false, nil
	}
	return s.apiKeys[id], true, nil
}

func (s *Store) RevokeAPIKey(_ context.Context, id string) (apikey.APIKey, error) {
	k, ok := s.apiKeys[id]
	if !ok {
		return apikey.APIKey{}, tascadeerr.New(tascadeerr.InvalidArgument, "api key not found", 404).WithDetails("api_key_id", id)
	}
	k.Status = apikey.StatusRevoked
	k.UpdatedAt = now()
	s.apiKeys[id] = k
	return k, nil
}

func (s *Store) ListAPIKeysByProject(_ context.Context, projectID string) ([]apikey.APIKey, error) {
	var out []apikey.APIKey
	for _, k := range s.apiKeys {
		if k.ProjectID == projectID {
			out = append(out, k)
		}
	}
	return out, nil
}

// --- Events --------------------------------------------------------------------

func (s *Store) Append(_ context.Context, projectID, entityType, entityID, eventType string, payload map[string]any, correlationID string) (event.Entry, error) {
	s.nextEventID++
	e := event.Entry{
		ID:            s.nextEventID,
		ProjectID:     projectID,
		EntityType:    entityType,
		EntityID:      entityID,
		EventType:     eventType,
		Payload:       payload,
		CorrelationID: correlationID,
		CreatedAt:     now(),
	}
	s.events = append(s.events, e)
	entKey := entityType + "|" + entityID
	s.eventsByEntity[entKey] = append(s.eventsByEntity[entKey], e)
	return e, nil
}

func (s *Store) ListByProject(_ context.Context, projectID string, afterID int64, limit int) ([]event.Entry, error) {
	var out []event.Entry
	for _, e := range s.events {
		if e.ProjectID != projectID || e.ID <= afterID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ListByEntity(_ context.Context, entityType, entityID string, limit int) ([]event.Entry, error) {
	hist := s.eventsByEntity[entityType+"|"+entityID]
	out := make([]event.Entry, len(hist))
	copy(out, hist)
	if limit > 0 && limit < len(out) {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// --- Idempotency -----------------------------------------------------------------

func idemKey(projectID, correlationID string) string { return projectID + "|" + correlationID }

func (s *Store) GetIdempotentOutcome(_ context.Context, projectID, correlationID string) ([]byte, bool, error) {
	v, ok := s.idempotency[idemKey(projectID, correlationID)]
	return v, ok, nil
}

func (s *Store) PutIdempotentOutcome(_ context.Context, projectID, correlationID string, outcome []byte) error {
	s.idempotency[idemKey(projectID, correlationID)] = outcome
	return nil
}

// --- Claims paused ----------------------------------------------------------------

func (s *Store) SetClaimsPaused(_ context.Context, projectID string, paused bool) error {
	s.claimsPaused[projectID] = paused
	return nil
}

func (s *Store) ClaimsPaused(_ context.Context, projectID string) (bool, error) {
	return s.claimsPaused[projectID], nil
}

// --- Context cache ----------------------------------------------------------------

func (s *Store) GetContextCache(_ context.Context, key string) (any, time.Time, bool) {
	e, ok := s.contextCache[key]
	if !ok {
		return nil, time.Time{}, false
	}
	return e.value, e.computedAt, true
}

func (s *Store) PutContextCache(_ context.Context, key string, value any) {
	s.contextCache[key] = contextCacheEntry{value: value, computedAt: now()}
}

func (s *Store) InvalidateContextCache(_ context.Context, projectID string) {
	for k := range s.contextCache {
		if len(k) >= len(projectID) && k[:len(projectID)] == projectID {
			delete(s.contextCache, k)
		}
	}
}

func (s *Store) GCContextCache(_ context.Context, maxAge time.Duration) int {
	cutoff := now().Add(-maxAge)
	removed := 0
	for k, e := range s.contextCache {
		if e.computedAt.Before(cutoff) {
			delete(s.contextCache, k)
			removed++
		}
	}
	return removed
}
