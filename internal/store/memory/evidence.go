package memory

import (
	"context"

	"github.com/tascade-run/tascade/internal/domain/artifact"
	"github.com/tascade-run/tascade/internal/domain/integrationattempt"
)

func (s *Store) AppendArtifact(_ context.Context, a artifact.Artifact) (artifact.Artifact, error) {
	if a.ID == "" {
		a.ID = newID()
	}
	a.CreatedAt = now()
	s.artifacts[a.TaskID] = append(s.artifacts[a.TaskID], a)
	return a, nil
}

func (s *Store) ListArtifactsByTask(_ context.Context, taskID string) ([]artifact.Artifact, error) {
	out := make([]artifact.Artifact, len(s.artifacts[taskID]))
	copy(out, s.artifacts[taskID])
	return out, nil
}

func (s *Store) AppendIntegrationAttempt(_ context.Context, a integrationattempt.IntegrationAttempt) (integrationattempt.IntegrationAttempt, error) {
	if a.ID == "" {
		a.ID = newID()
	}
	a.CreatedAt = now()
	s.integrationAttempts[a.TaskID] = append(s.integrationAttempts[a.TaskID], a)
	return a, nil
}

func (s *Store) ListIntegrationAttemptsByTask(_ context.Context, taskID string) ([]integrationattempt.IntegrationAttempt, error) {
	out := make([]integrationattempt.IntegrationAttempt, len(s.integrationAttempts[taskID]))
	copy(out, s.integrationAttempts[taskID])
	return out, nil
}
