package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"

	"github.com/tascade-run/tascade/internal/authz"
	"github.com/tascade-run/tascade/internal/domain/apikey"
	"github.com/tascade-run/tascade/pkg/tascadeerr"
)

// hashKeyMaterial hashes plaintext key material the same way the teacher's
// enclave packages hash payloads: sha256, hex-encoded.
func hashKeyMaterial(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// CreateAPIKeyResult carries the one-time plaintext key material alongside
// the persisted (hash-only) record.
type CreateAPIKeyResult struct {
	Key       apikey.APIKey
	Plaintext string
}

// CreateAPIKey issues a new API key principal (admin).
func (e *Engine) CreateAPIKey(ctx context.Context, p authz.Principal, projectID string, roles []apikey.Role) (CreateAPIKeyResult, error) {
	if err := authz.Require(p, authz.CapAPIKeyAdmin, ""); err != nil {
		return CreateAPIKeyResult{}, err
	}
	if projectID == "" {
		return CreateAPIKeyResult{}, tascadeerr.InvalidArgumentf("project_id", "must not be empty")
	}
	plaintext := uuid.NewString() + uuid.NewString()
	var out apikey.APIKey
	err := e.Store.WithLock(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.Store.CreateAPIKey(ctx, apikey.APIKey{
			ProjectID:  projectID,
			Hash:       hashKeyMaterial(plaintext),
			RoleScopes: roles,
			Status:     apikey.StatusActive,
		})
		if err != nil {
			return err
		}
		return e.emit(ctx, projectID, "apikey", out.ID, "apikey.created", map[string]any{"role_scopes": roles}, "")
	})
	if err != nil {
		return CreateAPIKeyResult{}, err
	}
	return CreateAPIKeyResult{Key: out, Plaintext: plaintext}, nil
}

// RevokeAPIKey revokes an API key (admin).
func (e *Engine) RevokeAPIKey(ctx context.Context, p authz.Principal, keyID string) (apikey.APIKey, error) {
	if err := authz.Require(p, authz.CapAPIKeyAdmin, ""); err != nil {
		return apikey.APIKey{}, err
	}
	var out apikey.APIKey
	err := e.Store.WithLock(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.Store.RevokeAPIKey(ctx, keyID)
		if err != nil {
			return err
		}
		return e.emit(ctx, out.ProjectID, "apikey", out.ID, "apikey.revoked", map[string]any{}, "")
	})
	return out, err
}

// ListAPIKeys lists a project's API keys (admin).
func (e *Engine) ListAPIKeys(ctx context.Context, p authz.Principal, projectID string) ([]apikey.APIKey, error) {
	if err := authz.Require(p, authz.CapAPIKeyAdmin, ""); err != nil {
		return nil, err
	}
	return e.Store.ListAPIKeysByProject(ctx, projectID)
}

// ResolvePrincipal looks up the principal bound to a bearer token. The token
// is first tried as a session JWT (cheap, no store round-trip); on failure,
// or when no session secret is configured, it falls back to a raw API-key
// hash lookup, for the (external) transport's authentication step.
func (e *Engine) ResolvePrincipal(ctx context.Context, token string) (authz.Principal, error) {
	if len(e.sessionSecret) > 0 {
		if p, err := authz.ParseSessionToken(e.sessionSecret, token); err == nil {
			return p, nil
		}
	}

	k, ok, err := e.Store.GetAPIKeyByHash(ctx, hashKeyMaterial(token))
	if err != nil {
		return authz.Principal{}, err
	}
	if !ok || k.Status != apikey.StatusActive {
		return authz.Principal{}, tascadeerr.UnauthenticatedErr("unknown or revoked api key")
	}
	return authz.Principal{
		ID:         k.ID,
		ProjectID:  k.ProjectID,
		RoleScopes: k.RoleScopes,
		Admin:      k.HasRole(apikey.RoleAdmin),
	}, nil
}

// IssueSessionToken exchanges valid API-key plaintext material for a
// short-lived session JWT. Returns an empty string with no error when no
// session secret is configured — callers should then keep using the raw key.
func (e *Engine) IssueSessionToken(ctx context.Context, plaintext string) (string, error) {
	k, ok, err := e.Store.GetAPIKeyByHash(ctx, hashKeyMaterial(plaintext))
	if err != nil {
		return "", err
	}
	if !ok || k.Status != apikey.StatusActive {
		return "", tascadeerr.UnauthenticatedErr("unknown or revoked api key")
	}
	if len(e.sessionSecret) == 0 {
		return "", nil
	}
	p := authz.Principal{
		ID:         k.ID,
		ProjectID:  k.ProjectID,
		RoleScopes: k.RoleScopes,
		Admin:      k.HasRole(apikey.RoleAdmin),
	}
	return authz.SignSessionToken(e.sessionSecret, p, authz.DefaultSessionTTL)
}
