package authz

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tascade-run/tascade/internal/domain/apikey"
	"github.com/tascade-run/tascade/pkg/tascadeerr"
)

// DefaultSessionTTL bounds how long a minted session token is valid, short
// enough that a revoked API key's session tokens age out quickly without a
// separate revocation list.
const DefaultSessionTTL = 15 * time.Minute

// sessionClaims carries a resolved Principal across the wire as a signed JWT,
// following the teacher's infrastructure/serviceauth ServiceClaims shape but
// HMAC-signed against a single server secret instead of RS256, since Tascade
// has no multi-service key distribution problem to solve.
type sessionClaims struct {
	jwt.RegisteredClaims
	ProjectID  string        `json:"project_id"`
	RoleScopes []apikey.Role `json:"role_scopes"`
	Admin      bool          `json:"admin"`
}

// SignSessionToken mints a short-lived JWT for p, signed with secret. The
// HTTP transport issues these from a resolved API-key principal so repeat
// requests can skip the store's hash lookup until the token expires.
func SignSessionToken(secret []byte, p Principal, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("authz: empty session secret")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		ProjectID:  p.ProjectID,
		RoleScopes: p.RoleScopes,
		Admin:      p.Admin,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseSessionToken verifies tokenString against secret and recovers the
// Principal it carries. Callers fall back to the raw API-key hash lookup
// when this returns an error, since a bearer token may be either form.
func ParseSessionToken(secret []byte, tokenString string) (Principal, error) {
	if len(secret) == 0 {
		return Principal{}, errors.New("authz: empty session secret")
	}
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, tascadeerr.UnauthenticatedErr("unexpected session token signing method")
		}
		return secret, nil
	})
	if err != nil {
		return Principal{}, tascadeerr.UnauthenticatedErr("invalid or expired session token")
	}
	return Principal{
		ID:         claims.Subject,
		ProjectID:  claims.ProjectID,
		RoleScopes: claims.RoleScopes,
		Admin:      claims.Admin,
	}, nil
}
