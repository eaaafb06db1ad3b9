// Package auth encodes caller identity as signed tokens at the inbound
// boundary. Authorization itself lives in the domain; this package only
// carries who the caller is and which roles they hold.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/verdantlab/plantarium/internal/domain/authz"
	apperrors "github.com/verdantlab/plantarium/internal/platform/errors"
)

// DefaultTTL is the token lifetime used when none is configured.
const DefaultTTL = 12 * time.Hour

// Claims is the token payload: the subject is the username, roles ride along.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 identity tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// NewTokens creates a token codec with the signing secret. Non-positive ttl
// falls back to DefaultTTL.
func NewTokens(secret []byte, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tokens{
		secret: secret,
		ttl:    ttl,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// Issue signs a token for the identity.
func (t *Tokens) Issue(identity authz.Identity) (string, error) {
	now := t.clock()
	roles := make([]string, len(identity.Roles))
	for i, role := range identity.Roles {
		roles[i] = string(role)
	}
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify parses and validates a token, returning the caller identity.
func (t *Tokens) Verify(token string) (authz.Identity, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.clock),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return authz.Identity{}, apperrors.Wrap(apperrors.CodeTokenExpired, "token expired", err)
		}
		return authz.Identity{}, apperrors.Wrap(apperrors.CodeTokenInvalid, "token invalid", err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return authz.Identity{}, apperrors.New(apperrors.CodeTokenInvalid, "token subject is required")
	}
	roles := make([]authz.Role, len(claims.Roles))
	for i, role := range claims.Roles {
		roles[i] = authz.Role(role)
	}
	return authz.Identity{Username: claims.Subject, Roles: roles}, nil
}
