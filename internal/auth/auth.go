// Package auth issues and validates reviewer session tokens and verifies
// ingest API keys.
//
// Session tokens are HMAC-signed JWTs carrying the actor name and role.
// The role gates write surfaces: ingest workers may resolve candidates,
// reviewers may work the unclassified register, admins may do both.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "regsight"

// Role is an actor's capability class.
type Role string

const (
	RoleIngest   Role = "ingest"
	RoleReviewer Role = "reviewer"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleIngest || r == RoleReviewer || r == RoleAdmin
}

// CanIngest reports whether the role may submit candidate batches.
func (r Role) CanIngest() bool { return r == RoleIngest || r == RoleAdmin }

// CanReview reports whether the role may work the unclassified register
// and resolve quality issues.
func (r Role) CanReview() bool { return r == RoleReviewer || r == RoleAdmin }

// Claims extends jwt.RegisteredClaims with the actor identity.
type Claims struct {
	jwt.RegisteredClaims
	Actor string `json:"actor"`
	Role  Role   `json:"role"`
}

// TokenManager signs and validates session tokens with an HMAC secret.
type TokenManager struct {
	secret     []byte
	expiration time.Duration
}

// NewTokenManager creates a TokenManager. An empty secret generates an
// ephemeral one, which invalidates all tokens on restart; fine for
// development, logged loudly so it is never missed in production.
func NewTokenManager(secret string, expiration time.Duration) (*TokenManager, error) {
	key := []byte(secret)
	if len(key) == 0 {
		slog.Warn("auth: no JWT secret configured, generating ephemeral secret (not for production)")
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("auth: generate secret: %w", err)
		}
	}
	return &TokenManager{secret: key, expiration: expiration}, nil
}

// IssueToken creates a signed session token for an actor.
func (m *TokenManager) IssueToken(actor string, role Role) (string, time.Time, error) {
	if actor == "" {
		return "", time.Time{}, fmt.Errorf("auth: actor is required")
	}
	if !role.Valid() {
		return "", time.Time{}, fmt.Errorf("auth: unknown role %q", role)
	}

	now := time.Now().UTC()
	exp := now.Add(m.expiration)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor,
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{issuer},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.New().String(),
		},
		Actor: actor,
		Role:  role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp, nil
}

// ValidateToken parses and validates a session token.
func (m *TokenManager) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return m.secret, nil
		},
		jwt.WithAudience(issuer),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: validate token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("auth: unknown role %q", claims.Role)
	}
	return claims, nil
}

// EphemeralSecret returns a random base64 secret, for bootstrap tooling.
func EphemeralSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: generate secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
