// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package session mints and verifies the opaque session credentials
// returned by a completed authentication ceremony. Tokens are JWTs with
// two distinct validity windows: the multi-day login window for a user
// who proved possession of an authenticator, and a deliberately short
// window for delegated (impersonated) sessions.
package session

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default validity windows.
const (
	DefaultLoginTTL         = 72 * time.Hour
	DefaultImpersonationTTL = 15 * time.Minute
)

// ErrInvalidToken is returned when a token fails verification.
var ErrInvalidToken = errors.New("invalid session token")

// Claims are the session token claims.
type Claims struct {
	jwt.RegisteredClaims

	// Role is the role label supplied by the ceremony engine. The issuer
	// embeds it verbatim for the caller's authorization layer.
	Role string `json:"role,omitempty"`

	// Impersonated marks short-window delegated sessions.
	Impersonated bool `json:"impersonated,omitempty"`
}

// IdentityID decodes the subject claim back into the stable identity
// identifier.
func (c *Claims) IdentityID() ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(c.Subject)
}

// Issuer mints session tokens. It implements passkey.SessionIssuer.
type Issuer struct {
	signKey          any
	verifyKey        any
	method           jwt.SigningMethod
	issuer           string
	audience         []string
	loginTTL         time.Duration
	impersonationTTL time.Duration
}

// IssuerConfig configures the token issuer.
type IssuerConfig struct {
	// Key signs tokens (required). An []byte secret selects HMAC;
	// ed25519, ECDSA and RSA private keys select the matching asymmetric
	// method.
	Key any

	// Issuer is the JWT issuer claim (default: "go-passkey").
	Issuer string

	// Audience is the JWT audience claim (default: ["go-passkey"]).
	Audience []string

	// LoginTTL is the validity window for possession-proved logins
	// (default: 72 hours).
	LoginTTL time.Duration

	// ImpersonationTTL is the validity window for delegated sessions
	// (default: 15 minutes).
	ImpersonationTTL time.Duration
}

// NewIssuer creates a token issuer with the given configuration.
func NewIssuer(cfg *IssuerConfig) (*Issuer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Key == nil {
		return nil, fmt.Errorf("signing key is required")
	}

	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "go-passkey"
	}
	audience := cfg.Audience
	if len(audience) == 0 {
		audience = []string{"go-passkey"}
	}
	loginTTL := cfg.LoginTTL
	if loginTTL == 0 {
		loginTTL = DefaultLoginTTL
	}
	impersonationTTL := cfg.ImpersonationTTL
	if impersonationTTL == 0 {
		impersonationTTL = DefaultImpersonationTTL
	}

	var method jwt.SigningMethod
	var verifyKey any
	switch key := cfg.Key.(type) {
	case []byte:
		method = jwt.SigningMethodHS256
		verifyKey = key
	case ed25519.PrivateKey:
		method = jwt.SigningMethodEdDSA
		verifyKey = key.Public()
	case *ecdsa.PrivateKey:
		method = jwt.SigningMethodES256
		verifyKey = key.Public()
	case *rsa.PrivateKey:
		method = jwt.SigningMethodRS256
		verifyKey = key.Public()
	default:
		return nil, fmt.Errorf("unsupported signing key type %T", cfg.Key)
	}

	return &Issuer{
		signKey:          cfg.Key,
		verifyKey:        verifyKey,
		method:           method,
		issuer:           issuer,
		audience:         audience,
		loginTTL:         loginTTL,
		impersonationTTL: impersonationTTL,
	}, nil
}

// Issue mints a login session token for the authenticated identity.
func (i *Issuer) Issue(ctx context.Context, identityID []byte, role string) (string, error) {
	return i.sign(identityID, role, i.loginTTL, false)
}

// IssueImpersonated mints a short-lived delegated session token.
func (i *Issuer) IssueImpersonated(ctx context.Context, identityID []byte, role string) (string, error) {
	return i.sign(identityID, role, i.impersonationTTL, true)
}

func (i *Issuer) sign(identityID []byte, role string, ttl time.Duration, impersonated bool) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings(i.audience),
			Subject:   base64.RawURLEncoding.EncodeToString(identityID),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Role:         role,
		Impersonated: impersonated,
	}

	token := jwt.NewWithClaims(i.method, claims)
	signed, err := token.SignedString(i.signKey)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify validates a session token and returns its claims.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if t.Method.Alg() != i.method.Alg() {
				return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
			}
			return i.verifyKey, nil
		},
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience[0]),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// LoginTTL returns the login session validity window.
func (i *Issuer) LoginTTL() time.Duration {
	return i.loginTTL
}

// ImpersonationTTL returns the delegated session validity window.
func (i *Issuer) ImpersonationTTL() time.Duration {
	return i.impersonationTTL
}
