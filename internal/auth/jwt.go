// Package auth provides JWT tokens, password hashing, bearer-token middleware
// and GitHub sign-in for the contacts API.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. User signs up; a confirmation link carrying an email-scoped token is mailed
//  2. User opens the link, the account becomes confirmed
//  3. POST /api/auth/login returns an access token and a refresh token
//  4. Protected routes read "Authorization: Bearer <access token>"
//  5. GET /api/auth/refresh_token trades the refresh token for a new pair
//
// TOKEN SCOPES:
// Every token carries a "scope" claim. A refresh token presented where an
// access token is expected (or the reverse) is rejected, even though both are
// signed with the same secret.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Scope names what a token may be used for.
type Scope string

const (
	ScopeAccess  Scope = "access_token"
	ScopeRefresh Scope = "refresh_token"
	ScopeEmail   Scope = "email_token"
)

const issuer = "contacts-api"

// Default lifetimes per scope.
const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
	EmailTokenTTL   = 7 * 24 * time.Hour
)

var (
	ErrTokenExpired = errors.New("auth: token expired")
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrWrongScope   = errors.New("auth: invalid scope for token")
)

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret used to sign and verify tokens. The same secret
// must be used for both operations.
type TokenService struct {
	secret []byte
	ttl    map[Scope]time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService with the given secret.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{
		secret: []byte(secret),
		ttl: map[Scope]time.Duration{
			ScopeAccess:  AccessTokenTTL,
			ScopeRefresh: RefreshTokenTTL,
			ScopeEmail:   EmailTokenTTL,
		},
		now: time.Now,
	}, nil
}

// claims is the JWT payload: the registered claims plus our scope.
//
// "sub" holds the user ID for access and refresh tokens and the email
// address for email tokens.
type claims struct {
	Scope Scope `json:"scope"`
	jwt.RegisteredClaims
}

// Generate signs a token for subject with the default lifetime of scope.
func (s *TokenService) Generate(subject string, scope Scope) (string, error) {
	ttl, ok := s.ttl[scope]
	if !ok {
		return "", fmt.Errorf("auth: unknown token scope %q", scope)
	}
	return s.GenerateWithDuration(subject, scope, ttl)
}

// GenerateWithDuration signs a token with a custom lifetime. Negative
// durations produce already-expired tokens, which tests rely on.
//
// Each token gets a random jti so two tokens issued in the same second for
// the same subject are still distinct strings.
func (s *TokenService) GenerateWithDuration(subject string, scope Scope, d time.Duration) (string, error) {
	now := s.now()

	c := claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a JWT string and returns its subject.
//
// VALIDATION CHECKS:
//   - Signature is valid and the algorithm is HS256
//   - Token is not expired
//   - Issuer matches
//   - Scope equals want
func (s *TokenService) Validate(tokenStr string, want Scope) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if c.Scope != want {
		return "", ErrWrongScope
	}
	if c.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}

	return c.Subject, nil
}
