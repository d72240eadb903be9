package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Scope tags a token with its single permitted use. The scope lives inside
// the signed payload, so a refresh token can never be replayed where an
// access token is expected and an email-confirmation token can never
// authenticate an API call.
type Scope string

const (
	ScopeAccess  Scope = "access_token"
	ScopeRefresh Scope = "refresh_token"
	ScopeEmail   Scope = "email_token"
)

// Typed codec failures. The authenticator collapses all of them into a
// single unauthenticated error before anything reaches a caller.
var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrScopeMismatch = errors.New("invalid scope for token")
)

// TokenCodec issues and verifies HS256-signed, scoped, expiring tokens.
// The secret and TTLs are fixed at construction.
type TokenCodec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	emailTTL   time.Duration
}

func NewTokenCodec(secret string, accessTTL, refreshTTL, emailTTL time.Duration) (*TokenCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token signing secret is required")
	}
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	if emailTTL <= 0 {
		emailTTL = 24 * time.Hour
	}

	return &TokenCodec{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		emailTTL:   emailTTL,
	}, nil
}

// Issue signs the given claims with the requested scope. Claims must carry
// "sub". A zero ttl falls back to the configured default for the scope.
func (c *TokenCodec) Issue(claims map[string]any, scope Scope, ttl time.Duration) (string, error) {
	if sub, _ := claims["sub"].(string); strings.TrimSpace(sub) == "" {
		return "", fmt.Errorf("issue %s: claims are missing sub", scope)
	}
	if ttl == 0 {
		ttl = c.defaultTTL(scope)
	}

	now := time.Now().UTC()
	merged := jwt.MapClaims{}
	for k, v := range claims {
		merged[k] = v
	}
	merged["iat"] = now.Unix()
	merged["exp"] = now.Add(ttl).Unix()
	merged["scope"] = string(scope)
	merged["jti"] = uuid.NewString()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, merged)
	return token.SignedString(c.secret)
}

// Verify decodes and signature-checks a token, then requires its embedded
// scope to equal expected. The caller always states which scope it expects;
// the codec never infers one.
func (c *TokenCodec) Verify(tokenString string, expected Scope) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	scope, _ := claims["scope"].(string)
	if Scope(scope) != expected {
		return nil, ErrScopeMismatch
	}

	return claims, nil
}

func (c *TokenCodec) AccessTTL() time.Duration {
	return c.accessTTL
}

func (c *TokenCodec) defaultTTL(scope Scope) time.Duration {
	switch scope {
	case ScopeRefresh:
		return c.refreshTTL
	case ScopeEmail:
		return c.emailTTL
	default:
		return c.accessTTL
	}
}
