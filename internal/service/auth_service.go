package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"photoshare/internal/model"
	"photoshare/pkg/apierror"
)

// userStore is the persistent identity lookup the authenticator falls back
// to on a cache miss. Lookups are the only calls here that may block on I/O.
type userStore interface {
	FindByEmail(ctx context.Context, email string) (model.User, error)
	ExistsByEmailOrUsername(ctx context.Context, email string, username string) (bool, error)
	Create(ctx context.Context, u model.User) (model.User, error)
	Count(ctx context.Context) (int, error)
	UpdateRefreshToken(ctx context.Context, userID int64, token *string) error
	ConfirmEmail(ctx context.Context, email string) error
}

// identityCache sits in front of the user store. Implementations treat any
// backend failure as a miss, so the authenticator never has to care whether
// the cache is reachable.
type identityCache interface {
	Get(ctx context.Context, email string) (*model.User, bool)
	Set(ctx context.Context, user model.User)
}

type AuthService struct {
	codec  *TokenCodec
	hasher *PasswordHasher
	cache  identityCache
	users  userStore
}

func NewAuthService(codec *TokenCodec, hasher *PasswordHasher, cache identityCache, users userStore) *AuthService {
	return &AuthService{
		codec:  codec,
		hasher: hasher,
		cache:  cache,
		users:  users,
	}
}

// Register creates an account and issues its email-confirmation token. The
// very first account becomes admin; everyone after that starts as a plain
// user.
func (s *AuthService) Register(ctx context.Context, email string, username string, password string) (model.PublicUser, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)

	if email == "" || username == "" || password == "" {
		return model.PublicUser{}, "", apierror.New("BAD_REQUEST", "email, username and password are required", "", http.StatusBadRequest)
	}

	exists, err := s.users.ExistsByEmailOrUsername(ctx, email, username)
	if err != nil {
		return model.PublicUser{}, "", fmt.Errorf("check account exists: %w", err)
	}
	if exists {
		return model.PublicUser{}, "", model.ErrUserAlreadyExists
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return model.PublicUser{}, "", fmt.Errorf("hash password: %w", err)
	}

	role := model.RoleUser
	count, err := s.users.Count(ctx)
	if err != nil {
		return model.PublicUser{}, "", fmt.Errorf("count users: %w", err)
	}
	if count == 0 {
		role = model.RoleAdmin
	}

	user, err := s.users.Create(ctx, model.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		Verified:     false,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return model.PublicUser{}, "", fmt.Errorf("create user: %w", err)
	}

	emailToken, err := s.codec.Issue(map[string]any{"sub": user.Email}, ScopeEmail, 0)
	if err != nil {
		return model.PublicUser{}, "", fmt.Errorf("issue email token: %w", err)
	}

	slog.Info("registered account awaiting confirmation", "email", user.Email, "role", user.Role)
	return user.Public(), emailToken, nil
}

// Login checks credentials and issues an access/refresh pair. The stored
// refresh-token reference on the user row is replaced on every login.
func (s *AuthService) Login(ctx context.Context, email string, password string) (model.TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.TokenPair{}, apierror.Unauthorized("invalid credentials")
	}
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("login lookup: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return model.TokenPair{}, apierror.Unauthorized("invalid credentials")
	}
	if !user.Verified {
		return model.TokenPair{}, apierror.Unauthorized("email is not confirmed")
	}
	if !user.Active {
		return model.TokenPair{}, apierror.Unauthorized("account is deactivated")
	}

	return s.issueTokenPair(ctx, user)
}

// Refresh verifies a refresh-scoped token, requires it to match the stored
// reference, and rotates the pair. A mismatch clears the stored reference so
// a stolen older token cannot be retried.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	claims, err := s.codec.Verify(refreshToken, ScopeRefresh)
	if err != nil {
		return model.TokenPair{}, apierror.Unauthorized("invalid refresh token")
	}

	email, _ := claims["sub"].(string)
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.TokenPair{}, apierror.Unauthorized("invalid refresh token")
	}
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("refresh lookup: %w", err)
	}

	if user.RefreshToken == nil || *user.RefreshToken != refreshToken {
		if err := s.users.UpdateRefreshToken(ctx, user.ID, nil); err != nil {
			slog.Warn("failed to clear refresh token after mismatch", "user_id", user.ID, "error", err)
		}
		return model.TokenPair{}, apierror.Unauthorized("invalid refresh token")
	}
	if !user.Active {
		return model.TokenPair{}, apierror.Unauthorized("account is deactivated")
	}

	return s.issueTokenPair(ctx, user)
}

// ConfirmEmail verifies an email-scoped token and flips the verified flag.
// Confirming twice is a no-op.
func (s *AuthService) ConfirmEmail(ctx context.Context, token string) error {
	claims, err := s.codec.Verify(token, ScopeEmail)
	if err != nil {
		return apierror.Unauthorized("invalid confirmation token")
	}

	email, _ := claims["sub"].(string)
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		return apierror.Unauthorized("invalid confirmation token")
	}
	if err != nil {
		return fmt.Errorf("confirm lookup: %w", err)
	}

	if user.Verified {
		return nil
	}

	if err := s.users.ConfirmEmail(ctx, user.Email); err != nil {
		return fmt.Errorf("confirm email: %w", err)
	}

	slog.Info("email confirmed", "email", user.Email)
	return nil
}

// Resolve turns a bearer token into a live identity. It is the single choke
// point for authentication: every codec or lookup failure collapses into
// model.ErrUnauthenticated, and only a persistent-store outage surfaces as
// anything else.
func (s *AuthService) Resolve(ctx context.Context, bearerToken string) (model.User, error) {
	claims, err := s.codec.Verify(bearerToken, ScopeAccess)
	if err != nil {
		return model.User{}, model.ErrUnauthenticated
	}

	email, _ := claims["sub"].(string)
	if strings.TrimSpace(email) == "" {
		return model.User{}, model.ErrUnauthenticated
	}

	if cached, ok := s.cache.Get(ctx, email); ok {
		return *cached, nil
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.User{}, model.ErrUnauthenticated
	}
	if err != nil {
		return model.User{}, fmt.Errorf("resolve identity: %w", err)
	}

	s.cache.Set(ctx, user)
	return user, nil
}

func (s *AuthService) issueTokenPair(ctx context.Context, user model.User) (model.TokenPair, error) {
	accessToken, err := s.codec.Issue(map[string]any{
		"sub":      user.Email,
		"username": user.Username,
		"role":     string(user.Role),
	}, ScopeAccess, 0)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken, err := s.codec.Issue(map[string]any{"sub": user.Email}, ScopeRefresh, 0)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}

	if err := s.users.UpdateRefreshToken(ctx, user.ID, &refreshToken); err != nil {
		return model.TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}

	return model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.codec.AccessTTL().Seconds()),
		User:         user.Public(),
	}, nil
}
