package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"photoshare/internal/cache"
	"photoshare/internal/model"
	"photoshare/pkg/apierror"

	"github.com/alicebob/miniredis/v2"
)

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) FindByEmail(ctx context.Context, email string) (model.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *mockUserStore) ExistsByEmailOrUsername(ctx context.Context, email string, username string) (bool, error) {
	args := m.Called(ctx, email, username)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserStore) Create(ctx context.Context, u model.User) (model.User, error) {
	args := m.Called(ctx, u)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *mockUserStore) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockUserStore) UpdateRefreshToken(ctx context.Context, userID int64, token *string) error {
	args := m.Called(ctx, userID, token)
	return args.Error(0)
}

func (m *mockUserStore) ConfirmEmail(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func newTestAuthService(t *testing.T, users *mockUserStore) (*AuthService, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	identityCache, err := cache.New(context.Background(), "redis://"+mr.Addr(), 900*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = identityCache.Close() })

	codec, err := NewTokenCodec("test-secret", 15*time.Minute, 7*24*time.Hour, 24*time.Hour)
	require.NoError(t, err)

	return NewAuthService(codec, NewPasswordHasher(4), identityCache, users), mr
}

func storedUser(t *testing.T, hasher *PasswordHasher, password string) model.User {
	t.Helper()

	hash, err := hasher.Hash(password)
	require.NoError(t, err)

	return model.User{
		ID:           42,
		Email:        "a@x.com",
		Username:     "anna",
		PasswordHash: hash,
		Role:         model.RoleUser,
		Active:       true,
		Verified:     true,
		CreatedAt:    time.Now().UTC(),
	}
}

func assertUnauthorized(t *testing.T, err error) {
	t.Helper()

	var apiErr *apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.HTTPStatus)
}

func TestAuthService_Register(t *testing.T) {
	t.Run("first account becomes admin", func(t *testing.T) {
		users := new(mockUserStore)
		svc, _ := newTestAuthService(t, users)

		users.On("ExistsByEmailOrUsername", mock.Anything, "a@x.com", "anna").Return(false, nil)
		users.On("Count", mock.Anything).Return(0, nil)
		users.On("Create", mock.Anything, mock.MatchedBy(func(u model.User) bool {
			return u.Role == model.RoleAdmin && u.Email == "a@x.com" && !u.Verified && u.Active
		})).Return(model.User{ID: 1, Email: "a@x.com", Username: "anna", Role: model.RoleAdmin}, nil)

		user, emailToken, err := svc.Register(context.Background(), "A@X.com ", "anna", "secret1")
		require.NoError(t, err)
		assert.Equal(t, model.RoleAdmin, user.Role)

		claims, err := svc.codec.Verify(emailToken, ScopeEmail)
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", claims["sub"])

		users.AssertExpectations(t)
	})

	t.Run("later accounts are plain users", func(t *testing.T) {
		users := new(mockUserStore)
		svc, _ := newTestAuthService(t, users)

		users.On("ExistsByEmailOrUsername", mock.Anything, "b@x.com", "bob").Return(false, nil)
		users.On("Count", mock.Anything).Return(3, nil)
		users.On("Create", mock.Anything, mock.MatchedBy(func(u model.User) bool {
			return u.Role == model.RoleUser
		})).Return(model.User{ID: 4, Email: "b@x.com", Username: "bob", Role: model.RoleUser}, nil)

		user, _, err := svc.Register(context.Background(), "b@x.com", "bob", "secret1")
		require.NoError(t, err)
		assert.Equal(t, model.RoleUser, user.Role)
	})

	t.Run("duplicate account rejected", func(t *testing.T) {
		users := new(mockUserStore)
		svc, _ := newTestAuthService(t, users)

		users.On("ExistsByEmailOrUsername", mock.Anything, "a@x.com", "anna").Return(true, nil)

		_, _, err := svc.Register(context.Background(), "a@x.com", "anna", "secret1")
		assert.ErrorIs(t, err, model.ErrUserAlreadyExists)
		users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		users := new(mockUserStore)
		svc, _ := newTestAuthService(t, users)

		_, _, err := svc.Register(context.Background(), "", "anna", "secret1")
		assert.Error(t, err)
	})
}

func TestAuthService_Login(t *testing.T) {
	t.Run("valid credentials issue a scoped pair", func(t *testing.T) {
		users := new(mockUserStore)
		svc, _ := newTestAuthService(t, users)
		user := storedUser(t, svc.hasher, "secret1")

		users.On("FindByEmail", mock.Anything, "a@x.com").Return(user, nil)
		users.On("UpdateRefreshToken", mock.Anything, int64(42), mock.AnythingOfType("*string")).Return(nil)

		pair, err := svc.Login(context.Background(), "a@x.com", "secret1")
		require.NoError(t, err)

		assert.Equal(t, "Bearer", pair.TokenType)
		assert.Equal(t, "a@x.com", pair.User.Email)
		assert.Equal(t, int64(900), pair.ExpiresIn)

		access, err := svc.codec.Verify(pair.AccessToken, ScopeAccess)
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", access["sub"])

		refresh, err := svc.codec.Verify(pair.RefreshToken, ScopeRefresh)
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", refresh["sub"])
	})

	t.Run("wrong password", func(t *testing.T) {
		users := new(mockUserStore)
		svc, _ := newTestAuthService(t, users)
		user := storedUser(t, svc.hasher, "secret1")

		users.On("FindByEmail", mock.Anything, "a@x.com").Return(user, nil)

		_, err := svc.Login(context.Background(), "a@x.com", "wrong")
		assertUnauthorized(t, err)
	})

	t.Run("unknown email", func(t *testing.T) {
		users := new(mockUserStore)
		svc, _ := newTestAuthService(t, users)

		users.On("FindByEmail", mock.Anything, "nobody@x.com").Return(model.User{}, model.ErrUserNotFound)

		_, err := svc.Login(context.Background(), "nobody@x.com", "secret1")
		assertUnauthorized(t, err)
	})

	t.Run("unconfirmed email", func(t *testing.T) {
		users := new(mockUserStore)
		svc, _ := newTestAuthService(t, users)
		user := storedUser(t, svc.hasher, "secret1")
		user.Verified = false

		users.On("FindByEmail", mock.Anything, "a@x.com").Return(user, nil)

		_, err := svc.Login(context.Background(), "a@x.com", "secret1")
		assertUnauthorized(t, err)
	})

	t.Run("deactivated account", func(t *testing.T) {
		users := new(mockUserStore)
		svc, _ := newTestAuthService(t, users)
		user := storedUser(t, svc.hasher, "secret1")
		user.Active = false

		users.On("FindByEmail", mock.Anything, "a@x.com").Return(user, nil)

		_, err := svc.Login(context.Background(), "a@x.com", "secret1")
		assertUnauthorized(t, err)
	})
}

func TestAuthService_Resolve(t *testing.T) {
	t.Run("login token resolves to the identity", func(t *testing.T) {
		users := new(mockUserStore)
		svc, _ := newTestAuthService(t, users)
		user := storedUser(t, svc.hasher, "secret1")

		users.On("FindByEmail", mock.Anything, "a@x.com").Return(user, nil)
		users.On("UpdateRefreshToken", mock.Anything, int64(42), mock.AnythingOfType("*string")).Return(nil)

		pair, err := svc.Login(context.Background(), "a@x.com", "secret1")
		require.NoError(t, err)

		resolved, err := svc.Resolve(context.Background(), pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", resolved.Email)
	})

	t.Run("cache population skips the store within the TTL window", func(t *testing.T) {
		users := new(mockUserStore)
		svc, mr := newTestAuthService(t, users)
		user := storedUser(t, svc.hasher, "secret1")

		users.On("FindByEmail", mock.Anything, "a@x.com").Return(user, nil)

		token, err := svc.codec.Issue(map[string]any{"sub": "a@x.com"}, ScopeAccess, time.Minute)
		require.NoError(t, err)

		first, err := svc.Resolve(context.Background(), token)
		require.NoError(t, err)

		second, err := svc.Resolve(context.Background(), token)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		users.AssertNumberOfCalls(t, "FindByEmail", 1)

		// Past the TTL the store is consulted again.
		mr.FastForward(901 * time.Second)
		_, err = svc.Resolve(context.Background(), token)
		require.NoError(t, err)
		users.AssertNumberOfCalls(t, "FindByEmail", 2)
	})

	t.Run("email token on the access path is unauthenticated", func(t *testing.T) {
		users := new(mockUserStore)
		svc, _ := newTestAuthService(t, users)

		emailToken, err := svc.codec.Issue(map[string]any{"sub": "a@x.com"}, ScopeEmail, time.Minute)
		require.NoError(t, err)

		_, err = svc.Resolve(context.Background(), emailToken)
		assert.ErrorIs(t, err, model.ErrUnauthenticated)
		users.AssertNotCalled(t, "FindByEmail", mock.Anything, mock.Anything)
	})

	t.Run("malformed or expired tokens are unauthenticated", func(t *testing.T) {
		users := new(mockUserStore)
		svc, _ := newTestAuthService(t, users)

		_, err := svc.Resolve(context.Background(), "garbage")
		assert.ErrorIs(t, err, model.ErrUnauthenticated)

		expired, err := svc.codec.Issue(map[string]any{"sub": "a@x.com"}, ScopeAccess, -time.Minute)
		require.NoError(t, err)
		_, err = svc.Resolve(context.Background(), expired)
		assert.ErrorIs(t, err, model.ErrUnauthenticated)
	})

	t.Run("unknown subject is unauthenticated", func(t *testing.T) {
		users := new(mockUserStore)
		svc, _ := newTestAuthService(t, users)

		users.On("FindByEmail", mock.Anything, "ghost@x.com").Return(model.User{}, model.ErrUserNotFound)

		token, err := svc.codec.Issue(map[string]any{"sub": "ghost@x.com"}, ScopeAccess, time.Minute)
		require.NoError(t, err)

		_, err = svc.Resolve(context.Background(), token)
		assert.ErrorIs(t, err, model.ErrUnauthenticated)
	})
}

func TestAuthService_Refresh(t *testing.T) {
	t.Run("rotates the stored pair", func(t *testing.T) {
		users := new(mockUserStore)
		svc, _ := newTestAuthService(t, users)
		user := storedUser(t, svc.hasher, "secret1")

		var stored string
		users.On("FindByEmail", mock.Anything, "a@x.com").Return(user, nil).Once()
		users.On("UpdateRefreshToken", mock.Anything, int64(42), mock.AnythingOfType("*string")).
			Run(func(args mock.Arguments) {
				stored = *(args.Get(2).(*string))
			}).Return(nil)

		pair, err := svc.Login(context.Background(), "a@x.com", "secret1")
		require.NoError(t, err)
		require.Equal(t, pair.RefreshToken, stored)

		// The store now holds the issued refresh token.
		user.RefreshToken = &stored
		users.On("FindByEmail", mock.Anything, "a@x.com").Return(user, nil)

		rotated, err := svc.Refresh(context.Background(), pair.RefreshToken)
		require.NoError(t, err)
		assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

		_, err = svc.codec.Verify(rotated.AccessToken, ScopeAccess)
		assert.NoError(t, err)
	})

	t.Run("access token on the refresh path is rejected", func(t *testing.T) {
		users := new(mockUserStore)
		svc, _ := newTestAuthService(t, users)

		accessToken, err := svc.codec.Issue(map[string]any{"sub": "a@x.com"}, ScopeAccess, time.Minute)
		require.NoError(t, err)

		_, err = svc.Refresh(context.Background(), accessToken)
		assertUnauthorized(t, err)
	})

	t.Run("mismatch with the stored reference clears it", func(t *testing.T) {
		users := new(mockUserStore)
		svc, _ := newTestAuthService(t, users)
		user := storedUser(t, svc.hasher, "secret1")
		other := "some-other-token"
		user.RefreshToken = &other

		presented, err := svc.codec.Issue(map[string]any{"sub": "a@x.com"}, ScopeRefresh, time.Minute)
		require.NoError(t, err)

		users.On("FindByEmail", mock.Anything, "a@x.com").Return(user, nil)
		users.On("UpdateRefreshToken", mock.Anything, int64(42), (*string)(nil)).Return(nil)

		_, err = svc.Refresh(context.Background(), presented)
		assertUnauthorized(t, err)
		users.AssertCalled(t, "UpdateRefreshToken", mock.Anything, int64(42), (*string)(nil))
	})
}

func TestAuthService_ConfirmEmail(t *testing.T) {
	t.Run("flips the verified flag", func(t *testing.T) {
		users := new(mockUserStore)
		svc, _ := newTestAuthService(t, users)
		user := storedUser(t, svc.hasher, "secret1")
		user.Verified = false

		users.On("FindByEmail", mock.Anything, "a@x.com").Return(user, nil)
		users.On("ConfirmEmail", mock.Anything, "a@x.com").Return(nil)

		token, err := svc.codec.Issue(map[string]any{"sub": "a@x.com"}, ScopeEmail, time.Minute)
		require.NoError(t, err)

		require.NoError(t, svc.ConfirmEmail(context.Background(), token))
		users.AssertExpectations(t)
	})

	t.Run("already confirmed is a no-op", func(t *testing.T) {
		users := new(mockUserStore)
		svc, _ := newTestAuthService(t, users)
		user := storedUser(t, svc.hasher, "secret1")

		users.On("FindByEmail", mock.Anything, "a@x.com").Return(user, nil)

		token, err := svc.codec.Issue(map[string]any{"sub": "a@x.com"}, ScopeEmail, time.Minute)
		require.NoError(t, err)

		require.NoError(t, svc.ConfirmEmail(context.Background(), token))
		users.AssertNotCalled(t, "ConfirmEmail", mock.Anything, mock.Anything)
	})

	t.Run("access token on the confirmation path is rejected", func(t *testing.T) {
		users := new(mockUserStore)
		svc, _ := newTestAuthService(t, users)

		token, err := svc.codec.Issue(map[string]any{"sub": "a@x.com"}, ScopeAccess, time.Minute)
		require.NoError(t, err)

		err = svc.ConfirmEmail(context.Background(), token)
		assertUnauthorized(t, err)
	})
}
