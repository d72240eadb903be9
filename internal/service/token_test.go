package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *TokenCodec {
	t.Helper()

	codec, err := NewTokenCodec("test-secret", 15*time.Minute, 7*24*time.Hour, 24*time.Hour)
	require.NoError(t, err)
	return codec
}

func TestNewTokenCodec_RequiresSecret(t *testing.T) {
	_, err := NewTokenCodec("   ", 0, 0, 0)
	assert.Error(t, err)
}

func TestTokenCodec_IssueVerify(t *testing.T) {
	codec := newTestCodec(t)

	for _, scope := range []Scope{ScopeAccess, ScopeRefresh, ScopeEmail} {
		token, err := codec.Issue(map[string]any{"sub": "a@x.com", "role": "user"}, scope, time.Minute)
		require.NoError(t, err)

		claims, err := codec.Verify(token, scope)
		require.NoError(t, err, "scope %s", scope)

		// Returned claims must be a superset of the issued ones.
		assert.Equal(t, "a@x.com", claims["sub"])
		assert.Equal(t, "user", claims["role"])
		assert.Equal(t, string(scope), claims["scope"])
		assert.NotEmpty(t, claims["jti"])
		assert.NotNil(t, claims["iat"])
		assert.NotNil(t, claims["exp"])
	}
}

func TestTokenCodec_ScopeMismatch(t *testing.T) {
	codec := newTestCodec(t)
	scopes := []Scope{ScopeAccess, ScopeRefresh, ScopeEmail}

	for _, issued := range scopes {
		token, err := codec.Issue(map[string]any{"sub": "a@x.com"}, issued, time.Minute)
		require.NoError(t, err)

		for _, expected := range scopes {
			_, err := codec.Verify(token, expected)
			if issued == expected {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrScopeMismatch, "issued %s, expected %s", issued, expected)
			}
		}
	}
}

func TestTokenCodec_Expired(t *testing.T) {
	codec := newTestCodec(t)

	token, err := codec.Issue(map[string]any{"sub": "a@x.com"}, ScopeAccess, -time.Minute)
	require.NoError(t, err)

	_, err = codec.Verify(token, ScopeAccess)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenCodec_InvalidSignature(t *testing.T) {
	codec := newTestCodec(t)

	token, err := codec.Issue(map[string]any{"sub": "a@x.com"}, ScopeAccess, time.Minute)
	require.NoError(t, err)

	other, err := NewTokenCodec("another-secret", 0, 0, 0)
	require.NoError(t, err)

	_, err = other.Verify(token, ScopeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Tampered payload.
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + ".eyJzdWIiOiJiQHguY29tIn0." + parts[2]
	_, err = codec.Verify(tampered, ScopeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = codec.Verify("garbage", ScopeAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenCodec_IssueRequiresSubject(t *testing.T) {
	codec := newTestCodec(t)

	_, err := codec.Issue(map[string]any{"role": "user"}, ScopeAccess, time.Minute)
	assert.Error(t, err)

	_, err = codec.Issue(map[string]any{"sub": "  "}, ScopeAccess, time.Minute)
	assert.Error(t, err)
}

func TestTokenCodec_DefaultTTLs(t *testing.T) {
	codec, err := NewTokenCodec("test-secret", 0, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, codec.accessTTL)
	assert.Equal(t, 7*24*time.Hour, codec.refreshTTL)
	assert.Equal(t, 24*time.Hour, codec.emailTTL)
}
