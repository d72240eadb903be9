package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"photoshare/internal/model"
)

// identityResolver turns a bearer token into a live identity. Implemented by
// service.AuthService.
type identityResolver interface {
	Resolve(ctx context.Context, bearerToken string) (model.User, error)
}

type contextKey string

const identityContextKey contextKey = "identity"

type AuthMiddleware struct {
	resolver identityResolver
}

func NewAuthMiddleware(resolver identityResolver) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver}
}

// RequireAuth extracts the bearer token, resolves it to an identity, and
// stores the identity on the request context. Every resolution failure is a
// flat 401; the response never says which check failed.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			writeDenied(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid authorization header", "")
			return
		}

		token := strings.TrimSpace(header[7:])
		user, err := m.resolver.Resolve(r.Context(), token)
		if errors.Is(err, model.ErrUnauthenticated) {
			writeDenied(w, http.StatusUnauthorized, "UNAUTHORIZED", "could not validate credentials", "")
			return
		}
		if err != nil {
			// Persistent store failure, not an auth decision.
			writeDenied(w, http.StatusInternalServerError, "INTERNAL_ERROR", "identity lookup failed", "")
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole gates a route behind a declared minimum role. The requirement
// is validated once, at router construction; an out-of-enum value is a
// programming error.
func (m *AuthMiddleware) RequireRole(min model.Role) func(http.Handler) http.Handler {
	if !min.Valid() {
		panic(fmt.Sprintf("middleware: unknown role requirement %q", min))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				writeDenied(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", "")
				return
			}

			if !user.Role.Permits(min) {
				detail := fmt.Sprintf("role %s does not satisfy required role %s", user.Role, min)
				writeDenied(w, http.StatusForbidden, "FORBIDDEN", "access denied", detail)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func UserFromContext(ctx context.Context) (model.User, bool) {
	user, ok := ctx.Value(identityContextKey).(model.User)
	return user, ok
}

func writeDenied(w http.ResponseWriter, status int, code string, message string, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error: &model.APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}
