package router

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"photoshare/internal/config"
	"photoshare/internal/handler"
	"photoshare/internal/middleware"
	"photoshare/internal/model"
)

// Pinger is a liveness probe on a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

func New(
	cfg *config.Config,
	authMiddleware *middleware.AuthMiddleware,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	db Pinger,
	identityCache Pinger,
) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", healthHandler(db, identityCache))

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/register", authHandler.Register)
			auth.Post("/login", authHandler.Login)
			auth.Post("/refresh", authHandler.Refresh)
			auth.Get("/confirm/{token}", authHandler.ConfirmEmail)
		})

		api.Route("/users", func(users chi.Router) {
			users.Use(authMiddleware.RequireAuth)
			users.With(authMiddleware.RequireRole(model.RoleUser)).Get("/me", userHandler.Me)
			users.With(authMiddleware.RequireRole(model.RoleAdmin)).Get("/", userHandler.List)
			users.With(authMiddleware.RequireRole(model.RoleAdmin)).Patch("/{user_id}/role", userHandler.UpdateRole)
			users.With(authMiddleware.RequireRole(model.RoleModerator)).Patch("/{user_id}/active", userHandler.UpdateActive)
		})
	})

	return r
}

// healthHandler reports database and cache liveness. The database is
// load-bearing, so its failure turns the probe unhealthy; the cache only
// degrades resolve latency, so its failure is reported but not fatal.
func healthHandler(db Pinger, identityCache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		checks := map[string]string{"database": "ok", "cache": "ok"}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := identityCache.Ping(r.Context()); err != nil {
			checks["cache"] = err.Error()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(model.APIResponse{
			Success: status == http.StatusOK,
			Data:    checks,
		})
	}
}
