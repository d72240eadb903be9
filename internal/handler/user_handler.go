package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"photoshare/internal/middleware"
	"photoshare/internal/model"
	"photoshare/pkg/apierror"
)

// userDirectory covers the administrative user operations. Satisfied by
// repository.UserRepository.
type userDirectory interface {
	List(ctx context.Context) ([]model.PublicUser, error)
	UpdateRole(ctx context.Context, userID int64, role model.Role) error
	UpdateActive(ctx context.Context, userID int64, active bool) error
}

type UserHandler struct {
	users userDirectory
}

func NewUserHandler(users userDirectory) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, model.ErrUnauthenticated)
		return
	}

	writeSuccess(w, http.StatusOK, user.Public())
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, users)
}

// UpdateRole changes an account's role. The identity cache is deliberately
// left alone here: a cached snapshot stays authoritative until its TTL
// lapses, so a privilege change can take up to 900s to bite.
func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	userID, err := parseUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var payload model.UpdateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest))
		return
	}

	role, err := model.ParseRole(payload.Role)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.users.UpdateRole(r.Context(), userID, role); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"id": userID, "role": role})
}

// UpdateActive flips the ban flag. Same cache-staleness note as UpdateRole.
func (h *UserHandler) UpdateActive(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	userID, err := parseUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var payload model.UpdateActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest))
		return
	}

	if err := h.users.UpdateActive(r.Context(), userID, payload.Active); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"id": userID, "active": payload.Active})
}

func parseUserID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "user_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apierror.New("BAD_REQUEST", "invalid user id", raw, http.StatusBadRequest)
	}
	return id, nil
}
