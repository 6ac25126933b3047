package profile

import (
	"errors"
	"net/http"

	"swaft/internal/backend"
	"swaft/internal/httpx"
	myMiddleware "swaft/internal/middleware"
	"swaft/internal/model"
)

type Handler struct {
	profiles backend.ProfileStore
}

func NewHandler(profiles backend.ProfileStore) *Handler {
	return &Handler{profiles: profiles}
}

// Get returns the caller's profile; a user who never picked a nickname gets
// an empty profile rather than a 404.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := myMiddleware.SessionFrom(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, backend.ErrNoSession)
		return
	}

	p, err := h.profiles.GetProfile(r.Context(), s.UserID)
	if errors.Is(err, backend.ErrNotFound) {
		p, err = &model.Profile{ID: s.UserID}, nil
	}
	if err != nil {
		httpx.Fail(w, "load profile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}
