package session

import (
	"net/http"

	"swaft/internal/backend"
	"swaft/internal/httpx"
	myMiddleware "swaft/internal/middleware"
	"swaft/internal/model"
)

type Handler struct {
	identity backend.Identity
}

func NewHandler(identity backend.Identity) *Handler {
	return &Handler{identity: identity}
}

type sessionResponse struct {
	Shell   Shell          `json:"shell"`
	Session *model.Session `json:"session,omitempty"`
	User    *model.User    `json:"user,omitempty"`
}

// Get reports which shell the caller should see. It never fails: an unknown
// or broken session is just the login shell.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	s := Resolve(r.Context(), h.identity, myMiddleware.TokenFromRequest(r))
	resp := sessionResponse{Shell: shellFor(s), Session: s}
	if s != nil {
		u, err := h.identity.GetUser(r.Context(), s)
		if err != nil {
			// The token checks out but the user row is gone.
			resp = sessionResponse{Shell: ShellLogin}
		} else {
			resp.User = u
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}
