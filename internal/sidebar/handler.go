package sidebar

import (
	"net/http"
	"strconv"

	"swaft/internal/auth"
	"swaft/internal/httpx"
	myMiddleware "swaft/internal/middleware"
	"swaft/internal/session"
)

type Handler struct {
	sidebar *Sidebar
	secure  bool
}

func NewHandler(s *Sidebar, secureCookies bool) *Handler {
	return &Handler{sidebar: s, secure: secureCookies}
}

// Get renders the sidebar for ?path= with the ?collapsed= flag echoed back.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	s, _ := myMiddleware.SessionFrom(r.Context())
	collapsed, _ := strconv.ParseBool(r.URL.Query().Get("collapsed"))
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}
	httpx.JSON(w, http.StatusOK, h.sidebar.Load(r.Context(), s, path, collapsed))
}

// Logout signs out the caller's session, if any, and sends them to the
// login page.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	identity := h.sidebar.backend.Identity
	if s := session.Resolve(r.Context(), identity, myMiddleware.TokenFromRequest(r)); s != nil {
		if _, err := h.sidebar.Logout(r.Context(), s); err != nil {
			httpx.Fail(w, "logout", err)
			return
		}
	}
	auth.ClearCookie(w, h.secure)
	http.Redirect(w, r, LoginRoute, http.StatusSeeOther)
}
