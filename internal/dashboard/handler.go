package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"

	"swaft/internal/backend"
	"swaft/internal/httpx"
	myMiddleware "swaft/internal/middleware"
)

type Handler struct {
	dashboard *Dashboard
}

func NewHandler(d *Dashboard) *Handler {
	return &Handler{dashboard: d}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := myMiddleware.SessionFrom(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, backend.ErrNoSession)
		return
	}

	v, err := h.dashboard.Load(r.Context(), s)
	if err != nil {
		httpx.Fail(w, "load dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

type nicknameRequest struct {
	Nickname string `json:"nickname"`
}

// SetNickname answers the nickname modal. Any error keeps the modal open on
// the client, which shows the message.
func (h *Handler) SetNickname(w http.ResponseWriter, r *http.Request) {
	s, ok := myMiddleware.SessionFrom(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, backend.ErrNoSession)
		return
	}

	var req nicknameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	p, err := h.dashboard.SetNickname(r.Context(), s, req.Nickname)
	if err != nil {
		httpx.Fail(w, "save nickname", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}
