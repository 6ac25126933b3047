package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"swaft/internal/avatar"
	"swaft/internal/backend"
	"swaft/internal/httpx"
	myMiddleware "swaft/internal/middleware"
	"swaft/internal/model"
	"swaft/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

type Handler struct {
	backend    *backend.Client
	avatars    *avatar.Resolver
	mountDelay time.Duration
	upgrader   *websocket.Upgrader
}

// NewHandler serves the chat routes. Websocket upgrades from a browser must
// come from the serving host or one of origins.
func NewHandler(client *backend.Client, avatars *avatar.Resolver, mountDelay time.Duration, origins []string) *Handler {
	return &Handler{
		backend:    client,
		avatars:    avatars,
		mountDelay: mountDelay,
		upgrader:   newUpgrader(origins),
	}
}

// ServeWs runs one chat widget over a websocket until either side goes away
// or the session is signed out.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	token := myMiddleware.TokenFromRequest(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	client := NewClient(conn)

	g, ctx := errgroup.WithContext(r.Context())
	widgetCtx, stopWidget := context.WithCancel(ctx)
	defer stopWidget()
	var signedOut atomic.Bool

	gate := session.NewGate(h.backend.Identity, token)
	gate.OnChange(func(shell session.Shell, _ *model.Session) {
		if shell == session.ShellLogin {
			signedOut.Store(true)
			stopWidget()
		}
	})
	gate.Start(ctx)
	defer gate.Close()

	g.Go(client.WritePump)

	current := gate.Session()
	if current == nil {
		client.Queue(ctx, Frame{Type: "session", Shell: session.ShellLogin})
		close(client.Send)
		g.Wait()
		return
	}

	commands := make(chan Command)
	g.Go(func() error { return client.ReadPump(ctx, commands) })
	g.Go(func() error {
		defer close(client.Send)

		client.Queue(ctx, Frame{Type: "session", Shell: session.ShellApp, Session: current})
		widget := NewWidget(h.backend, h.avatars, current, h.mountDelay)
		err := widget.Run(widgetCtx, commands, func(s State) {
			client.Queue(ctx, Frame{Type: "state", State: &s})
		})
		if signedOut.Load() {
			client.Queue(ctx, Frame{Type: "session", Shell: session.ShellLogin})
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errConnClosed) {
		log.Printf("❌ websocket: %v", err)
	}
}

// ---------------------------------------------
// REST
// ---------------------------------------------

func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	t := model.RoomType(r.URL.Query().Get("type"))
	if t == "" {
		t = model.RoomPublic
	}
	if !t.Valid() {
		httpx.Error(w, http.StatusBadRequest, errors.New("type must be public or private"))
		return
	}

	rooms, err := h.backend.Rooms.ListRooms(r.Context(), t)
	if err != nil {
		httpx.Fail(w, "list rooms", err)
		return
	}
	if rooms == nil {
		rooms = []model.Room{}
	}
	httpx.JSON(w, http.StatusOK, rooms)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, errors.New("invalid room id"))
		return
	}
	private, err := parseBool(r.URL.Query().Get("private"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, errors.New("private must be a boolean"))
		return
	}

	msgs, err := h.backend.Messages.ListMessages(r.Context(), roomID, private)
	if err != nil {
		httpx.Fail(w, "list messages", err)
		return
	}
	out := make([]model.Message, len(msgs))
	for i, m := range msgs {
		out[i] = presentMessage(h.avatars, m)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

type messageRequest struct {
	Content string `json:"content"`
	Private bool   `json:"private"`
}

func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	s, ok := myMiddleware.SessionFrom(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, ErrNotAuthenticated)
		return
	}
	roomID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, errors.New("invalid room id"))
		return
	}
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	content, err := model.NormalizeContent(req.Content)
	if err != nil {
		httpx.Fail(w, "send message", err)
		return
	}

	msg, err := h.backend.Messages.InsertMessage(r.Context(), model.NewMessage{
		RoomID:  roomID,
		UserID:  s.UserID,
		Content: content,
		Private: req.Private,
	})
	if err != nil {
		httpx.Fail(w, "send message", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, presentMessage(h.avatars, *msg))
}

// EditMessage only touches the caller's own messages; anything else is a 404.
func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	s, ok := myMiddleware.SessionFrom(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, ErrNotAuthenticated)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, errors.New("invalid message id"))
		return
	}
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	content, err := model.NormalizeContent(req.Content)
	if err != nil {
		httpx.Fail(w, "edit message", err)
		return
	}

	msg, err := h.backend.Messages.UpdateMessageContent(r.Context(), id, s.UserID, content)
	if err != nil {
		httpx.Fail(w, "edit message", err)
		return
	}
	httpx.JSON(w, http.StatusOK, presentMessage(h.avatars, *msg))
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	s, ok := myMiddleware.SessionFrom(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, ErrNotAuthenticated)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, errors.New("invalid message id"))
		return
	}

	if err := h.backend.Messages.DeleteMessage(r.Context(), id, s.UserID); err != nil {
		httpx.Fail(w, "delete message", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
