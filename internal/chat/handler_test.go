package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"swaft/internal/avatar"
	myMiddleware "swaft/internal/middleware"
	"swaft/internal/model"
	"swaft/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(f *fixture) http.Handler {
	h := NewHandler(f.client, avatar.NewResolver(avatar.DefaultDomains, ""), time.Millisecond, []string{"https://app.example.com"})
	auth := myMiddleware.NewAuthMiddleware(f.client.Identity)

	r := chi.NewRouter()
	r.Get("/ws", h.ServeWs)
	r.Group(func(r chi.Router) {
		r.Use(auth.Handle)
		r.Get("/api/rooms", h.ListRooms)
		r.Get("/api/rooms/{id}/messages", h.ListMessages)
		r.Post("/api/rooms/{id}/messages", h.PostMessage)
		r.Patch("/api/messages/{id}", h.EditMessage)
		r.Delete("/api/messages/{id}", h.DeleteMessage)
	})
	return r
}

func do(t *testing.T, router http.Handler, token, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_ListRooms(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)

	tests := []struct {
		name   string
		query  string
		status int
		rooms  []string
	}{
		{"default is public", "", http.StatusOK, []string{"general", "random"}},
		{"private", "?type=private", http.StatusOK, []string{"staff"}},
		{"bad type", "?type=secret", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, f.session.Token, http.MethodGet, "/api/rooms"+tt.query, "")
			require.Equal(t, tt.status, rec.Code)
			if tt.status != http.StatusOK {
				return
			}
			var rooms []model.Room
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rooms))
			var names []string
			for _, r := range rooms {
				names = append(names, r.Name)
			}
			assert.Equal(t, tt.rooms, names)
		})
	}
}

func TestHandler_RequiresSession(t *testing.T) {
	f := newFixture(t)
	rec := do(t, newRouter(f), "", http.MethodGet, "/api/rooms", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_MessageRoutes(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)
	base := "/api/rooms/" + f.general.ID.String() + "/messages"

	rec := do(t, router, f.session.Token, http.MethodPost, base, `{"content":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, f.session.Token, http.MethodPost, base, `{"content":" Hello\nworld "}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created model.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Hello\nworld", created.Content)
	assert.Equal(t, "neo", created.Author.Nickname)

	rec = do(t, router, f.session.Token, http.MethodGet, base+"?private=false", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	missing := "/api/rooms/" + uuid.NewString() + "/messages"
	rec = do(t, router, f.session.Token, http.MethodPost, missing, `{"content":"anyone there?"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, f.session.Token, http.MethodGet, base+"?private=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	msgPath := "/api/messages/" + created.ID.String()
	rec = do(t, router, f.session.Token, http.MethodPatch, msgPath, `{"content":"edited"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	stored, _ := f.store.Message(created.ID)
	assert.Equal(t, "edited", stored.Content)

	// Someone else cannot touch it.
	intruder := f.identity.SignIn(model.User{Email: "smith@example.com"})
	rec = do(t, router, intruder.Token, http.MethodPatch, msgPath, `{"content":"hijack"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, router, intruder.Token, http.MethodDelete, msgPath, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, f.session.Token, http.MethodDelete, msgPath, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok := f.store.Message(created.ID)
	assert.False(t, ok)

	rec = do(t, router, f.session.Token, http.MethodDelete, "/api/messages/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// readFrames reads one websocket message and splits the frames it carries.
func readFrames(t *testing.T, conn *websocket.Conn) []Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var frames []Frame
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		var f Frame
		require.NoError(t, json.Unmarshal(line, &f))
		frames = append(frames, f)
	}
	return frames
}

// waitFrame reads until match accepts a frame.
func waitFrame(t *testing.T, conn *websocket.Conn, match func(Frame) bool) Frame {
	t.Helper()
	for {
		for _, f := range readFrames(t, conn) {
			if match(f) {
				return f
			}
		}
	}
}

func dial(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServeWs_ChatSession(t *testing.T) {
	f := newFixture(t)
	server := httptest.NewServer(newRouter(f))
	defer server.Close()
	conn := dial(t, server, f.session.Token)

	hello := waitFrame(t, conn, func(fr Frame) bool { return fr.Type == "session" })
	assert.Equal(t, session.ShellApp, hello.Shell)

	initial := waitFrame(t, conn, func(fr Frame) bool { return fr.Type == "state" })
	require.NotNil(t, initial.State.ActiveRoom)
	assert.Equal(t, f.general.ID, initial.State.ActiveRoom.ID)

	require.NoError(t, conn.WriteJSON(Command{Type: "send", Content: "Hello\nworld"}))
	got := waitFrame(t, conn, func(fr Frame) bool {
		return fr.Type == "state" && len(fr.State.Messages) == 1
	})
	assert.Equal(t, "Hello\nworld", got.State.Messages[0].Content)

	// Signing out elsewhere ends the chat on this connection.
	require.NoError(t, f.identity.SignOut(context.Background(), f.session))
	bye := waitFrame(t, conn, func(fr Frame) bool { return fr.Type == "session" })
	assert.Equal(t, session.ShellLogin, bye.Shell)

	require.Eventually(t, func() bool {
		return f.store.Subscribers(f.general.ID) == 0 && f.identity.Listeners(f.session.UserID) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServeWs_WithoutSession(t *testing.T) {
	f := newFixture(t)
	server := httptest.NewServer(newRouter(f))
	defer server.Close()
	conn := dial(t, server, "bogus")

	frames := readFrames(t, conn)
	require.Len(t, frames, 1)
	assert.Equal(t, "session", frames[0].Type)
	assert.Equal(t, session.ShellLogin, frames[0].Shell)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestServeWs_CheckOrigin(t *testing.T) {
	f := newFixture(t)
	server := httptest.NewServer(newRouter(f))
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + f.session.Token

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{"no origin", "", true},
		{"same origin", server.URL, true},
		{"listed origin", "https://App.example.com/", true},
		{"foreign origin", "https://evil.example", false},
		{"garbage origin", "::", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(url, header)
			if tt.ok {
				require.NoError(t, err)
				conn.Close()
				return
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}

func TestServeWs_UnknownRoomKeepsConnection(t *testing.T) {
	f := newFixture(t)
	server := httptest.NewServer(newRouter(f))
	defer server.Close()
	conn := dial(t, server, f.session.Token)

	waitFrame(t, conn, func(fr Frame) bool { return fr.Type == "state" })
	require.NoError(t, conn.WriteJSON(Command{Type: "room", RoomID: uuid.New()}))
	got := waitFrame(t, conn, func(fr Frame) bool { return fr.Type == "state" && fr.State.Error != "" })
	assert.Equal(t, f.general.ID, got.State.ActiveRoom.ID)
}
