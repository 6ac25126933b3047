package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"swaft/internal/backend"
	"swaft/internal/backend/memory"
	"swaft/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_Start(t *testing.T) {
	identity := memory.NewIdentity()
	s := identity.SignIn(model.User{Email: "neo@example.com"})

	tests := []struct {
		name      string
		token     string
		shell     Shell
		listeners int
	}{
		{"valid session", s.Token, ShellApp, 1},
		{"unknown token", "nope", ShellLogin, 0},
		{"no token", "", ShellLogin, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(identity, tt.token)
			g.Start(context.Background())
			assert.Equal(t, tt.shell, g.Shell())
			assert.Equal(t, tt.listeners, identity.Listeners(s.UserID))

			g.Close()
			g.Close()
			assert.Zero(t, identity.Listeners(s.UserID))
		})
	}
}

func TestGate_SignOutSwitchesToLogin(t *testing.T) {
	identity := memory.NewIdentity()
	s := identity.SignIn(model.User{Email: "neo@example.com"})

	g := NewGate(identity, s.Token)
	g.Start(context.Background())
	defer g.Close()

	var shells []Shell
	g.OnChange(func(shell Shell, _ *model.Session) { shells = append(shells, shell) })

	require.NoError(t, identity.SignOut(context.Background(), s))
	assert.Equal(t, ShellLogin, g.Shell())
	assert.Nil(t, g.Session())
	assert.Equal(t, []Shell{ShellLogin}, shells)
}

func TestGate_OtherSessionSignOutIsIgnored(t *testing.T) {
	identity := memory.NewIdentity()
	u := model.User{Email: "neo@example.com"}
	s := identity.SignIn(u)
	u.ID = s.UserID
	other := identity.SignIn(u)

	g := NewGate(identity, s.Token)
	g.Start(context.Background())
	defer g.Close()

	var changed atomic.Bool
	g.OnChange(func(Shell, *model.Session) { changed.Store(true) })

	require.NoError(t, identity.SignOut(context.Background(), other))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, ShellApp, g.Shell())
	assert.False(t, changed.Load())
}

// hookedIdentity lets a test act between the first session read and the
// auth subscription, and make later reads fail.
type hookedIdentity struct {
	*memory.Identity
	beforeSubscribe func()
	lost            atomic.Bool
}

func (h *hookedIdentity) GetSession(ctx context.Context, token string) (*model.Session, error) {
	if h.lost.Load() {
		return nil, errors.New("session store unavailable")
	}
	return h.Identity.GetSession(ctx, token)
}

func (h *hookedIdentity) OnAuthStateChange(ctx context.Context, userID uuid.UUID, fn func(model.AuthEvent)) (backend.Subscription, error) {
	if h.beforeSubscribe != nil {
		h.beforeSubscribe()
	}
	return h.Identity.OnAuthStateChange(ctx, userID, fn)
}

func TestGate_SignOutBeforeSubscribeIsNotLost(t *testing.T) {
	ctx := context.Background()
	identity := &hookedIdentity{Identity: memory.NewIdentity()}
	s := identity.SignIn(model.User{Email: "neo@example.com"})
	identity.beforeSubscribe = func() {
		require.NoError(t, identity.SignOut(ctx, s))
	}

	g := NewGate(identity, s.Token)
	var shells []Shell
	g.OnChange(func(shell Shell, _ *model.Session) { shells = append(shells, shell) })
	g.Start(ctx)
	defer g.Close()

	assert.Equal(t, ShellLogin, g.Shell())
	assert.Nil(t, g.Session())
	assert.Equal(t, []Shell{ShellLogin}, shells)
}

func TestGate_SignInRereadsCachedSession(t *testing.T) {
	identity := &hookedIdentity{Identity: memory.NewIdentity()}
	u := model.User{Email: "neo@example.com"}
	s := identity.SignIn(u)
	u.ID = s.UserID

	g := NewGate(identity, s.Token)
	g.Start(context.Background())
	defer g.Close()
	require.Equal(t, ShellApp, g.Shell())

	changes := make(chan Shell, 1)
	g.OnChange(func(shell Shell, _ *model.Session) { changes <- shell })

	identity.lost.Store(true)
	identity.SignIn(u)

	select {
	case shell := <-changes:
		assert.Equal(t, ShellLogin, shell)
	case <-time.After(time.Second):
		t.Fatal("cached session was not re-read")
	}
	assert.Nil(t, g.Session())
}

func TestGate_UnrelatedEventKeepsSession(t *testing.T) {
	identity := memory.NewIdentity()
	u := model.User{Email: "neo@example.com"}
	s := identity.SignIn(u)
	u.ID = s.UserID

	g := NewGate(identity, s.Token)
	g.Start(context.Background())
	defer g.Close()

	var changed atomic.Bool
	g.OnChange(func(Shell, *model.Session) { changed.Store(true) })

	identity.SignIn(u)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, s.ID, g.Session().ID)
	assert.False(t, changed.Load())
}

func TestHandler_Get(t *testing.T) {
	identity := memory.NewIdentity()
	s := identity.SignIn(model.User{Email: "neo@example.com", FullName: "Thomas Anderson"})
	h := NewHandler(identity)

	tests := []struct {
		name  string
		auth  string
		shell Shell
	}{
		{"signed in", "Bearer " + s.Token, ShellApp},
		{"bad token", "Bearer nope", ShellLogin},
		{"anonymous", "", ShellLogin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			h.Get(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			var resp sessionResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.shell, resp.Shell)
			if tt.shell == ShellApp {
				require.NotNil(t, resp.User)
				assert.Equal(t, "Thomas Anderson", resp.User.FullName)
			} else {
				assert.Nil(t, resp.Session)
			}
		})
	}
}
