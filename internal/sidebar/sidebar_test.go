package sidebar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"swaft/internal/auth"
	"swaft/internal/avatar"
	"swaft/internal/backend"
	"swaft/internal/backend/memory"
	"swaft/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItems(t *testing.T) {
	items := Items("/team")
	require.Len(t, items, 4)
	var active []string
	for _, it := range items {
		if it.Active {
			active = append(active, it.Href)
		}
	}
	assert.Equal(t, []string{"/team"}, active)
	assert.Equal(t, "Accueil", items[0].Label)
	assert.False(t, navItems[2].Active, "package items stay untouched")
}

func TestView_Toggle(t *testing.T) {
	v := &View{}
	v.Toggle()
	assert.True(t, v.Collapsed)
	v.Toggle()
	assert.False(t, v.Collapsed)
}

func TestLoad_DisplayFallbacks(t *testing.T) {
	tests := []struct {
		name       string
		user       model.User
		profile    *model.Profile
		wantName   string
		wantAvatar string
	}{
		{
			name:       "nickname and profile avatar",
			user:       model.User{FullName: "Thomas Anderson", AvatarURL: "https://cdn.discordapp.com/a.png"},
			profile:    &model.Profile{Nickname: "neo", AvatarURL: "https://randomuser.me/p.jpg"},
			wantName:   "neo",
			wantAvatar: "https://randomuser.me/p.jpg",
		},
		{
			name:       "full name and oauth avatar",
			user:       model.User{FullName: "Thomas Anderson", AvatarURL: "https://cdn.discordapp.com/a.png"},
			wantName:   "Thomas Anderson",
			wantAvatar: "https://cdn.discordapp.com/a.png",
		},
		{
			name:       "nothing known",
			user:       model.User{Email: "anon@example.com"},
			profile:    &model.Profile{},
			wantName:   "User",
			wantAvatar: avatar.DefaultURL,
		},
		{
			name:       "disallowed host",
			user:       model.User{AvatarURL: "https://evil.example/a.png"},
			wantName:   "User",
			wantAvatar: avatar.DefaultURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, identity, store := memory.NewClient()
			s := identity.SignIn(tt.user)
			if tt.profile != nil {
				p := *tt.profile
				p.ID = s.UserID
				store.PutProfile(p)
			}

			v := New(client, avatar.NewResolver(avatar.DefaultDomains, "")).Load(context.Background(), s, "/", false)
			assert.Equal(t, tt.wantName, v.DisplayName)
			assert.Equal(t, tt.wantAvatar, v.AvatarURL)
			assert.Empty(t, v.Error)
		})
	}
}

func TestLoad_ProfileFailure(t *testing.T) {
	client, identity, store := memory.NewClient()
	s := identity.SignIn(model.User{FullName: "Thomas Anderson"})
	store.FailNext("get_profile", errors.New("db down"))

	v := New(client, avatar.NewResolver(nil, "")).Load(context.Background(), s, "/", true)
	assert.Equal(t, "db down", v.Error)
	assert.Equal(t, "Thomas Anderson", v.DisplayName)
	assert.True(t, v.Collapsed)
}

func TestLogout(t *testing.T) {
	client, identity, _ := memory.NewClient()
	s := identity.SignIn(model.User{Email: "neo@example.com"})
	sb := New(client, avatar.NewResolver(nil, ""))

	var events []model.AuthEventType
	_, err := identity.OnAuthStateChange(context.Background(), s.UserID, func(ev model.AuthEvent) {
		events = append(events, ev.Type)
	})
	require.NoError(t, err)

	route, err := sb.Logout(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, LoginRoute, route)
	assert.Equal(t, []model.AuthEventType{model.SignedOut}, events)

	_, err = identity.GetSession(context.Background(), s.Token)
	assert.ErrorIs(t, err, backend.ErrNoSession)

	_, err = sb.Logout(context.Background(), nil)
	assert.ErrorIs(t, err, backend.ErrNoSession)
}

func TestHandler_Logout(t *testing.T) {
	client, identity, _ := memory.NewClient()
	s := identity.SignIn(model.User{Email: "neo@example.com"})
	h := NewHandler(New(client, avatar.NewResolver(nil, "")), false)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: s.Token})
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, LoginRoute, rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.CookieName, cookies[0].Name)
	assert.Negative(t, cookies[0].MaxAge)

	_, err := identity.GetSession(context.Background(), s.Token)
	assert.Error(t, err)
}

func TestHandler_Get(t *testing.T) {
	client, _, _ := memory.NewClient()
	h := NewHandler(New(client, avatar.NewResolver(nil, "")), false)

	rec := httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/sidebar?path=/calendar&collapsed=true", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"collapsed":true`)
	assert.Contains(t, rec.Body.String(), `"display_name":"User"`)
}
