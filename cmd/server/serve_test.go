package main

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"swaft/internal/auth"
	"swaft/internal/avatar"
	"swaft/internal/backend/memory"
	"swaft/internal/chat"
	"swaft/internal/dashboard"
	"swaft/internal/health"
	"swaft/internal/model"
	"swaft/internal/profile"
	"swaft/internal/session"
	"swaft/internal/sidebar"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter(t *testing.T) (http.Handler, *memory.Identity) {
	t.Helper()
	client, identity, store := memory.NewClient()
	avatars := avatar.NewResolver(avatar.DefaultDomains, "")
	return newRouter(handlers{
		health:    health.NewHandler(nil),
		auth:      auth.NewHandler(nil, false),
		session:   session.NewHandler(identity),
		dashboard: dashboard.NewHandler(dashboard.New(client, avatars, dashboard.NewMemoryPromptTracker())),
		profile:   profile.NewHandler(store),
		sidebar:   sidebar.NewHandler(sidebar.New(client, avatars), false),
		chat:      chat.NewHandler(client, avatars, time.Millisecond, nil),
		sessions:  identity,
	}), identity
}

func TestNewRouter_Routes(t *testing.T) {
	router, _ := testRouter(t)

	var routes []string
	err := chi.Walk(router.(chi.Routes), func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, method+" "+route)
		return nil
	})
	require.NoError(t, err)
	sort.Strings(routes)

	assert.Equal(t, []string{
		"DELETE /api/messages/{id}",
		"GET /api/dashboard",
		"GET /api/profile",
		"GET /api/rooms",
		"GET /api/rooms/{id}/messages",
		"GET /api/session",
		"GET /api/sidebar",
		"GET /auth/{provider}/callback",
		"GET /auth/{provider}/login",
		"GET /health",
		"GET /ws",
		"PATCH /api/messages/{id}",
		"POST /api/rooms/{id}/messages",
		"POST /auth/logout",
		"PUT /api/profile/nickname",
	}, routes)
}

func TestNewRouter_ProtectedRoutes(t *testing.T) {
	router, identity := testRouter(t)
	s := identity.SignIn(model.User{FullName: "Thomas Anderson"})

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"dashboard without session", "/api/dashboard", "", http.StatusUnauthorized},
		{"dashboard with session", "/api/dashboard", s.Token, http.StatusOK},
		{"rooms with session", "/api/rooms", s.Token, http.StatusOK},
		{"session is public", "/api/session", "", http.StatusOK},
		{"health is public", "/health", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: tt.token})
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
