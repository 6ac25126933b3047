package myMiddleware

import (
	"context"
	"net/http"
	"strings"

	"swaft/internal/auth"
	"swaft/internal/model"
)

// 1. Context Keys
type contextKey string

const SessionKey contextKey = "session"

// 2. What we need from the identity provider
type SessionValidator interface {
	GetSession(ctx context.Context, token string) (*model.Session, error)
}

// 3. The Middleware Structure
type AuthMiddleware struct {
	validator SessionValidator
}

func NewAuthMiddleware(v SessionValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

// TokenFromRequest looks for the session token in the Authorization header,
// then the session cookie, then the token query param (WebSocket clients).
func TokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if c, err := r.Cookie(auth.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

// 4. The actual Handler
func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := TokenFromRequest(r)
		if tokenString == "" {
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}

		session, err := am.validator.GetSession(r.Context(), tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), SessionKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionFrom returns the session injected by Handle.
func SessionFrom(ctx context.Context) (*model.Session, bool) {
	s, ok := ctx.Value(SessionKey).(*model.Session)
	return s, ok && s != nil
}

// WithSession is used by tests and by handlers that resolve the session
// themselves.
func WithSession(ctx context.Context, s *model.Session) context.Context {
	return context.WithValue(ctx, SessionKey, s)
}
