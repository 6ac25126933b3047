package auth

import (
	"errors"
	"log"
	"net/http"
	"time"

	"swaft/internal/httpx"

	"github.com/go-chi/chi/v5"
)

// CookieName holds the session token for browser requests.
const CookieName = "session"

type Handler struct {
	provider *Provider
	secure   bool
}

func NewHandler(p *Provider, secureCookies bool) *Handler {
	return &Handler{provider: p, secure: secureCookies}
}

// Login redirects to the provider's consent page.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	target, err := h.provider.SignInWithOAuth(r.Context(), chi.URLParam(r, "provider"))
	if err != nil {
		if errors.Is(err, ErrUnknownProvider) {
			httpx.Error(w, http.StatusNotFound, err)
			return
		}
		log.Printf("❌ OAuth sign-in: %v", err)
		httpx.Error(w, http.StatusInternalServerError, errors.New("sign-in unavailable"))
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Callback completes the OAuth flow, stores the session cookie and sends the
// browser to the dashboard.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		// User declined consent: back to the login page.
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	s, err := h.provider.CompleteSignIn(r.Context(), chi.URLParam(r, "provider"), q.Get("state"), q.Get("code"))
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownProvider):
			httpx.Error(w, http.StatusNotFound, err)
		case errors.Is(err, ErrInvalidState):
			httpx.Error(w, http.StatusBadRequest, err)
		default:
			log.Printf("❌ OAuth callback: %v", err)
			httpx.Error(w, http.StatusBadGateway, errors.New("sign-in failed"))
		}
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ClearCookie expires the session cookie.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
