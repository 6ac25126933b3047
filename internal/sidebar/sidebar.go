// Package sidebar builds the navigation rail shown next to every app page.
package sidebar

import (
	"context"
	"errors"
	"log"

	"swaft/internal/avatar"
	"swaft/internal/backend"
	"swaft/internal/model"
)

// LoginRoute is where the client goes after signing out.
const LoginRoute = "/login"

const fallbackName = "User"

type Item struct {
	Label  string `json:"label"`
	Href   string `json:"href"`
	Icon   string `json:"icon"`
	Active bool   `json:"active"`
}

var navItems = []Item{
	{Label: "Accueil", Href: "/", Icon: "home"},
	{Label: "Calendrier", Href: "/calendar", Icon: "calendar"},
	{Label: "Équipe", Href: "/team", Icon: "users"},
	{Label: "Paramètres", Href: "/settings", Icon: "settings"},
}

type View struct {
	Items       []Item `json:"items"`
	Collapsed   bool   `json:"collapsed"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatar_url"`
	Error       string `json:"error,omitempty"`
}

// Toggle flips the collapsed flag. Nothing is persisted.
func (v *View) Toggle() {
	v.Collapsed = !v.Collapsed
}

// Items returns the navigation entries with path marked active.
func Items(path string) []Item {
	items := make([]Item, len(navItems))
	for i, it := range navItems {
		it.Active = it.Href == path
		items[i] = it
	}
	return items
}

type Sidebar struct {
	backend *backend.Client
	avatars *avatar.Resolver
}

func New(client *backend.Client, avatars *avatar.Resolver) *Sidebar {
	return &Sidebar{backend: client, avatars: avatars}
}

// Load fetches the user and profile once. Lookup failures leave the
// fallbacks in place and are reported in the view.
func (s *Sidebar) Load(ctx context.Context, session *model.Session, path string, collapsed bool) *View {
	v := &View{
		Items:       Items(path),
		Collapsed:   collapsed,
		DisplayName: fallbackName,
		AvatarURL:   s.avatars.Fallback(),
	}
	if session == nil {
		return v
	}

	user, err := s.backend.Identity.GetUser(ctx, session)
	if err != nil {
		log.Printf("❌ sidebar user: %v", err)
		v.Error = err.Error()
		return v
	}
	v.Email = user.Email

	p, err := s.backend.Profiles.GetProfile(ctx, user.ID)
	if err != nil && !errors.Is(err, backend.ErrNotFound) {
		log.Printf("❌ sidebar profile %s: %v", user.ID, err)
		v.Error = err.Error()
	}
	if p == nil {
		p = &model.Profile{}
	}

	switch {
	case p.Nickname != "":
		v.DisplayName = p.Nickname
	case user.FullName != "":
		v.DisplayName = user.FullName
	}
	v.AvatarURL = s.avatars.Resolve(p.AvatarURL, user.AvatarURL)
	return v
}

// Logout signs the session out and returns the route to show next.
func (s *Sidebar) Logout(ctx context.Context, session *model.Session) (string, error) {
	if err := s.backend.Identity.SignOut(ctx, session); err != nil {
		log.Printf("❌ Error logging out: %v", err)
		return "", err
	}
	return LoginRoute, nil
}
