// Package dashboard assembles the landing page: greeting, team widgets and
// the first-visit nickname prompt.
package dashboard

import (
	"context"
	"errors"
	"log"

	"swaft/internal/avatar"
	"swaft/internal/backend"
	"swaft/internal/model"
)

type Stat struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

type Member struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	AvatarURL string `json:"avatar_url"`
}

type ActivityType string

const (
	ActivityTask    ActivityType = "task"
	ActivityMeeting ActivityType = "meeting"
	ActivityUpdate  ActivityType = "update"
)

type Activity struct {
	ID    int          `json:"id"`
	Title string       `json:"title"`
	Time  string       `json:"time"`
	Type  ActivityType `json:"type"`
}

// Placeholder content until the team widgets get a backing store.
var (
	quickStats = []Stat{
		{Title: "Projets Actifs", Value: "99", Icon: "layout-grid", Color: "violet"},
		{Title: "Tâches", Value: "99", Icon: "check-square", Color: "emerald"},
		{Title: "Messages", Value: "99", Icon: "message-square", Color: "blue"},
		{Title: "JSP", Value: "", Icon: "message-square", Color: "amber"},
	}
	teamMembers = []Member{
		{ID: 1, Name: "Clarel", Role: "Développeur", AvatarURL: "https://images.unsplash.com/photo-1494790108377-be9c29b29330?w=150"},
		{ID: 2, Name: "Ylian", Role: "Sert a rien", AvatarURL: "https://images.unsplash.com/photo-1472099645785-5658abf4ff4e?w=150"},
		{ID: 3, Name: "Nathan", Role: "Designer UI/UX", AvatarURL: "https://images.unsplash.com/photo-1438761681033-6461ffad8d80?w=150"},
		{ID: 4, Name: "Theophile", Role: "Sert a rien v2", AvatarURL: "https://images.unsplash.com/photo-1438761681033-6461ffad8d80?w=150"},
	}
	recentActivities = []Activity{
		{ID: 1, Title: "Réunion équipe", Time: "14:00", Type: ActivityMeeting},
		{ID: 2, Title: "Mise à jour", Time: "11:30", Type: ActivityUpdate},
		{ID: 3, Title: "Review code", Time: "09:15", Type: ActivityTask},
	}
)

type View struct {
	User           *model.User `json:"user"`
	Nickname       string      `json:"nickname,omitempty"`
	DisplayName    string      `json:"display_name"`
	AvatarURL      string      `json:"avatar_url"`
	PromptNickname bool        `json:"prompt_nickname"`
	Stats          []Stat      `json:"stats"`
	Team           []Member    `json:"team"`
	Activities     []Activity  `json:"activities"`
	Error          string      `json:"error,omitempty"`
}

type Dashboard struct {
	backend *backend.Client
	avatars *avatar.Resolver
	prompts PromptTracker
}

func New(client *backend.Client, avatars *avatar.Resolver, prompts PromptTracker) *Dashboard {
	return &Dashboard{backend: client, avatars: avatars, prompts: prompts}
}

// Load builds the dashboard for s. Only a missing user is fatal; a failed
// profile lookup is reported in the view.
func (d *Dashboard) Load(ctx context.Context, s *model.Session) (*View, error) {
	if s == nil {
		return nil, backend.ErrNoSession
	}
	user, err := d.backend.Identity.GetUser(ctx, s)
	if err != nil {
		return nil, err
	}

	v := &View{
		User:       user,
		Stats:      append([]Stat(nil), quickStats...),
		Team:       make([]Member, len(teamMembers)),
		Activities: append([]Activity(nil), recentActivities...),
	}
	for i, m := range teamMembers {
		m.AvatarURL = d.avatars.Resolve(m.AvatarURL)
		v.Team[i] = m
	}

	p, err := d.backend.Profiles.GetProfile(ctx, user.ID)
	if err != nil && !errors.Is(err, backend.ErrNotFound) {
		log.Printf("❌ dashboard profile %s: %v", user.ID, err)
		v.Error = err.Error()
		v.DisplayName = user.FullName
		v.AvatarURL = d.avatars.Resolve(user.AvatarURL)
		return v, nil
	}
	if p == nil {
		p = &model.Profile{ID: user.ID}
	}

	v.Nickname = p.Nickname
	v.DisplayName = p.Nickname
	if v.DisplayName == "" {
		v.DisplayName = user.FullName
	}
	v.AvatarURL = d.avatars.Resolve(p.AvatarURL, user.AvatarURL)

	if !p.HasNickname() {
		first, err := d.prompts.MarkPrompted(ctx, s)
		if err != nil {
			// Asking twice beats never asking.
			log.Printf("❌ nickname prompt tracker: %v", err)
			first = true
		}
		v.PromptNickname = first
	}
	return v, nil
}

// SetNickname validates and stores the caller's nickname along with their
// OAuth avatar. Repeating the call with the same input is harmless.
func (d *Dashboard) SetNickname(ctx context.Context, s *model.Session, nickname string) (*model.Profile, error) {
	if s == nil {
		return nil, backend.ErrNoSession
	}
	nickname, err := model.NormalizeNickname(nickname)
	if err != nil {
		return nil, err
	}

	user, err := d.backend.Identity.GetUser(ctx, s)
	if err != nil {
		log.Printf("❌ set nickname: load user: %v", err)
		return nil, err
	}

	p := model.Profile{ID: user.ID, Nickname: nickname, AvatarURL: user.AvatarURL}
	if err := d.backend.Profiles.UpsertProfile(ctx, p); err != nil {
		log.Printf("❌ set nickname for %s: %v", user.ID, err)
		return nil, err
	}

	if err := d.prompts.Forget(ctx, s); err != nil {
		log.Printf("nickname prompt tracker: %v", err)
	}
	return &p, nil
}
