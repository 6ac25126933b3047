package memory

import (
	"context"
	"sync"
	"time"

	"swaft/internal/backend"
	"swaft/internal/model"

	"github.com/google/uuid"
)

// Identity keeps sessions in memory and notifies listeners synchronously.
type Identity struct {
	mu        sync.Mutex
	users     map[uuid.UUID]model.User
	sessions  map[string]model.Session
	listeners map[uuid.UUID]map[*authListener]bool
	ttl       time.Duration
	now       func() time.Time
}

type authListener struct {
	fn func(model.AuthEvent)
}

var _ backend.Identity = (*Identity)(nil)

func NewIdentity() *Identity {
	return &Identity{
		users:     make(map[uuid.UUID]model.User),
		sessions:  make(map[string]model.Session),
		listeners: make(map[uuid.UUID]map[*authListener]bool),
		ttl:       24 * time.Hour,
		now:       time.Now,
	}
}

// SignIn registers u and issues a session for it, emitting SIGNED_IN.
func (i *Identity) SignIn(u model.User) *model.Session {
	i.mu.Lock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	i.users[u.ID] = u
	s := model.Session{
		ID:        uuid.New(),
		UserID:    u.ID,
		Token:     uuid.NewString(),
		ExpiresAt: i.now().Add(i.ttl),
	}
	i.sessions[s.Token] = s
	fns := i.listenersLocked(u.ID)
	i.mu.Unlock()

	emit(fns, model.AuthEvent{Type: model.SignedIn, UserID: u.ID, SessionID: s.ID})
	return &s
}

func (i *Identity) GetSession(_ context.Context, token string) (*model.Session, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	s, ok := i.sessions[token]
	if !ok || !i.now().Before(s.ExpiresAt) {
		return nil, backend.ErrNoSession
	}
	return &s, nil
}

func (i *Identity) GetUser(_ context.Context, s *model.Session) (*model.User, error) {
	if s == nil {
		return nil, backend.ErrNoSession
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	u, ok := i.users[s.UserID]
	if !ok {
		return nil, backend.ErrNotFound
	}
	return &u, nil
}

func (i *Identity) SignInWithOAuth(_ context.Context, provider string) (string, error) {
	return "/auth/" + provider + "/callback?code=memory&state=memory", nil
}

func (i *Identity) SignOut(_ context.Context, s *model.Session) error {
	if s == nil {
		return backend.ErrNoSession
	}
	i.mu.Lock()
	delete(i.sessions, s.Token)
	fns := i.listenersLocked(s.UserID)
	i.mu.Unlock()

	emit(fns, model.AuthEvent{Type: model.SignedOut, UserID: s.UserID, SessionID: s.ID})
	return nil
}

func (i *Identity) OnAuthStateChange(_ context.Context, userID uuid.UUID, fn func(model.AuthEvent)) (backend.Subscription, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	l := &authListener{fn: fn}
	if i.listeners[userID] == nil {
		i.listeners[userID] = make(map[*authListener]bool)
	}
	i.listeners[userID][l] = true

	var once sync.Once
	return backend.SubscriptionFunc(func() {
		once.Do(func() {
			i.mu.Lock()
			defer i.mu.Unlock()
			delete(i.listeners[userID], l)
		})
	}), nil
}

// Listeners counts live auth subscriptions for userID.
func (i *Identity) Listeners(userID uuid.UUID) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.listeners[userID])
}

func (i *Identity) listenersLocked(userID uuid.UUID) []func(model.AuthEvent) {
	fns := make([]func(model.AuthEvent), 0, len(i.listeners[userID]))
	for l := range i.listeners[userID] {
		fns = append(fns, l.fn)
	}
	return fns
}

func emit(fns []func(model.AuthEvent), ev model.AuthEvent) {
	for _, fn := range fns {
		fn(ev)
	}
}

// NewClient bundles a fresh Identity and Store into a backend client.
func NewClient() (*backend.Client, *Identity, *Store) {
	id := NewIdentity()
	st := NewStore()
	return &backend.Client{
		Identity: id,
		Profiles: st,
		Rooms:    st,
		Messages: st,
		Feed:     st,
	}, id, st
}
