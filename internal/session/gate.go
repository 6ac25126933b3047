// Package session decides whether a connection sees the app or the login
// screen and follows sign-in/sign-out events for it.
package session

import (
	"context"
	"log"
	"slices"
	"sync"

	"swaft/internal/backend"
	"swaft/internal/model"
)

type Shell string

const (
	ShellApp   Shell = "app"
	ShellLogin Shell = "login"
)

func shellFor(s *model.Session) Shell {
	if s == nil {
		return ShellLogin
	}
	return ShellApp
}

// Resolve fetches the session for token once. Any failure means no session.
func Resolve(ctx context.Context, identity backend.Identity, token string) *model.Session {
	if token == "" {
		return nil
	}
	s, err := identity.GetSession(ctx, token)
	if err != nil {
		log.Printf("session lookup: %v", err)
		return nil
	}
	return s
}

// Gate tracks the session of one long-lived connection.
type Gate struct {
	identity backend.Identity
	token    string

	mu        sync.Mutex
	ctx       context.Context
	session   *model.Session
	sub       backend.Subscription
	gen       uint64
	observers []func(Shell, *model.Session)
}

func NewGate(identity backend.Identity, token string) *Gate {
	return &Gate{identity: identity, token: token}
}

// Start fetches the session and, when there is one, follows auth events for
// its user until Close. There is no retry: a failed fetch leaves the gate on
// the login shell. The session is read again once the subscription is live so
// a sign-out landing between the two is not lost.
func (g *Gate) Start(ctx context.Context) {
	s := Resolve(ctx, g.identity, g.token)

	g.mu.Lock()
	g.ctx = ctx
	g.session = s
	g.mu.Unlock()

	if s == nil {
		return
	}
	sub, err := g.identity.OnAuthStateChange(ctx, s.UserID, g.onAuthEvent)
	if err != nil {
		log.Printf("❌ auth events for %s: %v", s.UserID, err)
		return
	}
	g.mu.Lock()
	g.sub = sub
	gen := g.gen
	g.mu.Unlock()

	g.reload(ctx, gen)
}

// Close releases the auth subscription. It is safe to call more than once.
func (g *Gate) Close() {
	g.mu.Lock()
	sub := g.sub
	g.sub = nil
	g.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

func (g *Gate) Session() *model.Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session
}

func (g *Gate) Shell() Shell {
	return shellFor(g.Session())
}

// OnChange registers fn for session changes. fn may run on any goroutine and
// must not block.
func (g *Gate) OnChange(fn func(Shell, *model.Session)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observers = append(g.observers, fn)
}

// onAuthEvent drops the cached session on every auth change. A sign-out of
// this gate's own session clears it at once; anything else re-reads it.
func (g *Gate) onAuthEvent(ev model.AuthEvent) {
	g.mu.Lock()
	g.gen++
	ctx, current, gen := g.ctx, g.session, g.gen
	if ev.Type == model.SignedOut && current != nil && current.ID == ev.SessionID {
		g.session = nil
		g.mu.Unlock()
		g.notify(nil)
		return
	}
	g.mu.Unlock()
	if ctx == nil {
		return
	}
	go g.reload(ctx, gen)
}

// reload re-reads the session and notifies observers when it changed. A read
// overtaken by a newer auth event is dropped.
func (g *Gate) reload(ctx context.Context, gen uint64) {
	s := Resolve(ctx, g.identity, g.token)
	if ctx.Err() != nil {
		return
	}
	g.mu.Lock()
	if g.gen != gen || sameSession(g.session, s) {
		g.mu.Unlock()
		return
	}
	g.session = s
	g.mu.Unlock()
	g.notify(s)
}

func sameSession(a, b *model.Session) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

func (g *Gate) notify(s *model.Session) {
	g.mu.Lock()
	observers := slices.Clone(g.observers)
	g.mu.Unlock()
	for _, fn := range observers {
		fn(shellFor(s), s)
	}
}
