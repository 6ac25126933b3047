package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"swaft/internal/backend"
	"swaft/internal/model"
	"swaft/internal/user"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrUnknownProvider = errors.New("unknown oauth provider")
	ErrInvalidState    = errors.New("invalid or expired oauth state")
)

const stateTTL = 10 * time.Minute

// UserStore is the slice of the user repository the provider needs.
type UserStore interface {
	UpsertIdentity(ctx context.Context, id user.Identity) (*model.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// Provider is the identity/session backend: OAuth sign-in, JWT sessions,
// revocation and auth-change notifications over Redis.
type Provider struct {
	users     UserStore
	sessions  *SessionManager
	redis     *redis.Client
	providers map[string]OAuthProvider
}

var _ backend.Identity = (*Provider)(nil)

func NewProvider(users UserStore, sessions *SessionManager, redisClient *redis.Client, providers ...OAuthProvider) *Provider {
	p := &Provider{
		users:     users,
		sessions:  sessions,
		redis:     redisClient,
		providers: make(map[string]OAuthProvider, len(providers)),
	}
	for _, op := range providers {
		p.providers[op.Name()] = op
	}
	return p
}

func stateKey(state string) string         { return "oauth:state:" + state }
func revokedKey(sessionID uuid.UUID) string { return "session:revoked:" + sessionID.String() }
func authChannel(userID uuid.UUID) string   { return "auth:" + userID.String() }

// SignInWithOAuth starts the authorization-code flow and returns the URL the
// browser must be sent to.
func (p *Provider) SignInWithOAuth(ctx context.Context, provider string) (string, error) {
	op, ok := p.providers[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	state := uuid.NewString()
	if err := p.redis.Set(ctx, stateKey(state), provider, stateTTL).Err(); err != nil {
		return "", fmt.Errorf("store oauth state: %w", err)
	}
	return op.AuthCodeURL(state), nil
}

// CompleteSignIn finishes the flow started by SignInWithOAuth.
func (p *Provider) CompleteSignIn(ctx context.Context, provider, state, code string) (*model.Session, error) {
	op, ok := p.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	// State is single use.
	stored, err := p.redis.GetDel(ctx, stateKey(state)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrInvalidState
		}
		return nil, fmt.Errorf("load oauth state: %w", err)
	}
	if stored != provider {
		return nil, ErrInvalidState
	}

	identity, err := op.Identify(ctx, code)
	if err != nil {
		return nil, err
	}

	u, err := p.users.UpsertIdentity(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	s, err := p.sessions.Issue(u.ID)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	p.publish(ctx, model.AuthEvent{Type: model.SignedIn, UserID: u.ID, SessionID: s.ID})
	return s, nil
}

func (p *Provider) GetSession(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, backend.ErrNoSession
	}
	s, err := p.sessions.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", backend.ErrNoSession, err)
	}

	revoked, err := p.redis.Exists(ctx, revokedKey(s.ID)).Result()
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked > 0 {
		return nil, backend.ErrNoSession
	}
	return s, nil
}

func (p *Provider) GetUser(ctx context.Context, s *model.Session) (*model.User, error) {
	if s == nil {
		return nil, backend.ErrNoSession
	}
	return p.users.GetByID(ctx, s.UserID)
}

// SignOut revokes the session for the rest of its lifetime.
func (p *Provider) SignOut(ctx context.Context, s *model.Session) error {
	if s == nil {
		return backend.ErrNoSession
	}
	ttl := s.Remaining(time.Now())
	if ttl > 0 {
		if err := p.redis.Set(ctx, revokedKey(s.ID), 1, ttl).Err(); err != nil {
			return fmt.Errorf("revoke session: %w", err)
		}
	}
	p.publish(ctx, model.AuthEvent{Type: model.SignedOut, UserID: s.UserID, SessionID: s.ID})
	return nil
}

func (p *Provider) OnAuthStateChange(ctx context.Context, userID uuid.UUID, fn func(model.AuthEvent)) (backend.Subscription, error) {
	pubsub := p.redis.Subscribe(ctx, authChannel(userID))
	// Wait for the subscription confirmation so no event published after
	// this call returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe auth events: %w", err)
	}

	go func() {
		for msg := range pubsub.Channel() {
			var ev model.AuthEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("auth: bad event payload: %v", err)
				continue
			}
			fn(ev)
		}
	}()

	return backend.SubscriptionFunc(func() { pubsub.Close() }), nil
}

// publish is best effort: a lost notification only delays other tabs.
func (p *Provider) publish(ctx context.Context, ev model.AuthEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := p.redis.Publish(ctx, authChannel(ev.UserID), payload).Err(); err != nil {
		log.Printf("auth: publish %s: %v", ev.Type, err)
	}
}
