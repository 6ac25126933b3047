// Package backend defines the capabilities the dashboard components need
// from the outside world. Components receive a *Client explicitly instead of
// reaching for a package-level handle.
package backend

import (
	"context"
	"errors"

	"swaft/internal/model"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrNoSession = errors.New("no active session")
)

// Subscription is a live registration that must be released exactly once.
type Subscription interface {
	Unsubscribe()
}

type Identity interface {
	GetSession(ctx context.Context, token string) (*model.Session, error)
	GetUser(ctx context.Context, session *model.Session) (*model.User, error)
	SignInWithOAuth(ctx context.Context, provider string) (string, error)
	SignOut(ctx context.Context, session *model.Session) error
	// OnAuthStateChange calls fn for every auth event of userID until the
	// subscription is released. fn must not block.
	OnAuthStateChange(ctx context.Context, userID uuid.UUID, fn func(model.AuthEvent)) (Subscription, error)
}

type ProfileStore interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*model.Profile, error)
	UpsertProfile(ctx context.Context, p model.Profile) error
}

type RoomStore interface {
	ListRooms(ctx context.Context, t model.RoomType) ([]model.Room, error)
}

type MessageStore interface {
	ListMessages(ctx context.Context, roomID uuid.UUID, private bool) ([]model.Message, error)
	InsertMessage(ctx context.Context, msg model.NewMessage) (*model.Message, error)
	// UpdateMessageContent and DeleteMessage only touch rows owned by
	// authorID; anything else reports ErrNotFound.
	UpdateMessageContent(ctx context.Context, id, authorID uuid.UUID, content string) (*model.Message, error)
	DeleteMessage(ctx context.Context, id, authorID uuid.UUID) error
}

type ChangeFeed interface {
	// Subscribe calls fn for every change in roomID until the subscription
	// is released. The subscription is live when Subscribe returns. fn must
	// not block.
	Subscribe(ctx context.Context, roomID uuid.UUID, fn func(model.ChangeEvent)) (Subscription, error)
}

// Client bundles every backend capability.
type Client struct {
	Identity Identity
	Profiles ProfileStore
	Rooms    RoomStore
	Messages MessageStore
	Feed     ChangeFeed
}

// SubscriptionFunc adapts a plain function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Unsubscribe() { f() }
