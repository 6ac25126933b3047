package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	NicknameMinLength = 3
	NicknameMaxLength = 30

	// AnonymousNickname is shown for authors without a profile nickname.
	AnonymousNickname = "Anonyme"
)

var (
	ErrNicknameLength = errors.New("nickname must be between 3 and 30 characters")
	ErrEmptyMessage   = errors.New("message content cannot be empty")
)

// ---------------------------------------------
// 🔐 Identity
// ---------------------------------------------

type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email,omitempty"`
	FullName  string    `json:"full_name,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"` // From the OAuth provider, not the profile
}

type Session struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Remaining reports how long the session stays valid after now.
func (s *Session) Remaining(now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	d := s.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

type AuthEventType string

const (
	SignedIn  AuthEventType = "SIGNED_IN"
	SignedOut AuthEventType = "SIGNED_OUT"
)

type AuthEvent struct {
	Type      AuthEventType `json:"type"`
	UserID    uuid.UUID     `json:"user_id"`
	SessionID uuid.UUID     `json:"session_id"`
}

// ---------------------------------------------
// 🪪 Profiles
// ---------------------------------------------

type Profile struct {
	ID        uuid.UUID `json:"id"`
	Nickname  string    `json:"nickname,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
}

func (p *Profile) HasNickname() bool {
	return p != nil && p.Nickname != ""
}

// NormalizeNickname trims the nickname and checks its length in runes.
func NormalizeNickname(nickname string) (string, error) {
	nickname = strings.TrimSpace(nickname)
	n := utf8.RuneCountInString(nickname)
	if n < NicknameMinLength || n > NicknameMaxLength {
		return "", ErrNicknameLength
	}
	return nickname, nil
}

// ---------------------------------------------
// 💬 Rooms & Messages
// ---------------------------------------------

type RoomType string

const (
	RoomPublic  RoomType = "public"
	RoomPrivate RoomType = "private"
)

func (t RoomType) Valid() bool {
	return t == RoomPublic || t == RoomPrivate
}

type Room struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Type      RoomType  `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

type Author struct {
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatar_url"`
}

type Message struct {
	ID        uuid.UUID `json:"id"`
	RoomID    uuid.UUID `json:"room_id"`
	UserID    uuid.UUID `json:"user_id"`
	Content   string    `json:"content"`
	Private   bool      `json:"private"`
	CreatedAt time.Time `json:"created_at"`
	Author    Author    `json:"author"` // 🟢 Denormalized from profiles (LEFT JOIN)
}

// Lines splits the content the way it is rendered: one entry per line.
func (m Message) Lines() []string {
	return strings.Split(m.Content, "\n")
}

// NewMessage is what a sender provides; the store assigns ID and CreatedAt.
type NewMessage struct {
	RoomID  uuid.UUID `json:"room_id"`
	UserID  uuid.UUID `json:"user_id"`
	Content string    `json:"content"`
	Private bool      `json:"private"`
}

// NormalizeContent trims surrounding whitespace and rejects blank messages.
func NormalizeContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyMessage
	}
	return content, nil
}

// ---------------------------------------------
// ⚡ Change feed
// ---------------------------------------------

type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// ChangeEvent is a row-level notification for one room.
// Message is nil when the publisher only knows the id.
type ChangeEvent struct {
	Kind      ChangeKind `json:"kind"`
	RoomID    uuid.UUID  `json:"room_id"`
	MessageID uuid.UUID  `json:"message_id"`
	Private   bool       `json:"private"`
	Message   *Message   `json:"message,omitempty"`
}
