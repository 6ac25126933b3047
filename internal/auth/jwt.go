package auth

import (
	"errors"
	"time"

	"swaft/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const issuer = "swaft"

type SessionClaims struct {
	SessionID uuid.UUID `json:"sid"`
	UserID    uuid.UUID `json:"uid"`
	jwt.RegisteredClaims
}

// SessionManager signs and verifies session tokens.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionManager(secret string, ttl time.Duration) *SessionManager {
	return &SessionManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue starts a new session for userID.
func (m *SessionManager) Issue(userID uuid.UUID) (*model.Session, error) {
	now := m.now()
	s := &model.Session{
		ID:        uuid.New(),
		UserID:    userID,
		ExpiresAt: now.Add(m.ttl).Truncate(time.Second),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		SessionID: s.ID,
		UserID:    userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID.String(),
			ID:        s.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	})

	ss, err := token.SignedString(m.secret)
	if err != nil {
		return nil, err
	}
	s.Token = ss
	return s, nil
}

// Parse verifies tokenString and returns the session it carries.
func (m *SessionManager) Parse(tokenString string) (*model.Session, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(m.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.SessionID == uuid.Nil || claims.UserID == uuid.Nil || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}

	return &model.Session{
		ID:        claims.SessionID,
		UserID:    claims.UserID,
		Token:     tokenString,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
