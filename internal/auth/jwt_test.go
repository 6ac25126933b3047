package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionManager_IssueAndParse(t *testing.T) {
	m := NewSessionManager("test-secret", time.Hour)
	userID := uuid.New()

	s, err := m.Issue(userID)
	require.NoError(t, err)
	require.NotEmpty(t, s.Token)
	assert.Equal(t, userID, s.UserID)
	assert.NotEqual(t, uuid.Nil, s.ID)

	parsed, err := m.Parse(s.Token)
	require.NoError(t, err)
	assert.Equal(t, s.ID, parsed.ID)
	assert.Equal(t, userID, parsed.UserID)
	assert.Equal(t, s.Token, parsed.Token)
	assert.WithinDuration(t, s.ExpiresAt, parsed.ExpiresAt, time.Second)
}

func TestSessionManager_Parse_Errors(t *testing.T) {
	m := NewSessionManager("test-secret", time.Hour)
	s, err := m.Issue(uuid.New())
	require.NoError(t, err)

	expired := NewSessionManager("test-secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue(uuid.New())
	require.NoError(t, err)

	tests := []struct {
		name    string
		manager *SessionManager
		token   string
		wantErr error
	}{
		{"empty token", m, "", ErrInvalidToken},
		{"garbage", m, "not.a.jwt", ErrInvalidToken},
		{"wrong secret", NewSessionManager("other-secret", time.Hour), s.Token, ErrInvalidToken},
		{"expired", m, old.Token, ErrExpiredToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.manager.Parse(tt.token)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
