package user

import (
	"context"
	"database/sql"
	"errors"

	"swaft/internal/backend"
	"swaft/internal/model"

	"github.com/google/uuid"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// UpsertIdentity records the provider identity and returns the local user.
// Signing in again refreshes email, name and avatar.
func (r *Repository) UpsertIdentity(ctx context.Context, id Identity) (*model.User, error) {
	u := id.toUser()
	query := `
		INSERT INTO users (provider, provider_user_id, email, full_name, avatar_url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider, provider_user_id) DO UPDATE
		SET email = EXCLUDED.email, full_name = EXCLUDED.full_name, avatar_url = EXCLUDED.avatar_url
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		id.Provider, id.ProviderID, nullable(id.Email), nullable(id.FullName), nullable(id.AvatarURL),
	).Scan(&u.ID)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u := &model.User{}
	var email, fullName, avatarURL sql.NullString
	query := "SELECT id, email, full_name, avatar_url FROM users WHERE id = $1"

	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &email, &fullName, &avatarURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, backend.ErrNotFound
		}
		return nil, err
	}

	u.Email = email.String
	u.FullName = fullName.String
	u.AvatarURL = avatarURL.String
	return u, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
