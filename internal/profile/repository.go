package profile

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

var _ backend.ProfileStore = (*Repository)(nil)

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetProfile(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	p := &model.Profile{}
	var nickname, avatarURL sql.NullString
	query := "SELECT id, nickname, avatar_url FROM profiles WHERE id = $1 LIMIT 1"

	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &nickname, &avatarURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, backend.ErrNotFound
		}
		return nil, err
	}
	p.Nickname = nickname.String
	p.AvatarURL = avatarURL.String
	return p, nil
}

// UpsertProfile creates or overwrites the profile keyed by p.ID.
func (r *Repository) UpsertProfile(ctx context.Context, p model.Profile) error {
	query := `
		INSERT INTO profiles (id, nickname, avatar_url, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE
		SET nickname = EXCLUDED.nickname, avatar_url = EXCLUDED.avatar_url, updated_at = now()
	`
	_, err := r.db.ExecContext(ctx, query, p.ID, nullable(p.Nickname), nullable(p.AvatarURL))
	return err
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
