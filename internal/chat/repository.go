package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"swaft/internal/backend"
	"swaft/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) ListRooms(ctx context.Context, t model.RoomType) ([]model.Room, error) {
	query := "SELECT id, name, type, created_at FROM rooms WHERE type = $1 ORDER BY created_at ASC"
	rows, err := r.db.QueryContext(ctx, query, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []model.Room
	for rows.Next() {
		var room model.Room
		var roomType string
		if err := rows.Scan(&room.ID, &room.Name, &roomType, &room.CreatedAt); err != nil {
			return nil, err
		}
		room.Type = model.RoomType(roomType)
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// messageColumns matches scanMessage. The author comes from a LEFT JOIN so
// users without a profile still show up.
const messageColumns = "m.id, m.room_id, m.user_id, m.content, m.private, m.created_at, p.nickname, p.avatar_url"

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (*model.Message, error) {
	msg := &model.Message{}
	var nickname, avatarURL sql.NullString
	err := s.Scan(&msg.ID, &msg.RoomID, &msg.UserID, &msg.Content, &msg.Private, &msg.CreatedAt, &nickname, &avatarURL)
	if err != nil {
		return nil, err
	}
	msg.Author = model.Author{Nickname: nickname.String, AvatarURL: avatarURL.String}
	return msg, nil
}

func (r *Repository) ListMessages(ctx context.Context, roomID uuid.UUID, private bool) ([]model.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		LEFT JOIN profiles p ON p.id = m.user_id
		WHERE m.room_id = $1 AND m.private = $2
		ORDER BY m.created_at ASC, m.id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, roomID, private)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

func (r *Repository) InsertMessage(ctx context.Context, nm model.NewMessage) (*model.Message, error) {
	query := `
		WITH m AS (
			INSERT INTO messages (room_id, user_id, content, private)
			VALUES ($1, $2, $3, $4)
			RETURNING *
		)
		SELECT ` + messageColumns + `
		FROM m LEFT JOIN profiles p ON p.id = m.user_id
	`
	msg, err := scanMessage(r.db.QueryRowContext(ctx, query, nm.RoomID, nm.UserID, nm.Content, nm.Private))
	if isPgForeignKeyError(err) {
		return nil, fmt.Errorf("room %s: %w", nm.RoomID, backend.ErrNotFound)
	}
	return msg, err
}

// UpdateMessageContent only matches rows written by authorID.
func (r *Repository) UpdateMessageContent(ctx context.Context, id, authorID uuid.UUID, content string) (*model.Message, error) {
	query := `
		WITH m AS (
			UPDATE messages SET content = $3
			WHERE id = $1 AND user_id = $2
			RETURNING *
		)
		SELECT ` + messageColumns + `
		FROM m LEFT JOIN profiles p ON p.id = m.user_id
	`
	msg, err := scanMessage(r.db.QueryRowContext(ctx, query, id, authorID, content))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, backend.ErrNotFound
	}
	return msg, err
}

// DeleteMessage removes a row written by authorID and reports where it lived.
func (r *Repository) DeleteMessage(ctx context.Context, id, authorID uuid.UUID) (roomID uuid.UUID, private bool, err error) {
	query := "DELETE FROM messages WHERE id = $1 AND user_id = $2 RETURNING room_id, private"
	err = r.db.QueryRowContext(ctx, query, id, authorID).Scan(&roomID, &private)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, backend.ErrNotFound
	}
	return roomID, private, err
}

// isPgForeignKeyError checks if err is a PostgreSQL foreign key violation.
func isPgForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
