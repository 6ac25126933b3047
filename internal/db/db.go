package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) Close() error {
	return d.Conn.Close()
}

func (d *Database) AutoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            provider VARCHAR(32) NOT NULL,
            provider_user_id VARCHAR(255) NOT NULL,
            email VARCHAR(255),
            full_name VARCHAR(255),
            avatar_url TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            UNIQUE (provider, provider_user_id)
        )`,

		`CREATE TABLE IF NOT EXISTS profiles (
            id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
            nickname VARCHAR(30) CHECK (nickname IS NULL OR char_length(nickname) BETWEEN 3 AND 30),
            avatar_url TEXT,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,

		`CREATE TABLE IF NOT EXISTS rooms (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            name VARCHAR(100) NOT NULL,
            type VARCHAR(10) NOT NULL CHECK (type IN ('public', 'private')) DEFAULT 'public',
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,

		`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            room_id UUID NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
            user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            content TEXT NOT NULL CHECK (btrim(content) <> ''),
            private BOOLEAN NOT NULL DEFAULT false,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,

		`CREATE INDEX IF NOT EXISTS messages_room_private_created_idx
            ON messages (room_id, private, created_at)`,
	}

	for _, query := range queries {
		_, err := d.Conn.ExecContext(ctx, query)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// DefaultRooms are created by Seed when the rooms table is empty.
var DefaultRooms = []struct {
	Name string
	Type string
}{
	{"general", "public"},
	{"random", "public"},
	{"staff", "private"},
}

// Seed inserts DefaultRooms unless rooms already exist. It returns the number
// of rooms created.
func (d *Database) Seed(ctx context.Context) (int, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT count(*) FROM rooms").Scan(&count); err != nil {
		return 0, fmt.Errorf("seed: count rooms: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	for _, room := range DefaultRooms {
		// Space the timestamps so created_at ordering matches DefaultRooms.
		_, err := tx.ExecContext(ctx,
			"INSERT INTO rooms (name, type, created_at) VALUES ($1, $2, now() + $3 * interval '1 millisecond')",
			room.Name, room.Type, count)
		if err != nil {
			return 0, fmt.Errorf("seed: insert room %q: %w", room.Name, err)
		}
		count++
	}

	return count, tx.Commit()
}
