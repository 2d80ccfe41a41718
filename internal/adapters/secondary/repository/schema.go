package repository

import (
	"context"
	"fmt"
)

// Les conteneurs sont nullables : une ligne écrite par un ancien client peut ne pas les avoir.
// Le batch de réparation les normalise.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS persons (
		id                TEXT PRIMARY KEY,
		following_artists TEXT[] DEFAULT '{}',
		followers         TEXT[] DEFAULT '{}',
		following         TEXT[] DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS artists (
		id                  TEXT PRIMARY KEY,
		owner_id            TEXT NOT NULL,
		followers           TEXT[] DEFAULT '{}',
		following           TEXT[] DEFAULT '{}',
		followed_by_artists TEXT[] DEFAULT '{}',
		artworks            TEXT[] DEFAULT '{}',
		ratings             JSONB DEFAULT '[]'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_artists_owner ON artists (owner_id)`,
	`CREATE TABLE IF NOT EXISTS artworks (
		id        TEXT PRIMARY KEY,
		artist_id TEXT NOT NULL,
		likes     TEXT[] DEFAULT '{}',
		comments  JSONB DEFAULT '[]',
		ratings   JSONB DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS relationship_repairs (
		id          TEXT PRIMARY KEY,
		kind        TEXT NOT NULL,
		subject_id  TEXT NOT NULL,
		object_id   TEXT NOT NULL,
		reason      TEXT NOT NULL DEFAULT '',
		flagged_at  TIMESTAMPTZ NOT NULL,
		resolved_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_repairs_pending ON relationship_repairs (flagged_at) WHERE resolved_at IS NULL`,
}

// EnsureSchema crée les tables si besoin (idempotent).
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, q := range schema {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return fmt.Errorf("db: ensure schema: %w", err)
		}
	}
	return nil
}
