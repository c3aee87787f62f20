// internal/database/schema.go
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/uno/internal/game"
)

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS cards (
	card_id INTEGER PRIMARY KEY,
	color   TEXT NOT NULL,
	rank    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS games (
	id                    UUID PRIMARY KEY,
	started               BOOLEAN NOT NULL DEFAULT FALSE,
	ended                 BOOLEAN NOT NULL DEFAULT FALSE,
	active_wildcard_color TEXT,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS games_joinable_idx ON games (created_at) WHERE NOT started AND NOT ended;

CREATE TABLE IF NOT EXISTS game_players (
	game_id                UUID NOT NULL REFERENCES games (id) ON DELETE CASCADE,
	user_id                UUID NOT NULL,
	username               TEXT NOT NULL DEFAULT '',
	play_order             INTEGER NOT NULL DEFAULT -1,
	seat_order             INTEGER NOT NULL DEFAULT 0,
	state                  TEXT NOT NULL DEFAULT 'PLAYING',
	is_host                BOOLEAN NOT NULL DEFAULT FALSE,
	called_uno_turns_ago   INTEGER NOT NULL DEFAULT 0,
	had_one_card_turns_ago INTEGER NOT NULL DEFAULT 0,
	joined_seq             BIGSERIAL,
	PRIMARY KEY (game_id, user_id)
);

CREATE TABLE IF NOT EXISTS game_cards (
	game_id  UUID NOT NULL REFERENCES games (id) ON DELETE CASCADE,
	card_id  INTEGER NOT NULL REFERENCES cards (card_id),
	location TEXT NOT NULL,
	"order"  INTEGER NOT NULL,
	user_id  UUID,
	PRIMARY KEY (game_id, card_id)
);

CREATE TABLE IF NOT EXISTS game_actions (
	id             BIGSERIAL PRIMARY KEY,
	game_id        UUID NOT NULL,
	action_index   INTEGER NOT NULL,
	actor_user_id  UUID,
	action_type    TEXT NOT NULL,
	action_payload JSONB,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS game_actions_game_idx ON game_actions (game_id, action_index);
`

// Migrate creates the tables if they do not exist and seeds the card catalog.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	return pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, createTablesSQL); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}

		batch := &pgx.Batch{}
		for _, c := range game.Catalog() {
			batch.Queue(`
				INSERT INTO cards (card_id, color, rank)
				VALUES ($1, $2, $3)
				ON CONFLICT (card_id) DO NOTHING
			`, c.ID, string(c.Color), string(c.Rank))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("seed cards: %w", err)
		}
		return nil
	})
}
