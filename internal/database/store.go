// internal/database/store.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/uno/internal/models"
	"github.com/jason-s-yu/uno/internal/store"
)

// Store persists games in Postgres. Each ExecTx call maps to one database transaction.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure *Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

// NewStore wraps an already connected pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for components sharing the connection, such as the historian.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) ExecTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
}

func (s *Store) ListJoinableGames(ctx context.Context) ([]models.Game, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, started, ended, COALESCE(active_wildcard_color, ''), created_at
		FROM games
		WHERE NOT started AND NOT ended
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list joinable games: %w", err)
	}
	defer rows.Close()

	var out []models.Game
	for rows.Next() {
		var g models.Game
		if err := rows.Scan(&g.ID, &g.Started, &g.Ended, &g.ActiveWildcardColor, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan game row: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) Close() {
	s.pool.Close()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) InsertGame(ctx context.Context, state *models.GameState) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO games (id, started, ended, active_wildcard_color, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
	`, state.ID, state.Started, state.Ended, string(state.ActiveWildcardColor), state.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}

	rows := make([][]interface{}, 0, len(state.Cards))
	for _, c := range state.Cards {
		rows = append(rows, []interface{}{state.ID, c.ID, string(c.Location), c.Order, c.UserID})
	}
	_, err = t.tx.CopyFrom(ctx,
		pgx.Identifier{"game_cards"},
		[]string{"game_id", "card_id", "location", "order", "user_id"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("insert game cards: %w", err)
	}

	return t.UpsertPlayers(ctx, state.ID, state.Players)
}

func (t *pgTx) LoadGame(ctx context.Context, gameID uuid.UUID) (*models.GameState, error) {
	st := &models.GameState{}
	err := t.tx.QueryRow(ctx, `
		SELECT id, started, ended, COALESCE(active_wildcard_color, ''), created_at
		FROM games
		WHERE id = $1
	`, gameID).Scan(&st.ID, &st.Started, &st.Ended, &st.ActiveWildcardColor, &st.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load game: %w", err)
	}

	players, err := t.loadPlayers(ctx, gameID)
	if err != nil {
		return nil, err
	}
	st.Players = players

	cards, err := t.loadCards(ctx, gameID)
	if err != nil {
		return nil, err
	}
	st.Cards = cards
	return st, nil
}

func (t *pgTx) loadPlayers(ctx context.Context, gameID uuid.UUID) ([]*models.Player, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT user_id, username, play_order, seat_order, state, is_host,
		       called_uno_turns_ago, had_one_card_turns_ago
		FROM game_players
		WHERE game_id = $1
		ORDER BY joined_seq
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("load players: %w", err)
	}
	defer rows.Close()

	var out []*models.Player
	for rows.Next() {
		p := &models.Player{}
		if err := rows.Scan(&p.UserID, &p.Username, &p.PlayOrder, &p.SeatOrder, &p.State, &p.IsHost,
			&p.CalledUnoTurnsAgo, &p.HadOneCardTurnsAgo); err != nil {
			return nil, fmt.Errorf("scan player row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *pgTx) loadCards(ctx context.Context, gameID uuid.UUID) ([]*models.CardInstance, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT gc.card_id, c.color, c.rank, gc.location, gc."order", gc.user_id
		FROM game_cards gc
		JOIN cards c ON c.card_id = gc.card_id
		WHERE gc.game_id = $1
		ORDER BY gc.card_id
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("load cards: %w", err)
	}
	defer rows.Close()

	var out []*models.CardInstance
	for rows.Next() {
		c := &models.CardInstance{}
		var owner pgtype.UUID
		if err := rows.Scan(&c.ID, &c.Color, &c.Rank, &c.Location, &c.Order, &owner); err != nil {
			return nil, fmt.Errorf("scan card row: %w", err)
		}
		if owner.Valid {
			id := uuid.UUID(owner.Bytes)
			c.UserID = &id
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *pgTx) UpdateGame(ctx context.Context, g *models.Game) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE games
		SET started = $2, ended = $3, active_wildcard_color = NULLIF($4, '')
		WHERE id = $1
	`, g.ID, g.Started, g.Ended, string(g.ActiveWildcardColor))
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) UpsertPlayers(ctx context.Context, gameID uuid.UUID, players []*models.Player) error {
	if len(players) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range players {
		batch.Queue(`
			INSERT INTO game_players (
				game_id, user_id, username, play_order, seat_order, state, is_host,
				called_uno_turns_ago, had_one_card_turns_ago
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (game_id, user_id)
			DO UPDATE SET username = $3, play_order = $4, seat_order = $5, state = $6, is_host = $7,
				called_uno_turns_ago = $8, had_one_card_turns_ago = $9
		`, gameID, p.UserID, p.Username, p.PlayOrder, p.SeatOrder, string(p.State), p.IsHost,
			p.CalledUnoTurnsAgo, p.HadOneCardTurnsAgo)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert players: %w", err)
	}
	return nil
}

func (t *pgTx) DeletePlayer(ctx context.Context, gameID, userID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM game_players WHERE game_id = $1 AND user_id = $2`, gameID, userID)
	if err != nil {
		return fmt.Errorf("delete player: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateCards(ctx context.Context, gameID uuid.UUID, cards []*models.CardInstance) error {
	if len(cards) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range cards {
		cardID := c.ID
		batch.Queue(`
			UPDATE game_cards
			SET location = $3, "order" = $4, user_id = $5
			WHERE game_id = $1 AND card_id = $2
		`, gameID, c.ID, string(c.Location), c.Order, c.UserID).Exec(func(tag pgconn.CommandTag) error {
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("update card %d of game %s: no such card", cardID, gameID)
			}
			return nil
		})
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("update cards: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteGame(ctx context.Context, gameID uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM games WHERE id = $1`, gameID)
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
