// internal/database/actions.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/uno/internal/models"
)

// InsertGameActions persists a batch of action records in a single transaction.
func (s *Store) InsertGameActions(ctx context.Context, records []models.GameActionRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rec := range records {
			payload, err := json.Marshal(rec.ActionPayload)
			if err != nil {
				return fmt.Errorf("marshal payload of action %d: %w", rec.ActionIndex, err)
			}
			var actor *uuid.UUID
			if rec.ActorUserID != uuid.Nil {
				id := rec.ActorUserID
				actor = &id
			}
			batch.Queue(`
				INSERT INTO game_actions (
					game_id, action_index, actor_user_id, action_type, action_payload, created_at
				) VALUES ($1, $2, $3, $4, $5, $6)
			`, rec.GameID, rec.ActionIndex, actor, rec.ActionType, payload, time.UnixMilli(rec.Timestamp))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("insert game actions: %w", err)
	}
	return nil
}

// GameActions returns the recorded actions of a game in emission order.
func (s *Store) GameActions(ctx context.Context, gameID uuid.UUID) ([]models.GameActionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT game_id, action_index, COALESCE(actor_user_id, '00000000-0000-0000-0000-000000000000'),
		       action_type, action_payload, created_at
		FROM game_actions
		WHERE game_id = $1
		ORDER BY created_at, id
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("query game actions: %w", err)
	}
	defer rows.Close()

	var out []models.GameActionRecord
	for rows.Next() {
		var rec models.GameActionRecord
		var payload []byte
		var at time.Time
		if err := rows.Scan(&rec.GameID, &rec.ActionIndex, &rec.ActorUserID, &rec.ActionType, &payload, &at); err != nil {
			return nil, fmt.Errorf("scan game action: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &rec.ActionPayload); err != nil {
				return nil, fmt.Errorf("decode payload of action %d: %w", rec.ActionIndex, err)
			}
		}
		rec.Timestamp = at.UnixMilli()
		out = append(out, rec)
	}
	return out, rows.Err()
}
