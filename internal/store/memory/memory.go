// Package memory is an in-process implementation of store.Store used by tests and
// single-node deployments that do not need durability.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/uno/internal/models"
	"github.com/jason-s-yu/uno/internal/store"
)

// Store keeps committed game states in a map. Each transaction works on private
// copies of the games it touches and publishes them on commit.
type Store struct {
	mu    sync.Mutex
	games map[uuid.UUID]*models.GameState
}

// Ensure *Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{games: make(map[uuid.UUID]*models.GameState)}
}

// ExecTx runs fn against a staged view and commits it only when fn returns nil.
func (s *Store) ExecTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{
		s:       s,
		staged:  make(map[uuid.UUID]*models.GameState),
		deleted: make(map[uuid.UUID]bool),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range tx.deleted {
		delete(s.games, id)
	}
	for id, st := range tx.staged {
		s.games[id] = st
	}
	return nil
}

func (s *Store) ListJoinableGames(ctx context.Context) ([]models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Game
	for _, st := range s.games {
		if !st.Started && !st.Ended {
			out = append(out, st.Game)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) Close() {}

type memTx struct {
	s       *Store
	staged  map[uuid.UUID]*models.GameState
	deleted map[uuid.UUID]bool
}

// get returns the transaction's private copy of a game, cloning the committed one on first access.
func (tx *memTx) get(gameID uuid.UUID) (*models.GameState, error) {
	if tx.deleted[gameID] {
		return nil, store.ErrNotFound
	}
	if st, ok := tx.staged[gameID]; ok {
		return st, nil
	}
	tx.s.mu.Lock()
	committed, ok := tx.s.games[gameID]
	tx.s.mu.Unlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	st := committed.Clone()
	tx.staged[gameID] = st
	return st, nil
}

func (tx *memTx) InsertGame(ctx context.Context, state *models.GameState) error {
	if _, err := tx.get(state.ID); err == nil {
		return fmt.Errorf("insert game %s: already exists", state.ID)
	}
	delete(tx.deleted, state.ID)
	tx.staged[state.ID] = state.Clone()
	return nil
}

func (tx *memTx) LoadGame(ctx context.Context, gameID uuid.UUID) (*models.GameState, error) {
	st, err := tx.get(gameID)
	if err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

func (tx *memTx) UpdateGame(ctx context.Context, game *models.Game) error {
	st, err := tx.get(game.ID)
	if err != nil {
		return err
	}
	st.Game = *game
	return nil
}

func (tx *memTx) UpsertPlayers(ctx context.Context, gameID uuid.UUID, players []*models.Player) error {
	st, err := tx.get(gameID)
	if err != nil {
		return err
	}
	for _, p := range players {
		cp := *p
		if existing := st.Player(p.UserID); existing != nil {
			*existing = cp
		} else {
			st.Players = append(st.Players, &cp)
		}
	}
	return nil
}

func (tx *memTx) DeletePlayer(ctx context.Context, gameID, userID uuid.UUID) error {
	st, err := tx.get(gameID)
	if err != nil {
		return err
	}
	kept := st.Players[:0]
	for _, p := range st.Players {
		if p.UserID != userID {
			kept = append(kept, p)
		}
	}
	st.Players = kept
	return nil
}

func (tx *memTx) UpdateCards(ctx context.Context, gameID uuid.UUID, cards []*models.CardInstance) error {
	st, err := tx.get(gameID)
	if err != nil {
		return err
	}
	byID := make(map[int]int, len(st.Cards))
	for i, c := range st.Cards {
		byID[c.ID] = i
	}
	for _, c := range cards {
		i, ok := byID[c.ID]
		if !ok {
			return fmt.Errorf("update card %d of game %s: no such card", c.ID, gameID)
		}
		st.Cards[i] = c.Clone()
	}
	return nil
}

func (tx *memTx) DeleteGame(ctx context.Context, gameID uuid.UUID) error {
	if _, err := tx.get(gameID); err != nil {
		return err
	}
	delete(tx.staged, gameID)
	tx.deleted[gameID] = true
	return nil
}
