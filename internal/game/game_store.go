// internal/game/game_store.go
package game

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/uno/internal/models"
	"github.com/jason-s-yu/uno/internal/store"
	"github.com/sirupsen/logrus"
)

// GameStore is the registry of live games. It holds one UnoGame per game id and wires
// each one to the shared store and action log.
type GameStore struct {
	mu    sync.Mutex
	games map[uuid.UUID]*UnoGame

	store     store.Store
	actionLog ActionRecorder
	logger    logrus.FieldLogger
}

// NewGameStore returns an empty registry backed by st. actionLog may be nil.
func NewGameStore(st store.Store, actionLog ActionRecorder, logger logrus.FieldLogger) *GameStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &GameStore{
		games:     make(map[uuid.UUID]*UnoGame),
		store:     st,
		actionLog: actionLog,
		logger:    logger,
	}
}

func (s *GameStore) newGame(id uuid.UUID) *UnoGame {
	g := NewUnoGame(id, s.store, s.logger)
	g.ActionLog = s.actionLog
	g.OnGameEnd = s.handleGameEnd
	g.OnIdle = s.unload
	return g
}

// CreateGame creates a game with the creator seated as host and registers it.
func (s *GameStore) CreateGame(ctx context.Context, host models.User) (*UnoGame, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("generate game id: %w", err)
	}
	state := NewGameState(id, &host)
	err = s.store.ExecTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertGame(ctx, state)
	})
	if err != nil {
		return nil, &IntegrityError{Op: "create game", Err: err}
	}

	g := s.newGame(id)
	g.state = state
	s.AddGame(g)
	s.logger.WithFields(logrus.Fields{"game_id": id, "user_id": host.ID}).Info("game created")
	return g, nil
}

// AddGame registers an existing state machine.
func (s *GameStore) AddGame(g *UnoGame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[g.ID] = g
}

// GetGame returns the live game for id, loading it from the store when it is not registered.
// The registry lock is not held while the store is read, so a slow load only delays
// callers asking for the same game.
func (s *GameStore) GetGame(ctx context.Context, id uuid.UUID) (*UnoGame, error) {
	s.mu.Lock()
	g, ok := s.games[id]
	s.mu.Unlock()
	if ok {
		return g, nil
	}

	var loaded *models.GameState
	err := s.store.ExecTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		loaded, err = tx.LoadGame(ctx, id)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, &IntegrityError{Op: "get game", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.games[id]; ok {
		return g, nil
	}
	g = s.newGame(id)
	g.state = loaded
	s.games[id] = g
	return g, nil
}

// Connect attaches a viewer to the live game for id and returns that game.
// An instance unloaded between lookup and attach is replaced by a fresh one.
func (s *GameStore) Connect(ctx context.Context, id uuid.UUID, user models.User, sub Subscriber) (*UnoGame, uint64, error) {
	for {
		g, err := s.GetGame(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		connID, err := g.Connect(ctx, user, sub)
		if errors.Is(err, errUnloaded) {
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		return g, connID, nil
	}
}

// DeleteGame deletes a game from the store and from the registry, detaching its viewers.
func (s *GameStore) DeleteGame(ctx context.Context, id uuid.UUID) error {
	g, err := s.GetGame(ctx, id)
	if err != nil {
		return err
	}
	if err := g.Delete(ctx); err != nil && !errors.Is(err, ErrGameNotFound) {
		return err
	}
	s.mu.Lock()
	delete(s.games, id)
	s.mu.Unlock()
	return nil
}

// ListJoinableGames returns games that have not started or ended.
func (s *GameStore) ListJoinableGames(ctx context.Context) ([]models.Game, error) {
	games, err := s.store.ListJoinableGames(ctx)
	if err != nil {
		return nil, &IntegrityError{Op: "list games", Err: err}
	}
	return games, nil
}

// Len returns the number of registered games.
func (s *GameStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.games)
}

// handleGameEnd deletes a game that ended because every player left before it started.
func (s *GameStore) handleGameEnd(gameID uuid.UUID, winner uuid.UUID) {
	if winner != uuid.Nil {
		s.logger.WithFields(logrus.Fields{"game_id": gameID, "user_id": winner}).Info("game won")
		return
	}
	if err := s.DeleteGame(context.Background(), gameID); err != nil {
		s.logger.WithError(err).WithField("game_id", gameID).Error("failed to delete abandoned game")
	}
}

// unload drops an ended game nobody is watching. It stays in the store and is reloaded on demand.
// A viewer that connected after the idle notification keeps the game registered.
func (s *GameStore) unload(gameID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.games[gameID]; ok && g.retireIfIdle() {
		delete(s.games, gameID)
	}
}
