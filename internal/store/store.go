// internal/store/store.go
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jason-s-yu/uno/internal/models"
)

// ErrNotFound is returned when a game does not exist in the store.
var ErrNotFound = errors.New("store: game not found")

// Tx is the set of reads and writes available inside one transaction.
// Writes are only visible to other transactions after the enclosing ExecTx commits.
type Tx interface {
	// InsertGame writes a new game row with all of its players and card instances.
	InsertGame(ctx context.Context, state *models.GameState) error
	// LoadGame reads the full state of a game, or returns ErrNotFound.
	LoadGame(ctx context.Context, gameID uuid.UUID) (*models.GameState, error)
	UpdateGame(ctx context.Context, game *models.Game) error
	UpsertPlayers(ctx context.Context, gameID uuid.UUID, players []*models.Player) error
	DeletePlayer(ctx context.Context, gameID, userID uuid.UUID) error
	UpdateCards(ctx context.Context, gameID uuid.UUID, cards []*models.CardInstance) error
	DeleteGame(ctx context.Context, gameID uuid.UUID) error
}

// Store abstracts durable storage of games, seats and card instances.
// Implementations can be swapped for testing (memory) or production (Postgres).
type Store interface {
	// ExecTx runs fn inside a single transaction. The transaction commits when fn
	// returns nil and rolls back on any error or panic.
	ExecTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// ListJoinableGames returns games that have neither started nor ended, oldest first.
	ListJoinableGames(ctx context.Context) ([]models.Game, error)

	Close()
}
