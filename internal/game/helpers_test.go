// internal/game/helpers_test.go
package game

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/uno/internal/models"
	"github.com/jason-s-yu/uno/internal/store"
	"github.com/jason-s-yu/uno/internal/store/memory"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// mockSubscriber collects messages instead of sending them over WS.
type mockSubscriber struct {
	mu     sync.Mutex
	msgs   []Message
	closed bool
}

func (m *mockSubscriber) Send(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
}

func (m *mockSubscriber) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mockSubscriber) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockSubscriber) messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.msgs))
	copy(out, m.msgs)
	return out
}

func (m *mockSubscriber) events() []GameEventType {
	var out []GameEventType
	for _, msg := range m.messages() {
		if msg.Type == MessageGameEvent {
			out = append(out, msg.Event.Type)
		}
	}
	return out
}

func (m *mockSubscriber) lastState() *models.GameState {
	msgs := m.messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == MessageGameState {
			return msgs[i].State
		}
	}
	return nil
}

func (m *mockSubscriber) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = nil
}

// failingStore wraps the memory store and aborts every transaction while fail is set.
type failingStore struct {
	*memory.Store
	fail atomic.Bool
}

var errSimulated = errors.New("simulated store failure")

func (f *failingStore) ExecTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return f.Store.ExecTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if f.fail.Load() {
			return errSimulated
		}
		return nil
	})
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func seededRand(seed int64) func() *rand.Rand {
	return func() *rand.Rand { return rand.New(rand.NewSource(seed)) }
}

func newTestUsers(n int) []models.User {
	names := []string{"alice", "bob", "carol", "dave", "erin"}
	users := make([]models.User, n)
	for i := range users {
		users[i] = models.User{ID: uuid.New(), Username: names[i%len(names)]}
	}
	return users
}

// setupTestGame creates a game hosted by the first of n users, with the others joined.
func setupTestGame(t *testing.T, n int, st store.Store) (*UnoGame, []models.User, *GameStore) {
	t.Helper()
	if st == nil {
		st = memory.New()
	}
	gs := NewGameStore(st, nil, testLogger())
	users := newTestUsers(n)
	g, err := gs.CreateGame(context.Background(), users[0])
	require.NoError(t, err)
	g.NewRand = seededRand(1)
	for _, u := range users[1:] {
		require.NoError(t, g.AddPlayer(context.Background(), u))
	}
	return g, users, gs
}

// layout places specific catalog cards. hands are indexed like the players,
// discard is bottom to top and deckTop lists the next cards drawn, first drawn first.
type layout struct {
	hands   [][]int
	discard []int
	deckTop []int
}

func arrange(st *models.GameState, l layout) {
	byID := make(map[int]*models.CardInstance, len(st.Cards))
	for _, c := range st.Cards {
		byID[c.ID] = c
	}
	placed := make(map[int]bool)
	for i, ids := range l.hands {
		owner := st.Players[i].UserID
		for order, id := range ids {
			c := byID[id]
			u := owner
			c.Location, c.Order, c.UserID = models.LocationHand, order, &u
			placed[id] = true
		}
	}
	for order, id := range l.discard {
		c := byID[id]
		c.Location, c.Order, c.UserID = models.LocationDiscard, order, nil
		placed[id] = true
	}
	for _, id := range l.deckTop {
		placed[id] = true
	}
	order := 0
	for _, c := range st.Cards {
		if placed[c.ID] {
			continue
		}
		c.Location, c.Order, c.UserID = models.LocationDeck, order, nil
		order++
	}
	for i := len(l.deckTop) - 1; i >= 0; i-- {
		c := byID[l.deckTop[i]]
		c.Location, c.Order, c.UserID = models.LocationDeck, order, nil
		order++
	}
}

// rig applies fn to the committed state and writes the result through the store.
func rig(t *testing.T, g *UnoGame, fn func(st *models.GameState)) {
	t.Helper()
	g.Mu.Lock()
	defer g.Mu.Unlock()
	st := g.state.Clone()
	fn(st)
	err := g.store.ExecTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.UpdateGame(ctx, &st.Game); err != nil {
			return err
		}
		if err := tx.UpsertPlayers(ctx, st.ID, st.Players); err != nil {
			return err
		}
		return tx.UpdateCards(ctx, st.ID, st.Cards)
	})
	require.NoError(t, err)
	g.state = st
}

// setupStartedGame returns an in-progress game where player i holds play order i.
func setupStartedGame(t *testing.T, n int, l layout, st store.Store) (*UnoGame, []models.User) {
	t.Helper()
	g, users, _ := setupTestGame(t, n, st)
	rig(t, g, func(st *models.GameState) {
		st.Started = true
		for i, p := range st.Players {
			p.PlayOrder = i
			p.SeatOrder = i
		}
		arrange(st, l)
	})
	return g, users
}

// card returns the catalog id of the nth (0-based) copy of a card.
func card(t *testing.T, color models.Color, rank models.Rank, nth int) int {
	t.Helper()
	for _, c := range Catalog() {
		if c.Color == color && c.Rank == rank {
			if nth == 0 {
				return c.ID
			}
			nth--
		}
	}
	t.Fatalf("no copy of %s %s", color, rank)
	return 0
}

func committed(g *UnoGame) *models.GameState {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return g.state.Clone()
}

func handOf(st *models.GameState, userID uuid.UUID) []*models.CardInstance {
	s := &step{state: st}
	return s.hand(userID)
}

func topDiscardOf(st *models.GameState) *models.CardInstance {
	s := &step{state: st}
	return s.topDiscard()
}

func countByLocation(st *models.GameState) map[models.Location]int {
	out := make(map[models.Location]int)
	for _, c := range st.Cards {
		out[c.Location]++
	}
	return out
}

func requireClientError(t *testing.T, err error, msg string) {
	t.Helper()
	require.Error(t, err)
	var ce *ClientError
	require.True(t, errors.As(err, &ce), "expected client error, got %v", err)
	require.Equal(t, msg, ce.Message)
}
