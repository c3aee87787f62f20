// internal/models/game.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Phase is the lifecycle stage of a game, derived from Started and Ended.
type Phase string

const (
	PhaseForming    Phase = "FORMING"
	PhaseInProgress Phase = "IN_PROGRESS"
	PhaseEnded      Phase = "ENDED"
)

// Game represents a row in the games table.
type Game struct {
	ID      uuid.UUID `json:"game_id"`
	Started bool      `json:"started"`
	Ended   bool      `json:"ended"`

	// ActiveWildcardColor is bound while a wildcard tops the discard pile; empty when unset.
	ActiveWildcardColor Color `json:"active_wildcard_color,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Phase returns the lifecycle stage of the game.
func (g Game) Phase() Phase {
	switch {
	case g.Ended:
		return PhaseEnded
	case g.Started:
		return PhaseInProgress
	default:
		return PhaseForming
	}
}

// GameState is the full canonical state of a single game: the game row, its seats,
// and every card instance it owns.
type GameState struct {
	Game
	Players []*Player       `json:"players"`
	Cards   []*CardInstance `json:"cards"`
}

// Clone returns a deep copy so a transition can mutate it without touching the original.
func (s *GameState) Clone() *GameState {
	cp := &GameState{
		Game:    s.Game,
		Players: make([]*Player, len(s.Players)),
		Cards:   make([]*CardInstance, len(s.Cards)),
	}
	for i, p := range s.Players {
		pc := *p
		cp.Players[i] = &pc
	}
	for i, c := range s.Cards {
		cp.Cards[i] = c.Clone()
	}
	return cp
}

// Player returns the seat for a user, or nil.
func (s *GameState) Player(userID uuid.UUID) *Player {
	for _, p := range s.Players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// ActivePlayers returns the seats still in PLAYING state.
func (s *GameState) ActivePlayers() []*Player {
	var out []*Player
	for _, p := range s.Players {
		if p.Active() {
			out = append(out, p)
		}
	}
	return out
}

// Host returns the host seat, or nil if there is none.
func (s *GameState) Host() *Player {
	for _, p := range s.Players {
		if p.IsHost {
			return p
		}
	}
	return nil
}
