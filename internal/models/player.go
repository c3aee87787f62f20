package models

import "github.com/google/uuid"

// PlayerState is the standing of a seat in a game.
type PlayerState string

const (
	PlayerPlaying PlayerState = "PLAYING"
	PlayerWon     PlayerState = "WON"
	PlayerLost    PlayerState = "LOST"
)

// Player is a seat at a game table.
type Player struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`

	// PlayOrder is 0 for the player whose turn it is and -1 while unseated or after a forfeit.
	PlayOrder int `json:"play_order"`

	// SeatOrder is the stable display position.
	SeatOrder int `json:"seat_order"`

	State  PlayerState `json:"state"`
	IsHost bool        `json:"is_host"`

	CalledUnoTurnsAgo  int `json:"called_uno_turns_ago"`
	HadOneCardTurnsAgo int `json:"had_one_card_turns_ago"`
}

// Active reports whether the player is still playing.
func (p *Player) Active() bool {
	return p.State == PlayerPlaying
}
