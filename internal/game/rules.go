// internal/game/rules.go
package game

import "github.com/jason-s-yu/uno/internal/models"

// Effect is what a played card does to the turn that follows it.
type Effect struct {
	CardsToDraw int
	SkipNext    bool
	Reverse     bool
}

// IsPlayable reports whether card may be played on top. activeColor is the color bound
// by the wildcard on top of the discard pile, or "" when none has been chosen yet.
func IsPlayable(card, top models.Card, activeColor models.Color) bool {
	if card.Color == models.ColorBlack || card.Color == top.Color || card.Rank == top.Rank {
		return true
	}
	if top.Color == models.ColorBlack {
		// An opening wildcard has no color until someone plays on it.
		return activeColor == "" || card.Color == activeColor
	}
	return false
}

// ResolveEffect returns the effect of playing a card of the given rank with
// playerCount players still in the game.
func ResolveEffect(rank models.Rank, playerCount int) Effect {
	switch rank {
	case models.RankDrawTwo:
		return Effect{CardsToDraw: 2, SkipNext: playerCount == 2}
	case models.RankWildDrawFour:
		return Effect{CardsToDraw: 4, SkipNext: true}
	case models.RankSkip:
		return Effect{SkipNext: true}
	case models.RankReverse:
		// With two players a reverse hands the turn straight back, same as a skip.
		if playerCount == 2 {
			return Effect{SkipNext: true}
		}
		return Effect{Reverse: true}
	default:
		return Effect{}
	}
}
