// internal/game/uno_tracker.go
package game

import "github.com/jason-s-yu/uno/internal/models"

// markDownToOneCard starts the accusal window for a player whose play left one card in hand.
func markDownToOneCard(p *models.Player) {
	p.HadOneCardTurnsAgo = 0
}

// markCalledUno records that the player declared uno.
func markCalledUno(p *models.Player) {
	p.CalledUnoTurnsAgo = 0
}

// tickTurn advances both counters of every seat after a completed play.
func tickTurn(players []*models.Player) {
	for _, p := range players {
		p.CalledUnoTurnsAgo++
		p.HadOneCardTurnsAgo++
	}
}

// checkAccusal returns the client error explaining why an accusal against a player
// holding handSize cards fails, or nil if the accusal stands.
func checkAccusal(p *models.Player, handSize int) error {
	if handSize != 1 {
		return clientError(msgAccusedHandSize)
	}
	if !(p.HadOneCardTurnsAgo < 2) {
		return clientError(msgAccusedWindowEnded)
	}
	if !(p.CalledUnoTurnsAgo >= 2) {
		return clientError(msgAccusedSaidUno)
	}
	return nil
}
