// internal/game/deck.go
package game

import (
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/jason-s-yu/uno/internal/models"
)

var (
	errNotInProgress    = errors.New("game has not started or is ended")
	errDeckExhausted    = errors.New("no card left to draw from deck or discard")
	errNoDiscard        = errors.New("discard pile is empty")
	errNoCurrentPlayer  = errors.New("no current-turn player found")
	errCorruptPlayOrder = errors.New("active play orders are not a permutation")
)

// cardsAt returns the card instances in a location, lowest order first.
func (s *step) cardsAt(loc models.Location) []*models.CardInstance {
	var out []*models.CardInstance
	for _, c := range s.state.Cards {
		if c.Location == loc {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// hand returns a player's cards in the order they were dealt.
func (s *step) hand(userID uuid.UUID) []*models.CardInstance {
	var out []*models.CardInstance
	for _, c := range s.state.Cards {
		if c.Location == models.LocationHand && c.OwnedBy(userID) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func topOf(cards []*models.CardInstance) *models.CardInstance {
	if len(cards) == 0 {
		return nil
	}
	return cards[len(cards)-1]
}

func (s *step) topDeck() *models.CardInstance {
	return topOf(s.cardsAt(models.LocationDeck))
}

func (s *step) topDiscard() *models.CardInstance {
	return topOf(s.cardsAt(models.LocationDiscard))
}

func (s *step) inProgress() bool {
	return s.state.Started && !s.state.Ended
}

// shuffle gives the cards in DECK a uniformly random permutation of the orders 0..n-1
// using the Durstenfeld variant of Fisher-Yates.
func (s *step) shuffle() error {
	if !s.inProgress() {
		return errNotInProgress
	}
	deck := s.cardsAt(models.LocationDeck)
	orders := make([]int, len(deck))
	for i := range orders {
		orders[i] = i
	}
	for i := len(orders) - 1; i > 0; i-- {
		j := s.rng.Intn(i + 1)
		orders[i], orders[j] = orders[j], orders[i]
	}
	for i, c := range deck {
		c.Order = orders[i]
	}
	s.emit(GameEvent{Type: EventDeckShuffled})
	return nil
}

// replenishIfEmpty recycles the discard pile into the deck once the deck runs out.
// The top discard card stays where it is with order 0.
func (s *step) replenishIfEmpty() error {
	if !s.inProgress() {
		return errNotInProgress
	}
	if len(s.cardsAt(models.LocationDeck)) > 0 {
		return nil
	}
	top := s.topDiscard()
	if top == nil {
		return errDeckExhausted
	}
	for _, c := range s.cardsAt(models.LocationDiscard) {
		if c == top {
			continue
		}
		c.Location = models.LocationDeck
	}
	top.Order = 0
	return s.shuffle()
}

// deal moves the top deck card to the end of a player's hand.
func (s *step) deal(userID uuid.UUID) error {
	if err := s.replenishIfEmpty(); err != nil {
		return err
	}
	card := s.topDeck()
	if card == nil {
		return errDeckExhausted
	}
	order := 0
	if last := topOf(s.hand(userID)); last != nil {
		order = last.Order + 1
	}
	id := userID
	card.Location = models.LocationHand
	card.Order = order
	card.UserID = &id
	s.emit(GameEvent{Type: EventDealtCard, User: s.eventUser(userID)})
	return nil
}

// discard puts a card on top of the discard pile and clears its owner.
func (s *step) discard(card *models.CardInstance) {
	order := 0
	if top := s.topDiscard(); top != nil {
		order = top.Order + 1
	}
	card.Location = models.LocationDiscard
	card.Order = order
	card.UserID = nil
}
