// internal/game/sync_state.go
package game

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
	"github.com/jason-s-yu/uno/internal/models"
)

// Sanitize returns a copy of the canonical state as viewerID is allowed to see it.
// Once the game has ended every card is revealed. Otherwise the identity of a card is
// kept only if it sits in the viewer's hand or on the discard pile; every other card
// keeps its location, order and owner so hand and deck sizes stay visible.
//
// The canonical card list is indexed by card id, so the view is re-sorted by
// location, owner and order before it leaves the game.
func Sanitize(state *models.GameState, viewerID uuid.UUID) *models.GameState {
	view := state.Clone()
	if view.Ended {
		return view
	}
	for _, c := range view.Cards {
		if c.Location == models.LocationDiscard || c.OwnedBy(viewerID) {
			continue
		}
		c.Card = models.Card{}
	}
	sort.SliceStable(view.Cards, func(i, j int) bool {
		return lessByPosition(view.Cards[i], view.Cards[j])
	})
	return view
}

var locationRank = map[models.Location]int{
	models.LocationDeck:    0,
	models.LocationHand:    1,
	models.LocationDiscard: 2,
}

// lessByPosition orders cards by where they sit, never by what they are.
func lessByPosition(a, b *models.CardInstance) bool {
	if ra, rb := locationRank[a.Location], locationRank[b.Location]; ra != rb {
		return ra < rb
	}
	var oa, ob []byte
	if a.UserID != nil {
		oa = a.UserID[:]
	}
	if b.UserID != nil {
		ob = b.UserID[:]
	}
	if c := bytes.Compare(oa, ob); c != 0 {
		return c < 0
	}
	return a.Order < b.Order
}
