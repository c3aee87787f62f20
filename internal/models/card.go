// internal/models/card.go
package models

import "github.com/google/uuid"

// Color is the color of a card. BLACK cards are wildcards.
type Color string

const (
	ColorRed    Color = "RED"
	ColorYellow Color = "YELLOW"
	ColorBlue   Color = "BLUE"
	ColorGreen  Color = "GREEN"
	ColorBlack  Color = "BLACK"
)

// IsChoosable reports whether c may be bound as the active wildcard color.
func (c Color) IsChoosable() bool {
	switch c {
	case ColorRed, ColorYellow, ColorBlue, ColorGreen:
		return true
	}
	return false
}

// Rank is the face value of a card.
type Rank string

const (
	RankZero         Rank = "ZERO"
	RankOne          Rank = "ONE"
	RankTwo          Rank = "TWO"
	RankThree        Rank = "THREE"
	RankFour         Rank = "FOUR"
	RankFive         Rank = "FIVE"
	RankSix          Rank = "SIX"
	RankSeven        Rank = "SEVEN"
	RankEight        Rank = "EIGHT"
	RankNine         Rank = "NINE"
	RankDrawTwo      Rank = "DRAW_TWO"
	RankSkip         Rank = "SKIP"
	RankReverse      Rank = "REVERSE"
	RankWild         Rank = "WILD"
	RankWildDrawFour Rank = "WILD_DRAW_FOUR"
)

// Card is an immutable card identity from the catalog.
// The zero value is used for cards whose identity is hidden from a viewer.
type Card struct {
	ID    int   `json:"card_id,omitempty"`
	Color Color `json:"color,omitempty"`
	Rank  Rank  `json:"rank,omitempty"`
}

// Location is where a card instance currently sits.
type Location string

const (
	LocationDeck    Location = "DECK"
	LocationHand    Location = "HAND"
	LocationDiscard Location = "DISCARD"
)

// CardInstance is one physical card of a game's deck.
//
// Order is the position within the location: the top of the deck and the top of
// the discard pile are the cards with the highest order. UserID is set only while
// the card is in a player's hand.
type CardInstance struct {
	Card
	Location Location   `json:"location"`
	Order    int        `json:"order"`
	UserID   *uuid.UUID `json:"user_id,omitempty"`
}

// OwnedBy reports whether the card is in the hand of the given user.
func (c *CardInstance) OwnedBy(userID uuid.UUID) bool {
	return c.UserID != nil && *c.UserID == userID
}

// Equal compares every field, including the owner.
func (c *CardInstance) Equal(o *CardInstance) bool {
	if c.Card != o.Card || c.Location != o.Location || c.Order != o.Order {
		return false
	}
	if (c.UserID == nil) != (o.UserID == nil) {
		return false
	}
	return c.UserID == nil || *c.UserID == *o.UserID
}

// Clone returns a deep copy of the instance.
func (c *CardInstance) Clone() *CardInstance {
	cp := *c
	if c.UserID != nil {
		id := *c.UserID
		cp.UserID = &id
	}
	return &cp
}
