// internal/game/catalog.go
package game

import "github.com/jason-s-yu/uno/internal/models"

const (
	// DeckSize is the number of card instances every game owns for its whole lifetime.
	DeckSize = 108

	MaxPlayers       = 4
	MinPlayers       = 2
	StartingHandSize = 7

	// AccusePenalty is the number of cards drawn by a player caught not calling uno.
	AccusePenalty = 4

	// MaxChatLength bounds chat messages relayed to a game's viewers.
	MaxChatLength = 512
)

// SuitColors are the four colors a wildcard may bind, in catalog order.
var SuitColors = []models.Color{models.ColorRed, models.ColorYellow, models.ColorBlue, models.ColorGreen}

var numberRanks = []models.Rank{
	models.RankZero, models.RankOne, models.RankTwo, models.RankThree, models.RankFour,
	models.RankFive, models.RankSix, models.RankSeven, models.RankEight, models.RankNine,
}

var actionRanks = []models.Rank{models.RankDrawTwo, models.RankSkip, models.RankReverse}

var wildRanks = []models.Rank{models.RankWild, models.RankWildDrawFour}

// catalog is built once; card ids are 1..108 in this order.
var catalog = buildCatalog()

func buildCatalog() []models.Card {
	cards := make([]models.Card, 0, DeckSize)
	add := func(color models.Color, rank models.Rank, copies int) {
		for i := 0; i < copies; i++ {
			cards = append(cards, models.Card{ID: len(cards) + 1, Color: color, Rank: rank})
		}
	}
	// One zero and two of every other number per color.
	for _, color := range SuitColors {
		for _, rank := range numberRanks {
			if rank == models.RankZero {
				add(color, rank, 1)
			} else {
				add(color, rank, 2)
			}
		}
	}
	for _, color := range SuitColors {
		for _, rank := range actionRanks {
			add(color, rank, 2)
		}
	}
	for _, rank := range wildRanks {
		add(models.ColorBlack, rank, 4)
	}
	return cards
}

// Catalog returns a copy of the 108 card identities in id order.
func Catalog() []models.Card {
	out := make([]models.Card, len(catalog))
	copy(out, catalog)
	return out
}

// CardByID looks up a catalog card by id.
func CardByID(id int) (models.Card, bool) {
	if id < 1 || id > len(catalog) {
		return models.Card{}, false
	}
	return catalog[id-1], true
}

// NewDeck returns fresh card instances for a new game: every card in DECK with
// order equal to its position in the catalog.
func NewDeck() []*models.CardInstance {
	deck := make([]*models.CardInstance, len(catalog))
	for i, c := range catalog {
		deck[i] = &models.CardInstance{
			Card:     c,
			Location: models.LocationDeck,
			Order:    i,
		}
	}
	return deck
}
