// internal/game/game_test.go
package game

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/uno/internal/models"
	"github.com/jason-s-yu/uno/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

// TestStartGameDealsAndOrders checks the opening layout for every table size and several seeds.
func TestStartGameDealsAndOrders(t *testing.T) {
	for n := MinPlayers; n <= MaxPlayers; n++ {
		for seed := int64(1); seed <= 25; seed++ {
			g, users, _ := setupTestGame(t, n, nil)
			g.NewRand = seededRand(seed)
			require.NoError(t, g.StartGame(ctx, users[0].ID))

			st := committed(g)
			require.True(t, st.Started)
			require.False(t, st.Ended)
			require.Len(t, st.Cards, DeckSize)

			orders := make(map[int]bool)
			for _, p := range st.Players {
				orders[p.PlayOrder] = true
				assert.Equal(t, p.PlayOrder, p.SeatOrder, "seat order is fixed to the opening play order")
				hand := handOf(st, p.UserID)
				if p.PlayOrder == 0 {
					assert.GreaterOrEqual(t, len(hand), StartingHandSize)
				} else {
					assert.Len(t, hand, StartingHandSize)
				}
			}
			for o := 0; o < n; o++ {
				assert.True(t, orders[o], "n=%d seed=%d missing play order %d", n, seed, o)
			}

			top := topDiscardOf(st)
			require.NotNil(t, top)
			assert.NotEqual(t, models.RankWildDrawFour, top.Rank, "opening discard is never a draw four")
			assert.Empty(t, st.ActiveWildcardColor)

			s := &step{state: st}
			cur, err := s.currentPlayer()
			require.NoError(t, err)
			ok, err := s.canPlay(cur.UserID)
			require.NoError(t, err)
			assert.True(t, ok, "current player must hold a playable card")
		}
	}
}

func TestStartGameRejections(t *testing.T) {
	g, users, _ := setupTestGame(t, 1, nil)
	requireClientError(t, g.StartGame(ctx, users[0].ID), msgNotEnoughPlayers)

	g, users, _ = setupTestGame(t, 2, nil)
	requireClientError(t, g.StartGame(ctx, users[1].ID), msgNotHost)
	require.NoError(t, g.StartGame(ctx, users[0].ID))
	requireClientError(t, g.StartGame(ctx, users[0].ID), msgAlreadyStarted)
}

func TestAddPlayerRejections(t *testing.T) {
	g, users, _ := setupTestGame(t, MaxPlayers, nil)
	requireClientError(t, g.AddPlayer(ctx, users[1]), msgAlreadyJoined)

	extra := newTestUsers(1)[0]
	requireClientError(t, g.AddPlayer(ctx, extra), msgGameFull)

	st := committed(g)
	assert.Len(t, st.Players, MaxPlayers)
	for _, p := range st.Players {
		assert.Equal(t, -1, p.PlayOrder)
		assert.Equal(t, models.PlayerPlaying, p.State)
		assert.Equal(t, p.UserID == users[0].ID, p.IsHost)
	}

	require.NoError(t, g.RemovePlayer(ctx, users[3].ID))
	require.NoError(t, g.StartGame(ctx, users[0].ID))
	requireClientError(t, g.AddPlayer(ctx, users[3]), msgAlreadyStarted)
}

func TestRemovePlayerBeforeStartReassignsHost(t *testing.T) {
	g, users, _ := setupTestGame(t, 3, nil)
	require.NoError(t, g.RemovePlayer(ctx, users[0].ID))

	st := committed(g)
	require.Len(t, st.Players, 2)
	assert.Nil(t, st.Player(users[0].ID))
	hosts := 0
	for _, p := range st.Players {
		if p.IsHost {
			hosts++
		}
	}
	assert.Equal(t, 1, hosts, "exactly one host remains")
	assert.False(t, st.Ended)

	requireClientError(t, g.RemovePlayer(ctx, users[0].ID), msgNotInGame)
}

func TestRejoinAfterLeaveTakesFreshSeat(t *testing.T) {
	g, users, _ := setupTestGame(t, 3, nil)
	require.NoError(t, g.RemovePlayer(ctx, users[1].ID))
	dave := models.User{ID: uuid.New(), Username: "dave"}
	require.NoError(t, g.AddPlayer(ctx, dave))

	st := committed(g)
	require.Len(t, st.Players, 3)
	assert.Equal(t, 3, st.Player(dave.ID).SeatOrder)
	seats := make(map[int]bool)
	for _, p := range st.Players {
		assert.False(t, seats[p.SeatOrder], "seat %d is taken twice", p.SeatOrder)
		seats[p.SeatOrder] = true
	}
}

func TestLastPlayerLeavingDeletesGame(t *testing.T) {
	g, users, gs := setupTestGame(t, 1, nil)
	sub := &mockSubscriber{}
	_, err := g.Connect(ctx, users[0], sub)
	require.NoError(t, err)

	require.NoError(t, g.RemovePlayer(ctx, users[0].ID))

	assert.Contains(t, sub.events(), EventGameEnded)
	assert.Contains(t, sub.events(), EventGameDeleted)
	assert.True(t, sub.isClosed())
	_, err = gs.GetGame(ctx, g.ID)
	assert.ErrorIs(t, err, ErrGameNotFound)
}

// TestDrawTwoTwoPlayers: the opponent draws two and the player goes again.
func TestDrawTwoTwoPlayers(t *testing.T) {
	drawTwo := card(t, models.ColorRed, models.RankDrawTwo, 0)
	g, users := setupStartedGame(t, 2, layout{
		hands: [][]int{
			{drawTwo, card(t, models.ColorRed, models.RankFive, 0), card(t, models.ColorBlue, models.RankThree, 0)},
			{card(t, models.ColorGreen, models.RankOne, 0), card(t, models.ColorRed, models.RankSix, 0)},
		},
		discard: []int{card(t, models.ColorRed, models.RankSeven, 0)},
		deckTop: []int{card(t, models.ColorYellow, models.RankTwo, 0), card(t, models.ColorYellow, models.RankThree, 0)},
	}, nil)
	alice, bob := users[0].ID, users[1].ID
	sub := &mockSubscriber{}
	_, err := g.Connect(ctx, users[0], sub)
	require.NoError(t, err)
	sub.clear()

	require.NoError(t, g.PlayCard(ctx, alice, drawTwo, ""))

	st := committed(g)
	assert.Len(t, handOf(st, bob), 4, "opponent draws two")
	assert.Len(t, handOf(st, alice), 2)
	assert.Equal(t, 0, st.Player(alice).PlayOrder, "opponent is skipped")
	assert.Equal(t, 1, st.Player(bob).PlayOrder)
	assert.Equal(t, drawTwo, topDiscardOf(st).ID)
	assert.Equal(t, []GameEventType{EventCardPlayed, EventDealtCard, EventDealtCard, EventSkippedTurn}, sub.events())
	require.NotNil(t, sub.lastState())
}

func TestReverseThreePlayers(t *testing.T) {
	reverse := card(t, models.ColorRed, models.RankReverse, 0)
	g, users := setupStartedGame(t, 3, layout{
		hands: [][]int{
			{reverse, card(t, models.ColorRed, models.RankFive, 0)},
			{card(t, models.ColorRed, models.RankEight, 0), card(t, models.ColorGreen, models.RankOne, 0)},
			{card(t, models.ColorRed, models.RankNine, 0), card(t, models.ColorBlue, models.RankTwo, 0)},
		},
		discard: []int{card(t, models.ColorRed, models.RankSeven, 0)},
	}, nil)

	require.NoError(t, g.PlayCard(ctx, users[0].ID, reverse, ""))

	st := committed(g)
	assert.Equal(t, 2, st.Player(users[0].ID).PlayOrder)
	assert.Equal(t, 1, st.Player(users[1].ID).PlayOrder)
	assert.Equal(t, 0, st.Player(users[2].ID).PlayOrder, "turn passes back to the previous player")
}

func TestSkipThreePlayers(t *testing.T) {
	skip := card(t, models.ColorRed, models.RankSkip, 0)
	g, users := setupStartedGame(t, 3, layout{
		hands: [][]int{
			{skip, card(t, models.ColorRed, models.RankFive, 0)},
			{card(t, models.ColorRed, models.RankEight, 0), card(t, models.ColorGreen, models.RankOne, 0)},
			{card(t, models.ColorRed, models.RankNine, 0), card(t, models.ColorBlue, models.RankTwo, 0)},
		},
		discard: []int{card(t, models.ColorRed, models.RankSeven, 0)},
	}, nil)
	sub := &mockSubscriber{}
	_, err := g.Connect(ctx, users[1], sub)
	require.NoError(t, err)

	require.NoError(t, g.PlayCard(ctx, users[0].ID, skip, ""))

	st := committed(g)
	assert.Equal(t, 0, st.Player(users[2].ID).PlayOrder)
	assert.Equal(t, 2, st.Player(users[1].ID).PlayOrder)
	assert.Equal(t, 1, st.Player(users[0].ID).PlayOrder)
	assert.Contains(t, sub.events(), EventSkippedTurn)
}

func TestWildDrawFourThreePlayers(t *testing.T) {
	drawFour := card(t, models.ColorBlack, models.RankWildDrawFour, 0)
	g, users := setupStartedGame(t, 3, layout{
		hands: [][]int{
			{drawFour, card(t, models.ColorRed, models.RankFive, 0)},
			{card(t, models.ColorRed, models.RankEight, 0), card(t, models.ColorGreen, models.RankOne, 0)},
			{card(t, models.ColorBlue, models.RankNine, 0), card(t, models.ColorBlue, models.RankTwo, 0)},
		},
		discard: []int{card(t, models.ColorRed, models.RankSeven, 0)},
	}, nil)

	requireClientError(t, g.PlayCard(ctx, users[0].ID, drawFour, ""), msgWildcardColor)
	requireClientError(t, g.PlayCard(ctx, users[0].ID, drawFour, models.ColorBlack), msgWildcardColor)
	require.NoError(t, g.PlayCard(ctx, users[0].ID, drawFour, models.ColorBlue))

	st := committed(g)
	assert.Equal(t, models.ColorBlue, st.ActiveWildcardColor)
	assert.Len(t, handOf(st, users[1].ID), 6, "next player draws four")
	assert.Equal(t, 0, st.Player(users[2].ID).PlayOrder, "next player is skipped")
	assert.Len(t, handOf(st, users[2].ID), 2, "blue cards are playable on the bound color")
}

func TestWildcardColorClearedByColoredCard(t *testing.T) {
	wild := card(t, models.ColorBlack, models.RankWild, 0)
	blue := card(t, models.ColorBlue, models.RankNine, 0)
	g, users := setupStartedGame(t, 2, layout{
		hands: [][]int{
			{wild, card(t, models.ColorRed, models.RankFive, 0)},
			{blue, card(t, models.ColorBlue, models.RankTwo, 0), card(t, models.ColorRed, models.RankOne, 0)},
		},
		discard: []int{card(t, models.ColorRed, models.RankSeven, 0)},
	}, nil)

	require.NoError(t, g.PlayCard(ctx, users[0].ID, wild, models.ColorBlue))
	requireClientError(t, g.PlayCard(ctx, users[1].ID, card(t, models.ColorRed, models.RankOne, 0), ""), msgCardNotPlayable)
	require.NoError(t, g.PlayCard(ctx, users[1].ID, blue, ""))
	assert.Empty(t, committed(g).ActiveWildcardColor)
}

func TestPlayCardRejectionsLeaveStateUntouched(t *testing.T) {
	red5 := card(t, models.ColorRed, models.RankFive, 0)
	blue3 := card(t, models.ColorBlue, models.RankThree, 0)
	g, users := setupStartedGame(t, 2, layout{
		hands: [][]int{
			{red5, blue3},
			{card(t, models.ColorGreen, models.RankOne, 0), card(t, models.ColorRed, models.RankSix, 0)},
		},
		discard: []int{card(t, models.ColorRed, models.RankSeven, 0)},
	}, nil)
	sub := &mockSubscriber{}
	_, err := g.Connect(ctx, users[0], sub)
	require.NoError(t, err)
	sub.clear()
	before := committed(g)

	requireClientError(t, g.PlayCard(ctx, users[1].ID, card(t, models.ColorRed, models.RankSix, 0), ""), msgNotYourTurn)
	requireClientError(t, g.PlayCard(ctx, users[0].ID, card(t, models.ColorRed, models.RankSix, 0), ""), msgCardNotInHand)
	requireClientError(t, g.PlayCard(ctx, users[0].ID, blue3, ""), msgCardNotPlayable)
	requireClientError(t, g.SayUno(ctx, uuid.New()), msgNotInGame)

	assert.Equal(t, before, committed(g))
	assert.Empty(t, sub.messages(), "rejected actions are not broadcast")
}

func TestPlayCardBeforeStart(t *testing.T) {
	g, users, _ := setupTestGame(t, 2, nil)
	requireClientError(t, g.PlayCard(ctx, users[0].ID, 1, ""), msgNotInProgress)
}

func TestPlayingLastCardWins(t *testing.T) {
	red5 := card(t, models.ColorRed, models.RankFive, 0)
	g, users := setupStartedGame(t, 3, layout{
		hands: [][]int{
			{red5},
			{card(t, models.ColorGreen, models.RankOne, 0), card(t, models.ColorRed, models.RankSix, 0)},
			{card(t, models.ColorBlue, models.RankOne, 0)},
		},
		discard: []int{card(t, models.ColorRed, models.RankSeven, 0)},
	}, nil)
	sub := &mockSubscriber{}
	_, err := g.Connect(ctx, users[2], sub)
	require.NoError(t, err)

	require.NoError(t, g.PlayCard(ctx, users[0].ID, red5, ""))

	st := committed(g)
	assert.True(t, st.Ended)
	assert.Equal(t, models.PlayerWon, st.Player(users[0].ID).State)
	assert.Equal(t, models.PlayerLost, st.Player(users[1].ID).State)
	assert.Equal(t, models.PlayerLost, st.Player(users[2].ID).State)
	assert.Equal(t, 0, st.Player(users[0].ID).PlayOrder, "no turn order update after a win")
	assert.Contains(t, sub.events(), EventGameEnded)

	final := sub.lastState()
	require.NotNil(t, final)
	for _, c := range final.Cards {
		assert.NotZero(t, c.ID, "ended games are revealed in full")
	}

	requireClientError(t, g.PlayCard(ctx, users[1].ID, card(t, models.ColorRed, models.RankSix, 0), ""), msgNotInProgress)
	requireClientError(t, g.RemovePlayer(ctx, users[1].ID), msgAlreadyEnded)
}

// TestEnsureCurrentPlayerCanPlay: the next player draws until they can follow.
func TestEnsureCurrentPlayerCanPlay(t *testing.T) {
	red5 := card(t, models.ColorRed, models.RankFive, 0)
	red9 := card(t, models.ColorRed, models.RankNine, 0)
	g, users := setupStartedGame(t, 2, layout{
		hands: [][]int{
			{red5, card(t, models.ColorRed, models.RankSix, 0)},
			{card(t, models.ColorGreen, models.RankOne, 0), card(t, models.ColorGreen, models.RankTwo, 0)},
		},
		discard: []int{card(t, models.ColorRed, models.RankSeven, 0)},
		deckTop: []int{card(t, models.ColorBlue, models.RankOne, 0), card(t, models.ColorBlue, models.RankTwo, 0), red9},
	}, nil)

	require.NoError(t, g.PlayCard(ctx, users[0].ID, red5, ""))

	st := committed(g)
	hand := handOf(st, users[1].ID)
	require.Len(t, hand, 5)
	assert.Equal(t, red9, hand[4].ID)
	assert.Equal(t, 0, st.Player(users[1].ID).PlayOrder)
}

func TestAccuseMissedUnoWithinWindow(t *testing.T) {
	red5 := card(t, models.ColorRed, models.RankFive, 0)
	g, users := setupStartedGame(t, 3, layout{
		hands: [][]int{
			{red5, card(t, models.ColorRed, models.RankSix, 0)},
			{card(t, models.ColorRed, models.RankEight, 0), card(t, models.ColorGreen, models.RankOne, 0)},
			{card(t, models.ColorRed, models.RankNine, 0), card(t, models.ColorBlue, models.RankTwo, 0)},
		},
		discard: []int{card(t, models.ColorRed, models.RankSeven, 0)},
	}, nil)
	alice, carol := users[0].ID, users[2].ID
	// A few turns have passed since anyone declared uno.
	rig(t, g, func(st *models.GameState) {
		for _, p := range st.Players {
			p.CalledUnoTurnsAgo = 3
			p.HadOneCardTurnsAgo = 3
		}
	})
	sub := &mockSubscriber{}
	_, err := g.Connect(ctx, users[1], sub)
	require.NoError(t, err)

	requireClientError(t, g.AccuseMissedUno(ctx, carol, alice), msgAccusedHandSize)

	require.NoError(t, g.PlayCard(ctx, alice, red5, ""))
	st := committed(g)
	assert.Equal(t, 1, st.Player(alice).HadOneCardTurnsAgo)
	assert.Equal(t, 4, st.Player(alice).CalledUnoTurnsAgo)
	assert.Equal(t, 4, st.Player(carol).HadOneCardTurnsAgo, "counters advance game-wide")

	require.NoError(t, g.AccuseMissedUno(ctx, carol, alice))
	st = committed(g)
	assert.Len(t, handOf(st, alice), 1+AccusePenalty)
	assert.Contains(t, sub.events(), EventAccuseMissedUno)

	requireClientError(t, g.AccuseMissedUno(ctx, carol, alice), msgAccusedHandSize)
}

func TestAccuseMissedUnoAfterWindow(t *testing.T) {
	red5 := card(t, models.ColorRed, models.RankFive, 0)
	red8 := card(t, models.ColorRed, models.RankEight, 0)
	g, users := setupStartedGame(t, 3, layout{
		hands: [][]int{
			{red5, card(t, models.ColorRed, models.RankSix, 0)},
			{red8, card(t, models.ColorGreen, models.RankOne, 0)},
			{card(t, models.ColorRed, models.RankNine, 0), card(t, models.ColorBlue, models.RankTwo, 0)},
		},
		discard: []int{card(t, models.ColorRed, models.RankSeven, 0)},
	}, nil)
	alice, bob, carol := users[0].ID, users[1].ID, users[2].ID
	rig(t, g, func(st *models.GameState) {
		for _, p := range st.Players {
			p.CalledUnoTurnsAgo = 3
		}
	})

	require.NoError(t, g.PlayCard(ctx, alice, red5, ""))
	require.NoError(t, g.PlayCard(ctx, bob, red8, ""))

	requireClientError(t, g.AccuseMissedUno(ctx, carol, alice), msgAccusedWindowEnded)
	assert.Len(t, handOf(committed(g), alice), 1)
}

func TestAccuseMissedUnoAfterDeclaring(t *testing.T) {
	red5 := card(t, models.ColorRed, models.RankFive, 0)
	g, users := setupStartedGame(t, 3, layout{
		hands: [][]int{
			{red5, card(t, models.ColorRed, models.RankSix, 0)},
			{card(t, models.ColorRed, models.RankEight, 0), card(t, models.ColorGreen, models.RankOne, 0)},
			{card(t, models.ColorRed, models.RankNine, 0), card(t, models.ColorBlue, models.RankTwo, 0)},
		},
		discard: []int{card(t, models.ColorRed, models.RankSeven, 0)},
	}, nil)
	alice, carol := users[0].ID, users[2].ID
	rig(t, g, func(st *models.GameState) {
		for _, p := range st.Players {
			p.CalledUnoTurnsAgo = 3
		}
	})

	// Declaring before the play still covers the play itself.
	require.NoError(t, g.SayUno(ctx, alice))
	require.NoError(t, g.SayUno(ctx, alice), "declaring is idempotent")
	require.NoError(t, g.PlayCard(ctx, alice, red5, ""))
	assert.Equal(t, 1, committed(g).Player(alice).CalledUnoTurnsAgo)

	requireClientError(t, g.AccuseMissedUno(ctx, carol, alice), msgAccusedSaidUno)
	requireClientError(t, g.AccuseMissedUno(ctx, uuid.New(), alice), msgNotInGame)
	requireClientError(t, g.AccuseMissedUno(ctx, carol, uuid.New()), msgAccusedNotInGame)
}

// TestForfeitTwoPlayers: the remaining player wins when the other one leaves.
func TestForfeitTwoPlayers(t *testing.T) {
	g, users := setupStartedGame(t, 2, layout{
		hands: [][]int{
			{card(t, models.ColorRed, models.RankFive, 0), card(t, models.ColorRed, models.RankSix, 0)},
			{card(t, models.ColorGreen, models.RankOne, 0), card(t, models.ColorRed, models.RankEight, 0)},
		},
		discard: []int{card(t, models.ColorRed, models.RankSeven, 0)},
	}, nil)
	sub := &mockSubscriber{}
	_, err := g.Connect(ctx, users[0], sub)
	require.NoError(t, err)
	sub.clear()

	require.NoError(t, g.RemovePlayer(ctx, users[1].ID))

	st := committed(g)
	assert.True(t, st.Ended)
	assert.Equal(t, models.PlayerWon, st.Player(users[0].ID).State)
	bob := st.Player(users[1].ID)
	assert.Equal(t, models.PlayerLost, bob.State)
	assert.Equal(t, -1, bob.PlayOrder)
	assert.Empty(t, handOf(st, users[1].ID))
	assert.Equal(t, []GameEventType{EventPlayerForfeit, EventPlayerLeft, EventGameEnded}, sub.events())
	assert.Len(t, st.Cards, DeckSize)
}

func TestForfeitOfCurrentPlayerCompactsOrders(t *testing.T) {
	g, users := setupStartedGame(t, 3, layout{
		hands: [][]int{
			{card(t, models.ColorRed, models.RankFive, 0), card(t, models.ColorRed, models.RankSix, 0)},
			{card(t, models.ColorRed, models.RankEight, 0), card(t, models.ColorGreen, models.RankOne, 0)},
			{card(t, models.ColorRed, models.RankNine, 0), card(t, models.ColorBlue, models.RankTwo, 0)},
		},
		discard: []int{card(t, models.ColorRed, models.RankSeven, 0)},
	}, nil)
	alice := users[0].ID

	require.NoError(t, g.RemovePlayer(ctx, alice))

	st := committed(g)
	assert.False(t, st.Ended)
	assert.Equal(t, models.PlayerLost, st.Player(alice).State)
	assert.Equal(t, -1, st.Player(alice).PlayOrder)
	assert.Equal(t, 0, st.Player(users[1].ID).PlayOrder)
	assert.Equal(t, 1, st.Player(users[2].ID).PlayOrder)
	assert.False(t, st.Player(alice).IsHost)
	assert.True(t, st.Player(users[1].ID).IsHost || st.Player(users[2].ID).IsHost)
	assert.Equal(t, card(t, models.ColorRed, models.RankSeven, 0), topDiscardOf(st).ID, "forfeited cards go under the pile")
	for _, c := range st.Cards {
		if c.Location == models.LocationDiscard && c.ID != topDiscardOf(st).ID {
			assert.Equal(t, -1, c.Order)
		}
	}

	requireClientError(t, g.RemovePlayer(ctx, alice), msgAlreadyForfeited)
	requireClientError(t, g.PlayCard(ctx, alice, card(t, models.ColorRed, models.RankSix, 0), ""), msgNotYourTurn)
}

func TestCardCountInvariantAcrossPlay(t *testing.T) {
	g, users, _ := setupTestGame(t, 4, nil)
	g.NewRand = seededRand(42)
	require.NoError(t, g.StartGame(ctx, users[0].ID))

	// Play whatever is legal for a while; the deck will cycle through the discard pile.
	for turn := 0; turn < 200; turn++ {
		st := committed(g)
		require.Len(t, st.Cards, DeckSize)
		if st.Ended {
			break
		}
		s := &step{state: st}
		cur, err := s.currentPlayer()
		require.NoError(t, err)
		top := s.topDiscard()
		var playable *models.CardInstance
		for _, c := range s.hand(cur.UserID) {
			if IsPlayable(c.Card, top.Card, st.ActiveWildcardColor) {
				playable = c
				break
			}
		}
		require.NotNil(t, playable, "current player always holds a playable card")
		require.NoError(t, g.PlayCard(ctx, cur.UserID, playable.ID, models.ColorGreen))
	}
	assert.Len(t, committed(g).Cards, DeckSize)
}

func TestStoreFailureRollsBack(t *testing.T) {
	fs := &failingStore{Store: memory.New()}
	red5 := card(t, models.ColorRed, models.RankFive, 0)
	g, users := setupStartedGame(t, 2, layout{
		hands: [][]int{
			{red5, card(t, models.ColorRed, models.RankSix, 0)},
			{card(t, models.ColorGreen, models.RankOne, 0), card(t, models.ColorRed, models.RankEight, 0)},
		},
		discard: []int{card(t, models.ColorRed, models.RankSeven, 0)},
	}, fs)
	sub := &mockSubscriber{}
	_, err := g.Connect(ctx, users[1], sub)
	require.NoError(t, err)
	sub.clear()
	before := committed(g)

	fs.fail.Store(true)
	err = g.PlayCard(ctx, users[0].ID, red5, "")
	var ie *IntegrityError
	require.True(t, errors.As(err, &ie), "got %v", err)
	assert.ErrorIs(t, err, errSimulated)
	assert.Equal(t, before, committed(g))
	assert.Empty(t, sub.messages())

	fs.fail.Store(false)
	require.NoError(t, g.PlayCard(ctx, users[0].ID, red5, ""))
	assert.Equal(t, red5, topDiscardOf(committed(g)).ID)
}

func TestConcurrentPlaysAreSerialized(t *testing.T) {
	red5 := card(t, models.ColorRed, models.RankFive, 0)
	g, users := setupStartedGame(t, 2, layout{
		hands: [][]int{
			{red5, card(t, models.ColorRed, models.RankSix, 0), card(t, models.ColorRed, models.RankFour, 0)},
			{card(t, models.ColorRed, models.RankEight, 0), card(t, models.ColorGreen, models.RankOne, 0)},
		},
		discard: []int{card(t, models.ColorRed, models.RankSeven, 0)},
	}, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.PlayCard(ctx, users[0].ID, red5, "")
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.True(t, IsClientError(err), "unexpected error %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	st := committed(g)
	assert.Len(t, handOf(st, users[0].ID), 2)
	assert.Equal(t, 0, st.Player(users[1].ID).PlayOrder)
}

func TestConnectAndDisconnect(t *testing.T) {
	red5 := card(t, models.ColorRed, models.RankFive, 0)
	g, users := setupStartedGame(t, 2, layout{
		hands: [][]int{
			{red5, card(t, models.ColorRed, models.RankSix, 0)},
			{card(t, models.ColorGreen, models.RankOne, 0), card(t, models.ColorRed, models.RankEight, 0)},
		},
		discard: []int{card(t, models.ColorRed, models.RankSeven, 0)},
	}, nil)

	aliceSub := &mockSubscriber{}
	_, err := g.Connect(ctx, users[0], aliceSub)
	require.NoError(t, err)
	msgs := aliceSub.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, MessageGameState, msgs[0].Type)
	assert.Equal(t, EventUserConnected, msgs[1].Event.Type)
	assert.Equal(t, "alice", msgs[1].Event.User.Username)
	for _, c := range msgs[0].State.Cards {
		if c.OwnedBy(users[1].ID) {
			assert.Zero(t, c.ID, "opponent cards are hidden")
		}
	}

	bobSub := &mockSubscriber{}
	bobConn, err := g.Connect(ctx, users[1], bobSub)
	require.NoError(t, err)
	aliceSub.clear()

	require.NoError(t, g.PlayCard(ctx, users[0].ID, red5, ""))
	assert.Equal(t, EventCardPlayed, bobSub.events()[len(bobSub.events())-1])
	bobView := bobSub.lastState()
	require.NotNil(t, bobView)
	for _, c := range bobView.Cards {
		if c.OwnedBy(users[0].ID) {
			assert.Zero(t, c.ID)
		}
	}

	aliceSub.clear()
	g.Disconnect(bobConn)
	g.Disconnect(bobConn)
	assert.Equal(t, []GameEventType{EventUserDisconnected}, aliceSub.events())

	bobSub.clear()
	require.NoError(t, g.SayUno(ctx, users[0].ID))
	assert.Empty(t, bobSub.messages(), "disconnected viewers receive nothing")
}

func TestChat(t *testing.T) {
	g, users, _ := setupTestGame(t, 2, nil)
	sub := &mockSubscriber{}
	_, err := g.Connect(ctx, users[1], sub)
	require.NoError(t, err)
	sub.clear()

	requireClientError(t, g.Chat(ctx, users[0], "   "), msgChatEmpty)
	long := make([]byte, MaxChatLength+1)
	for i := range long {
		long[i] = 'a'
	}
	requireClientError(t, g.Chat(ctx, users[0], string(long)), msgChatTooLong)

	require.NoError(t, g.Chat(ctx, users[0], " good luck "))
	msgs := sub.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, MessageChat, msgs[0].Type)
	assert.Equal(t, "good luck", msgs[0].Chat.Message)
	assert.Equal(t, "alice", msgs[0].Chat.Username)
}
