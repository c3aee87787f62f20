// internal/game/game.go
package game

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jason-s-yu/uno/internal/models"
	"github.com/jason-s-yu/uno/internal/store"
	"github.com/sirupsen/logrus"
)

// ActionRecorder receives every event a game emits so the historian can persist it.
type ActionRecorder interface {
	PublishGameAction(ctx context.Context, record models.GameActionRecord) error
}

// OnGameEndFunc is invoked after the transition that ended a game has been broadcast.
// winner is uuid.Nil when the game ended because every player left before it started.
type OnGameEndFunc func(gameID uuid.UUID, winner uuid.UUID)

type subscription struct {
	user models.User
	sub  Subscriber
}

// UnoGame is the state machine of a single game. Every transition runs under Mu as one
// store transaction; the committed state replaces the cached one only after the store
// commits, and viewers are notified after Mu is released.
type UnoGame struct {
	ID uuid.UUID

	// Mu serializes transitions.
	Mu sync.Mutex
	// pubMu orders fan-out so viewers see transitions in commit order.
	// It is always acquired before Mu is released.
	pubMu sync.Mutex

	store   store.Store
	state   *models.GameState // last committed state, nil until loaded
	deleted bool

	subsMu     sync.Mutex
	subs       map[uint64]subscription
	nextConnID uint64
	unloaded   bool // dropped from the registry; guarded by subsMu

	actionIndex int

	// NewRand returns the random source used by one transition.
	// Tests inject a seeded source for determinism.
	NewRand func() *rand.Rand

	// ActionLog receives every emitted event. If nil, nothing is recorded.
	ActionLog ActionRecorder

	// OnGameEnd is invoked once, after the game ends.
	OnGameEnd OnGameEndFunc

	// OnIdle is invoked when the last viewer of an ended game disconnects.
	OnIdle func(gameID uuid.UUID)

	logger logrus.FieldLogger
}

var seedCounter atomic.Int64

// defaultRand returns a time-seeded source, distinct for every call.
func defaultRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano() + seedCounter.Add(1)))
}

// NewUnoGame returns the state machine for an existing game id. State is loaded from the
// store lazily on first use.
func NewUnoGame(id uuid.UUID, st store.Store, logger logrus.FieldLogger) *UnoGame {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &UnoGame{
		ID:      id,
		store:   st,
		subs:    make(map[uint64]subscription),
		NewRand: defaultRand,
		logger:  logger.WithField("game_id", id),
	}
}

// NewGameState builds the initial state of a game: all 108 cards in DECK and, if host is
// not nil, the creator seated as host.
func NewGameState(id uuid.UUID, host *models.User) *models.GameState {
	st := &models.GameState{
		Game: models.Game{
			ID:        id,
			CreatedAt: time.Now().UTC(),
		},
		Cards: NewDeck(),
	}
	if host != nil {
		st.Players = append(st.Players, &models.Player{
			UserID:    host.ID,
			Username:  host.Username,
			PlayOrder: -1,
			SeatOrder: 0,
			State:     models.PlayerPlaying,
			IsHost:    true,
		})
	}
	return st
}

// step is the working copy of one transition. Nothing in it is visible outside the
// transition until the store commits.
type step struct {
	state  *models.GameState
	rng    *rand.Rand
	events []GameEvent
}

func (s *step) emit(ev GameEvent) {
	s.events = append(s.events, ev)
}

func (s *step) eventUser(userID uuid.UUID) *EventUser {
	u := &EventUser{ID: userID}
	if p := s.state.Player(userID); p != nil {
		u.Username = p.Username
	}
	return u
}

// playerAt returns the active player holding a play order.
func (s *step) playerAt(order int) *models.Player {
	for _, p := range s.state.ActivePlayers() {
		if p.PlayOrder == order {
			return p
		}
	}
	return nil
}

// currentPlayer returns the active player whose turn it is, checking that the active play
// orders still form a permutation of 0..n-1.
func (s *step) currentPlayer() (*models.Player, error) {
	active := s.state.ActivePlayers()
	seen := make([]bool, len(active))
	var current *models.Player
	for _, p := range active {
		if p.PlayOrder < 0 || p.PlayOrder >= len(active) || seen[p.PlayOrder] {
			return nil, errCorruptPlayOrder
		}
		seen[p.PlayOrder] = true
		if p.PlayOrder == 0 {
			current = p
		}
	}
	if current == nil {
		return nil, errNoCurrentPlayer
	}
	return current, nil
}

func (s *step) canPlay(userID uuid.UUID) (bool, error) {
	top := s.topDiscard()
	if top == nil {
		return false, errNoDiscard
	}
	for _, c := range s.hand(userID) {
		if IsPlayable(c.Card, top.Card, s.state.ActiveWildcardColor) {
			return true, nil
		}
	}
	return false, nil
}

// ensureCurrentCanPlay deals to the current player until they hold a playable card.
func (s *step) ensureCurrentCanPlay() error {
	for {
		cur, err := s.currentPlayer()
		if err != nil {
			return err
		}
		ok, err := s.canPlay(cur.UserID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err := s.deal(cur.UserID); err != nil {
			return err
		}
	}
}

// win ends the game with a single winner.
func (s *step) win(winner *models.Player) {
	for _, p := range s.state.Players {
		if p == winner {
			p.State = models.PlayerWon
		} else if p.Active() {
			p.State = models.PlayerLost
		}
	}
	s.state.Ended = true
	s.emit(GameEvent{Type: EventGameEnded, User: s.eventUser(winner.UserID)})
}

// reassignHost hands the host seat to a random candidate when the leaving player held it.
func (s *step) reassignHost(leaving *models.Player, candidates []*models.Player) {
	if !leaving.IsHost {
		return
	}
	leaving.IsHost = false
	if len(candidates) == 0 {
		return
	}
	candidates[s.rng.Intn(len(candidates))].IsHost = true
}

// load returns the committed state, reading it from the store when it is not cached.
// Caller must hold Mu.
func (g *UnoGame) load(ctx context.Context) (*models.GameState, error) {
	if g.deleted {
		return nil, ErrGameNotFound
	}
	if g.state != nil {
		return g.state, nil
	}
	var loaded *models.GameState
	err := g.store.ExecTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		loaded, err = tx.LoadGame(ctx, g.ID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, &IntegrityError{Op: "load game", Err: err}
	}
	g.state = loaded
	return loaded, nil
}

// transition runs fn against a copy of the committed state inside one store transaction.
// On success the copy becomes the committed state and its events and snapshots are
// broadcast; on any error the committed state is left as it was.
func (g *UnoGame) transition(ctx context.Context, op string, fn func(s *step) error) error {
	g.Mu.Lock()
	if g.deleted {
		g.Mu.Unlock()
		return ErrGameNotFound
	}

	var before, after *models.GameState
	var events []GameEvent
	err := g.store.ExecTx(ctx, func(ctx context.Context, tx store.Tx) error {
		base := g.state
		if base == nil {
			loaded, err := tx.LoadGame(ctx, g.ID)
			if err != nil {
				return err
			}
			base = loaded
		}
		s := &step{state: base.Clone(), rng: g.NewRand()}
		if err := fn(s); err != nil {
			return err
		}
		if err := persist(ctx, tx, base, s.state); err != nil {
			return err
		}
		before, after, events = base, s.state, s.events
		return nil
	})
	if err != nil {
		g.Mu.Unlock()
		switch {
		case IsClientError(err):
			return err
		case errors.Is(err, store.ErrNotFound):
			return ErrGameNotFound
		}
		g.logger.WithError(err).Errorf("%s aborted", op)
		return &IntegrityError{Op: op, Err: err}
	}
	g.state = after

	g.pubMu.Lock()
	g.Mu.Unlock()
	g.publish(after, events)
	g.pubMu.Unlock()

	if !before.Ended && after.Ended && g.OnGameEnd != nil {
		winner := uuid.Nil
		for _, p := range after.Players {
			if p.State == models.PlayerWon {
				winner = p.UserID
			}
		}
		g.OnGameEnd(g.ID, winner)
	}
	return nil
}

// persist writes the difference between two states of the same game.
func persist(ctx context.Context, tx store.Tx, before, after *models.GameState) error {
	if before.Game != after.Game {
		if err := tx.UpdateGame(ctx, &after.Game); err != nil {
			return err
		}
	}

	for _, p := range before.Players {
		if after.Player(p.UserID) == nil {
			if err := tx.DeletePlayer(ctx, after.ID, p.UserID); err != nil {
				return err
			}
		}
	}
	var players []*models.Player
	for _, p := range after.Players {
		if old := before.Player(p.UserID); old == nil || *old != *p {
			players = append(players, p)
		}
	}
	if len(players) > 0 {
		if err := tx.UpsertPlayers(ctx, after.ID, players); err != nil {
			return err
		}
	}

	old := make(map[int]*models.CardInstance, len(before.Cards))
	for _, c := range before.Cards {
		old[c.ID] = c
	}
	var cards []*models.CardInstance
	for _, c := range after.Cards {
		if o, ok := old[c.ID]; !ok || !o.Equal(c) {
			cards = append(cards, c)
		}
	}
	if len(cards) > 0 {
		if err := tx.UpdateCards(ctx, after.ID, cards); err != nil {
			return err
		}
	}
	return nil
}

// AddPlayer seats a user in a game that has not started yet.
func (g *UnoGame) AddPlayer(ctx context.Context, user models.User) error {
	return g.transition(ctx, "add player", func(s *step) error {
		st := s.state
		if st.Ended {
			return clientError(msgAlreadyEnded)
		}
		if st.Started {
			return clientError(msgAlreadyStarted)
		}
		if st.Player(user.ID) != nil {
			return clientError(msgAlreadyJoined)
		}
		if len(st.ActivePlayers())+1 > MaxPlayers {
			return clientError(msgGameFull)
		}
		seat := 0
		for _, p := range st.Players {
			if p.SeatOrder >= seat {
				seat = p.SeatOrder + 1
			}
		}
		st.Players = append(st.Players, &models.Player{
			UserID:    user.ID,
			Username:  user.Username,
			PlayOrder: -1,
			SeatOrder: seat,
			State:     models.PlayerPlaying,
			IsHost:    st.Host() == nil,
		})
		s.emit(GameEvent{Type: EventPlayerJoined, User: s.eventUser(user.ID)})
		g.logger.WithField("user_id", user.ID).Info("player joined")
		return nil
	})
}

// RemovePlayer takes a user out of the game. Before the game starts the seat is freed;
// once it is in progress the player forfeits.
func (g *UnoGame) RemovePlayer(ctx context.Context, userID uuid.UUID) error {
	return g.transition(ctx, "remove player", func(s *step) error {
		st := s.state
		if st.Ended {
			return clientError(msgAlreadyEnded)
		}
		p := st.Player(userID)
		if p == nil {
			return clientError(msgNotInGame)
		}
		user := s.eventUser(userID)

		if !st.Started {
			var remaining []*models.Player
			for _, o := range st.Players {
				if o != p {
					remaining = append(remaining, o)
				}
			}
			st.Players = remaining
			s.reassignHost(p, remaining)
			s.emit(GameEvent{Type: EventPlayerLeft, User: user})
			if len(remaining) == 0 {
				st.Ended = true
				s.emit(GameEvent{Type: EventGameEnded})
			}
			return nil
		}

		if !p.Active() {
			return clientError(msgAlreadyForfeited)
		}
		removed := p.PlayOrder
		p.State = models.PlayerLost
		p.PlayOrder = -1
		remaining := st.ActivePlayers()
		for _, o := range remaining {
			o.PlayOrder = CompactPlayOrder(o.PlayOrder, removed)
		}
		for _, c := range s.hand(userID) {
			c.Location = models.LocationDiscard
			c.Order = -1
			c.UserID = nil
		}
		s.reassignHost(p, remaining)
		s.emit(GameEvent{Type: EventPlayerForfeit, User: user})
		s.emit(GameEvent{Type: EventPlayerLeft, User: user})
		g.logger.WithField("user_id", userID).Info("player forfeited")

		if len(remaining) == 1 {
			s.win(remaining[0])
			return nil
		}
		return s.ensureCurrentCanPlay()
	})
}

// StartGame deals the opening hands and fixes the turn order. Only the host may start.
func (g *UnoGame) StartGame(ctx context.Context, requestingUserID uuid.UUID) error {
	return g.transition(ctx, "start game", func(s *step) error {
		st := s.state
		if st.Ended {
			return clientError(msgAlreadyEnded)
		}
		if st.Started {
			return clientError(msgAlreadyStarted)
		}
		if host := st.Host(); host == nil || host.UserID != requestingUserID {
			return clientError(msgNotHost)
		}
		if len(st.Players) < MinPlayers {
			return clientError(msgNotEnoughPlayers)
		}

		st.Started = true
		if err := s.shuffle(); err != nil {
			return err
		}
		for i := 0; i < StartingHandSize; i++ {
			for _, p := range st.Players {
				if err := s.deal(p.UserID); err != nil {
					return err
				}
			}
		}
		for i, order := range s.rng.Perm(len(st.Players)) {
			st.Players[i].PlayOrder = order
			st.Players[i].SeatOrder = order
		}

		// The opening discard may never be a wild draw four.
		top := s.topDeck()
		for top != nil && top.Rank == models.RankWildDrawFour {
			if err := s.shuffle(); err != nil {
				return err
			}
			top = s.topDeck()
		}
		if top == nil {
			return errDeckExhausted
		}
		s.discard(top)
		st.ActiveWildcardColor = ""

		if err := s.ensureCurrentCanPlay(); err != nil {
			return err
		}
		s.emit(GameEvent{Type: EventGameStarted})
		g.logger.Infof("game started with %d players", len(st.Players))
		return nil
	})
}

// PlayCard plays a card from the current player's hand. chosen is required when the card
// is a wildcard and ignored otherwise.
func (g *UnoGame) PlayCard(ctx context.Context, userID uuid.UUID, cardID int, chosen models.Color) error {
	return g.transition(ctx, "play card", func(s *step) error {
		st := s.state
		if !s.inProgress() {
			return clientError(msgNotInProgress)
		}
		cur, err := s.currentPlayer()
		if err != nil {
			return err
		}
		if cur.UserID != userID {
			return clientError(msgNotYourTurn)
		}
		hand := s.hand(userID)
		var card *models.CardInstance
		for _, c := range hand {
			if c.ID == cardID {
				card = c
				break
			}
		}
		if card == nil {
			return clientError(msgCardNotInHand)
		}
		top := s.topDiscard()
		if top == nil {
			return errNoDiscard
		}
		if !IsPlayable(card.Card, top.Card, st.ActiveWildcardColor) {
			return clientError(msgCardNotPlayable)
		}
		if card.Color == models.ColorBlack {
			if chosen == "" || !chosen.IsChoosable() {
				return clientError(msgWildcardColor)
			}
			st.ActiveWildcardColor = chosen
		} else {
			st.ActiveWildcardColor = ""
		}

		played := card.Card
		s.discard(card)
		s.emit(GameEvent{
			Type: EventCardPlayed,
			User: s.eventUser(userID),
			Card: &EventCard{Color: played.Color, Rank: played.Rank},
		})

		active := st.ActivePlayers()
		effect := ResolveEffect(played.Rank, len(active))
		next := s.playerAt(1)
		if next == nil {
			return errCorruptPlayOrder
		}
		for i := 0; i < effect.CardsToDraw; i++ {
			if err := s.deal(next.UserID); err != nil {
				return err
			}
		}

		if len(hand) == 2 {
			markDownToOneCard(cur)
		}
		tickTurn(st.Players)

		if len(hand) <= 1 {
			s.win(cur)
			return nil
		}

		for _, p := range active {
			p.PlayOrder = NextPlayOrder(p.PlayOrder, len(active), effect.SkipNext, effect.Reverse)
		}
		if effect.SkipNext {
			s.emit(GameEvent{Type: EventSkippedTurn, User: s.eventUser(next.UserID)})
		}
		if effect.Reverse {
			s.emit(GameEvent{Type: EventReversedTurns})
		}
		return s.ensureCurrentCanPlay()
	})
}

// SayUno records that a player declared uno.
func (g *UnoGame) SayUno(ctx context.Context, userID uuid.UUID) error {
	return g.transition(ctx, "say uno", func(s *step) error {
		if s.state.Ended {
			return clientError(msgAlreadyEnded)
		}
		p := s.state.Player(userID)
		if p == nil {
			return clientError(msgNotInGame)
		}
		markCalledUno(p)
		s.emit(GameEvent{Type: EventCalledUno, User: s.eventUser(userID)})
		return nil
	})
}

// AccuseMissedUno penalizes a player who is down to one card without having declared it.
func (g *UnoGame) AccuseMissedUno(ctx context.Context, accuserID, accusedID uuid.UUID) error {
	return g.transition(ctx, "accuse missed uno", func(s *step) error {
		if !s.inProgress() {
			return clientError(msgNotInProgress)
		}
		if s.state.Player(accuserID) == nil {
			return clientError(msgNotInGame)
		}
		accused := s.state.Player(accusedID)
		if accused == nil {
			return clientError(msgAccusedNotInGame)
		}
		if err := checkAccusal(accused, len(s.hand(accusedID))); err != nil {
			return err
		}
		for i := 0; i < AccusePenalty; i++ {
			if err := s.deal(accusedID); err != nil {
				return err
			}
		}
		s.emit(GameEvent{
			Type:    EventAccuseMissedUno,
			Accuser: s.eventUser(accuserID),
			Accused: s.eventUser(accusedID),
		})
		return nil
	})
}

// Chat relays a message to everyone watching the game. Nothing is persisted.
func (g *UnoGame) Chat(ctx context.Context, user models.User, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return clientError(msgChatEmpty)
	}
	if utf8.RuneCountInString(text) > MaxChatLength {
		return clientError(msgChatTooLong)
	}

	g.Mu.Lock()
	if _, err := g.load(ctx); err != nil {
		g.Mu.Unlock()
		return err
	}
	g.pubMu.Lock()
	g.Mu.Unlock()
	defer g.pubMu.Unlock()

	msg := Message{Type: MessageChat, Chat: &ChatMessage{UserID: user.ID, Username: user.Username, Message: text}}
	for _, sub := range g.subscribers() {
		sub.sub.Send(msg)
	}
	return nil
}

// Snapshot returns the game as the viewer is allowed to see it.
func (g *UnoGame) Snapshot(ctx context.Context, viewerID uuid.UUID) (*models.GameState, error) {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	st, err := g.load(ctx)
	if err != nil {
		return nil, err
	}
	return Sanitize(st, viewerID), nil
}

// Ended reports whether the committed state is terminal.
func (g *UnoGame) Ended() bool {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return g.state != nil && g.state.Ended
}

// Connect attaches a viewer. The viewer receives one consistent snapshot before any
// later transition is broadcast to it. The returned id is passed to Disconnect.
func (g *UnoGame) Connect(ctx context.Context, user models.User, sub Subscriber) (uint64, error) {
	g.Mu.Lock()
	st, err := g.load(ctx)
	if err != nil {
		g.Mu.Unlock()
		return 0, err
	}
	g.pubMu.Lock()
	g.Mu.Unlock()
	defer g.pubMu.Unlock()

	g.subsMu.Lock()
	if g.unloaded {
		g.subsMu.Unlock()
		return 0, errUnloaded
	}
	g.nextConnID++
	connID := g.nextConnID
	g.subs[connID] = subscription{user: user, sub: sub}
	g.subsMu.Unlock()

	sub.Send(Message{Type: MessageGameState, State: Sanitize(st, user.ID)})
	g.broadcastEvent(GameEvent{Type: EventUserConnected, User: &EventUser{ID: user.ID, Username: user.Username}})
	g.logger.WithField("user_id", user.ID).Debug("viewer connected")
	return connID, nil
}

// Disconnect detaches a viewer and tells the remaining ones. Unknown ids are ignored.
func (g *UnoGame) Disconnect(connID uint64) {
	g.pubMu.Lock()
	g.subsMu.Lock()
	s, ok := g.subs[connID]
	delete(g.subs, connID)
	remaining := len(g.subs)
	g.subsMu.Unlock()
	if !ok {
		g.pubMu.Unlock()
		return
	}
	g.broadcastEvent(GameEvent{Type: EventUserDisconnected, User: &EventUser{ID: s.user.ID, Username: s.user.Username}})
	g.pubMu.Unlock()
	g.logger.WithField("user_id", s.user.ID).Debug("viewer disconnected")

	if remaining == 0 && g.OnIdle != nil && g.Ended() {
		g.OnIdle(g.ID)
	}
}

// retireIfIdle marks an ended game with no viewers as unloaded and reports whether it did.
// Once unloaded, Connect refuses new viewers so they attach to a fresh instance instead.
func (g *UnoGame) retireIfIdle() bool {
	if !g.Ended() {
		return false
	}
	g.subsMu.Lock()
	defer g.subsMu.Unlock()
	if len(g.subs) > 0 {
		return false
	}
	g.unloaded = true
	return true
}

// Delete removes the game from the store, sends GAME_DELETED to every viewer and detaches them.
func (g *UnoGame) Delete(ctx context.Context) error {
	g.Mu.Lock()
	if g.deleted {
		g.Mu.Unlock()
		return ErrGameNotFound
	}
	err := g.store.ExecTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteGame(ctx, g.ID)
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		g.Mu.Unlock()
		return &IntegrityError{Op: "delete game", Err: err}
	}
	g.deleted = true
	g.state = nil
	g.pubMu.Lock()
	g.Mu.Unlock()
	defer g.pubMu.Unlock()

	ev := GameEvent{Type: EventGameDeleted}
	g.record(ev)
	g.subsMu.Lock()
	subs := g.subs
	g.subs = make(map[uint64]subscription)
	g.subsMu.Unlock()
	for _, s := range subs {
		s.sub.Send(Message{Type: MessageGameEvent, Event: &ev})
		s.sub.Close()
	}
	g.logger.Info("game deleted")
	return nil
}

func (g *UnoGame) subscribers() []subscription {
	g.subsMu.Lock()
	defer g.subsMu.Unlock()
	out := make([]subscription, 0, len(g.subs))
	for _, s := range g.subs {
		out = append(out, s)
	}
	return out
}

// publish sends the events of a committed transition followed by a fresh sanitized
// snapshot per viewer. Caller must hold pubMu.
func (g *UnoGame) publish(state *models.GameState, events []GameEvent) {
	for _, ev := range events {
		g.broadcastEvent(ev)
	}
	for _, s := range g.subscribers() {
		s.sub.Send(Message{Type: MessageGameState, State: Sanitize(state, s.user.ID)})
	}
}

// broadcastEvent records an event and sends it to every viewer. Caller must hold pubMu.
func (g *UnoGame) broadcastEvent(ev GameEvent) {
	g.record(ev)
	msg := Message{Type: MessageGameEvent, Event: &ev}
	for _, s := range g.subscribers() {
		s.sub.Send(msg)
	}
}

// record sends the event to the action log without blocking the caller.
// Caller must hold pubMu.
func (g *UnoGame) record(ev GameEvent) {
	g.actionIndex++
	if g.ActionLog == nil {
		return
	}
	rec := models.GameActionRecord{
		GameID:        g.ID,
		ActionIndex:   g.actionIndex,
		ActorUserID:   ev.actorOf(),
		ActionType:    string(ev.Type),
		ActionPayload: ev.payload(),
		Timestamp:     time.Now().UnixMilli(),
	}
	go func(rec models.GameActionRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := g.ActionLog.PublishGameAction(ctx, rec); err != nil {
			g.logger.WithError(err).Warnf("failed to publish action %d", rec.ActionIndex)
		}
	}(rec)
}
