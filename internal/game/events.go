// internal/game/events.go
package game

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jason-s-yu/uno/internal/models"
	"github.com/sirupsen/logrus"
)

// GameEventType is an enum-like type for broadcasting game actions.
type GameEventType string

const (
	EventUserConnected    GameEventType = "USER_CONNECTED"
	EventUserDisconnected GameEventType = "USER_DISCONNECTED"
	EventPlayerJoined     GameEventType = "PLAYER_JOINED"
	EventPlayerLeft       GameEventType = "PLAYER_LEFT"
	EventPlayerForfeit    GameEventType = "PLAYER_FORFEIT"
	EventDeckShuffled     GameEventType = "DECK_SHUFFLED"
	EventDealtCard        GameEventType = "DEALT_CARD"
	EventCardPlayed       GameEventType = "CARD_PLAYED"
	EventSkippedTurn      GameEventType = "SKIPPED_TURN"
	EventReversedTurns    GameEventType = "REVERSED_TURNS"
	EventCalledUno        GameEventType = "CALLED_UNO"
	EventAccuseMissedUno  GameEventType = "ACCUSE_MISSED_UNO"
	EventGameStarted      GameEventType = "GAME_STARTED"
	EventGameEnded        GameEventType = "GAME_ENDED"
	EventGameDeleted      GameEventType = "GAME_DELETED"
)

// EventUser identifies the subject of an event.
type EventUser struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username,omitempty"`
}

// EventCard carries the public face of a played card.
type EventCard struct {
	Color models.Color `json:"color"`
	Rank  models.Rank  `json:"rank"`
}

// GameEvent holds data about an event that can be broadcast to the clients in a consistent format.
type GameEvent struct {
	Type    GameEventType `json:"type"`
	User    *EventUser    `json:"user,omitempty"`
	Card    *EventCard    `json:"card,omitempty"`
	Accuser *EventUser    `json:"accuser,omitempty"`
	Accused *EventUser    `json:"accused,omitempty"`
}

// MessageType tags what a Message carries.
type MessageType string

const (
	MessageGameState MessageType = "game_state"
	MessageGameEvent MessageType = "game_event"
	MessageChat      MessageType = "chat_message"
)

// ChatMessage is a line of table talk relayed to everyone watching a game.
type ChatMessage struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Message  string    `json:"message"`
}

// Message is what a Subscriber receives: a sanitized snapshot, an event, or a chat line.
type Message struct {
	Type  MessageType       `json:"type"`
	State *models.GameState `json:"state,omitempty"`
	Event *GameEvent        `json:"event,omitempty"`
	Chat  *ChatMessage      `json:"chat,omitempty"`
}

// Bytes marshals the message as JSON.
// Logs a warning and returns empty JSON "{}" on marshalling error.
func (m Message) Bytes() []byte {
	data, err := json.Marshal(m)
	if err != nil {
		logrus.Warnf("failed to marshal %s message: %v", m.Type, err)
		return []byte("{}")
	}
	return data
}

// Subscriber is one viewer connection attached to a game.
// Send must not block; a slow viewer may drop messages.
type Subscriber interface {
	Send(msg Message)
	// Close is called when the game is deleted and the connection should be torn down.
	Close()
}

// actorOf returns the user an event is attributed to for the action log.
func (ev GameEvent) actorOf() uuid.UUID {
	switch {
	case ev.Accuser != nil:
		return ev.Accuser.ID
	case ev.User != nil:
		return ev.User.ID
	default:
		return uuid.Nil
	}
}

// payload flattens the event's extra fields for the action log.
func (ev GameEvent) payload() map[string]interface{} {
	p := make(map[string]interface{})
	if ev.User != nil {
		p["user_id"] = ev.User.ID
	}
	if ev.Card != nil {
		p["color"] = ev.Card.Color
		p["rank"] = ev.Card.Rank
	}
	if ev.Accused != nil {
		p["accused_user_id"] = ev.Accused.ID
	}
	return p
}
