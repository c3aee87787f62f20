// internal/game/errors.go
package game

import (
	"errors"
	"fmt"
)

// ErrGameNotFound is returned when no game exists for an id.
var ErrGameNotFound = errors.New("game not found")

var errUnloaded = errors.New("game instance unloaded")

// ClientError is returned when an action is rejected because one of its preconditions
// does not hold. The game is left untouched and nothing is broadcast.
type ClientError struct {
	Message string
}

func (e *ClientError) Error() string {
	return e.Message
}

func clientError(msg string) error {
	return &ClientError{Message: msg}
}

// IntegrityError is returned when a transition cannot complete because the store failed
// or the game reached a state that should be impossible. The transition is rolled back
// and the last committed state stays in effect.
type IntegrityError struct {
	Op  string
	Err error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// IsClientError reports whether err, or any error it wraps, is a *ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// Messages returned to players for rejected actions.
const (
	msgAlreadyStarted     = "The game has already started."
	msgNotHost            = "Only the game host may start the game."
	msgNotEnoughPlayers   = "At least 2 players are required to start the game."
	msgAlreadyJoined      = "You have already joined the game."
	msgGameFull           = "The game is full."
	msgAlreadyEnded       = "The game has already ended."
	msgNotInGame          = "You are not in this game."
	msgNotInProgress      = "The game must be in progress."
	msgNotYourTurn        = "It isn't your turn."
	msgCardNotInHand      = "You don't have the chosen card in your hand."
	msgCardNotPlayable    = "You have to play a card with the same color or value as the top discard card."
	msgWildcardColor      = "You have to select a color when you play a wildcard."
	msgAccusedNotInGame   = "The accused player is not in this game."
	msgAccusedHandSize    = "The accused player must only have 1 card in their hand."
	msgAccusedWindowEnded = "You must call out the player BEFORE the player after them plays a card."
	msgAccusedSaidUno     = "The accused player said 'UNO'."
	msgAlreadyForfeited   = "You have already left this game."
	msgChatEmpty          = "Chat messages may not be empty."
	msgChatTooLong        = "Chat messages may be at most 512 characters."
)
