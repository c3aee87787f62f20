// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/uno/internal/game"
	"github.com/jason-s-yu/uno/internal/middleware"
	"github.com/jason-s-yu/uno/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	// sendBuffer is how many outgoing messages a viewer may lag behind before drops.
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

// clientMessage is what a viewer may send over the socket.
type clientMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// wsSubscriber adapts one websocket connection to game.Subscriber. Messages are queued
// on a buffered channel and written by a dedicated goroutine.
type wsSubscriber struct {
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWSSubscriber() *wsSubscriber {
	return &wsSubscriber{
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

// Send queues msg without blocking. A full queue drops the message.
func (s *wsSubscriber) Send(msg game.Message) {
	safeSend(s.send, msg.Bytes())
}

// Close asks the writer to close the connection.
func (s *wsSubscriber) Close() {
	s.once.Do(func() { close(s.done) })
}

// safeSend sends data to a channel without panicking if the channel is closed.
// If the channel is full or closed, the send is skipped.
func safeSend(ch chan []byte, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Debugf("safeSend recovered panic: %v", r)
		}
	}()
	select {
	case ch <- data:
	default:
	}
}

// handleGameWS upgrades the connection and attaches the caller as a viewer of the game.
// The viewer receives a sanitized snapshot, then every event and snapshot that follows.
func (s *APIServer) handleGameWS(w http.ResponseWriter, r *http.Request) {
	user, g, ok := s.resolve(w, r)
	if !ok {
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{"game"},
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.Logger.Warnf("WebSocket accept error for game %s: %v", g.ID, err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

	if c.Subprotocol() != "game" {
		c.Close(BadSubprotocolError, "Client must use the 'game' subprotocol.")
		return
	}
	middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr, r.URL.Path)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := newWSSubscriber()
	g, connID, err := s.Games.Connect(ctx, g.ID, user, sub)
	if err != nil {
		c.Close(websocket.StatusInternalError, "Failed to load game.")
		middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, r.URL.Path, err)
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		s.writeLoop(ctx, c, sub)
	}()

	readErr := s.readLoop(ctx, c, g, user, sub)
	g.Disconnect(connID)
	cancel()
	wg.Wait()

	select {
	case <-sub.done:
		c.Close(GameDeletedClose, "The game was deleted.")
	default:
		c.Close(websocket.StatusNormalClosure, "")
	}
	middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, r.URL.Path, readErr)
}

// writeLoop drains the subscriber queue onto the socket until ctx ends or the game
// closes the subscriber. Pending messages are flushed before returning on close.
func (s *APIServer) writeLoop(ctx context.Context, c *websocket.Conn, sub *wsSubscriber) {
	write := func(data []byte) bool {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		if err := c.Write(writeCtx, websocket.MessageText, data); err != nil {
			s.Logger.Debugf("WebSocket write failed: %v", err)
			return false
		}
		return true
	}
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-sub.send:
			if !write(data) {
				return
			}
		case <-sub.done:
			for {
				select {
				case data := <-sub.send:
					if !write(data) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// readLoop handles client frames until the connection closes. Only ping and chat are
// accepted; game actions go through the HTTP endpoints.
func (s *APIServer) readLoop(ctx context.Context, c *websocket.Conn, g *game.UnoGame, user models.User, sub *wsSubscriber) error {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sendWSError(sub, "Invalid JSON format.")
			continue
		}

		switch msg.Type {
		case "ping":
			safeSend(sub.send, []byte(`{"type":"pong"}`))
		case "chat":
			if err := g.Chat(ctx, user, msg.Message); err != nil {
				var ce *game.ClientError
				if errors.As(err, &ce) {
					sendWSError(sub, ce.Message)
				} else {
					sendWSError(sub, "Failed to send chat message.")
				}
			}
		default:
			sendWSError(sub, "Unknown message type: "+msg.Type)
		}
	}
}

// sendWSError queues a structured error message for the client.
func sendWSError(sub *wsSubscriber, errorMsg string) {
	data, _ := json.Marshal(map[string]interface{}{
		"type":    "error",
		"message": errorMsg,
	})
	safeSend(sub.send, data)
}
