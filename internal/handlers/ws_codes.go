// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the game handler.
// These provide more specific reasons for closure than standard codes.
const (
	BadSubprotocolError websocket.StatusCode = 3000 // Client connected with an unsupported subprotocol.
	GameDeletedClose    websocket.StatusCode = 3004 // The game was deleted while the viewer was attached.
)
