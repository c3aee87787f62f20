// internal/handlers/api_server.go
package handlers

import (
	"net/http"

	"github.com/jason-s-yu/uno/internal/game"
	"github.com/jason-s-yu/uno/internal/middleware"
	"github.com/sirupsen/logrus"
)

// APIServer exposes the game registry over HTTP and websockets.
type APIServer struct {
	Games  *game.GameStore
	Logger logrus.FieldLogger
}

func NewAPIServer(games *game.GameStore, logger logrus.FieldLogger) *APIServer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &APIServer{Games: games, Logger: logger}
}

// Routes returns the full route table wrapped in the request logger.
func (s *APIServer) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /session", s.handleCreateSession)

	mux.HandleFunc("GET /games", s.handleListGames)
	mux.HandleFunc("POST /games", s.handleCreateGame)
	mux.HandleFunc("GET /games/{id}", s.handleGetGame)
	mux.HandleFunc("POST /games/{id}/join", s.handleJoin)
	mux.HandleFunc("POST /games/{id}/leave", s.handleLeave)
	mux.HandleFunc("POST /games/{id}/start", s.handleStart)
	mux.HandleFunc("POST /games/{id}/play-card", s.handlePlayCard)
	mux.HandleFunc("POST /games/{id}/say-uno", s.handleSayUno)
	mux.HandleFunc("POST /games/{id}/accuse", s.handleAccuse)
	mux.HandleFunc("POST /games/{id}/chat", s.handleChat)

	mux.HandleFunc("GET /games/{id}/ws", s.handleGameWS)

	return middleware.LogMiddleware(s.Logger)(mux)
}
