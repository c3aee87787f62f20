// internal/handlers/game.go
package handlers

import (
	"context"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jason-s-yu/uno/internal/auth"
	"github.com/jason-s-yu/uno/internal/game"
	"github.com/jason-s-yu/uno/internal/models"
)

// maxUsernameLength bounds guest display names.
const maxUsernameLength = 32

type sessionRequest struct {
	Username string `json:"username"`
}

type sessionResponse struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Token    string    `json:"token"`
}

// handleCreateSession issues a guest identity. The token is returned in the body and
// set as the auth cookie.
func (s *APIServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Username)
	if name == "" {
		name = "Guest"
	}
	if utf8.RuneCountInString(name) > maxUsernameLength {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "username is too long"})
		return
	}

	user := models.User{ID: uuid.New(), Username: name}
	token, err := auth.CreateJWT(user)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	writeJSON(w, http.StatusCreated, sessionResponse{UserID: user.ID, Username: user.Username, Token: token})
}

type gameListResponse struct {
	Games []models.Game `json:"games"`
}

func (s *APIServer) handleListGames(w http.ResponseWriter, r *http.Request) {
	games, err := s.Games.ListJoinableGames(r.Context())
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	if games == nil {
		games = []models.Game{}
	}
	writeJSON(w, http.StatusOK, gameListResponse{Games: games})
}

func (s *APIServer) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	g, err := s.Games.CreateGame(r.Context(), user)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"game_id": g.ID})
}

func (s *APIServer) handleGetGame(w http.ResponseWriter, r *http.Request) {
	user, g, ok := s.resolve(w, r)
	if !ok {
		return
	}
	st, err := g.Snapshot(r.Context(), user.ID)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *APIServer) handleJoin(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, nil, func(ctx context.Context, g *game.UnoGame, user models.User) error {
		return g.AddPlayer(ctx, user)
	})
}

func (s *APIServer) handleLeave(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, nil, func(ctx context.Context, g *game.UnoGame, user models.User) error {
		return g.RemovePlayer(ctx, user.ID)
	})
}

func (s *APIServer) handleStart(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, nil, func(ctx context.Context, g *game.UnoGame, user models.User) error {
		return g.StartGame(ctx, user.ID)
	})
}

type playCardRequest struct {
	CardID              int          `json:"card_id"`
	ChosenWildcardColor models.Color `json:"chosen_wildcard_color,omitempty"`
}

func (s *APIServer) handlePlayCard(w http.ResponseWriter, r *http.Request) {
	var req playCardRequest
	s.act(w, r, &req, func(ctx context.Context, g *game.UnoGame, user models.User) error {
		return g.PlayCard(ctx, user.ID, req.CardID, req.ChosenWildcardColor)
	})
}

func (s *APIServer) handleSayUno(w http.ResponseWriter, r *http.Request) {
	s.act(w, r, nil, func(ctx context.Context, g *game.UnoGame, user models.User) error {
		return g.SayUno(ctx, user.ID)
	})
}

type accuseRequest struct {
	AccusedUserID uuid.UUID `json:"accused_user_id"`
}

func (s *APIServer) handleAccuse(w http.ResponseWriter, r *http.Request) {
	var req accuseRequest
	s.act(w, r, &req, func(ctx context.Context, g *game.UnoGame, user models.User) error {
		return g.AccuseMissedUno(ctx, user.ID, req.AccusedUserID)
	})
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *APIServer) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	s.act(w, r, &req, func(ctx context.Context, g *game.UnoGame, user models.User) error {
		return g.Chat(ctx, user, req.Message)
	})
}

// resolve authenticates the caller and looks up the game named in the path.
func (s *APIServer) resolve(w http.ResponseWriter, r *http.Request) (models.User, *game.UnoGame, bool) {
	user, ok := requireUser(w, r)
	if !ok {
		return models.User{}, nil, false
	}
	id, ok := pathGameID(w, r)
	if !ok {
		return models.User{}, nil, false
	}
	g, err := s.Games.GetGame(r.Context(), id)
	if err != nil {
		writeError(w, s.Logger, err)
		return models.User{}, nil, false
	}
	return user, g, true
}

// act runs one game action on behalf of the caller and answers 204 on success.
// A non-nil body is decoded only once the caller and the game are resolved.
func (s *APIServer) act(w http.ResponseWriter, r *http.Request, body interface{}, fn func(ctx context.Context, g *game.UnoGame, user models.User) error) {
	user, g, ok := s.resolve(w, r)
	if !ok {
		return
	}
	if body != nil && !decodeBody(w, r, body) {
		return
	}
	if err := fn(r.Context(), g, user); err != nil {
		writeError(w, s.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
