package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/uno/internal/auth"
	"github.com/jason-s-yu/uno/internal/game"
	"github.com/jason-s-yu/uno/internal/models"
	"github.com/sirupsen/logrus"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeError maps game errors to HTTP statuses. Client errors carry their message to
// the caller; anything else is logged and reported as an internal error.
func writeError(w http.ResponseWriter, logger logrus.FieldLogger, err error) {
	var ce *game.ClientError
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ce.Message})
	case errors.Is(err, game.ErrGameNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "game not found"})
	default:
		logger.WithError(err).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

// requireUser authenticates the request, writing 401 and returning false on failure.
func requireUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, err := auth.UserFromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid or missing auth token"})
		return models.User{}, false
	}
	return user, true
}

// decodeBody decodes a JSON request body into v, writing 400 and returning false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request payload"})
		return false
	}
	return true
}

// pathGameID parses the {id} path segment, writing 400 and returning false when malformed.
func pathGameID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid game id"})
		return uuid.Nil, false
	}
	return id, true
}
