package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// APIHandlers provides HTTP handlers for REST API endpoints.
type APIHandlers struct {
	hub Hub
	log *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(hub Hub, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		hub: hub,
		log: logger,
	}
}

// OnlineResponse lists users connected to this instance.
type OnlineResponse struct {
	Users []string `json:"users"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Online returns the local presence snapshot.
// GET /api/online
func (h *APIHandlers) Online(c *gin.Context) {
	users, err := h.hub.OnlineUsers(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read online users")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "presence unavailable"})
		return
	}
	c.JSON(http.StatusOK, OnlineResponse{Users: users})
}
