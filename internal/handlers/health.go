package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/tally/backend/internal/database"
)

type HealthHandler struct {
	store    database.Store
	sessions SessionCounter
}

func NewHealthHandler(store database.Store, sessions SessionCounter) *HealthHandler {
	return &HealthHandler{store: store, sessions: sessions}
}

func (h *HealthHandler) Health(c *gin.Context) {
	sessions := 0
	if h.sessions != nil {
		sessions = h.sessions.Sessions()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"database":  h.store.Mode(),
		"sessions":  sessions,
		"store":     h.store.Health(c.Request.Context()),
	})
}
