package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/tally/backend/internal/survey"
)

type AdminHandler struct {
	svc *survey.Service
}

func NewAdminHandler(svc *survey.Service) *AdminHandler {
	return &AdminHandler{svc: svc}
}

// Reset clears all users and responses. Only the in-memory store allows it.
func (h *AdminHandler) Reset(c *gin.Context) {
	if err := h.svc.Reset(c.Request.Context()); err != nil {
		respondError(c, err, "Failed to reset data")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "All data has been reset",
	})
}
