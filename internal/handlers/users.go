package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/tally/backend/internal/models"
	"github.com/emilythestrangee/tally/backend/internal/survey"
)

type UserHandler struct {
	svc *survey.Service
}

func NewUserHandler(svc *survey.Service) *UserHandler {
	return &UserHandler{svc: svc}
}

// Register creates a participant from a display name
func (h *UserHandler) Register(c *gin.Context) {
	var input models.RegisterRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name is required"})
		return
	}

	user, err := h.svc.Register(c.Request.Context(), input.Name)
	if err != nil {
		respondError(c, err, "Failed to register user")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"user":    user.Summary(),
	})
}
