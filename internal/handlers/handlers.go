package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/tally/backend/internal/database"
	"github.com/emilythestrangee/tally/backend/internal/questions"
	"github.com/emilythestrangee/tally/backend/internal/survey"
)

// SessionCounter reports live connections for the health endpoint.
type SessionCounter interface {
	Sessions() int
}

type Deps struct {
	Service     *survey.Service
	Store       database.Store
	Sessions    SessionCounter
	Catalog     *questions.Catalog
	RecentLimit int
}

// Handler combines all handler types
type Handler struct {
	User   *UserHandler
	Survey *SurveyHandler
	Admin  *AdminHandler
	Health *HealthHandler
}

// NewHandler creates a unified handler with all sub-handlers
func NewHandler(d Deps) *Handler {
	if d.RecentLimit <= 0 {
		d.RecentLimit = database.DefaultRecentLimit
	}

	return &Handler{
		User:   NewUserHandler(d.Service),
		Survey: NewSurveyHandler(d.Service, d.Catalog, d.RecentLimit),
		Admin:  NewAdminHandler(d.Service),
		Health: NewHealthHandler(d.Store, d.Sessions),
	}
}

// respondError maps validation and mode errors to 400 and anything else to a
// 500 carrying the fixed message.
func respondError(c *gin.Context, err error, message string) {
	var ve *survey.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Message})
	case errors.Is(err, database.ErrUnsupportedInDurableMode):
		c.JSON(http.StatusBadRequest, gin.H{"error": database.ErrUnsupportedInDurableMode.Error()})
	default:
		log.Printf("%s: %v", message, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}
