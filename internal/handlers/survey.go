package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/tally/backend/internal/models"
	"github.com/emilythestrangee/tally/backend/internal/questions"
	"github.com/emilythestrangee/tally/backend/internal/survey"
)

type SurveyHandler struct {
	svc         *survey.Service
	catalog     *questions.Catalog
	recentLimit int
}

func NewSurveyHandler(svc *survey.Service, catalog *questions.Catalog, recentLimit int) *SurveyHandler {
	return &SurveyHandler{svc: svc, catalog: catalog, recentLimit: recentLimit}
}

// Submit stores a single answer
func (h *SurveyHandler) Submit(c *gin.Context) {
	var input models.SubmitRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "All fields are required"})
		return
	}

	response, err := h.svc.SubmitOne(c.Request.Context(), input)
	if err != nil {
		respondError(c, err, "Failed to submit survey response")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"response": response.Summary(),
	})
}

// SubmitAll stores every answer of a completed questionnaire at once
func (h *SurveyHandler) SubmitAll(c *gin.Context) {
	var input models.SubmitAllRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "All fields are required"})
		return
	}

	count, err := h.svc.SubmitAll(c.Request.Context(), input)
	if err != nil {
		respondError(c, err, "Failed to submit all survey responses")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"count":   count,
	})
}

func (h *SurveyHandler) GetTallies(c *gin.Context) {
	snapshot, err := h.svc.Tallies(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to fetch tallies")
		return
	}
	if snapshot == nil {
		snapshot = models.Snapshot{}
	}
	c.JSON(http.StatusOK, snapshot)
}

// GetResponses returns the most recent responses, newest first
func (h *SurveyHandler) GetResponses(c *gin.Context) {
	limit := h.recentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > h.recentLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("limit must be between 1 and %d", h.recentLimit)})
			return
		}
		limit = n
	}

	responses, err := h.svc.Recent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err, "Failed to fetch responses")
		return
	}

	// If no responses, return empty array not null
	if responses == nil {
		responses = []models.Response{}
	}
	c.JSON(http.StatusOK, responses)
}

func (h *SurveyHandler) GetQuestions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"questions": h.catalog.All(),
		"required":  h.catalog.Required(),
	})
}
