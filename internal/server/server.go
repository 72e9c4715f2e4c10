package server

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/tally/backend/internal/broadcast"
	"github.com/emilythestrangee/tally/backend/internal/config"
	"github.com/emilythestrangee/tally/backend/internal/handlers"
	"github.com/emilythestrangee/tally/backend/internal/middleware"
)

type Server struct {
	cfg     *config.Config
	handler *handlers.Handler
	hub     *broadcast.Hub
}

// NewServer creates and configures a new server
func NewServer(cfg *config.Config, handler *handlers.Handler, hub *broadcast.Hub) *http.Server {
	// Create server instance
	newServer := &Server{
		cfg:     cfg,
		handler: handler,
		hub:     hub,
	}

	// Configure Gin router
	router := newServer.RegisterRoutes()

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Printf("🚀 Server starting on port %d\n", cfg.Port)
	fmt.Println("📝 Press Ctrl+C to stop the server")

	return server
}

func (s *Server) corsConfig() cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * 3600,
	}
	if s.cfg.AllowAllOrigins() {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = s.cfg.CORSOrigins
		c.AllowCredentials = true
	}
	return c
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	r := gin.Default()

	// CORS configuration
	r.Use(cors.New(s.corsConfig()))

	// Live updates
	r.GET("/socket", gin.WrapF(s.hub.ServeWS))

	// API routes
	api := r.Group("/api")
	{
		api.GET("/health", s.handler.Health.Health)

		api.POST("/users/register", s.handler.User.Register)

		api.POST("/survey/submit", s.handler.Survey.Submit)
		api.POST("/survey/submit-all", s.handler.Survey.SubmitAll)
		api.GET("/survey/tallies", s.handler.Survey.GetTallies)
		api.GET("/survey/responses", s.handler.Survey.GetResponses)
		api.GET("/survey/questions", s.handler.Survey.GetQuestions)

		// Admin routes (token required only when ADMIN_TOKEN_SECRET is set)
		admin := api.Group("")
		admin.Use(middleware.AdminAuth(s.cfg.AdminTokenSecret))
		{
			admin.POST("/reset", s.handler.Admin.Reset)
		}
	}

	return r
}
