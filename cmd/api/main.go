package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/emilythestrangee/tally/backend/internal/broadcast"
	"github.com/emilythestrangee/tally/backend/internal/config"
	"github.com/emilythestrangee/tally/backend/internal/database"
	"github.com/emilythestrangee/tally/backend/internal/handlers"
	"github.com/emilythestrangee/tally/backend/internal/middleware"
	"github.com/emilythestrangee/tally/backend/internal/notifier"
	"github.com/emilythestrangee/tally/backend/internal/questions"
	"github.com/emilythestrangee/tally/backend/internal/server"
	"github.com/emilythestrangee/tally/backend/internal/survey"
)

func gracefulShutdown(ctx context.Context, apiServer *http.Server, stop context.CancelFunc, done chan bool) {
	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	catalog, err := questions.Default()
	if err != nil {
		log.Fatalf("Failed to load question catalog: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := database.Open(ctx, database.Options{
		URL:            cfg.DatabaseURL,
		ConnectTimeout: cfg.DBConnectTimeout,
	})
	defer store.Close()

	hub := broadcast.NewHub(broadcast.Options{
		PingInterval:   cfg.WSPingInterval,
		AllowedOrigins: cfg.CORSOrigins,
		Snapshot:       store.Tallies,
		AuthorizeAdmin: middleware.AdminTokenValidator(cfg.AdminTokenSecret),
	})
	defer hub.Close()

	if cfg.RedisURL != "" {
		startRelay(ctx, cfg.RedisURL, hub)
	}

	n := notifier.New(store, hub)
	go func() {
		if err := n.Run(ctx); err != nil {
			log.Printf("⚠️  Change feed stopped: %v", err)
		}
	}()

	svc := survey.NewService(store, n)
	handler := handlers.NewHandler(handlers.Deps{
		Service:     svc,
		Store:       store,
		Sessions:    hub,
		Catalog:     catalog,
		RecentLimit: cfg.RecentLimit,
	})

	apiServer := server.NewServer(cfg, handler, hub)

	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(ctx, apiServer, stop, done)

	err = apiServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")
}

// startRelay connects the hub to Redis. Without Redis the hub keeps
// delivering locally.
func startRelay(ctx context.Context, url string, hub *broadcast.Hub) {
	connectCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	relay, err := broadcast.NewRedisRelay(connectCtx, url)
	if err != nil {
		log.Printf("⚠️  Redis relay not available, broadcasting locally: %v", err)
		return
	}

	ready := make(chan struct{})
	go func() {
		defer relay.Close()
		if err := relay.Run(ctx, ready, hub.Deliver); err != nil {
			log.Printf("⚠️  Redis relay stopped: %v", err)
		}
	}()

	select {
	case <-ready:
		hub.UseRelay(relay)
		log.Println("✅ Redis relay connected")
	case <-connectCtx.Done():
		log.Println("⚠️  Redis relay did not subscribe in time, broadcasting locally")
	}
}
