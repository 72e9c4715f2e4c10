// Command admin-token prints a signed token for joining the admin group and
// calling the reset endpoint when ADMIN_TOKEN_SECRET is set.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/emilythestrangee/tally/backend/internal/config"
	"github.com/emilythestrangee/tally/backend/internal/middleware"
)

func main() {
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.AdminTokenSecret == "" {
		log.Fatal("ADMIN_TOKEN_SECRET is not set")
	}

	token, err := middleware.IssueAdminToken(cfg.AdminTokenSecret, *ttl)
	if err != nil {
		log.Fatalf("Failed to generate token: %v", err)
	}
	fmt.Println(token)
}
