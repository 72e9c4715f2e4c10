package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Port int `env:"PORT" envDefault:"3001"`

	// Durable store. Empty means in-memory mode.
	DatabaseURL      string        `env:"DATABASE_URL"`
	MongoURI         string        `env:"MONGODB_URI"`
	DBConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"3s"`

	CORSOrigins []string `env:"CORS_ORIGIN" envSeparator:"," envDefault:"*"`

	// Optional cross-instance broadcast relay
	RedisURL string `env:"REDIS_URL"`

	AdminTokenSecret string        `env:"ADMIN_TOKEN_SECRET"`
	WSPingInterval   time.Duration `env:"WS_PING_INTERVAL" envDefault:"25s"`
	RecentLimit      int           `env:"RECENT_LIMIT" envDefault:"100"`
}

// Load reads the process environment (after .env autoload).
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	if c.DatabaseURL == "" {
		c.DatabaseURL = c.MongoURI
	}
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)

	origins := c.CORSOrigins[:0]
	for _, o := range c.CORSOrigins {
		// browsers send the origin without a trailing slash
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c.CORSOrigins = origins

	if c.Port == 0 {
		c.Port = 3001
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.RecentLimit <= 0 {
		c.RecentLimit = 100
	}
	if c.DBConnectTimeout <= 0 {
		c.DBConnectTimeout = 3 * time.Second
	}
	if c.WSPingInterval <= 0 {
		c.WSPingInterval = 25 * time.Second
	}
	return nil
}

// AllowAllOrigins reports whether CORS is open to every origin.
func (c *Config) AllowAllOrigins() bool {
	for _, o := range c.CORSOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

func (c *Config) Addr() string {
	return fmt.Sprintf("0.0.0.0:%d", c.Port)
}
