package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/emilythestrangee/tally/backend/internal/models"
)

// DefaultRecentLimit caps ListRecent when the caller passes no limit.
const DefaultRecentLimit = 100

// ErrUnsupportedInDurableMode is returned by Clear on durable stores.
var ErrUnsupportedInDurableMode = errors.New("reset is only available in memory mode")

type Mode string

const (
	ModeMemory   Mode = "memory"
	ModePostgres Mode = "postgres"
	ModeMongo    Mode = "mongodb"
)

// Store persists users and survey responses.
type Store interface {
	CreateUser(ctx context.Context, name string) (models.User, error)

	// Insert assigns the id and timestamp and stores the response.
	Insert(ctx context.Context, r models.Response) (models.Response, error)

	// InsertMany stores all responses or none of them.
	InsertMany(ctx context.Context, rs []models.Response) ([]models.Response, error)

	// ListRecent returns responses newest first, at most limit of them.
	ListRecent(ctx context.Context, limit int) ([]models.Response, error)

	Tallies(ctx context.Context) (models.Snapshot, error)

	// Clear removes every user and response. Durable stores refuse.
	Clear(ctx context.Context) error

	Mode() Mode
	Durable() bool

	// Health returns a map of health status information.
	Health(ctx context.Context) map[string]string

	Close() error
}

// ChangeFeed is implemented by stores that can push inserted responses.
type ChangeFeed interface {
	// CanWatch reports whether the deployment supports Watch.
	CanWatch() bool

	// Watch blocks and calls fn for every inserted response until ctx ends.
	Watch(ctx context.Context, fn func(models.Response)) error
}

type Options struct {
	URL            string
	ConnectTimeout time.Duration
}

// Open connects to the durable store named by opts.URL. An empty URL, or any
// failure to reach the store within ConnectTimeout, yields a MemoryStore.
func Open(ctx context.Context, opts Options) Store {
	if opts.URL == "" {
		log.Println("⚠️  No database configured, using in-memory storage")
		return NewMemoryStore()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 3 * time.Second
	}

	store, err := openDurable(ctx, opts)
	if err != nil {
		log.Printf("⚠️  Database not available, using in-memory storage: %v", err)
		return NewMemoryStore()
	}

	log.Printf("✅ Database connected successfully (%s)", store.Mode())
	return store
}

func openDurable(ctx context.Context, opts Options) (Store, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	switch scheme(opts.URL) {
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, opts.URL)
	case "mongodb", "mongodb+srv":
		return NewMongoStore(ctx, opts.URL)
	default:
		return nil, fmt.Errorf("unsupported database url scheme %q", scheme(opts.URL))
	}
}

func scheme(url string) string {
	i := strings.Index(url, "://")
	if i < 0 {
		return ""
	}
	return strings.ToLower(url[:i])
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	return limit
}
