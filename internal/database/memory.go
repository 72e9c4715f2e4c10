package database

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emilythestrangee/tally/backend/internal/models"
	"github.com/emilythestrangee/tally/backend/internal/tally"
)

// MemoryStore keeps everything in process memory. It is the fallback when no
// durable store is reachable and the only store that supports Clear.
type MemoryStore struct {
	mu        sync.RWMutex
	users     []models.User
	responses []models.Response
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (m *MemoryStore) CreateUser(_ context.Context, name string) (models.User, error) {
	u := models.User{
		ID:        newMemoryID("user", m.now()),
		Name:      name,
		Timestamp: m.now(),
	}

	m.mu.Lock()
	m.users = append(m.users, u)
	m.mu.Unlock()
	return u, nil
}

func (m *MemoryStore) Insert(_ context.Context, r models.Response) (models.Response, error) {
	r = m.stamp(r)

	m.mu.Lock()
	m.responses = append(m.responses, r)
	m.mu.Unlock()
	return r, nil
}

// InsertMany appends the whole batch under one lock so readers see all of it
// or none of it.
func (m *MemoryStore) InsertMany(_ context.Context, rs []models.Response) ([]models.Response, error) {
	stored := make([]models.Response, len(rs))
	for i, r := range rs {
		stored[i] = m.stamp(r)
	}

	m.mu.Lock()
	m.responses = append(m.responses, stored...)
	m.mu.Unlock()
	return stored, nil
}

func (m *MemoryStore) ListRecent(_ context.Context, limit int) ([]models.Response, error) {
	limit = limitOrDefault(limit)

	m.mu.RLock()
	out := make([]models.Response, 0, len(m.responses))
	for i := len(m.responses) - 1; i >= 0; i-- {
		out = append(out, m.responses[i])
	}
	m.mu.RUnlock()

	// out is newest-inserted first; the stable sort keeps that order on ties
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Tallies(_ context.Context) (models.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return tally.Compute(m.responses), nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	m.users = nil
	m.responses = nil
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Mode() Mode    { return ModeMemory }
func (m *MemoryStore) Durable() bool { return false }

func (m *MemoryStore) Health(_ context.Context) map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]string{
		"status":    "up",
		"message":   "in-memory storage, data is lost on restart",
		"users":     strconv.Itoa(len(m.users)),
		"responses": strconv.Itoa(len(m.responses)),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) stamp(r models.Response) models.Response {
	now := m.now()
	r.ID = newMemoryID("response", now)
	r.Timestamp = now
	return r
}

// newMemoryID builds ids like "response_1718000000000_k3j9x0a2b".
func newMemoryID(prefix string, now time.Time) string {
	suffix := strconv.FormatUint(rand.Uint64(), 36)
	if len(suffix) < 9 {
		suffix = strings.Repeat("0", 9-len(suffix)) + suffix
	}
	return fmt.Sprintf("%s_%d_%s", prefix, now.UnixMilli(), suffix[:9])
}
