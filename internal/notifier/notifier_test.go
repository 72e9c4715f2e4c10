package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/tally/backend/internal/database"
	"github.com/emilythestrangee/tally/backend/internal/models"
)

type recorder struct {
	mu        sync.Mutex
	snapshots []models.Snapshot
	admin     []models.Response
}

func (r *recorder) BroadcastTallies(s models.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *recorder) NotifyAdmins(resp models.Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admin = append(r.admin, resp)
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots), len(r.admin)
}

// feedStore is a memory store that pretends to be durable and replays its
// own inserts through Watch.
type feedStore struct {
	*database.MemoryStore
	events chan models.Response
}

func newFeedStore() *feedStore {
	return &feedStore{MemoryStore: database.NewMemoryStore(), events: make(chan models.Response, 16)}
}

func (s *feedStore) Durable() bool  { return true }
func (s *feedStore) CanWatch() bool { return true }

func (s *feedStore) Insert(ctx context.Context, r models.Response) (models.Response, error) {
	stored, err := s.MemoryStore.Insert(ctx, r)
	if err == nil {
		s.events <- stored
	}
	return stored, err
}

func (s *feedStore) Watch(ctx context.Context, fn func(models.Response)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-s.events:
			fn(r)
		}
	}
}

type failingStore struct {
	*database.MemoryStore
}

func (failingStore) Tallies(context.Context) (models.Snapshot, error) {
	return nil, errors.New("boom")
}

func TestNewSelectsImplementation(t *testing.T) {
	rec := &recorder{}

	_, ok := New(database.NewMemoryStore(), rec).(*Direct)
	assert.True(t, ok)

	_, ok = New(newFeedStore(), rec).(*Feed)
	assert.True(t, ok)
}

func TestDirectInserted(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	rec := &recorder{}
	n := NewDirect(store, rec)

	stored, err := store.Insert(ctx, models.Response{UserID: "u1", UserName: "Ada", QuestionID: "1", SelectedOption: "Often"})
	require.NoError(t, err)
	n.Inserted(ctx, stored)

	snaps, admin := rec.counts()
	assert.Equal(t, 1, snaps)
	assert.Equal(t, 1, admin)
	assert.Equal(t, models.Snapshot{"1": {"Often": 1}}, rec.snapshots[0])
	assert.Equal(t, stored.ID, rec.admin[0].ID)
}

func TestDirectInsertedBatch(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	rec := &recorder{}
	n := NewDirect(store, rec)

	stored, err := store.InsertMany(ctx, []models.Response{
		{UserID: "u1", UserName: "Ada", QuestionID: "1", SelectedOption: "Often"},
		{UserID: "u1", UserName: "Ada", QuestionID: "2", SelectedOption: "Never"},
	})
	require.NoError(t, err)
	n.Inserted(ctx, stored...)

	snaps, admin := rec.counts()
	assert.Equal(t, 1, snaps)
	assert.Equal(t, 2, admin)

	n.Inserted(ctx)
	snaps, _ = rec.counts()
	assert.Equal(t, 1, snaps)
}

func TestFeedEmitsOneAdminEventPerInsert(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newFeedStore()
	rec := &recorder{}
	n := NewFeed(store, store, rec)

	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	for _, opt := range []string{"Often", "Never"} {
		stored, err := store.Insert(ctx, models.Response{UserID: "u1", UserName: "Ada", QuestionID: "1", SelectedOption: opt})
		require.NoError(t, err)
		n.Inserted(ctx, stored)
	}

	require.Eventually(t, func() bool {
		_, admin := rec.counts()
		return admin == 2
	}, 2*time.Second, 10*time.Millisecond)

	snaps, admin := rec.counts()
	assert.Equal(t, 2, snaps)
	assert.Equal(t, 2, admin)
	assert.Equal(t, models.Snapshot{"1": {"Often": 1, "Never": 1}}, rec.snapshots[1])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRefreshSkipsBroadcastOnError(t *testing.T) {
	rec := &recorder{}
	n := NewDirect(failingStore{database.NewMemoryStore()}, rec)

	n.Refresh(context.Background())
	snaps, _ := rec.counts()
	assert.Equal(t, 0, snaps)
}

func TestConcurrentRefreshNeverRegresses(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	rec := &recorder{}
	n := NewDirect(store, rec)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stored, err := store.Insert(ctx, models.Response{UserID: "u", UserName: "u", QuestionID: "1", SelectedOption: "Often"})
			if err == nil {
				n.Inserted(ctx, stored)
			}
		}()
	}
	wg.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.snapshots, 20)
	prev := 0
	for _, s := range rec.snapshots {
		assert.GreaterOrEqual(t, s["1"]["Often"], prev)
		prev = s["1"]["Often"]
	}
	assert.Equal(t, 20, prev)
}
