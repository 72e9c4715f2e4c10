package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/emilythestrangee/tally/backend/internal/models"
)

func mustStartMongoContainer(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	container, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		t.Skipf("could not start mongodb container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("could not teardown mongodb container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	return uri
}

func TestMongoStore(t *testing.T) {
	uri := mustStartMongoContainer(t)
	ctx := context.Background()

	store := Open(ctx, Options{URL: uri, ConnectTimeout: 30 * time.Second})
	t.Cleanup(func() { store.Close() })
	require.Equal(t, ModeMongo, store.Mode())

	// a single node without a replica set has no change streams
	feed, ok := store.(ChangeFeed)
	require.True(t, ok)
	assert.False(t, feed.CanWatch())

	u, err := store.CreateUser(ctx, "Grace")
	require.NoError(t, err)
	assert.Len(t, u.ID, 24)

	stored, err := store.InsertMany(ctx, []models.Response{
		answer(u.ID, "3", "Never"),
		answer("u2", "3", "Never"),
		answer(u.ID, "5", "Always"),
	})
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.NotEqual(t, stored[0].ID, stored[1].ID)

	snap, err := store.Tallies(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Snapshot{
		"3": {"Never": 2},
		"5": {"Always": 1},
	}, snap)

	recent, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 3)

	assert.ErrorIs(t, store.Clear(ctx), ErrUnsupportedInDurableMode)
	health := store.Health(ctx)
	assert.Equal(t, "up", health["status"])
	assert.Equal(t, "false", health["change_streams"])
}

func TestHistoryLost(t *testing.T) {
	lost := mongo.CommandError{Code: 286, Name: "ChangeStreamHistoryLost"}
	assert.True(t, historyLost(lost))
	assert.True(t, historyLost(fmt.Errorf("open change stream: %w", lost)))

	assert.False(t, historyLost(mongo.CommandError{Code: 11600, Name: "InterruptedAtShutdown"}))
	assert.False(t, historyLost(errors.New("connection reset")))
	assert.False(t, historyLost(nil))
}
