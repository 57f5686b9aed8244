package sequence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradebook-core/pkg/db"
)

func openDB(t *testing.T) *db.Database {
	t.Helper()
	database, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.ApplyMigrations(database))
	return database
}

func TestSQLiteStartsAtBase(t *testing.T) {
	database := openDB(t)
	ctx := context.Background()

	g, err := NewSQLite(ctx, database.Store(), 10000)
	require.NoError(t, err)

	first, err := g.Next(ctx)
	require.NoError(t, err)
	second, err := g.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), first)
	assert.Equal(t, int64(10001), second)
}

func TestSQLiteContinuesAfterExistingTrades(t *testing.T) {
	database := openDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, database.Store().InsertTrade(ctx, &db.Trade{
		TradeID: 10500, Version: 1, Active: true, CreatedDate: now, LastTouchTimestamp: now,
	}))

	g, err := NewSQLite(ctx, database.Store(), 10000)
	require.NoError(t, err)
	next, err := g.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10501), next)

	// Re-initialising never moves the counter backwards.
	g, err = NewSQLite(ctx, database.Store(), 10000)
	require.NoError(t, err)
	next, err = g.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10502), next)
}

func TestSQLiteConcurrentCallersGetDistinctIDs(t *testing.T) {
	database := openDB(t)
	ctx := context.Background()
	g, err := NewSQLite(ctx, database.Store(), 10000)
	require.NoError(t, err)

	const n = 50
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := g.Next(ctx)
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestNewRedisRejectsBadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not-a-redis-url", "", 9999)
	assert.Error(t, err)
}
