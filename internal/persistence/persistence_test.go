package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradebook-core/internal/events"
	"tradebook-core/pkg/db"
	"tradebook-core/pkg/logging"
)

func openDB(t *testing.T) *db.Database {
	t.Helper()
	database, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.ApplyMigrations(database))
	return database
}

func TestBatchWriterFlushesOnSize(t *testing.T) {
	database := openDB(t)
	bw := NewBatchWriter(database.DB, 2, time.Hour, logging.Component(logging.Discard(), "batch"))
	defer bw.Close()

	now := time.Now().UTC()
	bw.WriteQuery(db.InsertAuditQuery, "a", "trade.created", 10000, 1, "NEW", "alice", now)
	assert.Equal(t, 1, bw.Pending())
	bw.WriteQuery(db.InsertAuditQuery, "b", "trade.amended", 10000, 2, "AMENDED", "alice", now)
	assert.Equal(t, 0, bw.Pending())

	trail, err := database.Store().AuditTrail(context.Background(), 10000)
	require.NoError(t, err)
	assert.Len(t, trail, 2)

	m := bw.GetMetrics()
	assert.Equal(t, uint64(2), m.TotalWrites)
	assert.Equal(t, uint64(1), m.TotalBatches)
	assert.Equal(t, 2, m.LastBatchSize)
}

func TestBatchWriterRollsBackFailedBatch(t *testing.T) {
	database := openDB(t)
	bw := NewBatchWriter(database.DB, 10, time.Hour, logging.Component(logging.Discard(), "batch"))
	defer bw.Close()

	now := time.Now().UTC()
	bw.WriteQuery(db.InsertAuditQuery, "a", "trade.created", 10000, 1, "NEW", "alice", now)
	bw.WriteQuery("INSERT INTO missing_table VALUES (1)")
	assert.Error(t, bw.Flush())
	assert.Equal(t, uint64(1), bw.GetMetrics().TotalErrors)

	trail, err := database.Store().AuditTrail(context.Background(), 10000)
	require.NoError(t, err)
	assert.Empty(t, trail)
}

func TestAuditWriterRecordsBusEvents(t *testing.T) {
	database := openDB(t)
	bw := NewBatchWriter(database.DB, 100, 20*time.Millisecond, logging.Component(logging.Discard(), "batch"))
	defer bw.Close()

	bus := events.NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewAuditWriter(bw).Run(ctx, bus)

	ev := events.TradeEvent{ID: "evt-1", Event: events.EventTradeCreated, TradeID: 10042, Version: 1,
		Status: "NEW", Actor: "alice", Timestamp: time.Now().UTC()}

	require.Eventually(t, func() bool {
		bus.Publish(events.EventTradeCreated, ev)
		trail, err := database.Store().AuditTrail(context.Background(), 10042)
		return err == nil && len(trail) == 1
	}, 2*time.Second, 25*time.Millisecond)

	trail, err := database.Store().AuditTrail(context.Background(), 10042)
	require.NoError(t, err)
	assert.Equal(t, "trade.created", trail[0].Event)
	assert.Equal(t, "alice", trail[0].Actor)
}
