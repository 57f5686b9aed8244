package persistence

import (
	"context"

	"tradebook-core/internal/events"
	"tradebook-core/pkg/db"
)

// AuditWriter turns lifecycle events into trade_audit rows.
type AuditWriter struct {
	writer *BatchWriter
}

// NewAuditWriter writes through bw.
func NewAuditWriter(bw *BatchWriter) *AuditWriter {
	return &AuditWriter{writer: bw}
}

// Record buffers one event. Events are keyed by their id, so a replay is ignored.
func (a *AuditWriter) Record(ev events.TradeEvent) {
	a.writer.WriteQuery(db.InsertAuditQuery,
		ev.ID, string(ev.Event), ev.TradeID, ev.Version, ev.Status, ev.Actor, ev.Timestamp)
}

// Run records every trade event published on bus until ctx is done.
func (a *AuditWriter) Run(ctx context.Context, bus *events.Bus) {
	stream, unsub := bus.SubscribeMany(512, events.TradeEvents...)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-stream:
			if !ok {
				return
			}
			if ev, ok := msg.(events.TradeEvent); ok {
				a.Record(ev)
			}
		}
	}
}
