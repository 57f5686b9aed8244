package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradebook-core/internal/events"
)

func TestHistogramStats(t *testing.T) {
	h := NewLatencyHistogram(3)
	for _, v := range []float64{5, 1, 3, 10} {
		h.Record(v)
	}
	s := h.Stats()
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 10.0, s.Max)
}

func TestOperationCounters(t *testing.T) {
	m := NewSystemMetrics()
	m.IncrementOperation(OpCreate)
	m.IncrementOperation(OpCreate)
	m.IncrementOperation(OpAmend)
	m.IncrementConflicts()
	m.SetAuditPending(func() int { return 7 })

	snap := m.GetSnapshot()
	assert.Equal(t, uint64(2), snap.Operations[OpCreate])
	assert.Equal(t, uint64(1), m.Operation(OpAmend))
	assert.Equal(t, uint64(0), m.Operation(OpCancel))
	assert.Equal(t, uint64(1), snap.Conflicts)
	assert.Equal(t, 7, snap.AuditPending)
}

type memSink struct {
	mu   sync.Mutex
	msgs []string
}

func (s *memSink) Send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *memSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func TestMonitorAlertsOnRejection(t *testing.T) {
	bus := events.NewBus()
	sink := &memSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	(&Monitor{Bus: bus, Sink: sink}).Start(ctx)
	bus.Publish(events.EventTradeRejected, events.TradeEvent{TradeID: 10000, Actor: "carol", Reason: "denied"})

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Contains(t, sink.msgs[0], "trade 10000 rejected for carol: denied")
}
