package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tradebook-core/internal/events"
)

// Monitor watches rejected lifecycle requests and raises alerts.
type Monitor struct {
	Bus    *events.Bus
	Sink   AlertSink
	Logger *logrus.Entry
}

// Start subscribes and returns immediately; the loop ends with ctx.
func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.Sink == nil {
		if m.Logger != nil {
			m.Logger.Warn("monitor not fully configured; skipping")
		}
		return
	}
	stream, unsub := m.Bus.Subscribe(events.EventTradeRejected, 50)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-stream:
				if !ok {
					return
				}
				if err := m.Sink.Send(formatAlert(msg)); err != nil && m.Logger != nil {
					m.Logger.WithError(err).Warn("alert delivery failed")
				}
			}
		}
	}()
}

func formatAlert(msg any) string {
	return "[" + time.Now().Format(time.RFC3339) + "] " + toString(msg)
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case events.TradeEvent:
		return fmt.Sprintf("trade %d rejected for %s: %s", t.TradeID, t.Actor, t.Reason)
	default:
		return "alert triggered"
	}
}
