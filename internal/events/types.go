package events

import "time"

// Event enumerates topics on the lifecycle bus.
type Event string

const (
	EventTradeCreated      Event = "trade.created"
	EventTradeAmended      Event = "trade.amended"
	EventTradeTerminated   Event = "trade.terminated"
	EventTradeCancelled    Event = "trade.cancelled"
	EventSettlementUpdated Event = "trade.settlement_updated"
	EventTradeRejected     Event = "trade.rejected"
)

// TradeEvents lists the topics emitted after a successful state change.
var TradeEvents = []Event{
	EventTradeCreated,
	EventTradeAmended,
	EventTradeTerminated,
	EventTradeCancelled,
	EventSettlementUpdated,
}

// TradeEvent is the payload of every trade.* topic.
type TradeEvent struct {
	ID        string    `json:"id"`
	Event     Event     `json:"event"`
	TradeID   int64     `json:"tradeId"`
	Version   int       `json:"version"`
	Status    string    `json:"status,omitempty"`
	Book      string    `json:"book,omitempty"`
	Actor     string    `json:"actor"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
