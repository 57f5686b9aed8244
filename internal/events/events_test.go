package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradebook-core/pkg/logging"
)

func TestSubscribeManyReceivesEveryTopic(t *testing.T) {
	bus := NewBus()
	stream, unsub := bus.SubscribeMany(4, EventTradeCreated, EventTradeAmended)

	bus.Publish(EventTradeCreated, TradeEvent{TradeID: 1})
	bus.Publish(EventTradeAmended, TradeEvent{TradeID: 2})
	bus.Publish(EventTradeCancelled, TradeEvent{TradeID: 3})

	got := []int64{(<-stream).(TradeEvent).TradeID, (<-stream).(TradeEvent).TradeID}
	assert.Equal(t, []int64{1, 2}, got)

	unsub()
	unsub()
	_, open := <-stream
	assert.False(t, open)

	// Publishing after unsubscribe must not panic on the closed channel.
	bus.Publish(EventTradeCreated, TradeEvent{TradeID: 4})
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	bus := NewBus()
	stream, unsub := bus.Subscribe(EventTradeCreated, 1)
	defer unsub()

	bus.Publish(EventTradeCreated, TradeEvent{TradeID: 1})
	bus.Publish(EventTradeCreated, TradeEvent{TradeID: 2})

	assert.Equal(t, int64(1), (<-stream).(TradeEvent).TradeID)
	select {
	case <-stream:
		t.Fatal("second event should have been dropped")
	default:
	}
}

type fakeProducer struct {
	mu       sync.Mutex
	messages []*kafka.Message
	events   chan kafka.Event
}

func newFakeProducer() *fakeProducer { return &fakeProducer{events: make(chan kafka.Event)} }

func (p *fakeProducer) Produce(msg *kafka.Message, _ chan kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakeProducer) Events() chan kafka.Event { return p.events }
func (p *fakeProducer) Flush(int) int            { return 0 }
func (p *fakeProducer) Close()                   {}

func (p *fakeProducer) sent() []*kafka.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*kafka.Message(nil), p.messages...)
}

func TestKafkaForwarderKeysByTradeID(t *testing.T) {
	producer := newFakeProducer()
	fwd := NewKafkaForwarder(producer, "trades", logging.Component(logging.Discard(), "kafka"))

	require.NoError(t, fwd.Forward(TradeEvent{ID: "e1", Event: EventTradeAmended, TradeID: 10001, Version: 2}))

	msgs := producer.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "trades", *msgs[0].TopicPartition.Topic)
	assert.Equal(t, []byte("10001"), msgs[0].Key)

	var ev TradeEvent
	require.NoError(t, json.Unmarshal(msgs[0].Value, &ev))
	assert.Equal(t, EventTradeAmended, ev.Event)
	assert.Equal(t, 2, ev.Version)
}

func TestKafkaForwarderRunsUntilCancelled(t *testing.T) {
	producer := newFakeProducer()
	fwd := NewKafkaForwarder(producer, "trades", logging.Component(logging.Discard(), "kafka"))
	bus := NewBus()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		fwd.Run(ctx, bus)
		close(done)
	}()

	require.Eventually(t, func() bool {
		bus.Publish(EventTradeCreated, TradeEvent{Event: EventTradeCreated, TradeID: 10000, Version: 1})
		return len(producer.sent()) > 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
	close(producer.events)
}
