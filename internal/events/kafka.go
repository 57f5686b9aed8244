package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"
)

// Producer is the part of *kafka.Producer the forwarder uses.
type Producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Events() chan kafka.Event
	Flush(timeoutMs int) int
	Close()
}

// NewKafkaProducer connects to broker.
func NewKafkaProducer(broker string) (*kafka.Producer, error) {
	config := kafka.ConfigMap{
		"bootstrap.servers": broker,
	}
	producer, err := kafka.NewProducer(&config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return producer, nil
}

// KafkaForwarder publishes trade events to a topic, keyed by trade id so one
// trade's events stay ordered within a partition.
type KafkaForwarder struct {
	producer Producer
	topic    string
	logger   *logrus.Entry
}

// NewKafkaForwarder wraps producer.
func NewKafkaForwarder(producer Producer, topic string, logger *logrus.Entry) *KafkaForwarder {
	return &KafkaForwarder{producer: producer, topic: topic, logger: logger}
}

// Forward sends one event.
func (f *KafkaForwarder) Forward(ev TradeEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Event, err)
	}
	topic := f.topic
	return f.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(fmt.Sprintf("%d", ev.TradeID)),
		Value:          value,
		Headers:        []kafka.Header{{Key: "event", Value: []byte(ev.Event)}},
	}, nil)
}

// Run forwards bus events until ctx is done, then flushes the producer.
func (f *KafkaForwarder) Run(ctx context.Context, bus *Bus) {
	stream, unsub := bus.SubscribeMany(256, TradeEvents...)
	defer unsub()

	go f.deliveryReport()

	for {
		select {
		case <-ctx.Done():
			if n := f.producer.Flush(5000); n > 0 {
				f.logger.Warnf("%d Kafka messages not delivered before shutdown", n)
			}
			return
		case msg, ok := <-stream:
			if !ok {
				return
			}
			ev, ok := msg.(TradeEvent)
			if !ok {
				continue
			}
			if err := f.Forward(ev); err != nil {
				f.logger.WithError(err).WithField("trade_id", ev.TradeID).Error("Failed to produce message to Kafka")
			}
		}
	}
}

func (f *KafkaForwarder) deliveryReport() {
	for e := range f.producer.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			f.logger.Errorf("Message delivery failed: %v", m.TopicPartition.Error)
		}
	}
}
