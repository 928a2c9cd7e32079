package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher streams events to a Kafka topic. Messages are keyed by the
// acting user id and routed with a hash balancer, which keeps one user's
// events on one partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher builds a publisher for the given brokers and topic.
// acks selects durability: "none", "one" or "all" (the default).
func NewKafkaPublisher(brokers []string, topic, acks string) *KafkaPublisher {
	var required kafka.RequiredAcks
	switch strings.ToLower(strings.TrimSpace(acks)) {
	case "none":
		required = kafka.RequireNone
	case "one":
		required = kafka.RequireOne
	default:
		required = kafka.RequireAll
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: required,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaPublisher{writer: writer}
}

// Publish writes the event as a JSON message.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(event.Key()),
		Value: value,
		Time:  time.Unix(event.OccurredAt, 0),
	}
	return p.writer.WriteMessages(ctx, msg)
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
