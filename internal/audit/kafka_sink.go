package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"medvault/internal/platform/kafka/producer"
)

// Producer is the slice of the Kafka producer the sink needs.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// KafkaSink publishes audit events as JSON, keyed by data subject so one
// patient's trail stays ordered within a partition.
type KafkaSink struct {
	producer Producer
	topic    string
}

func NewKafkaSink(p Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic}
}

func (s *KafkaSink) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	key := event.SubjectID
	if key == "" {
		key = event.ActorID
	}
	return s.producer.Produce(ctx, &producer.Message{
		Topic: s.topic,
		Key:   []byte(key),
		Value: value,
		Headers: map[string]string{
			"action":   event.Action,
			"event_id": event.ID,
		},
	})
}
