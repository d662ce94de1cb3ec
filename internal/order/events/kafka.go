package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-backoffice/internal/order"
)

// Writer is satisfied by *broker.KafkaProducer.
type Writer interface {
	Publish(ctx context.Context, key string, value []byte) error
}

type envelope struct {
	EventID   string      `json:"event_id"`
	EventType string      `json:"event_type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

type KafkaPublisher struct {
	writer Writer
}

func NewKafkaPublisher(writer Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event order.Event) error {
	value, err := json.Marshal(envelope{
		EventID:   event.ID,
		EventType: event.Type,
		Payload:   event.Payload,
		Timestamp: event.Timestamp.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.Type, err)
	}
	if err := p.writer.Publish(ctx, event.Key, value); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, order.Event) error { return nil }
