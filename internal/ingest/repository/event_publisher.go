package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"video_ingest_service/internal/ingest/domain"

	"github.com/segmentio/kafka-go"
)

// EventPublisher lifecycle events for downstream consumers (search index, notifications)
type EventPublisher interface {
	PublishLifecycle(ctx context.Context, ev domain.LifecycleEvent) error
}

// MessageWriter subset of *kafka.Writer
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type kafkaEventPublisher struct {
	writer MessageWriter
}

// NewKafkaEventPublisher events keyed by asset id so one asset stays on one partition
func NewKafkaEventPublisher(w MessageWriter) EventPublisher {
	return &kafkaEventPublisher{writer: w}
}

func (p *kafkaEventPublisher) PublishLifecycle(ctx context.Context, ev domain.LifecycleEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal lifecycle event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.AssetID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(ev.To)},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: publish lifecycle %s: %v", domain.ErrTransientInfra, ev.AssetID, err)
	}
	return nil
}
