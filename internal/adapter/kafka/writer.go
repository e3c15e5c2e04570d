package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/ndvi-export/internal/config"
	"github.com/couchcryptid/ndvi-export/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes export task events to a Kafka topic.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured event topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish writes one task event. Events for the same task share a key so
// they land on one partition in order.
func (w *Writer) Publish(ctx context.Context, events ...domain.TaskEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d task events: %w", len(msgs), err)
	}
	w.logger.Debug("task events published", "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a TaskEvent into a Kafka message.
func serializeToMessage(event domain.TaskEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize task event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.Task.Handle),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(event.Kind)},
			{Key: "status", Value: []byte(event.Task.Status)},
			{Key: "updated_at", Value: []byte(event.Task.UpdatedAt.Format(time.RFC3339))},
		},
	}, nil
}
