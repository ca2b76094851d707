package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used for publishing.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaNotifier publishes notifications as JSON records keyed by destination.
type KafkaNotifier struct {
	writer MessageWriter
	logger *slog.Logger
}

// NewKafkaNotifier builds a notifier on top of a Kafka writer.
func NewKafkaNotifier(writer MessageWriter, logger *slog.Logger) *KafkaNotifier {
	return &KafkaNotifier{writer: writer, logger: logger}
}

// Send encodes and publishes the message.
func (n *KafkaNotifier) Send(ctx context.Context, message Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	record := kafka.Message{
		Key:   []byte(message.Destination),
		Value: payload,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(message.Kind)},
		},
	}
	if err := n.writer.WriteMessages(ctx, record); err != nil {
		if n.logger != nil {
			n.logger.Error("publish notification", slog.String("kind", message.Kind), slog.Any("error", err))
		}
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
