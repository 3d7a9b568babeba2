package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/segmentio/kafka-go"
)

// Writer is the subset of kafka.Writer we use.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes events as JSON, keyed by user id so one user's
// events stay ordered within a partition.
type KafkaNotifier struct {
	writer Writer
	logger logging.Logger
}

func NewKafkaNotifier(brokers []string, topic string, logger logging.Logger) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 5 * time.Second,
	}
	return NewKafkaNotifierWithWriter(w, logger)
}

func NewKafkaNotifierWithWriter(w Writer, logger logging.Logger) *KafkaNotifier {
	return &KafkaNotifier{writer: w, logger: logger.With("module", "notify")}
}

func (n *KafkaNotifier) Notify(ctx context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{Key: []byte(e.UserID), Value: b}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		n.logger.Error(ctx, "kafka write failed", "type", e.Type, "user_id", e.UserID, "error", err)
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}

	n.logger.Debug(ctx, "event published", "type", e.Type, "user_id", e.UserID)
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// LogNotifier only logs. Used when no brokers are configured.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "notify")}
}

func (n *LogNotifier) Notify(ctx context.Context, e Event) error {
	n.logger.Info(ctx, "notification not delivered, no broker configured", "type", e.Type, "user_id", e.UserID)
	return nil
}

func (n *LogNotifier) Close() error { return nil }
