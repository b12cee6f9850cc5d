package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig holds broker and topic settings.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// KafkaQueue implements Queue on a Kafka topic with a consumer group.
// One KafkaQueue is one consumer slot: its reader delivers messages
// strictly one at a time.
type KafkaQueue struct {
	writer *kafka.Writer
	reader *kafka.Reader
	logger *slog.Logger
}

var _ Queue = (*KafkaQueue)(nil)

// NewKafka creates a queue bound to one topic and consumer group.
func NewKafka(cfg KafkaConfig, logger *slog.Logger) *KafkaQueue {
	if logger == nil {
		logger = slog.Default()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		Topic:             cfg.Topic,
		GroupID:           cfg.GroupID,
		MinBytes:          1,
		MaxBytes:          10e6,
		MaxWait:           250 * time.Millisecond,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    10 * time.Second,
	})
	return &KafkaQueue{writer: writer, reader: reader, logger: logger}
}

// Enqueue publishes one job.
func (q *KafkaQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(job.ExecutionKey),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Consume fetches and handles messages one at a time, committing only
// after the handler returns. An unhandled job is redelivered; the
// execution key it carries keeps the redelivery harmless.
func (q *KafkaQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		msg, err := q.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			q.logger.Error("fetch job failed", "error", err)
			continue
		}

		var job Job
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			q.logger.Error("malformed job dropped", "error", err, "offset", msg.Offset)
			if err := q.reader.CommitMessages(ctx, msg); err != nil {
				q.logger.Error("commit failed", "error", err)
			}
			continue
		}

		if err := handler(ctx, job); err != nil {
			q.logger.Error("job handler failed, leaving for redelivery",
				"execution_key", job.ExecutionKey,
				"error", err,
			)
			continue
		}
		if err := q.reader.CommitMessages(ctx, msg); err != nil {
			q.logger.Error("commit failed", "error", err)
		}
	}
}

// Close shuts down the writer and reader.
func (q *KafkaQueue) Close() error {
	werr := q.writer.Close()
	rerr := q.reader.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
