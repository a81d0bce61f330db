package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	writeTimeout = 5 * time.Second
	runTimeout   = 30 * time.Second

	readRetryDelay = time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEnqueuer publishes jobs to a Kafka topic, keyed by user id so one user's jobs stay ordered.
type KafkaEnqueuer struct {
	writer messageWriter
}

// NewKafkaEnqueuer returns an enqueuer writing to topic. brokers and topic must be non-empty.
func NewKafkaEnqueuer(brokers []string, topic string) (*KafkaEnqueuer, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("jobs: kafka brokers and topic are required")
	}
	return &KafkaEnqueuer{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}}, nil
}

// Enqueue serializes job and writes it with a short timeout.
func (e *KafkaEnqueuer) Enqueue(ctx context.Context, job Job) error {
	payload, err := encode(job)
	if err != nil {
		return fmt.Errorf("jobs: encode %s: %w", job.Type, err)
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	err = e.writer.WriteMessages(writeCtx, kafka.Message{
		Key:     []byte(job.UserID),
		Value:   payload,
		Headers: []kafka.Header{{Key: "job_type", Value: []byte(job.Type)}},
	})
	if err != nil {
		return fmt.Errorf("jobs: enqueue %s: %w", job.Type, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (e *KafkaEnqueuer) Close() error {
	if e == nil || e.writer == nil {
		return nil
	}
	return e.writer.Close()
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer reads jobs from Kafka with a consumer group and hands them to a Handler.
type Consumer struct {
	reader     messageReader
	handler    Handler
	log        *zap.Logger
	retryDelay time.Duration // pause after a failed read
}

// NewConsumer returns a consumer for topic in groupID.
func NewConsumer(brokers []string, topic, groupID string, handler Handler, log *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	})
	return newConsumer(reader, handler, log)
}

func newConsumer(reader messageReader, handler Handler, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{reader: reader, handler: handler, log: log, retryDelay: readRetryDelay}
}

// Run consumes until ctx is canceled. Malformed messages and failed jobs are logged and skipped.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("jobs: kafka read failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
			continue
		}
		job, err := decode(msg.Value)
		if err != nil {
			c.log.Warn("jobs: dropping malformed message", zap.Int64("offset", msg.Offset), zap.Error(err))
			continue
		}
		runCtx, cancel := context.WithTimeout(ctx, runTimeout)
		if err := c.handler.Run(runCtx, job); err != nil {
			c.log.Error("jobs: job failed", zap.String("type", string(job.Type)), zap.String("user_id", job.UserID), zap.Error(err))
		}
		cancel()
	}
}
