package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StreamConsumerConfig configures a StreamConsumer.
type StreamConsumerConfig struct {
	// Stream is the Redis stream name to consume from (required).
	Stream string

	// Group is the consumer group name (required).
	Group string

	// Consumer is the consumer name within the group (required).
	Consumer string

	// Count is the max number of entries to read per batch. Default: 10.
	Count int64

	// Block is how long to wait for new entries. Default: 5 seconds.
	Block time.Duration

	// RetryInterval is how long to wait before retrying after a read
	// error. Default: 1 second.
	RetryInterval time.Duration

	// MaxRetryInterval caps the exponential retry backoff. Default: 30s.
	MaxRetryInterval time.Duration

	// Logger for logging. If nil, uses a no-op logger.
	Logger *zap.Logger
}

// MessageHandler processes one stream entry. Returning nil acknowledges the
// entry; returning an error leaves it pending for redelivery.
type MessageHandler func(ctx context.Context, msg Message) error

// Message is a single stream entry with its parsed fields.
type Message struct {
	ID     string
	Stream string
	Values map[string]interface{}
}

// StreamConsumer consumes the submissions stream strictly in order, one
// entry at a time. The whole ingest pipeline relies on this serialization:
// two submissions are never processed concurrently.
type StreamConsumer struct {
	client *Client
	config StreamConsumerConfig
	logger *zap.Logger
}

// NewStreamConsumer creates a new stream consumer.
func NewStreamConsumer(client *Client, config StreamConsumerConfig) (*StreamConsumer, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.Stream == "" {
		return nil, errors.New("stream name is required")
	}
	if config.Group == "" || config.Consumer == "" {
		return nil, errors.New("consumer group and consumer name are required")
	}

	if config.Count == 0 {
		config.Count = 10
	}
	if config.Block == 0 {
		config.Block = 5 * time.Second
	}
	if config.RetryInterval == 0 {
		config.RetryInterval = 1 * time.Second
	}
	if config.MaxRetryInterval == 0 {
		config.MaxRetryInterval = 30 * time.Second
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StreamConsumer{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// Run consumes entries and calls handler for each, in order. Blocks until
// the context is cancelled; read errors back off and retry, handler errors
// skip the ack so the entry is redelivered.
func (sc *StreamConsumer) Run(ctx context.Context, handler MessageHandler) error {
	if err := sc.client.XGroupCreate(ctx, sc.config.Stream, sc.config.Group, "0"); err != nil {
		return err
	}
	sc.logger.Info("Consumer group ready",
		zap.String("stream", sc.config.Stream),
		zap.String("group", sc.config.Group),
		zap.String("consumer", sc.config.Consumer))

	retryInterval := sc.config.RetryInterval

	for {
		select {
		case <-ctx.Done():
			sc.logger.Info("Stream consumer shutting down",
				zap.String("stream", sc.config.Stream),
				zap.String("group", sc.config.Group))
			return ctx.Err()
		default:
		}

		messages, err := sc.readMessages(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if errors.Is(err, redis.Nil) {
				// No messages available (timeout), continue
				continue
			}

			sc.logger.Warn("Error reading from stream, will retry",
				zap.String("stream", sc.config.Stream),
				zap.Error(err),
				zap.Duration("retryIn", retryInterval))

			select {
			case <-time.After(retryInterval):
				retryInterval = min(retryInterval*2, sc.config.MaxRetryInterval)
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		retryInterval = sc.config.RetryInterval

		for _, msg := range messages {
			if err := sc.processMessage(ctx, handler, msg); err != nil {
				sc.logger.Error("Error processing message",
					zap.String("stream", sc.config.Stream),
					zap.String("id", msg.ID),
					zap.Error(err))
				// Continue processing other messages
			}
		}
	}
}

// readMessages reads a batch of undelivered entries for this consumer.
func (sc *StreamConsumer) readMessages(ctx context.Context) ([]Message, error) {
	streams, err := sc.client.XReadGroup(ctx,
		sc.config.Group,
		sc.config.Consumer,
		[]string{sc.config.Stream, ">"},
		nil,
		sc.config.Count,
		sc.config.Block,
	)
	if err != nil {
		return nil, err
	}

	var messages []Message
	for _, stream := range streams {
		for _, xmsg := range stream.Messages {
			messages = append(messages, Message{
				ID:     xmsg.ID,
				Stream: stream.Stream,
				Values: xmsg.Values,
			})
		}
	}
	return messages, nil
}

// processMessage runs the handler and acknowledges the entry on success.
func (sc *StreamConsumer) processMessage(ctx context.Context, handler MessageHandler, msg Message) error {
	if err := handler(ctx, msg); err != nil {
		return err
	}

	if _, ackErr := sc.client.XAck(ctx, sc.config.Stream, sc.config.Group, msg.ID); ackErr != nil {
		sc.logger.Warn("Failed to acknowledge message",
			zap.String("stream", sc.config.Stream),
			zap.String("id", msg.ID),
			zap.Error(ackErr))
	}
	return nil
}
