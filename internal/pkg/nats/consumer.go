package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/piresc/schoolbus/internal/pkg/logger"
)

// JetStreamMessageHandler processes one message. A returned error naks the
// message; wrap it with RetryAfter to delay the redelivery.
type JetStreamMessageHandler func(msg jetstream.Msg) error

type delayedError struct {
	err   error
	delay time.Duration
}

func (e delayedError) Error() string { return e.err.Error() }
func (e delayedError) Unwrap() error { return e.err }

// RetryAfter asks the consumer to redeliver the message no sooner than delay
func RetryAfter(err error, delay time.Duration) error {
	if err == nil {
		return nil
	}
	return delayedError{err: err, delay: delay}
}

func nak(msg jetstream.Msg, err error) error {
	var delayed delayedError
	if errors.As(err, &delayed) && delayed.delay > 0 {
		return msg.NakWithDelay(delayed.delay)
	}
	return msg.Nak()
}

// Consumer is a running durable JetStream consumer
type Consumer struct {
	consumer   jetstream.Consumer
	consumeCtx jetstream.ConsumeContext
}

// NewJetStreamConsumer creates or updates the durable consumer and starts consuming
func NewJetStreamConsumer(ctx context.Context, client *Client, config ConsumerConfig, handler JetStreamMessageHandler) (*Consumer, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}

	consumer, err := client.js.CreateOrUpdateConsumer(ctx, config.StreamName, config.jetstream())
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := handler(msg); err != nil {
			logger.Error("Error processing JetStream message",
				logger.String("subject", msg.Subject()),
				logger.Err(err))
			if nakErr := nak(msg, err); nakErr != nil {
				logger.Error("Failed to NAK message", logger.Err(nakErr))
			}
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			logger.Error("Failed to ACK message", logger.Err(ackErr))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	return &Consumer{consumer: consumer, consumeCtx: consumeCtx}, nil
}

// Pending returns the number of messages not yet delivered to the consumer
func (c *Consumer) Pending(ctx context.Context) (uint64, error) {
	info, err := c.consumer.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get consumer info: %w", err)
	}
	return info.NumPending, nil
}

// Stop stops message delivery
func (c *Consumer) Stop() {
	if c.consumeCtx != nil {
		c.consumeCtx.Stop()
	}
}
