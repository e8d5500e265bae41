package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

var consumerTracer = otel.Tracer("messaging/consumer")

// ErrMalformedMessage marks a payload that can never be processed. Such
// messages are committed without retrying.
var ErrMalformedMessage = errors.New("malformed message")

// HandlerFunc processes one message payload.
type HandlerFunc func(ctx context.Context, payload []byte) error

// JSONHandler decodes each payload into T before calling fn. A payload that
// does not decode fails with ErrMalformedMessage.
func JSONHandler[T any](fn func(ctx context.Context, event T) error) HandlerFunc {
	return func(ctx context.Context, payload []byte) error {
		var event T
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
		return fn(ctx, event)
	}
}

type Consumer struct {
	reader      *kafka.Reader
	topic       string
	groupID     string
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
}

type consumerConfig struct {
	reader      kafka.ReaderConfig
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
}

type ConsumerOption func(*consumerConfig)

func WithStartOffset(offset int64) ConsumerOption {
	return func(cfg *consumerConfig) {
		cfg.reader.StartOffset = offset
	}
}

// WithRetry sets how many times a failing message is handed to the handler
// before it is skipped. The wait between attempts starts at backoff and
// doubles.
func WithRetry(maxAttempts int, backoff time.Duration) ConsumerOption {
	return func(cfg *consumerConfig) {
		cfg.maxAttempts = max(maxAttempts, 1)
		cfg.backoff = backoff
	}
}

func WithLogger(logger *slog.Logger) ConsumerOption {
	return func(cfg *consumerConfig) {
		cfg.logger = logger
	}
}

func NewConsumer(brokers []string, topic, groupID string, opts ...ConsumerOption) *Consumer {
	cfg := consumerConfig{
		reader: kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		},
		maxAttempts: 3,
		backoff:     time.Second,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return &Consumer{
		reader:      kafka.NewReader(cfg.reader),
		topic:       topic,
		groupID:     groupID,
		maxAttempts: cfg.maxAttempts,
		backoff:     cfg.backoff,
		logger:      cfg.logger,
	}
}

// Consume fetches, handles and commits messages until ctx ends or the reader
// fails. A handler failure never stops the loop: the message is retried per
// WithRetry and then skipped.
func (c *Consumer) Consume(ctx context.Context, handler HandlerFunc) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}

		if err := c.deliver(ctx, msg, handler); err != nil {
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

// deliver returns an error only when ctx ended before the message was settled.
func (c *Consumer) deliver(ctx context.Context, msg kafka.Message, handler HandlerFunc) error {
	backoff := c.backoff
	for attempt := 1; ; attempt++ {
		err := c.process(ctx, msg, handler, attempt)
		if err == nil {
			return nil
		}

		if errors.Is(err, ErrMalformedMessage) {
			c.logger.Error("skipping malformed message", "error", err, "topic", c.topic, "offset", msg.Offset)
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if attempt >= c.maxAttempts {
			c.logger.Error("giving up on message",
				"error", err,
				"topic", c.topic,
				"offset", msg.Offset,
				"key", string(msg.Key),
				"attempts", attempt,
			)
			return nil
		}

		c.logger.Warn("message handling failed, retrying", "error", err, "offset", msg.Offset, "attempt", attempt)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message, handler HandlerFunc, attempt int) error {
	parentCtx := otel.GetTextMapPropagator().Extract(ctx, headerCarrier{msg: &msg})

	spanCtx, span := consumerTracer.Start(parentCtx, "process "+c.topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationName("process"),
			semconv.MessagingOperationTypeDeliver,
			semconv.MessagingDestinationName(c.topic),
			semconv.MessagingKafkaConsumerGroup(c.groupID),
			semconv.MessagingKafkaMessageOffset(int(msg.Offset)),
			semconv.MessagingDestinationPartitionID(strconv.Itoa(msg.Partition)),
			semconv.MessagingKafkaMessageKey(string(msg.Key)),
			attribute.Int("messaging.delivery.attempt", attempt),
		),
	)
	defer span.End()

	if err := handler(spanCtx, msg.Value); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
