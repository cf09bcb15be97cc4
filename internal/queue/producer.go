package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"tasklink.app/bridge/internal/model"
)

type Producer interface {
	Enqueue(ctx context.Context, env model.RetryEnvelope) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, env model.RetryEnvelope) error {
	attempt := env.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	fields := map[string]any{
		"delivery_id": env.DeliveryID,
		"event_type":  env.EventType,
		"payload":     string(env.Payload),
		"attempt":     attempt,
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue retry envelope: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued retry envelope", "delivery_id", env.DeliveryID, "event_type", env.EventType, "attempt", attempt)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
