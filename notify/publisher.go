package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DefaultChannel is the Redis pub/sub channel events are published on.
const DefaultChannel = "leave.events"

// Publisher delivers one event.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// =============================================================================
// REDIS
// =============================================================================

// RedisPublisher publishes events on a pub/sub channel and, when Queue is
// set, also appends them to a list for consumers that were offline.
type RedisPublisher struct {
	client  *redis.Client
	Channel string
	Queue   string
}

func NewRedisPublisher(client *redis.Client, channel, queue string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, Channel: channel, Queue: queue}
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", e.ID, err)
	}
	if err := p.client.Publish(ctx, p.Channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", e.ID, err)
	}
	if p.Queue != "" {
		if err := p.client.RPush(ctx, p.Queue, data).Err(); err != nil {
			return fmt.Errorf("failed to enqueue event %s: %w", e.ID, err)
		}
	}
	return nil
}

// =============================================================================
// LOG
// =============================================================================

// LogPublisher writes events to the log. Used when Redis is not configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.logger.Info("request event",
		zap.String("event_id", e.ID),
		zap.String("type", string(e.Type)),
		zap.String("request_id", e.RequestID),
		zap.String("status", string(e.Status)),
		zap.String("actor_id", e.ActorID),
		zap.String("awaiting_id", e.AwaitingID),
	)
	return nil
}
