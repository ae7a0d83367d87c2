package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/polywatch/engine/internal/store"
	"github.com/redis/go-redis/v9"
)

// RedisSink publishes alert events as JSON on a pub/sub channel for
// downstream consumers (dashboards, recorders).
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink creates a Redis publisher sink around an injected client.
func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

// Name implements Sink.
func (s *RedisSink) Name() string { return "redis" }

// Send implements Sink.
func (s *RedisSink) Send(ctx context.Context, event store.AlertEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", s.channel, err)
	}

	return nil
}
