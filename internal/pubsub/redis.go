package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"flipswitch/internal/logger"
)

type RedisPublisher struct {
	client *redis.Client
	logger logger.Logger
}

func NewRedisPublisher(client *redis.Client, log logger.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, logger: log}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := p.client.Publish(ctx, channel, body).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return nil
}

type RedisSubscriber struct {
	client *redis.Client
	logger logger.Logger
}

func NewRedisSubscriber(client *redis.Client, log logger.Logger) *RedisSubscriber {
	return &RedisSubscriber{client: client, logger: log}
}

func (s *RedisSubscriber) Subscribe(ctx context.Context, channel string, handler HandlerFunc) error {
	sub := s.client.Subscribe(ctx, channel)
	defer sub.Close()

	// Confirm the subscription before consuming so a caller returning from
	// a reconnect does not silently miss its window.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription to %s closed", channel)
			}

			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				s.logger.ErrorwCtx(ctx, "Dropping undecodable event", "channel", channel, "error", err)
				continue
			}

			if err := handler(ctx, env); err != nil {
				s.logger.ErrorwCtx(ctx, "Event handler failed", "channel", channel, "error", err)
			}
		}
	}
}

func (s *RedisSubscriber) Close() error {
	return nil
}
