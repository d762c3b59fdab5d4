package integration

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flipswitch/internal/logger"
	"flipswitch/internal/pubsub"
)

func TestRedisPubSub_RoundTrip(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	log := logger.NopLogger()
	publisher := pubsub.NewRedisPublisher(infra.RedisClient, log)
	subscriber := pubsub.NewRedisSubscriber(infra.RedisClient, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu       sync.Mutex
		received []pubsub.Envelope
	)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = subscriber.Subscribe(ctx, "flag-events:acme", func(_ context.Context, env pubsub.Envelope) error {
			mu.Lock()
			received = append(received, env)
			mu.Unlock()
			return nil
		})
	}()

	// Give the subscription time to register before publishing.
	time.Sleep(200 * time.Millisecond)

	env := pubsub.Envelope{
		ID:        "env-1",
		Channel:   "flag-events:acme",
		Timestamp: time.Now().UTC(),
		Payload:   json.RawMessage(`{"type":"created","flag":{"key":"beta"}}`),
	}
	require.NoError(t, publisher.Publish(ctx, "flag-events:acme", env))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "env-1", received[0].ID)
	assert.Equal(t, "flag-events:acme", received[0].Channel)
	assert.JSONEq(t, `{"type":"created","flag":{"key":"beta"}}`, string(received[0].Payload))
}

func TestRedisPubSub_ChannelIsolation(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	log := logger.NopLogger()
	publisher := pubsub.NewRedisPublisher(infra.RedisClient, log)
	subscriber := pubsub.NewRedisSubscriber(infra.RedisClient, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu       sync.Mutex
		received []pubsub.Envelope
	)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = subscriber.Subscribe(ctx, "flag-events:acme", func(_ context.Context, env pubsub.Envelope) error {
			mu.Lock()
			received = append(received, env)
			mu.Unlock()
			return nil
		})
	}()

	time.Sleep(200 * time.Millisecond)

	require.NoError(t, publisher.Publish(ctx, "flag-events:globex", pubsub.Envelope{
		ID:      "env-other",
		Channel: "flag-events:globex",
		Payload: json.RawMessage(`{}`),
	}))
	require.NoError(t, publisher.Publish(ctx, "flag-events:acme", pubsub.Envelope{
		ID:      "env-mine",
		Channel: "flag-events:acme",
		Payload: json.RawMessage(`{}`),
	}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "env-mine", received[0].ID)
}
