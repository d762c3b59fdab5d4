package flags

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"flipswitch/internal/constants"
	"flipswitch/pkg/metrics"
)

// ErrCacheMiss distinguishes an empty cache from a broken one. Both fail
// open to the store; only the latter counts against the circuit breaker.
var ErrCacheMiss = errors.New("cache miss")

// Cache is best-effort and may be empty at any time. Callers must never
// treat a cache failure as a request failure.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.CacheTimeout)
	defer cancel()

	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return val, nil
}

func (c *RedisCache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, constants.CacheTimeout)
	defer cancel()

	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.CacheTimeout)
	defer cancel()

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// BreakerCache trips after repeated cache failures so a dead Redis stops
// costing a timeout per read and reads go straight to the store.
type BreakerCache struct {
	inner Cache
	cb    *gobreaker.CircuitBreaker
}

func NewBreakerCache(inner Cache) *BreakerCache {
	settings := gobreaker.Settings{
		Name:        "flag-cache",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CacheBreakerState.Set(breakerStateValue(to))
		},
	}
	return &BreakerCache{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (c *BreakerCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.cb.Execute(func() (interface{}, error) {
		v, err := c.inner.Get(ctx, key)
		if errors.Is(err, ErrCacheMiss) {
			// A miss is a healthy answer, not a failure.
			return nil, nil
		}
		return v, err
	})
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, ErrCacheMiss
	}
	return val.([]byte), nil
}

func (c *BreakerCache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.inner.SetWithTTL(ctx, key, value, ttl)
	})
	return err
}

// Delete bypasses the breaker. Invalidation must always be attempted: an
// entry cached before the breaker tripped would otherwise outlive a
// mutation made during the open window and be served stale once the
// breaker closes.
func (c *BreakerCache) Delete(ctx context.Context, keys ...string) error {
	return c.inner.Delete(ctx, keys...)
}

// NopCache misses on every read. Deployments without Redis read straight
// from the store.
type NopCache struct{}

func (NopCache) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, ErrCacheMiss
}

func (NopCache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (NopCache) Delete(ctx context.Context, keys ...string) error {
	return nil
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
