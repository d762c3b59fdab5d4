package pubsub

import (
	"context"
	"sync"

	"flipswitch/internal/logger"
)

// MemoryBus is an in-process transport for single-node deployments and
// tests. Delivery is at most once: a subscriber that cannot keep up has
// events dropped rather than blocking the publisher.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Envelope]struct{}
	logger logger.Logger
}

func NewMemoryBus(log logger.Logger) *MemoryBus {
	return &MemoryBus{
		subs:   make(map[string]map[chan Envelope]struct{}),
		logger: log,
	}
}

func (b *MemoryBus) Publish(ctx context.Context, channel string, env Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[channel] {
		select {
		case ch <- env:
		default:
			b.logger.WarnwCtx(ctx, "Dropping event for slow subscriber", "channel", channel)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, channel string, handler HandlerFunc) error {
	ch := make(chan Envelope, 16)

	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan Envelope]struct{})
	}
	b.subs[channel][ch] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs[channel], ch)
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-ch:
			if err := handler(ctx, env); err != nil {
				b.logger.ErrorwCtx(ctx, "Event handler failed", "channel", channel, "error", err)
			}
		}
	}
}

func (b *MemoryBus) Close() error {
	return nil
}
