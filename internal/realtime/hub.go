package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"flipswitch/internal/flags"
	"flipswitch/internal/logger"
	"flipswitch/internal/pubsub"
	"flipswitch/pkg/metrics"
)

const sessionBuffer = 16

// Hub fans change events out to connected stream sessions. One upstream
// subscription is held per tenant and started lazily with the first
// session; it is torn down when the last session for that tenant leaves.
type Hub struct {
	subscriber pubsub.Subscriber
	logger     logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	tenants map[string]*tenantStream
}

type tenantStream struct {
	cancel   context.CancelFunc
	sessions map[chan flags.ChangeEvent]struct{}
}

func NewHub(subscriber pubsub.Subscriber, log logger.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		subscriber: subscriber,
		logger:     log,
		ctx:        ctx,
		cancel:     cancel,
		tenants:    make(map[string]*tenantStream),
	}
}

// Subscribe registers a session for the tenant's change events. The
// returned cancel func must be called when the session ends; it closes
// the event channel.
func (h *Hub) Subscribe(tenant string) (<-chan flags.ChangeEvent, func()) {
	events := make(chan flags.ChangeEvent, sessionBuffer)

	h.mu.Lock()
	stream, ok := h.tenants[tenant]
	if !ok {
		streamCtx, streamCancel := context.WithCancel(h.ctx)
		stream = &tenantStream{
			cancel:   streamCancel,
			sessions: make(map[chan flags.ChangeEvent]struct{}),
		}
		h.tenants[tenant] = stream
		go h.consume(streamCtx, tenant)
	}
	stream.sessions[events] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		stream, ok := h.tenants[tenant]
		if !ok {
			return
		}
		if _, registered := stream.sessions[events]; !registered {
			return
		}
		delete(stream.sessions, events)
		close(events)

		if len(stream.sessions) == 0 {
			stream.cancel()
			delete(h.tenants, tenant)
		}
	}

	return events, unsubscribe
}

func (h *Hub) Close() {
	h.cancel()
}

// consume holds the upstream subscription for one tenant, resubscribing
// with exponential backoff when the transport drops.
func (h *Hub) consume(ctx context.Context, tenant string) {
	channel := flags.EventChannel(tenant)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0

	for {
		err := h.subscriber.Subscribe(ctx, channel, func(ctx context.Context, env pubsub.Envelope) error {
			h.dispatch(tenant, env)
			return nil
		})
		if ctx.Err() != nil {
			return
		}

		wait := bo.NextBackOff()
		h.logger.WarnwCtx(ctx, "Event stream subscription dropped, resubscribing",
			"tenant", tenant, "wait", wait, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (h *Hub) dispatch(tenant string, env pubsub.Envelope) {
	var event flags.ChangeEvent
	if err := json.Unmarshal(env.Payload, &event); err != nil {
		h.logger.Warnw("Dropping malformed change event", "tenant", tenant, "error", err)
		return
	}

	// Sends stay under the lock so an unsubscribe cannot close a session
	// channel mid-dispatch. They never block: a full buffer drops instead.
	h.mu.Lock()
	defer h.mu.Unlock()

	stream, ok := h.tenants[tenant]
	if !ok {
		return
	}

	for s := range stream.sessions {
		select {
		case s <- event:
			metrics.EventsDeliveredTotal.WithLabelValues("ok").Inc()
		default:
			// Slow consumer; it recovers by refreshing the full list.
			metrics.EventsDeliveredTotal.WithLabelValues("dropped").Inc()
		}
	}
}
