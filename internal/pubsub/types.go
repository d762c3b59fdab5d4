package pubsub

import (
	"context"
	"encoding/json"
	"time"
)

// Envelope is the wire frame for one published event. Payload stays opaque
// to the transport; Channel names the tenant stream the event belongs to.
type Envelope struct {
	ID        string          `json:"id"`
	Channel   string          `json:"channel"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type HandlerFunc func(ctx context.Context, env Envelope) error

// Publisher delivers at most once, with no durability. A failed publish is
// the caller's problem to log, never to retry into a double delivery.
type Publisher interface {
	Publish(ctx context.Context, channel string, env Envelope) error
	Close() error
}

// Subscriber blocks in Subscribe until the context is cancelled, invoking
// the handler once per received envelope. Handler errors are logged, not
// fatal to the subscription.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler HandlerFunc) error
	Close() error
}
