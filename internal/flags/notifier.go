package flags

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"flipswitch/internal/constants"
	"flipswitch/internal/pubsub"
)

// EventChannel names the per-tenant broadcast channel. Tenant isolation on
// the event path rests on this namespacing.
func EventChannel(tenant string) string {
	return constants.EventChannelPrefix + tenant
}

// ChangeEventPublisher bridges the mutation pipeline onto the pub/sub
// transport, one envelope per mutation.
type ChangeEventPublisher struct {
	publisher pubsub.Publisher
}

func NewChangeEventPublisher(publisher pubsub.Publisher) *ChangeEventPublisher {
	return &ChangeEventPublisher{publisher: publisher}
}

func (p *ChangeEventPublisher) PublishChangeEvent(ctx context.Context, tenant string, event ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	env := pubsub.Envelope{
		ID:        event.ID,
		Channel:   EventChannel(tenant),
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	return p.publisher.Publish(ctx, env.Channel, env)
}

func newChangeEvent(eventType ChangeType, tenant string, flag Flag, actor Actor, changes map[string]FieldChange) ChangeEvent {
	return ChangeEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Tenant:    tenant,
		Flag:      flag,
		Actor:     actor,
		Changes:   changes,
		Timestamp: time.Now().UTC(),
	}
}
