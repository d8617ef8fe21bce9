package command

import (
	"time"

	"github.com/louisbranch/stockroom/internal/inventory/domain/event"
)

// NewEvent builds an event.Event by copying the shared envelope fields from a
// command. Callers supply the event-specific type, entity addressing, payload,
// and timestamp so deciders avoid per-event envelope boilerplate.
func NewEvent(cmd Command, eventType event.Type, entityType, entityID string, payloadJSON []byte, now time.Time) event.Event {
	return event.Event{
		EntityType:    entityType,
		EntityID:      entityID,
		Type:          eventType,
		Timestamp:     now,
		CorrelationID: cmd.CorrelationID,
		PayloadJSON:   payloadJSON,
	}
}
