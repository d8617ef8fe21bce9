// Package saga reacts to journal events and drives reservations to a
// terminal outcome. Handlers are pure apart from replaying entity state:
// they return follow-up events and never write storage themselves.
package saga

import (
	"context"

	"github.com/louisbranch/stockroom/internal/inventory/domain/event"
)

// Handler consumes one journal event and returns follow-up events to append.
// Handlers must tolerate redelivery: a second delivery of the same event
// returns the same follow-ups, which the journal deduplicates by content.
type Handler interface {
	HandledTypes() []event.Type
	Handle(ctx context.Context, evt event.Event) ([]event.Event, error)
}
