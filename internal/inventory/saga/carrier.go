package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/stockroom/internal/inventory/domain/aggregate"
	"github.com/louisbranch/stockroom/internal/inventory/domain/event"
)

// CarrierHandler announces the outcome of carrier reservations. The
// accept/reject decision already happened when the stock stream folded the
// carrier event, so this handler only reads the recorded resolution and
// emits the announcement plus the command tracker outcome.
type CarrierHandler struct {
	lister aggregate.EventLister
	clock  func() time.Time
}

// NewCarrierHandler creates a CarrierHandler reading entity streams from the
// given lister.
func NewCarrierHandler(lister aggregate.EventLister) (*CarrierHandler, error) {
	if lister == nil {
		return nil, errors.New("event lister is required")
	}
	return &CarrierHandler{lister: lister, clock: time.Now}, nil
}

// HandledTypes returns the event types this handler consumes.
func (h *CarrierHandler) HandledTypes() []event.Type {
	return []event.Type{event.TypeReserveCarrier}
}

// Handle announces one carrier reservation outcome.
func (h *CarrierHandler) Handle(ctx context.Context, evt event.Event) ([]event.Event, error) {
	if evt.Type != event.TypeReserveCarrier {
		return nil, nil
	}
	var payload event.ReserveCarrierPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal carrier payload: %w", err)
	}
	if payload.CommandID == "" {
		return nil, errors.New("carrier payload has no command id")
	}

	state, err := aggregate.ReplayStock(ctx, h.lister, evt.EntityID)
	if err != nil {
		return nil, fmt.Errorf("replay stock %s: %w", evt.EntityID, err)
	}
	at := h.clock().UTC()

	if resolution, ok := state.AcceptedFor(payload.CommandID); ok {
		outcomeJSON, _ := json.Marshal(event.ReservationOutcomePayload{
			Amount:    resolution.Amount,
			CommandID: payload.CommandID,
		})
		acceptedJSON, _ := json.Marshal(event.CommandLifecyclePayload{CommandID: payload.CommandID})
		return []event.Event{
			{
				EntityType:    event.EntityTypeStock,
				EntityID:      evt.EntityID,
				Type:          event.TypeStockReserved,
				Timestamp:     at,
				CorrelationID: payload.CommandID,
				PayloadJSON:   outcomeJSON,
			},
			{
				EntityType:    event.EntityTypeCommand,
				EntityID:      payload.CommandID,
				Type:          event.TypeCommandAccepted,
				Timestamp:     at,
				CorrelationID: payload.CommandID,
				PayloadJSON:   acceptedJSON,
			},
		}, nil
	}

	if resolution, ok := state.RejectedFor(payload.CommandID); ok {
		outcomeJSON, _ := json.Marshal(event.ReservationOutcomePayload{
			Amount:    resolution.Amount,
			CommandID: payload.CommandID,
		})
		rejectedJSON, _ := json.Marshal(event.CommandLifecyclePayload{CommandID: payload.CommandID})
		return []event.Event{
			{
				EntityType:    event.EntityTypeStock,
				EntityID:      evt.EntityID,
				Type:          event.TypeReservationRejected,
				Timestamp:     at,
				CorrelationID: payload.CommandID,
				PayloadJSON:   outcomeJSON,
			},
			{
				EntityType:    event.EntityTypeCommand,
				EntityID:      payload.CommandID,
				Type:          event.TypeCommandRejected,
				Timestamp:     at,
				CorrelationID: payload.CommandID,
				PayloadJSON:   rejectedJSON,
			},
		}, nil
	}

	// The stream has not folded a resolution for this command id, which
	// only happens for malformed carrier payloads the fold skipped.
	return nil, nil
}

var _ Handler = (*CarrierHandler)(nil)
