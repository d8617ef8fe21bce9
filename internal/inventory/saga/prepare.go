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

// PrepareHandler resolves prepared reservation attempts. After the stock
// stream folds a reservation attempt, the command id sits in exactly one
// pending set, and each set maps to exactly one follow-up:
//
//	ToRetry  -> resubmit the attempt fenced on the current revision
//	ToCommit -> finalize the reservation and accept the command
//	ToReject -> decline the reservation and reject the command
//
// A command id in no set was already finalized, so the delivery is a stale
// redelivery and produces nothing.
type PrepareHandler struct {
	lister aggregate.EventLister
	clock  func() time.Time
}

// NewPrepareHandler creates a PrepareHandler reading entity streams from the
// given lister.
func NewPrepareHandler(lister aggregate.EventLister) (*PrepareHandler, error) {
	if lister == nil {
		return nil, errors.New("event lister is required")
	}
	return &PrepareHandler{lister: lister, clock: time.Now}, nil
}

// HandledTypes returns the event types this handler consumes.
func (h *PrepareHandler) HandledTypes() []event.Type {
	return []event.Type{event.TypeReservePrepared}
}

// Handle resolves one prepared reservation delivery.
func (h *PrepareHandler) Handle(ctx context.Context, evt event.Event) ([]event.Event, error) {
	if evt.Type != event.TypeReservePrepared {
		return nil, nil
	}
	var payload event.ReservePreparedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal prepared payload: %w", err)
	}
	if payload.CommandID == "" {
		return nil, errors.New("prepared payload has no command id")
	}

	state, err := aggregate.ReplayStock(ctx, h.lister, evt.EntityID)
	if err != nil {
		return nil, fmt.Errorf("replay stock %s: %w", evt.EntityID, err)
	}
	at := h.clock().UTC()

	switch {
	case state.InToRetry(payload.CommandID):
		resubmitJSON, _ := json.Marshal(event.ReservePreparedPayload{
			Amount:           payload.Amount,
			CommandID:        payload.CommandID,
			ExpectedRevision: state.Revision,
		})
		return []event.Event{{
			EntityType:    event.EntityTypeStock,
			EntityID:      evt.EntityID,
			Type:          event.TypeReservePrepared,
			Timestamp:     at,
			CorrelationID: payload.CommandID,
			PayloadJSON:   resubmitJSON,
		}}, nil

	case state.InToCommit(payload.CommandID):
		resolvedJSON, _ := json.Marshal(event.ReserveResolvedPayload{CommandID: payload.CommandID})
		acceptedJSON, _ := json.Marshal(event.CommandLifecyclePayload{CommandID: payload.CommandID})
		return []event.Event{
			{
				EntityType:    event.EntityTypeStock,
				EntityID:      evt.EntityID,
				Type:          event.TypeReserveCommitted,
				Timestamp:     at,
				CorrelationID: payload.CommandID,
				PayloadJSON:   resolvedJSON,
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

	case state.InToReject(payload.CommandID):
		resolvedJSON, _ := json.Marshal(event.ReserveResolvedPayload{CommandID: payload.CommandID})
		rejectedJSON, _ := json.Marshal(event.CommandLifecyclePayload{CommandID: payload.CommandID})
		return []event.Event{
			{
				EntityType:    event.EntityTypeStock,
				EntityID:      evt.EntityID,
				Type:          event.TypeReserveRejected,
				Timestamp:     at,
				CorrelationID: payload.CommandID,
				PayloadJSON:   resolvedJSON,
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

	// Already finalized by an earlier delivery.
	return nil, nil
}

var _ Handler = (*PrepareHandler)(nil)
