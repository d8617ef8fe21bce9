package saga

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/louisbranch/stockroom/internal/inventory/domain/event"
	"github.com/louisbranch/stockroom/internal/storage/memory"
)

func appendCarrier(t *testing.T, store *memory.Store, productID, commandID string, amount int64) event.Event {
	t.Helper()
	payload, _ := json.Marshal(event.ReserveCarrierPayload{
		CommandID: commandID,
		Data: event.ReservationData{
			ProductID: productID,
			Amount:    amount,
			CommandID: commandID,
		},
	})
	return appendEvent(t, store, event.Event{
		EntityType:    event.EntityTypeStock,
		EntityID:      productID,
		Type:          event.TypeReserveCarrier,
		CorrelationID: commandID,
		PayloadJSON:   payload,
	})
}

func newCarrierHandler(t *testing.T, store *memory.Store) *CarrierHandler {
	t.Helper()
	handler, err := NewCarrierHandler(store)
	if err != nil {
		t.Fatalf("new carrier handler: %v", err)
	}
	handler.clock = fixedClock
	return handler
}

func TestCarrierHandlerAnnouncesAcceptance(t *testing.T) {
	store := memory.NewStore()
	appendReceived(t, store, "product-1", "d1", 10)
	carrier := appendCarrier(t, store, "product-1", "cmd-1", 6)

	handler := newCarrierHandler(t, store)
	followups, err := handler.Handle(context.Background(), carrier)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(followups) != 2 {
		t.Fatalf("followups = %d, want 2", len(followups))
	}
	if followups[0].Type != event.TypeStockReserved {
		t.Fatalf("announcement type = %s", followups[0].Type)
	}
	var outcome event.ReservationOutcomePayload
	if err := json.Unmarshal(followups[0].PayloadJSON, &outcome); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if outcome.Amount != 6 || outcome.CommandID != "cmd-1" {
		t.Fatalf("outcome = %+v", outcome)
	}
	if followups[1].Type != event.TypeCommandAccepted || followups[1].EntityID != "cmd-1" {
		t.Fatalf("tracker followup = %+v", followups[1])
	}
}

func TestCarrierHandlerAnnouncesRejection(t *testing.T) {
	store := memory.NewStore()
	appendReceived(t, store, "product-1", "d1", 3)
	carrier := appendCarrier(t, store, "product-1", "cmd-1", 5)

	handler := newCarrierHandler(t, store)
	followups, err := handler.Handle(context.Background(), carrier)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(followups) != 2 {
		t.Fatalf("followups = %d, want 2", len(followups))
	}
	if followups[0].Type != event.TypeReservationRejected {
		t.Fatalf("announcement type = %s", followups[0].Type)
	}
	if followups[1].Type != event.TypeCommandRejected {
		t.Fatalf("tracker followup = %s", followups[1].Type)
	}
}

func TestCarrierHandlerRedeliveryRepeatsAnnouncement(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	appendReceived(t, store, "product-1", "d1", 10)
	carrier := appendCarrier(t, store, "product-1", "cmd-1", 6)

	handler := newCarrierHandler(t, store)
	first, err := handler.Handle(ctx, carrier)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	second, err := handler.Handle(ctx, carrier)
	if err != nil {
		t.Fatalf("redeliver: %v", err)
	}
	stored := appendEvent(t, store, first[0])
	redelivered := appendEvent(t, store, second[0])
	if stored.Seq != redelivered.Seq {
		t.Fatalf("redelivered announcement appended again: %+v vs %+v", stored, redelivered)
	}
}

func TestCarrierHandlerIgnoresOtherTypes(t *testing.T) {
	store := memory.NewStore()
	handler := newCarrierHandler(t, store)
	followups, err := handler.Handle(context.Background(), event.Event{Type: event.TypeStockReceived})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if followups != nil {
		t.Fatalf("unexpected followups: %+v", followups)
	}
}
