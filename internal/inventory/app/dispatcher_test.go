package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/louisbranch/stockroom/internal/inventory/domain/asynccommand"
	"github.com/louisbranch/stockroom/internal/inventory/domain/command"
	"github.com/louisbranch/stockroom/internal/inventory/domain/event"
	"github.com/louisbranch/stockroom/internal/inventory/projection"
	"github.com/louisbranch/stockroom/internal/inventory/saga"
	"github.com/louisbranch/stockroom/internal/inventory/service"
	"github.com/louisbranch/stockroom/internal/storage/memory"
)

type testHarness struct {
	store      *memory.Store
	service    *service.Service
	dispatcher *Dispatcher
	now        time.Time
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	store := memory.NewStore()

	registry, err := command.DefaultRegistry()
	if err != nil {
		t.Fatalf("command registry: %v", err)
	}
	svc, err := service.NewService(registry, store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	prepareHandler, err := saga.NewPrepareHandler(store)
	if err != nil {
		t.Fatalf("prepare handler: %v", err)
	}
	carrierHandler, err := saga.NewCarrierHandler(store)
	if err != nil {
		t.Fatalf("carrier handler: %v", err)
	}
	projections, err := projection.NewApplier(store, store, store)
	if err != nil {
		t.Fatalf("projection applier: %v", err)
	}
	dispatcher, err := NewDispatcher(store, store, store, []saga.Handler{prepareHandler, carrierHandler}, projections, Config{})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	h := &testHarness{
		store:      store,
		service:    svc,
		dispatcher: dispatcher,
		now:        time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	dispatcher.clock = func() time.Time { return h.now }
	dispatcher.logf = t.Logf
	return h
}

// drain processes pending outbox entries, advancing the clock past retry
// backoffs until the outbox is quiet.
func (h *testHarness) drain(t *testing.T) int {
	t.Helper()
	total := 0
	for i := 0; i < 50; i++ {
		processed, err := h.dispatcher.ProcessPending(context.Background())
		if err != nil {
			t.Fatalf("process pending: %v", err)
		}
		total += processed
		if processed == 0 {
			h.now = h.now.Add(10 * time.Minute)
			again, err := h.dispatcher.ProcessPending(context.Background())
			if err != nil {
				t.Fatalf("process pending: %v", err)
			}
			if again == 0 {
				return total
			}
			total += again
		}
	}
	t.Fatal("outbox did not quiesce")
	return total
}

func TestDispatcherResolvesPreparedReservation(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	if _, err := h.service.ReceiveStock(ctx, "product-1", 10, "delivery-1"); err != nil {
		t.Fatalf("receive: %v", err)
	}
	commandID, err := h.service.ReserveStock(ctx, "product-1", 4)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	h.drain(t)

	tracker, err := h.service.GetCommand(ctx, commandID)
	if err != nil {
		t.Fatalf("get command: %v", err)
	}
	if tracker.Status != asynccommand.StatusAccepted {
		t.Fatalf("status = %s, want accepted", tracker.Status)
	}

	state, err := h.service.GetStock(ctx, "product-1")
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if state.Amount != 6 {
		t.Fatalf("amount = %d, want 6", state.Amount)
	}
	if len(state.ToCommit)+len(state.ToReject)+len(state.ToRetry) != 0 {
		t.Fatalf("pending sets not drained: %+v", state)
	}

	view, err := h.store.GetStockView(ctx, "product-1")
	if err != nil {
		t.Fatalf("get stock view: %v", err)
	}
	if view.Amount != 6 || view.Pending != 0 {
		t.Fatalf("view = %+v", view)
	}
	commandView, err := h.store.GetCommandView(ctx, commandID)
	if err != nil {
		t.Fatalf("get command view: %v", err)
	}
	if commandView.Status != string(asynccommand.StatusAccepted) {
		t.Fatalf("command view = %+v", commandView)
	}
}

func TestDispatcherRejectsInsufficientReservation(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	if _, err := h.service.ReceiveStock(ctx, "product-1", 3, "delivery-1"); err != nil {
		t.Fatalf("receive: %v", err)
	}
	commandID, err := h.service.ReserveStock(ctx, "product-1", 5)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	h.drain(t)

	tracker, err := h.service.GetCommand(ctx, commandID)
	if err != nil {
		t.Fatalf("get command: %v", err)
	}
	if tracker.Status != asynccommand.StatusRejected {
		t.Fatalf("status = %s, want rejected", tracker.Status)
	}
	state, err := h.service.GetStock(ctx, "product-1")
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if state.Amount != 3 {
		t.Fatalf("rejected reservation must not debit: amount = %d", state.Amount)
	}
}

func TestDispatcherResolvesCarrierReservation(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	if _, err := h.service.ReceiveStock(ctx, "product-1", 10, "delivery-1"); err != nil {
		t.Fatalf("receive: %v", err)
	}
	commandID, err := h.service.ReserveStockAtomic(ctx, "product-1", 6)
	if err != nil {
		t.Fatalf("reserve atomic: %v", err)
	}
	h.drain(t)

	tracker, err := h.service.GetCommand(ctx, commandID)
	if err != nil {
		t.Fatalf("get command: %v", err)
	}
	if tracker.Status != asynccommand.StatusAccepted {
		t.Fatalf("status = %s, want accepted", tracker.Status)
	}

	// The acceptance announcement joined the stock stream.
	events, err := h.store.ListEvents(ctx, event.EntityTypeStock, "product-1", 0, 100)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	var announced bool
	for _, evt := range events {
		if evt.Type == event.TypeStockReserved {
			announced = true
		}
	}
	if !announced {
		t.Fatal("missing stock.reserved announcement")
	}
}

// Contending reservations with stale fences must converge through the retry
// protocol: with 7 units and four requests for 3, exactly two are admitted
// and the amount never goes negative.
func TestDispatcherContendingReservationsConverge(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	if _, err := h.service.ReceiveStock(ctx, "product-1", 7, "delivery-1"); err != nil {
		t.Fatalf("receive: %v", err)
	}

	// Append the attempts directly so all four carry the same stale fence,
	// as concurrent writers racing on one revision would.
	commandIDs := make([]string, 4)
	for i := range commandIDs {
		commandIDs[i] = fmt.Sprintf("cmd-%d", i+1)
		prepared, _ := json.Marshal(event.ReservePreparedPayload{
			Amount:           3,
			CommandID:        commandIDs[i],
			ExpectedRevision: 0,
		})
		started, _ := json.Marshal(event.CommandLifecyclePayload{CommandID: commandIDs[i]})
		if _, err := h.store.AppendEvent(ctx, event.Event{
			EntityType:    event.EntityTypeStock,
			EntityID:      "product-1",
			Type:          event.TypeReservePrepared,
			CorrelationID: commandIDs[i],
			PayloadJSON:   prepared,
		}); err != nil {
			t.Fatalf("append prepared: %v", err)
		}
		if _, err := h.store.AppendEvent(ctx, event.Event{
			EntityType:    event.EntityTypeCommand,
			EntityID:      commandIDs[i],
			Type:          event.TypeCommandStarted,
			CorrelationID: commandIDs[i],
			PayloadJSON:   started,
		}); err != nil {
			t.Fatalf("append started: %v", err)
		}
	}
	h.drain(t)

	accepted := 0
	rejected := 0
	for _, commandID := range commandIDs {
		tracker, err := h.service.GetCommand(ctx, commandID)
		if err != nil {
			t.Fatalf("get command %s: %v", commandID, err)
		}
		switch tracker.Status {
		case asynccommand.StatusAccepted:
			accepted++
		case asynccommand.StatusRejected:
			rejected++
		default:
			t.Fatalf("command %s still %s", commandID, tracker.Status)
		}
	}
	if accepted != 2 || rejected != 2 {
		t.Fatalf("accepted = %d, rejected = %d, want 2 and 2", accepted, rejected)
	}

	state, err := h.service.GetStock(ctx, "product-1")
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if state.Amount != 1 {
		t.Fatalf("amount = %d, want 1", state.Amount)
	}
	if state.Amount < 0 {
		t.Fatalf("amount went negative: %d", state.Amount)
	}
}

type failingHandler struct {
	calls int
}

func (f *failingHandler) HandledTypes() []event.Type {
	return []event.Type{event.TypeStockReceived}
}

func (f *failingHandler) Handle(context.Context, event.Event) ([]event.Event, error) {
	f.calls++
	return nil, errors.New("handler boom")
}

func TestDispatcherDeadLettersAfterMaxAttempts(t *testing.T) {
	store := memory.NewStore()
	projections, err := projection.NewApplier(store, store, store)
	if err != nil {
		t.Fatalf("projection applier: %v", err)
	}
	handler := &failingHandler{}
	dispatcher, err := NewDispatcher(store, store, store, []saga.Handler{handler}, projections, Config{MaxAttempts: 3})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	dispatcher.clock = func() time.Time { return now }
	dispatcher.logf = t.Logf

	ctx := context.Background()
	received, _ := json.Marshal(event.StockReceivedPayload{Amount: 10})
	if _, err := store.AppendEvent(ctx, event.Event{
		EntityType:    event.EntityTypeStock,
		EntityID:      "product-1",
		Type:          event.TypeStockReceived,
		CorrelationID: "d1",
		PayloadJSON:   received,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := dispatcher.ProcessPending(ctx); err != nil {
			t.Fatalf("process pending: %v", err)
		}
		now = now.Add(time.Hour)
	}

	if handler.calls != 3 {
		t.Fatalf("handler calls = %d, want 3", handler.calls)
	}
	records, err := store.ListAttempts(ctx, 10)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("attempt records = %d, want 3", len(records))
	}
	if records[0].Outcome != "dead" {
		t.Fatalf("final outcome = %q, want dead", records[0].Outcome)
	}
}

func TestDispatcherRetryDelayCapped(t *testing.T) {
	store := memory.NewStore()
	projections, err := projection.NewApplier(store, store, store)
	if err != nil {
		t.Fatalf("projection applier: %v", err)
	}
	dispatcher, err := NewDispatcher(store, store, nil, nil, projections, Config{
		RetryBackoff:  time.Second,
		RetryMaxDelay: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{attempts: 1, want: time.Second},
		{attempts: 2, want: 2 * time.Second},
		{attempts: 3, want: 4 * time.Second},
		{attempts: 4, want: 5 * time.Second},
		{attempts: 10, want: 5 * time.Second},
	}
	for _, tc := range cases {
		if got := dispatcher.retryDelay(tc.attempts); got != tc.want {
			t.Fatalf("retryDelay(%d) = %v, want %v", tc.attempts, got, tc.want)
		}
	}
}
