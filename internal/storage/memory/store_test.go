package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/stockroom/internal/inventory/domain/event"
	"github.com/louisbranch/stockroom/internal/storage"
)

func receivedEvent(productID, correlationID string, amount int64) event.Event {
	payload, _ := json.Marshal(event.StockReceivedPayload{Amount: amount})
	return event.Event{
		EntityType:    event.EntityTypeStock,
		EntityID:      productID,
		Type:          event.TypeStockReceived,
		CorrelationID: correlationID,
		PayloadJSON:   payload,
	}
}

func TestAppendEventAssignsSequencePerStream(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	first, err := store.AppendEvent(ctx, receivedEvent("product-1", "d1", 10))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	second, err := store.AppendEvent(ctx, receivedEvent("product-1", "d2", 5))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	other, err := store.AppendEvent(ctx, receivedEvent("product-2", "d3", 7))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if first.Seq != 1 || second.Seq != 2 {
		t.Fatalf("seqs = %d, %d, want 1, 2", first.Seq, second.Seq)
	}
	if other.Seq != 1 {
		t.Fatalf("other stream seq = %d, want 1", other.Seq)
	}
	if first.Hash == "" || first.Hash == second.Hash {
		t.Fatalf("hashes must be distinct and non-empty: %q %q", first.Hash, second.Hash)
	}
}

func TestAppendEventDeduplicatesRedelivery(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	first, err := store.AppendEvent(ctx, receivedEvent("product-1", "d1", 10))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	redelivered, err := store.AppendEvent(ctx, receivedEvent("product-1", "d1", 10))
	if err != nil {
		t.Fatalf("redeliver: %v", err)
	}
	if redelivered.Seq != first.Seq || redelivered.Hash != first.Hash {
		t.Fatalf("redelivery must return stored event: %+v vs %+v", redelivered, first)
	}

	latest, err := store.GetLatestSeq(ctx, event.EntityTypeStock, "product-1")
	if err != nil {
		t.Fatalf("latest seq: %v", err)
	}
	if latest != 1 {
		t.Fatalf("latest seq = %d, want 1", latest)
	}
}

func TestAppendEventRejectsUnaddressableEvent(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	missingID := receivedEvent("", "d1", 10)
	if _, err := store.AppendEvent(ctx, missingID); err == nil {
		t.Fatal("expected error for missing entity id")
	}
	missingType := receivedEvent("product-1", "d1", 10)
	missingType.Type = ""
	if _, err := store.AppendEvent(ctx, missingType); err == nil {
		t.Fatal("expected error for missing event type")
	}

	latest, err := store.GetLatestSeq(ctx, event.EntityTypeStock, "product-1")
	if err != nil {
		t.Fatalf("latest seq: %v", err)
	}
	if latest != 0 {
		t.Fatalf("latest seq = %d, want 0", latest)
	}
}

func TestListEventsPages(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := store.AppendEvent(ctx, receivedEvent("product-1", string(rune('a'+i)), int64(i+1))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	page, err := store.ListEvents(ctx, event.EntityTypeStock, "product-1", 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].Seq != 3 || page[1].Seq != 4 {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestGetEventBySeqMissing(t *testing.T) {
	store := NewStore()
	if _, err := store.GetEventBySeq(context.Background(), event.EntityTypeStock, "product-1", 1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAppendEnqueuesOutboxEntry(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	stored, err := store.AppendEvent(ctx, receivedEvent("product-1", "d1", 10))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	now := time.Now().UTC()
	claimed, err := store.ClaimPending(ctx, now, time.Minute, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("claimed = %d entries, want 1", len(claimed))
	}
	if claimed[0].EntityID != "product-1" || claimed[0].Seq != stored.Seq {
		t.Fatalf("unexpected entry: %+v", claimed[0])
	}

	// A live lease blocks a second claim.
	again, err := store.ClaimPending(ctx, now, time.Minute, 10)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("leased entry reclaimed: %+v", again)
	}

	if err := store.MarkDone(ctx, claimed[0].ID); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	final, err := store.ClaimPending(ctx, now.Add(2*time.Minute), time.Minute, 10)
	if err != nil {
		t.Fatalf("claim after done: %v", err)
	}
	if len(final) != 0 {
		t.Fatalf("done entry reclaimed: %+v", final)
	}
}

func TestMarkFailedDelaysNextAttempt(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	if _, err := store.AppendEvent(ctx, receivedEvent("product-1", "d1", 10)); err != nil {
		t.Fatalf("append: %v", err)
	}

	now := time.Now().UTC()
	claimed, err := store.ClaimPending(ctx, now, time.Minute, 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %v (%d entries)", err, len(claimed))
	}
	if err := store.MarkFailed(ctx, claimed[0].ID, "handler boom", now.Add(time.Hour)); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	early, err := store.ClaimPending(ctx, now.Add(2*time.Minute), time.Minute, 1)
	if err != nil {
		t.Fatalf("early claim: %v", err)
	}
	if len(early) != 0 {
		t.Fatal("entry claimed before its next attempt")
	}

	due, err := store.ClaimPending(ctx, now.Add(2*time.Hour), time.Minute, 1)
	if err != nil {
		t.Fatalf("due claim: %v", err)
	}
	if len(due) != 1 || due[0].AttemptCount != 1 || due[0].LastError != "handler boom" {
		t.Fatalf("unexpected retried entry: %+v", due)
	}
}

func TestMarkDeadParksEntry(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	if _, err := store.AppendEvent(ctx, receivedEvent("product-1", "d1", 10)); err != nil {
		t.Fatalf("append: %v", err)
	}

	now := time.Now().UTC()
	claimed, err := store.ClaimPending(ctx, now, time.Minute, 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %v (%d entries)", err, len(claimed))
	}
	if err := store.MarkDead(ctx, claimed[0].ID, "gave up"); err != nil {
		t.Fatalf("mark dead: %v", err)
	}
	after, err := store.ClaimPending(ctx, now.Add(time.Hour), time.Minute, 1)
	if err != nil {
		t.Fatalf("claim after dead: %v", err)
	}
	if len(after) != 0 {
		t.Fatalf("dead entry reclaimed: %+v", after)
	}
}

func TestAttemptRecords(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := store.RecordAttempt(ctx, storage.AttemptRecord{
			EntityType: event.EntityTypeStock,
			EntityID:   "product-1",
			Seq:        uint64(i + 1),
			EventType:  string(event.TypeStockReceived),
			Outcome:    "success",
		}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	records, err := store.ListAttempts(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 || records[0].Seq != 3 {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestStockViewRoundTrip(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if _, err := store.GetStockView(ctx, "product-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing view err = %v, want ErrNotFound", err)
	}
	view := storage.StockView{ProductID: "product-1", Amount: 5, Revision: 2, UpdatedAt: time.Now().UTC()}
	if err := store.UpsertStockView(ctx, view); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := store.GetStockView(ctx, "product-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount != 5 || got.Revision != 2 {
		t.Fatalf("view = %+v", got)
	}

	views, err := store.ListStockViews(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("views = %d, want 1", len(views))
	}
}

func TestCommandViewRoundTrip(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.UpsertCommandView(ctx, storage.CommandView{CommandID: "cmd-1", Status: "processing"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.UpsertCommandView(ctx, storage.CommandView{CommandID: "cmd-1", Status: "accepted"}); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	got, err := store.GetCommandView(context.Background(), "cmd-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != "accepted" {
		t.Fatalf("status = %q, want accepted", got.Status)
	}
}
