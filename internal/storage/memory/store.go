// Package memory provides an in-memory implementation of the inventory
// storage contracts, used by tests and local tooling.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/stockroom/internal/inventory/domain/event"
	"github.com/louisbranch/stockroom/internal/storage"
)

type streamKey struct {
	entityType string
	entityID   string
}

// Store keeps the journal, outbox, attempts, and views in process memory.
type Store struct {
	mu           sync.Mutex
	events       map[streamKey][]event.Event
	byHash       map[string]event.Event
	outbox       []storage.OutboxEntry
	nextOutboxID int64
	attempts     []storage.AttemptRecord
	stockViews   map[string]storage.StockView
	commandViews map[string]storage.CommandView
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		events:       make(map[streamKey][]event.Event),
		byHash:       make(map[string]event.Event),
		nextOutboxID: 1,
		stockViews:   make(map[string]storage.StockView),
		commandViews: make(map[string]storage.CommandView),
	}
}

// AppendEvent assigns the next per-stream sequence and enqueues an outbox
// entry. An event whose content hash is already stored returns the stored
// copy unchanged.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil {
		return event.Event{}, errors.New("store is required")
	}
	hash, err := event.ContentHash(evt)
	if err != nil {
		return event.Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.byHash[hash]; ok {
		return stored, nil
	}

	key := streamKey{entityType: evt.EntityType, entityID: evt.EntityID}
	evt.Seq = uint64(len(s.events[key])) + 1
	evt.Hash = hash
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.events[key] = append(s.events[key], evt)
	s.byHash[hash] = evt

	s.outbox = append(s.outbox, storage.OutboxEntry{
		ID:         s.nextOutboxID,
		EntityType: evt.EntityType,
		EntityID:   evt.EntityID,
		Seq:        evt.Seq,
		Status:     storage.OutboxStatusPending,
		CreatedAt:  evt.Timestamp,
	})
	s.nextOutboxID++
	return evt, nil
}

// ListEvents returns events after the given sequence in ascending order.
func (s *Store) ListEvents(ctx context.Context, entityType, entityID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, errors.New("limit must be greater than zero")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.events[streamKey{entityType: entityType, entityID: entityID}]
	var out []event.Event
	for _, evt := range stream {
		if evt.Seq <= afterSeq {
			continue
		}
		out = append(out, evt)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// GetEventBySeq returns one event from a stream.
func (s *Store) GetEventBySeq(ctx context.Context, entityType, entityID string, seq uint64) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.events[streamKey{entityType: entityType, entityID: entityID}]
	for _, evt := range stream {
		if evt.Seq == seq {
			return evt, nil
		}
	}
	return event.Event{}, storage.ErrNotFound
}

// GetLatestSeq returns the highest assigned sequence for a stream, zero when
// the stream is empty.
func (s *Store) GetLatestSeq(ctx context.Context, entityType, entityID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return uint64(len(s.events[streamKey{entityType: entityType, entityID: entityID}])), nil
}

// ClaimPending leases due pending entries for processing.
func (s *Store) ClaimPending(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]storage.OutboxEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, errors.New("limit must be greater than zero")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var claimed []storage.OutboxEntry
	for i := range s.outbox {
		entry := &s.outbox[i]
		if entry.Status != storage.OutboxStatusPending {
			continue
		}
		if entry.NextAttemptAt.After(now) || entry.LeaseExpires.After(now) {
			continue
		}
		entry.LeaseExpires = now.Add(lease)
		claimed = append(claimed, *entry)
		if len(claimed) == limit {
			break
		}
	}
	return claimed, nil
}

// MarkDone finalizes a claimed entry.
func (s *Store) MarkDone(ctx context.Context, id int64) error {
	return s.updateOutbox(ctx, id, func(entry *storage.OutboxEntry) {
		entry.Status = storage.OutboxStatusDone
		entry.LeaseExpires = time.Time{}
	})
}

// MarkFailed records a failed attempt and schedules the next one.
func (s *Store) MarkFailed(ctx context.Context, id int64, lastError string, nextAttemptAt time.Time) error {
	return s.updateOutbox(ctx, id, func(entry *storage.OutboxEntry) {
		entry.AttemptCount++
		entry.LastError = lastError
		entry.NextAttemptAt = nextAttemptAt
		entry.LeaseExpires = time.Time{}
	})
}

// MarkDead parks an entry that exhausted its retry budget.
func (s *Store) MarkDead(ctx context.Context, id int64, lastError string) error {
	return s.updateOutbox(ctx, id, func(entry *storage.OutboxEntry) {
		entry.AttemptCount++
		entry.Status = storage.OutboxStatusDead
		entry.LastError = lastError
		entry.LeaseExpires = time.Time{}
	})
}

func (s *Store) updateOutbox(ctx context.Context, id int64, apply func(*storage.OutboxEntry)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.outbox {
		if s.outbox[i].ID == id {
			apply(&s.outbox[i])
			return nil
		}
	}
	return storage.ErrNotFound
}

// RecordAttempt persists one dispatch attempt outcome.
func (s *Store) RecordAttempt(ctx context.Context, attempt storage.AttemptRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(attempt.EventType) == "" {
		return fmt.Errorf("event type is required")
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	attempt.ID = int64(len(s.attempts)) + 1
	s.attempts = append(s.attempts, attempt)
	return nil
}

// ListAttempts lists newest-first attempt records.
func (s *Store) ListAttempts(ctx context.Context, limit int) ([]storage.AttemptRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, errors.New("limit must be greater than zero")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]storage.AttemptRecord, 0, limit)
	for i := len(s.attempts) - 1; i >= 0 && len(records) < limit; i-- {
		records = append(records, s.attempts[i])
	}
	return records, nil
}

// UpsertStockView replaces the stored stock projection for a product.
func (s *Store) UpsertStockView(ctx context.Context, view storage.StockView) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	view.ProductID = strings.TrimSpace(view.ProductID)
	if view.ProductID == "" {
		return errors.New("product id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stockViews[view.ProductID] = view
	return nil
}

// GetStockView returns the stock projection for a product.
func (s *Store) GetStockView(ctx context.Context, productID string) (storage.StockView, error) {
	if err := ctx.Err(); err != nil {
		return storage.StockView{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	view, ok := s.stockViews[strings.TrimSpace(productID)]
	if !ok {
		return storage.StockView{}, storage.ErrNotFound
	}
	return view, nil
}

// ListStockViews returns stock projections ordered by product id.
func (s *Store) ListStockViews(ctx context.Context, limit int) ([]storage.StockView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, errors.New("limit must be greater than zero")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	views := make([]storage.StockView, 0, len(s.stockViews))
	for _, view := range s.stockViews {
		views = append(views, view)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ProductID < views[j].ProductID })
	if len(views) > limit {
		views = views[:limit]
	}
	return views, nil
}

// UpsertCommandView replaces the stored command projection.
func (s *Store) UpsertCommandView(ctx context.Context, view storage.CommandView) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	view.CommandID = strings.TrimSpace(view.CommandID)
	if view.CommandID == "" {
		return errors.New("command id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.commandViews[view.CommandID] = view
	return nil
}

// GetCommandView returns the command projection for a command id.
func (s *Store) GetCommandView(ctx context.Context, commandID string) (storage.CommandView, error) {
	if err := ctx.Err(); err != nil {
		return storage.CommandView{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	view, ok := s.commandViews[strings.TrimSpace(commandID)]
	if !ok {
		return storage.CommandView{}, storage.ErrNotFound
	}
	return view, nil
}

var (
	_ storage.EventStore       = (*Store)(nil)
	_ storage.OutboxStore      = (*Store)(nil)
	_ storage.AttemptStore     = (*Store)(nil)
	_ storage.StockViewStore   = (*Store)(nil)
	_ storage.CommandViewStore = (*Store)(nil)
)
