// Package storage defines persistence contracts for inventory state.
package storage

import (
	"context"
	"time"

	"github.com/louisbranch/stockroom/internal/inventory/domain/event"
)

// EventStore persists the append-only inventory journal. AppendEvent assigns
// the per-stream sequence and content hash; appending an event whose hash is
// already stored returns the stored copy so redeliveries stay idempotent.
type EventStore interface {
	AppendEvent(ctx context.Context, evt event.Event) (event.Event, error)
	ListEvents(ctx context.Context, entityType, entityID string, afterSeq uint64, limit int) ([]event.Event, error)
	GetEventBySeq(ctx context.Context, entityType, entityID string, seq uint64) (event.Event, error)
	GetLatestSeq(ctx context.Context, entityType, entityID string) (uint64, error)
}

// OutboxStatus labels the processing state of one outbox entry.
type OutboxStatus string

const (
	// OutboxStatusPending marks entries awaiting dispatch.
	OutboxStatusPending OutboxStatus = "pending"
	// OutboxStatusDone marks entries whose handlers all completed.
	OutboxStatusDone OutboxStatus = "done"
	// OutboxStatusDead marks entries that exhausted their retry budget.
	OutboxStatusDead OutboxStatus = "dead"
)

// OutboxEntry is one durable dispatch obligation enqueued alongside an
// appended event.
type OutboxEntry struct {
	ID            int64
	EntityType    string
	EntityID      string
	Seq           uint64
	Status        OutboxStatus
	AttemptCount  int32
	LastError     string
	LeaseExpires  time.Time
	NextAttemptAt time.Time
	CreatedAt     time.Time
}

// OutboxStore persists dispatch obligations for appended events.
type OutboxStore interface {
	ClaimPending(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]OutboxEntry, error)
	MarkDone(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, lastError string, nextAttemptAt time.Time) error
	MarkDead(ctx context.Context, id int64, lastError string) error
}

// AttemptRecord is one durable dispatch outcome record.
type AttemptRecord struct {
	ID           int64
	EntityType   string
	EntityID     string
	Seq          uint64
	EventType    string
	Outcome      string
	AttemptCount int32
	LastError    string
	CreatedAt    time.Time
}

// AttemptStore persists dispatch attempt records.
type AttemptStore interface {
	RecordAttempt(ctx context.Context, attempt AttemptRecord) error
	ListAttempts(ctx context.Context, limit int) ([]AttemptRecord, error)
}

// StockView is the queryable projection of one product's stock.
type StockView struct {
	ProductID string
	Amount    int64
	Revision  uint64
	Pending   int
	UpdatedAt time.Time
}

// StockViewStore persists stock projections.
type StockViewStore interface {
	UpsertStockView(ctx context.Context, view StockView) error
	GetStockView(ctx context.Context, productID string) (StockView, error)
	ListStockViews(ctx context.Context, limit int) ([]StockView, error)
}

// CommandView is the queryable projection of one async command's lifecycle.
type CommandView struct {
	CommandID string
	Status    string
	UpdatedAt time.Time
}

// CommandViewStore persists command lifecycle projections.
type CommandViewStore interface {
	UpsertCommandView(ctx context.Context, view CommandView) error
	GetCommandView(ctx context.Context, commandID string) (CommandView, error)
}
