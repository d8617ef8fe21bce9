package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/stockroom/internal/inventory/domain/event"
	"github.com/louisbranch/stockroom/internal/storage"
)

// AppendEvent atomically appends an event and returns it with sequence and
// hash set. An event whose content hash is already stored returns the stored
// copy so redeliveries append nothing new. The matching outbox entry is
// enqueued in the same transaction.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}

	validated, err := s.registry.ValidateForAppend(evt)
	if err != nil {
		return event.Event{}, err
	}
	evt = validated
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)
	hash, err := event.ContentHash(evt)
	if err != nil {
		return event.Event{}, err
	}
	evt.Hash = hash

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return event.Event{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO inventory_event_seqs (entity_type, entity_id, next_seq)
VALUES (?, ?, 1)
ON CONFLICT (entity_type, entity_id) DO NOTHING
`, evt.EntityType, evt.EntityID); err != nil {
		return event.Event{}, fmt.Errorf("init event seq: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, `
SELECT next_seq FROM inventory_event_seqs WHERE entity_type = ? AND entity_id = ?
`, evt.EntityType, evt.EntityID).Scan(&seq); err != nil {
		return event.Event{}, fmt.Errorf("get event seq: %w", err)
	}
	evt.Seq = uint64(seq)

	if _, err := tx.ExecContext(ctx, `
UPDATE inventory_event_seqs SET next_seq = next_seq + 1 WHERE entity_type = ? AND entity_id = ?
`, evt.EntityType, evt.EntityID); err != nil {
		return event.Event{}, fmt.Errorf("increment event seq: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO inventory_events (
	entity_type,
	entity_id,
	seq,
	event_hash,
	event_type,
	correlation_id,
	payload_json,
	timestamp
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		evt.EntityType,
		evt.EntityID,
		int64(evt.Seq),
		evt.Hash,
		string(evt.Type),
		evt.CorrelationID,
		evt.PayloadJSON,
		toMillis(evt.Timestamp),
	); err != nil {
		if isConstraintError(err) {
			stored, lookupErr := s.getEventByHash(ctx, evt.Hash)
			if lookupErr == nil {
				return stored, nil
			}
		}
		return event.Event{}, fmt.Errorf("append event: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO inventory_outbox (entity_type, entity_id, seq, status, created_at)
VALUES (?, ?, ?, ?, ?)
`,
		evt.EntityType,
		evt.EntityID,
		int64(evt.Seq),
		string(storage.OutboxStatusPending),
		toMillis(evt.Timestamp),
	); err != nil {
		return event.Event{}, fmt.Errorf("enqueue outbox entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return event.Event{}, fmt.Errorf("commit: %w", err)
	}
	return evt, nil
}

const eventColumns = `
	entity_type,
	entity_id,
	seq,
	event_hash,
	event_type,
	correlation_id,
	payload_json,
	timestamp
`

func scanEvent(scan func(dest ...any) error) (event.Event, error) {
	var evt event.Event
	var seq int64
	var eventType string
	var timestamp int64
	if err := scan(
		&evt.EntityType,
		&evt.EntityID,
		&seq,
		&evt.Hash,
		&eventType,
		&evt.CorrelationID,
		&evt.PayloadJSON,
		&timestamp,
	); err != nil {
		return event.Event{}, err
	}
	evt.Seq = uint64(seq)
	evt.Type = event.Type(eventType)
	evt.Timestamp = fromMillis(timestamp)
	return evt, nil
}

func (s *Store) getEventByHash(ctx context.Context, hash string) (event.Event, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+eventColumns+`
FROM inventory_events
WHERE event_hash = ?
`, hash)
	evt, err := scanEvent(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, storage.ErrNotFound
		}
		return event.Event{}, fmt.Errorf("get event by hash: %w", err)
	}
	return evt, nil
}

// ListEvents returns events after the given sequence in ascending order.
func (s *Store) ListEvents(ctx context.Context, entityType, entityID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+eventColumns+`
FROM inventory_events
WHERE entity_type = ? AND entity_id = ? AND seq > ?
ORDER BY seq ASC
LIMIT ?
`, entityType, entityID, int64(afterSeq), limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// GetEventBySeq returns one event from a stream.
func (s *Store) GetEventBySeq(ctx context.Context, entityType, entityID string, seq uint64) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+eventColumns+`
FROM inventory_events
WHERE entity_type = ? AND entity_id = ? AND seq = ?
`, entityType, entityID, int64(seq))
	evt, err := scanEvent(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, storage.ErrNotFound
		}
		return event.Event{}, fmt.Errorf("get event by seq: %w", err)
	}
	return evt, nil
}

// GetLatestSeq returns the highest assigned sequence for a stream, zero when
// the stream is empty.
func (s *Store) GetLatestSeq(ctx context.Context, entityType, entityID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var seq sql.NullInt64
	if err := s.sqlDB.QueryRowContext(ctx, `
SELECT MAX(seq) FROM inventory_events WHERE entity_type = ? AND entity_id = ?
`, entityType, entityID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("get latest seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}
