package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/stockroom/internal/storage"
)

// ClaimPending leases due pending outbox entries for processing. Entries with
// a live lease are skipped; an expired lease makes the entry claimable again.
func (s *Store) ClaimPending(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]storage.OutboxEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	if lease <= 0 {
		return nil, fmt.Errorf("lease must be greater than zero")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	now = now.UTC()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
SELECT id, entity_type, entity_id, seq, status, attempt_count, last_error, lease_expires_at, next_attempt_at, created_at
FROM inventory_outbox
WHERE status = ? AND next_attempt_at <= ? AND lease_expires_at <= ?
ORDER BY created_at ASC, id ASC
LIMIT ?
`, string(storage.OutboxStatusPending), toMillis(now), toMillis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("select claim candidates: %w", err)
	}

	var claimed []storage.OutboxEntry
	for rows.Next() {
		var entry storage.OutboxEntry
		var seq int64
		var status string
		var leaseExpires, nextAttempt, createdAt int64
		if err := rows.Scan(
			&entry.ID,
			&entry.EntityType,
			&entry.EntityID,
			&seq,
			&status,
			&entry.AttemptCount,
			&entry.LastError,
			&leaseExpires,
			&nextAttempt,
			&createdAt,
		); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan claim candidate: %w", err)
		}
		entry.Seq = uint64(seq)
		entry.Status = storage.OutboxStatus(status)
		entry.LeaseExpires = fromMillis(leaseExpires)
		entry.NextAttemptAt = fromMillis(nextAttempt)
		entry.CreatedAt = fromMillis(createdAt)
		claimed = append(claimed, entry)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate claim candidates: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close claim candidates: %w", err)
	}

	leaseExpiresAt := toMillis(now.Add(lease))
	for i := range claimed {
		if _, err := tx.ExecContext(ctx, `
UPDATE inventory_outbox SET lease_expires_at = ? WHERE id = ?
`, leaseExpiresAt, claimed[i].ID); err != nil {
			return nil, fmt.Errorf("lease outbox entry: %w", err)
		}
		claimed[i].LeaseExpires = fromMillis(leaseExpiresAt)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	return claimed, nil
}

// MarkDone finalizes a claimed entry.
func (s *Store) MarkDone(ctx context.Context, id int64) error {
	return s.updateOutbox(ctx, id, `
UPDATE inventory_outbox SET status = ?, lease_expires_at = 0 WHERE id = ?
`, string(storage.OutboxStatusDone), id)
}

// MarkFailed records a failed attempt and schedules the next one.
func (s *Store) MarkFailed(ctx context.Context, id int64, lastError string, nextAttemptAt time.Time) error {
	return s.updateOutbox(ctx, id, `
UPDATE inventory_outbox
SET attempt_count = attempt_count + 1, last_error = ?, next_attempt_at = ?, lease_expires_at = 0
WHERE id = ?
`, strings.TrimSpace(lastError), toMillis(nextAttemptAt), id)
}

// MarkDead parks an entry that exhausted its retry budget.
func (s *Store) MarkDead(ctx context.Context, id int64, lastError string) error {
	return s.updateOutbox(ctx, id, `
UPDATE inventory_outbox
SET status = ?, attempt_count = attempt_count + 1, last_error = ?, lease_expires_at = 0
WHERE id = ?
`, string(storage.OutboxStatusDead), strings.TrimSpace(lastError), id)
}

func (s *Store) updateOutbox(ctx context.Context, id int64, query string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update outbox entry %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update outbox entry %d: %w", id, err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RecordAttempt persists one dispatch attempt outcome.
func (s *Store) RecordAttempt(ctx context.Context, attempt storage.AttemptRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	attempt.EventType = strings.TrimSpace(attempt.EventType)
	attempt.Outcome = strings.TrimSpace(attempt.Outcome)
	attempt.LastError = strings.TrimSpace(attempt.LastError)
	if attempt.EventType == "" {
		return fmt.Errorf("event type is required")
	}
	if attempt.Outcome == "" {
		return fmt.Errorf("outcome is required")
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO inventory_attempts (
	entity_type,
	entity_id,
	seq,
	event_type,
	outcome,
	attempt_count,
	last_error,
	created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		attempt.EntityType,
		attempt.EntityID,
		int64(attempt.Seq),
		attempt.EventType,
		attempt.Outcome,
		attempt.AttemptCount,
		attempt.LastError,
		toMillis(attempt.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// ListAttempts lists newest-first attempt records.
func (s *Store) ListAttempts(ctx context.Context, limit int) ([]storage.AttemptRecord, error) {
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
SELECT id, entity_type, entity_id, seq, event_type, outcome, attempt_count, last_error, created_at
FROM inventory_attempts
ORDER BY created_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	records := make([]storage.AttemptRecord, 0, limit)
	for rows.Next() {
		var record storage.AttemptRecord
		var seq, createdAt int64
		if err := rows.Scan(
			&record.ID,
			&record.EntityType,
			&record.EntityID,
			&seq,
			&record.EventType,
			&record.Outcome,
			&record.AttemptCount,
			&record.LastError,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		record.Seq = uint64(seq)
		record.CreatedAt = fromMillis(createdAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return records, nil
}
