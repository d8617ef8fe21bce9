package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/louisbranch/stockroom/internal/inventory/domain/event"
	"github.com/louisbranch/stockroom/internal/inventory/projection"
	"github.com/louisbranch/stockroom/internal/inventory/saga"
	"github.com/louisbranch/stockroom/internal/storage"
)

// Config controls dispatcher loop behavior.
type Config struct {
	PollInterval  time.Duration
	LeaseTTL      time.Duration
	ClaimBatch    int
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
}

const (
	defaultPollInterval  = 2 * time.Second
	defaultLeaseTTL      = 30 * time.Second
	defaultClaimBatch    = 16
	defaultMaxAttempts   = 8
	defaultRetryBackoff  = 5 * time.Second
	defaultRetryMaxDelay = 5 * time.Minute
)

func (c Config) normalized() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaultLeaseTTL
	}
	if c.ClaimBatch <= 0 {
		c.ClaimBatch = defaultClaimBatch
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	return c
}

// Dispatcher drains the outbox: for every appended event it runs the saga
// handlers registered for the event type, appends their follow-up events,
// and refreshes the projections. Failed entries retry with exponential
// backoff until the attempt budget is spent, then park as dead letters.
type Dispatcher struct {
	events      storage.EventStore
	outbox      storage.OutboxStore
	attempts    storage.AttemptStore
	handlers    map[event.Type][]saga.Handler
	projections *projection.Applier
	cfg         Config
	clock       func() time.Time
	logf        func(format string, args ...any)
}

// NewDispatcher creates a dispatcher over the given stores and handlers.
func NewDispatcher(
	events storage.EventStore,
	outbox storage.OutboxStore,
	attempts storage.AttemptStore,
	handlers []saga.Handler,
	projections *projection.Applier,
	cfg Config,
) (*Dispatcher, error) {
	if events == nil {
		return nil, errors.New("event store is required")
	}
	if outbox == nil {
		return nil, errors.New("outbox store is required")
	}
	if projections == nil {
		return nil, errors.New("projection applier is required")
	}

	byType := make(map[event.Type][]saga.Handler)
	for _, handler := range handlers {
		if handler == nil {
			return nil, errors.New("handler must not be nil")
		}
		for _, t := range handler.HandledTypes() {
			byType[t] = append(byType[t], handler)
		}
	}
	return &Dispatcher{
		events:      events,
		outbox:      outbox,
		attempts:    attempts,
		handlers:    byType,
		projections: projections,
		cfg:         cfg.normalized(),
		clock:       time.Now,
		logf:        log.Printf,
	}, nil
}

// Run polls the outbox until the context is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := d.ProcessPending(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			d.logf("process pending: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessPending claims and processes one batch of due outbox entries. It
// keeps claiming until the outbox has no due work left and reports how many
// entries completed. Handlers can enqueue new entries while a batch runs, so
// a single call drains cascading follow-ups too.
func (d *Dispatcher) ProcessPending(ctx context.Context) (int, error) {
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		entries, err := d.outbox.ClaimPending(ctx, d.clock().UTC(), d.cfg.LeaseTTL, d.cfg.ClaimBatch)
		if err != nil {
			return processed, fmt.Errorf("claim pending: %w", err)
		}
		if len(entries) == 0 {
			return processed, nil
		}
		for _, entry := range entries {
			if err := d.processEntry(ctx, entry); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return processed, err
				}
				d.logf("outbox entry %d (%s/%s seq %d): %v", entry.ID, entry.EntityType, entry.EntityID, entry.Seq, err)
				continue
			}
			processed++
		}
	}
}

func (d *Dispatcher) processEntry(ctx context.Context, entry storage.OutboxEntry) error {
	evt, err := d.events.GetEventBySeq(ctx, entry.EntityType, entry.EntityID, entry.Seq)
	if err != nil {
		// A missing event cannot succeed on retry.
		if errors.Is(err, storage.ErrNotFound) {
			d.recordAttempt(ctx, entry, string(evt.Type), "dead", err)
			return d.outbox.MarkDead(ctx, entry.ID, err.Error())
		}
		return d.failEntry(ctx, entry, string(evt.Type), err)
	}

	if handleErr := d.handleEvent(ctx, evt); handleErr != nil {
		return d.failEntry(ctx, entry, string(evt.Type), handleErr)
	}
	if projErr := d.projections.Apply(ctx, evt); projErr != nil {
		return d.failEntry(ctx, entry, string(evt.Type), projErr)
	}

	d.recordAttempt(ctx, entry, string(evt.Type), "succeeded", nil)
	if err := d.outbox.MarkDone(ctx, entry.ID); err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	return nil
}

func (d *Dispatcher) handleEvent(ctx context.Context, evt event.Event) error {
	for _, handler := range d.handlers[evt.Type] {
		followups, err := handler.Handle(ctx, evt)
		if err != nil {
			return fmt.Errorf("handle %s: %w", evt.Type, err)
		}
		for _, followup := range followups {
			if _, err := d.events.AppendEvent(ctx, followup); err != nil {
				return fmt.Errorf("append followup %s: %w", followup.Type, err)
			}
		}
	}
	return nil
}

func (d *Dispatcher) failEntry(ctx context.Context, entry storage.OutboxEntry, eventType string, cause error) error {
	attempts := int(entry.AttemptCount) + 1
	if attempts >= d.cfg.MaxAttempts {
		d.recordAttempt(ctx, entry, eventType, "dead", cause)
		if err := d.outbox.MarkDead(ctx, entry.ID, cause.Error()); err != nil {
			return fmt.Errorf("mark dead: %w", err)
		}
		return fmt.Errorf("dead-lettered after %d attempts: %w", attempts, cause)
	}

	d.recordAttempt(ctx, entry, eventType, "retry", cause)
	delay := d.retryDelay(attempts)
	if err := d.outbox.MarkFailed(ctx, entry.ID, cause.Error(), d.clock().UTC().Add(delay)); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return cause
}

// retryDelay doubles the base backoff per attempt, capped at the max delay.
func (d *Dispatcher) retryDelay(attempts int) time.Duration {
	delay := d.cfg.RetryBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= d.cfg.RetryMaxDelay {
			return d.cfg.RetryMaxDelay
		}
	}
	if delay > d.cfg.RetryMaxDelay {
		return d.cfg.RetryMaxDelay
	}
	return delay
}

func (d *Dispatcher) recordAttempt(ctx context.Context, entry storage.OutboxEntry, eventType, outcome string, cause error) {
	if d.attempts == nil {
		return
	}
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	if eventType == "" {
		eventType = "unknown"
	}
	record := storage.AttemptRecord{
		EntityType:   entry.EntityType,
		EntityID:     entry.EntityID,
		Seq:          entry.Seq,
		EventType:    eventType,
		Outcome:      outcome,
		AttemptCount: entry.AttemptCount + 1,
		LastError:    lastError,
		CreatedAt:    d.clock().UTC(),
	}
	if err := d.attempts.RecordAttempt(ctx, record); err != nil {
		d.logf("record attempt for outbox entry %d: %v", entry.ID, err)
	}
}
