// Package service orchestrates the inventory write path: it validates
// commands, replays entity state, runs the pure deciders, and appends the
// resulting events to the journal.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/stockroom/internal/inventory/domain/aggregate"
	"github.com/louisbranch/stockroom/internal/inventory/domain/asynccommand"
	"github.com/louisbranch/stockroom/internal/inventory/domain/command"
	"github.com/louisbranch/stockroom/internal/inventory/domain/event"
	"github.com/louisbranch/stockroom/internal/inventory/domain/stock"
	"github.com/louisbranch/stockroom/internal/platform/id"
	"github.com/louisbranch/stockroom/internal/storage"
)

// RejectionError reports that a command was declined by a decider.
type RejectionError struct {
	Rejections []command.Rejection
}

// Error returns the first rejection code and message.
func (e *RejectionError) Error() string {
	if e == nil || len(e.Rejections) == 0 {
		return "command rejected"
	}
	first := e.Rejections[0]
	return fmt.Sprintf("command rejected: %s: %s", first.Code, first.Message)
}

// Service is the inventory application service.
type Service struct {
	registry    *command.Registry
	events      storage.EventStore
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewService creates a Service with default clock and id dependencies.
func NewService(registry *command.Registry, events storage.EventStore) (*Service, error) {
	if registry == nil {
		return nil, errors.New("command registry is required")
	}
	if events == nil {
		return nil, errors.New("event store is required")
	}
	return &Service{
		registry:    registry,
		events:      events,
		clock:       time.Now,
		idGenerator: id.NewID,
	}, nil
}

// ReceiveStock appends a restock event for a product. The delivery id is the
// idempotency key: resubmitting the same delivery appends nothing new, while
// an empty delivery id gets a fresh generated one.
func (s *Service) ReceiveStock(ctx context.Context, productID string, amount int64, deliveryID string) (event.Event, error) {
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		generated, err := s.idGenerator()
		if err != nil {
			return event.Event{}, fmt.Errorf("generate delivery id: %w", err)
		}
		deliveryID = generated
	}

	payloadJSON, _ := json.Marshal(command.ReceivePayload{Amount: amount})
	cmd, err := s.registry.ValidateForDecision(command.Command{
		ProductID:     productID,
		Type:          command.TypeReceiveStock,
		CorrelationID: deliveryID,
		PayloadJSON:   payloadJSON,
	})
	if err != nil {
		return event.Event{}, fmt.Errorf("validate receive command: %w", err)
	}

	decision := DecideReceive(cmd, s.clock)
	if len(decision.Rejections) > 0 {
		return event.Event{}, &RejectionError{Rejections: decision.Rejections}
	}
	stored, err := s.appendAll(ctx, decision.Events)
	if err != nil {
		return event.Event{}, err
	}
	return stored[0], nil
}

// ReserveStock starts a prepared reservation and returns the async command id
// callers poll for the outcome. The reservation attempt is fenced on the
// stock revision observed here; the saga resubmits on a stale fence.
func (s *Service) ReserveStock(ctx context.Context, productID string, amount int64) (string, error) {
	commandID, err := s.idGenerator()
	if err != nil {
		return "", fmt.Errorf("generate command id: %w", err)
	}

	payloadJSON, _ := json.Marshal(command.ReservePayload{Amount: amount})
	cmd, err := s.registry.ValidateForDecision(command.Command{
		ProductID:     productID,
		Type:          command.TypeReserveStock,
		CommandID:     commandID,
		CorrelationID: commandID,
		PayloadJSON:   payloadJSON,
	})
	if err != nil {
		return "", fmt.Errorf("validate reserve command: %w", err)
	}

	state, err := aggregate.ReplayStock(ctx, s.events, cmd.ProductID)
	if err != nil {
		return "", fmt.Errorf("replay stock %s: %w", cmd.ProductID, err)
	}

	decision := DecideReserve(state, cmd, s.clock)
	if len(decision.Rejections) > 0 {
		return "", &RejectionError{Rejections: decision.Rejections}
	}
	if _, err := s.appendAll(ctx, decision.Events); err != nil {
		return "", err
	}
	return commandID, nil
}

// ReserveStockAtomic starts a carrier reservation: the request rides a single
// event and is admitted or declined when the stock stream folds it, so no
// revision fence or retry loop is involved.
func (s *Service) ReserveStockAtomic(ctx context.Context, productID string, amount int64) (string, error) {
	commandID, err := s.idGenerator()
	if err != nil {
		return "", fmt.Errorf("generate command id: %w", err)
	}

	payloadJSON, _ := json.Marshal(command.ReservePayload{Amount: amount})
	cmd, err := s.registry.ValidateForDecision(command.Command{
		ProductID:     productID,
		Type:          command.TypeReserveStockAtomic,
		CommandID:     commandID,
		CorrelationID: commandID,
		PayloadJSON:   payloadJSON,
	})
	if err != nil {
		return "", fmt.Errorf("validate atomic reserve command: %w", err)
	}

	decision := DecideReserveAtomic(cmd, s.clock)
	if len(decision.Rejections) > 0 {
		return "", &RejectionError{Rejections: decision.Rejections}
	}
	if _, err := s.appendAll(ctx, decision.Events); err != nil {
		return "", err
	}
	return commandID, nil
}

// GetStock replays and returns the current stock state for a product.
func (s *Service) GetStock(ctx context.Context, productID string) (stock.State, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return stock.State{}, command.ErrProductIDRequired
	}
	return aggregate.ReplayStock(ctx, s.events, productID)
}

// GetCommand replays and returns the tracker state for an async command.
func (s *Service) GetCommand(ctx context.Context, commandID string) (asynccommand.State, error) {
	commandID = strings.TrimSpace(commandID)
	if commandID == "" {
		return asynccommand.State{}, errors.New("command id is required")
	}
	return aggregate.ReplayCommand(ctx, s.events, commandID)
}

func (s *Service) appendAll(ctx context.Context, events []event.Event) ([]event.Event, error) {
	stored := make([]event.Event, 0, len(events))
	for _, evt := range events {
		appended, err := s.events.AppendEvent(ctx, evt)
		if err != nil {
			return nil, fmt.Errorf("append %s: %w", evt.Type, err)
		}
		stored = append(stored, appended)
	}
	return stored, nil
}
