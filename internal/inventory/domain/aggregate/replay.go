package aggregate

import (
	"context"

	"github.com/louisbranch/stockroom/internal/inventory/domain/asynccommand"
	"github.com/louisbranch/stockroom/internal/inventory/domain/event"
	"github.com/louisbranch/stockroom/internal/inventory/domain/stock"
)

// EventLister provides ordered per-entity event streams.
type EventLister interface {
	ListEvents(ctx context.Context, entityType, entityID string, afterSeq uint64, limit int) ([]event.Event, error)
}

const replayPageSize = 200

// ReplayStock folds a product's full event stream into current stock state.
// A product with no events replays to the zero value with the id set.
func ReplayStock(ctx context.Context, lister EventLister, productID string) (stock.State, error) {
	state := stock.State{ID: productID}
	err := replayEntity(ctx, lister, event.EntityTypeStock, productID, func(evt event.Event) {
		state = stock.Fold(state, evt)
	})
	if err != nil {
		return stock.State{}, err
	}
	return state, nil
}

// ReplayCommand folds a command tracker's event stream into current state.
func ReplayCommand(ctx context.Context, lister EventLister, commandID string) (asynccommand.State, error) {
	state := asynccommand.State{ID: commandID}
	err := replayEntity(ctx, lister, event.EntityTypeCommand, commandID, func(evt event.Event) {
		state = asynccommand.Fold(state, evt)
	})
	if err != nil {
		return asynccommand.State{}, err
	}
	return state, nil
}

func replayEntity(ctx context.Context, lister EventLister, entityType, entityID string, apply func(event.Event)) error {
	var afterSeq uint64
	for {
		events, err := lister.ListEvents(ctx, entityType, entityID, afterSeq, replayPageSize)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		for _, evt := range events {
			apply(evt)
			afterSeq = evt.Seq
		}
	}
}
