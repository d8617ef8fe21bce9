// Package projection materializes queryable views from the event journal.
// Views are derived entirely by replaying entity streams, so applying any
// event twice, or out of delivery order, converges on the same rows.
package projection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/stockroom/internal/inventory/domain/aggregate"
	"github.com/louisbranch/stockroom/internal/inventory/domain/event"
	"github.com/louisbranch/stockroom/internal/storage"
)

// Applier refreshes the view rows touched by one journal event.
type Applier struct {
	lister   aggregate.EventLister
	stocks   storage.StockViewStore
	commands storage.CommandViewStore
	clock    func() time.Time
}

// NewApplier creates an Applier reading entity streams from the given lister.
func NewApplier(lister aggregate.EventLister, stocks storage.StockViewStore, commands storage.CommandViewStore) (*Applier, error) {
	if lister == nil {
		return nil, errors.New("event lister is required")
	}
	if stocks == nil {
		return nil, errors.New("stock view store is required")
	}
	if commands == nil {
		return nil, errors.New("command view store is required")
	}
	return &Applier{
		lister:   lister,
		stocks:   stocks,
		commands: commands,
		clock:    time.Now,
	}, nil
}

// Apply refreshes the view row for the entity the event addresses.
func (a *Applier) Apply(ctx context.Context, evt event.Event) error {
	if evt.EntityID == "" {
		return errors.New("entity id is required")
	}
	switch evt.EntityType {
	case event.EntityTypeStock:
		return a.applyStock(ctx, evt.EntityID)
	case event.EntityTypeCommand:
		return a.applyCommand(ctx, evt.EntityID)
	}
	return nil
}

func (a *Applier) applyStock(ctx context.Context, productID string) error {
	state, err := aggregate.ReplayStock(ctx, a.lister, productID)
	if err != nil {
		return fmt.Errorf("replay stock %s: %w", productID, err)
	}
	view := storage.StockView{
		ProductID: productID,
		Amount:    state.Amount,
		Revision:  state.Revision,
		Pending:   len(state.ToCommit) + len(state.ToReject) + len(state.ToRetry),
		UpdatedAt: a.clock().UTC(),
	}
	if err := a.stocks.UpsertStockView(ctx, view); err != nil {
		return fmt.Errorf("upsert stock view %s: %w", productID, err)
	}
	return nil
}

func (a *Applier) applyCommand(ctx context.Context, commandID string) error {
	state, err := aggregate.ReplayCommand(ctx, a.lister, commandID)
	if err != nil {
		return fmt.Errorf("replay command %s: %w", commandID, err)
	}
	view := storage.CommandView{
		CommandID: commandID,
		Status:    string(state.Status),
		UpdatedAt: a.clock().UTC(),
	}
	if err := a.commands.UpsertCommandView(ctx, view); err != nil {
		return fmt.Errorf("upsert command view %s: %w", commandID, err)
	}
	return nil
}
