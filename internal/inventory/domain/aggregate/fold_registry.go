package aggregate

import (
	"fmt"

	"github.com/louisbranch/stockroom/internal/inventory/domain/asynccommand"
	"github.com/louisbranch/stockroom/internal/inventory/domain/event"
	"github.com/louisbranch/stockroom/internal/inventory/domain/stock"
)

// foldEntry describes how a set of event types maps to a fold function that
// updates one slice of aggregate state. Entries are entity-keyed: they
// receive the EntityID from the event envelope.
type foldEntry struct {
	// types returns the event types handled by this fold entry.
	types func() []event.Type
	// fold applies a single event to a sub-state and writes the result
	// back into the aggregate state.
	fold func(state *State, evt event.Event) error
}

// foldEntries returns the declarative fold dispatch table for all entities.
// Adding a new entity requires only adding an entry here.
func foldEntries() []foldEntry {
	return []foldEntry{
		{
			types: stock.FoldHandledTypes,
			fold: func(state *State, evt event.Event) error {
				if evt.EntityID == "" {
					return fmt.Errorf("stock fold requires EntityID but got empty for %s", evt.Type)
				}
				if state.Stocks == nil {
					state.Stocks = make(map[string]stock.State)
				}
				state.Stocks[evt.EntityID] = stock.Fold(state.Stocks[evt.EntityID], evt)
				return nil
			},
		},
		{
			types: asynccommand.FoldHandledTypes,
			fold: func(state *State, evt event.Event) error {
				if evt.EntityID == "" {
					return fmt.Errorf("command fold requires EntityID but got empty for %s", evt.Type)
				}
				if state.Commands == nil {
					state.Commands = make(map[string]asynccommand.State)
				}
				state.Commands[evt.EntityID] = asynccommand.Fold(state.Commands[evt.EntityID], evt)
				return nil
			},
		},
	}
}

// Applier dispatches events to entity folds by event type.
type Applier struct {
	byType map[event.Type]func(state *State, evt event.Event) error
}

// NewApplier builds the dispatch table from the fold registry.
func NewApplier() (*Applier, error) {
	byType := make(map[event.Type]func(state *State, evt event.Event) error)
	for _, entry := range foldEntries() {
		fold := entry.fold
		for _, t := range entry.types() {
			if _, exists := byType[t]; exists {
				return nil, fmt.Errorf("event type %s bound to more than one fold", t)
			}
			byType[t] = fold
		}
	}
	return &Applier{byType: byType}, nil
}

// Apply folds one event into aggregate state. Event types with no registered
// fold (announcement events) leave state unchanged.
func (a *Applier) Apply(state *State, evt event.Event) error {
	if a == nil || state == nil {
		return fmt.Errorf("applier and state are required")
	}
	fold, ok := a.byType[evt.Type]
	if !ok {
		return nil
	}
	return fold(state, evt)
}

// Fold applies an ordered batch of events to a copy-free aggregate state.
func (a *Applier) Fold(state State, events ...event.Event) (State, error) {
	for _, evt := range events {
		if err := a.Apply(&state, evt); err != nil {
			return State{}, err
		}
	}
	return state, nil
}
