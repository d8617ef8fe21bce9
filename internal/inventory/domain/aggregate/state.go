// Package aggregate folds the inventory event journal into entity state.
package aggregate

import (
	"github.com/louisbranch/stockroom/internal/inventory/domain/asynccommand"
	"github.com/louisbranch/stockroom/internal/inventory/domain/stock"
)

// State holds every entity derived from the journal, keyed by entity id.
type State struct {
	Stocks   map[string]stock.State
	Commands map[string]asynccommand.State
}

// NewState returns an empty aggregate state.
func NewState() State {
	return State{
		Stocks:   make(map[string]stock.State),
		Commands: make(map[string]asynccommand.State),
	}
}

// Stock returns the stock entity for a product, defaulting to the zero value
// with the id set when the product has no events yet.
func (s State) Stock(productID string) stock.State {
	if state, ok := s.Stocks[productID]; ok {
		return state
	}
	return stock.State{ID: productID}
}

// Command returns the async command tracker for a command id, defaulting to
// the zero value with the id set.
func (s State) Command(commandID string) asynccommand.State {
	if state, ok := s.Commands[commandID]; ok {
		return state
	}
	return asynccommand.State{ID: commandID}
}
