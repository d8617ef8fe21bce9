// Package asynccommand tracks the asynchronous outcome of a reservation
// command so callers can poll for its terminal state.
package asynccommand

import "github.com/louisbranch/stockroom/internal/inventory/domain/event"

// Status is the lifecycle state of an async command.
type Status string

const (
	// StatusProcessing indicates the command awaits a terminal outcome.
	StatusProcessing Status = "processing"
	// StatusAccepted is the terminal state for an admitted reservation.
	StatusAccepted Status = "accepted"
	// StatusRejected is the terminal state for a declined reservation.
	StatusRejected Status = "rejected"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// State is the async command tracker entity, derived from command.* events.
type State struct {
	ID     string
	Status Status
}

// FoldHandledTypes returns the event types the async command fold handles.
func FoldHandledTypes() []event.Type {
	return []event.Type{
		event.TypeCommandStarted,
		event.TypeCommandAccepted,
		event.TypeCommandRejected,
	}
}

// Fold applies an event to async command state. Terminal states absorb every
// later transition, so duplicate terminal events reduce to the same state.
func Fold(state State, evt event.Event) State {
	if state.ID == "" {
		state.ID = evt.EntityID
	}
	if state.Status.Terminal() {
		return state
	}
	switch evt.Type {
	case event.TypeCommandStarted:
		state.Status = StatusProcessing
	case event.TypeCommandAccepted:
		state.Status = StatusAccepted
	case event.TypeCommandRejected:
		state.Status = StatusRejected
	}
	return state
}
