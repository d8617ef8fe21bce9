package stock

import (
	"encoding/json"

	"github.com/louisbranch/stockroom/internal/inventory/domain/event"
)

// FoldHandledTypes returns the event types the stock fold handles.
func FoldHandledTypes() []event.Type {
	return []event.Type{
		event.TypeStockReceived,
		event.TypeReservePrepared,
		event.TypeReserveCommitted,
		event.TypeReserveRejected,
		event.TypeReserveCarrier,
	}
}

// Fold applies an event to stock state.
func Fold(state State, evt event.Event) State {
	if state.ID == "" {
		state.ID = evt.EntityID
	}
	switch evt.Type {
	case event.TypeStockReceived:
		var payload event.StockReceivedPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state.Amount += payload.Amount
	case event.TypeReservePrepared:
		state = foldReservePrepared(state, evt)
	case event.TypeReserveCommitted:
		var payload event.ReserveResolvedPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state.ToCommit = removeID(state.ToCommit, payload.CommandID)
	case event.TypeReserveRejected:
		var payload event.ReserveResolvedPayload
		_ = json.Unmarshal(evt.PayloadJSON, &payload)
		state.ToReject = removeID(state.ToReject, payload.CommandID)
	case event.TypeReserveCarrier:
		state = foldReserveCarrier(state, evt)
	}
	return state
}

// foldReservePrepared resolves one reservation attempt against the revision
// fence. After the fold the command id sits in exactly one of ToCommit,
// ToReject, or ToRetry; a redelivered attempt leaves state unchanged.
func foldReservePrepared(state State, evt event.Event) State {
	var payload event.ReservePreparedPayload
	_ = json.Unmarshal(evt.PayloadJSON, &payload)
	if payload.CommandID == "" {
		return state
	}
	if state.InToCommit(payload.CommandID) || state.InToReject(payload.CommandID) {
		// Already decided: duplicate delivery.
		return state
	}

	if payload.ExpectedRevision != state.Revision {
		if state.InToRetry(payload.CommandID) {
			// Duplicate delivery of an attempt that already conflicted.
			return state
		}
		state.Revision++
		state.ToRetry = appendID(state.ToRetry, payload.CommandID)
		return state
	}

	state.ToRetry = removeID(state.ToRetry, payload.CommandID)
	state.Revision++
	if payload.Amount <= state.Amount {
		state.Amount -= payload.Amount
		state.ToCommit = appendID(state.ToCommit, payload.CommandID)
	} else {
		state.ToReject = appendID(state.ToReject, payload.CommandID)
	}
	return state
}

// foldReserveCarrier decides a carrier reservation at reduce time using the
// same pure decision the command layer shares.
func foldReserveCarrier(state State, evt event.Event) State {
	var payload event.ReserveCarrierPayload
	_ = json.Unmarshal(evt.PayloadJSON, &payload)
	if payload.CommandID == "" {
		return state
	}
	if _, ok := state.AcceptedFor(payload.CommandID); ok {
		return state
	}
	if _, ok := state.RejectedFor(payload.CommandID); ok {
		return state
	}

	data := payload.Data
	// The envelope command id is the idempotency key; the embedded copy
	// must agree with it.
	data.CommandID = payload.CommandID
	decision := Decide(state, data)
	switch decision.Kind {
	case DecisionAccepted:
		state.Amount -= decision.Resolution.Amount
		state.Accepted = appendResolution(state.Accepted, decision.Resolution)
	case DecisionRejected:
		state.Rejected = appendResolution(state.Rejected, decision.Resolution)
	}
	return state
}
