package stock

import "github.com/louisbranch/stockroom/internal/inventory/domain/event"

// DecisionKind tags a reservation decision outcome.
type DecisionKind string

const (
	// DecisionAccepted admits the reservation and debits stock.
	DecisionAccepted DecisionKind = "accepted"
	// DecisionRejected declines the reservation and leaves stock unchanged.
	DecisionRejected DecisionKind = "rejected"
)

// Decision is the resolved outcome of one reservation request. Exactly one
// kind applies; callers match on Kind and must handle both.
type Decision struct {
	Kind       DecisionKind
	Resolution Resolution
}

// Decide resolves a reservation request against current stock. It is shared
// by the carrier fold and the command layer so both apply a single rule:
// a request is accepted iff its amount fits the available amount (equality
// accepted), and rejected otherwise.
func Decide(state State, data event.ReservationData) Decision {
	resolution := Resolution{CommandID: data.CommandID, Amount: data.Amount}
	if data.Amount > 0 && data.Amount <= state.Amount {
		return Decision{Kind: DecisionAccepted, Resolution: resolution}
	}
	return Decision{Kind: DecisionRejected, Resolution: resolution}
}
