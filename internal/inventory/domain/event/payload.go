package event

// StockReceivedPayload carries the quantity added by a stock delivery.
type StockReceivedPayload struct {
	Amount int64 `json:"amount"`
}

// ReservePreparedPayload carries a reservation attempt and its revision fence.
type ReservePreparedPayload struct {
	Amount           int64  `json:"amount"`
	CommandID        string `json:"command_id"`
	ExpectedRevision uint64 `json:"expected_revision"`
}

// ReserveResolvedPayload finalizes a prepared reservation (commit or reject).
type ReserveResolvedPayload struct {
	CommandID string `json:"command_id"`
}

// ReservationData is the immutable record of one reservation request.
// CommandID is the idempotency key across retries and redeliveries.
type ReservationData struct {
	ProductID string `json:"product_id"`
	Amount    int64  `json:"amount"`
	CommandID string `json:"command_id"`
}

// ReserveCarrierPayload embeds a full reservation request, deferring the
// accept/reject decision to reduce time.
type ReserveCarrierPayload struct {
	CommandID string          `json:"command_id"`
	Data      ReservationData `json:"data"`
}

// ReservationOutcomePayload announces a carrier reservation outcome.
type ReservationOutcomePayload struct {
	Amount    int64  `json:"amount"`
	CommandID string `json:"command_id"`
}

// CommandLifecyclePayload marks async command tracker transitions.
type CommandLifecyclePayload struct {
	CommandID string `json:"command_id"`
}
