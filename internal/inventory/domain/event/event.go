package event

import (
	"strings"
	"time"
)

// Type identifies the type of an inventory event.
type Type string

// Stock events.
const (
	// TypeStockReceived records stock arriving for a product.
	TypeStockReceived Type = "stock.received"
	// TypeReservePrepared records a reservation attempt guarded by a revision fence.
	TypeReservePrepared Type = "stock.reserve_prepared"
	// TypeReserveCommitted finalizes an admitted reservation.
	TypeReserveCommitted Type = "stock.reserve_committed"
	// TypeReserveRejected finalizes a declined reservation.
	TypeReserveRejected Type = "stock.reserve_rejected"
	// TypeReserveCarrier records a reservation intent decided at reduce time.
	TypeReserveCarrier Type = "stock.reserve_carrier"
	// TypeStockReserved announces an accepted carrier reservation.
	TypeStockReserved Type = "stock.reserved"
	// TypeReservationRejected announces a declined carrier reservation.
	TypeReservationRejected Type = "stock.reservation_rejected"
)

// Command tracking events.
const (
	// TypeCommandStarted records a reservation command entering processing.
	TypeCommandStarted Type = "command.started"
	// TypeCommandAccepted records a reservation command reaching the accepted terminal state.
	TypeCommandAccepted Type = "command.accepted"
	// TypeCommandRejected records a reservation command reaching the rejected terminal state.
	TypeCommandRejected Type = "command.rejected"
)

// Entity types addressed by events.
const (
	// EntityTypeStock targets a product's stock entity.
	EntityTypeStock = "stock"
	// EntityTypeCommand targets an async command tracker entity.
	EntityTypeCommand = "command"
)

// Event represents an immutable entry in the inventory event journal.
// Events are append-only: once stored they are never edited or deleted.
type Event struct {
	// EntityType is the type of entity this event targets.
	EntityType string
	// EntityID addresses exactly one entity of EntityType.
	EntityID string
	// Seq is the event sequence number within the entity's stream (starts at 1).
	// Assigned by storage on append.
	Seq uint64
	// Hash is the content-addressed identity (SHA-256 truncated to 128-bit).
	// Assigned by storage on append and used for idempotent redelivery checks.
	Hash string
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Type identifies the kind of event.
	Type Type
	// CorrelationID carries the reservation command id the event belongs to,
	// when one applies.
	CorrelationID string
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON []byte
}

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Domain returns the domain prefix of the event type (e.g., "stock", "command").
func (t Type) Domain() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}
