package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTypeRequired indicates a missing event type.
	ErrTypeRequired = errors.New("event type is required")
	// ErrTypeUnknown indicates an unregistered event type.
	ErrTypeUnknown = errors.New("event type is not registered")
	// ErrEntityIDRequired indicates a missing entity id.
	ErrEntityIDRequired = errors.New("entity id is required")
	// ErrEntityTypeMismatch indicates the event addresses the wrong entity type.
	ErrEntityTypeMismatch = errors.New("entity type does not match event type registration")
	// ErrPayloadInvalid indicates malformed payload JSON.
	ErrPayloadInvalid = errors.New("payload json must be valid")
)

// PayloadValidator validates a payload JSON document.
type PayloadValidator func(json.RawMessage) error

// Definition registers metadata for an event type.
type Definition struct {
	Type            Type
	EntityType      string
	ValidatePayload PayloadValidator
}

// Registry stores event definitions and validates events before append.
// It replaces annotation-driven event binding with an explicit mapping
// from event type to target entity and payload schema.
type Registry struct {
	definitions map[Type]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[Type]Definition)}
}

// Register adds a new event type definition to the registry.
func (r *Registry) Register(def Definition) error {
	if r == nil {
		return errors.New("registry is required")
	}
	def.Type = Type(strings.TrimSpace(string(def.Type)))
	if def.Type == "" {
		return ErrTypeRequired
	}
	def.EntityType = strings.TrimSpace(def.EntityType)
	if def.EntityType == "" {
		return errors.New("entity type is required")
	}
	if r.definitions == nil {
		r.definitions = make(map[Type]Definition)
	}
	if _, exists := r.definitions[def.Type]; exists {
		return fmt.Errorf("event type already registered: %s", def.Type)
	}
	r.definitions[def.Type] = def
	return nil
}

// EntityType returns the registered target entity type for an event type.
func (r *Registry) EntityType(t Type) (string, bool) {
	if r == nil {
		return "", false
	}
	def, ok := r.definitions[t]
	if !ok {
		return "", false
	}
	return def.EntityType, true
}

// ValidateForAppend validates and normalizes an event before it enters the journal.
func (r *Registry) ValidateForAppend(evt Event) (Event, error) {
	evt.Type = Type(strings.TrimSpace(string(evt.Type)))
	if evt.Type == "" {
		return Event{}, ErrTypeRequired
	}
	def, ok := r.definitions[evt.Type]
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrTypeUnknown, evt.Type)
	}

	evt.EntityType = strings.TrimSpace(evt.EntityType)
	if evt.EntityType == "" {
		evt.EntityType = def.EntityType
	}
	if evt.EntityType != def.EntityType {
		return Event{}, fmt.Errorf("%w: %s targets %s", ErrEntityTypeMismatch, evt.Type, def.EntityType)
	}
	evt.EntityID = strings.TrimSpace(evt.EntityID)
	if evt.EntityID == "" {
		return Event{}, ErrEntityIDRequired
	}

	if len(evt.PayloadJSON) == 0 {
		evt.PayloadJSON = []byte("{}")
	}
	if !json.Valid(evt.PayloadJSON) {
		return Event{}, ErrPayloadInvalid
	}
	if def.ValidatePayload != nil {
		if err := def.ValidatePayload(json.RawMessage(evt.PayloadJSON)); err != nil {
			return Event{}, fmt.Errorf("payload invalid for %s: %w", evt.Type, err)
		}
	}

	return evt, nil
}

// DefaultRegistry returns a registry with every inventory event type registered.
func DefaultRegistry() *Registry {
	registry := NewRegistry()
	definitions := []Definition{
		{Type: TypeStockReceived, EntityType: EntityTypeStock, ValidatePayload: validateStockReceived},
		{Type: TypeReservePrepared, EntityType: EntityTypeStock, ValidatePayload: validateReservePrepared},
		{Type: TypeReserveCommitted, EntityType: EntityTypeStock, ValidatePayload: validateReserveResolved},
		{Type: TypeReserveRejected, EntityType: EntityTypeStock, ValidatePayload: validateReserveResolved},
		{Type: TypeReserveCarrier, EntityType: EntityTypeStock, ValidatePayload: validateReserveCarrier},
		{Type: TypeStockReserved, EntityType: EntityTypeStock, ValidatePayload: validateReservationOutcome},
		{Type: TypeReservationRejected, EntityType: EntityTypeStock, ValidatePayload: validateReservationOutcome},
		{Type: TypeCommandStarted, EntityType: EntityTypeCommand},
		{Type: TypeCommandAccepted, EntityType: EntityTypeCommand},
		{Type: TypeCommandRejected, EntityType: EntityTypeCommand},
	}
	for _, def := range definitions {
		// Registration of the static table cannot collide.
		_ = registry.Register(def)
	}
	return registry
}

func validateStockReceived(raw json.RawMessage) error {
	var payload StockReceivedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if payload.Amount <= 0 {
		return errors.New("amount must be positive")
	}
	return nil
}

func validateReservePrepared(raw json.RawMessage) error {
	var payload ReservePreparedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if payload.Amount <= 0 {
		return errors.New("amount must be positive")
	}
	if strings.TrimSpace(payload.CommandID) == "" {
		return errors.New("command id is required")
	}
	return nil
}

func validateReserveResolved(raw json.RawMessage) error {
	var payload ReserveResolvedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if strings.TrimSpace(payload.CommandID) == "" {
		return errors.New("command id is required")
	}
	return nil
}

func validateReserveCarrier(raw json.RawMessage) error {
	var payload ReserveCarrierPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if strings.TrimSpace(payload.CommandID) == "" {
		return errors.New("command id is required")
	}
	if strings.TrimSpace(payload.Data.ProductID) == "" {
		return errors.New("product id is required")
	}
	if payload.Data.Amount <= 0 {
		return errors.New("amount must be positive")
	}
	return nil
}

func validateReservationOutcome(raw json.RawMessage) error {
	var payload ReservationOutcomePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if strings.TrimSpace(payload.CommandID) == "" {
		return errors.New("command id is required")
	}
	return nil
}
