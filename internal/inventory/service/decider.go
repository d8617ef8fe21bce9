package service

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/louisbranch/stockroom/internal/inventory/domain/command"
	"github.com/louisbranch/stockroom/internal/inventory/domain/event"
	"github.com/louisbranch/stockroom/internal/inventory/domain/stock"
)

const (
	rejectionCodeProductIDRequired = "STOCK_PRODUCT_ID_REQUIRED"
	rejectionCodeCommandIDRequired = "STOCK_COMMAND_ID_REQUIRED"
	rejectionCodeAmountInvalid     = "STOCK_AMOUNT_INVALID"
)

// DecideReceive returns the decision for a restock command. The event carries
// the command correlation id so a redelivered command appends nothing new.
func DecideReceive(cmd command.Command, now func() time.Time) command.Decision {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return command.Reject(command.Rejection{
			Code:    rejectionCodeProductIDRequired,
			Message: "product id is required",
		})
	}
	var payload command.ReceivePayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	if payload.Amount <= 0 {
		return command.Reject(command.Rejection{
			Code:    rejectionCodeAmountInvalid,
			Message: "amount must be positive",
		})
	}
	if now == nil {
		now = time.Now
	}

	payloadJSON, _ := json.Marshal(event.StockReceivedPayload{Amount: payload.Amount})
	return command.Accept(command.NewEvent(cmd, event.TypeStockReceived, event.EntityTypeStock, productID, payloadJSON, now().UTC()))
}

// DecideReserve returns the decision for a prepared reservation command. It
// emits the reservation attempt fenced on the state's current revision plus
// the command tracker's started event.
func DecideReserve(state stock.State, cmd command.Command, now func() time.Time) command.Decision {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return command.Reject(command.Rejection{
			Code:    rejectionCodeProductIDRequired,
			Message: "product id is required",
		})
	}
	commandID := strings.TrimSpace(cmd.CommandID)
	if commandID == "" {
		return command.Reject(command.Rejection{
			Code:    rejectionCodeCommandIDRequired,
			Message: "command id is required",
		})
	}
	var payload command.ReservePayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	if payload.Amount <= 0 {
		return command.Reject(command.Rejection{
			Code:    rejectionCodeAmountInvalid,
			Message: "amount must be positive",
		})
	}
	if now == nil {
		now = time.Now
	}
	at := now().UTC()

	preparedJSON, _ := json.Marshal(event.ReservePreparedPayload{
		Amount:           payload.Amount,
		CommandID:        commandID,
		ExpectedRevision: state.Revision,
	})
	startedJSON, _ := json.Marshal(event.CommandLifecyclePayload{CommandID: commandID})
	return command.Accept(
		command.NewEvent(cmd, event.TypeReservePrepared, event.EntityTypeStock, productID, preparedJSON, at),
		command.NewEvent(cmd, event.TypeCommandStarted, event.EntityTypeCommand, commandID, startedJSON, at),
	)
}

// DecideReserveAtomic returns the decision for a carrier reservation command.
// The full reservation request rides the event and is decided at reduce time,
// so no state read happens here.
func DecideReserveAtomic(cmd command.Command, now func() time.Time) command.Decision {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return command.Reject(command.Rejection{
			Code:    rejectionCodeProductIDRequired,
			Message: "product id is required",
		})
	}
	commandID := strings.TrimSpace(cmd.CommandID)
	if commandID == "" {
		return command.Reject(command.Rejection{
			Code:    rejectionCodeCommandIDRequired,
			Message: "command id is required",
		})
	}
	var payload command.ReservePayload
	_ = json.Unmarshal(cmd.PayloadJSON, &payload)
	if payload.Amount <= 0 {
		return command.Reject(command.Rejection{
			Code:    rejectionCodeAmountInvalid,
			Message: "amount must be positive",
		})
	}
	if now == nil {
		now = time.Now
	}
	at := now().UTC()

	carrierJSON, _ := json.Marshal(event.ReserveCarrierPayload{
		CommandID: commandID,
		Data: event.ReservationData{
			ProductID: productID,
			Amount:    payload.Amount,
			CommandID: commandID,
		},
	})
	startedJSON, _ := json.Marshal(event.CommandLifecyclePayload{CommandID: commandID})
	return command.Accept(
		command.NewEvent(cmd, event.TypeReserveCarrier, event.EntityTypeStock, productID, carrierJSON, at),
		command.NewEvent(cmd, event.TypeCommandStarted, event.EntityTypeCommand, commandID, startedJSON, at),
	)
}
