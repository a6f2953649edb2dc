package command

import (
	"strings"

	"github.com/goliatone/go-checkout/core"
	"github.com/goliatone/go-checkout/webhooks"
)

const (
	TypeProcessPaymentResponse = "checkout.command.process_payment_response"
	TypeProcessNotification    = "checkout.command.process_notification"
	TypeSaveStateData          = "checkout.command.save_state_data"
	TypeRemoveStateData        = "checkout.command.remove_state_data"
	TypeRecordVaultDetails     = "checkout.command.record_vault_details"
)

type ProcessPaymentResponseMessage struct {
	Request core.ProcessResponseRequest
}

func (ProcessPaymentResponseMessage) Type() string { return TypeProcessPaymentResponse }

func (m ProcessPaymentResponseMessage) Validate() error {
	if strings.TrimSpace(m.Request.Order.IncrementID) == "" {
		return commandValidationError("order.increment_id", "order increment id is required")
	}
	return nil
}

type ProcessNotificationMessage struct {
	Request webhooks.Request
}

func (ProcessNotificationMessage) Type() string { return TypeProcessNotification }

func (m ProcessNotificationMessage) Validate() error {
	if len(m.Request.Body) == 0 {
		return commandValidationError("body", "notification body is required")
	}
	return nil
}

type SaveStateDataMessage struct {
	Request core.SaveStateDataRequest
}

func (SaveStateDataMessage) Type() string { return TypeSaveStateData }

func (m SaveStateDataMessage) Validate() error {
	if strings.TrimSpace(m.Request.QuoteID) == "" {
		return commandValidationError("quote_id", "quote id is required")
	}
	if strings.TrimSpace(m.Request.Payload) == "" {
		return commandValidationError("payload", "state data payload is required")
	}
	return nil
}

type RemoveStateDataMessage struct {
	Request core.RemoveStateDataRequest
}

func (RemoveStateDataMessage) Type() string { return TypeRemoveStateData }

func (m RemoveStateDataMessage) Validate() error {
	if strings.TrimSpace(m.Request.QuoteID) == "" {
		return commandValidationError("quote_id", "quote id is required")
	}
	return nil
}

type RecordVaultDetailsMessage struct {
	Order    core.Order
	Response core.GatewayResponse
}

func (RecordVaultDetailsMessage) Type() string { return TypeRecordVaultDetails }

func (m RecordVaultDetailsMessage) Validate() error {
	if strings.TrimSpace(m.Order.IncrementID) == "" {
		return commandValidationError("order.increment_id", "order increment id is required")
	}
	return nil
}
