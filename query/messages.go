package query

import (
	"strings"

	"github.com/goliatone/go-checkout/core"
)

const (
	TypeLoadStateData     = "checkout.query.load_state_data"
	TypeGetNotification   = "checkout.query.get_notification"
	TypeListPaymentEvents = "checkout.query.list_payment_events"
)

type LoadStateDataMessage struct {
	QuoteID string
}

func (LoadStateDataMessage) Type() string { return TypeLoadStateData }

func (m LoadStateDataMessage) Validate() error {
	if strings.TrimSpace(m.QuoteID) == "" {
		return queryValidationError("quote_id", "quote id is required")
	}
	return nil
}

type GetNotificationMessage struct {
	Source     string
	DeliveryID string
}

func (GetNotificationMessage) Type() string { return TypeGetNotification }

func (m GetNotificationMessage) Validate() error {
	if strings.TrimSpace(m.Source) == "" {
		return queryValidationError("source", "notification source is required")
	}
	if strings.TrimSpace(m.DeliveryID) == "" {
		return queryValidationError("delivery_id", "delivery id is required")
	}
	return nil
}

type ListPaymentEventsMessage struct {
	Filter core.PaymentEventFilter
}

func (ListPaymentEventsMessage) Type() string { return TypeListPaymentEvents }

func (m ListPaymentEventsMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryValidationError("page", "page must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryValidationError("per_page", "per_page must be >= 0")
	}
	return nil
}
