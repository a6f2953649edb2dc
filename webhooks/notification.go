package webhooks

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-checkout/core"
)

// Event codes carried by gateway notifications. Only a subset drives the
// order lifecycle; the rest is recorded and acknowledged.
const (
	EventCodeAuthorisation   = "AUTHORISATION"
	EventCodeCancellation    = "CANCELLATION"
	EventCodeOfferClosed     = "OFFER_CLOSED"
	EventCodeCapture         = "CAPTURE"
	EventCodeRefund          = "REFUND"
	EventCodeChargeback      = "CHARGEBACK"
	EventCodeReportAvailable = "REPORT_AVAILABLE"
)

// Amount is a monetary value in minor units.
type Amount struct {
	Value    int64  `json:"value"`
	Currency string `json:"currency"`
}

// NotificationItem is a single event inside a gateway notification envelope.
type NotificationItem struct {
	EventCode           string         `json:"eventCode"`
	Success             string         `json:"success"`
	PSPReference        string         `json:"pspReference"`
	OriginalReference   string         `json:"originalReference,omitempty"`
	MerchantReference   string         `json:"merchantReference"`
	MerchantAccountCode string         `json:"merchantAccountCode"`
	PaymentMethod       string         `json:"paymentMethod,omitempty"`
	Reason              string         `json:"reason,omitempty"`
	EventDate           time.Time      `json:"eventDate,omitempty"`
	Amount              Amount         `json:"amount"`
	AdditionalData      map[string]any `json:"additionalData,omitempty"`
}

// IsSuccess reports whether the gateway flagged the event as successful. The
// wire format carries the flag as the string "true" or "false".
func (i NotificationItem) IsSuccess() bool {
	return strings.EqualFold(strings.TrimSpace(i.Success), "true")
}

// DeliveryID derives the stable dedupe key for the item.
func (i NotificationItem) DeliveryID() string {
	return core.ReplayClaimKey(i.PSPReference, i.EventCode, i.IsSuccess())
}

// Validate checks the fields every lifecycle decision depends on.
func (i NotificationItem) Validate() error {
	if strings.TrimSpace(i.EventCode) == "" {
		return fmt.Errorf("webhooks: notification item has no event code")
	}
	if strings.TrimSpace(i.PSPReference) == "" {
		return fmt.Errorf("webhooks: notification item %q has no psp reference", i.EventCode)
	}
	return nil
}

// NotificationEnvelope is the decoded body of a gateway notification webhook.
type NotificationEnvelope struct {
	Live  bool
	Items []NotificationItem
}

// DecodeEnvelope parses the gateway notification JSON. Each entry of
// notificationItems wraps the actual item under a NotificationRequestItem key.
func DecodeEnvelope(body []byte) (NotificationEnvelope, error) {
	var raw struct {
		Live              string `json:"live"`
		NotificationItems []struct {
			Item NotificationItem `json:"NotificationRequestItem"`
		} `json:"notificationItems"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return NotificationEnvelope{}, fmt.Errorf("webhooks: decode notification envelope: %w", err)
	}

	envelope := NotificationEnvelope{
		Live:  strings.EqualFold(strings.TrimSpace(raw.Live), "true"),
		Items: make([]NotificationItem, 0, len(raw.NotificationItems)),
	}
	for _, wrapped := range raw.NotificationItems {
		envelope.Items = append(envelope.Items, wrapped.Item)
	}
	return envelope, nil
}
