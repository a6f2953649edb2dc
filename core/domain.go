package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidResponse             = errors.New("core: gateway response has no result indicator")
	ErrUnknownResultCode           = errors.New("core: unknown gateway result code")
	ErrInvalidOrderStateTransition = errors.New("core: invalid order state transition")
	ErrStateDataNotFound           = errors.New("core: state data not found")
	ErrPaymentEventNotFound        = errors.New("core: payment event not found")
)

// ResultCode is the closed set of gateway result codes this module reasons
// about. Unrecognized strings never become ResultCode values; they are
// rejected by ParseResultCode and surface to callers as ResultCodeError.
type ResultCode string

const (
	ResultCodeAuthorised       ResultCode = "Authorised"
	ResultCodeRefused          ResultCode = "Refused"
	ResultCodeRedirectShopper  ResultCode = "RedirectShopper"
	ResultCodeIdentifyShopper  ResultCode = "IdentifyShopper"
	ResultCodeChallengeShopper ResultCode = "ChallengeShopper"
	ResultCodeReceived         ResultCode = "Received"
	ResultCodePending          ResultCode = "Pending"
	ResultCodePresentToShopper ResultCode = "PresentToShopper"
	ResultCodeError            ResultCode = "Error"
	ResultCodeCancelled        ResultCode = "Cancelled"
	// ResultCodePOSSuccess is the terminal-API spelling of an approved
	// payment; it behaves like Authorised for finality purposes.
	ResultCodePOSSuccess ResultCode = "Success"
)

func KnownResultCodes() []ResultCode {
	return []ResultCode{
		ResultCodeAuthorised,
		ResultCodeRefused,
		ResultCodeRedirectShopper,
		ResultCodeIdentifyShopper,
		ResultCodeChallengeShopper,
		ResultCodeReceived,
		ResultCodePending,
		ResultCodePresentToShopper,
		ResultCodeError,
		ResultCodeCancelled,
		ResultCodePOSSuccess,
	}
}

// ParseResultCode matches a raw gateway string against the closed set.
// Matching is exact after trimming, mirroring the gateway contract.
func ParseResultCode(raw string) (ResultCode, bool) {
	candidate := ResultCode(strings.TrimSpace(raw))
	for _, code := range KnownResultCodes() {
		if candidate == code {
			return code, true
		}
	}
	return "", false
}

// RequiresShopperAction reports whether the result code needs further
// shopper interaction before the payment can become final. These are the
// only codes for which a normalized response is not final.
func RequiresShopperAction(code ResultCode) bool {
	switch code {
	case ResultCodeRedirectShopper,
		ResultCodeIdentifyShopper,
		ResultCodeChallengeShopper,
		ResultCodePending:
		return true
	default:
		return false
	}
}

type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusNew            OrderStatus = "new"
	OrderStatusProcessing     OrderStatus = "processing"
	OrderStatusCanceled       OrderStatus = "canceled"
)

// Order is the module's view of the host platform's order. It is mutated
// here and handed back through OrderRepository; the host owns the record.
type Order struct {
	ID          string
	IncrementID string
	QuoteID     string
	Status      OrderStatus
	Payment     PaymentRecord
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PaymentRecord is the payment slice of the order. Response metadata is
// recorded additively: absent response fields never clear recorded values.
type PaymentRecord struct {
	Method            string
	TransactionID     string
	LastTransactionID string
	CardTransactionID string
	ResultCode        ResultCode
	PSPReference      string
	Action            map[string]any
	AdditionalData    map[string]any
	Details           []map[string]any
	DonationToken     string
}

func (o *Order) TransitionTo(status OrderStatus, now time.Time) error {
	if o == nil {
		return nil
	}
	if o.Status == status {
		o.UpdatedAt = now
		return nil
	}
	if !orderTransitionAllowed(o.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidOrderStateTransition, o.Status, status)
	}
	o.Status = status
	o.UpdatedAt = now
	return nil
}

func orderTransitionAllowed(current, next OrderStatus) bool {
	allowed := map[OrderStatus]map[OrderStatus]struct{}{
		OrderStatusPendingPayment: {
			OrderStatusNew:      {},
			OrderStatusCanceled: {},
		},
		OrderStatusNew: {
			OrderStatusProcessing: {},
			OrderStatusCanceled:   {},
		},
		OrderStatusProcessing: {
			OrderStatusCanceled: {},
		},
		OrderStatusCanceled: {},
	}
	_, ok := allowed[current][next]
	return ok
}

// GatewayResponse is the raw payload handed to the module by the checkout
// channel or the notification pipeline. ResultCode and AuthResult are kept
// as received; resolution against the closed set happens in processing.
type GatewayResponse struct {
	ResultCode     string
	AuthResult     string
	PSPReference   string
	PaymentMethod  PaymentMethodInfo
	Action         map[string]any
	AdditionalData map[string]any
	Details        []map[string]any
	DonationToken  string
}

// ResolveResultCode picks the result indicator: resultCode wins, authResult
// is the legacy fallback. The boolean is false when neither is present.
func (r GatewayResponse) ResolveResultCode() (string, bool) {
	if code := strings.TrimSpace(r.ResultCode); code != "" {
		return code, true
	}
	if code := strings.TrimSpace(r.AuthResult); code != "" {
		return code, true
	}
	return "", false
}

type PaymentMethodInfo struct {
	Brand string
	Type  string
}

// Descriptor returns the shopper-facing method label: brand when present,
// otherwise the technical type.
func (p PaymentMethodInfo) Descriptor() string {
	if brand := strings.TrimSpace(p.Brand); brand != "" {
		return brand
	}
	return strings.TrimSpace(p.Type)
}

// NormalizedResponse is the contract returned to the calling channel.
// IsFinal is false exactly for the shopper-action subset.
type NormalizedResponse struct {
	IsFinal        bool           `json:"isFinal"`
	ResultCode     ResultCode     `json:"resultCode"`
	Action         map[string]any `json:"action,omitempty"`
	AdditionalData map[string]any `json:"additionalData,omitempty"`
}

type HistoryEntry struct {
	OrderID       string
	IncrementID   string
	Status        OrderStatus
	Comment       string
	NotifyShopper bool
	CreatedAt     time.Time
}

// StateData is the transient per-checkout-session scratch record keyed by
// the originating quote. Payload is opaque serialized checkout state.
type StateData struct {
	ID        string
	QuoteID   string
	Payload   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentEvent is the module's own append-only processing audit record,
// written alongside the host's order history.
type PaymentEvent struct {
	ID            string
	OrderID       string
	IncrementID   string
	QuoteID       string
	ResultCode    ResultCode
	Accepted      bool
	Comment       string
	PSPReference  string
	PaymentMethod string
	CreatedAt     time.Time
}

type PaymentEventFilter struct {
	IncrementID  string
	PSPReference string
	Page         int
	PerPage      int
}

type PaymentEventPage struct {
	Items   []PaymentEvent
	Total   int
	Page    int
	PerPage int
}

// RecurringDetails is the stored-payment-method payload extracted from an
// authorised response and handed to the host's vault recorder.
type RecurringDetails struct {
	RecurringReference string
	StoredMethodID     string
	ShopperReference   string
	Brand              string
	Type               string
	ExpiryMonth        string
	ExpiryYear         string
	CardSummary        string
}

func (d RecurringDetails) HasToken() bool {
	return strings.TrimSpace(d.RecurringReference) != "" ||
		strings.TrimSpace(d.StoredMethodID) != ""
}
