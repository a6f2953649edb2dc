package webhooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-checkout/core"
)

// ResponseProcessor is the slice of the checkout service the notification
// handler drives.
type ResponseProcessor interface {
	ProcessResponse(ctx context.Context, req core.ProcessResponseRequest) (core.ProcessResponseResult, error)
}

// NotificationHandler turns verified notification items into checkout
// response processing. AUTHORISATION and cancellation events feed the order
// pipeline; everything else is acknowledged and logged.
type NotificationHandler struct {
	Orders  core.OrderLoader
	Service ResponseProcessor
	// Replays guards against the same item being handled twice inside one
	// process while the durable ledger catches cross-process duplicates.
	Replays   core.ReplayLedger
	ReplayTTL time.Duration
	Logger    core.Logger
}

func NewNotificationHandler(orders core.OrderLoader, service ResponseProcessor) *NotificationHandler {
	return &NotificationHandler{
		Orders:  orders,
		Service: service,
	}
}

func (h *NotificationHandler) HandleItem(ctx context.Context, item NotificationItem) error {
	if h == nil || h.Orders == nil || h.Service == nil {
		return fmt.Errorf("webhooks: notification handler requires an order loader and a service")
	}
	if err := item.Validate(); err != nil {
		return err
	}

	if h.Replays != nil {
		claimed, err := h.Replays.Claim(ctx, item.DeliveryID(), h.ReplayTTL)
		if err != nil {
			return fmt.Errorf("webhooks: claim replay key: %w", err)
		}
		if !claimed {
			h.logInfo(ctx, "notification item already in flight", map[string]any{
				"event_code":  item.EventCode,
				"delivery_id": item.DeliveryID(),
			})
			return nil
		}
	}

	resultCode, ok := lifecycleResultCode(item)
	if !ok {
		h.logInfo(ctx, "notification item has no order lifecycle effect", map[string]any{
			"event_code":    item.EventCode,
			"success":       item.IsSuccess(),
			"psp_reference": item.PSPReference,
		})
		return nil
	}

	if strings.TrimSpace(item.MerchantReference) == "" {
		return fmt.Errorf("webhooks: %s notification has no merchant reference", item.EventCode)
	}
	order, err := h.Orders.ByIncrementID(ctx, item.MerchantReference)
	if err != nil {
		return fmt.Errorf("webhooks: load order %s: %w", item.MerchantReference, err)
	}

	response := core.GatewayResponse{
		ResultCode:     string(resultCode),
		PSPReference:   item.PSPReference,
		PaymentMethod:  core.PaymentMethodInfo{Type: item.PaymentMethod},
		AdditionalData: notificationAdditionalData(item),
	}
	if _, err := h.Service.ProcessResponse(ctx, core.ProcessResponseRequest{Response: response, Order: order}); err != nil {
		return fmt.Errorf("webhooks: process %s notification: %w", item.EventCode, err)
	}
	return nil
}

// lifecycleResultCode maps an event code and its success flag onto the result
// code the response pipeline understands. The second return is false for
// events that do not move the order.
func lifecycleResultCode(item NotificationItem) (core.ResultCode, bool) {
	switch strings.ToUpper(strings.TrimSpace(item.EventCode)) {
	case EventCodeAuthorisation:
		if item.IsSuccess() {
			return core.ResultCodeAuthorised, true
		}
		return core.ResultCodeRefused, true
	case EventCodeCancellation, EventCodeOfferClosed:
		if item.IsSuccess() {
			return core.ResultCodeCancelled, true
		}
		return "", false
	default:
		return "", false
	}
}

func notificationAdditionalData(item NotificationItem) map[string]any {
	data := make(map[string]any, len(item.AdditionalData)+3)
	for key, value := range item.AdditionalData {
		data[key] = value
	}
	data["eventCode"] = item.EventCode
	data["success"] = item.IsSuccess()
	if reason := strings.TrimSpace(item.Reason); reason != "" {
		data["reason"] = reason
	}
	return data
}

func (h *NotificationHandler) logInfo(ctx context.Context, msg string, fields map[string]any) {
	if h.Logger == nil {
		return
	}
	logger := h.Logger.WithContext(ctx)
	if fl, ok := logger.(core.FieldsLogger); ok && len(fields) > 0 {
		fl.WithFields(fields).Info(msg)
		return
	}
	logger.Info(msg)
}

var _ ItemHandler = (*NotificationHandler)(nil)
