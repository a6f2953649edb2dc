package webhooks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-checkout/core"
)

func TestNotificationHandler_AuthorisationAdvancesOrder(t *testing.T) {
	orders := &fakeOrderLoader{orders: map[string]core.Order{
		"100000017": {ID: "order_1", IncrementID: "100000017", Status: core.OrderStatusPendingPayment},
	}}
	service := &fakeResponseProcessor{}
	handler := NewNotificationHandler(orders, service)

	item := notificationItem(EventCodeAuthorisation, "psp_1")
	item.Reason = "approved"
	if err := handler.HandleItem(context.Background(), item); err != nil {
		t.Fatalf("handle authorisation: %v", err)
	}

	if len(service.requests) != 1 {
		t.Fatalf("expected one process call, got %d", len(service.requests))
	}
	req := service.requests[0]
	if req.Response.ResultCode != string(core.ResultCodeAuthorised) {
		t.Fatalf("expected Authorised result code, got %q", req.Response.ResultCode)
	}
	if req.Order.ID != "order_1" {
		t.Fatalf("expected order loaded by increment id, got %+v", req.Order)
	}
	if req.Response.PSPReference != "psp_1" {
		t.Fatalf("expected psp reference forwarded, got %q", req.Response.PSPReference)
	}
	if req.Response.PaymentMethod.Type != "ideal" {
		t.Fatalf("expected payment method forwarded, got %+v", req.Response.PaymentMethod)
	}
	if req.Response.AdditionalData["eventCode"] != EventCodeAuthorisation {
		t.Fatalf("expected event code in additional data, got %v", req.Response.AdditionalData)
	}
	if req.Response.AdditionalData["success"] != true {
		t.Fatalf("expected success flag in additional data, got %v", req.Response.AdditionalData)
	}
	if req.Response.AdditionalData["reason"] != "approved" {
		t.Fatalf("expected reason in additional data, got %v", req.Response.AdditionalData)
	}
}

func TestNotificationHandler_FailedAuthorisationMapsToRefused(t *testing.T) {
	orders := &fakeOrderLoader{orders: map[string]core.Order{
		"100000017": {ID: "order_1", IncrementID: "100000017"},
	}}
	service := &fakeResponseProcessor{}
	handler := NewNotificationHandler(orders, service)

	item := notificationItem(EventCodeAuthorisation, "psp_1")
	item.Success = "false"
	if err := handler.HandleItem(context.Background(), item); err != nil {
		t.Fatalf("handle failed authorisation: %v", err)
	}
	if len(service.requests) != 1 {
		t.Fatalf("expected one process call, got %d", len(service.requests))
	}
	if code := service.requests[0].Response.ResultCode; code != string(core.ResultCodeRefused) {
		t.Fatalf("expected Refused result code, got %q", code)
	}
}

func TestNotificationHandler_OfferClosedCancels(t *testing.T) {
	orders := &fakeOrderLoader{orders: map[string]core.Order{
		"100000017": {ID: "order_1", IncrementID: "100000017"},
	}}
	service := &fakeResponseProcessor{}
	handler := NewNotificationHandler(orders, service)

	if err := handler.HandleItem(context.Background(), notificationItem(EventCodeOfferClosed, "psp_1")); err != nil {
		t.Fatalf("handle offer closed: %v", err)
	}
	if len(service.requests) != 1 {
		t.Fatalf("expected one process call, got %d", len(service.requests))
	}
	if code := service.requests[0].Response.ResultCode; code != string(core.ResultCodeCancelled) {
		t.Fatalf("expected Cancelled result code, got %q", code)
	}
}

func TestNotificationHandler_UnsuccessfulCancellationIgnored(t *testing.T) {
	service := &fakeResponseProcessor{}
	handler := NewNotificationHandler(&fakeOrderLoader{}, service)

	item := notificationItem(EventCodeCancellation, "psp_1")
	item.Success = "false"
	if err := handler.HandleItem(context.Background(), item); err != nil {
		t.Fatalf("handle unsuccessful cancellation: %v", err)
	}
	if len(service.requests) != 0 {
		t.Fatalf("expected no process calls, got %d", len(service.requests))
	}
}

func TestNotificationHandler_InformationalEventAcked(t *testing.T) {
	service := &fakeResponseProcessor{}
	handler := NewNotificationHandler(&fakeOrderLoader{}, service)

	for _, eventCode := range []string{EventCodeCapture, EventCodeRefund, EventCodeChargeback, EventCodeReportAvailable} {
		if err := handler.HandleItem(context.Background(), notificationItem(eventCode, "psp_1")); err != nil {
			t.Fatalf("handle %s: %v", eventCode, err)
		}
	}
	if len(service.requests) != 0 {
		t.Fatalf("expected informational events to skip processing, got %d calls", len(service.requests))
	}
}

func TestNotificationHandler_ReplayGuardDropsDuplicates(t *testing.T) {
	orders := &fakeOrderLoader{orders: map[string]core.Order{
		"100000017": {ID: "order_1", IncrementID: "100000017"},
	}}
	service := &fakeResponseProcessor{}
	handler := NewNotificationHandler(orders, service)
	handler.Replays = core.NewMemoryReplayLedger(time.Minute)

	item := notificationItem(EventCodeAuthorisation, "psp_1")
	if err := handler.HandleItem(context.Background(), item); err != nil {
		t.Fatalf("handle first item: %v", err)
	}
	if err := handler.HandleItem(context.Background(), item); err != nil {
		t.Fatalf("handle duplicate item: %v", err)
	}
	if len(service.requests) != 1 {
		t.Fatalf("expected one process call for duplicates, got %d", len(service.requests))
	}
}

func TestNotificationHandler_MissingMerchantReferenceFails(t *testing.T) {
	handler := NewNotificationHandler(&fakeOrderLoader{}, &fakeResponseProcessor{})

	item := notificationItem(EventCodeAuthorisation, "psp_1")
	item.MerchantReference = ""
	err := handler.HandleItem(context.Background(), item)
	if err == nil {
		t.Fatalf("expected missing merchant reference to fail")
	}
	if !strings.Contains(err.Error(), "merchant reference") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNotificationHandler_OrderLoadFailurePropagates(t *testing.T) {
	orders := &fakeOrderLoader{err: errors.New("order backend down")}
	handler := NewNotificationHandler(orders, &fakeResponseProcessor{})

	err := handler.HandleItem(context.Background(), notificationItem(EventCodeAuthorisation, "psp_1"))
	if err == nil {
		t.Fatalf("expected order load failure to propagate")
	}
	if !strings.Contains(err.Error(), "load order 100000017") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNotificationHandler_ServiceFailurePropagates(t *testing.T) {
	orders := &fakeOrderLoader{orders: map[string]core.Order{
		"100000017": {ID: "order_1", IncrementID: "100000017"},
	}}
	service := &fakeResponseProcessor{err: errors.New("history append failed")}
	handler := NewNotificationHandler(orders, service)

	err := handler.HandleItem(context.Background(), notificationItem(EventCodeAuthorisation, "psp_1"))
	if err == nil {
		t.Fatalf("expected service failure to propagate")
	}
	if !strings.Contains(err.Error(), "process AUTHORISATION notification") {
		t.Fatalf("unexpected error: %v", err)
	}
}

type fakeOrderLoader struct {
	orders map[string]core.Order
	err    error
}

func (l *fakeOrderLoader) ByIncrementID(_ context.Context, incrementID string) (core.Order, error) {
	if l.err != nil {
		return core.Order{}, l.err
	}
	order, ok := l.orders[incrementID]
	if !ok {
		return core.Order{}, errors.New("order not found")
	}
	return order, nil
}

type fakeResponseProcessor struct {
	requests []core.ProcessResponseRequest
	result   core.ProcessResponseResult
	err      error
}

func (p *fakeResponseProcessor) ProcessResponse(_ context.Context, req core.ProcessResponseRequest) (core.ProcessResponseResult, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return core.ProcessResponseResult{}, p.err
	}
	return p.result, nil
}
