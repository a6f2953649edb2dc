package gojob

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-checkout/core"
	"github.com/goliatone/go-checkout/webhooks"
)

func TestNotificationRetryWorker_RehandlesDueDelivery(t *testing.T) {
	ctx := context.Background()
	ledger := webhooks.NewMemoryDeliveryLedger()
	item := webhooks.NotificationItem{
		EventCode:         webhooks.EventCodeAuthorisation,
		Success:           "true",
		PSPReference:      "PSP001",
		MerchantReference: "100000017",
	}
	deliveryID := item.DeliveryID()
	payload, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("marshal item: %v", err)
	}
	if _, _, err := ledger.Reserve(ctx, "gateway", deliveryID, payload); err != nil {
		t.Fatalf("reserve delivery: %v", err)
	}
	due := time.Now().UTC().Add(-time.Second)
	if err := ledger.MarkRetry(ctx, "gateway", deliveryID, errors.New("order locked"), due, 8); err != nil {
		t.Fatalf("mark retry: %v", err)
	}

	handled := 0
	worker := NewNotificationRetryWorker(ledger, webhooks.ItemHandlerFunc(func(_ context.Context, got webhooks.NotificationItem) error {
		handled++
		if got.PSPReference != "PSP001" {
			t.Fatalf("unexpected item %#v", got)
		}
		return nil
	}))

	delivery := &stubJobDelivery{msg: NewRetryNotificationMessage("gateway", deliveryID)}
	if err := worker.Handle(ctx, delivery); err != nil {
		t.Fatalf("handle retry job: %v", err)
	}
	if handled != 1 {
		t.Fatalf("expected one handler invocation, got %d", handled)
	}
	if !delivery.acked {
		t.Fatalf("expected job ack after successful retry")
	}
	record, err := ledger.Get(ctx, "gateway", deliveryID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Status != webhooks.DeliveryStatusProcessed {
		t.Fatalf("expected processed record, got %q", record.Status)
	}
}

func TestNotificationRetryWorker_RequeuesUntilBackoffElapses(t *testing.T) {
	ctx := context.Background()
	ledger := webhooks.NewMemoryDeliveryLedger()
	deliveryID := "PSP002::AUTHORISATION::true"
	if _, _, err := ledger.Reserve(ctx, "gateway", deliveryID, []byte(`{"eventCode":"AUTHORISATION"}`)); err != nil {
		t.Fatalf("reserve delivery: %v", err)
	}
	notYet := time.Now().UTC().Add(time.Hour)
	if err := ledger.MarkRetry(ctx, "gateway", deliveryID, errors.New("order locked"), notYet, 8); err != nil {
		t.Fatalf("mark retry: %v", err)
	}

	handled := 0
	worker := NewNotificationRetryWorker(ledger, webhooks.ItemHandlerFunc(func(context.Context, webhooks.NotificationItem) error {
		handled++
		return nil
	}))

	delivery := &stubJobDelivery{msg: NewRetryNotificationMessage("gateway", deliveryID)}
	if err := worker.Handle(ctx, delivery); err != nil {
		t.Fatalf("handle retry job: %v", err)
	}
	if handled != 0 {
		t.Fatalf("expected handler to be skipped before backoff, got %d calls", handled)
	}
	if delivery.acked || !delivery.nacked {
		t.Fatalf("expected nack, got acked=%v nacked=%v", delivery.acked, delivery.nacked)
	}
	if !delivery.nackOpts.Requeue || delivery.nackOpts.Delay <= 0 {
		t.Fatalf("expected requeue with remaining delay, got %#v", delivery.nackOpts)
	}
}

func TestNotificationRetryWorker_ParksDeliveryAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	ledger := webhooks.NewMemoryDeliveryLedger()
	deliveryID := "PSP003::CAPTURE::true"
	if _, _, err := ledger.Reserve(ctx, "gateway", deliveryID, []byte(`{"eventCode":"CAPTURE","pspReference":"PSP003"}`)); err != nil {
		t.Fatalf("reserve delivery: %v", err)
	}
	due := time.Now().UTC().Add(-time.Second)
	if err := ledger.MarkRetry(ctx, "gateway", deliveryID, errors.New("order locked"), due, 8); err != nil {
		t.Fatalf("mark retry: %v", err)
	}

	worker := NewNotificationRetryWorker(ledger, webhooks.ItemHandlerFunc(func(context.Context, webhooks.NotificationItem) error {
		return errors.New("order still locked")
	}))
	worker.MaxAttempts = 3

	delivery := &stubJobDelivery{msg: NewRetryNotificationMessage("gateway", deliveryID)}
	if err := worker.Handle(ctx, delivery); err != nil {
		t.Fatalf("handle retry job: %v", err)
	}
	if !delivery.nacked || !delivery.nackOpts.DeadLetter {
		t.Fatalf("expected dead letter nack, got %#v", delivery.nackOpts)
	}
	record, err := ledger.Get(ctx, "gateway", deliveryID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Status != webhooks.DeliveryStatusDead {
		t.Fatalf("expected dead record, got %q", record.Status)
	}
	if record.LastError != "order still locked" {
		t.Fatalf("expected last error recorded, got %q", record.LastError)
	}
}

func TestNotificationRetryWorker_DropsSettledAndUnknownDeliveries(t *testing.T) {
	ctx := context.Background()
	ledger := webhooks.NewMemoryDeliveryLedger()
	deliveryID := "PSP004::REFUND::true"
	if _, _, err := ledger.Reserve(ctx, "gateway", deliveryID, []byte(`{"eventCode":"REFUND"}`)); err != nil {
		t.Fatalf("reserve delivery: %v", err)
	}
	if err := ledger.MarkProcessed(ctx, "gateway", deliveryID); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	handled := 0
	worker := NewNotificationRetryWorker(ledger, webhooks.ItemHandlerFunc(func(context.Context, webhooks.NotificationItem) error {
		handled++
		return nil
	}))

	settled := &stubJobDelivery{msg: NewRetryNotificationMessage("gateway", deliveryID)}
	if err := worker.Handle(ctx, settled); err != nil {
		t.Fatalf("handle settled delivery: %v", err)
	}
	if !settled.acked || handled != 0 {
		t.Fatalf("expected settled delivery to ack without handling")
	}

	unknown := &stubJobDelivery{msg: NewRetryNotificationMessage("gateway", "PSP999::REFUND::true")}
	if err := worker.Handle(ctx, unknown); err != nil {
		t.Fatalf("handle unknown delivery: %v", err)
	}
	if !unknown.acked {
		t.Fatalf("expected unknown delivery to ack")
	}
}

func TestNotificationRetryWorker_DeadLettersPoisonPayload(t *testing.T) {
	ctx := context.Background()
	ledger := webhooks.NewMemoryDeliveryLedger()
	deliveryID := "PSP005::AUTHORISATION::true"
	if _, _, err := ledger.Reserve(ctx, "gateway", deliveryID, []byte("{")); err != nil {
		t.Fatalf("reserve delivery: %v", err)
	}

	worker := NewNotificationRetryWorker(ledger, webhooks.ItemHandlerFunc(func(context.Context, webhooks.NotificationItem) error {
		t.Fatalf("handler must not run for a payload that does not decode")
		return nil
	}))

	delivery := &stubJobDelivery{msg: NewRetryNotificationMessage("gateway", deliveryID)}
	if err := worker.Handle(ctx, delivery); err != nil {
		t.Fatalf("handle poison payload: %v", err)
	}
	if !delivery.nacked || !delivery.nackOpts.DeadLetter {
		t.Fatalf("expected dead letter nack, got %#v", delivery.nackOpts)
	}
	record, err := ledger.Get(ctx, "gateway", deliveryID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if record.Status != webhooks.DeliveryStatusDead {
		t.Fatalf("expected parked record, got %q", record.Status)
	}
}

func TestNotificationIntakeWorker_AcksProcessedEnvelope(t *testing.T) {
	processor := stubNotificationProcessor{
		processFn: func(_ context.Context, req webhooks.Request) (webhooks.Result, error) {
			if req.Source != "gateway" || !strings.Contains(string(req.Body), "AUTHORISATION") {
				t.Fatalf("unexpected request %#v", req)
			}
			return webhooks.Result{Accepted: true, StatusCode: 200, Body: webhooks.AcceptedResponseBody}, nil
		},
	}
	worker := NewNotificationIntakeWorker(processor)

	body := []byte(`{"live":"false","notificationItems":[{"NotificationRequestItem":{"eventCode":"AUTHORISATION"}}]}`)
	delivery := &stubJobDelivery{msg: NewProcessNotificationsMessage("gateway", body)}
	if err := worker.Handle(context.Background(), delivery); err != nil {
		t.Fatalf("handle intake job: %v", err)
	}
	if !delivery.acked {
		t.Fatalf("expected ack after processing")
	}
}

func TestNotificationIntakeWorker_DeadLettersPermanentFailures(t *testing.T) {
	processor := stubNotificationProcessor{
		processFn: func(context.Context, webhooks.Request) (webhooks.Result, error) {
			return webhooks.Result{StatusCode: 400}, errors.New("body does not decode")
		},
	}
	worker := NewNotificationIntakeWorker(processor)

	delivery := &stubJobDelivery{msg: NewProcessNotificationsMessage("gateway", []byte("not json"))}
	if err := worker.Handle(context.Background(), delivery); err != nil {
		t.Fatalf("handle intake job: %v", err)
	}
	if !delivery.nacked || !delivery.nackOpts.DeadLetter {
		t.Fatalf("expected dead letter nack, got %#v", delivery.nackOpts)
	}
}

func TestNotificationIntakeWorker_RequeuesTransientFailures(t *testing.T) {
	processor := stubNotificationProcessor{
		processFn: func(context.Context, webhooks.Request) (webhooks.Result, error) {
			return webhooks.Result{StatusCode: 500}, errors.New("ledger unavailable")
		},
	}
	worker := NewNotificationIntakeWorker(processor)

	delivery := &stubJobDelivery{msg: NewProcessNotificationsMessage("gateway", []byte(`{"notificationItems":[]}`))}
	if err := worker.Handle(context.Background(), delivery); err != nil {
		t.Fatalf("handle intake job: %v", err)
	}
	if !delivery.nacked || !delivery.nackOpts.Requeue {
		t.Fatalf("expected requeue nack, got %#v", delivery.nackOpts)
	}
	if delivery.nackOpts.Delay != transientRetryDelay {
		t.Fatalf("expected transient delay, got %s", delivery.nackOpts.Delay)
	}
}

func TestStateDataPruneWorker_AcksAfterPrune(t *testing.T) {
	pruned := 0
	worker := NewStateDataPruneWorker(stubPruner{
		pruneFn: func(context.Context) (int, error) {
			pruned++
			return 3, nil
		},
	})

	delivery := &stubJobDelivery{msg: NewStateDataPruneMessage()}
	if err := worker.Handle(context.Background(), delivery); err != nil {
		t.Fatalf("handle prune job: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected one prune invocation, got %d", pruned)
	}
	if !delivery.acked {
		t.Fatalf("expected ack after prune")
	}
}

func TestStateDataPruneWorker_RequeuesOnFailure(t *testing.T) {
	worker := NewStateDataPruneWorker(stubPruner{
		pruneFn: func(context.Context) (int, error) {
			return 0, errors.New("database unavailable")
		},
	})

	delivery := &stubJobDelivery{msg: NewStateDataPruneMessage()}
	err := worker.Handle(context.Background(), delivery)
	if err == nil {
		t.Fatalf("expected prune failure to surface")
	}
	if !delivery.nacked || !delivery.nackOpts.Requeue {
		t.Fatalf("expected requeue nack, got %#v", delivery.nackOpts)
	}
}

func TestJobMessageConstructors(t *testing.T) {
	body := []byte(`{"notificationItems":[]}`)
	intake := NewProcessNotificationsMessage("gateway", body)
	if intake.JobID != JobIDProcessNotifications {
		t.Fatalf("unexpected intake job id %q", intake.JobID)
	}
	if intake.IdempotencyKey == "" || intake.IdempotencyKey != NewProcessNotificationsMessage("gateway", body).IdempotencyKey {
		t.Fatalf("expected deterministic intake idempotency key")
	}

	retry := NewRetryNotificationMessage("gateway", "PSP001::AUTHORISATION::true")
	if retry.JobID != JobIDRetryNotification {
		t.Fatalf("unexpected retry job id %q", retry.JobID)
	}
	if retry.IdempotencyKey != "gateway::PSP001::AUTHORISATION::true" {
		t.Fatalf("unexpected retry idempotency key %q", retry.IdempotencyKey)
	}

	prune := NewStateDataPruneMessage()
	if prune.JobID != JobIDStateDataPrune || prune.IdempotencyKey != JobIDStateDataPrune {
		t.Fatalf("unexpected prune message %#v", prune)
	}
}

type stubJobDelivery struct {
	msg      *core.JobMessage
	acked    bool
	nacked   bool
	nackOpts core.JobNackOptions
}

func (s *stubJobDelivery) Message() *core.JobMessage {
	return s.msg
}

func (s *stubJobDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubJobDelivery) Nack(_ context.Context, opts core.JobNackOptions) error {
	s.nacked = true
	s.nackOpts = opts
	return nil
}

type stubNotificationProcessor struct {
	processFn func(context.Context, webhooks.Request) (webhooks.Result, error)
}

func (s stubNotificationProcessor) Process(ctx context.Context, req webhooks.Request) (webhooks.Result, error) {
	if s.processFn == nil {
		return webhooks.Result{}, nil
	}
	return s.processFn(ctx, req)
}

type stubPruner struct {
	pruneFn func(context.Context) (int, error)
}

func (s stubPruner) PruneExpired(ctx context.Context) (int, error) {
	if s.pruneFn == nil {
		return 0, nil
	}
	return s.pruneFn(ctx)
}
