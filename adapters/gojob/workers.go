package gojob

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-checkout/core"
	"github.com/goliatone/go-checkout/webhooks"
)

const transientRetryDelay = time.Minute

// NewProcessNotificationsMessage queues a raw webhook envelope for
// asynchronous processing.
func NewProcessNotificationsMessage(source string, body []byte) *core.JobMessage {
	return &core.JobMessage{
		JobID: JobIDProcessNotifications,
		Parameters: map[string]any{
			"source": source,
			"body":   string(body),
		},
		IdempotencyKey: fmt.Sprintf("%s::%x", source, sha256.Sum256(body)),
		DedupPolicy:    "drop",
	}
}

// NewRetryNotificationMessage builds the redelivery message scheduled after
// a failed notification item.
func NewRetryNotificationMessage(source, deliveryID string) *core.JobMessage {
	return &core.JobMessage{
		JobID: JobIDRetryNotification,
		Parameters: map[string]any{
			"source":      source,
			"delivery_id": deliveryID,
		},
		IdempotencyKey: source + "::" + deliveryID,
		DedupPolicy:    "replace",
	}
}

// NewStateDataPruneMessage builds the periodic state data prune message.
func NewStateDataPruneMessage() *core.JobMessage {
	return &core.JobMessage{
		JobID:          JobIDStateDataPrune,
		IdempotencyKey: JobIDStateDataPrune,
		DedupPolicy:    "replace",
	}
}

// NotificationProcessor is the processing surface the intake worker drives.
type NotificationProcessor interface {
	Process(ctx context.Context, req webhooks.Request) (webhooks.Result, error)
}

// NotificationIntakeWorker runs queued webhook envelopes through the
// notification processor. Hosts that acknowledge the gateway before
// processing enqueue the raw body and let this worker consume it.
type NotificationIntakeWorker struct {
	Processor NotificationProcessor
	Logger    core.Logger
}

func NewNotificationIntakeWorker(processor NotificationProcessor) *NotificationIntakeWorker {
	return &NotificationIntakeWorker{Processor: processor}
}

// Handle consumes one intake job. Item failures are retried per item by the
// processor's ledger, so the envelope job only requeues on transient
// processing errors; redelivering an envelope is safe because processed
// items dedupe.
func (w *NotificationIntakeWorker) Handle(ctx context.Context, delivery core.JobDelivery) error {
	if w == nil || w.Processor == nil {
		return fmt.Errorf("gojob: intake worker requires a processor")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	msg := delivery.Message()
	if msg == nil {
		return delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: "empty intake message"})
	}
	body := parameterString(msg.Parameters, "body")
	if body == "" {
		return delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: "intake message carries no body"})
	}

	result, err := w.Processor.Process(ctx, webhooks.Request{
		Source: parameterString(msg.Parameters, "source"),
		Body:   []byte(body),
	})
	if err != nil {
		switch result.StatusCode {
		case 400, 401:
			// Undecodable or unverifiable envelopes never become valid.
			return delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: err.Error()})
		default:
			return delivery.Nack(ctx, core.JobNackOptions{
				Requeue: true,
				Delay:   transientRetryDelay,
				Reason:  err.Error(),
			})
		}
	}
	return delivery.Ack(ctx)
}

// NotificationRetryWorker re-runs a parked notification delivery once its
// backoff has elapsed.
type NotificationRetryWorker struct {
	Ledger      webhooks.DeliveryLedger
	Handler     webhooks.ItemHandler
	RetryPolicy webhooks.RetryPolicy
	MaxAttempts int
	Logger      core.Logger
	Now         func() time.Time
}

func NewNotificationRetryWorker(ledger webhooks.DeliveryLedger, handler webhooks.ItemHandler) *NotificationRetryWorker {
	return &NotificationRetryWorker{
		Ledger:      ledger,
		Handler:     handler,
		RetryPolicy: webhooks.ExponentialRetryPolicy{},
	}
}

// Handle consumes one retry job. The ledger record is the source of truth:
// already processed or dead deliveries drop the job, a not yet due backoff
// requeues it with the remaining delay.
func (w *NotificationRetryWorker) Handle(ctx context.Context, delivery core.JobDelivery) error {
	if w == nil || w.Ledger == nil || w.Handler == nil {
		return fmt.Errorf("gojob: retry worker requires a ledger and a handler")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	msg := delivery.Message()
	if msg == nil {
		return delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: "empty retry message"})
	}
	source := parameterString(msg.Parameters, "source")
	deliveryID := parameterString(msg.Parameters, "delivery_id")
	if source == "" || deliveryID == "" {
		return delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: "retry message misses source or delivery_id"})
	}

	record, err := w.Ledger.Get(ctx, source, deliveryID)
	if errors.Is(err, webhooks.ErrDeliveryNotFound) {
		return delivery.Ack(ctx)
	}
	if err != nil {
		return delivery.Nack(ctx, core.JobNackOptions{Requeue: true, Delay: transientRetryDelay, Reason: err.Error()})
	}
	switch record.Status {
	case webhooks.DeliveryStatusProcessed, webhooks.DeliveryStatusDead:
		return delivery.Ack(ctx)
	}
	if record.NextRetry != nil {
		if wait := record.NextRetry.Sub(w.now()); wait > 0 {
			return delivery.Nack(ctx, core.JobNackOptions{Requeue: true, Delay: wait, Reason: "backoff not elapsed"})
		}
	}

	var item webhooks.NotificationItem
	if err := json.Unmarshal(record.Payload, &item); err != nil {
		// A payload that does not decode will not decode later. A max of one
		// attempt parks the record immediately.
		if markErr := w.Ledger.MarkRetry(ctx, source, deliveryID, err, w.now(), 1); markErr != nil {
			return delivery.Nack(ctx, core.JobNackOptions{Requeue: true, Delay: transientRetryDelay, Reason: markErr.Error()})
		}
		w.logError(ctx, "notification payload does not decode", map[string]any{
			"source":      source,
			"delivery_id": deliveryID,
			"error":       err.Error(),
		})
		return delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: err.Error()})
	}

	if err := w.Handler.HandleItem(ctx, item); err != nil {
		next := w.now().Add(w.retryPolicy().NextDelay(record.Attempts))
		if markErr := w.Ledger.MarkRetry(ctx, source, deliveryID, err, next, w.maxAttempts()); markErr != nil {
			return delivery.Nack(ctx, core.JobNackOptions{Requeue: true, Delay: transientRetryDelay, Reason: markErr.Error()})
		}
		refreshed, getErr := w.Ledger.Get(ctx, source, deliveryID)
		if getErr == nil && refreshed.Status == webhooks.DeliveryStatusDead {
			w.logError(ctx, "notification parked after max attempts", map[string]any{
				"source":      source,
				"delivery_id": deliveryID,
				"attempts":    refreshed.Attempts,
			})
			return delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: err.Error()})
		}
		return delivery.Nack(ctx, core.JobNackOptions{Requeue: true, Delay: next.Sub(w.now()), Reason: err.Error()})
	}

	if err := w.Ledger.MarkProcessed(ctx, source, deliveryID); err != nil {
		return delivery.Nack(ctx, core.JobNackOptions{Requeue: true, Delay: transientRetryDelay, Reason: err.Error()})
	}
	return delivery.Ack(ctx)
}

func (w *NotificationRetryWorker) retryPolicy() webhooks.RetryPolicy {
	if w.RetryPolicy != nil {
		return w.RetryPolicy
	}
	return webhooks.ExponentialRetryPolicy{}
}

func (w *NotificationRetryWorker) maxAttempts() int {
	if w.MaxAttempts > 0 {
		return w.MaxAttempts
	}
	return core.DefaultConfig().Notifications.MaxAttempts
}

func (w *NotificationRetryWorker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now().UTC()
}

func (w *NotificationRetryWorker) logError(ctx context.Context, msg string, fields map[string]any) {
	if w.Logger == nil {
		return
	}
	logger := w.Logger.WithContext(ctx)
	if fl, ok := logger.(core.FieldsLogger); ok && len(fields) > 0 {
		fl.WithFields(fields).Error(msg)
		return
	}
	logger.Error(msg)
}

// StateDataPruner removes expired state data records.
type StateDataPruner interface {
	PruneExpired(ctx context.Context) (int, error)
}

// StateDataPruneWorker drops expired checkout state data on a schedule.
type StateDataPruneWorker struct {
	Pruner StateDataPruner
	Logger core.Logger
}

func NewStateDataPruneWorker(pruner StateDataPruner) *StateDataPruneWorker {
	return &StateDataPruneWorker{Pruner: pruner}
}

func (w *StateDataPruneWorker) Handle(ctx context.Context, delivery core.JobDelivery) error {
	if w == nil || w.Pruner == nil {
		return fmt.Errorf("gojob: prune worker requires a pruner")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	pruned, err := w.Pruner.PruneExpired(ctx)
	if err != nil {
		if nackErr := delivery.Nack(ctx, core.JobNackOptions{
			Requeue: true,
			Delay:   transientRetryDelay,
			Reason:  err.Error(),
		}); nackErr != nil {
			return nackErr
		}
		return err
	}
	if pruned > 0 {
		w.logInfo(ctx, "state data pruned", map[string]any{"records": pruned})
	}
	return delivery.Ack(ctx)
}

func (w *StateDataPruneWorker) logInfo(ctx context.Context, msg string, fields map[string]any) {
	if w.Logger == nil {
		return
	}
	logger := w.Logger.WithContext(ctx)
	if fl, ok := logger.(core.FieldsLogger); ok && len(fields) > 0 {
		fl.WithFields(fields).Info(msg)
		return
	}
	logger.Info(msg)
}

func parameterString(params map[string]any, key string) string {
	if len(params) == 0 {
		return ""
	}
	raw, ok := params[key]
	if !ok || raw == nil {
		return ""
	}
	if s, ok := raw.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(raw))
}
