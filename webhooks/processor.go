package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-checkout/core"
)

// Delivery statuses tracked by the ledger.
const (
	DeliveryStatusPending    = "pending"
	DeliveryStatusProcessed  = "processed"
	DeliveryStatusRetryReady = "retry_ready"
	DeliveryStatusDead       = "dead"
)

// DefaultSource labels deliveries when the inbound request does not name one.
const DefaultSource = "gateway"

// AcceptedResponseBody is the acknowledgement body the gateway expects.
const AcceptedResponseBody = "[accepted]"

const (
	defaultMaxAttempts = 8
	defaultClaimLease  = 5 * time.Minute
)

// Request is an inbound webhook delivery as received from the transport.
type Request struct {
	Source   string
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
}

// Result describes how a delivery was answered.
type Result struct {
	Accepted   bool
	StatusCode int
	Body       string
	Metadata   map[string]any
}

// DeliveryRecord is the ledger's view of a single notification item.
type DeliveryRecord struct {
	ID         string
	Source     string
	DeliveryID string
	Status     string
	Attempts   int
	Payload    []byte
	LastError  string
	NextRetry  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DeliveryLedger persists delivery state so redelivered notifications are
// deduplicated and failed ones can be retried later.
type DeliveryLedger interface {
	// Reserve records a new delivery and returns it. When the delivery was
	// seen before, the existing record is returned with duplicate set.
	Reserve(ctx context.Context, source, deliveryID string, payload []byte) (DeliveryRecord, bool, error)
	Get(ctx context.Context, source, deliveryID string) (DeliveryRecord, error)
	MarkProcessed(ctx context.Context, source, deliveryID string) error
	// MarkRetry bumps the attempt counter and schedules the next try. Once
	// attempts reach maxAttempts the record is parked as dead.
	MarkRetry(ctx context.Context, source, deliveryID string, cause error, nextAttemptAt time.Time, maxAttempts int) error
}

// ItemHandler consumes one verified, deduplicated notification item.
type ItemHandler interface {
	HandleItem(ctx context.Context, item NotificationItem) error
}

// ItemHandlerFunc adapts a function to the ItemHandler interface.
type ItemHandlerFunc func(ctx context.Context, item NotificationItem) error

func (f ItemHandlerFunc) HandleItem(ctx context.Context, item NotificationItem) error {
	return f(ctx, item)
}

// Verifier authenticates the webhook transport before the body is trusted.
type Verifier interface {
	Verify(ctx context.Context, req Request) error
}

// ItemVerifier authenticates a single notification item.
type ItemVerifier interface {
	VerifyItem(ctx context.Context, item NotificationItem) error
}

// RetryPolicy decides how long to wait before a failed delivery is retried.
type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialRetryPolicy doubles the delay on every attempt up to Max.
type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	max := p.Max
	if max <= 0 {
		max = 30 * time.Second
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// RetryPolicyFromConfig builds the backoff policy from notification settings.
func RetryPolicyFromConfig(cfg core.NotificationsConfig) RetryPolicy {
	return ExponentialRetryPolicy{Initial: cfg.RetryBase(), Max: cfg.RetryMax()}
}

// Processor runs inbound notification webhooks through verification, replay
// dedupe, burst control, and the item handler, acknowledging the way the
// gateway expects.
type Processor struct {
	// Verifier guards the transport, for example basic auth credentials.
	Verifier Verifier
	// ItemVerifier checks per-item signatures carried in additionalData.
	ItemVerifier ItemVerifier
	// RequireSignature refuses every item when no ItemVerifier is wired to
	// vouch for it. The verifier itself already rejects unsigned items.
	RequireSignature bool
	Ledger           DeliveryLedger
	Handler          ItemHandler
	// Burst coalesces floods of informational items. Only event codes listed
	// in CoalescableEvents consult it.
	Burst             BurstController
	CoalescableEvents []string
	RetryPolicy       RetryPolicy
	// Enqueuer schedules a redelivery job after a failed item. Optional.
	Enqueuer core.JobEnqueuer
	// ClaimLease bounds how long a pending record blocks reprocessing.
	ClaimLease  time.Duration
	MaxAttempts int
	Source      string
	Logger      core.Logger
	Now         func() time.Time
}

// NewProcessor wires a processor with the default retry policy and limits.
func NewProcessor(verifier Verifier, ledger DeliveryLedger, handler ItemHandler) *Processor {
	return &Processor{
		Verifier:          verifier,
		Ledger:            ledger,
		Handler:           handler,
		CoalescableEvents: []string{EventCodeReportAvailable},
		RetryPolicy:       ExponentialRetryPolicy{},
		ClaimLease:        defaultClaimLease,
		MaxAttempts:       defaultMaxAttempts,
	}
}

// NewProcessorFromConfig wires a processor from notification settings: the
// retry backoff, attempt cap, and claim lease all come from cfg, and
// RequireHMAC demands an item verifier on the template.
func NewProcessorFromConfig(cfg core.NotificationsConfig, template WebhookTemplate, ledger DeliveryLedger, handler ItemHandler) (*Processor, error) {
	if ledger == nil || handler == nil {
		return nil, fmt.Errorf("webhooks: processor requires a ledger and a handler")
	}
	if cfg.RequireHMAC && template.ItemVerifier == nil {
		return nil, fmt.Errorf("webhooks: require_hmac is set but the template carries no item verifier")
	}

	processor := NewProcessor(template.Verifier, ledger, handler)
	processor.ItemVerifier = template.ItemVerifier
	processor.RequireSignature = cfg.RequireHMAC
	processor.RetryPolicy = RetryPolicyFromConfig(cfg)
	if cfg.MaxAttempts > 0 {
		processor.MaxAttempts = cfg.MaxAttempts
	}
	if lease := cfg.ClaimLease(); lease > 0 {
		processor.ClaimLease = lease
	}
	if source := strings.TrimSpace(template.Source); source != "" {
		processor.Source = source
	}
	return processor, nil
}

// Process handles one inbound webhook request. Every item in the envelope is
// processed independently; the request is only acknowledged when no item
// needs a redelivery.
func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if p == nil || p.Ledger == nil || p.Handler == nil {
		return Result{StatusCode: 500}, fmt.Errorf("webhooks: processor requires a ledger and a handler")
	}

	if p.Verifier != nil {
		if err := p.Verifier.Verify(ctx, req); err != nil {
			return Result{
				StatusCode: 401,
				Metadata:   map[string]any{"verification_failed": true},
			}, fmt.Errorf("webhooks: verify delivery: %w", err)
		}
	}

	envelope, err := DecodeEnvelope(req.Body)
	if err != nil {
		return Result{StatusCode: 400}, err
	}

	source := p.sourceFor(req)
	itemCount := len(envelope.Items)
	processed := 0
	deduped := 0
	coalesced := 0
	var failures []error

	for _, item := range envelope.Items {
		outcome, err := p.processItem(ctx, source, item)
		if err != nil {
			failures = append(failures, err)
			p.logError(ctx, "notification item failed", map[string]any{
				"source":      source,
				"event_code":  item.EventCode,
				"delivery_id": item.DeliveryID(),
				"error":       err.Error(),
			})
			continue
		}
		switch outcome {
		case itemOutcomeDeduped:
			deduped++
		case itemOutcomeCoalesced:
			coalesced++
		default:
			processed++
		}
	}

	metadata := map[string]any{
		"source":    source,
		"live":      envelope.Live,
		"items":     itemCount,
		"processed": processed,
	}
	if deduped > 0 {
		metadata["deduped"] = deduped
	}
	if coalesced > 0 {
		metadata["coalesced"] = coalesced
	}

	if len(failures) > 0 {
		metadata["failed"] = len(failures)
		return Result{StatusCode: 500, Metadata: metadata},
			fmt.Errorf("webhooks: %d of %d notification items failed: %w", len(failures), itemCount, failures[0])
	}

	return Result{
		Accepted:   true,
		StatusCode: 200,
		Body:       AcceptedResponseBody,
		Metadata:   metadata,
	}, nil
}

type itemOutcome int

const (
	itemOutcomeProcessed itemOutcome = iota
	itemOutcomeDeduped
	itemOutcomeCoalesced
)

func (p *Processor) processItem(ctx context.Context, source string, item NotificationItem) (itemOutcome, error) {
	if err := item.Validate(); err != nil {
		return itemOutcomeProcessed, err
	}
	if p.RequireSignature && p.ItemVerifier == nil {
		return itemOutcomeProcessed, fmt.Errorf("webhooks: item signature required but no item verifier is configured")
	}
	if p.ItemVerifier != nil {
		if err := p.ItemVerifier.VerifyItem(ctx, item); err != nil {
			return itemOutcomeProcessed, fmt.Errorf("webhooks: verify notification item: %w", err)
		}
	}

	deliveryID := item.DeliveryID()
	payload, err := json.Marshal(item)
	if err != nil {
		return itemOutcomeProcessed, fmt.Errorf("webhooks: encode notification item: %w", err)
	}

	record, duplicate, err := p.Ledger.Reserve(ctx, source, deliveryID, payload)
	if err != nil {
		return itemOutcomeProcessed, fmt.Errorf("webhooks: reserve delivery: %w", err)
	}
	if duplicate {
		switch record.Status {
		case DeliveryStatusProcessed, DeliveryStatusDead:
			return itemOutcomeDeduped, nil
		case DeliveryStatusPending:
			if p.now().Sub(record.UpdatedAt) < p.claimLease() {
				return itemOutcomeDeduped, nil
			}
		}
	}

	if p.Burst != nil && p.eventCoalescable(item.EventCode) {
		decision, err := p.Burst.Allow(ctx, burstKey(source, item))
		if err != nil {
			return itemOutcomeProcessed, fmt.Errorf("webhooks: burst control: %w", err)
		}
		if !decision.Allow {
			if err := p.Ledger.MarkProcessed(ctx, source, deliveryID); err != nil {
				return itemOutcomeProcessed, fmt.Errorf("webhooks: mark coalesced delivery: %w", err)
			}
			return itemOutcomeCoalesced, nil
		}
	}

	if err := p.Handler.HandleItem(ctx, item); err != nil {
		nextAttemptAt := p.now().Add(p.retryPolicy().NextDelay(record.Attempts))
		if markErr := p.Ledger.MarkRetry(ctx, source, deliveryID, err, nextAttemptAt, p.maxAttempts()); markErr != nil {
			return itemOutcomeProcessed, fmt.Errorf("webhooks: mark delivery for retry: %w", markErr)
		}
		p.enqueueRetry(ctx, source, deliveryID)
		return itemOutcomeProcessed, err
	}

	if err := p.Ledger.MarkProcessed(ctx, source, deliveryID); err != nil {
		return itemOutcomeProcessed, fmt.Errorf("webhooks: mark delivery processed: %w", err)
	}
	return itemOutcomeProcessed, nil
}

func (p *Processor) enqueueRetry(ctx context.Context, source, deliveryID string) {
	if p.Enqueuer == nil {
		return
	}
	msg := &core.JobMessage{
		JobID: RetryJobID,
		Parameters: map[string]any{
			"source":      source,
			"delivery_id": deliveryID,
		},
		IdempotencyKey: source + "::" + deliveryID,
		DedupPolicy:    "replace",
	}
	if err := p.Enqueuer.Enqueue(ctx, msg); err != nil {
		p.logError(ctx, "retry enqueue failed", map[string]any{
			"source":      source,
			"delivery_id": deliveryID,
			"error":       err.Error(),
		})
	}
}

func (p *Processor) eventCoalescable(eventCode string) bool {
	for _, candidate := range p.CoalescableEvents {
		if strings.EqualFold(candidate, eventCode) {
			return true
		}
	}
	return false
}

func burstKey(source string, item NotificationItem) string {
	return source + "::" + strings.ToUpper(strings.TrimSpace(item.EventCode)) + "::" + item.MerchantAccountCode
}

func (p *Processor) sourceFor(req Request) string {
	if source := strings.TrimSpace(req.Source); source != "" {
		return source
	}
	if source := strings.TrimSpace(p.Source); source != "" {
		return source
	}
	return DefaultSource
}

func (p *Processor) retryPolicy() RetryPolicy {
	if p.RetryPolicy != nil {
		return p.RetryPolicy
	}
	return ExponentialRetryPolicy{}
}

func (p *Processor) claimLease() time.Duration {
	if p.ClaimLease > 0 {
		return p.ClaimLease
	}
	return defaultClaimLease
}

func (p *Processor) maxAttempts() int {
	if p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return defaultMaxAttempts
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

func (p *Processor) logError(ctx context.Context, msg string, fields map[string]any) {
	if p.Logger == nil {
		return
	}
	logger := p.Logger.WithContext(ctx)
	if fl, ok := logger.(core.FieldsLogger); ok && len(fields) > 0 {
		fl.WithFields(fields).Error(msg)
		return
	}
	logger.Error(msg)
}

// Job identifiers for notification processing workers.
const (
	ProcessJobID = "checkout.notifications.process"
	RetryJobID   = "checkout.notifications.retry"
)
