package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// OrderLifecycle is the host's order state machine. It must serialize
// concurrent transitions per order id; this module issues at most one
// transition per Process call and relies on that guarantee.
type OrderLifecycle interface {
	AdvanceToNew(ctx context.Context, order Order) (Order, error)
	Cancel(ctx context.Context, order Order) (Order, error)
	IsCancellable(order Order) bool
}

type OrderRepository interface {
	Save(ctx context.Context, order Order) (Order, error)
}

// OrderLoader resolves orders for the notification pipeline, which only
// knows the shopper-facing increment id carried as merchantReference.
type OrderLoader interface {
	ByIncrementID(ctx context.Context, incrementID string) (Order, error)
}

// HistoryLog is the host's append-only order history. Entries are never
// updated or removed by this module.
type HistoryLog interface {
	Append(ctx context.Context, entry HistoryEntry) error
}

// VaultRecorder persists stored-payment-method details on the host side.
// Failures are reported back but never abort response processing.
type VaultRecorder interface {
	RecordRecurringDetails(ctx context.Context, order Order, details RecurringDetails) error
}

// TransientStateStore clears per-checkout-session scratch state once a
// response reaches the processor. Failures are non-fatal.
type TransientStateStore interface {
	Clear(ctx context.Context, quoteID string, result ResultCode) error
}

// QuoteDisabler deactivates the originating quote after an authorised
// payment so the session cannot re-submit it. Best effort.
type QuoteDisabler interface {
	DisableQuote(ctx context.Context, quoteID string) error
}

type StateDataStore interface {
	Save(ctx context.Context, data StateData) (StateData, error)
	Get(ctx context.Context, quoteID string) (StateData, error)
	Remove(ctx context.Context, quoteID string) error
}

type PaymentEventStore interface {
	Append(ctx context.Context, event PaymentEvent) (PaymentEvent, error)
	List(ctx context.Context, filter PaymentEventFilter) (PaymentEventPage, error)
}

// ReplayLedger guards duplicate processing claims. Claim returns false when
// the key is already held and unexpired.
type ReplayLedger interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	PurgeExpired(ctx context.Context) (int, error)
}

type SaveStateDataRequest struct {
	QuoteID string
	Payload string
}

type RemoveStateDataRequest struct {
	QuoteID string
}

type ProcessResponseRequest struct {
	Response GatewayResponse
	Order    Order
}

type ProcessResponseResult struct {
	Accepted   bool
	ResultCode ResultCode
}

// CheckoutService is the operation surface the command, query, and webhook
// layers program against.
type CheckoutService interface {
	ProcessResponse(ctx context.Context, req ProcessResponseRequest) (ProcessResponseResult, error)
	NormalizeResponse(ctx context.Context, resp GatewayResponse) NormalizedResponse
	SaveStateData(ctx context.Context, req SaveStateDataRequest) (StateData, error)
	LoadStateData(ctx context.Context, quoteID string) (StateData, error)
	RemoveStateData(ctx context.Context, req RemoveStateDataRequest) error
	RecordVaultDetails(ctx context.Context, order Order, resp GatewayResponse) (RecurringDetails, error)
	ListPaymentEvents(ctx context.Context, filter PaymentEventFilter) (PaymentEventPage, error)
}

// StoreProvider is what a repository factory yields: the module-owned
// stores backed by the host's database.
type StoreProvider interface {
	StateDataStore() StateDataStore
	PaymentEventStore() PaymentEventStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type JobMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobMessage) error
}

type JobDelivery interface {
	Message() *JobMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}
