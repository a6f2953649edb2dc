// Package checkout turns raw payment gateway responses and webhook
// notifications into normalized storefront outcomes and order lifecycle
// transitions. The root package re-exports the core surface so hosts can
// embed the module without importing internal packages.
package checkout

import "github.com/goliatone/go-checkout/core"

type Config = core.Config

type StateDataConfig = core.StateDataConfig

type NotificationsConfig = core.NotificationsConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type CheckoutService = core.CheckoutService
type StateDataStore = core.StateDataStore
type TransientStateStore = core.TransientStateStore
type PaymentEventStore = core.PaymentEventStore
type ReplayLedger = core.ReplayLedger
type OrderLifecycle = core.OrderLifecycle
type OrderRepository = core.OrderRepository
type OrderLoader = core.OrderLoader
type HistoryLog = core.HistoryLog
type VaultRecorder = core.VaultRecorder
type QuoteDisabler = core.QuoteDisabler
type MethodRegistry = core.MethodRegistry

type ResultCode = core.ResultCode
type OrderStatus = core.OrderStatus
type Order = core.Order
type GatewayResponse = core.GatewayResponse
type NormalizedResponse = core.NormalizedResponse
type StateData = core.StateData
type RecurringDetails = core.RecurringDetails
type PaymentEvent = core.PaymentEvent
type PaymentEventFilter = core.PaymentEventFilter
type PaymentEventPage = core.PaymentEventPage

type ProcessResponseRequest = core.ProcessResponseRequest

type ProcessResponseResult = core.ProcessResponseResult

type SaveStateDataRequest = core.SaveStateDataRequest

type RemoveStateDataRequest = core.RemoveStateDataRequest

var (
	WithLogger              = core.WithLogger
	WithLoggerProvider      = core.WithLoggerProvider
	WithMetricsRecorder     = core.WithMetricsRecorder
	WithErrorFactory        = core.WithErrorFactory
	WithErrorMapper         = core.WithErrorMapper
	WithPersistenceClient   = core.WithPersistenceClient
	WithRepositoryFactory   = core.WithRepositoryFactory
	WithConfigProvider      = core.WithConfigProvider
	WithOptionsResolver     = core.WithOptionsResolver
	WithMethodRegistry      = core.WithMethodRegistry
	WithOrderLifecycle      = core.WithOrderLifecycle
	WithOrderRepository     = core.WithOrderRepository
	WithOrderLoader         = core.WithOrderLoader
	WithHistoryLog          = core.WithHistoryLog
	WithVaultRecorder       = core.WithVaultRecorder
	WithQuoteDisabler       = core.WithQuoteDisabler
	WithStateDataStore      = core.WithStateDataStore
	WithTransientStateStore = core.WithTransientStateStore
	WithPaymentEventStore   = core.WithPaymentEventStore
	WithReplayLedger        = core.WithReplayLedger
	WithClock               = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
