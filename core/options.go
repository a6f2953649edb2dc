package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	methods           *MethodRegistry
	lifecycle         OrderLifecycle
	orders            OrderRepository
	orderLoader       OrderLoader
	history           HistoryLog
	vault             VaultRecorder
	quotes            QuoteDisabler
	stateDataStore    StateDataStore
	transientState    TransientStateStore
	eventStore        PaymentEventStore
	replayLedger      ReplayLedger
	now               func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithMethodRegistry(registry *MethodRegistry) Option {
	return func(b *serviceBuilder) {
		b.methods = registry
	}
}

func WithOrderLifecycle(lifecycle OrderLifecycle) Option {
	return func(b *serviceBuilder) {
		b.lifecycle = lifecycle
	}
}

func WithOrderRepository(orders OrderRepository) Option {
	return func(b *serviceBuilder) {
		b.orders = orders
	}
}

func WithOrderLoader(loader OrderLoader) Option {
	return func(b *serviceBuilder) {
		b.orderLoader = loader
	}
}

func WithHistoryLog(history HistoryLog) Option {
	return func(b *serviceBuilder) {
		b.history = history
	}
}

func WithVaultRecorder(vault VaultRecorder) Option {
	return func(b *serviceBuilder) {
		b.vault = vault
	}
}

func WithQuoteDisabler(quotes QuoteDisabler) Option {
	return func(b *serviceBuilder) {
		b.quotes = quotes
	}
}

func WithStateDataStore(store StateDataStore) Option {
	return func(b *serviceBuilder) {
		b.stateDataStore = store
	}
}

func WithTransientStateStore(store TransientStateStore) Option {
	return func(b *serviceBuilder) {
		b.transientState = store
	}
}

func WithPaymentEventStore(store PaymentEventStore) Option {
	return func(b *serviceBuilder) {
		b.eventStore = store
	}
}

func WithReplayLedger(ledger ReplayLedger) Option {
	return func(b *serviceBuilder) {
		b.replayLedger = ledger
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("checkout", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		methods:         DefaultMethodRegistry(),
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return checkoutErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(cfg.MerchantAccount) != "" {
		layer["merchant_account"] = cfg.MerchantAccount
	}
	if includeZero || strings.TrimSpace(cfg.Environment) != "" {
		layer["environment"] = cfg.Environment
	}
	if includeZero || cfg.StateData.TTLSeconds != 0 {
		layer["state_data"] = map[string]any{
			"ttl_seconds": cfg.StateData.TTLSeconds,
		}
	}

	notifications := map[string]any{}
	if includeZero || cfg.Notifications.MaxAttempts != 0 {
		notifications["max_attempts"] = cfg.Notifications.MaxAttempts
	}
	if includeZero || cfg.Notifications.RetryBaseSeconds != 0 {
		notifications["retry_base_seconds"] = cfg.Notifications.RetryBaseSeconds
	}
	if includeZero || cfg.Notifications.RetryMaxSeconds != 0 {
		notifications["retry_max_seconds"] = cfg.Notifications.RetryMaxSeconds
	}
	if includeZero || cfg.Notifications.ClaimLeaseSeconds != 0 {
		notifications["claim_lease_seconds"] = cfg.Notifications.ClaimLeaseSeconds
	}
	if includeZero || cfg.Notifications.RequireHMAC {
		notifications["require_hmac"] = cfg.Notifications.RequireHMAC
	}
	if len(notifications) > 0 {
		layer["notifications"] = notifications
	}
	return layer
}
