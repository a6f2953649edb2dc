package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service is the embeddable checkout engine. It owns the response
// processor and the module stores; order lifecycle, history, vault, and
// quote collaborators come from the host platform through options.
type Service struct {
	config            Config
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
	processor         *Processor
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

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	MethodRegistry    *MethodRegistry
	OrderLifecycle    OrderLifecycle
	OrderRepository   OrderRepository
	OrderLoader       OrderLoader
	HistoryLog        HistoryLog
	VaultRecorder     VaultRecorder
	QuoteDisabler     QuoteDisabler
	StateDataStore    StateDataStore
	PaymentEventStore PaymentEventStore
	ReplayLedger      ReplayLedger
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("checkout", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("checkout"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.methods == nil {
		builder.methods = DefaultMethodRegistry()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if (builder.stateDataStore == nil || builder.eventStore == nil) && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			provider, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if provider != nil {
				if builder.stateDataStore == nil {
					builder.stateDataStore = provider.StateDataStore()
				}
				if builder.eventStore == nil {
					builder.eventStore = provider.PaymentEventStore()
				}
			}
		} else if provider, ok := builder.repositoryFactory.(StoreProvider); ok {
			if builder.stateDataStore == nil {
				builder.stateDataStore = provider.StateDataStore()
			}
			if builder.eventStore == nil {
				builder.eventStore = provider.PaymentEventStore()
			}
		}
	}
	if builder.replayLedger == nil && builder.repositoryFactory != nil {
		if provider, ok := builder.repositoryFactory.(interface{ ReplayLedger() ReplayLedger }); ok {
			builder.replayLedger = provider.ReplayLedger()
		}
	}
	if builder.stateDataStore == nil {
		builder.stateDataStore = NewMemoryStateDataStore(finalConfig.StateDataTTL())
	}
	if builder.transientState == nil {
		if transient, ok := builder.stateDataStore.(TransientStateStore); ok {
			builder.transientState = transient
		}
	}
	if builder.replayLedger == nil {
		builder.replayLedger = NewMemoryReplayLedger(defaultReplayClaimTTL)
	}

	processor := &Processor{
		Lifecycle: builder.lifecycle,
		Orders:    builder.orders,
		History:   builder.history,
		Vault:     builder.vault,
		StateData: builder.transientState,
		Quotes:    builder.quotes,
		Events:    builder.eventStore,
		Methods:   builder.methods,
		Logger:    logger,
		Now:       builder.now,
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		methods:           builder.methods,
		processor:         processor,
		lifecycle:         builder.lifecycle,
		orders:            builder.orders,
		orderLoader:       builder.orderLoader,
		history:           builder.history,
		vault:             builder.vault,
		quotes:            builder.quotes,
		stateDataStore:    builder.stateDataStore,
		transientState:    builder.transientState,
		eventStore:        builder.eventStore,
		replayLedger:      builder.replayLedger,
		now:               builder.now,
	}, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		MethodRegistry:    s.methods,
		OrderLifecycle:    s.lifecycle,
		OrderRepository:   s.orders,
		OrderLoader:       s.orderLoader,
		HistoryLog:        s.history,
		VaultRecorder:     s.vault,
		QuoteDisabler:     s.quotes,
		StateDataStore:    s.stateDataStore,
		PaymentEventStore: s.eventStore,
		ReplayLedger:      s.replayLedger,
	}
}

// ProcessResponse runs the payment response pipeline against the supplied
// order and reports the storefront-facing outcome.
func (s *Service) ProcessResponse(ctx context.Context, req ProcessResponseRequest) (result ProcessResponseResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"order_id":     req.Order.ID,
		"increment_id": req.Order.IncrementID,
		"quote_id":     req.Order.QuoteID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "process_response", err, fields)
	}()

	if s == nil || s.processor == nil {
		err = fmt.Errorf("core: service is not configured")
		return ProcessResponseResult{}, err
	}
	raw, ok := req.Response.ResolveResultCode()
	if !ok {
		err = s.mapError(ErrInvalidResponse)
		return ProcessResponseResult{}, err
	}
	fields["result_code"] = raw

	accepted, processErr := s.processor.Process(ctx, req.Response, req.Order)
	if processErr != nil {
		err = s.mapError(processErr)
		return ProcessResponseResult{}, err
	}

	code, known := ParseResultCode(raw)
	if !known {
		code = ResultCodeError
	}
	return ProcessResponseResult{Accepted: accepted, ResultCode: code}, nil
}

// NormalizeResponse reduces a gateway response to the storefront shape
// without touching any order state.
func (s *Service) NormalizeResponse(ctx context.Context, resp GatewayResponse) NormalizedResponse {
	startedAt := time.Now().UTC()
	normalized := NormalizeResponse(resp)
	fields := map[string]any{"result_code": string(normalized.ResultCode)}
	s.observeOperation(ctx, startedAt, "normalize_response", nil, fields)
	return normalized
}

// SaveStateData stores the serialized checkout state for a quote and
// returns the stored record.
func (s *Service) SaveStateData(ctx context.Context, req SaveStateDataRequest) (record StateData, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"quote_id": req.QuoteID}
	defer func() {
		s.observeOperation(ctx, startedAt, "save_state_data", err, fields)
	}()

	if s == nil || s.stateDataStore == nil {
		err = fmt.Errorf("core: state data store is not configured")
		return StateData{}, err
	}
	record, err = s.stateDataStore.Save(ctx, StateData{QuoteID: req.QuoteID, Payload: req.Payload})
	if err != nil {
		err = s.mapError(err)
		return StateData{}, err
	}
	return record, nil
}

// LoadStateData returns the stored checkout state for a quote.
func (s *Service) LoadStateData(ctx context.Context, quoteID string) (record StateData, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"quote_id": quoteID}
	defer func() {
		s.observeOperation(ctx, startedAt, "load_state_data", err, fields)
	}()

	if s == nil || s.stateDataStore == nil {
		err = fmt.Errorf("core: state data store is not configured")
		return StateData{}, err
	}
	if strings.TrimSpace(quoteID) == "" {
		err = s.mapError(fmt.Errorf("core: quote id is required"))
		return StateData{}, err
	}
	record, err = s.stateDataStore.Get(ctx, quoteID)
	if err != nil {
		err = s.mapError(err)
		return StateData{}, err
	}
	return record, nil
}

// RemoveStateData deletes the stored checkout state for a quote. Removing
// a quote with no stored state is not an error.
func (s *Service) RemoveStateData(ctx context.Context, req RemoveStateDataRequest) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"quote_id": req.QuoteID}
	defer func() {
		s.observeOperation(ctx, startedAt, "remove_state_data", err, fields)
	}()

	if s == nil || s.stateDataStore == nil {
		err = fmt.Errorf("core: state data store is not configured")
		return err
	}
	if strings.TrimSpace(req.QuoteID) == "" {
		err = s.mapError(fmt.Errorf("core: quote id is required"))
		return err
	}
	if removeErr := s.stateDataStore.Remove(ctx, req.QuoteID); removeErr != nil {
		err = s.mapError(removeErr)
		return err
	}
	return nil
}

// RecordVaultDetails extracts stored payment method details from a gateway
// response and hands them to the vault recorder.
func (s *Service) RecordVaultDetails(ctx context.Context, order Order, resp GatewayResponse) (details RecurringDetails, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"order_id": order.ID, "increment_id": order.IncrementID}
	defer func() {
		s.observeOperation(ctx, startedAt, "record_vault_details", err, fields)
	}()

	if s == nil || s.vault == nil {
		err = fmt.Errorf("core: vault recorder is not configured")
		return RecurringDetails{}, err
	}
	details = ExtractRecurringDetails(resp)
	if !details.HasToken() {
		err = s.mapError(fmt.Errorf("core: response carries no stored payment method details"))
		return RecurringDetails{}, err
	}
	if recordErr := s.vault.RecordRecurringDetails(ctx, order, details); recordErr != nil {
		err = s.mapError(recordErr)
		return RecurringDetails{}, err
	}
	return details, nil
}

// ListPaymentEvents pages through recorded payment events.
func (s *Service) ListPaymentEvents(ctx context.Context, filter PaymentEventFilter) (page PaymentEventPage, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	if strings.TrimSpace(filter.IncrementID) != "" {
		fields["increment_id"] = filter.IncrementID
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "list_payment_events", err, fields)
	}()

	if s == nil || s.eventStore == nil {
		err = fmt.Errorf("core: payment event store is not configured")
		return PaymentEventPage{}, err
	}
	page, err = s.eventStore.List(ctx, filter)
	if err != nil {
		err = s.mapError(err)
		return PaymentEventPage{}, err
	}
	return page, nil
}

// Processor exposes the response pipeline for callers that bridge their
// own transport, such as the webhook handler.
func (s *Service) Processor() *Processor {
	if s == nil {
		return nil
	}
	return s.processor
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
