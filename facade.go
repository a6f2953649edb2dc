package checkout

import (
	"fmt"
	"reflect"

	checkoutcommand "github.com/goliatone/go-checkout/command"
	checkoutquery "github.com/goliatone/go-checkout/query"
)

// CommandQueryService is the service surface the facade builds handlers
// around. The core Service satisfies it.
type CommandQueryService interface {
	checkoutcommand.MutatingService
	checkoutquery.StateDataReader
	checkoutquery.PaymentEventReader
}

type Commands struct {
	ProcessPaymentResponse *checkoutcommand.ProcessPaymentResponseCommand
	ProcessNotification    *checkoutcommand.ProcessNotificationCommand
	SaveStateData          *checkoutcommand.SaveStateDataCommand
	RemoveStateData        *checkoutcommand.RemoveStateDataCommand
	RecordVaultDetails     *checkoutcommand.RecordVaultDetailsCommand
}

type Queries struct {
	LoadStateData     *checkoutquery.LoadStateDataQuery
	GetNotification   *checkoutquery.GetNotificationQuery
	ListPaymentEvents *checkoutquery.ListPaymentEventsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	notificationProcessor checkoutcommand.NotificationProcessor
	notificationReader    checkoutquery.NotificationReader
}

// WithNotificationProcessor wires the webhook processor behind the process
// notification command. Without it the command reports a dependency error
// when executed; notification verification stays a host decision.
func WithNotificationProcessor(processor checkoutcommand.NotificationProcessor) FacadeOption {
	return func(options *facadeOptions) {
		options.notificationProcessor = processor
	}
}

// WithNotificationReader wires the delivery record lookup behind the get
// notification query.
func WithNotificationReader(reader checkoutquery.NotificationReader) FacadeOption {
	return func(options *facadeOptions) {
		options.notificationReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("checkout: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.notificationReader
	if reader == nil {
		reader = resolveNotificationReader(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		ProcessPaymentResponse: checkoutcommand.NewProcessPaymentResponseCommand(service),
		ProcessNotification:    checkoutcommand.NewProcessNotificationCommand(cfg.notificationProcessor),
		SaveStateData:          checkoutcommand.NewSaveStateDataCommand(service),
		RemoveStateData:        checkoutcommand.NewRemoveStateDataCommand(service),
		RecordVaultDetails:     checkoutcommand.NewRecordVaultDetailsCommand(service),
	}
	facade.queries = Queries{
		LoadStateData:     checkoutquery.NewLoadStateDataQuery(service),
		GetNotification:   checkoutquery.NewGetNotificationQuery(reader),
		ListPaymentEvents: checkoutquery.NewListPaymentEventsQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveNotificationReader finds a delivery record reader without the root
// package depending on the sql store: the service itself may implement the
// reader, or its repository factory may expose a NotificationStore method.
func resolveNotificationReader(service CommandQueryService) checkoutquery.NotificationReader {
	if service == nil {
		return nil
	}
	if reader, ok := service.(checkoutquery.NotificationReader); ok {
		return reader
	}
	provider, ok := service.(interface {
		Dependencies() ServiceDependencies
	})
	if !ok {
		return nil
	}
	deps := provider.Dependencies()
	if deps.RepositoryFactory == nil {
		return nil
	}

	factoryValue := reflect.ValueOf(deps.RepositoryFactory)
	if !factoryValue.IsValid() {
		return nil
	}
	if factoryValue.Kind() == reflect.Ptr && factoryValue.IsNil() {
		return nil
	}
	method := factoryValue.MethodByName("NotificationStore")
	if !method.IsValid() || method.Type().NumIn() != 0 || method.Type().NumOut() != 1 {
		return nil
	}

	results, ok := safeReflectCall(method)
	if !ok {
		return nil
	}
	if len(results) != 1 {
		return nil
	}
	candidate := results[0]
	if !candidate.IsValid() {
		return nil
	}
	if candidate.Kind() == reflect.Ptr && candidate.IsNil() {
		return nil
	}
	reader, ok := candidate.Interface().(checkoutquery.NotificationReader)
	if !ok {
		return nil
	}
	return reader
}

func safeReflectCall(method reflect.Value) (_ []reflect.Value, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return method.Call(nil), true
}
