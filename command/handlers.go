package command

import (
	"context"

	"github.com/goliatone/go-checkout/core"
	"github.com/goliatone/go-checkout/webhooks"
	gocmd "github.com/goliatone/go-command"
)

type MutatingService interface {
	ProcessResponse(ctx context.Context, req core.ProcessResponseRequest) (core.ProcessResponseResult, error)
	SaveStateData(ctx context.Context, req core.SaveStateDataRequest) (core.StateData, error)
	RemoveStateData(ctx context.Context, req core.RemoveStateDataRequest) error
	RecordVaultDetails(ctx context.Context, order core.Order, resp core.GatewayResponse) (core.RecurringDetails, error)
}

type NotificationProcessor interface {
	Process(ctx context.Context, req webhooks.Request) (webhooks.Result, error)
}

type ProcessPaymentResponseCommand struct {
	service MutatingService
}

func NewProcessPaymentResponseCommand(service MutatingService) *ProcessPaymentResponseCommand {
	return &ProcessPaymentResponseCommand{service: service}
}

func (c *ProcessPaymentResponseCommand) Execute(ctx context.Context, msg ProcessPaymentResponseMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: checkout service is required")
	}
	out, err := c.service.ProcessResponse(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ProcessNotificationCommand struct {
	processor NotificationProcessor
}

func NewProcessNotificationCommand(processor NotificationProcessor) *ProcessNotificationCommand {
	return &ProcessNotificationCommand{processor: processor}
}

func (c *ProcessNotificationCommand) Execute(ctx context.Context, msg ProcessNotificationMessage) error {
	if c == nil || c.processor == nil {
		return commandDependencyError("command: notification processor is required")
	}
	// The result carries the acknowledgement the transport must answer with
	// even when some items failed, so it is stored before the error check.
	out, err := c.processor.Process(ctx, msg.Request)
	storeResult(ctx, out)
	return err
}

type SaveStateDataCommand struct {
	service MutatingService
}

func NewSaveStateDataCommand(service MutatingService) *SaveStateDataCommand {
	return &SaveStateDataCommand{service: service}
}

func (c *SaveStateDataCommand) Execute(ctx context.Context, msg SaveStateDataMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: checkout service is required")
	}
	out, err := c.service.SaveStateData(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RemoveStateDataCommand struct {
	service MutatingService
}

func NewRemoveStateDataCommand(service MutatingService) *RemoveStateDataCommand {
	return &RemoveStateDataCommand{service: service}
}

func (c *RemoveStateDataCommand) Execute(ctx context.Context, msg RemoveStateDataMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: checkout service is required")
	}
	return c.service.RemoveStateData(ctx, msg.Request)
}

type RecordVaultDetailsCommand struct {
	service MutatingService
}

func NewRecordVaultDetailsCommand(service MutatingService) *RecordVaultDetailsCommand {
	return &RecordVaultDetailsCommand{service: service}
}

func (c *RecordVaultDetailsCommand) Execute(ctx context.Context, msg RecordVaultDetailsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: checkout service is required")
	}
	out, err := c.service.RecordVaultDetails(ctx, msg.Order, msg.Response)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
