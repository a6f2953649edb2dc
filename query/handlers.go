package query

import (
	"context"

	"github.com/goliatone/go-checkout/core"
	"github.com/goliatone/go-checkout/webhooks"
)

type StateDataReader interface {
	LoadStateData(ctx context.Context, quoteID string) (core.StateData, error)
}

type NotificationReader interface {
	Get(ctx context.Context, source string, deliveryID string) (webhooks.DeliveryRecord, error)
}

type PaymentEventReader interface {
	ListPaymentEvents(ctx context.Context, filter core.PaymentEventFilter) (core.PaymentEventPage, error)
}

type LoadStateDataQuery struct {
	reader StateDataReader
}

func NewLoadStateDataQuery(reader StateDataReader) *LoadStateDataQuery {
	return &LoadStateDataQuery{reader: reader}
}

func (q *LoadStateDataQuery) Query(ctx context.Context, msg LoadStateDataMessage) (core.StateData, error) {
	if q == nil || q.reader == nil {
		return core.StateData{}, queryDependencyError("query: state data reader is required")
	}
	return q.reader.LoadStateData(ctx, msg.QuoteID)
}

type GetNotificationQuery struct {
	reader NotificationReader
}

func NewGetNotificationQuery(reader NotificationReader) *GetNotificationQuery {
	return &GetNotificationQuery{reader: reader}
}

func (q *GetNotificationQuery) Query(ctx context.Context, msg GetNotificationMessage) (webhooks.DeliveryRecord, error) {
	if q == nil || q.reader == nil {
		return webhooks.DeliveryRecord{}, queryDependencyError("query: notification reader is required")
	}
	return q.reader.Get(ctx, msg.Source, msg.DeliveryID)
}

type ListPaymentEventsQuery struct {
	reader PaymentEventReader
}

func NewListPaymentEventsQuery(reader PaymentEventReader) *ListPaymentEventsQuery {
	return &ListPaymentEventsQuery{reader: reader}
}

func (q *ListPaymentEventsQuery) Query(ctx context.Context, msg ListPaymentEventsMessage) (core.PaymentEventPage, error) {
	if q == nil || q.reader == nil {
		return core.PaymentEventPage{}, queryDependencyError("query: payment event reader is required")
	}
	return q.reader.ListPaymentEvents(ctx, msg.Filter)
}
