package query

import (
	"github.com/goliatone/go-checkout/core"
	"github.com/goliatone/go-checkout/webhooks"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[LoadStateDataMessage, core.StateData]            = (*LoadStateDataQuery)(nil)
	_ gocmd.Querier[GetNotificationMessage, webhooks.DeliveryRecord] = (*GetNotificationQuery)(nil)
	_ gocmd.Querier[ListPaymentEventsMessage, core.PaymentEventPage] = (*ListPaymentEventsQuery)(nil)
)
