package sqlstore

import (
	"github.com/goliatone/go-checkout/core"
	"github.com/goliatone/go-checkout/webhooks"
)

var (
	_ core.StateDataStore         = (*StateDataStore)(nil)
	_ core.TransientStateStore    = (*StateDataStore)(nil)
	_ core.PaymentEventStore      = (*PaymentEventStore)(nil)
	_ webhooks.DeliveryLedger     = (*NotificationStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
