package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type stateDataRecord struct {
	bun.BaseModel `bun:"table:checkout_state_data,alias:csd"`

	ID        string     `bun:"id,pk"`
	QuoteID   string     `bun:"quote_id,notnull"`
	Payload   string     `bun:"payload,notnull"`
	ExpiresAt *time.Time `bun:"expires_at,nullzero"`
	CreatedAt time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type paymentEventRecord struct {
	bun.BaseModel `bun:"table:checkout_payment_events,alias:cpe"`

	ID            string    `bun:"id,pk"`
	OrderID       string    `bun:"order_id,notnull"`
	IncrementID   string    `bun:"increment_id,notnull"`
	QuoteID       string    `bun:"quote_id"`
	ResultCode    string    `bun:"result_code,notnull"`
	Accepted      bool      `bun:"accepted,notnull"`
	Comment       string    `bun:"comment"`
	PSPReference  string    `bun:"psp_reference"`
	PaymentMethod string    `bun:"payment_method"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type notificationRecord struct {
	bun.BaseModel `bun:"table:checkout_notifications,alias:cn"`

	ID          string     `bun:"id,pk"`
	Source      string     `bun:"source,notnull"`
	DeliveryID  string     `bun:"delivery_id,notnull"`
	Status      string     `bun:"status,notnull"`
	Attempts    int        `bun:"attempts,notnull"`
	Payload     []byte     `bun:"payload"`
	LastError   string     `bun:"last_error"`
	NextRetryAt *time.Time `bun:"next_retry_at,nullzero"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
