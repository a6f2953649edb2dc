package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-checkout/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PaymentEventStore keeps the append-only audit trail of processed gateway
// responses. Entries are never updated after insert.
type PaymentEventStore struct {
	db   *bun.DB
	repo repository.Repository[*paymentEventRecord]
}

func NewPaymentEventStore(db *bun.DB) (*PaymentEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*paymentEventRecord](db, paymentEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid payment event repository wiring: %w", err)
		}
	}
	return &PaymentEventStore{db: db, repo: repo}, nil
}

func (s *PaymentEventStore) Append(ctx context.Context, event core.PaymentEvent) (core.PaymentEvent, error) {
	if s == nil || s.repo == nil {
		return core.PaymentEvent{}, fmt.Errorf("sqlstore: payment event store is not configured")
	}
	if strings.TrimSpace(event.IncrementID) == "" {
		return core.PaymentEvent{}, fmt.Errorf("sqlstore: payment event increment id is required")
	}
	if strings.TrimSpace(string(event.ResultCode)) == "" {
		return core.PaymentEvent{}, fmt.Errorf("sqlstore: payment event result code is required")
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	record := &paymentEventRecord{
		ID:            uuid.NewString(),
		OrderID:       strings.TrimSpace(event.OrderID),
		IncrementID:   strings.TrimSpace(event.IncrementID),
		QuoteID:       strings.TrimSpace(event.QuoteID),
		ResultCode:    string(event.ResultCode),
		Accepted:      event.Accepted,
		Comment:       event.Comment,
		PSPReference:  strings.TrimSpace(event.PSPReference),
		PaymentMethod: strings.TrimSpace(event.PaymentMethod),
		CreatedAt:     createdAt,
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.PaymentEvent{}, err
	}
	return paymentEventToDomain(created), nil
}

func (s *PaymentEventStore) List(ctx context.Context, filter core.PaymentEventFilter) (core.PaymentEventPage, error) {
	if s == nil || s.repo == nil {
		return core.PaymentEventPage{}, fmt.Errorf("sqlstore: payment event store is not configured")
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 25
	}
	offset := (page - 1) * perPage

	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	if incrementID := strings.TrimSpace(filter.IncrementID); incrementID != "" {
		selectors = append(selectors, repository.SelectBy("increment_id", "=", incrementID))
	}
	if pspReference := strings.TrimSpace(filter.PSPReference); pspReference != "" {
		selectors = append(selectors, repository.SelectBy("psp_reference", "=", pspReference))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.PaymentEventPage{}, err
	}
	items := make([]core.PaymentEvent, 0, len(records))
	for _, record := range records {
		items = append(items, paymentEventToDomain(record))
	}
	return core.PaymentEventPage{
		Items:   items,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	}, nil
}

func paymentEventToDomain(record *paymentEventRecord) core.PaymentEvent {
	if record == nil {
		return core.PaymentEvent{}
	}
	return core.PaymentEvent{
		ID:            record.ID,
		OrderID:       record.OrderID,
		IncrementID:   record.IncrementID,
		QuoteID:       record.QuoteID,
		ResultCode:    core.ResultCode(record.ResultCode),
		Accepted:      record.Accepted,
		Comment:       record.Comment,
		PSPReference:  record.PSPReference,
		PaymentMethod: record.PaymentMethod,
		CreatedAt:     record.CreatedAt,
	}
}
