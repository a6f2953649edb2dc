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

// StateDataStore persists checkout session state data keyed by quote id.
// Rows carry an absolute expiry; reads treat expired rows as absent and the
// prune job removes them.
type StateDataStore struct {
	db   *bun.DB
	repo repository.Repository[*stateDataRecord]
	ttl  time.Duration
	now  func() time.Time
}

func NewStateDataStore(db *bun.DB, ttl time.Duration) (*StateDataStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*stateDataRecord](db, stateDataHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid state data repository wiring: %w", err)
		}
	}
	if ttl < 0 {
		ttl = 0
	}
	return &StateDataStore{
		db:   db,
		repo: repo,
		ttl:  ttl,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *StateDataStore) Save(ctx context.Context, data core.StateData) (core.StateData, error) {
	if s == nil || s.repo == nil {
		return core.StateData{}, fmt.Errorf("sqlstore: state data store is not configured")
	}
	quoteID := strings.TrimSpace(data.QuoteID)
	if quoteID == "" {
		return core.StateData{}, fmt.Errorf("sqlstore: quote id is required")
	}
	if strings.TrimSpace(data.Payload) == "" {
		return core.StateData{}, fmt.Errorf("sqlstore: state data payload is required")
	}

	now := s.now()
	existing, err := s.findByQuoteID(ctx, quoteID)
	if err != nil && err != core.ErrStateDataNotFound {
		return core.StateData{}, err
	}

	if existing != nil {
		existing.Payload = data.Payload
		existing.ExpiresAt = s.expiryFrom(now)
		existing.UpdatedAt = now
		updated, updateErr := s.repo.Update(ctx, existing, repository.UpdateByID(existing.ID))
		if updateErr != nil {
			return core.StateData{}, updateErr
		}
		return stateDataToDomain(updated), nil
	}

	record := &stateDataRecord{
		ID:        uuid.NewString(),
		QuoteID:   quoteID,
		Payload:   data.Payload,
		ExpiresAt: s.expiryFrom(now),
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.StateData{}, err
	}
	return stateDataToDomain(created), nil
}

func (s *StateDataStore) Get(ctx context.Context, quoteID string) (core.StateData, error) {
	if s == nil || s.repo == nil {
		return core.StateData{}, fmt.Errorf("sqlstore: state data store is not configured")
	}
	quoteID = strings.TrimSpace(quoteID)
	if quoteID == "" {
		return core.StateData{}, fmt.Errorf("sqlstore: quote id is required")
	}
	record, err := s.findByQuoteID(ctx, quoteID)
	if err != nil {
		return core.StateData{}, err
	}
	if record.ExpiresAt != nil && !s.now().Before(*record.ExpiresAt) {
		return core.StateData{}, core.ErrStateDataNotFound
	}
	return stateDataToDomain(record), nil
}

func (s *StateDataStore) Remove(ctx context.Context, quoteID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: state data store is not configured")
	}
	quoteID = strings.TrimSpace(quoteID)
	if quoteID == "" {
		return fmt.Errorf("sqlstore: quote id is required")
	}
	_, err := s.db.NewDelete().
		Model((*stateDataRecord)(nil)).
		Where("quote_id = ?", quoteID).
		Exec(ctx)
	return err
}

// Clear implements the transient state hook of the response pipeline. The
// result code does not change what is removed.
func (s *StateDataStore) Clear(ctx context.Context, quoteID string, _ core.ResultCode) error {
	return s.Remove(ctx, quoteID)
}

// PruneExpired removes rows whose expiry elapsed and reports how many were
// deleted. The state data prune job drives it.
func (s *StateDataStore) PruneExpired(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: state data store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*stateDataRecord)(nil)).
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.now()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func (s *StateDataStore) findByQuoteID(ctx context.Context, quoteID string) (*stateDataRecord, error) {
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("quote_id", "=", quoteID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, core.ErrStateDataNotFound
	}
	return records[0], nil
}

func (s *StateDataStore) expiryFrom(now time.Time) *time.Time {
	if s.ttl <= 0 {
		return nil
	}
	expiresAt := now.Add(s.ttl)
	return &expiresAt
}

func stateDataToDomain(record *stateDataRecord) core.StateData {
	if record == nil {
		return core.StateData{}
	}
	return core.StateData{
		ID:        record.ID,
		QuoteID:   record.QuoteID,
		Payload:   record.Payload,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}
