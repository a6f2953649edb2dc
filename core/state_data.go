package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultStateDataTTL = 60 * time.Minute

// MemoryStateDataStore keeps checkout state data in process memory, one
// record per quote. Suited for tests and single-instance deployments; the
// sql store is the durable implementation.
type MemoryStateDataStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryStateDataEntry
	Now     func() time.Time
}

type memoryStateDataEntry struct {
	record    StateData
	expiresAt time.Time
}

func NewMemoryStateDataStore(ttl time.Duration) *MemoryStateDataStore {
	if ttl <= 0 {
		ttl = defaultStateDataTTL
	}
	return &MemoryStateDataStore{
		ttl:     ttl,
		entries: map[string]memoryStateDataEntry{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemoryStateDataStore) Save(_ context.Context, data StateData) (StateData, error) {
	if s == nil {
		return StateData{}, fmt.Errorf("core: state data store is not configured")
	}
	quoteID := strings.TrimSpace(data.QuoteID)
	if quoteID == "" {
		return StateData{}, fmt.Errorf("core: quote id is required")
	}
	if strings.TrimSpace(data.Payload) == "" {
		return StateData{}, fmt.Errorf("core: state data payload is required")
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneExpiredLocked(now)

	existing, ok := s.entries[quoteID]
	if ok {
		data.ID = existing.record.ID
		data.CreatedAt = existing.record.CreatedAt
	} else {
		data.ID = uuid.NewString()
		data.CreatedAt = now
	}
	data.QuoteID = quoteID
	data.UpdatedAt = now
	s.entries[quoteID] = memoryStateDataEntry{
		record:    data,
		expiresAt: now.Add(s.ttl),
	}
	return data, nil
}

func (s *MemoryStateDataStore) Get(_ context.Context, quoteID string) (StateData, error) {
	if s == nil {
		return StateData{}, fmt.Errorf("core: state data store is not configured")
	}
	quoteID = strings.TrimSpace(quoteID)
	if quoteID == "" {
		return StateData{}, fmt.Errorf("core: quote id is required")
	}

	now := s.now()
	s.mu.Lock()
	entry, ok := s.entries[quoteID]
	s.mu.Unlock()

	if !ok || (!entry.expiresAt.IsZero() && now.After(entry.expiresAt)) {
		return StateData{}, ErrStateDataNotFound
	}
	return entry.record, nil
}

func (s *MemoryStateDataStore) Remove(_ context.Context, quoteID string) error {
	if s == nil {
		return fmt.Errorf("core: state data store is not configured")
	}
	quoteID = strings.TrimSpace(quoteID)
	if quoteID == "" {
		return fmt.Errorf("core: quote id is required")
	}

	s.mu.Lock()
	delete(s.entries, quoteID)
	s.mu.Unlock()
	return nil
}

// Clear satisfies TransientStateStore; the result code only matters to the
// caller's logging, removal is by quote.
func (s *MemoryStateDataStore) Clear(ctx context.Context, quoteID string, _ ResultCode) error {
	return s.Remove(ctx, quoteID)
}

func (s *MemoryStateDataStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *MemoryStateDataStore) pruneExpiredLocked(now time.Time) {
	for quoteID, entry := range s.entries {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(s.entries, quoteID)
		}
	}
}

var (
	_ StateDataStore      = (*MemoryStateDataStore)(nil)
	_ TransientStateStore = (*MemoryStateDataStore)(nil)
)
