package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-checkout/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const stateDataCacheKeyPrefix = "go-checkout::state_data::v1"

// CachedStateDataStore fronts a state data store with a read-through cache.
// Writes and removals go to the base store first and then invalidate the
// cached entry, so readers never observe a payload the base store dropped.
type CachedStateDataStore struct {
	base  core.StateDataStore
	cache repositorycache.CacheService
}

func NewCachedStateDataStore(
	base core.StateDataStore,
	cacheService repositorycache.CacheService,
) (*CachedStateDataStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base state data store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: state data cache service is required")
	}
	return &CachedStateDataStore{base: base, cache: cacheService}, nil
}

// StateDataCacheKey returns the deterministic cache key contract for state
// data reads: go-checkout::state_data::v1::<quote_id> with the quote id
// URL-path escaped.
func StateDataCacheKey(quoteID string) (string, error) {
	quoteID = strings.TrimSpace(quoteID)
	if quoteID == "" {
		return "", fmt.Errorf("sqlstore: quote id is required")
	}
	return strings.Join([]string{stateDataCacheKeyPrefix, url.PathEscape(quoteID)}, "::"), nil
}

func (s *CachedStateDataStore) Save(ctx context.Context, data core.StateData) (core.StateData, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.StateData{}, fmt.Errorf("sqlstore: cached state data store is not configured")
	}
	saved, err := s.base.Save(ctx, data)
	if err != nil {
		return core.StateData{}, err
	}
	if err := s.invalidate(ctx, saved.QuoteID); err != nil {
		return core.StateData{}, err
	}
	return saved, nil
}

func (s *CachedStateDataStore) Get(ctx context.Context, quoteID string) (core.StateData, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.StateData{}, fmt.Errorf("sqlstore: cached state data store is not configured")
	}
	quoteID = strings.TrimSpace(quoteID)
	cacheKey, err := StateDataCacheKey(quoteID)
	if err != nil {
		return core.StateData{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.StateData, error) {
		return s.base.Get(ctx, quoteID)
	})
}

func (s *CachedStateDataStore) Remove(ctx context.Context, quoteID string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached state data store is not configured")
	}
	if err := s.base.Remove(ctx, quoteID); err != nil {
		return err
	}
	return s.invalidate(ctx, quoteID)
}

// Clear implements the transient state hook of the response pipeline.
func (s *CachedStateDataStore) Clear(ctx context.Context, quoteID string, _ core.ResultCode) error {
	return s.Remove(ctx, quoteID)
}

func (s *CachedStateDataStore) invalidate(ctx context.Context, quoteID string) error {
	cacheKey, err := StateDataCacheKey(quoteID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

var _ core.StateDataStore = (*CachedStateDataStore)(nil)
var _ core.TransientStateStore = (*CachedStateDataStore)(nil)
