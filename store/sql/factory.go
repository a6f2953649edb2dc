package sqlstore

import (
	"fmt"
	"time"

	"github.com/goliatone/go-checkout/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

// DefaultStateDataTTL bounds how long an abandoned checkout session keeps
// its state data row before the prune job may remove it.
const DefaultStateDataTTL = 24 * time.Hour

type RepositoryFactory struct {
	db *bun.DB

	stateDataTTL   time.Duration
	stateDataCache repositorycache.CacheService

	stateDataStore       *StateDataStore
	cachedStateDataStore *CachedStateDataStore
	paymentEventStore    *PaymentEventStore
	notificationStore    *NotificationStore
}

type FactoryOption func(*RepositoryFactory)

// WithStateDataTTL overrides how long saved state data stays readable.
// Zero or negative disables expiry.
func WithStateDataTTL(ttl time.Duration) FactoryOption {
	return func(f *RepositoryFactory) {
		f.stateDataTTL = ttl
	}
}

// WithStateDataCache fronts state data reads with the given cache service.
func WithStateDataCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.stateDataCache = cacheService
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{
		stateDataTTL: DefaultStateDataTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.stateDataStore != nil && f.paymentEventStore != nil && f.notificationStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

// StateDataStore returns the cached store when a cache service was
// configured, the plain SQL store otherwise.
func (f *RepositoryFactory) StateDataStore() core.StateDataStore {
	if f == nil {
		return nil
	}
	if f.cachedStateDataStore != nil {
		return f.cachedStateDataStore
	}
	if f.stateDataStore == nil {
		return nil
	}
	return f.stateDataStore
}

// BaseStateDataStore returns the SQL store behind any cache wrapper. The
// state data prune job runs against it.
func (f *RepositoryFactory) BaseStateDataStore() *StateDataStore {
	if f == nil {
		return nil
	}
	return f.stateDataStore
}

func (f *RepositoryFactory) PaymentEventStore() core.PaymentEventStore {
	if f == nil || f.paymentEventStore == nil {
		return nil
	}
	return f.paymentEventStore
}

func (f *RepositoryFactory) NotificationStore() *NotificationStore {
	if f == nil {
		return nil
	}
	return f.notificationStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	stateDataStore, err := NewStateDataStore(f.db, f.stateDataTTL)
	if err != nil {
		return err
	}
	f.stateDataStore = stateDataStore

	if f.stateDataCache != nil {
		cachedStore, err := NewCachedStateDataStore(stateDataStore, f.stateDataCache)
		if err != nil {
			return err
		}
		f.cachedStateDataStore = cachedStore
	}

	paymentEventStore, err := NewPaymentEventStore(f.db)
	if err != nil {
		return err
	}
	f.paymentEventStore = paymentEventStore

	notificationStore, err := NewNotificationStore(f.db)
	if err != nil {
		return err
	}
	f.notificationStore = notificationStore

	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
