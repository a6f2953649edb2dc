package webhooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrDeliveryNotFound reports a lookup for a delivery the ledger never saw.
var ErrDeliveryNotFound = errors.New("webhooks: delivery record not found")

const defaultLedgerMaxEntries = 8192

// MemoryDeliveryLedger keeps delivery records in process. It backs tests and
// single-instance deployments; durable deployments use the SQL store.
type MemoryDeliveryLedger struct {
	mu         sync.Mutex
	maxEntries int
	records    map[string]*DeliveryRecord
	Now        func() time.Time
}

func NewMemoryDeliveryLedger() *MemoryDeliveryLedger {
	return &MemoryDeliveryLedger{
		maxEntries: defaultLedgerMaxEntries,
		records:    map[string]*DeliveryRecord{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (l *MemoryDeliveryLedger) Reserve(_ context.Context, source, deliveryID string, payload []byte) (DeliveryRecord, bool, error) {
	source, deliveryID, err := normalizeLedgerKey(source, deliveryID)
	if err != nil {
		return DeliveryRecord{}, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := ledgerKey(source, deliveryID)
	if existing, ok := l.records[key]; ok {
		return *existing, true, nil
	}

	now := l.now()
	record := &DeliveryRecord{
		ID:         uuid.NewString(),
		Source:     source,
		DeliveryID: deliveryID,
		Status:     DeliveryStatusPending,
		Attempts:   1,
		Payload:    append([]byte(nil), payload...),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	l.enforceCapacityLocked(1)
	l.records[key] = record
	return *record, false, nil
}

func (l *MemoryDeliveryLedger) Get(_ context.Context, source, deliveryID string) (DeliveryRecord, error) {
	source, deliveryID, err := normalizeLedgerKey(source, deliveryID)
	if err != nil {
		return DeliveryRecord{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[ledgerKey(source, deliveryID)]
	if !ok {
		return DeliveryRecord{}, ErrDeliveryNotFound
	}
	return *record, nil
}

func (l *MemoryDeliveryLedger) MarkProcessed(_ context.Context, source, deliveryID string) error {
	source, deliveryID, err := normalizeLedgerKey(source, deliveryID)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[ledgerKey(source, deliveryID)]
	if !ok {
		return ErrDeliveryNotFound
	}
	record.Status = DeliveryStatusProcessed
	record.LastError = ""
	record.NextRetry = nil
	record.UpdatedAt = l.now()
	return nil
}

func (l *MemoryDeliveryLedger) MarkRetry(_ context.Context, source, deliveryID string, cause error, nextAttemptAt time.Time, maxAttempts int) error {
	source, deliveryID, err := normalizeLedgerKey(source, deliveryID)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[ledgerKey(source, deliveryID)]
	if !ok {
		return ErrDeliveryNotFound
	}
	record.Attempts++
	record.UpdatedAt = l.now()
	if cause != nil {
		record.LastError = cause.Error()
	}
	if maxAttempts > 0 && record.Attempts >= maxAttempts {
		record.Status = DeliveryStatusDead
		record.NextRetry = nil
		return nil
	}
	record.Status = DeliveryStatusRetryReady
	next := nextAttemptAt.UTC()
	record.NextRetry = &next
	return nil
}

func (l *MemoryDeliveryLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *MemoryDeliveryLedger) enforceCapacityLocked(incoming int) {
	if l.maxEntries <= 0 {
		return
	}
	target := l.maxEntries - incoming
	if target < 0 {
		target = 0
	}
	for len(l.records) > target {
		l.evictOldestLocked()
	}
}

func (l *MemoryDeliveryLedger) evictOldestLocked() {
	var oldestKey string
	var oldestSeen time.Time
	for key, record := range l.records {
		if oldestKey == "" || record.UpdatedAt.Before(oldestSeen) {
			oldestKey = key
			oldestSeen = record.UpdatedAt
		}
	}
	if oldestKey == "" {
		return
	}
	delete(l.records, oldestKey)
}

func ledgerKey(source, deliveryID string) string {
	return source + "::" + deliveryID
}

func normalizeLedgerKey(source, deliveryID string) (string, string, error) {
	source = strings.TrimSpace(source)
	deliveryID = strings.TrimSpace(deliveryID)
	if source == "" {
		return "", "", fmt.Errorf("webhooks: delivery source is required")
	}
	if deliveryID == "" {
		return "", "", fmt.Errorf("webhooks: delivery id is required")
	}
	return source, deliveryID, nil
}

var _ DeliveryLedger = (*MemoryDeliveryLedger)(nil)
