package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultReplayClaimTTL = 10 * time.Minute
const defaultReplayLedgerMaxEntries = 8192

// ReplayClaimKey builds the dedupe key for one notification item. Success
// is part of the key because the gateway sends AUTHORISATION twice, once
// failed and once successful, for retried payments.
func ReplayClaimKey(pspReference, eventCode string, success bool) string {
	return strings.TrimSpace(pspReference) + "::" +
		strings.TrimSpace(eventCode) + "::" +
		strconv.FormatBool(success)
}

// MemoryReplayLedger is the in-process duplicate guard for notification
// processing. A claim key held and unexpired means the same notification is
// already being handled. Capacity is bounded; claims closest to expiry are
// evicted first.
type MemoryReplayLedger struct {
	mu         sync.Mutex
	defaultTTL time.Duration
	maxEntries int
	claims     map[string]time.Time
	Now        func() time.Time
}

func NewMemoryReplayLedger(defaultTTL time.Duration) *MemoryReplayLedger {
	return NewMemoryReplayLedgerWithLimits(defaultTTL, defaultReplayLedgerMaxEntries)
}

func NewMemoryReplayLedgerWithLimits(defaultTTL time.Duration, maxEntries int) *MemoryReplayLedger {
	ledger := &MemoryReplayLedger{
		defaultTTL: defaultTTL,
		maxEntries: maxEntries,
		claims:     make(map[string]time.Time),
		Now:        func() time.Time { return time.Now().UTC() },
	}
	if ledger.defaultTTL <= 0 {
		ledger.defaultTTL = defaultReplayClaimTTL
	}
	if ledger.maxEntries <= 0 {
		ledger.maxEntries = defaultReplayLedgerMaxEntries
	}
	return ledger
}

// Claim reserves key for ttl. It returns false when an unexpired claim for
// the same key already exists.
func (l *MemoryReplayLedger) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if l == nil {
		return false, fmt.Errorf("core: replay ledger is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("core: replay key is required")
	}
	if ttl <= 0 {
		ttl = l.defaultTTL
	}

	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.dropExpired(now)
	if expiresAt, held := l.claims[key]; held && now.Before(expiresAt) {
		return false, nil
	}
	for len(l.claims) >= l.maxEntries {
		l.evictNearestExpiry()
	}
	l.claims[key] = now.Add(ttl)
	return true, nil
}

// PurgeExpired removes settled claims and reports how many were dropped.
func (l *MemoryReplayLedger) PurgeExpired(_ context.Context) (int, error) {
	if l == nil {
		return 0, fmt.Errorf("core: replay ledger is not configured")
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	before := len(l.claims)
	l.dropExpired(now)
	return before - len(l.claims), nil
}

func (l *MemoryReplayLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *MemoryReplayLedger) dropExpired(now time.Time) {
	for key, expiresAt := range l.claims {
		if !now.Before(expiresAt) {
			delete(l.claims, key)
		}
	}
}

func (l *MemoryReplayLedger) evictNearestExpiry() {
	var victim string
	var victimExpiry time.Time
	for key, expiry := range l.claims {
		if victim == "" || expiry.Before(victimExpiry) {
			victim, victimExpiry = key, expiry
		}
	}
	if victim != "" {
		delete(l.claims, victim)
	}
}

var _ ReplayLedger = (*MemoryReplayLedger)(nil)
