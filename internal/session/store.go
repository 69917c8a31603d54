package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status of a reconciliation session. PREVIEWED is the only non-terminal
// state; CONFIRMED and EXPIRED are terminal.
type Status string

const (
	StatusPreviewed Status = "PREVIEWED"
	StatusConfirmed Status = "CONFIRMED"
	StatusExpired   Status = "EXPIRED"
)

// Record is one keyed session. Payload carries feature-specific state (the
// reconciliation preview) and is opaque to the store.
type Record struct {
	ID        string
	UserID    string
	Status    Status
	CreatedAt time.Time
	ExpiresAt time.Time
	Payload   interface{}
}

// Store is the session storage contract. The in-memory implementation below
// is the default; the interface keeps the backing store swappable (e.g. a
// distributed cache) without touching workflow logic.
type Store interface {
	Put(userID string, ttl time.Duration, payload interface{}) *Record
	Get(id string) (*Record, bool)
	CompareAndSwapStatus(id string, from, to Status) bool
	Expire(id string)
}

type MemoryStore struct {
	records map[string]*Record
	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		stopCh:  make(chan struct{}),
	}
}

func (m *MemoryStore) Put(userID string, ttl time.Duration, payload interface{}) *Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	rec := &Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    StatusPreviewed,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Payload:   payload,
	}
	m.records[rec.ID] = rec
	return rec
}

// Get returns a copy of the record so callers never observe concurrent
// status flips mid-read. A PREVIEWED record past its TTL is flipped to
// EXPIRED before being returned.
func (m *MemoryStore) Get(id string) (*Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, false
	}
	m.expireLocked(rec)
	cp := *rec
	return &cp, true
}

// CompareAndSwapStatus atomically transitions the session status. Exactly
// one of any number of concurrent callers with the same (from, to) pair
// succeeds. A lapsed TTL is applied before the swap, so a CAS from
// PREVIEWED on an expired session fails.
func (m *MemoryStore) CompareAndSwapStatus(id string, from, to Status) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return false
	}
	m.expireLocked(rec)
	if rec.Status != from {
		return false
	}
	rec.Status = to
	return true
}

func (m *MemoryStore) Expire(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[id]; ok && rec.Status == StatusPreviewed {
		rec.Status = StatusExpired
	}
}

func (m *MemoryStore) expireLocked(rec *Record) {
	if rec.Status == StatusPreviewed && time.Now().After(rec.ExpiresAt) {
		rec.Status = StatusExpired
	}
}

// StartCleaner launches a background sweep that drops terminal records a
// full period after they expired. Confirmed sessions are kept for one extra
// sweep so client retries still resolve idempotently.
func (m *MemoryStore) StartCleaner(period time.Duration) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.sweep(period)
			}
		}
	}()
}

func (m *MemoryStore) sweep(grace time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-grace)
	for id, rec := range m.records {
		m.expireLocked(rec)
		if rec.Status != StatusPreviewed && rec.ExpiresAt.Before(cutoff) {
			delete(m.records, id)
		}
	}
}

func (m *MemoryStore) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}
