package notify

import (
	"context"
	"sync"
	"time"

	"github.com/chanwatch/chanwatch/internal/core/domain"
)

// EntryStore holds pending push retries keyed by (user, device). The
// default store is in-memory and transient; a Redis-backed store in
// internal/infra/redisq provides the durable option.
type EntryStore interface {
	// Get retrieves the entry for a key. Returns (nil, nil) when absent.
	Get(ctx context.Context, key domain.RetryKey) (*domain.RetryEntry, error)

	// Upsert stores an entry, overwriting any prior entry for its key.
	Upsert(ctx context.Context, entry *domain.RetryEntry) error

	// Remove deletes the entry for a key.
	Remove(ctx context.Context, key domain.RetryKey) error

	// Due retrieves all entries with NextRetryAt <= now.
	Due(ctx context.Context, now time.Time) ([]*domain.RetryEntry, error)

	// PurgeOlderThan removes entries whose NextRetryAt is before the
	// cutoff and returns how many were removed.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// Len returns the number of stored entries.
	Len(ctx context.Context) (int, error)
}

// MemoryStore is the default, process-local EntryStore.
type MemoryStore struct {
	entries map[domain.RetryKey]*domain.RetryEntry
	mu      sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[domain.RetryKey]*domain.RetryEntry)}
}

func (s *MemoryStore) Get(ctx context.Context, key domain.RetryKey) (*domain.RetryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	cp := *entry
	return &cp, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, entry *domain.RetryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.entries[entry.Key] = &cp
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, key domain.RetryKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Due(ctx context.Context, now time.Time) ([]*domain.RetryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []*domain.RetryEntry
	for _, entry := range s.entries {
		if !entry.NextRetryAt.After(now) {
			cp := *entry
			due = append(due, &cp)
		}
	}
	return due, nil
}

func (s *MemoryStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for key, entry := range s.entries {
		if entry.NextRetryAt.Before(cutoff) {
			delete(s.entries, key)
			purged++
		}
	}
	return purged, nil
}

func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}
