package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

type counterEntry struct {
	count   int64
	resetAt time.Time
}

// MemoryCounterStore implements KeyedCounterStore using ttlcache. Entries
// expire with their window, so abandoned counters clean themselves up.
type MemoryCounterStore struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, *counterEntry]
}

// NewMemoryCounterStore creates a new in-memory counter store with automatic
// cleanup of expired windows.
func NewMemoryCounterStore() *MemoryCounterStore {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, *counterEntry](),
	)

	// Start the cleanup process
	go cache.Start()

	return &MemoryCounterStore{cache: cache}
}

// Increment implements KeyedCounterStore.Increment.
func (s *MemoryCounterStore) Increment(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	item := s.cache.Get(key)
	if item != nil {
		entry := item.Value()
		if entry.resetAt.After(now) {
			entry.count++
			return entry.count, entry.resetAt, nil
		}
	}

	entry := &counterEntry{count: 1, resetAt: now.Add(window)}
	s.cache.Set(key, entry, window)
	return entry.count, entry.resetAt, nil
}

// Peek implements KeyedCounterStore.Peek.
func (s *MemoryCounterStore) Peek(_ context.Context, key string) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.cache.Get(key)
	if item == nil {
		return 0, time.Time{}, nil
	}
	entry := item.Value()
	if !entry.resetAt.After(time.Now()) {
		return 0, time.Time{}, nil
	}
	return entry.count, entry.resetAt, nil
}

// Reset implements KeyedCounterStore.Reset.
func (s *MemoryCounterStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Delete(key)
	return nil
}

// Close stops the cleanup goroutine.
func (s *MemoryCounterStore) Close() error {
	s.cache.Stop()

	return nil
}

var _ KeyedCounterStore = (*MemoryCounterStore)(nil)
