package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ordersync/backend/internal/domain/shared"
)

const defaultSweepInterval = 5 * time.Minute

// MemoryDedupStore keeps delivery keys in process memory.
// It only deduplicates within one instance.
type MemoryDedupStore struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryDedupStore creates a store and starts its sweeper.
// Callers must Close it.
func NewMemoryDedupStore() *MemoryDedupStore {
	return newMemoryDedupStore(time.Now, defaultSweepInterval)
}

func newMemoryDedupStore(now func() time.Time, sweepEvery time.Duration) *MemoryDedupStore {
	s := &MemoryDedupStore{
		expires: make(map[string]time.Time),
		now:     now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.sweepLoop(sweepEvery)
	return s
}

var _ shared.IdempotencyStore = (*MemoryDedupStore)(nil)

// MarkProcessed records the key unless a live entry already exists
func (s *MemoryDedupStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.expires[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.expires[key] = now.Add(ttl)
	return true, nil
}

// IsProcessed reports whether a live entry exists for the key
func (s *MemoryDedupStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.expires[key]
	return ok && s.now().Before(exp), nil
}

// Release drops the key
func (s *MemoryDedupStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expires, key)
	return nil
}

// Len returns the number of stored entries, expired ones included
func (s *MemoryDedupStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expires)
}

// Close stops the sweeper. Safe to call more than once.
func (s *MemoryDedupStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.done
	})
	return nil
}

func (s *MemoryDedupStore) sweepLoop(every time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryDedupStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, exp := range s.expires {
		if !now.Before(exp) {
			delete(s.expires, key)
		}
	}
}
