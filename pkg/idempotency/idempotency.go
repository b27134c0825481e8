// Package idempotency deduplicates at-least-once event delivery. Keys are
// derived from the stable event ID; a key that is already present means the
// event was fully processed before and must be acknowledged without
// reprocessing.
package idempotency

import (
	"context"
	"sync"
	"time"
)

const DefaultTTL = 24 * time.Hour

// Store records processed event keys with a TTL. Seen is a read probe;
// Record marks the key after the handler succeeded, so a crash between the
// two re-runs the handler rather than dropping the event.
type Store interface {
	Seen(ctx context.Context, key string) (bool, error)
	Record(ctx context.Context, key string) error
	Close() error
}

// MemoryStore is a process-local Store for tests and single-node setups.
type MemoryStore struct {
	mu  sync.Mutex
	ttl time.Duration

	seen map[string]time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &MemoryStore{
		ttl:  ttl,
		seen: make(map[string]time.Time),
	}
}

func (s *MemoryStore) Seen(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.seen[key]
	if !ok {
		return false, nil
	}

	if time.Now().After(expiry) {
		delete(s.seen, key)

		return false, nil
	}

	return true, nil
}

func (s *MemoryStore) Record(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seen[key] = time.Now().Add(s.ttl)

	return nil
}

func (s *MemoryStore) Close() error { return nil }
