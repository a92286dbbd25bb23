package idempotency

import (
	"context"
	"sync"
	"time"

	id "medvault/pkg/domain"
)

type entry struct {
	requestID id.RequestID
	expiresAt time.Time
}

// InMemory is a process-local Store. Expired entries are dropped lazily on
// access and by Sweep.
type InMemory struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// NewInMemory creates an in-memory store whose entries live for ttl.
func NewInMemory(ttl time.Duration) *InMemory {
	return &InMemory{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock overrides the expiry clock. Tests only.
func (s *InMemory) WithClock(now func() time.Time) *InMemory {
	s.now = now
	return s
}

func (s *InMemory) Lookup(_ context.Context, key string) (id.RequestID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	return e.requestID, ok, nil
}

func (s *InMemory) Remember(_ context.Context, key string, requestID id.RequestID) (id.RequestID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.live(key); ok {
		return e.requestID, nil
	}
	s.entries[key] = entry{requestID: requestID, expiresAt: s.now().Add(s.ttl)}
	return requestID, nil
}

// live must be called with mu held.
func (s *InMemory) live(key string) (entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return entry{}, false
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return entry{}, false
	}
	return e, true
}

// Sweep removes expired entries and reports how many were dropped.
func (s *InMemory) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	dropped := 0
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
			dropped++
		}
	}
	return dropped
}

// RunSweeper calls Sweep every interval until ctx ends.
func (s *InMemory) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
