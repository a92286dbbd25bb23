package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"medvault/internal/access/models"
	id "medvault/pkg/domain"
	"medvault/pkg/platform/sentinel"
)

// Error Contract:
// - Create returns sentinel.ErrConflict when the pair already has an active request
// - Get returns sentinel.ErrNotFound for unknown IDs
// - Transition returns sentinel.ErrNotFound for unknown IDs and
//   sentinel.ErrInvalidState when the current state is not the expected one
// - List methods return an empty slice, never ErrNotFound

type pairKey struct {
	requester id.SubjectID
	record    id.RecordID
}

// InMemoryStore keeps access requests in memory. Every mutation is a
// compare-and-set under one mutex, so it is safe without an outer lock.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[id.RequestID]*models.Request
	active   map[pairKey]id.RequestID
	order    []id.RequestID
}

func New() *InMemoryStore {
	return &InMemoryStore{
		requests: make(map[id.RequestID]*models.Request),
		active:   make(map[pairKey]id.RequestID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{requester: req.RequesterID, record: req.RecordID}
	if _, exists := s.active[key]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.requests[req.ID]; exists {
		return sentinel.ErrConflict
	}
	s.requests[req.ID] = clone(req)
	s.active[key] = req.ID
	s.order = append(s.order, req.ID)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, requestID id.RequestID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(req), nil
}

func (s *InMemoryStore) Transition(_ context.Context, requestID id.RequestID, from, to models.State, at time.Time) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if req.State != from || !from.CanTransitionTo(to) {
		return nil, sentinel.ErrInvalidState
	}
	req.State = to
	decided := at
	req.DecidedAt = &decided
	delete(s.active, pairKey{requester: req.RequesterID, record: req.RecordID})
	return clone(req), nil
}

func (s *InMemoryStore) HasGranted(_ context.Context, requesterID id.SubjectID, recordID id.RecordID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, req := range s.requests {
		if req.RequesterID == requesterID && req.RecordID == recordID && req.State == models.StateGranted {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) ListByOwner(_ context.Context, ownerID id.SubjectID, filter models.Filter) ([]*models.Request, error) {
	return s.list(func(r *models.Request) bool { return r.OwnerID == ownerID && filter.Matches(r) }), nil
}

func (s *InMemoryStore) ListByRequester(_ context.Context, requesterID id.SubjectID, filter models.Filter) ([]*models.Request, error) {
	return s.list(func(r *models.Request) bool { return r.RequesterID == requesterID && filter.Matches(r) }), nil
}

// list returns matches newest first, mirroring the Postgres ordering.
func (s *InMemoryStore) list(match func(*models.Request) bool) []*models.Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Request, 0)
	for _, requestID := range slices.Backward(s.order) {
		if r := s.requests[requestID]; match(r) {
			out = append(out, clone(r))
		}
	}
	return out
}

func clone(r *models.Request) *models.Request {
	c := *r
	if r.DecidedAt != nil {
		t := *r.DecidedAt
		c.DecidedAt = &t
	}
	return &c
}
