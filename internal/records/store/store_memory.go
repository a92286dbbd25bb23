package store

import (
	"bytes"
	"context"
	"slices"
	"sync"

	"medvault/internal/records/models"
	id "medvault/pkg/domain"
	"medvault/pkg/platform/sentinel"
)

// Error Contract:
// - Put returns sentinel.ErrConflict when a record with the same ID exists
// - Get returns sentinel.ErrNotFound for unknown IDs
// - List methods return an empty slice, never ErrNotFound

// InMemoryStore keeps records in memory for tests and single-node development.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.RecordID]*models.Record
	order   []id.RecordID
}

// New constructs an empty in-memory record store.
func New() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.RecordID]*models.Record)}
}

func (s *InMemoryStore) Put(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		return sentinel.ErrConflict
	}
	s.records[record.ID] = clone(record)
	s.order = append(s.order, record.ID)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, recordID id.RecordID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(record), nil
}

func (s *InMemoryStore) ListByOwner(_ context.Context, ownerID id.SubjectID) ([]*models.Record, error) {
	return s.list(func(r *models.Record) bool { return r.OwnerID == ownerID }), nil
}

func (s *InMemoryStore) ListByCreatorAuthority(_ context.Context, authorityID id.AuthorityID) ([]*models.Record, error) {
	return s.list(func(r *models.Record) bool { return r.AuthorityID == authorityID }), nil
}

// list returns matches newest first, mirroring the Postgres ordering.
func (s *InMemoryStore) list(match func(*models.Record) bool) []*models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Record, 0)
	for _, recordID := range slices.Backward(s.order) {
		if r := s.records[recordID]; match(r) {
			out = append(out, clone(r))
		}
	}
	return out
}

func clone(r *models.Record) *models.Record {
	c := *r
	c.Payload = bytes.Clone(r.Payload)
	return &c
}
