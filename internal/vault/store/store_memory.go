package store

import (
	"context"
	"sync"

	"medvault/internal/vault"
	id "medvault/pkg/domain"
	"medvault/pkg/platform/sentinel"
)

// InMemoryStore keeps wrapped keys in memory for tests and development.
type InMemoryStore struct {
	mu   sync.RWMutex
	keys map[id.RecordID]vault.WrappedKey
}

// New constructs an empty in-memory key store.
func New() *InMemoryStore {
	return &InMemoryStore{keys: make(map[id.RecordID]vault.WrappedKey)}
}

func (s *InMemoryStore) Insert(_ context.Context, key *vault.WrappedKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key.RecordID]; ok {
		return sentinel.ErrConflict
	}
	s.keys[key.RecordID] = clone(*key)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, recordID id.RecordID) (*vault.WrappedKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := clone(key)
	return &out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, recordID id.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[recordID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.keys, recordID)
	return nil
}

func clone(k vault.WrappedKey) vault.WrappedKey {
	k.Nonce = append([]byte(nil), k.Nonce...)
	k.Ciphertext = append([]byte(nil), k.Ciphertext...)
	return k
}

// Len reports how many keys are stored.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
