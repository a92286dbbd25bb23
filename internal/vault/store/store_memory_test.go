package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medvault/internal/vault"
	id "medvault/pkg/domain"
	"medvault/pkg/platform/sentinel"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := New()
	recordID := id.NewRecordID()
	key := &vault.WrappedKey{RecordID: recordID, Nonce: []byte{1, 2}, Ciphertext: []byte{3, 4}, CreatedAt: time.Now()}

	require.NoError(t, s.Insert(ctx, key))
	assert.ErrorIs(t, s.Insert(ctx, key), sentinel.ErrConflict)

	got, err := s.Get(ctx, recordID)
	require.NoError(t, err)
	assert.Equal(t, key.Ciphertext, got.Ciphertext)

	got.Ciphertext[0] = 99
	again, err := s.Get(ctx, recordID)
	require.NoError(t, err)
	assert.Equal(t, byte(3), again.Ciphertext[0], "stored key must not alias returned copies")

	require.NoError(t, s.Delete(ctx, recordID))
	assert.ErrorIs(t, s.Delete(ctx, recordID), sentinel.ErrNotFound)
	_, err = s.Get(ctx, recordID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
