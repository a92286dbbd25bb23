package records

import (
	"bytes"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medvault/pkg/detail"
)

func newKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestSealOpen(t *testing.T) {
	key := newKey(t)
	plaintext := []byte(`{"diagnosis":"J45.909"}`)

	sealed, err := Seal(key, plaintext)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(sealed, plaintext))

	t.Run("opens with the sealing key", func(t *testing.T) {
		got, err := Open(key, sealed)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	})

	t.Run("wrong key fails", func(t *testing.T) {
		_, err := Open(newKey(t), sealed)
		assert.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("tampered ciphertext fails", func(t *testing.T) {
		tampered := bytes.Clone(sealed)
		tampered[len(tampered)-1] ^= 0x01
		_, err := Open(key, tampered)
		assert.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("short key and truncated payload fail", func(t *testing.T) {
		_, err := Open(key[:16], sealed)
		assert.ErrorIs(t, err, ErrDecrypt)
		_, err = Open(key, sealed[:8])
		assert.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("nonces differ between seals", func(t *testing.T) {
		again, err := Seal(key, plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, sealed, again)
	})
}

func TestSealRejectsBadKey(t *testing.T) {
	_, err := Seal([]byte("short"), []byte("x"))
	assert.Error(t, err)
}

func TestDocumentRoundTripKeepsFingerprint(t *testing.T) {
	data := detail.NewMap().
		Set("zeta", detail.String("last")).
		Set("alpha", detail.Int(1)).
		Set("nested", detail.Object(detail.NewMap().Set("ok", detail.Bool(true))))
	doc := &Document{
		RecordID:          "3f2b7c8e-2d34-4f7e-9c1a-0d6a2f2f1b11",
		PatientID:         "9d1f7a4e-9b4e-4b61-8d0a-8d9f2f0c3a22",
		CreatorID:         "1c7e5b2a-0f6d-4e3b-a2c1-7b8e9d0f1a33",
		HealthAuthorityID: "5a4b3c2d-1e0f-4a9b-8c7d-6e5f4a3b2c44",
		CreatedAt:         time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC),
		Data:              data,
	}

	plaintext, fp, err := doc.Encode()
	require.NoError(t, err)
	assert.Less(t, bytes.Index(plaintext, []byte("zeta")), bytes.Index(plaintext, []byte("alpha")))

	decoded, fp2, err := DecodeDocument(plaintext)
	require.NoError(t, err)
	assert.Equal(t, fp, fp2)
	assert.Equal(t, doc.RecordID, decoded.RecordID)
	assert.Equal(t, []string{"zeta", "alpha", "nested"}, decoded.Data.Keys())

	data.Set("alpha", detail.Int(2))
	_, changed, err := doc.Encode()
	require.NoError(t, err)
	assert.NotEqual(t, fp, changed)
}

func TestDecodeDocumentRejectsGarbage(t *testing.T) {
	_, _, err := DecodeDocument([]byte("not json"))
	assert.Error(t, err)
}
