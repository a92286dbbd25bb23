package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	id "medvault/pkg/domain"
)

const kekInfoPrefix = "medvault/vault/"

// ErrUnwrap means a wrapped key failed authentication.
var ErrUnwrap = errors.New("vault: unwrap failed")

// Wrapper seals record keys under per-record KEKs derived from a master key
// with HKDF-SHA256. The record ID is bound as associated data, so a wrapped key
// copied onto another record does not open.
type Wrapper struct {
	master []byte
}

// NewWrapper requires a 32-byte master key.
func NewWrapper(master []byte) (*Wrapper, error) {
	if len(master) != KeySize {
		return nil, fmt.Errorf("vault: master key must be %d bytes, got %d", KeySize, len(master))
	}
	return &Wrapper{master: append([]byte(nil), master...)}, nil
}

func (w *Wrapper) kek(recordID id.RecordID) ([]byte, error) {
	kek := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, w.master, nil, []byte(kekInfoPrefix+recordID.String()))
	if _, err := io.ReadFull(r, kek); err != nil {
		return nil, fmt.Errorf("derive kek: %w", err)
	}
	return kek, nil
}

// Wrap encrypts key for recordID and returns the nonce and ciphertext.
func (w *Wrapper) Wrap(recordID id.RecordID, key []byte) (nonce, ciphertext []byte, err error) {
	kek, err := w.kek(recordID)
	if err != nil {
		return nil, nil, err
	}
	aead, err := chacha20poly1305.NewX(kek)
	if err != nil {
		return nil, nil, fmt.Errorf("init aead: %w", err)
	}
	nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	return nonce, aead.Seal(nil, nonce, key, []byte(recordID.String())), nil
}

// Unwrap reverses Wrap. Tampered or misplaced ciphertexts return ErrUnwrap.
func (w *Wrapper) Unwrap(recordID id.RecordID, nonce, ciphertext []byte) ([]byte, error) {
	kek, err := w.kek(recordID)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(kek)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, ErrUnwrap
	}
	key, err := aead.Open(nil, nonce, ciphertext, []byte(recordID.String()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnwrap, err)
	}
	return key, nil
}
