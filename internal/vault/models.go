package vault

import (
	"time"

	id "medvault/pkg/domain"
)

// KeySize is the length of every record key in bytes.
const KeySize = 32

// WrappedKey is a record key encrypted under a key-encryption key derived for
// that record. Only this form is ever persisted.
type WrappedKey struct {
	RecordID   id.RecordID
	Nonce      []byte
	Ciphertext []byte
	CreatedAt  time.Time
}

// KeyGrant is a released record key bound to one grantee.
type KeyGrant struct {
	RecordID  id.RecordID
	GranteeID id.SubjectID
	Key       []byte
	GrantedAt time.Time
}
