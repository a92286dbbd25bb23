package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"medvault/internal/vault"
	id "medvault/pkg/domain"
	"medvault/pkg/platform/sentinel"
)

// PostgresStore persists wrapped keys in the vault_keys table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed key store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, key *vault.WrappedKey) error {
	query := `
		INSERT INTO vault_keys (record_id, nonce, wrapped_key, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (record_id) DO NOTHING
		RETURNING record_id
	`
	var stored uuid.UUID
	err := s.db.QueryRowContext(ctx, query,
		uuid.UUID(key.RecordID),
		key.Nonce,
		key.Ciphertext,
		key.CreatedAt,
	).Scan(&stored)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert vault key: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, recordID id.RecordID) (*vault.WrappedKey, error) {
	query := `
		SELECT record_id, nonce, wrapped_key, created_at
		FROM vault_keys
		WHERE record_id = $1
	`
	var (
		rid uuid.UUID
		key vault.WrappedKey
	)
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(recordID)).
		Scan(&rid, &key.Nonce, &key.Ciphertext, &key.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get vault key: %w", err)
	}
	key.RecordID = id.RecordID(rid)
	return &key, nil
}

func (s *PostgresStore) Delete(ctx context.Context, recordID id.RecordID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vault_keys WHERE record_id = $1`, uuid.UUID(recordID))
	if err != nil {
		return fmt.Errorf("delete vault key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete vault key rows: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
