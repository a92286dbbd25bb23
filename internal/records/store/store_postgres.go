package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"medvault/internal/records/models"
	id "medvault/pkg/domain"
	"medvault/pkg/platform/sentinel"
)

// PostgresStore persists records in PostgreSQL. The table has no UPDATE path:
// anchor references are written once.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed record store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, owner_id, creator_id, authority_id, created_at, anchor_ref, payload`

func (s *PostgresStore) Put(ctx context.Context, record *models.Record) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}
	query := `
		INSERT INTO records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
		RETURNING id
	`
	var storedID uuid.UUID
	err := s.db.QueryRowContext(ctx, query,
		uuid.UUID(record.ID),
		uuid.UUID(record.OwnerID),
		uuid.UUID(record.CreatorID),
		uuid.UUID(record.AuthorityID),
		record.CreatedAt,
		record.AnchorRef,
		record.Payload,
	).Scan(&storedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE id = $1`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, uuid.UUID(recordID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID id.SubjectID) ([]*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE owner_id = $1 ORDER BY created_at DESC, id`
	return s.list(ctx, query, uuid.UUID(ownerID))
}

func (s *PostgresStore) ListByCreatorAuthority(ctx context.Context, authorityID id.AuthorityID) ([]*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE authority_id = $1 ORDER BY created_at DESC, id`
	return s.list(ctx, query, uuid.UUID(authorityID))
}

func (s *PostgresStore) list(ctx context.Context, query string, arg any) ([]*models.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Record, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		recordID, ownerID, creatorID, authorityID uuid.UUID
		record                                    models.Record
	)
	if err := row.Scan(&recordID, &ownerID, &creatorID, &authorityID, &record.CreatedAt, &record.AnchorRef, &record.Payload); err != nil {
		return nil, err
	}
	record.ID = id.RecordID(recordID)
	record.OwnerID = id.SubjectID(ownerID)
	record.CreatorID = id.SubjectID(creatorID)
	record.AuthorityID = id.AuthorityID(authorityID)
	return &record, nil
}
