package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"medvault/internal/access/models"
	id "medvault/pkg/domain"
	"medvault/pkg/platform/sentinel"
)

// PostgresStore persists access requests in PostgreSQL. The partial unique
// index uq_access_requests_active keeps one active request per pair; state
// changes are conditional updates on the expected state.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgres constructs a PostgreSQL-backed access request store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx constructs a store bound to a transaction. Get then locks the
// row until the transaction ends.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const requestColumns = `id, requester_id, record_id, owner_id, state, created_at, decided_at`

func (s *PostgresStore) Create(ctx context.Context, req *models.Request) error {
	if req == nil {
		return fmt.Errorf("access request is required")
	}
	query := `
		INSERT INTO access_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (requester_id, record_id) WHERE state = 'requested' DO NOTHING
		RETURNING id
	`
	var storedID uuid.UUID
	err := s.execer().QueryRowContext(ctx, query,
		uuid.UUID(req.ID),
		uuid.UUID(req.RequesterID),
		uuid.UUID(req.RecordID),
		uuid.UUID(req.OwnerID),
		string(req.State),
		req.CreatedAt,
		req.DecidedAt,
	).Scan(&storedID)
	if err != nil {
		// No rows: an active request holds the pair. Unique violation: the
		// request ID itself is taken.
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert access request: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM access_requests WHERE id = $1`
	if s.tx != nil {
		query += ` FOR UPDATE`
	}
	req, err := scanRequest(s.execer().QueryRowContext(ctx, query, uuid.UUID(requestID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get access request: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) Transition(ctx context.Context, requestID id.RequestID, from, to models.State, at time.Time) (*models.Request, error) {
	if !from.CanTransitionTo(to) {
		return nil, sentinel.ErrInvalidState
	}
	query := `
		UPDATE access_requests
		SET state = $3, decided_at = $4
		WHERE id = $1 AND state = $2
		RETURNING ` + requestColumns
	req, err := scanRequest(s.execer().QueryRowContext(ctx, query, uuid.UUID(requestID), string(from), string(to), at))
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transition access request: %w", err)
	}

	var exists bool
	err = s.execer().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM access_requests WHERE id = $1)`, uuid.UUID(requestID),
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check access request: %w", err)
	}
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	return nil, sentinel.ErrInvalidState
}

func (s *PostgresStore) HasGranted(ctx context.Context, requesterID id.SubjectID, recordID id.RecordID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM access_requests
			WHERE requester_id = $1 AND record_id = $2 AND state = 'granted'
		)
	`
	var granted bool
	if err := s.execer().QueryRowContext(ctx, query, uuid.UUID(requesterID), uuid.UUID(recordID)).Scan(&granted); err != nil {
		return false, fmt.Errorf("check granted access: %w", err)
	}
	return granted, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID id.SubjectID, filter models.Filter) ([]*models.Request, error) {
	return s.list(ctx, "owner_id", uuid.UUID(ownerID), filter)
}

func (s *PostgresStore) ListByRequester(ctx context.Context, requesterID id.SubjectID, filter models.Filter) ([]*models.Request, error) {
	return s.list(ctx, "requester_id", uuid.UUID(requesterID), filter)
}

// list is only called with fixed column names.
func (s *PostgresStore) list(ctx context.Context, column string, subject uuid.UUID, filter models.Filter) ([]*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM access_requests WHERE ` + column + ` = $1`
	args := []any{subject}
	if filter.State != "" {
		query += ` AND state = $2`
		args = append(args, string(filter.State))
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.execer().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list access requests: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access requests: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.Request, error) {
	var (
		requestID, requesterID, recordID, ownerID uuid.UUID
		state                                     string
		decidedAt                                 sql.NullTime
		req                                       models.Request
	)
	if err := row.Scan(&requestID, &requesterID, &recordID, &ownerID, &state, &req.CreatedAt, &decidedAt); err != nil {
		return nil, err
	}
	req.ID = id.RequestID(requestID)
	req.RequesterID = id.SubjectID(requesterID)
	req.RecordID = id.RecordID(recordID)
	req.OwnerID = id.SubjectID(ownerID)
	req.State = models.State(state)
	if decidedAt.Valid {
		t := decidedAt.Time
		req.DecidedAt = &t
	}
	return &req, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
