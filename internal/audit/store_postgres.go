package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// PostgresStore persists audit events in the audit_events table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO audit_events (
			id, occurred_at, action, actor_id, subject_id, record_id,
			access_request_id, decision, reason, client, client_ip, correlation_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	eventID, err := uuid.Parse(event.ID)
	if err != nil {
		eventID = uuid.New()
	}
	_, err = s.db.ExecContext(ctx, query,
		eventID,
		event.Timestamp,
		event.Action,
		event.ActorID,
		event.SubjectID,
		event.RecordID,
		event.AccessRequest,
		event.Decision,
		event.Reason,
		event.Client,
		event.ClientIP,
		event.CorrelationID,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subject string) ([]Event, error) {
	query := `
		SELECT id, occurred_at, action, actor_id, subject_id, record_id,
			access_request_id, decision, reason, client, client_ip, correlation_id
		FROM audit_events
		WHERE actor_id = $1 OR subject_id = $1
		ORDER BY occurred_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, subject)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var (
			e       Event
			eventID uuid.UUID
		)
		if err := rows.Scan(&eventID, &e.Timestamp, &e.Action, &e.ActorID, &e.SubjectID, &e.RecordID,
			&e.AccessRequest, &e.Decision, &e.Reason, &e.Client, &e.ClientIP, &e.CorrelationID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.ID = eventID.String()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}
