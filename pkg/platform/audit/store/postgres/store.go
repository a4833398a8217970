package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "vigil/pkg/domain"
	audit "vigil/pkg/platform/audit"
)

// Store implements audit.Store on PostgreSQL through database/sql.
// The driver (lib/pq) is registered by the binary that opens the pool.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts one audit event. Idempotent via ON CONFLICT DO NOTHING so a
// retried emit cannot double-write.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_events (
			id, category, timestamp, subject_id, action,
			reason, decision, mode, severity, ip, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.New(),
		string(event.Category),
		event.Timestamp,
		event.SubjectID.String(),
		event.Action,
		event.Reason,
		event.Decision,
		event.Mode,
		string(event.Severity),
		event.IP,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListBySubject returns events for a specific subject, most recent first.
func (s *Store) ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]audit.Event, error) {
	query := `
		SELECT category, timestamp, subject_id, action,
		       reason, decision, mode, severity, ip, request_id
		FROM audit_events
		WHERE subject_id = $1
		ORDER BY timestamp DESC
	`
	rows, err := s.db.QueryContext(ctx, query, subjectID.String())
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT category, timestamp, subject_id, action,
		       reason, decision, mode, severity, ip, request_id
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

func (s *Store) scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			category  string
			subjectID string
			severity  string
			event     audit.Event
		)
		err := rows.Scan(
			&category,
			&event.Timestamp,
			&subjectID,
			&event.Action,
			&event.Reason,
			&event.Decision,
			&event.Mode,
			&severity,
			&event.IP,
			&event.RequestID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		event.SubjectID = id.SubjectID(subjectID)
		event.Severity = audit.Severity(severity)
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

// Schema is the DDL for the audit_events table. Exposed so integration tests
// and provisioning tooling share one definition.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id         UUID PRIMARY KEY,
	category   TEXT NOT NULL,
	timestamp  TIMESTAMPTZ NOT NULL,
	subject_id TEXT NOT NULL,
	action     TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	decision   TEXT NOT NULL DEFAULT '',
	mode       TEXT NOT NULL DEFAULT '',
	severity   TEXT NOT NULL DEFAULT '',
	ip         TEXT NOT NULL DEFAULT '',
	request_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS audit_events_subject_idx ON audit_events (subject_id, timestamp DESC);
`
