package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vigil/internal/fraud"
	id "vigil/pkg/domain"
	"vigil/pkg/sentinel"
)

// PostgresFraudStore is the durable ledger. The table is append-only: no
// UPDATE or DELETE statements exist in this file by design of the ledger
// contract, and the schema grants should match.
type PostgresFraudStore struct {
	pool *pgxpool.Pool
}

func NewPostgresFraudStore(pool *pgxpool.Pool) *PostgresFraudStore {
	return &PostgresFraudStore{pool: pool}
}

func (s *PostgresFraudStore) Append(ctx context.Context, attempt *fraud.Attempt) error {
	query := `
		INSERT INTO fraud_attempts (
			id, subject_id, attempt_type, severity, evidence,
			created_at, action_taken, blocked_until
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.pool.Exec(ctx, query,
		uuid.UUID(attempt.ID),
		attempt.SubjectID.String(),
		attempt.Type.String(),
		attempt.Severity.String(),
		attempt.Evidence,
		attempt.CreatedAt,
		attempt.Action.String(),
		attempt.BlockedUntil,
	)
	if err != nil {
		return fmt.Errorf("insert fraud attempt: %w", err)
	}
	return nil
}

func (s *PostgresFraudStore) CountSince(ctx context.Context, subjectID id.SubjectID, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM fraud_attempts
		WHERE subject_id = $1 AND created_at >= $2
	`
	var count int
	if err := s.pool.QueryRow(ctx, query, subjectID.String(), since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count fraud attempts: %w", err)
	}
	return count, nil
}

func (s *PostgresFraudStore) ListSince(ctx context.Context, subjectID id.SubjectID, since time.Time) ([]*fraud.Attempt, error) {
	query := `
		SELECT id, subject_id, attempt_type, severity, evidence,
		       created_at, action_taken, blocked_until
		FROM fraud_attempts
		WHERE subject_id = $1 AND created_at >= $2
		ORDER BY created_at ASC
	`
	rows, err := s.pool.Query(ctx, query, subjectID.String(), since)
	if err != nil {
		return nil, fmt.Errorf("query fraud attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*fraud.Attempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fraud attempts: %w", err)
	}
	return attempts, nil
}

func (s *PostgresFraudStore) LatestActiveBlock(ctx context.Context, subjectID id.SubjectID, now time.Time) (*fraud.Attempt, error) {
	query := `
		SELECT id, subject_id, attempt_type, severity, evidence,
		       created_at, action_taken, blocked_until
		FROM fraud_attempts
		WHERE subject_id = $1 AND action_taken = 'blocked' AND blocked_until > $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	rows, err := s.pool.Query(ctx, query, subjectID.String(), now)
	if err != nil {
		return nil, fmt.Errorf("query active block: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate active block: %w", err)
		}
		return nil, sentinel.ErrNotFound
	}
	return scanAttempt(rows)
}

func scanAttempt(rows pgx.Rows) (*fraud.Attempt, error) {
	var (
		attemptID    uuid.UUID
		subjectID    string
		attemptType  string
		severity     string
		evidence     []byte
		createdAt    time.Time
		actionTaken  string
		blockedUntil *time.Time
	)
	err := rows.Scan(
		&attemptID, &subjectID, &attemptType, &severity,
		&evidence, &createdAt, &actionTaken, &blockedUntil,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan fraud attempt: %w", err)
	}

	return &fraud.Attempt{
		ID:           id.AttemptID(attemptID),
		SubjectID:    id.SubjectID(subjectID),
		Type:         fraud.AttemptType(attemptType),
		Severity:     fraud.Severity(severity),
		Evidence:     evidence,
		CreatedAt:    createdAt,
		Action:       fraud.ActionTaken(actionTaken),
		BlockedUntil: blockedUntil,
	}, nil
}

// Schema is the DDL for the fraud ledger. Exposed so integration tests and
// provisioning tooling share one definition.
const Schema = `
CREATE TABLE IF NOT EXISTS fraud_attempts (
	id            UUID PRIMARY KEY,
	subject_id    TEXT NOT NULL,
	attempt_type  TEXT NOT NULL,
	severity      TEXT NOT NULL,
	evidence      BYTEA,
	created_at    TIMESTAMPTZ NOT NULL,
	action_taken  TEXT NOT NULL,
	blocked_until TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS fraud_attempts_subject_window_idx
	ON fraud_attempts (subject_id, created_at DESC);
CREATE INDEX IF NOT EXISTS fraud_attempts_active_block_idx
	ON fraud_attempts (subject_id, blocked_until DESC)
	WHERE action_taken = 'blocked';
`
