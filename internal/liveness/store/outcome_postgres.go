package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"vigil/internal/liveness"
	id "vigil/pkg/domain"
)

// PostgresOutcomeLog is the durable outcome sink. Append-only, one row per
// terminal session.
type PostgresOutcomeLog struct {
	pool *pgxpool.Pool
}

func NewPostgresOutcomeLog(pool *pgxpool.Pool) *PostgresOutcomeLog {
	return &PostgresOutcomeLog{pool: pool}
}

func (l *PostgresOutcomeLog) AppendOutcome(ctx context.Context, record liveness.OutcomeRecord) error {
	query := `
		INSERT INTO liveness_outcomes (
			session_id, subject_id, check_type, status, confidence,
			challenges_total, challenges_completed, frames_received,
			started_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id) DO NOTHING
	`
	_, err := l.pool.Exec(ctx, query,
		uuid.UUID(record.SessionID),
		record.SubjectID.String(),
		string(record.CheckType),
		string(record.Status),
		record.Confidence,
		record.ChallengesTotal,
		record.ChallengesCompleted,
		record.FramesReceived,
		record.StartedAt,
		record.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert liveness outcome: %w", err)
	}
	return nil
}

func (l *PostgresOutcomeLog) ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]liveness.OutcomeRecord, error) {
	query := `
		SELECT session_id, subject_id, check_type, status, confidence,
		       challenges_total, challenges_completed, frames_received,
		       started_at, finished_at
		FROM liveness_outcomes
		WHERE subject_id = $1
		ORDER BY finished_at ASC
	`
	rows, err := l.pool.Query(ctx, query, subjectID.String())
	if err != nil {
		return nil, fmt.Errorf("query liveness outcomes: %w", err)
	}
	defer rows.Close()

	var records []liveness.OutcomeRecord
	for rows.Next() {
		var (
			sessionID uuid.UUID
			subject   string
			checkType string
			status    string
			record    liveness.OutcomeRecord
			started   time.Time
			finished  time.Time
		)
		err := rows.Scan(
			&sessionID, &subject, &checkType, &status, &record.Confidence,
			&record.ChallengesTotal, &record.ChallengesCompleted, &record.FramesReceived,
			&started, &finished,
		)
		if err != nil {
			return nil, fmt.Errorf("scan liveness outcome: %w", err)
		}
		record.SessionID = id.SessionID(sessionID)
		record.SubjectID = id.SubjectID(subject)
		record.CheckType = liveness.CheckType(checkType)
		record.Status = liveness.Status(status)
		record.StartedAt = started
		record.FinishedAt = finished
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate liveness outcomes: %w", err)
	}
	return records, nil
}

// Schema is the DDL for the outcome log. Exposed so integration tests and
// provisioning tooling share one definition.
const Schema = `
CREATE TABLE IF NOT EXISTS liveness_outcomes (
	session_id           UUID PRIMARY KEY,
	subject_id           TEXT NOT NULL,
	check_type           TEXT NOT NULL,
	status               TEXT NOT NULL,
	confidence           DOUBLE PRECISION NOT NULL,
	challenges_total     INT NOT NULL,
	challenges_completed INT NOT NULL,
	frames_received      INT NOT NULL,
	started_at           TIMESTAMPTZ NOT NULL,
	finished_at          TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS liveness_outcomes_subject_idx
	ON liveness_outcomes (subject_id, finished_at DESC);
`
