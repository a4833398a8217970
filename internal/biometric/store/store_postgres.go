package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vigil/internal/biometric"
	id "vigil/pkg/domain"
	"vigil/pkg/sentinel"
)

// PostgresEnrollmentStore keeps one sealed descriptor per subject. Descriptors
// go through the Cipher on both sides; the table only ever sees ciphertext.
type PostgresEnrollmentStore struct {
	pool   *pgxpool.Pool
	cipher *Cipher
}

func NewPostgresEnrollmentStore(pool *pgxpool.Pool, cipher *Cipher) (*PostgresEnrollmentStore, error) {
	if cipher == nil {
		return nil, errors.New("descriptor cipher is required")
	}
	return &PostgresEnrollmentStore{pool: pool, cipher: cipher}, nil
}

func (s *PostgresEnrollmentStore) SetDescriptor(ctx context.Context, subjectID id.SubjectID, descriptor biometric.Descriptor) error {
	sealed, err := s.cipher.Seal(descriptor)
	if err != nil {
		return fmt.Errorf("seal descriptor: %w", err)
	}

	query := `
		INSERT INTO biometric_enrollments (subject_id, descriptor, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (subject_id)
		DO UPDATE SET descriptor = EXCLUDED.descriptor, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.pool.Exec(ctx, query, subjectID.String(), sealed, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert enrollment: %w", err)
	}
	return nil
}

func (s *PostgresEnrollmentStore) GetDescriptor(ctx context.Context, subjectID id.SubjectID) (biometric.Descriptor, error) {
	query := `SELECT descriptor FROM biometric_enrollments WHERE subject_id = $1`

	var sealed []byte
	if err := s.pool.QueryRow(ctx, query, subjectID.String()).Scan(&sealed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("query enrollment: %w", err)
	}
	return s.cipher.Open(sealed)
}

func (s *PostgresEnrollmentStore) DeleteDescriptor(ctx context.Context, subjectID id.SubjectID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM biometric_enrollments WHERE subject_id = $1`, subjectID.String())
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresEnrollmentStore) ListDescriptors(ctx context.Context) (map[id.SubjectID]biometric.Descriptor, error) {
	rows, err := s.pool.Query(ctx, `SELECT subject_id, descriptor FROM biometric_enrollments`)
	if err != nil {
		return nil, fmt.Errorf("query enrollments: %w", err)
	}
	defer rows.Close()

	out := make(map[id.SubjectID]biometric.Descriptor)
	for rows.Next() {
		var (
			subjectID string
			sealed    []byte
		)
		if err := rows.Scan(&subjectID, &sealed); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		descriptor, err := s.cipher.Open(sealed)
		if err != nil {
			return nil, err
		}
		out[id.SubjectID(subjectID)] = descriptor
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}
	return out, nil
}

// Schema is the DDL for enrollment storage. Exposed so integration tests and
// provisioning tooling share one definition.
const Schema = `
CREATE TABLE IF NOT EXISTS biometric_enrollments (
	subject_id TEXT PRIMARY KEY,
	descriptor BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`
