package fraud

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vigil/internal/platform/config"
	"vigil/internal/platform/metrics"
	id "vigil/pkg/domain"
	dErrors "vigil/pkg/domain-errors"
	"vigil/pkg/platform/audit"
	"vigil/pkg/requestcontext"
	"vigil/pkg/sentinel"
)

// Store is the ledger's persistence contract. Append-only: nothing updates or
// deletes records.
type Store interface {
	Append(ctx context.Context, attempt *Attempt) error

	// CountSince returns how many attempts exist for the subject with
	// CreatedAt at or after since.
	CountSince(ctx context.Context, subjectID id.SubjectID, since time.Time) (int, error)

	// ListSince returns the subject's attempts at or after since, in
	// creation order.
	ListSince(ctx context.Context, subjectID id.SubjectID, since time.Time) ([]*Attempt, error)

	// LatestActiveBlock returns the most recent attempt whose block is still
	// in force at now, or sentinel.ErrNotFound.
	LatestActiveBlock(ctx context.Context, subjectID id.SubjectID, now time.Time) (*Attempt, error)
}

// Service is the fraud ledger plus its escalating response policy. It is the
// single source of truth for blocking decisions: both the liveness session
// manager and the verification orchestrator gate through IsBlocked here, so
// lockout enforcement can never diverge between the two entry points.
type Service struct {
	store          Store
	policy         config.FraudPolicy
	logger         *slog.Logger
	auditPublisher audit.Publisher
	metrics        *metrics.Metrics

	// locks serializes record-and-escalate per subject so concurrent records
	// for one subject cannot double-count or drop each other in the trailing
	// window. Distinct subjects proceed in parallel.
	locks sync.Map // id.SubjectID -> *sync.Mutex
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(store Store, policy config.FraudPolicy, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("fraud store is required")
	}

	svc := &Service{
		store:  store,
		policy: policy,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Record appends one fraud attempt and applies the escalation policy.
//
// The trailing-window count includes the attempt being recorded, and the
// policy's verdict is written into the record at creation: ActionTaken and
// BlockedUntil are never revised after the append.
func (s *Service) Record(ctx context.Context, subjectID id.SubjectID, attemptType AttemptType, severity Severity, evidence []byte) (*Attempt, error) {
	now := requestcontext.Now(ctx)

	attempt, err := NewAttempt(subjectID, attemptType, severity, evidence, now)
	if err != nil {
		return nil, err
	}

	unlock := s.lockSubject(subjectID)
	defer unlock()

	// Count prior attempts in the trailing window; +1 for this one.
	prior, err := s.store.CountSince(ctx, subjectID, now.Add(-s.policy.Window))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count trailing fraud attempts")
	}
	trailing := prior + 1

	attempt.Action, attempt.BlockedUntil = s.escalate(severity, trailing, now)

	if err := s.store.Append(ctx, attempt); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append fraud attempt")
	}

	if s.metrics != nil {
		s.metrics.FraudAttempts.WithLabelValues(attemptType.String(), severity.String(), attempt.Action.String()).Inc()
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		SubjectID: subjectID,
		Action:    string(audit.EventFraudAttemptRecorded),
		Reason:    attemptType.String(),
		Decision:  attempt.Action.String(),
		Severity:  auditSeverity(severity),
	},
		"attempt_type", attemptType.String(),
		"severity", severity.String(),
		"trailing_count", trailing,
	)

	if attempt.Action == ActionBlocked {
		audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
			SubjectID: subjectID,
			Action:    string(audit.EventSubjectBlocked),
			Reason:    attemptType.String(),
			Decision:  ActionBlocked.String(),
			Severity:  audit.SeverityCritical,
		},
			"blocked_until", attempt.BlockedUntil,
		)
	}

	return attempt, nil
}

// escalate maps (severity, trailing count) to the action for a new record.
// Rules are evaluated in priority order; first match wins.
func (s *Service) escalate(severity Severity, trailing int, now time.Time) (ActionTaken, *time.Time) {
	switch {
	case severity == SeverityCritical || trailing >= s.policy.BlockThreshold:
		until := now.Add(s.policy.BlockDuration)
		return ActionBlocked, &until
	case severity == SeverityHigh || trailing >= s.policy.EscalateThreshold:
		return ActionEscalated, nil
	case trailing >= s.policy.WarnThreshold:
		return ActionWarned, nil
	default:
		return ActionLogged, nil
	}
}

// IsBlocked reports whether the subject has an active block. Returns nil when
// clear. Consulted fresh at every gate; lockout state is never cached, so a
// block takes effect on the very next attempt.
func (s *Service) IsBlocked(ctx context.Context, subjectID id.SubjectID) (*Block, error) {
	if subjectID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject id cannot be empty")
	}

	now := requestcontext.Now(ctx)
	attempt, err := s.store.LatestActiveBlock(ctx, subjectID, now)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query active block")
	}
	if attempt == nil || attempt.BlockedUntil == nil {
		return nil, nil
	}
	return &Block{Until: *attempt.BlockedUntil, Reason: attempt.Type}, nil
}

// History returns the subject's attempts inside the trailing policy window,
// in creation order. Used by review tooling, not by the gates.
func (s *Service) History(ctx context.Context, subjectID id.SubjectID) ([]*Attempt, error) {
	now := requestcontext.Now(ctx)
	attempts, err := s.store.ListSince(ctx, subjectID, now.Add(-s.policy.Window))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list fraud attempts")
	}
	return attempts, nil
}

func (s *Service) lockSubject(subjectID id.SubjectID) func() {
	value, _ := s.locks.LoadOrStore(subjectID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func auditSeverity(severity Severity) audit.Severity {
	switch severity {
	case SeverityCritical:
		return audit.SeverityCritical
	case SeverityHigh, SeverityMedium:
		return audit.SeverityWarning
	default:
		return audit.SeverityInfo
	}
}
