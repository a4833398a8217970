package verify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"vigil/internal/biometric"
	"vigil/internal/fraud"
	"vigil/internal/platform/config"
	"vigil/internal/platform/metrics"
	id "vigil/pkg/domain"
	dErrors "vigil/pkg/domain-errors"
	"vigil/pkg/platform/audit"
	"vigil/pkg/requestcontext"
)

// Verifier is the biometric adapter surface the orchestrator composes.
type Verifier interface {
	Verify(ctx context.Context, subjectID id.SubjectID, image []byte) (*biometric.VerifyResult, error)
}

// FraudGate is the ledger surface: the lockout gate plus the recorder used
// when consecutive failures cross the threshold.
type FraudGate interface {
	IsBlocked(ctx context.Context, subjectID id.SubjectID) (*fraud.Block, error)
	Record(ctx context.Context, subjectID id.SubjectID, attemptType fraud.AttemptType, severity fraud.Severity, evidence []byte) (*fraud.Attempt, error)
}

// Service is the top-level verification entry point. It wraps the biometric
// adapter with the lockout gate and a per-subject consecutive-failure
// counter, so a run of noisy mismatches feeds back into the durable ledger
// as an identity-mismatch attempt.
type Service struct {
	verifier Verifier
	gate     FraudGate
	cfg      config.Verify

	logger         *slog.Logger
	auditPublisher audit.Publisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer

	// counters is the per-instance attempt arena. Never a package global:
	// each orchestrator owns its own, tests get clean state for free.
	mu       sync.Mutex
	counters map[id.SubjectID]*counter
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

func New(verifier Verifier, gate FraudGate, cfg config.Verify, opts ...Option) (*Service, error) {
	if verifier == nil {
		return nil, errors.New("biometric verifier is required")
	}
	if gate == nil {
		return nil, errors.New("fraud gate is required")
	}
	if cfg.FailureThreshold < 1 {
		return nil, errors.New("failure threshold must be at least 1")
	}

	svc := &Service{
		verifier: verifier,
		gate:     gate,
		cfg:      cfg,
		counters: make(map[id.SubjectID]*counter),
		tracer:   otel.Tracer("vigil/verify"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// VerifyIdentity produces the single verified/not-verified decision for a
// check-in attempt.
//
// The lockout gate runs first, and a blocked subject never reaches the
// biometric adapter: no backend call is spent on a locked account, and the
// response time does not leak whether the biometrics would have matched.
func (s *Service) VerifyIdentity(ctx context.Context, subjectID id.SubjectID, image []byte) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "verify.VerifyIdentity",
		trace.WithAttributes(attribute.String("subject_id", subjectID.String())))
	defer span.End()

	if subjectID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject id cannot be empty")
	}

	block, err := s.gate.IsBlocked(ctx, subjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consult lockout gate")
	}
	if block != nil {
		span.SetAttributes(attribute.String("code", string(CodeAccountLocked)))
		if s.metrics != nil {
			s.metrics.BlockedRejections.Inc()
		}
		audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
			SubjectID: subjectID,
			Action:    string(audit.EventVerifyRejected),
			Reason:    block.Reason.String(),
			Decision:  string(CodeAccountLocked),
			Severity:  audit.SeverityWarning,
		},
			"blocked_until", block.Until,
		)
		return &Result{Code: CodeAccountLocked, Block: block}, nil
	}

	verifyResult, err := s.verifier.Verify(ctx, subjectID, image)
	if err != nil {
		if errors.Is(err, biometric.ErrNotEnrolled) {
			s.trackFailure(ctx, subjectID)
			span.SetAttributes(attribute.String("code", string(CodeNotEnrolled)))
			return &Result{Code: CodeNotEnrolled}, nil
		}
		return nil, err
	}

	result := &Result{
		Verified:   verifyResult.Verified,
		Confidence: verifyResult.Confidence,
		Mode:       verifyResult.Mode,
	}

	if verifyResult.Verified {
		result.Code = CodeVerified
		s.resetCounter(ctx, subjectID)
		audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
			SubjectID: subjectID,
			Action:    string(audit.EventVerifySucceeded),
			Decision:  string(CodeVerified),
			Mode:      string(verifyResult.Mode),
			Severity:  audit.SeverityInfo,
		},
			"confidence", verifyResult.Confidence,
		)
	} else {
		result.Code = CodeIdentityMismatch
		s.trackFailure(ctx, subjectID)
		audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
			SubjectID: subjectID,
			Action:    string(audit.EventVerifyFailed),
			Decision:  string(CodeIdentityMismatch),
			Mode:      string(verifyResult.Mode),
			Severity:  audit.SeverityWarning,
		},
			"confidence", verifyResult.Confidence,
		)
	}

	span.SetAttributes(
		attribute.String("code", string(result.Code)),
		attribute.String("mode", string(result.Mode)),
	)
	return result, nil
}

// IsBlocked exposes the single lockout query, so every caller in the process
// gates on exactly the same ledger state.
func (s *Service) IsBlocked(ctx context.Context, subjectID id.SubjectID) (*fraud.Block, error) {
	return s.gate.IsBlocked(ctx, subjectID)
}

// trackFailure increments the subject's consecutive-failure counter and, at
// exactly the threshold, records one identity-mismatch attempt. Only at
// equality: a fourth failure must not produce a second ledger record, the
// next one comes after a success resets the run.
func (s *Service) trackFailure(ctx context.Context, subjectID id.SubjectID) {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	c, ok := s.counters[subjectID]
	if !ok {
		c = &counter{}
		s.counters[subjectID] = c
	}
	c.count++
	c.consecutiveFailures++
	c.lastAttemptAt = now
	failures := c.consecutiveFailures
	s.mu.Unlock()

	if failures != s.cfg.FailureThreshold {
		return
	}

	if _, err := s.gate.Record(ctx, subjectID, fraud.AttemptIdentityMismatch, fraud.SeverityMedium, nil); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to record identity mismatch",
			"subject_id", subjectID.String(),
			"consecutive_failures", failures,
			"error", err,
		)
	}
}

// resetCounter clears the failure run on a successful verification. The total
// attempt count survives for the sweep's idle bookkeeping.
func (s *Service) resetCounter(ctx context.Context, subjectID id.SubjectID) {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	c, ok := s.counters[subjectID]
	if !ok {
		c = &counter{}
		s.counters[subjectID] = c
	}
	c.count++
	c.consecutiveFailures = 0
	c.lastAttemptAt = now
	s.mu.Unlock()
}

// SweepCounters drops counters idle past the configured TTL. Returns how many
// were removed.
func (s *Service) SweepCounters(ctx context.Context) int {
	now := requestcontext.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for subjectID, c := range s.counters {
		if now.Sub(c.lastAttemptAt) > s.cfg.CounterTTL {
			delete(s.counters, subjectID)
			removed++
		}
	}
	return removed
}

// RunCounterSweep drops idle counters on a fixed interval until the context
// is cancelled.
func (s *Service) RunCounterSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepCounters(ctx)
		}
	}
}
