package liveness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"vigil/internal/fraud"
	"vigil/internal/platform/config"
	"vigil/internal/platform/metrics"
	id "vigil/pkg/domain"
	dErrors "vigil/pkg/domain-errors"
	"vigil/pkg/platform/audit"
	"vigil/pkg/requestcontext"
)

// FraudGate is the slice of the fraud ledger the session manager needs: the
// lockout gate consulted before session creation, and the recorder that
// mid-session anomalies are forwarded to immediately.
type FraudGate interface {
	IsBlocked(ctx context.Context, subjectID id.SubjectID) (*fraud.Block, error)
	Record(ctx context.Context, subjectID id.SubjectID, attemptType fraud.AttemptType, severity fraud.Severity, evidence []byte) (*fraud.Attempt, error)
}

// OutcomeLog is the durable sink for terminal session outcomes. Exactly one
// record is written per session, at its terminal transition.
type OutcomeLog interface {
	AppendOutcome(ctx context.Context, record OutcomeRecord) error
	ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]OutcomeRecord, error)
}

// session is the live-table entry. Mutable fields are guarded by mu; the
// table lock is never held while a session lock is.
type session struct {
	mu sync.Mutex

	id         id.SessionID
	subjectID  id.SubjectID
	checkType  CheckType
	challenges []ChallengeType
	createdAt  time.Time
	expiresAt  time.Time

	framesReceived  int
	currentFrames   int
	completed       map[ChallengeType]struct{}
	deviceSignature string
	status          Status
}

// currentChallenge returns the first unmet challenge, or "" when all are met.
func (s *session) currentChallenge() ChallengeType {
	for _, c := range s.challenges {
		if _, done := s.completed[c]; !done {
			return c
		}
	}
	return ""
}

// finalizedEntry keeps a terminal outcome around after the session leaves the
// live table, so a duplicate finalize returns the recorded result instead of
// writing a second log entry.
type finalizedEntry struct {
	outcome    Outcome
	finishedAt time.Time
}

// Service runs the challenge-response state machine. Sessions are
// process-local and ephemeral: they exist only in this table between start
// and terminal transition, never across restarts. The durable record is the
// outcome log entry.
type Service struct {
	gate     FraudGate
	outcomes OutcomeLog
	cfg      config.Liveness

	logger         *slog.Logger
	auditPublisher audit.Publisher
	metrics        *metrics.Metrics

	mu        sync.RWMutex
	sessions  map[id.SessionID]*session
	finalized map[id.SessionID]finalizedEntry
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

func New(gate FraudGate, outcomes OutcomeLog, cfg config.Liveness, opts ...Option) (*Service, error) {
	if gate == nil {
		return nil, errors.New("fraud gate is required")
	}
	if outcomes == nil {
		return nil, errors.New("outcome log is required")
	}
	if cfg.MinChallenges < 1 || cfg.MaxChallenges < cfg.MinChallenges {
		return nil, errors.New("challenge count bounds are invalid")
	}

	svc := &Service{
		gate:      gate,
		outcomes:  outcomes,
		cfg:       cfg,
		sessions:  make(map[id.SessionID]*session),
		finalized: make(map[id.SessionID]finalizedEntry),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// StartSession opens a challenge session for the subject. The lockout gate is
// consulted first: a blocked subject gets a typed BlockedError and no session
// exists afterward.
func (s *Service) StartSession(ctx context.Context, subjectID id.SubjectID, checkType CheckType) (*StartReply, error) {
	if subjectID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject id cannot be empty")
	}
	if !checkType.IsValid() {
		return nil, errInvalidCheckType
	}

	block, err := s.gate.IsBlocked(ctx, subjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consult lockout gate")
	}
	if block != nil {
		if s.metrics != nil {
			s.metrics.BlockedRejections.Inc()
		}
		return nil, &fraud.BlockedError{Until: block.Until, Reason: block.Reason}
	}

	now := requestcontext.Now(ctx)
	sess := &session{
		id:         id.NewSessionID(),
		subjectID:  subjectID,
		checkType:  checkType,
		challenges: s.pickChallenges(checkType),
		createdAt:  now,
		expiresAt:  now.Add(s.cfg.SessionTTL),
		completed:  make(map[ChallengeType]struct{}),
		status:     StatusPending,
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.LiveSessions.Inc()
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		SubjectID: subjectID,
		Action:    string(audit.EventLivenessStarted),
		Severity:  audit.SeverityInfo,
	},
		"session_id", sess.id.String(),
		"check_type", string(checkType),
		"challenges", len(sess.challenges),
	)

	return &StartReply{
		SessionID:  sess.id,
		Challenges: append([]ChallengeType(nil), sess.challenges...),
		ExpiresAt:  sess.expiresAt,
	}, nil
}

// pickChallenges draws a random challenge sequence from the catalog.
func (s *Service) pickChallenges(checkType CheckType) []ChallengeType {
	catalog := catalogFor(checkType)

	count := s.cfg.MinChallenges
	if spread := s.cfg.MaxChallenges - s.cfg.MinChallenges; spread > 0 {
		count += rand.IntN(spread + 1)
	}
	if count > len(catalog) {
		count = len(catalog)
	}

	shuffled := append([]ChallengeType(nil), catalog...)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:count]
}

// SubmitFrame records one frame against the session's current challenge.
//
// Frame-level anomalies (flat texture, mock-location metadata, device switch)
// go to the fraud ledger immediately rather than at finalize, but they do not
// abort the session: the challenge logic alone decides pass or fail, and the
// ledger only affects future attempts through the lockout gate.
func (s *Service) SubmitFrame(ctx context.Context, sessionID id.SessionID, frame []byte, meta FrameMetadata) (*FrameAck, error) {
	now := requestcontext.Now(ctx)

	sess, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.status.Terminal() || !now.Before(sess.expiresAt) {
		return nil, &StaleSessionError{SessionID: sessionID}
	}

	findings := analyzeFrame(frame, meta, sess.deviceSignature)
	if sig := deviceSignature(meta.UserAgent); sig != "" && sess.deviceSignature == "" {
		sess.deviceSignature = sig
	}
	for _, f := range findings {
		// Best effort: an unreachable ledger must not reject the frame.
		if _, recErr := s.gate.Record(ctx, sess.subjectID, f.attemptType, f.severity, []byte(f.reason)); recErr != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to record frame anomaly",
				"session_id", sessionID.String(),
				"attempt_type", f.attemptType.String(),
				"error", recErr,
			)
		}
	}

	sess.framesReceived++
	sess.currentFrames++

	feedback := "keep going"
	current := sess.currentChallenge()
	if current != "" && sess.currentFrames >= challengeMinFrames {
		sess.completed[current] = struct{}{}
		sess.currentFrames = 0
		feedback = fmt.Sprintf("challenge %s complete", current)
		current = sess.currentChallenge()
	}
	if current == "" {
		feedback = "all challenges complete"
	}

	return &FrameAck{
		Progress:         float64(len(sess.completed)) / float64(len(sess.challenges)),
		CurrentChallenge: current,
		FramesReceived:   sess.framesReceived,
		Feedback:         feedback,
	}, nil
}

// Complete finalizes the session. The first call performs the terminal
// transition and writes the single outcome-log record; repeated calls return
// the recorded result without a second write.
func (s *Service) Complete(ctx context.Context, sessionID id.SessionID, finalFrame []byte) (*Outcome, error) {
	now := requestcontext.Now(ctx)

	sess, err := s.lookup(sessionID)
	if err != nil {
		var stale *StaleSessionError
		if errors.As(err, &stale) {
			if outcome, ok := s.recordedOutcome(sessionID); ok {
				return outcome, nil
			}
		}
		return nil, err
	}

	sess.mu.Lock()
	if sess.status.Terminal() {
		sess.mu.Unlock()
		if outcome, ok := s.recordedOutcome(sessionID); ok {
			return outcome, nil
		}
		return nil, &StaleSessionError{SessionID: sessionID}
	}

	if !now.Before(sess.expiresAt) {
		outcome := s.finalizeLocked(ctx, sess, StatusTimeout, 0, now)
		sess.mu.Unlock()
		return &outcome, nil
	}

	if len(finalFrame) > 0 {
		sess.framesReceived++
		if current := sess.currentChallenge(); current != "" && sess.currentFrames+1 >= challengeMinFrames {
			sess.completed[current] = struct{}{}
			sess.currentFrames = 0
		}
	}

	status, confidence := s.score(sess, now)
	outcome := s.finalizeLocked(ctx, sess, status, confidence, now)
	sess.mu.Unlock()
	return &outcome, nil
}

// score computes the terminal verdict from three ratios: challenges completed
// over total, frames received over the minimum required, and elapsed time
// over the expected cumulative challenge duration. Too-fast completion drags
// confidence down; a human needs real seconds to blink and turn on cue.
func (s *Service) score(sess *session, now time.Time) (Status, float64) {
	total := len(sess.challenges)
	minFrames := total * challengeMinFrames

	challengeRatio := float64(len(sess.completed)) / float64(total)
	frameRatio := math.Min(1, float64(sess.framesReceived)/float64(minFrames))

	expected := time.Duration(total) * challengeExpectedDuration
	timingRatio := math.Min(1, float64(now.Sub(sess.createdAt))/float64(expected))

	confidence := 0.5*challengeRatio + 0.3*frameRatio + 0.2*timingRatio

	switch {
	case len(sess.completed) == total && sess.framesReceived >= minFrames && confidence >= s.cfg.PassConfidence:
		return StatusPassed, confidence
	case confidence < s.cfg.FailConfidence:
		return StatusFailed, confidence
	default:
		return StatusInconclusive, confidence
	}
}

// finalizeLocked performs the terminal transition for a session whose lock is
// held: set status, write the one outcome record, drop the session from the
// live table, park the result for duplicate finalize calls.
func (s *Service) finalizeLocked(ctx context.Context, sess *session, status Status, confidence float64, now time.Time) Outcome {
	sess.status = status

	record := OutcomeRecord{
		SessionID:           sess.id,
		SubjectID:           sess.subjectID,
		CheckType:           sess.checkType,
		Status:              status,
		Confidence:          confidence,
		ChallengesTotal:     len(sess.challenges),
		ChallengesCompleted: len(sess.completed),
		FramesReceived:      sess.framesReceived,
		StartedAt:           sess.createdAt,
		FinishedAt:          now,
	}
	if err := s.outcomes.AppendOutcome(ctx, record); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to append liveness outcome",
			"session_id", sess.id.String(),
			"status", string(status),
			"error", err,
		)
	}

	outcome := Outcome{Status: status, Confidence: confidence, CanRetry: status != StatusPassed}
	if outcome.CanRetry {
		if block, err := s.gate.IsBlocked(ctx, sess.subjectID); err == nil && block != nil {
			outcome.CanRetry = false
		}
	}

	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.finalized[sess.id] = finalizedEntry{outcome: outcome, finishedAt: now}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.LiveSessions.Dec()
		s.metrics.LivenessOutcomes.WithLabelValues(string(status)).Inc()
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		SubjectID: sess.subjectID,
		Action:    string(auditEventFor(status)),
		Decision:  string(status),
		Severity:  auditSeverityFor(status),
	},
		"session_id", sess.id.String(),
		"confidence", confidence,
		"frames", sess.framesReceived,
	)

	return outcome
}

// ExpireDue sweeps the live table and finalizes every session past its
// expiry as timeout with zero confidence. Returns how many were reaped.
func (s *Service) ExpireDue(ctx context.Context) int {
	now := requestcontext.Now(ctx)

	s.mu.RLock()
	due := make([]*session, 0)
	for _, sess := range s.sessions {
		due = append(due, sess)
	}
	s.mu.RUnlock()

	reaped := 0
	for _, sess := range due {
		sess.mu.Lock()
		if !sess.status.Terminal() && !now.Before(sess.expiresAt) {
			s.finalizeLocked(ctx, sess, StatusTimeout, 0, now)
			reaped++
		}
		sess.mu.Unlock()
	}

	if reaped > 0 {
		if s.metrics != nil {
			s.metrics.SessionsReaped.Add(float64(reaped))
		}
		if s.logger != nil {
			s.logger.InfoContext(ctx, "expired liveness sessions", "count", reaped)
		}
	}

	s.pruneFinalized(now)
	return reaped
}

// pruneFinalized drops parked outcomes once they are older than the session
// TTL; by then no client is still retrying the finalize call.
func (s *Service) pruneFinalized(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sessionID, entry := range s.finalized {
		if now.Sub(entry.finishedAt) > s.cfg.SessionTTL {
			delete(s.finalized, sessionID)
		}
	}
}

func (s *Service) lookup(sessionID id.SessionID) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, &StaleSessionError{SessionID: sessionID}
	}
	return sess, nil
}

func (s *Service) recordedOutcome(sessionID id.SessionID) (*Outcome, bool) {
	s.mu.RLock()
	entry, ok := s.finalized[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	outcome := entry.outcome
	return &outcome, true
}

func auditEventFor(status Status) audit.AuditEvent {
	switch status {
	case StatusPassed:
		return audit.EventLivenessPassed
	case StatusTimeout:
		return audit.EventLivenessTimeout
	default:
		return audit.EventLivenessFailed
	}
}

func auditSeverityFor(status Status) audit.Severity {
	if status == StatusPassed {
		return audit.SeverityInfo
	}
	return audit.SeverityWarning
}
