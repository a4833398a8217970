package verify_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vigil/internal/biometric"
	"vigil/internal/fraud"
	fraudStore "vigil/internal/fraud/store"
	"vigil/internal/platform/config"
	"vigil/internal/verify"
	id "vigil/pkg/domain"
	"vigil/pkg/requestcontext"
)

// scriptedVerifier returns canned results and counts invocations.
type scriptedVerifier struct {
	result *biometric.VerifyResult
	err    error
	calls  int
}

func (v *scriptedVerifier) Verify(context.Context, id.SubjectID, []byte) (*biometric.VerifyResult, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	return v.result, nil
}

type OrchestratorSuite struct {
	suite.Suite
	verifier *scriptedVerifier
	fraudSvc *fraud.Service
	service  *verify.Service
	now      time.Time
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) SetupTest() {
	s.verifier = &scriptedVerifier{}
	s.now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	var err error
	s.fraudSvc, err = fraud.New(fraudStore.NewInMemoryFraudStore(), config.Default().FraudPolicy)
	s.Require().NoError(err)

	s.service, err = verify.New(s.verifier, s.fraudSvc, config.Default().Verify)
	s.Require().NoError(err)
}

func (s *OrchestratorSuite) ctxAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *OrchestratorSuite) scriptMatch(verified bool) {
	confidence := 92.0
	if !verified {
		confidence = 40.0
	}
	s.verifier.result = &biometric.VerifyResult{Verified: verified, Confidence: confidence, Mode: biometric.ModePrimary}
	s.verifier.err = nil
}

func (s *OrchestratorSuite) mismatchCount(ctx context.Context, subject string) int {
	history, err := s.fraudSvc.History(ctx, id.SubjectID(subject))
	s.Require().NoError(err)
	count := 0
	for _, attempt := range history {
		if attempt.Type == fraud.AttemptIdentityMismatch {
			count++
		}
	}
	return count
}

// =============================================================================
// Lockout gate
// =============================================================================

func (s *OrchestratorSuite) TestVerifyIdentity_BlockedSubjectNeverReachesAdapter() {
	ctx := s.ctxAt(s.now)
	_, err := s.fraudSvc.Record(ctx, "guard-blocked", fraud.AttemptScreenSpoof, fraud.SeverityCritical, nil)
	s.Require().NoError(err)

	result, err := s.service.VerifyIdentity(ctx, "guard-blocked", []byte("frame"))
	s.Require().NoError(err)
	s.Equal(verify.CodeAccountLocked, result.Code)
	s.False(result.Verified)
	s.Require().NotNil(result.Block)
	s.Equal(s.now.Add(24*time.Hour), result.Block.Until)
	s.Equal(fraud.AttemptScreenSpoof, result.Block.Reason)
	s.Zero(s.verifier.calls, "a locked account must not spend a backend call")
}

func (s *OrchestratorSuite) TestVerifyIdentity_ExpiredBlockClears() {
	ctx := s.ctxAt(s.now)
	_, err := s.fraudSvc.Record(ctx, "guard-7", fraud.AttemptScreenSpoof, fraud.SeverityCritical, nil)
	s.Require().NoError(err)

	s.scriptMatch(true)
	result, err := s.service.VerifyIdentity(s.ctxAt(s.now.Add(25*time.Hour)), "guard-7", []byte("frame"))
	s.Require().NoError(err)
	s.Equal(verify.CodeVerified, result.Code)
}

// =============================================================================
// Verdicts
// =============================================================================

func (s *OrchestratorSuite) TestVerifyIdentity_Verified() {
	s.scriptMatch(true)

	result, err := s.service.VerifyIdentity(s.ctxAt(s.now), "guard-7", []byte("frame"))
	s.Require().NoError(err)
	s.True(result.Verified)
	s.Equal(verify.CodeVerified, result.Code)
	s.Equal(biometric.ModePrimary, result.Mode)
	s.InDelta(92.0, result.Confidence, 1e-9)
}

func (s *OrchestratorSuite) TestVerifyIdentity_NotEnrolled() {
	s.verifier.err = biometric.ErrNotEnrolled

	result, err := s.service.VerifyIdentity(s.ctxAt(s.now), "guard-ghost", []byte("frame"))
	s.Require().NoError(err)
	s.Equal(verify.CodeNotEnrolled, result.Code)
	s.False(result.Verified)
}

func (s *OrchestratorSuite) TestVerifyIdentity_EmptySubject() {
	_, err := s.service.VerifyIdentity(s.ctxAt(s.now), "", []byte("frame"))
	s.Error(err)
}

// =============================================================================
// Consecutive-failure tracking
// =============================================================================

func (s *OrchestratorSuite) TestVerifyIdentity_ThirdConsecutiveFailureRaisesMismatch() {
	ctx := s.ctxAt(s.now)
	s.scriptMatch(false)

	for i := 0; i < 2; i++ {
		result, err := s.service.VerifyIdentity(ctx, "guard-7", []byte("frame"))
		s.Require().NoError(err)
		s.Equal(verify.CodeIdentityMismatch, result.Code)
	}
	s.Zero(s.mismatchCount(ctx, "guard-7"), "below threshold, nothing reaches the ledger")

	_, err := s.service.VerifyIdentity(ctx, "guard-7", []byte("frame"))
	s.Require().NoError(err)

	history, err := s.fraudSvc.History(ctx, "guard-7")
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal(fraud.AttemptIdentityMismatch, history[0].Type)
	s.Equal(fraud.SeverityMedium, history[0].Severity)
}

func (s *OrchestratorSuite) TestVerifyIdentity_FourthFailureDoesNotDoubleRecord() {
	ctx := s.ctxAt(s.now)
	s.scriptMatch(false)

	for i := 0; i < 4; i++ {
		_, err := s.service.VerifyIdentity(ctx, "guard-7", []byte("frame"))
		s.Require().NoError(err)
	}
	s.Equal(1, s.mismatchCount(ctx, "guard-7"), "the record fires exactly at the threshold")
}

func (s *OrchestratorSuite) TestVerifyIdentity_SuccessResetsFailureRun() {
	ctx := s.ctxAt(s.now)

	s.scriptMatch(false)
	for i := 0; i < 2; i++ {
		_, err := s.service.VerifyIdentity(ctx, "guard-7", []byte("frame"))
		s.Require().NoError(err)
	}

	s.scriptMatch(true)
	_, err := s.service.VerifyIdentity(ctx, "guard-7", []byte("frame"))
	s.Require().NoError(err)

	s.scriptMatch(false)
	for i := 0; i < 2; i++ {
		_, err := s.service.VerifyIdentity(ctx, "guard-7", []byte("frame"))
		s.Require().NoError(err)
	}
	s.Zero(s.mismatchCount(ctx, "guard-7"), "the run restarted after the success")

	_, err = s.service.VerifyIdentity(ctx, "guard-7", []byte("frame"))
	s.Require().NoError(err)
	s.Equal(1, s.mismatchCount(ctx, "guard-7"))
}

func (s *OrchestratorSuite) TestVerifyIdentity_NotEnrolledCountsTowardFailureRun() {
	ctx := s.ctxAt(s.now)
	s.verifier.err = biometric.ErrNotEnrolled

	for i := 0; i < 3; i++ {
		_, err := s.service.VerifyIdentity(ctx, "guard-ghost", []byte("frame"))
		s.Require().NoError(err)
	}
	s.Equal(1, s.mismatchCount(ctx, "guard-ghost"))
}

func (s *OrchestratorSuite) TestVerifyIdentity_CountersAreIndependentPerSubject() {
	ctx := s.ctxAt(s.now)
	s.scriptMatch(false)

	for i := 0; i < 2; i++ {
		_, err := s.service.VerifyIdentity(ctx, "guard-a", []byte("frame"))
		s.Require().NoError(err)
		_, err = s.service.VerifyIdentity(ctx, "guard-b", []byte("frame"))
		s.Require().NoError(err)
	}
	s.Zero(s.mismatchCount(ctx, "guard-a"))
	s.Zero(s.mismatchCount(ctx, "guard-b"))
}

// =============================================================================
// Counter sweep
// =============================================================================

func (s *OrchestratorSuite) TestSweepCounters() {
	ctx := s.ctxAt(s.now)
	s.scriptMatch(false)

	for i := 0; i < 2; i++ {
		_, err := s.service.VerifyIdentity(ctx, "guard-7", []byte("frame"))
		s.Require().NoError(err)
	}

	s.Run("fresh counters survive", func() {
		s.Zero(s.service.SweepCounters(s.ctxAt(s.now.Add(time.Minute))))
	})

	s.Run("idle counters are dropped", func() {
		s.Equal(1, s.service.SweepCounters(s.ctxAt(s.now.Add(16*time.Minute))))
	})

	s.Run("a dropped counter restarts the failure run", func() {
		later := s.ctxAt(s.now.Add(20 * time.Minute))
		for i := 0; i < 2; i++ {
			_, err := s.service.VerifyIdentity(later, "guard-7", []byte("frame"))
			s.Require().NoError(err)
		}
		s.Zero(s.mismatchCount(later, "guard-7"))
	})
}

// =============================================================================
// IsBlocked passthrough
// =============================================================================

func (s *OrchestratorSuite) TestIsBlocked() {
	ctx := s.ctxAt(s.now)

	block, err := s.service.IsBlocked(ctx, "guard-clear")
	s.Require().NoError(err)
	s.Nil(block)

	_, err = s.fraudSvc.Record(ctx, "guard-blocked", fraud.AttemptGPSSpoof, fraud.SeverityCritical, nil)
	s.Require().NoError(err)

	block, err = s.service.IsBlocked(ctx, "guard-blocked")
	s.Require().NoError(err)
	s.Require().NotNil(block)
	s.Equal(fraud.AttemptGPSSpoof, block.Reason)
}
