package fraud_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vigil/internal/fraud"
	fraudStore "vigil/internal/fraud/store"
	"vigil/internal/platform/config"
	id "vigil/pkg/domain"
	"vigil/pkg/platform/audit"
	auditMemory "vigil/pkg/platform/audit/store/memory"
	"vigil/pkg/requestcontext"
)

type LedgerSuite struct {
	suite.Suite
	store      *fraudStore.InMemoryFraudStore
	auditStore *auditMemory.InMemoryStore
	service    *fraud.Service
	now        time.Time
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.store = fraudStore.NewInMemoryFraudStore()
	s.auditStore = auditMemory.NewInMemoryStore()
	s.now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	var err error
	s.service, err = fraud.New(s.store, config.Default().FraudPolicy,
		fraud.WithAuditPublisher(audit.NewStorePublisher(s.auditStore)),
	)
	s.Require().NoError(err)
}

func (s *LedgerSuite) ctxAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *LedgerSuite) record(ctx context.Context, subject string, attemptType fraud.AttemptType, severity fraud.Severity) *fraud.Attempt {
	attempt, err := s.service.Record(ctx, id.SubjectID(subject), attemptType, severity, nil)
	s.Require().NoError(err)
	return attempt
}

// =============================================================================
// Constructor
// =============================================================================

func (s *LedgerSuite) TestNew() {
	_, err := fraud.New(nil, config.Default().FraudPolicy)
	s.Error(err)
}

// =============================================================================
// Escalation ladder
// =============================================================================

func (s *LedgerSuite) TestRecord_EscalationLadder() {
	ctx := s.ctxAt(s.now)
	subject := "guard-ladder"

	s.Run("first low-severity attempt is logged", func() {
		attempt := s.record(ctx, subject, fraud.AttemptGPSSpoof, fraud.SeverityLow)
		s.Equal(fraud.ActionLogged, attempt.Action)
		s.Nil(attempt.BlockedUntil)
	})

	s.Run("second attempt in window warns", func() {
		attempt := s.record(ctx, subject, fraud.AttemptGPSSpoof, fraud.SeverityLow)
		s.Equal(fraud.ActionWarned, attempt.Action)
	})

	s.Run("third attempt escalates", func() {
		attempt := s.record(ctx, subject, fraud.AttemptGPSSpoof, fraud.SeverityLow)
		s.Equal(fraud.ActionEscalated, attempt.Action)
	})

	s.Run("fourth attempt still escalated", func() {
		attempt := s.record(ctx, subject, fraud.AttemptGPSSpoof, fraud.SeverityLow)
		s.Equal(fraud.ActionEscalated, attempt.Action)
	})

	s.Run("fifth attempt blocks for exactly the block duration", func() {
		attempt := s.record(ctx, subject, fraud.AttemptGPSSpoof, fraud.SeverityMedium)
		s.Equal(fraud.ActionBlocked, attempt.Action)
		s.Require().NotNil(attempt.BlockedUntil)
		s.Equal(s.now.Add(24*time.Hour), *attempt.BlockedUntil)
	})
}

func (s *LedgerSuite) TestRecord_SeverityShortcuts() {
	ctx := s.ctxAt(s.now)

	s.Run("critical severity blocks on first attempt", func() {
		attempt := s.record(ctx, "guard-critical", fraud.AttemptDocumentForgery, fraud.SeverityCritical)
		s.Equal(fraud.ActionBlocked, attempt.Action)
		s.Require().NotNil(attempt.BlockedUntil)
		s.Equal(s.now.Add(24*time.Hour), *attempt.BlockedUntil)
	})

	s.Run("high severity escalates on first attempt without blocking", func() {
		attempt := s.record(ctx, "guard-high", fraud.AttemptScreenSpoof, fraud.SeverityHigh)
		s.Equal(fraud.ActionEscalated, attempt.Action)
		s.Nil(attempt.BlockedUntil)
	})
}

func (s *LedgerSuite) TestRecord_WindowExcludesOldAttempts() {
	subject := "guard-window"

	// Four attempts just over 24h in the past must not count toward the block.
	old := s.ctxAt(s.now.Add(-25 * time.Hour))
	for range 4 {
		s.record(old, subject, fraud.AttemptGPSSpoof, fraud.SeverityLow)
	}

	attempt := s.record(s.ctxAt(s.now), subject, fraud.AttemptGPSSpoof, fraud.SeverityLow)
	s.Equal(fraud.ActionLogged, attempt.Action)
}

// =============================================================================
// Blocked gate
// =============================================================================

func (s *LedgerSuite) TestIsBlocked() {
	subject := id.SubjectID("guard-blocked")
	ctx := s.ctxAt(s.now)
	s.record(ctx, subject.String(), fraud.AttemptPhotoSpoof, fraud.SeverityCritical)

	s.Run("active block is reported with reason and expiry", func() {
		block, err := s.service.IsBlocked(ctx, subject)
		s.NoError(err)
		s.Require().NotNil(block)
		s.Equal(fraud.AttemptPhotoSpoof, block.Reason)
		s.Equal(s.now.Add(24*time.Hour), block.Until)
		s.Equal(23*time.Hour, block.Remaining(s.now.Add(time.Hour)))
	})

	s.Run("block lifts after expiry", func() {
		later := s.ctxAt(s.now.Add(24*time.Hour + time.Second))
		block, err := s.service.IsBlocked(later, subject)
		s.NoError(err)
		s.Nil(block)
	})

	s.Run("unknown subject is clear", func() {
		block, err := s.service.IsBlocked(ctx, id.SubjectID("guard-unknown"))
		s.NoError(err)
		s.Nil(block)
	})

	s.Run("empty subject is rejected", func() {
		_, err := s.service.IsBlocked(ctx, id.SubjectID(""))
		s.Error(err)
	})
}

func (s *LedgerSuite) TestIsBlocked_ReturnsMostRecentBlock() {
	subject := id.SubjectID("guard-twice")

	s.record(s.ctxAt(s.now), subject.String(), fraud.AttemptPhotoSpoof, fraud.SeverityCritical)
	s.record(s.ctxAt(s.now.Add(time.Hour)), subject.String(), fraud.AttemptMultiDevice, fraud.SeverityCritical)

	block, err := s.service.IsBlocked(s.ctxAt(s.now.Add(2*time.Hour)), subject)
	s.NoError(err)
	s.Require().NotNil(block)
	s.Equal(fraud.AttemptMultiDevice, block.Reason)
	s.Equal(s.now.Add(25*time.Hour), block.Until)
}

// =============================================================================
// Record immutability
// =============================================================================

func (s *LedgerSuite) TestRecord_ActionSetOnce() {
	subject := id.SubjectID("guard-immutable")
	ctx := s.ctxAt(s.now)

	first := s.record(ctx, subject.String(), fraud.AttemptGPSSpoof, fraud.SeverityLow)
	s.Equal(fraud.ActionLogged, first.Action)

	// Later attempts escalate their own records; the first record's verdict
	// must not be revised retroactively.
	for range 4 {
		s.record(ctx, subject.String(), fraud.AttemptGPSSpoof, fraud.SeverityLow)
	}

	history, err := s.service.History(ctx, subject)
	s.Require().NoError(err)
	s.Require().Len(history, 5)
	s.Equal(fraud.ActionLogged, history[0].Action)
	s.Nil(history[0].BlockedUntil)
	s.Equal(fraud.ActionBlocked, history[4].Action)
}

// =============================================================================
// Concurrency
// =============================================================================

func (s *LedgerSuite) TestRecord_ConcurrentSameSubject() {
	subject := id.SubjectID("guard-concurrent")
	ctx := s.ctxAt(s.now)

	const attempts = 10
	var wg sync.WaitGroup
	wg.Add(attempts)
	for range attempts {
		go func() {
			defer wg.Done()
			_, err := s.service.Record(ctx, subject, fraud.AttemptGPSSpoof, fraud.SeverityLow, nil)
			s.NoError(err)
		}()
	}
	wg.Wait()

	// No attempt may be dropped or double-counted: all ten land, and the
	// block threshold fires exactly once the trailing count reaches it.
	history, err := s.service.History(ctx, subject)
	s.Require().NoError(err)
	s.Len(history, attempts)

	blocked := 0
	for _, attempt := range history {
		if attempt.Action == fraud.ActionBlocked {
			blocked++
		}
	}
	s.Equal(attempts-4, blocked) // records 5..10 each see a trailing count >= 5
}

// =============================================================================
// Audit
// =============================================================================

func (s *LedgerSuite) TestRecord_EmitsAuditEvents() {
	ctx := s.ctxAt(s.now)
	subject := id.SubjectID("guard-audit")

	s.record(ctx, subject.String(), fraud.AttemptVideoSpoof, fraud.SeverityCritical)

	events, err := s.auditStore.ListBySubject(ctx, subject)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(string(audit.EventFraudAttemptRecorded), events[0].Action)
	s.Equal(string(audit.EventSubjectBlocked), events[1].Action)
	s.Equal(audit.CategorySecurity, events[0].Category)
}

// =============================================================================
// Validation
// =============================================================================

func (s *LedgerSuite) TestRecord_RejectsInvalidInput() {
	ctx := s.ctxAt(s.now)

	_, err := s.service.Record(ctx, id.SubjectID(""), fraud.AttemptOther, fraud.SeverityLow, nil)
	s.Error(err)

	_, err = s.service.Record(ctx, id.SubjectID("guard-1"), fraud.AttemptType("bogus"), fraud.SeverityLow, nil)
	s.Error(err)

	_, err = s.service.Record(ctx, id.SubjectID("guard-1"), fraud.AttemptOther, fraud.Severity("bogus"), nil)
	s.Error(err)
}
