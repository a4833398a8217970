package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vigil/pkg/platform/audit"
	auditMemory "vigil/pkg/platform/audit/store/memory"
	"vigil/pkg/requestcontext"
)

type PublisherSuite struct {
	suite.Suite
	store     *auditMemory.InMemoryStore
	publisher *audit.StorePublisher
	now       time.Time
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.store = auditMemory.NewInMemoryStore()
	s.publisher = audit.NewStorePublisher(s.store)
	s.now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
}

func (s *PublisherSuite) TestEmit_FillsContextFields() {
	ctx := requestcontext.WithTime(context.Background(), s.now)
	ctx = requestcontext.WithRequestID(ctx, "req-123")
	ctx = requestcontext.WithClientIP(ctx, "10.0.0.9")

	err := s.publisher.Emit(ctx, audit.Event{
		SubjectID: "guard-7",
		Action:    string(audit.EventSubjectBlocked),
	})
	s.Require().NoError(err)

	events, err := s.store.ListBySubject(ctx, "guard-7")
	s.Require().NoError(err)
	s.Require().Len(events, 1)

	event := events[0]
	s.Equal(s.now, event.Timestamp)
	s.Equal(audit.CategorySecurity, event.Category, "category derives from the action")
	s.Equal("req-123", event.RequestID)
	s.Equal("10.0.0.9", event.IP)
}

func (s *PublisherSuite) TestEmit_ExplicitFieldsWin() {
	ctx := requestcontext.WithTime(context.Background(), s.now)

	err := s.publisher.Emit(ctx, audit.Event{
		Category:  audit.CategoryOperations,
		Timestamp: s.now.Add(-time.Hour),
		SubjectID: "guard-7",
		Action:    string(audit.EventSubjectBlocked),
	})
	s.Require().NoError(err)

	events, err := s.store.ListBySubject(ctx, "guard-7")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(audit.CategoryOperations, events[0].Category)
	s.Equal(s.now.Add(-time.Hour), events[0].Timestamp)
}

func (s *PublisherSuite) TestCategories() {
	s.Equal(audit.CategoryCompliance, audit.EventEnrollmentReplaced.Category())
	s.Equal(audit.CategorySecurity, audit.EventFraudAttemptRecorded.Category())
	s.Equal(audit.CategoryOperations, audit.EventLivenessPassed.Category())
	s.Equal(audit.CategoryOperations, audit.AuditEvent("unknown_event").Category())
}

func (s *PublisherSuite) TestListRecent() {
	ctx := requestcontext.WithTime(context.Background(), s.now)
	for i, action := range []audit.AuditEvent{audit.EventLivenessStarted, audit.EventLivenessPassed, audit.EventVerifySucceeded} {
		err := s.publisher.Emit(ctx, audit.Event{
			Timestamp: s.now.Add(time.Duration(i) * time.Second),
			SubjectID: "guard-7",
			Action:    string(action),
		})
		s.Require().NoError(err)
	}

	recent, err := s.store.ListRecent(ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(recent, 2)
	s.Equal(string(audit.EventLivenessPassed), recent[0].Action)
	s.Equal(string(audit.EventVerifySucceeded), recent[1].Action, "the tail is the most recent")
}
