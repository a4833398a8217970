package store

import (
	"context"
	"sync"
	"time"

	"vigil/internal/fraud"
	id "vigil/pkg/domain"
	"vigil/pkg/sentinel"
)

// InMemoryFraudStore keeps the ledger per subject in creation order.
// Canonical for tests and single-instance deployments; production uses the
// Postgres store behind the same interface.
type InMemoryFraudStore struct {
	mu       sync.RWMutex
	attempts map[id.SubjectID][]*fraud.Attempt
}

func NewInMemoryFraudStore() *InMemoryFraudStore {
	return &InMemoryFraudStore{attempts: make(map[id.SubjectID][]*fraud.Attempt)}
}

func (s *InMemoryFraudStore) Append(_ context.Context, attempt *fraud.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy so later caller mutations cannot reach the stored record.
	stored := *attempt
	s.attempts[attempt.SubjectID] = append(s.attempts[attempt.SubjectID], &stored)
	return nil
}

func (s *InMemoryFraudStore) CountSince(_ context.Context, subjectID id.SubjectID, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, attempt := range s.attempts[subjectID] {
		if !attempt.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryFraudStore) ListSince(_ context.Context, subjectID id.SubjectID, since time.Time) ([]*fraud.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*fraud.Attempt
	for _, attempt := range s.attempts[subjectID] {
		if !attempt.CreatedAt.Before(since) {
			copied := *attempt
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *InMemoryFraudStore) LatestActiveBlock(_ context.Context, subjectID id.SubjectID, now time.Time) (*fraud.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.attempts[subjectID]
	for i := len(history) - 1; i >= 0; i-- {
		attempt := history[i]
		if attempt.Action != fraud.ActionBlocked || attempt.BlockedUntil == nil {
			continue
		}
		if attempt.BlockedUntil.After(now) {
			copied := *attempt
			return &copied, nil
		}
	}
	return nil, sentinel.ErrNotFound
}
