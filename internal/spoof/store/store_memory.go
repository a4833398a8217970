package store

import (
	"context"
	"sync"

	"vigil/internal/spoof"
	id "vigil/pkg/domain"
	"vigil/pkg/sentinel"
)

// InMemoryLocationStore keeps per-subject location history in process memory.
// Canonical for tests and single-instance deployments; the Redis store is the
// distributed variant.
type InMemoryLocationStore struct {
	mu      sync.RWMutex
	samples map[id.SubjectID][]spoof.LocationSample

	// maxHistory bounds per-subject retention. The detector only needs the
	// latest sample; a short tail is kept for review tooling.
	maxHistory int
}

func NewInMemoryLocationStore() *InMemoryLocationStore {
	return &InMemoryLocationStore{
		samples:    make(map[id.SubjectID][]spoof.LocationSample),
		maxHistory: 100,
	}
}

func (s *InMemoryLocationStore) LastSample(_ context.Context, subjectID id.SubjectID) (*spoof.LocationSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.samples[subjectID]
	if len(history) == 0 {
		return nil, sentinel.ErrNotFound
	}
	last := history[len(history)-1]
	return &last, nil
}

func (s *InMemoryLocationStore) Append(_ context.Context, sample spoof.LocationSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.samples[sample.SubjectID], sample)
	if len(history) > s.maxHistory {
		history = history[len(history)-s.maxHistory:]
	}
	s.samples[sample.SubjectID] = history
	return nil
}
