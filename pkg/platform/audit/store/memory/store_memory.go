package memory

import (
	"context"
	"sync"

	id "vigil/pkg/domain"
	audit "vigil/pkg/platform/audit"
)

// InMemoryStore keeps audit events per subject plus a global ordered list.
// Intended for tests and single-process deployments.
type InMemoryStore struct {
	mu        sync.RWMutex
	bySubject map[id.SubjectID][]audit.Event
	ordered   []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{bySubject: make(map[id.SubjectID][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySubject = make(map[id.SubjectID][]audit.Event)
	s.ordered = nil
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySubject[event.SubjectID] = append(s.bySubject[event.SubjectID], event)
	s.ordered = append(s.ordered, event)
	return nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subjectID id.SubjectID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.bySubject[subjectID]...), nil
}

// ListRecent returns the most recent N events across all subjects.
// Events are appended in arrival order, so the tail is the most recent.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := len(s.ordered) - limit
	if start < 0 {
		start = 0
	}
	return append([]audit.Event{}, s.ordered[start:]...), nil
}
