package store

import (
	"context"
	"sync"

	"vigil/internal/biometric"
	id "vigil/pkg/domain"
	"vigil/pkg/sentinel"
)

// InMemoryEnrollmentStore keeps descriptors in a map. Used by unit tests and
// single-node deployments without Postgres.
type InMemoryEnrollmentStore struct {
	mu          sync.RWMutex
	descriptors map[id.SubjectID]biometric.Descriptor
}

func NewInMemoryEnrollmentStore() *InMemoryEnrollmentStore {
	return &InMemoryEnrollmentStore{
		descriptors: make(map[id.SubjectID]biometric.Descriptor),
	}
}

func (s *InMemoryEnrollmentStore) SetDescriptor(_ context.Context, subjectID id.SubjectID, descriptor biometric.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make(biometric.Descriptor, len(descriptor))
	copy(stored, descriptor)
	s.descriptors[subjectID] = stored
	return nil
}

func (s *InMemoryEnrollmentStore) GetDescriptor(_ context.Context, subjectID id.SubjectID) (biometric.Descriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	descriptor, ok := s.descriptors[subjectID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := make(biometric.Descriptor, len(descriptor))
	copy(out, descriptor)
	return out, nil
}

func (s *InMemoryEnrollmentStore) DeleteDescriptor(_ context.Context, subjectID id.SubjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.descriptors[subjectID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.descriptors, subjectID)
	return nil
}

func (s *InMemoryEnrollmentStore) ListDescriptors(_ context.Context) (map[id.SubjectID]biometric.Descriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[id.SubjectID]biometric.Descriptor, len(s.descriptors))
	for subjectID, descriptor := range s.descriptors {
		copied := make(biometric.Descriptor, len(descriptor))
		copy(copied, descriptor)
		out[subjectID] = copied
	}
	return out, nil
}
