package store

import (
	"context"
	"sync"

	"vigil/internal/liveness"
	id "vigil/pkg/domain"
)

// InMemoryOutcomeLog keeps outcome records in memory, in append order.
type InMemoryOutcomeLog struct {
	mu        sync.RWMutex
	records   []liveness.OutcomeRecord
	bySubject map[id.SubjectID][]int
}

func NewInMemoryOutcomeLog() *InMemoryOutcomeLog {
	return &InMemoryOutcomeLog{
		bySubject: make(map[id.SubjectID][]int),
	}
}

func (l *InMemoryOutcomeLog) AppendOutcome(_ context.Context, record liveness.OutcomeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.bySubject[record.SubjectID] = append(l.bySubject[record.SubjectID], len(l.records))
	l.records = append(l.records, record)
	return nil
}

func (l *InMemoryOutcomeLog) ListBySubject(_ context.Context, subjectID id.SubjectID) ([]liveness.OutcomeRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	indexes := l.bySubject[subjectID]
	out := make([]liveness.OutcomeRecord, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, l.records[i])
	}
	return out, nil
}

// All returns every record in append order. Test helper.
func (l *InMemoryOutcomeLog) All() []liveness.OutcomeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]liveness.OutcomeRecord(nil), l.records...)
}
