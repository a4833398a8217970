package audit

import (
	"context"
	"log/slog"

	id "vigil/pkg/domain"
	"vigil/pkg/requestcontext"
)

// Store is the persistence contract for audit events. Implementations are
// append-only; queries exist for review tooling and tests.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Publisher is the interface domain services depend on. The concrete
// publisher below writes through a Store; the kafka subpackage ships an
// alternative that produces to a topic instead.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// StorePublisher captures structured audit events into a Store. It is
// append-only and uses the storage layer for persistence so tests can swap
// sinks easily.
type StorePublisher struct {
	store Store
}

func NewStorePublisher(store Store) *StorePublisher {
	return &StorePublisher{store: store}
}

func (p *StorePublisher) Emit(ctx context.Context, event Event) error {
	return p.store.Append(ctx, Enrich(ctx, event))
}

// Enrich fills event fields derivable from the request context: timestamp,
// category, correlation ID, client IP. Explicitly set fields win. Publishers
// call this before handing the event off, so enrichment happens while the
// originating context is still live rather than in a worker that has lost it.
func Enrich(ctx context.Context, event Event) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.Category == "" {
		event.Category = AuditEvent(event.Action).Category()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.IP == "" {
		event.IP = requestcontext.ClientIP(ctx)
	}
	return event
}

// List returns the audit trail for one subject.
func (p *StorePublisher) List(ctx context.Context, subjectID id.SubjectID) ([]Event, error) {
	return p.store.ListBySubject(ctx, subjectID)
}

// Log emits an audit event and mirrors it to the structured logger. Services
// use this helper so every audit-worthy transition shows up in both places
// without duplicating call sites. A nil publisher or logger is skipped.
func Log(ctx context.Context, logger *slog.Logger, publisher Publisher, event Event, attrs ...any) {
	if logger != nil {
		args := append(attrs,
			"event", event.Action,
			"subject_id", event.SubjectID.String(),
			"log_type", "audit",
		)
		logger.InfoContext(ctx, event.Action, args...)
	}
	if publisher == nil {
		return
	}
	if err := publisher.Emit(ctx, event); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", event.Action, "error", err)
	}
}
