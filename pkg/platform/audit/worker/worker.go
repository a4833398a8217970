package worker

import (
	"context"
	"log/slog"

	audit "vigil/pkg/platform/audit"
)

// Sink is where drained events land. audit.Store satisfies it, as does any
// downstream publisher wrapped to look like one.
type Sink interface {
	Append(ctx context.Context, event audit.Event) error
}

// Worker consumes audit events from a channel and persists them. Services
// that must not block on the sink emit into the inbox; the worker absorbs
// sink latency and logs (rather than drops silently) on append failure.
type Worker struct {
	sink   Sink
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

// Run drains the inbox until the context is cancelled. A failed append is
// logged and processing continues; audit delivery is best-effort here and
// fail-closed persistence belongs to the durable ledger, not this stream.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.sink.Append(ctx, event); err != nil && w.logger != nil {
				w.logger.ErrorContext(ctx, "audit append failed",
					"action", event.Action,
					"subject_id", event.SubjectID.String(),
					"error", err,
				)
			}
		}
	}
}

// ChannelPublisher adapts a channel into an audit.Publisher. Emit never
// blocks: if the inbox is full the event is dropped and an error returned so
// the caller's audit.Log helper can record the drop.
type ChannelPublisher struct {
	inbox chan<- audit.Event
}

func NewChannelPublisher(inbox chan<- audit.Event) *ChannelPublisher {
	return &ChannelPublisher{inbox: inbox}
}

func (p *ChannelPublisher) Emit(ctx context.Context, event audit.Event) error {
	select {
	case p.inbox <- audit.Enrich(ctx, event):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrInboxFull
	}
}

// ErrInboxFull signals backpressure from the audit pipeline.
var ErrInboxFull = errInboxFull{}

type errInboxFull struct{}

func (errInboxFull) Error() string { return "audit inbox full" }
