package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/pkg/platform/audit"
	auditMemory "vigil/pkg/platform/audit/store/memory"
	"vigil/pkg/platform/audit/worker"
)

func TestWorker_DrainsInboxIntoStore(t *testing.T) {
	store := auditMemory.NewInMemoryStore()
	inbox := make(chan audit.Event, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = worker.NewWorker(store, inbox, nil).Run(ctx)
		close(done)
	}()

	publisher := worker.NewChannelPublisher(inbox)
	require.NoError(t, publisher.Emit(ctx, audit.Event{SubjectID: "guard-7", Action: "verify_succeeded"}))
	require.NoError(t, publisher.Emit(ctx, audit.Event{SubjectID: "guard-7", Action: "verify_failed"}))

	require.Eventually(t, func() bool {
		events, err := store.ListBySubject(context.Background(), "guard-7")
		return err == nil && len(events) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on cancellation")
	}
}

func TestChannelPublisher_FullInboxDoesNotBlock(t *testing.T) {
	inbox := make(chan audit.Event, 1)
	publisher := worker.NewChannelPublisher(inbox)
	ctx := context.Background()

	require.NoError(t, publisher.Emit(ctx, audit.Event{Action: "first"}))
	assert.ErrorIs(t, publisher.Emit(ctx, audit.Event{Action: "second"}), worker.ErrInboxFull)
}
