//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/fraud"
	"vigil/internal/fraud/store"
	id "vigil/pkg/domain"
	"vigil/pkg/sentinel"
	"vigil/pkg/testutil/containers"
)

func TestPostgresFraudStore(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	pg.Apply(t, store.Schema)

	ctx := context.Background()
	ledger := store.NewPostgresFraudStore(pg.Pool)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	appendAt := func(subject string, at time.Time, action fraud.ActionTaken, blockedUntil *time.Time) *fraud.Attempt {
		attempt, err := fraud.NewAttempt(id.SubjectID(subject), fraud.AttemptGPSSpoof, fraud.SeverityMedium, []byte(`{"speed_kmh":900}`), at)
		require.NoError(t, err)
		attempt.Action = action
		attempt.BlockedUntil = blockedUntil
		require.NoError(t, ledger.Append(ctx, attempt))
		return attempt
	}

	t.Run("append and list in creation order", func(t *testing.T) {
		appendAt("guard-order", now, fraud.ActionLogged, nil)
		appendAt("guard-order", now.Add(time.Minute), fraud.ActionWarned, nil)

		attempts, err := ledger.ListSince(ctx, "guard-order", now.Add(-time.Hour))
		require.NoError(t, err)
		require.Len(t, attempts, 2)
		assert.Equal(t, fraud.ActionLogged, attempts[0].Action)
		assert.Equal(t, fraud.ActionWarned, attempts[1].Action)
		assert.Equal(t, []byte(`{"speed_kmh":900}`), attempts[0].Evidence)
	})

	t.Run("count respects the window boundary", func(t *testing.T) {
		appendAt("guard-window", now.Add(-25*time.Hour), fraud.ActionLogged, nil)
		appendAt("guard-window", now, fraud.ActionLogged, nil)

		count, err := ledger.CountSince(ctx, "guard-window", now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("latest active block", func(t *testing.T) {
		early := now.Add(12 * time.Hour)
		late := now.Add(30 * time.Hour)
		appendAt("guard-blocked", now.Add(-time.Hour), fraud.ActionBlocked, &early)
		appendAt("guard-blocked", now, fraud.ActionBlocked, &late)

		attempt, err := ledger.LatestActiveBlock(ctx, "guard-blocked", now)
		require.NoError(t, err)
		require.NotNil(t, attempt.BlockedUntil)
		assert.Equal(t, late.Unix(), attempt.BlockedUntil.Unix())
	})

	t.Run("expired block is not active", func(t *testing.T) {
		past := now.Add(-time.Minute)
		appendAt("guard-expired", now.Add(-25*time.Hour), fraud.ActionBlocked, &past)

		_, err := ledger.LatestActiveBlock(ctx, "guard-expired", now)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("unknown subject has no active block", func(t *testing.T) {
		_, err := ledger.LatestActiveBlock(ctx, "guard-ghost", now)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
