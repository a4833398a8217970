//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/spoof"
	"vigil/internal/spoof/store"
	"vigil/pkg/sentinel"
	"vigil/pkg/testutil/containers"
)

func TestRedisLocationStore(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	locations := store.NewRedisLocationStore(rc.Client)

	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	sampleAt := func(at time.Time, lat, lon float64) spoof.LocationSample {
		return spoof.LocationSample{
			SubjectID:      "guard-7",
			Latitude:       lat,
			Longitude:      lon,
			AccuracyMeters: 10,
			RecordedAt:     at,
		}
	}

	t.Run("unknown subject has no last sample", func(t *testing.T) {
		_, err := locations.LastSample(ctx, "guard-ghost")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("append then read back the latest", func(t *testing.T) {
		require.NoError(t, locations.Append(ctx, sampleAt(now, 40.4168, -3.7038)))
		require.NoError(t, locations.Append(ctx, sampleAt(now.Add(time.Minute), 40.4170, -3.7040)))

		last, err := locations.LastSample(ctx, "guard-7")
		require.NoError(t, err)
		assert.InDelta(t, 40.4170, last.Latitude, 1e-9)
		assert.True(t, last.RecordedAt.Equal(now.Add(time.Minute)))
	})

	t.Run("history is capped", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		for i := 0; i < 150; i++ {
			require.NoError(t, locations.Append(ctx, sampleAt(now.Add(time.Duration(i)*time.Minute), 40.0, -3.0)))
		}

		length, err := rc.Client.LLen(ctx, "loc:hist:guard-7").Result()
		require.NoError(t, err)
		assert.EqualValues(t, 100, length)
	})
}
