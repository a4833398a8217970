package spoof_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vigil/internal/platform/config"
	"vigil/internal/spoof"
	spoofStore "vigil/internal/spoof/store"
	id "vigil/pkg/domain"
	dErrors "vigil/pkg/domain-errors"
)

type DetectorSuite struct {
	suite.Suite
	store    *spoofStore.InMemoryLocationStore
	detector *spoof.Detector
	base     time.Time
}

func TestDetectorSuite(t *testing.T) {
	suite.Run(t, new(DetectorSuite))
}

func (s *DetectorSuite) SetupTest() {
	s.store = spoofStore.NewInMemoryLocationStore()

	var err error
	s.detector, err = spoof.NewDetector(s.store, config.Default().Spoof)
	s.Require().NoError(err)

	s.base = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
}

func (s *DetectorSuite) sample(subject string, lat, lon float64, at time.Time) spoof.LocationSample {
	return spoof.LocationSample{
		SubjectID:      id.SubjectID(subject),
		Latitude:       lat,
		Longitude:      lon,
		AccuracyMeters: 10,
		RecordedAt:     at,
	}
}

func (s *DetectorSuite) seed(sample spoof.LocationSample) {
	s.Require().NoError(s.store.Append(context.Background(), sample))
}

// =============================================================================
// Constructor
// =============================================================================

func (s *DetectorSuite) TestNewDetector() {
	_, err := spoof.NewDetector(nil, config.Default().Spoof)
	s.Error(err)
}

// =============================================================================
// Validation
// =============================================================================

func (s *DetectorSuite) TestDetect_InvalidLocation() {
	ctx := context.Background()

	s.Run("latitude out of range", func() {
		bad := s.sample("guard-1", 91, 0, s.base)
		_, err := s.detector.Detect(ctx, bad)
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("longitude out of range", func() {
		bad := s.sample("guard-1", 0, -181, s.base)
		_, err := s.detector.Detect(ctx, bad)
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("missing subject", func() {
		bad := s.sample("", 0, 0, s.base)
		_, err := s.detector.Detect(ctx, bad)
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("negative accuracy", func() {
		bad := s.sample("guard-1", 0, 0, s.base)
		bad.AccuracyMeters = -1
		_, err := s.detector.Detect(ctx, bad)
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// =============================================================================
// Non-evaluable pairs
// =============================================================================

func (s *DetectorSuite) TestDetect_NoPriorSample() {
	// First-ever sample for a subject cannot be evaluated and is never flagged.
	result, err := s.detector.Detect(context.Background(), s.sample("guard-new", 40.0, -3.7, s.base))
	s.NoError(err)
	s.False(result.Spoofed)
	s.Equal(spoof.ReasonNoPriorSample, result.Reason)
}

func (s *DetectorSuite) TestDetect_NonPositiveGap() {
	ctx := context.Background()
	s.seed(s.sample("guard-1", 40.0, -3.7, s.base))

	s.Run("clock regression", func() {
		result, err := s.detector.Detect(ctx, s.sample("guard-1", 48.85, 2.35, s.base.Add(-time.Minute)))
		s.NoError(err)
		s.False(result.Spoofed)
		s.Equal(spoof.ReasonNonPositiveGap, result.Reason)
	})

	s.Run("duplicate timestamp", func() {
		result, err := s.detector.Detect(ctx, s.sample("guard-1", 48.85, 2.35, s.base))
		s.NoError(err)
		s.False(result.Spoofed)
		s.Equal(spoof.ReasonNonPositiveGap, result.Reason)
	})
}

// =============================================================================
// Flag logic
// =============================================================================

func (s *DetectorSuite) TestDetect_Teleportation() {
	// Madrid to Paris (~1050 km) in one hour is > 500 km/h.
	s.seed(s.sample("guard-1", 40.4168, -3.7038, s.base))

	result, err := s.detector.Detect(context.Background(), s.sample("guard-1", 48.8566, 2.3522, s.base.Add(time.Hour)))
	s.NoError(err)
	s.True(result.Teleportation)
	s.True(result.Spoofed)
	s.Equal(spoof.ReasonTeleportation, result.Reason)
	s.Greater(result.SpeedKmh, 500.0)
}

func (s *DetectorSuite) TestDetect_ImpossibleBurst() {
	// 100 km in 60 seconds is 6000 km/h: both the burst and teleport bars trip.
	s.seed(s.sample("guard-1", 40.0, -3.7, s.base))

	moved := s.sample("guard-1", 40.8993, -3.7, s.base.Add(time.Minute))
	result, err := s.detector.Detect(context.Background(), moved)
	s.NoError(err)
	s.True(result.ImpossibleSpeed)
	s.True(result.Teleportation)
	s.True(result.Spoofed)
	s.InDelta(6000, result.SpeedKmh, 100)
}

func (s *DetectorSuite) TestDetect_BurstWindowBoundary() {
	// 4 km at 240 km/h: over the burst bar, under the teleport bar, so the
	// verdict hinges entirely on the gap against the window.
	ctx := context.Background()

	s.Run("gap of exactly the window trips the flag", func() {
		s.seed(s.sample("guard-boundary", 40.0, -3.7, s.base))

		moved := s.sample("guard-boundary", 40.036, -3.7, s.base.Add(time.Minute))
		result, err := s.detector.Detect(ctx, moved)
		s.NoError(err)
		s.True(result.ImpossibleSpeed)
		s.False(result.Teleportation)
		s.True(result.Spoofed)
		s.Equal(spoof.ReasonImpossibleSpeed, result.Reason)
	})

	s.Run("one second past the window does not", func() {
		s.seed(s.sample("guard-past", 40.0, -3.7, s.base))

		moved := s.sample("guard-past", 40.036, -3.7, s.base.Add(time.Minute+time.Second))
		result, err := s.detector.Detect(ctx, moved)
		s.NoError(err)
		s.False(result.ImpossibleSpeed)
		s.False(result.Spoofed)
	})
}

func (s *DetectorSuite) TestDetect_BurstBarNeedsShortGap() {
	// 200 km/h over ten minutes: above the burst bar but outside the burst
	// window and below the teleport bar, so not spoofed.
	s.seed(s.sample("guard-1", 40.0, -3.7, s.base))

	moved := s.sample("guard-1", 40.2996, -3.7, s.base.Add(10*time.Minute))
	result, err := s.detector.Detect(context.Background(), moved)
	s.NoError(err)
	s.False(result.ImpossibleSpeed)
	s.False(result.Teleportation)
	s.False(result.Spoofed)
	s.InDelta(200, result.SpeedKmh, 10)
}

func (s *DetectorSuite) TestDetect_MockLocationFlag() {
	s.seed(s.sample("guard-1", 40.0, -3.7, s.base))

	mocked := s.sample("guard-1", 40.001, -3.7, s.base.Add(time.Minute))
	mocked.IsMock = true
	result, err := s.detector.Detect(context.Background(), mocked)
	s.NoError(err)
	s.True(result.MockLocation)
	s.True(result.Spoofed)
	s.Equal(spoof.ReasonMockLocation, result.Reason)
}

func (s *DetectorSuite) TestDetect_LowAccuracyIsInformational() {
	s.seed(s.sample("guard-1", 40.0, -3.7, s.base))

	fuzzy := s.sample("guard-1", 40.001, -3.7, s.base.Add(time.Minute))
	fuzzy.AccuracyMeters = 250
	result, err := s.detector.Detect(context.Background(), fuzzy)
	s.NoError(err)
	s.True(result.LowAccuracy)
	s.False(result.Spoofed)
}

func (s *DetectorSuite) TestDetect_PlausibleMovement() {
	// Walking pace across a site: nothing flags.
	s.seed(s.sample("guard-1", 40.0, -3.7, s.base))

	result, err := s.detector.Detect(context.Background(), s.sample("guard-1", 40.0005, -3.7002, s.base.Add(5*time.Minute)))
	s.NoError(err)
	s.False(result.Spoofed)
	s.False(result.Teleportation)
	s.False(result.ImpossibleSpeed)
	s.False(result.MockLocation)
	s.Empty(result.Reason)
}

// =============================================================================
// Ingest
// =============================================================================

func (s *DetectorSuite) TestIngest_AppendsEvenWhenFlagged() {
	ctx := context.Background()
	s.seed(s.sample("guard-1", 40.4168, -3.7038, s.base))

	teleported := s.sample("guard-1", 48.8566, 2.3522, s.base.Add(time.Minute))
	result, err := s.detector.Ingest(ctx, teleported)
	s.NoError(err)
	s.True(result.Spoofed)

	// The flagged sample is now the reference point for the next evaluation.
	last, err := s.store.LastSample(ctx, id.SubjectID("guard-1"))
	s.NoError(err)
	s.Equal(teleported.RecordedAt, last.RecordedAt)
	s.Equal(teleported.Latitude, last.Latitude)
}
