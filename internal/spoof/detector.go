package spoof

import (
	"context"
	"errors"
	"log/slog"

	"vigil/internal/platform/config"
	"vigil/internal/platform/metrics"
	id "vigil/pkg/domain"
	dErrors "vigil/pkg/domain-errors"
	"vigil/pkg/platform/audit"
	"vigil/pkg/sentinel"
)

// LocationStore gives the detector read access to a subject's most recent
// sample. The tracking ingest path owns appends; the detector never writes.
type LocationStore interface {
	LastSample(ctx context.Context, subjectID id.SubjectID) (*LocationSample, error)
	Append(ctx context.Context, sample LocationSample) error
}

// Detector evaluates kinematic plausibility of a new location sample against
// the subject's last known position. It is a pure query over two records:
// no state beyond what the store holds, no side effects from Detect.
type Detector struct {
	store LocationStore
	cfg   config.Spoof

	logger         *slog.Logger
	auditPublisher audit.Publisher
	metrics        *metrics.Metrics
}

type Option func(*Detector)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) { d.logger = logger }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(d *Detector) { d.auditPublisher = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Detector) { d.metrics = m }
}

func NewDetector(store LocationStore, cfg config.Spoof, opts ...Option) (*Detector, error) {
	if store == nil {
		return nil, errors.New("location store is required")
	}
	d := &Detector{store: store, cfg: cfg}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Detect computes the spoof verdict for sample without recording it.
//
// A subject with no prior sample, or a sample pair with a non-positive time
// gap, cannot be evaluated and is not penalized. The non-positive-gap case
// under-detects replay-timestamp attacks; that leniency is a deliberate
// policy choice revisited periodically, not an oversight.
func (d *Detector) Detect(ctx context.Context, sample LocationSample) (Result, error) {
	if err := sample.Validate(); err != nil {
		return Result{}, err
	}

	prior, err := d.store.LastSample(ctx, sample.SubjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Result{Reason: ReasonNoPriorSample}, nil
		}
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load prior location sample")
	}

	gap := sample.RecordedAt.Sub(prior.RecordedAt)
	if gap <= 0 {
		// Clock regression or duplicate timestamp: ambiguous, not penalized.
		return Result{Reason: ReasonNonPositiveGap}, nil
	}

	distanceKm := haversineKm(prior.Latitude, prior.Longitude, sample.Latitude, sample.Longitude)
	speedKmh := distanceKm / gap.Hours()

	result := Result{
		SpeedKmh:   speedKmh,
		DistanceKm: distanceKm,
	}

	result.Teleportation = speedKmh > d.cfg.TeleportSpeedKmh
	result.MockLocation = sample.IsMock
	// The burst window bound is inclusive: a jump timed at exactly the window
	// still counts.
	result.ImpossibleSpeed = speedKmh > d.cfg.BurstSpeedKmh && gap <= d.cfg.BurstWindow
	result.LowAccuracy = sample.AccuracyMeters > d.cfg.MaxAccuracyMeters

	result.Spoofed = result.Teleportation || result.MockLocation || result.ImpossibleSpeed

	switch {
	case result.Teleportation:
		result.Reason = ReasonTeleportation
	case result.MockLocation:
		result.Reason = ReasonMockLocation
	case result.ImpossibleSpeed:
		result.Reason = ReasonImpossibleSpeed
	}

	return result, nil
}

// Ingest is the tracking write path: it evaluates the sample against the
// prior one, then appends it so it becomes the new reference point. The
// sample is appended whether or not it was flagged; the fraud response is
// the caller's concern, the history must stay truthful.
func (d *Detector) Ingest(ctx context.Context, sample LocationSample) (Result, error) {
	result, err := d.Detect(ctx, sample)
	if err != nil {
		return Result{}, err
	}
	if err := d.store.Append(ctx, sample); err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append location sample")
	}

	d.observe(ctx, sample, result)
	return result, nil
}

// observe reports raised flags to metrics and, when the verdict is spoofed,
// to the audit trail. Detect itself stays a pure query.
func (d *Detector) observe(ctx context.Context, sample LocationSample, result Result) {
	if d.metrics != nil {
		for flag, raised := range map[string]bool{
			"teleportation":    result.Teleportation,
			"mock_location":    result.MockLocation,
			"impossible_speed": result.ImpossibleSpeed,
			"low_accuracy":     result.LowAccuracy,
		} {
			if raised {
				d.metrics.SpoofFlags.WithLabelValues(flag).Inc()
			}
		}
	}

	if !result.Spoofed {
		return
	}
	audit.Log(ctx, d.logger, d.auditPublisher, audit.Event{
		SubjectID: sample.SubjectID,
		Action:    string(audit.EventSpoofDetected),
		Reason:    result.Reason,
		Severity:  audit.SeverityWarning,
	},
		"speed_kmh", result.SpeedKmh,
		"distance_km", result.DistanceKm,
	)
}
