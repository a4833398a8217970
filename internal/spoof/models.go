package spoof

import (
	"time"

	id "vigil/pkg/domain"
	dErrors "vigil/pkg/domain-errors"
)

// LocationSample is one GPS reading for a subject. Samples are immutable once
// recorded and ordered by RecordedAt per subject; the detector only ever reads
// the single most recent prior sample.
type LocationSample struct {
	SubjectID      id.SubjectID `json:"subject_id"`
	Latitude       float64      `json:"latitude"`
	Longitude      float64      `json:"longitude"`
	AccuracyMeters float64      `json:"accuracy_meters"`
	RecordedAt     time.Time    `json:"recorded_at"`
	// IsMock is set by the mobile client when the OS reports a mock location
	// provider. Trivially forgeable on rooted devices, which is why it is one
	// signal among several rather than the decision.
	IsMock bool `json:"is_mock"`
}

// Validate enforces coordinate sanity at the trust boundary.
func (s LocationSample) Validate() error {
	if s.SubjectID.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "location sample requires a subject id")
	}
	if s.Latitude < -90 || s.Latitude > 90 {
		return dErrors.Newf(dErrors.CodeValidation, "invalid latitude %.6f: must be within [-90, 90]", s.Latitude)
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		return dErrors.Newf(dErrors.CodeValidation, "invalid longitude %.6f: must be within [-180, 180]", s.Longitude)
	}
	if s.AccuracyMeters < 0 {
		return dErrors.New(dErrors.CodeValidation, "accuracy cannot be negative")
	}
	if s.RecordedAt.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "location sample requires a recorded_at timestamp")
	}
	return nil
}

// Result is the detector's verdict for one new sample.
type Result struct {
	Spoofed bool `json:"spoofed"`

	// Teleportation: implied speed exceeds the hard impossibility bar.
	Teleportation bool `json:"teleportation"`
	// MockLocation: the client flagged a mock location provider.
	MockLocation bool `json:"mock_location"`
	// ImpossibleSpeed: sustained impossible ground speed over a short gap.
	ImpossibleSpeed bool `json:"impossible_speed"`
	// LowAccuracy is informational only and never disqualifies on its own.
	LowAccuracy bool `json:"low_accuracy"`

	// SpeedKmh is the implied speed between the prior and new sample.
	// Zero when the pair could not be evaluated.
	SpeedKmh   float64 `json:"speed_kmh"`
	DistanceKm float64 `json:"distance_km"`

	// Reason explains a non-evaluation ("no_prior_sample",
	// "non_positive_interval") or names the strongest flag raised.
	Reason string `json:"reason,omitempty"`
}

// Non-evaluation reasons.
const (
	ReasonNoPriorSample   = "no_prior_sample"
	ReasonNonPositiveGap  = "non_positive_interval"
	ReasonTeleportation   = "teleportation"
	ReasonMockLocation    = "mock_location"
	ReasonImpossibleSpeed = "impossible_speed"
)
