package biometric

import (
	"math"

	id "vigil/pkg/domain"
	dErrors "vigil/pkg/domain-errors"
)

// Mode names which comparator produced a result. Callers must be able to tell
// real biometric assurance (primary) from the degraded content-hash
// comparator (fallback), so every result carries this.
type Mode string

const (
	ModePrimary  Mode = "primary"
	ModeFallback Mode = "fallback"
)

// Descriptor is a fixed-length numeric vector representing a face.
//
// In primary mode descriptors live in the external backend and this type only
// appears for the fallback path, where it is derived from a content hash of
// the raw image bytes. That derivation is deterministic but not perceptual:
// it will reject legitimate re-captures of the same face under different
// lighting or angle. This is accepted degraded-mode behavior, not a bug to
// fix here.
type Descriptor []float64

// DescriptorLength is the fixed fallback descriptor size.
const DescriptorLength = 32

// Distance returns the Euclidean distance between two descriptors.
// Mismatched lengths are treated as maximally distant.
func (d Descriptor) Distance(other Descriptor) float64 {
	if len(d) != len(other) || len(d) == 0 {
		return math.MaxFloat64
	}
	sum := 0.0
	for i := range d {
		diff := d[i] - other[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// VerifyResult is the adapter's answer for one verification call.
type VerifyResult struct {
	Verified bool `json:"verified"`
	// Confidence is 0-100. In primary mode it is the backend similarity
	// scaled up; in fallback mode it is derived from descriptor distance and
	// carries explicitly lower assurance.
	Confidence float64 `json:"confidence"`
	Mode       Mode    `json:"mode"`
}

// Match is one ranked identification candidate.
type Match struct {
	SubjectID id.SubjectID `json:"subject_id"`
	// Similarity is in [0,1], higher is closer.
	Similarity float64 `json:"similarity"`
}

// Typed errors for the adapter's contract. Transport failures toward the
// backend are never among them: those are absorbed into a fallback-mode
// result inside the same call.
var (
	ErrInsufficientSamples = dErrors.New(dErrors.CodeValidation, "at least one valid image sample is required")
	ErrInvalidThreshold    = dErrors.New(dErrors.CodeValidation, "similarity threshold must be within [0.1, 0.9]")
	ErrNotEnrolled         = dErrors.New(dErrors.CodeNotFound, "subject has no enrolled descriptor")
	ErrEmptyImage          = dErrors.New(dErrors.CodeValidation, "image payload cannot be empty")
)
