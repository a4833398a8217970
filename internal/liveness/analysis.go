package liveness

import (
	"math"

	"github.com/mssola/useragent"

	"vigil/internal/fraud"
)

// anomaly is one frame-level finding forwarded to the fraud ledger.
type anomaly struct {
	attemptType fraud.AttemptType
	severity    fraud.Severity
	reason      string
}

// textureEntropyFloor is the Shannon-entropy bar (bits per byte) under which
// a frame is treated as a flat-texture replay. Live camera frames carry
// sensor noise and compression artifacts well above this; synthetic fills
// and re-captured static screens sit near zero.
const textureEntropyFloor = 1.0

// analyzeFrame runs the per-frame anomaly checks. Findings are reported, not
// enforced: the session's own challenge logic decides pass or fail, the
// ledger decides what the findings cost the subject later.
func analyzeFrame(frame []byte, meta FrameMetadata, priorSignature string) []anomaly {
	var found []anomaly

	if len(frame) > 0 && byteEntropy(frame) < textureEntropyFloor {
		found = append(found, anomaly{
			attemptType: fraud.AttemptScreenSpoof,
			severity:    fraud.SeverityMedium,
			reason:      "flat frame texture",
		})
	}

	if meta.MockLocation {
		found = append(found, anomaly{
			attemptType: fraud.AttemptGPSSpoof,
			severity:    fraud.SeverityMedium,
			reason:      "mock location metadata",
		})
	}

	if sig := deviceSignature(meta.UserAgent); sig != "" && priorSignature != "" && sig != priorSignature {
		found = append(found, anomaly{
			attemptType: fraud.AttemptMultiDevice,
			severity:    fraud.SeverityHigh,
			reason:      "device changed mid-session",
		})
	}

	return found
}

// deviceSignature normalizes a user agent down to the parts that identify
// the physical device class. Browser version churn mid-session is normal;
// a platform or OS change is not.
func deviceSignature(ua string) string {
	if ua == "" {
		return ""
	}
	parsed := useragent.New(ua)
	name, _ := parsed.Browser()
	return parsed.Platform() + "/" + parsed.OS() + "/" + name
}

// byteEntropy is the Shannon entropy of the byte distribution, in bits.
func byteEntropy(data []byte) float64 {
	var counts [256]int
	for _, b := range data {
		counts[b]++
	}

	total := float64(len(data))
	entropy := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}
