package verify

import (
	"time"

	"vigil/internal/biometric"
	"vigil/internal/fraud"
)

// Code is the machine-readable verdict of one verification call.
type Code string

const (
	CodeVerified         Code = "VERIFIED"
	CodeAccountLocked    Code = "ACCOUNT_LOCKED"
	CodeNotEnrolled      Code = "NOT_ENROLLED"
	CodeIdentityMismatch Code = "IDENTITY_MISMATCH"
)

// Result is the orchestrator's single decision. Lockouts and mismatches are
// outcomes, not errors: callers branch on Code, errors are reserved for
// invalid input and infrastructure failure.
type Result struct {
	Verified   bool           `json:"verified"`
	Confidence float64        `json:"confidence"`
	Mode       biometric.Mode `json:"mode,omitempty"`
	Code       Code           `json:"code"`
	// Block is set only with CodeAccountLocked: the lockout expiry and the
	// triggering category, which is all a blocked user gets to see.
	Block *fraud.Block `json:"block,omitempty"`
}

// counter is one subject's short-term attempt tracking. Process-local and
// ephemeral: it drives noisy-failure escalation, the durable fraud ledger
// remains the source of truth.
type counter struct {
	count               int
	consecutiveFailures int
	lastAttemptAt       time.Time
}
