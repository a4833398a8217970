package fraud

import (
	"fmt"
	"time"

	id "vigil/pkg/domain"
	dErrors "vigil/pkg/domain-errors"
)

// AttemptType categorizes a detected anomaly.
type AttemptType string

const (
	AttemptGPSSpoof         AttemptType = "gps-spoof"
	AttemptPhotoSpoof       AttemptType = "photo-spoof"
	AttemptVideoSpoof       AttemptType = "video-spoof"
	AttemptScreenSpoof      AttemptType = "screen-spoof"
	AttemptDocumentForgery  AttemptType = "document-forgery"
	AttemptMultiDevice      AttemptType = "multi-device"
	AttemptOutOfZone        AttemptType = "out-of-zone"
	AttemptTimeManipulation AttemptType = "time-manipulation"
	AttemptIdentityMismatch AttemptType = "identity-mismatch"
	AttemptOther            AttemptType = "other"
)

// IsValid checks if the attempt type is one of the supported enum values.
func (t AttemptType) IsValid() bool {
	switch t {
	case AttemptGPSSpoof, AttemptPhotoSpoof, AttemptVideoSpoof, AttemptScreenSpoof,
		AttemptDocumentForgery, AttemptMultiDevice, AttemptOutOfZone,
		AttemptTimeManipulation, AttemptIdentityMismatch, AttemptOther:
		return true
	}
	return false
}

func (t AttemptType) String() string { return string(t) }

// Severity is the coarse ordinal driving the escalation policy. Distinct from
// biometric confidence.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity is one of the supported enum values.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

func (s Severity) String() string { return string(s) }

// ActionTaken is the escalation policy's verdict, set exactly once at record
// creation and never revised.
type ActionTaken string

const (
	ActionLogged    ActionTaken = "logged"
	ActionWarned    ActionTaken = "warned"
	ActionEscalated ActionTaken = "escalated"
	ActionBlocked   ActionTaken = "blocked"
)

func (a ActionTaken) String() string { return string(a) }

// Attempt is one append-only fraud ledger record. Type, Severity, and
// Evidence are immutable once written; ActionTaken and BlockedUntil are
// assigned by the escalation policy at creation and never edited afterward.
type Attempt struct {
	ID        id.AttemptID `json:"id"`
	SubjectID id.SubjectID `json:"subject_id"`
	Type      AttemptType  `json:"attempt_type"`
	Severity  Severity     `json:"severity"`
	// Evidence is an opaque blob (frame snapshot, raw sample, device info).
	Evidence  []byte      `json:"evidence,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	Action    ActionTaken `json:"action_taken"`
	// BlockedUntil is set only when Action is ActionBlocked.
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
}

// NewAttempt validates the immutable core of a record. Action and
// BlockedUntil are filled in by the escalation policy before the append.
func NewAttempt(subjectID id.SubjectID, attemptType AttemptType, severity Severity, evidence []byte, createdAt time.Time) (*Attempt, error) {
	if subjectID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "subject id cannot be empty")
	}
	if !attemptType.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "invalid attempt type %q", attemptType)
	}
	if !severity.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "invalid severity %q", severity)
	}
	return &Attempt{
		ID:        id.NewAttemptID(),
		SubjectID: subjectID,
		Type:      attemptType,
		Severity:  severity,
		Evidence:  evidence,
		CreatedAt: createdAt,
	}, nil
}

// Block describes an active lockout: when it lifts and which anomaly category
// triggered it. Callers surface the category and remaining time to the user,
// never internal severity scores or raw counts.
type Block struct {
	Until  time.Time   `json:"until"`
	Reason AttemptType `json:"reason"`
}

// Remaining returns how long the block still holds at the given instant.
func (b Block) Remaining(now time.Time) time.Duration {
	if remaining := b.Until.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// BlockedError is the typed outcome returned when a gate finds an active
// block. It is not recovered from; callers present the remaining lockout time
// and retry guidance.
type BlockedError struct {
	Until  time.Time
	Reason AttemptType
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("subject blocked until %s (%s)", e.Until.Format(time.RFC3339), e.Reason)
}
