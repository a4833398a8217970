package liveness

import (
	"fmt"
	"time"

	id "vigil/pkg/domain"
	dErrors "vigil/pkg/domain-errors"
)

// CheckType selects which challenge catalog a session draws from.
type CheckType string

const (
	CheckFacial   CheckType = "facial"
	CheckDocument CheckType = "document"
)

func (t CheckType) IsValid() bool {
	return t == CheckFacial || t == CheckDocument
}

// ChallengeType is one physical action the subject must perform on camera.
// Challenges are drawn pseudo-randomly per session so a recorded response
// sequence from an earlier session cannot be replayed.
type ChallengeType string

const (
	ChallengeBlink     ChallengeType = "blink"
	ChallengeTurnLeft  ChallengeType = "turn-left"
	ChallengeTurnRight ChallengeType = "turn-right"
	ChallengeNod       ChallengeType = "nod"
	ChallengeSmile     ChallengeType = "smile"
	ChallengeTilt      ChallengeType = "tilt"
	ChallengeMove      ChallengeType = "move"
)

var (
	facialChallenges   = []ChallengeType{ChallengeBlink, ChallengeTurnLeft, ChallengeTurnRight, ChallengeNod, ChallengeSmile}
	documentChallenges = []ChallengeType{ChallengeTilt, ChallengeMove}
)

// catalogFor returns the challenge catalog for a check type.
func catalogFor(checkType CheckType) []ChallengeType {
	if checkType == CheckDocument {
		return documentChallenges
	}
	return facialChallenges
}

// Status is a session's lifecycle state. Exactly one terminal transition
// happens per session; pending is the only non-terminal state.
type Status string

const (
	StatusPending      Status = "pending"
	StatusPassed       Status = "passed"
	StatusFailed       Status = "failed"
	StatusInconclusive Status = "inconclusive"
	StatusTimeout      Status = "timeout"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// challengeMinFrames is how many frames must arrive while a challenge is
// current before it counts as completed.
const challengeMinFrames = 3

// challengeExpectedDuration is the per-challenge baseline for the timing
// plausibility ratio. A session finishing far faster than this looks like
// automation, not a human performing physical actions.
const challengeExpectedDuration = 3 * time.Second

// FrameMetadata travels with every submitted frame.
type FrameMetadata struct {
	// UserAgent identifies the capturing client. A mid-session change of
	// device family is a multi-device anomaly.
	UserAgent string
	// MockLocation is the client's own admission that positioning is faked.
	MockLocation bool
}

// StartReply is the caller's handle on a new session.
type StartReply struct {
	SessionID  id.SessionID
	Challenges []ChallengeType
	ExpiresAt  time.Time
}

// FrameAck reports per-frame progress back to the capturing client.
type FrameAck struct {
	// Progress is completed challenges over total, in [0,1].
	Progress float64
	// CurrentChallenge is the next unmet challenge, empty once all are done.
	CurrentChallenge ChallengeType
	FramesReceived   int
	Feedback         string
}

// Outcome is a session's terminal result.
type Outcome struct {
	Status     Status
	Confidence float64
	// CanRetry is false only when the failure itself triggered a lockout.
	CanRetry bool
}

// OutcomeRecord is the durable form of a terminal outcome.
type OutcomeRecord struct {
	SessionID           id.SessionID
	SubjectID           id.SubjectID
	CheckType           CheckType
	Status              Status
	Confidence          float64
	ChallengesTotal     int
	ChallengesCompleted int
	FramesReceived      int
	StartedAt           time.Time
	FinishedAt          time.Time
}

// StaleSessionError marks a frame or finalize call against a session that is
// unknown, expired, or already terminal.
type StaleSessionError struct {
	SessionID id.SessionID
}

func (e *StaleSessionError) Error() string {
	return fmt.Sprintf("liveness session %s is stale", e.SessionID)
}

var errInvalidCheckType = dErrors.New(dErrors.CodeInvalidInput, "check type must be facial or document")
