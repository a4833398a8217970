// Package domain holds shared domain primitives: typed identifiers used
// across the trust pipeline. Typed IDs prevent cross-type assignment at
// compile time (a SessionID can never be passed where a SubjectID is wanted).
package domain

import (
	"github.com/google/uuid"

	dErrors "vigil/pkg/domain-errors"
)

// SubjectID identifies an enrolled individual. It is opaque to this module:
// the workforce system that owns employee records decides its shape, we only
// require it to be non-empty and of sane length.
type SubjectID string

const maxSubjectIDLength = 128

// ParseSubjectID validates an externally supplied subject identifier.
func ParseSubjectID(s string) (SubjectID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject id cannot be empty")
	}
	if len(s) > maxSubjectIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject id exceeds maximum length")
	}
	return SubjectID(s), nil
}

func (s SubjectID) String() string { return string(s) }

// IsZero reports whether the subject ID is unset.
func (s SubjectID) IsZero() bool { return s == "" }

// SessionID identifies a liveness challenge session. Sessions are minted by
// this module, so the ID is always a UUID.
type SessionID uuid.UUID

// NewSessionID mints a fresh session identifier.
func NewSessionID() SessionID {
	return SessionID(uuid.New())
}

// ParseSessionID validates an externally echoed session identifier.
func ParseSessionID(s string) (SessionID, error) {
	if s == "" {
		return SessionID{}, dErrors.New(dErrors.CodeInvalidInput, "session id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return SessionID{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "session id is not a valid UUID")
	}
	if u == uuid.Nil {
		return SessionID{}, dErrors.New(dErrors.CodeInvalidInput, "session id cannot be the nil UUID")
	}
	return SessionID(u), nil
}

func (s SessionID) String() string { return uuid.UUID(s).String() }

// IsNil reports whether the session ID is unset.
func (s SessionID) IsNil() bool { return uuid.UUID(s) == uuid.Nil }

// AttemptID identifies a single fraud attempt record.
type AttemptID uuid.UUID

// NewAttemptID mints a fresh attempt identifier.
func NewAttemptID() AttemptID {
	return AttemptID(uuid.New())
}

func (a AttemptID) String() string { return uuid.UUID(a).String() }

// IsNil reports whether the attempt ID is unset.
func (a AttemptID) IsNil() bool { return uuid.UUID(a) == uuid.Nil }
