package audit

import (
	"time"

	id "vigil/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// Examples: enrollment changes, biometric descriptor replacement.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring and
	// forensics. Examples: fraud attempts, lockouts, spoof detections.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. Examples: session lifecycle, routine verification outcomes.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	SubjectID id.SubjectID
	Action    string
	// Reason explains why this happened (e.g. "teleportation", "backend_down").
	Reason string
	// Decision records the outcome of the action (e.g. "blocked", "passed").
	Decision string
	// Mode records which comparator produced a biometric result.
	Mode string
	// Severity routes security events ("info", "warning", "critical").
	Severity Severity
	// IP of the submitting client, when known. Critical for forensics.
	IP string
	// RequestID is the correlation ID from the request context.
	RequestID string
}

// Severity levels for security events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type AuditEvent string

const (
	// Verification events
	EventVerifySucceeded AuditEvent = "verify_succeeded"
	EventVerifyFailed    AuditEvent = "verify_failed"
	EventVerifyFallback  AuditEvent = "verify_fallback_mode"
	EventVerifyRejected  AuditEvent = "verify_rejected_locked"

	// Liveness events
	EventLivenessStarted AuditEvent = "liveness_session_started"
	EventLivenessPassed  AuditEvent = "liveness_passed"
	EventLivenessFailed  AuditEvent = "liveness_failed"
	EventLivenessTimeout AuditEvent = "liveness_timeout"

	// Fraud events
	EventFraudAttemptRecorded AuditEvent = "fraud_attempt_recorded"
	EventSubjectBlocked       AuditEvent = "subject_blocked"
	EventSpoofDetected        AuditEvent = "gps_spoof_detected"

	// Enrollment events
	EventEnrollmentCreated  AuditEvent = "enrollment_created"
	EventEnrollmentReplaced AuditEvent = "enrollment_replaced"
	EventEnrollmentCleared  AuditEvent = "enrollment_cleared"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	// Compliance events - biometric material lifecycle, long retention
	EventEnrollmentCreated:  CategoryCompliance,
	EventEnrollmentReplaced: CategoryCompliance,
	EventEnrollmentCleared:  CategoryCompliance,

	// Security events - feed into SIEM and alerting
	EventFraudAttemptRecorded: CategorySecurity,
	EventSubjectBlocked:       CategorySecurity,
	EventSpoofDetected:        CategorySecurity,
	EventVerifyRejected:       CategorySecurity,
	EventLivenessFailed:       CategorySecurity,

	// Operations events - routine activity, can be sampled
	EventVerifySucceeded: CategoryOperations,
	EventVerifyFailed:    CategoryOperations,
	EventVerifyFallback:  CategoryOperations,
	EventLivenessStarted: CategoryOperations,
	EventLivenessPassed:  CategoryOperations,
	EventLivenessTimeout: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
