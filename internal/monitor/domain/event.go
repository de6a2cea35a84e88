package domain

import "time"

// EventType classifies a SecurityEvent.
type EventType string

const (
	EventLoginFailed             EventType = "login_failed"
	EventLoginSuccess            EventType = "login_success"
	EventBruteForceDetected      EventType = "brute_force_detected"
	EventSessionHijackDetected   EventType = "session_hijack_detected"
	EventMultipleDevicesDetected EventType = "multiple_devices_detected"
	EventSessionCreated          EventType = "session_created"
	EventSessionRevoked          EventType = "session_revoked"
	EventSuspiciousActivity      EventType = "suspicious_activity"
)

// Severity ranks how urgent an event or threat is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from low (1) to critical (4); unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// SecurityEvent is an append-only record of something security relevant.
type SecurityEvent struct {
	ID        string
	Type      EventType
	SubjectID string
	TenantID  string
	IPAddress string
	UserAgent string
	Details   map[string]any
	Severity  Severity
	CreatedAt time.Time
}

// ThreatType classifies a ThreatAssessment.
type ThreatType string

const (
	ThreatBruteForce      ThreatType = "brute_force"
	ThreatSessionHijack   ThreatType = "session_hijack"
	ThreatMultipleDevices ThreatType = "multiple_devices"
)

// EventType returns the event logged when a threat of this type is handled.
func (t ThreatType) EventType() EventType {
	switch t {
	case ThreatBruteForce:
		return EventBruteForceDetected
	case ThreatSessionHijack:
		return EventSessionHijackDetected
	case ThreatMultipleDevices:
		return EventMultipleDevicesDetected
	default:
		return EventSuspiciousActivity
	}
}

// ThreatAssessment is the output of a detector. Confidence is in [0, 1] and
// Reasons say in plain words why the detector fired.
type ThreatAssessment struct {
	Type               ThreatType
	Severity           Severity
	Confidence         float64
	Reasons            []string
	Details            map[string]any
	RecommendedActions []string
	SubjectID          string
	TenantID           string
	SessionID          string
	IPAddress          string
	UserAgent          string
	DetectedAt         time.Time
}

// LoginAttempt is a login outcome reported by the upstream identity layer.
type LoginAttempt struct {
	SubjectID string
	TenantID  string
	Email     string
	IPAddress string
	UserAgent string
	Success   bool
	Timestamp time.Time
}

// ActivityContext describes the client making a request on an existing session.
type ActivityContext struct {
	IPAddress        string
	UserAgent        string
	ScreenResolution string
	Timezone         string
}

// DayCount is the number of events on one UTC day, Date formatted YYYY-MM-DD.
type DayCount struct {
	Date  string
	Count int64
}

// SecurityStatistics aggregates events over a trailing window.
type SecurityStatistics struct {
	TotalEvents  int64
	EventsByType map[EventType]int64
	EventsByDay  []DayCount
}

// EmptyStatistics returns statistics with no events and non-nil collections.
func EmptyStatistics() SecurityStatistics {
	return SecurityStatistics{EventsByType: map[EventType]int64{}, EventsByDay: []DayCount{}}
}
