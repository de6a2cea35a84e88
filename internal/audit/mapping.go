package audit

import (
	"strings"

	monitordomain "sessionguard/internal/monitor/domain"
)

// ActionResource holds the audit action and resource derived from a security event type.
type ActionResource struct {
	Action   string
	Resource string
}

// ParseEventType returns action and resource for a security event type.
// Detections are audited as "detected" on the threat name; lifecycle events
// split at the last underscore ("session_created" -> created on session).
func ParseEventType(t monitordomain.EventType) ActionResource {
	switch t {
	case monitordomain.EventBruteForceDetected:
		return ActionResource{Action: "detected", Resource: "brute_force"}
	case monitordomain.EventSessionHijackDetected:
		return ActionResource{Action: "detected", Resource: "session_hijack"}
	case monitordomain.EventMultipleDevicesDetected:
		return ActionResource{Action: "detected", Resource: "multiple_devices"}
	case monitordomain.EventSuspiciousActivity:
		return ActionResource{Action: "detected", Resource: "suspicious_activity"}
	}
	s := string(t)
	us := strings.LastIndex(s, "_")
	if us <= 0 || us == len(s)-1 {
		if s == "" {
			s = "unknown"
		}
		return ActionResource{Action: s, Resource: "unknown"}
	}
	return ActionResource{Action: s[us+1:], Resource: s[:us]}
}
