package domain

import (
	"time"

	devicedomain "sessionguard/internal/device/domain"
)

// Revocation reasons recorded on sessions.
const (
	ReasonDeviceLimitExceeded = "device_limit_exceeded"
	ReasonLogout              = "logout"
	ReasonLogoutAll           = "logout_all"
	ReasonSecurityThreat      = "security_threat"
	ReasonAdmin               = "admin"
)

// Session is a server-tracked authenticated context for one subject/device pairing.
// The raw bearer token is never stored; TokenHash is its SHA-256 hex digest.
type Session struct {
	ID                string
	SubjectID         string
	TenantID          string
	DeviceInfo        devicedomain.DeviceInfo
	DeviceFingerprint string
	IPAddress         string
	UserAgent         string
	TokenHash         string
	CreatedAt         time.Time
	LastActivityAt    time.Time
	ExpiresAt         time.Time
	MaxIdleMinutes    int
	IsActive          bool
	IsRevoked         bool
	RevokedAt         *time.Time // nil until revoked
	RevokedReason     string
	RememberDevice    bool
}

// State is the lifecycle state of a session as observed at a point in time.
type State string

const (
	StateActive  State = "active"
	StateExpired State = "expired"
	StateRevoked State = "revoked"
)

// StateAt computes the session state at now. Expiry is never stored by the
// core; it is derived here from the absolute and idle deadlines.
func (s *Session) StateAt(now time.Time) State {
	if s.IsRevoked {
		return StateRevoked
	}
	if !s.IsActive {
		return StateExpired
	}
	if !now.Before(s.ExpiresAt) {
		return StateExpired
	}
	if now.Sub(s.LastActivityAt) > s.IdleTimeout() {
		return StateExpired
	}
	return StateActive
}

// IsValidAt reports whether the session authenticates a request at now.
func (s *Session) IsValidAt(now time.Time) bool {
	return s.StateAt(now) == StateActive
}

// IdleTimeout returns MaxIdleMinutes as a duration.
func (s *Session) IdleTimeout() time.Duration {
	return time.Duration(s.MaxIdleMinutes) * time.Minute
}

// DeviceContext is what the caller knows about the client creating a session.
// Explicit DeviceInfo fields take precedence over values parsed from UserAgent.
type DeviceContext struct {
	DeviceInfo     devicedomain.DeviceInfo
	IPAddress      string
	UserAgent      string
	RememberDevice bool
}

// Update carries the mutable timestamps of a session. Nil fields are left unchanged.
type Update struct {
	LastActivityAt *time.Time
	ExpiresAt      *time.Time
}
