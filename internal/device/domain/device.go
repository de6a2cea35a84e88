package domain

import "time"

// FormFactor is the coarse physical class of a client device.
type FormFactor string

const (
	FormFactorDesktop FormFactor = "desktop"
	FormFactorMobile  FormFactor = "mobile"
	FormFactorTablet  FormFactor = "tablet"
	FormFactorBot     FormFactor = "bot"
	FormFactorUnknown FormFactor = "unknown"
)

// DeviceInfo is the client environment summary recorded with a session.
// ScreenResolution and Timezone are optional client hints; empty means unknown.
type DeviceInfo struct {
	BrowserFamily    string
	OSFamily         string
	FormFactor       FormFactor
	IsMobile         bool
	ScreenResolution string
	Timezone         string
}

// Device is the record of one fingerprint seen for a subject.
type Device struct {
	ID            string
	SubjectID     string
	TenantID      string
	Fingerprint   string
	BrowserFamily string
	OSFamily      string
	IsTrusted     bool
	FirstSeenAt   time.Time
	LastUsedAt    time.Time
}
