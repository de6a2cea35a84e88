package domain

import (
	"fmt"
	"time"
)

// Detection holds a tenant's detector overrides. Empty or zero fields keep the
// service-wide value. SimilarityThreshold is a pointer so an explicit 0 is
// rejected rather than read as unset.
type Detection struct {
	BruteForceWindow    string   `json:"brute_force_window,omitempty"` // e.g. "15m"
	BruteForceThreshold int      `json:"brute_force_threshold,omitempty"`
	MultiDeviceWindow   string   `json:"multi_device_window,omitempty"`
	HijackWindow        string   `json:"hijack_window,omitempty"`
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"` // (0, 1]
}

// TenantSettings is the per-tenant settings document stored as JSON.
type TenantSettings struct {
	TenantID  string     `json:"-"`
	Detection *Detection `json:"detection,omitempty"`
	UpdatedAt time.Time  `json:"-"`
}

// Validate rejects windows that do not parse as positive durations and
// thresholds outside their range.
func (d *Detection) Validate() error {
	if d == nil {
		return nil
	}
	for name, raw := range map[string]string{
		"brute_force_window":  d.BruteForceWindow,
		"multi_device_window": d.MultiDeviceWindow,
		"hijack_window":       d.HijackWindow,
	} {
		if raw == "" {
			continue
		}
		if v, err := time.ParseDuration(raw); err != nil || v <= 0 {
			return fmt.Errorf("%s: %q is not a positive duration", name, raw)
		}
	}
	if d.BruteForceThreshold < 0 {
		return fmt.Errorf("brute_force_threshold: must not be negative")
	}
	if v := d.SimilarityThreshold; v != nil && (*v <= 0 || *v > 1) {
		return fmt.Errorf("similarity_threshold: %v is not in (0, 1]", *v)
	}
	return nil
}

// Window parses raw as a duration. Empty or invalid values yield zero, which
// callers treat as "use the default".
func Window(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

// Similarity returns the similarity override, or 0 when unset.
func (d *Detection) Similarity() float64 {
	if d == nil || d.SimilarityThreshold == nil {
		return 0
	}
	return *d.SimilarityThreshold
}

// Merge returns s with nil sections replaced by an empty section.
func Merge(s *TenantSettings) *TenantSettings {
	if s == nil {
		return &TenantSettings{Detection: &Detection{}}
	}
	out := *s
	if out.Detection == nil {
		out.Detection = &Detection{}
	}
	return &out
}
