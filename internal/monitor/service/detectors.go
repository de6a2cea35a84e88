package service

import (
	"context"
	"fmt"
	"math"
	"time"

	devicedomain "sessionguard/internal/device/domain"
	"sessionguard/internal/monitor/domain"
	"sessionguard/internal/policy/engine"
	sessiondomain "sessionguard/internal/session/domain"
)

// detector inspects one signal and returns at most one threat.
type detector struct {
	name   string
	detect func(ctx context.Context) (*domain.ThreatAssessment, error)
}

// AnalyzeLoginAttempt runs the login detectors. It does not record the attempt;
// see RecordLoginAttempt. A failing detector is logged and skipped.
func (m *Monitor) AnalyzeLoginAttempt(ctx context.Context, attempt domain.LoginAttempt) []domain.ThreatAssessment {
	if attempt.Timestamp.IsZero() {
		attempt.Timestamp = m.now()
	}
	th := m.thresholdsFor(attempt.TenantID)
	return m.run(ctx, []detector{
		{"brute_force", func(ctx context.Context) (*domain.ThreatAssessment, error) {
			return m.detectBruteForce(ctx, attempt, th)
		}},
		{"multiple_devices", func(ctx context.Context) (*domain.ThreatAssessment, error) {
			return m.detectMultipleDevices(ctx, attempt, th)
		}},
	})
}

// AnalyzeSessionActivity checks a request on an existing session against the
// subject's recent history. Consistent activity yields no threats.
func (m *Monitor) AnalyzeSessionActivity(ctx context.Context, s *sessiondomain.Session, ac domain.ActivityContext) ([]domain.ThreatAssessment, error) {
	if s == nil {
		return nil, ErrInvalidInput
	}
	th := m.thresholdsFor(s.TenantID)
	return m.run(ctx, []detector{
		{"hijack_ip", func(ctx context.Context) (*domain.ThreatAssessment, error) { return m.detectHijackByIP(ctx, s, ac, th) }},
		{"hijack_ua", func(ctx context.Context) (*domain.ThreatAssessment, error) { return m.detectHijackByUA(s, ac, th) }},
	}), nil
}

func (m *Monitor) run(ctx context.Context, detectors []detector) []domain.ThreatAssessment {
	out := make([]domain.ThreatAssessment, 0)
	for _, d := range detectors {
		t, err := safeDetect(ctx, d)
		if err != nil {
			m.log.WarnContext(ctx, "monitor: detector failed", "detector", d.name, "error", err)
			continue
		}
		if t == nil {
			continue
		}
		t.DetectedAt = m.now()
		t.RecommendedActions = m.recommend(ctx, *t)
		out = append(out, *t)
	}
	return out
}

func safeDetect(ctx context.Context, d detector) (t *domain.ThreatAssessment, err error) {
	defer func() {
		if r := recover(); r != nil {
			t, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return d.detect(ctx)
}

func (m *Monitor) recommend(ctx context.Context, t domain.ThreatAssessment) []string {
	if m.recommender == nil {
		return engine.StaticActions(t)
	}
	actions, err := m.recommender.RecommendActions(ctx, t)
	if err != nil {
		m.log.WarnContext(ctx, "monitor: response policy failed, using static actions", "threat_type", string(t.Type), "error", err)
		return engine.StaticActions(t)
	}
	return actions
}

// detectBruteForce counts failed logins from the attempt's IP, across tenants,
// within the trailing window. An event exactly one window old still counts.
func (m *Monitor) detectBruteForce(ctx context.Context, a domain.LoginAttempt, th Thresholds) (*domain.ThreatAssessment, error) {
	if a.IPAddress == "" {
		return nil, nil
	}
	count, err := m.countFailures(ctx, a.IPAddress, m.now().Add(-th.BruteForceWindow))
	if err != nil {
		return nil, fmt.Errorf("count failed logins: %w", err)
	}
	t1 := int64(th.BruteForceThreshold)
	if count < t1 {
		return nil, nil
	}
	sev := domain.SeverityMedium
	switch {
	case count >= 4*t1:
		sev = domain.SeverityCritical
	case count >= 2*t1:
		sev = domain.SeverityHigh
	}
	return &domain.ThreatAssessment{
		Type:       domain.ThreatBruteForce,
		Severity:   sev,
		Confidence: math.Min(1, float64(count)/float64(2*t1)),
		Reasons: []string{
			fmt.Sprintf("%d failed logins from %s in %s (threshold %d)", count, a.IPAddress, th.BruteForceWindow, t1),
		},
		Details: map[string]any{
			"failed_attempts": count,
			"window_seconds":  int64(th.BruteForceWindow.Seconds()),
			"threshold":       t1,
		},
		SubjectID: a.SubjectID,
		TenantID:  a.TenantID,
		IPAddress: a.IPAddress,
		UserAgent: a.UserAgent,
	}, nil
}

// countFailures reads the failure counter when one is configured and falls
// back to the event store when it errors.
func (m *Monitor) countFailures(ctx context.Context, ip string, since time.Time) (int64, error) {
	if m.failures != nil {
		cctx, cancel := m.storeCtx(ctx)
		n, err := m.failures.CountFailures(cctx, ip, since)
		cancel()
		if err == nil {
			return n, nil
		}
		m.log.WarnContext(ctx, "monitor: failure counter unavailable, counting from event store", "error", err)
	}
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	return m.events.CountByTypeAndIP(sctx, domain.EventLoginFailed, ip, since)
}

// uaFingerprint keys a device by what a User-Agent can reveal, so sessions
// with client hints compare equal to bare login attempts from the same browser.
func uaFingerprint(info devicedomain.DeviceInfo) string {
	return devicedomain.DeviceInfo{
		BrowserFamily: info.BrowserFamily,
		OSFamily:      info.OSFamily,
		FormFactor:    info.FormFactor,
	}.Fingerprint()
}

// detectMultipleDevices counts distinct devices among the subject's sessions
// active within the window, plus the device making this attempt.
func (m *Monitor) detectMultipleDevices(ctx context.Context, a domain.LoginAttempt, th Thresholds) (*domain.ThreatAssessment, error) {
	if a.SubjectID == "" || m.sessions == nil {
		return nil, nil
	}
	now := m.now()
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	recent, err := m.sessions.ListBySubjectSince(sctx, a.TenantID, a.SubjectID, now.Add(-th.MultiDeviceWindow))
	if err != nil {
		return nil, fmt.Errorf("list recent sessions: %w", err)
	}
	devices := make(map[string]bool)
	for _, s := range recent {
		if s.IsValidAt(now) {
			devices[uaFingerprint(s.DeviceInfo)] = true
		}
	}
	if a.UserAgent != "" {
		devices[uaFingerprint(devicedomain.ParseUserAgent(a.UserAgent))] = true
	}
	n := len(devices)
	if n < 2 {
		return nil, nil
	}
	sev := domain.SeverityMedium
	if n >= 5 {
		sev = domain.SeverityHigh
	}
	return &domain.ThreatAssessment{
		Type:       domain.ThreatMultipleDevices,
		Severity:   sev,
		Confidence: math.Min(1, float64(n)/4),
		Reasons: []string{
			fmt.Sprintf("%d distinct devices active in %s", n, th.MultiDeviceWindow),
		},
		Details: map[string]any{
			"device_count":   n,
			"window_seconds": int64(th.MultiDeviceWindow.Seconds()),
		},
		SubjectID: a.SubjectID,
		TenantID:  a.TenantID,
		IPAddress: a.IPAddress,
		UserAgent: a.UserAgent,
	}, nil
}

// detectHijackByIP flags a request from an address absent from the subject's
// recent history: this session's own address, addresses of the subject's
// sessions active within the window, and addresses of recent successful logins.
func (m *Monitor) detectHijackByIP(ctx context.Context, s *sessiondomain.Session, ac domain.ActivityContext, th Thresholds) (*domain.ThreatAssessment, error) {
	if ac.IPAddress == "" || ac.IPAddress == s.IPAddress {
		return nil, nil
	}
	since := m.now().Add(-th.HijackWindow)
	known := map[string]bool{s.IPAddress: true}

	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	if m.sessions != nil {
		recent, err := m.sessions.ListBySubjectSince(sctx, s.TenantID, s.SubjectID, since)
		if err != nil {
			return nil, fmt.Errorf("list recent sessions: %w", err)
		}
		for _, r := range recent {
			known[r.IPAddress] = true
		}
	}
	logins, err := m.events.ListBySubjectSince(sctx, s.TenantID, s.SubjectID, []domain.EventType{domain.EventLoginSuccess}, since)
	if err != nil {
		return nil, fmt.Errorf("list recent logins: %w", err)
	}
	for _, e := range logins {
		known[e.IPAddress] = true
	}
	if known[ac.IPAddress] {
		return nil, nil
	}
	return &domain.ThreatAssessment{
		Type:       domain.ThreatSessionHijack,
		Severity:   domain.SeverityHigh,
		Confidence: 0.7,
		Reasons: []string{
			fmt.Sprintf("ip %s not seen in %s history (session ip %s)", ac.IPAddress, th.HijackWindow, s.IPAddress),
		},
		Details: map[string]any{
			"signal":         "ip_change",
			"previous_ip":    s.IPAddress,
			"known_ips":      len(known),
			"window_seconds": int64(th.HijackWindow.Seconds()),
		},
		SubjectID: s.SubjectID,
		TenantID:  s.TenantID,
		SessionID: s.ID,
		IPAddress: ac.IPAddress,
		UserAgent: ac.UserAgent,
	}, nil
}

// detectHijackByUA compares the requesting client with the device recorded on
// the session.
func (m *Monitor) detectHijackByUA(s *sessiondomain.Session, ac domain.ActivityContext, th Thresholds) (*domain.ThreatAssessment, error) {
	current := devicedomain.DeviceInfo{ScreenResolution: ac.ScreenResolution, Timezone: ac.Timezone}
	if ac.UserAgent != "" {
		current = current.Merge(devicedomain.ParseUserAgent(ac.UserAgent))
	}
	sim := devicedomain.Similarity(current, s.DeviceInfo)
	if sim >= th.SimilarityThreshold {
		return nil, nil
	}
	return &domain.ThreatAssessment{
		Type:       domain.ThreatSessionHijack,
		Severity:   domain.SeverityHigh,
		Confidence: 1 - sim,
		Reasons: []string{
			fmt.Sprintf("device similarity %.2f below %.2f", sim, th.SimilarityThreshold),
		},
		Details: map[string]any{
			"signal":     "device_change",
			"similarity": sim,
			"threshold":  th.SimilarityThreshold,
		},
		SubjectID: s.SubjectID,
		TenantID:  s.TenantID,
		SessionID: s.ID,
		IPAddress: ac.IPAddress,
		UserAgent: ac.UserAgent,
	}, nil
}
