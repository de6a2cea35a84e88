package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	devicedomain "sessionguard/internal/device/domain"
	"sessionguard/internal/monitor/domain"
	"sessionguard/internal/monitor/repository"
	"sessionguard/internal/policy/engine"
	sessiondomain "sessionguard/internal/session/domain"
	sessionrepo "sessionguard/internal/session/repository"
)

const (
	uaChromeMac  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaFirefoxWin = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0"
)

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

// faultyEvents wraps the memory repository with injectable failures.
type faultyEvents struct {
	*repository.MemoryRepository
	countErr  error
	listErr   error
	statsErr  error
	createErr error
	panicOn   string
}

func (f *faultyEvents) Create(ctx context.Context, e *domain.SecurityEvent) error {
	if f.panicOn == "create" {
		panic("create exploded")
	}
	if f.createErr != nil {
		return f.createErr
	}
	return f.MemoryRepository.Create(ctx, e)
}

func (f *faultyEvents) CountByTypeAndIP(ctx context.Context, typ domain.EventType, ip string, since time.Time) (int64, error) {
	if f.panicOn == "count" {
		panic("count exploded")
	}
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.MemoryRepository.CountByTypeAndIP(ctx, typ, ip, since)
}

func (f *faultyEvents) ListBySubjectSince(ctx context.Context, tenantID, subjectID string, types []domain.EventType, since time.Time) ([]*domain.SecurityEvent, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.MemoryRepository.ListBySubjectSince(ctx, tenantID, subjectID, types, since)
}

func (f *faultyEvents) CountByTypeSince(ctx context.Context, tenantID string, since time.Time) (map[domain.EventType]int64, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return f.MemoryRepository.CountByTypeSince(ctx, tenantID, since)
}

type recordingSink struct {
	mu     sync.Mutex
	events []*domain.SecurityEvent
}

func (s *recordingSink) Append(ctx context.Context, e *domain.SecurityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func newFixture(t *testing.T, opts ...Option) (*Monitor, *faultyEvents, *sessionrepo.MemoryRepository) {
	t.Helper()
	events := &faultyEvents{MemoryRepository: repository.NewMemoryRepository()}
	sessions := sessionrepo.NewMemoryRepository()
	opts = append([]Option{WithClock(clock)}, opts...)
	return NewMonitor(events, sessions, DefaultConfig(), opts...), events, sessions
}

func addFailures(t *testing.T, repo repository.Repository, ip, tenant string, at ...time.Time) {
	t.Helper()
	for i, ts := range at {
		err := repo.Create(context.Background(), &domain.SecurityEvent{
			ID: ip + "-" + ts.String() + string(rune('a'+i)), Type: domain.EventLoginFailed,
			IPAddress: ip, TenantID: tenant, CreatedAt: ts,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func findThreat(threats []domain.ThreatAssessment, typ domain.ThreatType) *domain.ThreatAssessment {
	for i := range threats {
		if threats[i].Type == typ {
			return &threats[i]
		}
	}
	return nil
}

func activeSession(id, ip string, info devicedomain.DeviceInfo, lastActivity time.Time) *sessiondomain.Session {
	return &sessiondomain.Session{
		ID:                id,
		SubjectID:         "u1",
		TenantID:          "t1",
		DeviceInfo:        info,
		DeviceFingerprint: info.Fingerprint(),
		IPAddress:         ip,
		CreatedAt:         lastActivity,
		LastActivityAt:    lastActivity,
		ExpiresAt:         lastActivity.Add(24 * time.Hour),
		MaxIdleMinutes:    30,
		IsActive:          true,
	}
}

func TestAnalyzeLoginAttempt_BruteForceBoundary(t *testing.T) {
	m, events, _ := newFixture(t)
	ctx := context.Background()
	attempt := domain.LoginAttempt{IPAddress: "198.51.100.7", TenantID: "t1", Timestamp: now}

	// Outside the window by one second; never counted.
	addFailures(t, events, "198.51.100.7", "t1", now.Add(-15*time.Minute-time.Second))
	// Exactly at the boundary, then three more inside the window.
	addFailures(t, events, "198.51.100.7", "t1",
		now.Add(-15*time.Minute), now.Add(-10*time.Minute), now.Add(-5*time.Minute), now)

	if got := findThreat(m.AnalyzeLoginAttempt(ctx, attempt), domain.ThreatBruteForce); got != nil {
		t.Fatalf("4 failures flagged as brute force: %+v", got)
	}

	addFailures(t, events, "198.51.100.7", "t1", now.Add(-time.Minute))
	got := findThreat(m.AnalyzeLoginAttempt(ctx, attempt), domain.ThreatBruteForce)
	if got == nil {
		t.Fatal("5 failures including the boundary one should be flagged")
	}
	if got.Severity != domain.SeverityMedium {
		t.Errorf("severity = %q, want medium", got.Severity)
	}
	if got.Confidence != 0.5 {
		t.Errorf("confidence = %v, want 0.5", got.Confidence)
	}
	if !slices.Contains(got.RecommendedActions, engine.ActionRateLimitIP) {
		t.Errorf("actions = %v, want rate_limit_ip", got.RecommendedActions)
	}
	if !got.DetectedAt.Equal(now) {
		t.Errorf("DetectedAt = %v, want %v", got.DetectedAt, now)
	}
	if len(got.Reasons) != 1 || !strings.HasPrefix(got.Reasons[0], "5 failed logins from 198.51.100.7 in 15m") {
		t.Errorf("reasons = %q", got.Reasons)
	}
}

func TestAnalyzeLoginAttempt_BruteForceSeverity(t *testing.T) {
	tests := []struct {
		count      int
		severity   domain.Severity
		confidence float64
	}{
		{5, domain.SeverityMedium, 0.5},
		{9, domain.SeverityMedium, 0.9},
		{10, domain.SeverityHigh, 1},
		{20, domain.SeverityCritical, 1},
	}
	for _, tt := range tests {
		m, events, _ := newFixture(t)
		at := make([]time.Time, tt.count)
		for i := range at {
			at[i] = now.Add(-time.Duration(i) * time.Second)
		}
		addFailures(t, events, "203.0.113.5", "t1", at...)
		got := findThreat(m.AnalyzeLoginAttempt(context.Background(), domain.LoginAttempt{IPAddress: "203.0.113.5"}), domain.ThreatBruteForce)
		if got == nil {
			t.Fatalf("count %d: no threat", tt.count)
		}
		if got.Severity != tt.severity || got.Confidence != tt.confidence {
			t.Errorf("count %d: severity/confidence = %s/%v, want %s/%v", tt.count, got.Severity, got.Confidence, tt.severity, tt.confidence)
		}
	}
}

func TestAnalyzeLoginAttempt_BruteForceCountsAcrossTenants(t *testing.T) {
	m, events, _ := newFixture(t)
	addFailures(t, events, "203.0.113.6", "t1", now, now, now)
	addFailures(t, events, "203.0.113.6", "t2", now, now)
	threats := m.AnalyzeLoginAttempt(context.Background(), domain.LoginAttempt{IPAddress: "203.0.113.6", TenantID: "t1"})
	if findThreat(threats, domain.ThreatBruteForce) == nil {
		t.Error("failures from one IP should count across tenants")
	}
}

func TestAnalyzeLoginAttempt_UsesFailureCounter(t *testing.T) {
	counter := repository.NewMemoryFailureCounter()
	for i := 0; i < 5; i++ {
		_ = counter.RecordFailure(context.Background(), "192.0.2.1", now.Add(-time.Duration(i)*time.Minute))
	}
	m, _, _ := newFixture(t, WithFailureCounter(counter))
	if findThreat(m.AnalyzeLoginAttempt(context.Background(), domain.LoginAttempt{IPAddress: "192.0.2.1"}), domain.ThreatBruteForce) == nil {
		t.Error("failure counter should feed the brute-force detector")
	}
}

// failingCounter stands in for a failure counter whose backend is down.
type failingCounter struct{ recorded int }

func (c *failingCounter) RecordFailure(ctx context.Context, ip string, at time.Time) error {
	c.recorded++
	return errors.New("redis down")
}

func (c *failingCounter) CountFailures(ctx context.Context, ip string, since time.Time) (int64, error) {
	return 0, errors.New("redis down")
}

func TestAnalyzeLoginAttempt_FailureCounterDownFallsBackToEvents(t *testing.T) {
	counter := &failingCounter{}
	m, events, _ := newFixture(t, WithFailureCounter(counter))
	at := make([]time.Time, 6)
	for i := range at {
		at[i] = now.Add(-time.Duration(i) * time.Minute)
	}
	addFailures(t, events, "192.0.2.44", "t1", at...)

	got := findThreat(m.AnalyzeLoginAttempt(context.Background(), domain.LoginAttempt{IPAddress: "192.0.2.44"}), domain.ThreatBruteForce)
	if got == nil {
		t.Fatal("event store failures should still be counted when the counter errors")
	}
	if got.Details["failed_attempts"] != int64(6) {
		t.Errorf("failed_attempts = %v, want 6", got.Details["failed_attempts"])
	}
}

func TestAnalyzeLoginAttempt_BothCountersDown(t *testing.T) {
	m, events, _ := newFixture(t, WithFailureCounter(&failingCounter{}))
	events.countErr = errors.New("timeout")
	addFailures(t, events, "192.0.2.45", "t1", now, now, now, now, now)
	if findThreat(m.AnalyzeLoginAttempt(context.Background(), domain.LoginAttempt{IPAddress: "192.0.2.45"}), domain.ThreatBruteForce) != nil {
		t.Error("no count available, nothing should be flagged")
	}
}

func TestAnalyzeLoginAttempt_PerTenantThreshold(t *testing.T) {
	events := repository.NewMemoryRepository()
	cfg := DefaultConfig()
	cfg.PerTenant = map[string]Thresholds{"strict": {BruteForceThreshold: 3}}
	m := NewMonitor(events, nil, cfg, WithClock(clock))
	addFailures(t, events, "192.0.2.9", "strict", now, now, now)

	if findThreat(m.AnalyzeLoginAttempt(context.Background(), domain.LoginAttempt{IPAddress: "192.0.2.9", TenantID: "strict"}), domain.ThreatBruteForce) == nil {
		t.Error("tenant override threshold 3 should flag 3 failures")
	}
	if findThreat(m.AnalyzeLoginAttempt(context.Background(), domain.LoginAttempt{IPAddress: "192.0.2.9", TenantID: "other"}), domain.ThreatBruteForce) != nil {
		t.Error("default threshold should not flag 3 failures")
	}
}

func TestAnalyzeLoginAttempt_MultipleDevices(t *testing.T) {
	m, _, sessions := newFixture(t)
	ctx := context.Background()
	mac := devicedomain.ParseUserAgent(uaChromeMac)
	mac.ScreenResolution = "2560x1600"
	_ = sessions.Create(ctx, activeSession("s1", "10.0.0.1", mac, now.Add(-2*time.Minute)))

	same := m.AnalyzeLoginAttempt(ctx, domain.LoginAttempt{SubjectID: "u1", TenantID: "t1", UserAgent: uaChromeMac, Success: true})
	if got := findThreat(same, domain.ThreatMultipleDevices); got != nil {
		t.Errorf("same device flagged: %+v", got)
	}

	other := m.AnalyzeLoginAttempt(ctx, domain.LoginAttempt{SubjectID: "u1", TenantID: "t1", UserAgent: uaFirefoxWin, Success: true})
	got := findThreat(other, domain.ThreatMultipleDevices)
	if got == nil {
		t.Fatal("second device within the window should be flagged")
	}
	if got.Confidence != 0.5 || got.Severity != domain.SeverityMedium {
		t.Errorf("confidence/severity = %v/%s", got.Confidence, got.Severity)
	}
	if len(got.Reasons) != 1 || !strings.HasPrefix(got.Reasons[0], "2 distinct devices active in 5m") {
		t.Errorf("reasons = %q", got.Reasons)
	}
}

func TestAnalyzeLoginAttempt_MultipleDevicesIgnoresStaleSessions(t *testing.T) {
	m, _, sessions := newFixture(t)
	ctx := context.Background()
	_ = sessions.Create(ctx, activeSession("old", "10.0.0.1", devicedomain.ParseUserAgent(uaChromeMac), now.Add(-10*time.Minute)))

	threats := m.AnalyzeLoginAttempt(ctx, domain.LoginAttempt{SubjectID: "u1", TenantID: "t1", UserAgent: uaFirefoxWin})
	if findThreat(threats, domain.ThreatMultipleDevices) != nil {
		t.Error("session idle beyond the window should not count")
	}
}

func TestAnalyzeLoginAttempt_DetectorFailureIsolated(t *testing.T) {
	for _, mode := range []string{"error", "panic"} {
		t.Run(mode, func(t *testing.T) {
			m, events, sessions := newFixture(t)
			if mode == "error" {
				events.countErr = errors.New("timeout")
			} else {
				events.panicOn = "count"
			}
			_ = sessions.Create(context.Background(), activeSession("s1", "10.0.0.1", devicedomain.ParseUserAgent(uaChromeMac), now))

			threats := m.AnalyzeLoginAttempt(context.Background(), domain.LoginAttempt{
				SubjectID: "u1", TenantID: "t1", IPAddress: "10.9.9.9", UserAgent: uaFirefoxWin,
			})
			if findThreat(threats, domain.ThreatBruteForce) != nil {
				t.Error("failed detector should report nothing")
			}
			if findThreat(threats, domain.ThreatMultipleDevices) == nil {
				t.Error("other detectors should still run")
			}
		})
	}
}

func TestAnalyzeSessionActivity_HijackByIP(t *testing.T) {
	m, _, sessions := newFixture(t)
	ctx := context.Background()
	info := devicedomain.ParseUserAgent(uaChromeMac)
	s := activeSession("s1", "192.0.2.10", info, now.Add(-time.Minute))
	_ = sessions.Create(ctx, s)

	threats, err := m.AnalyzeSessionActivity(ctx, s, domain.ActivityContext{IPAddress: "192.0.2.10", UserAgent: uaChromeMac})
	if err != nil {
		t.Fatalf("AnalyzeSessionActivity: %v", err)
	}
	if len(threats) != 0 {
		t.Errorf("consistent activity flagged: %+v", threats)
	}

	threats, _ = m.AnalyzeSessionActivity(ctx, s, domain.ActivityContext{IPAddress: "198.51.100.99", UserAgent: uaChromeMac})
	got := findThreat(threats, domain.ThreatSessionHijack)
	if got == nil {
		t.Fatal("unseen IP should be flagged")
	}
	if got.SessionID != "s1" || got.IPAddress != "198.51.100.99" {
		t.Errorf("threat = %+v", got)
	}
	if got.Details["signal"] != "ip_change" {
		t.Errorf("signal = %v, want ip_change", got.Details["signal"])
	}
	if len(got.Reasons) != 1 || !strings.HasPrefix(got.Reasons[0], "ip 198.51.100.99 not seen in 30m") {
		t.Errorf("reasons = %q", got.Reasons)
	}
}

func TestAnalyzeSessionActivity_KnownLoginIPIsNotHijack(t *testing.T) {
	m, events, sessions := newFixture(t)
	ctx := context.Background()
	s := activeSession("s1", "192.0.2.10", devicedomain.ParseUserAgent(uaChromeMac), now.Add(-time.Minute))
	_ = sessions.Create(ctx, s)
	_ = events.Create(ctx, &domain.SecurityEvent{ID: "e1", Type: domain.EventLoginSuccess, SubjectID: "u1", TenantID: "t1", IPAddress: "192.0.2.20", CreatedAt: now.Add(-10 * time.Minute)})
	_ = sessions.Create(ctx, activeSession("s2", "192.0.2.30", devicedomain.ParseUserAgent(uaChromeMac), now.Add(-20*time.Minute)))

	for _, ip := range []string{"192.0.2.20", "192.0.2.30"} {
		threats, _ := m.AnalyzeSessionActivity(ctx, s, domain.ActivityContext{IPAddress: ip, UserAgent: uaChromeMac})
		if findThreat(threats, domain.ThreatSessionHijack) != nil {
			t.Errorf("IP %s from recent history flagged", ip)
		}
	}
}

func TestAnalyzeSessionActivity_HijackByUserAgent(t *testing.T) {
	m, _, sessions := newFixture(t)
	ctx := context.Background()
	info := devicedomain.ParseUserAgent(uaChromeMac)
	info.ScreenResolution = "1920x1080"
	info.Timezone = "Europe/Berlin"
	s := activeSession("s1", "192.0.2.10", info, now)
	_ = sessions.Create(ctx, s)

	threats, err := m.AnalyzeSessionActivity(ctx, s, domain.ActivityContext{
		IPAddress: "192.0.2.10", UserAgent: uaFirefoxWin, ScreenResolution: "800x600", Timezone: "Asia/Tokyo",
	})
	if err != nil {
		t.Fatalf("AnalyzeSessionActivity: %v", err)
	}
	got := findThreat(threats, domain.ThreatSessionHijack)
	if got == nil {
		t.Fatal("different device should be flagged")
	}
	if got.Confidence != 1 {
		t.Errorf("confidence = %v, want 1", got.Confidence)
	}
	if len(got.Reasons) != 1 || got.Reasons[0] != "device similarity 0.00 below 0.50" {
		t.Errorf("reasons = %q", got.Reasons)
	}
	if !slices.Contains(got.RecommendedActions, engine.ActionRevokeSession) {
		t.Errorf("actions = %v, want revoke_session", got.RecommendedActions)
	}

	// Same browser and OS on a new monitor stays above the threshold.
	threats, _ = m.AnalyzeSessionActivity(ctx, s, domain.ActivityContext{
		IPAddress: "192.0.2.10", UserAgent: uaChromeMac, ScreenResolution: "2560x1440", Timezone: "Europe/Berlin",
	})
	if len(threats) != 0 {
		t.Errorf("3 of 4 matching attributes flagged: %+v", threats)
	}
}

func TestAnalyzeSessionActivity_NilSession(t *testing.T) {
	m, _, _ := newFixture(t)
	if _, err := m.AnalyzeSessionActivity(context.Background(), nil, domain.ActivityContext{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestAnalyzeSessionActivity_HistoryFailureSkipsIPDetector(t *testing.T) {
	m, events, _ := newFixture(t)
	events.listErr = errors.New("timeout")
	s := activeSession("s1", "192.0.2.10", devicedomain.ParseUserAgent(uaChromeMac), now)
	threats, err := m.AnalyzeSessionActivity(context.Background(), s, domain.ActivityContext{IPAddress: "203.0.113.1", UserAgent: uaChromeMac})
	if err != nil {
		t.Fatalf("AnalyzeSessionActivity: %v", err)
	}
	if len(threats) != 0 {
		t.Errorf("threats = %+v, want none when history is unavailable", threats)
	}
}

func TestLogSecurityEvent_PersistsAndAppends(t *testing.T) {
	sink := &recordingSink{}
	m, events, _ := newFixture(t, WithAuditSink(sink))
	ctx := context.Background()

	m.LogSecurityEvent(ctx, &domain.SecurityEvent{Type: domain.EventSessionCreated, SubjectID: "u1", TenantID: "t1"})

	stored, _ := events.ListBySubjectSince(ctx, "t1", "u1", nil, now.Add(-time.Minute))
	if len(stored) != 1 {
		t.Fatalf("stored = %d, want 1", len(stored))
	}
	if stored[0].ID == "" || !stored[0].CreatedAt.Equal(now) || stored[0].Severity != domain.SeverityLow {
		t.Errorf("defaults not applied: %+v", stored[0])
	}
	if len(sink.events) != 1 || sink.events[0].ID != stored[0].ID {
		t.Errorf("sink events = %d, want the stored event", len(sink.events))
	}
}

func TestLogSecurityEvent_MalformedInputNeverFails(t *testing.T) {
	m, events, _ := newFixture(t)
	ctx := context.Background()

	m.LogSecurityEvent(ctx, nil)
	m.LogSecurityEvent(ctx, &domain.SecurityEvent{SubjectID: "u1"})
	m.LogSecurityEvent(ctx, &domain.SecurityEvent{
		Type: domain.EventSuspiciousActivity, SubjectID: "u1", TenantID: "t1",
		Details: map[string]any{"fn": func() {}},
	})

	stored, _ := events.ListBySubjectSince(ctx, "t1", "u1", nil, now.Add(-time.Minute))
	if len(stored) != 1 {
		t.Fatalf("stored = %d, want only the typed event", len(stored))
	}
	if stored[0].Details != nil {
		t.Errorf("unencodable details should be dropped, got %v", stored[0].Details)
	}

	events.createErr = errors.New("db down")
	m.LogSecurityEvent(ctx, &domain.SecurityEvent{Type: domain.EventLoginFailed})
	events.createErr = nil
	events.panicOn = "create"
	m.LogSecurityEvent(ctx, &domain.SecurityEvent{Type: domain.EventLoginFailed})
}

func TestLogSecurityEvent_RecordsLoginFailureInCounter(t *testing.T) {
	counter := repository.NewMemoryFailureCounter()
	m, _, _ := newFixture(t, WithFailureCounter(counter))
	m.LogSecurityEvent(context.Background(), &domain.SecurityEvent{Type: domain.EventLoginFailed, IPAddress: "192.0.2.44"})
	n, _ := counter.CountFailures(context.Background(), "192.0.2.44", now.Add(-time.Minute))
	if n != 1 {
		t.Errorf("counter = %d, want 1", n)
	}
}

func TestHandleSecurityThreat(t *testing.T) {
	m, events, _ := newFixture(t)
	ctx := context.Background()

	m.HandleSecurityThreat(ctx, nil)
	m.HandleSecurityThreat(ctx, &domain.ThreatAssessment{SubjectID: "u1"})
	m.HandleSecurityThreat(ctx, &domain.ThreatAssessment{
		Type: domain.ThreatSessionHijack, Severity: domain.SeverityHigh, Confidence: 0.7,
		SubjectID: "u1", TenantID: "t1", SessionID: "s1",
		Reasons:            []string{"ip 203.0.113.9 not seen in 30m0s history"},
		RecommendedActions: []string{engine.ActionRequireReauthentication},
	})

	stored, _ := events.ListBySubjectSince(ctx, "t1", "u1", nil, now.Add(-time.Minute))
	if len(stored) != 1 {
		t.Fatalf("stored = %d, want 1", len(stored))
	}
	e := stored[0]
	if e.Type != domain.EventSessionHijackDetected || e.Severity != domain.SeverityHigh {
		t.Errorf("event = %s/%s", e.Type, e.Severity)
	}
	if e.Details["session_id"] != "s1" || e.Details["confidence"] != 0.7 {
		t.Errorf("details = %v", e.Details)
	}
	if reasons, _ := e.Details["reasons"].([]string); len(reasons) != 1 || reasons[0] != "ip 203.0.113.9 not seen in 30m0s history" {
		t.Errorf("reasons = %v", e.Details["reasons"])
	}
}

func TestRecordLoginAttempt_FifthFailureFlags(t *testing.T) {
	m, _, _ := newFixture(t)
	ctx := context.Background()
	attempt := domain.LoginAttempt{Email: "a@example.com", IPAddress: "198.51.100.1", TenantID: "t1"}

	for i := 1; i <= 4; i++ {
		if threats := m.RecordLoginAttempt(ctx, attempt); len(threats) != 0 {
			t.Fatalf("attempt %d flagged: %+v", i, threats)
		}
	}
	threats := m.RecordLoginAttempt(ctx, attempt)
	if findThreat(threats, domain.ThreatBruteForce) == nil {
		t.Fatal("fifth failure should be flagged")
	}
	stats := m.GetSecurityStatistics(ctx, "t1", 1)
	if stats.EventsByType[domain.EventLoginFailed] != 5 {
		t.Errorf("login_failed = %d, want 5", stats.EventsByType[domain.EventLoginFailed])
	}
	if stats.EventsByType[domain.EventBruteForceDetected] != 1 {
		t.Errorf("brute_force_detected = %d, want 1", stats.EventsByType[domain.EventBruteForceDetected])
	}
}

func TestGetSecurityStatistics_Empty(t *testing.T) {
	m, _, _ := newFixture(t)
	stats := m.GetSecurityStatistics(context.Background(), "nobody", 7)
	if stats.TotalEvents != 0 {
		t.Errorf("TotalEvents = %d, want 0", stats.TotalEvents)
	}
	if stats.EventsByType == nil || len(stats.EventsByType) != 0 {
		t.Errorf("EventsByType = %v, want empty non-nil map", stats.EventsByType)
	}
	if stats.EventsByDay == nil || len(stats.EventsByDay) != 0 {
		t.Errorf("EventsByDay = %v, want empty non-nil slice", stats.EventsByDay)
	}
}

func TestGetSecurityStatistics_Populated(t *testing.T) {
	m, events, _ := newFixture(t)
	ctx := context.Background()
	add := func(id string, typ domain.EventType, at time.Time) {
		_ = events.Create(ctx, &domain.SecurityEvent{ID: id, Type: typ, TenantID: "t1", CreatedAt: at})
	}
	add("1", domain.EventLoginFailed, now.Add(-26*time.Hour))
	add("2", domain.EventLoginFailed, now.Add(-time.Hour))
	add("3", domain.EventSessionCreated, now.Add(-2*time.Hour))
	add("4", domain.EventSessionCreated, now.Add(-8*24*time.Hour))

	stats := m.GetSecurityStatistics(ctx, "t1", 7)
	if stats.TotalEvents != 3 {
		t.Errorf("TotalEvents = %d, want 3", stats.TotalEvents)
	}
	if stats.EventsByType[domain.EventLoginFailed] != 2 || stats.EventsByType[domain.EventSessionCreated] != 1 {
		t.Errorf("EventsByType = %v", stats.EventsByType)
	}
	want := []domain.DayCount{{Date: "2026-05-03", Count: 1}, {Date: "2026-05-04", Count: 2}}
	if !slices.Equal(stats.EventsByDay, want) {
		t.Errorf("EventsByDay = %v, want %v", stats.EventsByDay, want)
	}

	if oneDay := m.GetSecurityStatistics(ctx, "t1", 0); oneDay.TotalEvents != 2 {
		t.Errorf("days=0 TotalEvents = %d, want 2", oneDay.TotalEvents)
	}
}

func TestGetSecurityStatistics_StoreError(t *testing.T) {
	m, events, _ := newFixture(t)
	events.statsErr = errors.New("db down")
	stats := m.GetSecurityStatistics(context.Background(), "t1", 7)
	if stats.TotalEvents != 0 || stats.EventsByType == nil || stats.EventsByDay == nil {
		t.Errorf("stats = %+v, want empty non-nil result", stats)
	}
}
