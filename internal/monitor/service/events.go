package service

import (
	"context"
	"encoding/json"
	"maps"

	"github.com/google/uuid"

	"sessionguard/internal/monitor/domain"
)

// LogSecurityEvent persists e and appends it to the audit sink. It never
// fails the caller: nil events, events without a type and store errors are
// logged and dropped, and details that cannot be encoded are left out.
func (m *Monitor) LogSecurityEvent(ctx context.Context, e *domain.SecurityEvent) {
	defer m.recoverAudit(ctx, "log_security_event")
	if e == nil {
		m.log.WarnContext(ctx, "monitor: ignoring nil security event")
		return
	}
	if e.Type == "" {
		m.log.WarnContext(ctx, "monitor: ignoring security event without type", "subject_id", e.SubjectID)
		return
	}
	ev := *e
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = m.now()
	}
	if ev.Severity == "" {
		ev.Severity = domain.SeverityLow
	}
	if len(ev.Details) > 0 {
		if _, err := json.Marshal(ev.Details); err != nil {
			m.log.WarnContext(ctx, "monitor: dropping unencodable event details", "event_type", string(ev.Type), "error", err)
			ev.Details = nil
		} else {
			ev.Details = maps.Clone(ev.Details)
		}
	}

	sctx, cancel := m.storeCtx(ctx)
	if err := m.events.Create(sctx, &ev); err != nil {
		m.log.WarnContext(ctx, "monitor: failed to persist security event", "event_type", string(ev.Type), "error", err)
	}
	if ev.Type == domain.EventLoginFailed && m.failures != nil && ev.IPAddress != "" {
		if err := m.failures.RecordFailure(sctx, ev.IPAddress, ev.CreatedAt); err != nil {
			m.log.WarnContext(ctx, "monitor: failed to count login failure", "error", err)
		}
	}
	cancel()

	if m.sink != nil {
		actx, acancel := m.storeCtx(ctx)
		defer acancel()
		m.sink.Append(actx, &ev)
	}
}

// HandleSecurityThreat records a detected threat as a security event and
// counts it. Like LogSecurityEvent it never fails the caller.
func (m *Monitor) HandleSecurityThreat(ctx context.Context, t *domain.ThreatAssessment) {
	defer m.recoverAudit(ctx, "handle_security_threat")
	if t == nil {
		m.log.WarnContext(ctx, "monitor: ignoring nil threat")
		return
	}
	if t.Type == "" {
		m.log.WarnContext(ctx, "monitor: ignoring threat without type", "subject_id", t.SubjectID)
		return
	}
	details := make(map[string]any, len(t.Details)+5)
	maps.Copy(details, t.Details)
	details["threat_type"] = string(t.Type)
	details["confidence"] = t.Confidence
	if len(t.Reasons) > 0 {
		details["reasons"] = t.Reasons
	}
	if len(t.RecommendedActions) > 0 {
		details["recommended_actions"] = t.RecommendedActions
	}
	if t.SessionID != "" {
		details["session_id"] = t.SessionID
	}
	sev := t.Severity
	if sev == "" {
		sev = domain.SeverityMedium
	}
	m.metrics.ThreatDetected(ctx, string(t.Type), string(sev))
	m.LogSecurityEvent(ctx, &domain.SecurityEvent{
		Type:      t.Type.EventType(),
		SubjectID: t.SubjectID,
		TenantID:  t.TenantID,
		IPAddress: t.IPAddress,
		UserAgent: t.UserAgent,
		Details:   details,
		Severity:  sev,
		CreatedAt: t.DetectedAt,
	})
}

// RecordLoginAttempt logs the attempt as login_success or login_failed, runs
// the login detectors and handles every threat they report.
func (m *Monitor) RecordLoginAttempt(ctx context.Context, a domain.LoginAttempt) []domain.ThreatAssessment {
	if a.Timestamp.IsZero() {
		a.Timestamp = m.now()
	}
	typ := domain.EventLoginFailed
	if a.Success {
		typ = domain.EventLoginSuccess
	}
	details := map[string]any{}
	if a.Email != "" {
		details["email"] = a.Email
	}
	m.LogSecurityEvent(ctx, &domain.SecurityEvent{
		Type:      typ,
		SubjectID: a.SubjectID,
		TenantID:  a.TenantID,
		IPAddress: a.IPAddress,
		UserAgent: a.UserAgent,
		Details:   details,
		Severity:  domain.SeverityLow,
		CreatedAt: a.Timestamp,
	})
	threats := m.AnalyzeLoginAttempt(ctx, a)
	for i := range threats {
		m.HandleSecurityThreat(ctx, &threats[i])
	}
	return threats
}

func (m *Monitor) recoverAudit(ctx context.Context, op string) {
	if r := recover(); r != nil {
		m.log.ErrorContext(ctx, "monitor: recovered panic", "op", op, "panic", r)
	}
}
