package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	monitordomain "sessionguard/internal/monitor/domain"
	"sessionguard/internal/session/domain"
)

// RevokeSession ends the session with id. Revoking twice is harmless and the
// first revocation's time and reason are kept. An unknown id is a no-op.
// An empty reason is recorded as logout.
func (m *Manager) RevokeSession(ctx context.Context, sessionID, reason string) error {
	ctx, span := m.tracer.Start(ctx, "session.RevokeSession")
	defer span.End()

	if sessionID == "" {
		return ErrInvalidInput
	}
	if reason == "" {
		reason = domain.ReasonLogout
	}
	span.SetAttributes(attribute.String("session_id", sessionID), attribute.String("reason", reason))

	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	s, err := m.sessions.GetByID(sctx, sessionID)
	if err != nil {
		failSpan(span, err)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if s == nil {
		return nil
	}
	if err := m.sessions.Revoke(sctx, sessionID, m.now(), reason); err != nil {
		failSpan(span, err)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if s.IsRevoked {
		return nil
	}
	m.metrics.SessionRevoked(ctx, reason)
	m.logEvent(ctx, &monitordomain.SecurityEvent{
		Type:      monitordomain.EventSessionRevoked,
		SubjectID: s.SubjectID,
		TenantID:  s.TenantID,
		Severity:  monitordomain.SeverityLow,
		Details:   map[string]any{"session_id": sessionID, "reason": reason},
	})
	return nil
}

// RevokeAllUserSessions revokes every session the subject holds in the tenant.
func (m *Manager) RevokeAllUserSessions(ctx context.Context, subjectID, tenantID, reason string) error {
	ctx, span := m.tracer.Start(ctx, "session.RevokeAllUserSessions")
	defer span.End()

	if subjectID == "" || tenantID == "" {
		return ErrInvalidInput
	}
	if reason == "" {
		reason = domain.ReasonLogoutAll
	}
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	if err := m.sessions.RevokeAllBySubject(sctx, tenantID, subjectID, m.now(), reason); err != nil {
		failSpan(span, err)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	m.metrics.SessionRevoked(ctx, reason)
	m.logEvent(ctx, &monitordomain.SecurityEvent{
		Type:      monitordomain.EventSessionRevoked,
		SubjectID: subjectID,
		TenantID:  tenantID,
		Severity:  monitordomain.SeverityLow,
		Details:   map[string]any{"scope": "all", "reason": reason},
	})
	return nil
}

// GetUserSessions returns the subject's live sessions, most recently active
// first, bounded by the configured list limit. Sessions that lapsed but were
// not yet swept are left out.
func (m *Manager) GetUserSessions(ctx context.Context, subjectID, tenantID string) ([]*domain.Session, error) {
	if subjectID == "" || tenantID == "" {
		return nil, ErrInvalidInput
	}
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	list, err := m.sessions.ListActiveBySubject(sctx, tenantID, subjectID, m.cfg.ListLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	now := m.now()
	out := make([]*domain.Session, 0, len(list))
	for _, s := range list {
		if s.IsValidAt(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

// SweepExpired marks active sessions past their absolute or idle deadline
// inactive. Validation never depends on it.
func (m *Manager) SweepExpired(ctx context.Context) (int64, error) {
	ctx, span := m.tracer.Start(ctx, "session.SweepExpired")
	defer span.End()

	n, err := m.sessions.DeactivateExpired(ctx, m.now())
	if err != nil {
		failSpan(span, err)
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	span.SetAttributes(attribute.Int64("deactivated", n))
	return n, nil
}
