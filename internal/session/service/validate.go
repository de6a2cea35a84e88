package service

import (
	"context"
	"fmt"
	"time"

	monitordomain "sessionguard/internal/monitor/domain"
	"sessionguard/internal/security"
	"sessionguard/internal/session/domain"
)

// ValidationResult is the outcome of a token check. Session is nil when IsValid is false.
type ValidationResult struct {
	IsValid bool
	Session *domain.Session
}

// Rejection causes reported to metrics.
const (
	causeEmptyToken = "empty_token"
	causeNotFound   = "not_found"
	causeRevoked    = "revoked"
	causeExpired    = "expired"
	causeStore      = "store_error"
)

// ValidateSession checks the bearer token and, when it is valid, slides the
// idle window forward. Any store failure makes the token invalid.
func (m *Manager) ValidateSession(ctx context.Context, token string) ValidationResult {
	ctx, span := m.tracer.Start(ctx, "session.ValidateSession")
	defer span.End()

	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	s, cause := m.lookup(sctx, token)
	if s == nil {
		m.reject(ctx, cause)
		return ValidationResult{}
	}
	now := m.now()
	if err := m.sessions.UpdateFields(sctx, s.ID, domain.Update{LastActivityAt: &now}); err != nil {
		m.log.WarnContext(ctx, "session: activity update failed", "session_id", s.ID, "error", err)
		m.reject(ctx, causeStore)
		return ValidationResult{}
	}
	s.LastActivityAt = now
	return ValidationResult{IsValid: true, Session: s}
}

// ValidateActivity validates like ValidateSession and, for a valid session,
// analyzes the request in the background. Threats found are handed to the
// monitor; the analysis never changes the result returned here.
func (m *Manager) ValidateActivity(ctx context.Context, token string, ac monitordomain.ActivityContext) ValidationResult {
	res := m.ValidateSession(ctx, token)
	if !res.IsValid || m.monitor == nil {
		return res
	}
	snapshot := *res.Session
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.AnalysisTimeout)
	m.analyses.Add(1)
	go func() {
		defer m.analyses.Done()
		defer cancel()
		m.analyze(actx, &snapshot, ac)
	}()
	return res
}

func (m *Manager) analyze(ctx context.Context, s *domain.Session, ac monitordomain.ActivityContext) {
	defer func() {
		if r := recover(); r != nil {
			m.metrics.AnalysisFailed(ctx)
			m.log.WarnContext(ctx, "session: activity analysis panicked", "session_id", s.ID, "panic", r)
		}
	}()
	threats, err := m.monitor.AnalyzeSessionActivity(ctx, s, ac)
	if err != nil {
		m.metrics.AnalysisFailed(ctx)
		m.log.WarnContext(ctx, "session: activity analysis failed", "session_id", s.ID, "error", err)
		return
	}
	for i := range threats {
		m.monitor.HandleSecurityThreat(ctx, &threats[i])
	}
}

// RefreshSession extends a valid session. The new expiry is one lifetime from
// now, capped at the session's maximum lifetime measured from creation.
func (m *Manager) RefreshSession(ctx context.Context, token string) bool {
	ctx, span := m.tracer.Start(ctx, "session.RefreshSession")
	defer span.End()

	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	s, cause := m.lookup(sctx, token)
	if s == nil {
		m.reject(ctx, cause)
		return false
	}
	now := m.now()
	expires := m.refreshedExpiry(s, now)
	if err := m.sessions.UpdateFields(sctx, s.ID, domain.Update{LastActivityAt: &now, ExpiresAt: &expires}); err != nil {
		failSpan(span, err)
		m.log.WarnContext(ctx, "session: refresh failed", "session_id", s.ID, "error", err)
		return false
	}
	return true
}

func (m *Manager) refreshedExpiry(s *domain.Session, now time.Time) time.Time {
	lifetime, maxLifetime := m.cfg.AbsoluteLifetime, m.cfg.MaxLifetime
	if s.RememberDevice {
		lifetime = m.cfg.RememberLifetime
		maxLifetime = max(maxLifetime, m.cfg.RememberLifetime)
	}
	expires := now.Add(lifetime)
	if limit := s.CreatedAt.Add(maxLifetime); expires.After(limit) {
		expires = limit
	}
	return expires
}

// lookup resolves token to a session that is valid now. On failure it returns
// nil and the rejection cause.
func (m *Manager) lookup(ctx context.Context, token string) (*domain.Session, string) {
	if token == "" {
		return nil, causeEmptyToken
	}
	s, err := m.sessions.GetByTokenHash(ctx, security.HashToken(token))
	if err != nil {
		m.log.WarnContext(ctx, "session: lookup failed", "error", fmt.Errorf("%w: %v", ErrStoreUnavailable, err))
		return nil, causeStore
	}
	if s == nil || !security.TokenHashEqual(token, s.TokenHash) {
		return nil, causeNotFound
	}
	switch s.StateAt(m.now()) {
	case domain.StateActive:
		return s, ""
	case domain.StateRevoked:
		return nil, causeRevoked
	default:
		return nil, causeExpired
	}
}

func (m *Manager) reject(ctx context.Context, cause string) {
	m.metrics.ValidationRejected(ctx, cause)
}
