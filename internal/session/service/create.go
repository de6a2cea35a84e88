package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	devicedomain "sessionguard/internal/device/domain"
	deviceservice "sessionguard/internal/device/service"
	monitordomain "sessionguard/internal/monitor/domain"
	"sessionguard/internal/security"
	"sessionguard/internal/session/domain"
	"sessionguard/internal/session/repository"
)

// CreateResult is a new session and the bearer token for it. The token is
// returned once and never stored.
type CreateResult struct {
	Session *domain.Session
	Token   string
}

// CreateSession admits a new session for the subject. Active rows that have
// already lapsed are deactivated first; when the subject still holds
// DeviceCeiling live sessions, the least recently active ones are revoked with
// reason device_limit_exceeded before the new row is inserted. All of it runs
// under the store's per-subject lock.
func (m *Manager) CreateSession(ctx context.Context, subjectID, tenantID string, dc domain.DeviceContext) (*CreateResult, error) {
	ctx, span := m.tracer.Start(ctx, "session.CreateSession")
	defer span.End()

	subjectID, tenantID = strings.TrimSpace(subjectID), strings.TrimSpace(tenantID)
	if subjectID == "" || tenantID == "" {
		return nil, ErrInvalidInput
	}
	span.SetAttributes(attribute.String("tenant_id", tenantID), attribute.String("subject_id", subjectID))

	token, digest, err := security.NewOpaqueToken(security.DefaultTokenBytes)
	if err != nil {
		failSpan(span, err)
		return nil, fmt.Errorf("session: generate token: %w", err)
	}
	now := m.now()
	info := dc.DeviceInfo.Merge(devicedomain.ParseUserAgent(dc.UserAgent))
	lifetime := m.cfg.AbsoluteLifetime
	if dc.RememberDevice {
		lifetime = m.cfg.RememberLifetime
	}
	s := &domain.Session{
		ID:                ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		SubjectID:         subjectID,
		TenantID:          tenantID,
		DeviceInfo:        info,
		DeviceFingerprint: info.Fingerprint(),
		IPAddress:         dc.IPAddress,
		UserAgent:         dc.UserAgent,
		TokenHash:         digest,
		CreatedAt:         now,
		LastActivityAt:    now,
		ExpiresAt:         now.Add(lifetime),
		MaxIdleMinutes:    m.cfg.MaxIdleMinutes,
		IsActive:          true,
		RememberDevice:    dc.RememberDevice,
	}

	var evicted []string
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()
	err = m.sessions.WithSubjectLock(sctx, tenantID, subjectID, func(ctx context.Context, tx repository.Repository) error {
		evicted = evicted[:0]
		rows, err := tx.ListActiveBySubject(ctx, tenantID, subjectID, 0)
		if err != nil {
			return err
		}
		active, lapsed := deviceservice.SplitLapsed(rows, now)
		for _, l := range lapsed {
			if err := tx.Deactivate(ctx, l.ID); err != nil {
				return err
			}
		}
		for {
			id, ok := deviceservice.SelectEvictionTarget(active, m.cfg.DeviceCeiling)
			if !ok {
				break
			}
			if err := tx.Revoke(ctx, id, now, domain.ReasonDeviceLimitExceeded); err != nil {
				return err
			}
			evicted = append(evicted, id)
			active = without(active, id)
		}
		return tx.Create(ctx, s)
	})
	if err != nil {
		failSpan(span, err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	span.SetAttributes(attribute.String("session_id", s.ID), attribute.Int("evicted", len(evicted)))

	m.metrics.SessionCreated(ctx)
	for _, id := range evicted {
		m.metrics.SessionRevoked(ctx, domain.ReasonDeviceLimitExceeded)
		m.logEvent(ctx, &monitordomain.SecurityEvent{
			Type:      monitordomain.EventSessionRevoked,
			SubjectID: subjectID,
			TenantID:  tenantID,
			IPAddress: dc.IPAddress,
			UserAgent: dc.UserAgent,
			Severity:  monitordomain.SeverityLow,
			Details: map[string]any{
				"session_id":     id,
				"reason":         domain.ReasonDeviceLimitExceeded,
				"replacement_id": s.ID,
			},
		})
	}
	if m.devices != nil {
		if _, err := m.devices.RegisterDevice(ctx, tenantID, subjectID, info); err != nil {
			m.log.WarnContext(ctx, "session: device registration failed", "session_id", s.ID, "error", err)
		}
	}
	m.logEvent(ctx, &monitordomain.SecurityEvent{
		Type:      monitordomain.EventSessionCreated,
		SubjectID: subjectID,
		TenantID:  tenantID,
		IPAddress: dc.IPAddress,
		UserAgent: dc.UserAgent,
		Severity:  monitordomain.SeverityLow,
		Details: map[string]any{
			"session_id":         s.ID,
			"device_fingerprint": s.DeviceFingerprint,
			"remember_device":    s.RememberDevice,
		},
	})

	out := *s
	return &CreateResult{Session: &out, Token: token}, nil
}

func without(list []*domain.Session, id string) []*domain.Session {
	out := make([]*domain.Session, 0, len(list))
	for _, s := range list {
		if s != nil && s.ID != id {
			out = append(out, s)
		}
	}
	return out
}
