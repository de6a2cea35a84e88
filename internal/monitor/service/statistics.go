package service

import (
	"context"
	"time"

	"sessionguard/internal/monitor/domain"
)

// GetSecurityStatistics aggregates the tenant's events over the trailing
// days×24h. days <= 0 means one day. Store failures are logged and yield empty
// statistics; the map and slice are never nil.
func (m *Monitor) GetSecurityStatistics(ctx context.Context, tenantID string, days int) domain.SecurityStatistics {
	if days <= 0 {
		days = 1
	}
	since := m.now().Add(-time.Duration(days) * 24 * time.Hour)
	sctx, cancel := m.storeCtx(ctx)
	defer cancel()

	byType, err := m.events.CountByTypeSince(sctx, tenantID, since)
	if err != nil {
		m.log.WarnContext(ctx, "monitor: statistics by type failed", "tenant_id", tenantID, "error", err)
		return domain.EmptyStatistics()
	}
	byDay, err := m.events.CountByDaySince(sctx, tenantID, since)
	if err != nil {
		m.log.WarnContext(ctx, "monitor: statistics by day failed", "tenant_id", tenantID, "error", err)
		return domain.EmptyStatistics()
	}

	stats := domain.EmptyStatistics()
	for t, n := range byType {
		stats.EventsByType[t] = n
		stats.TotalEvents += n
	}
	if byDay != nil {
		stats.EventsByDay = byDay
	}
	return stats
}
