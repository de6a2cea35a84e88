package repository

import (
	"context"
	"time"

	"sessionguard/internal/monitor/domain"
)

// Repository defines persistence for security events. Every "since" bound is
// inclusive: an event created exactly at since is counted.
type Repository interface {
	Create(ctx context.Context, e *domain.SecurityEvent) error
	// CountByTypeAndIP counts events of typ from ip at or after since, across tenants.
	CountByTypeAndIP(ctx context.Context, typ domain.EventType, ip string, since time.Time) (int64, error)
	// ListBySubjectSince returns the subject's events of the given types at or after since, newest first.
	ListBySubjectSince(ctx context.Context, tenantID, subjectID string, types []domain.EventType, since time.Time) ([]*domain.SecurityEvent, error)
	CountByTypeSince(ctx context.Context, tenantID string, since time.Time) (map[domain.EventType]int64, error)
	// CountByDaySince groups events by UTC calendar day, ordered ascending.
	CountByDaySince(ctx context.Context, tenantID string, since time.Time) ([]domain.DayCount, error)
}

// FailureCounter is a sliding-window counter of failed logins per IP address.
type FailureCounter interface {
	RecordFailure(ctx context.Context, ip string, at time.Time) error
	// CountFailures counts failures from ip at or after since.
	CountFailures(ctx context.Context, ip string, since time.Time) (int64, error)
}

// DayFormat is the layout of DayCount.Date.
const DayFormat = "2006-01-02"
