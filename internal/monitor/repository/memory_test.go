package repository

import (
	"context"
	"testing"
	"time"

	"sessionguard/internal/monitor/domain"
)

func TestMemoryRepository_CountByTypeAndIP_InclusiveBoundary(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	since := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	for _, at := range []time.Time{since.Add(-time.Second), since, since.Add(time.Minute)} {
		_ = repo.Create(ctx, &domain.SecurityEvent{ID: at.String(), Type: domain.EventLoginFailed, IPAddress: "10.0.0.1", CreatedAt: at})
	}
	_ = repo.Create(ctx, &domain.SecurityEvent{ID: "other-ip", Type: domain.EventLoginFailed, IPAddress: "10.0.0.2", CreatedAt: since})
	_ = repo.Create(ctx, &domain.SecurityEvent{ID: "other-type", Type: domain.EventLoginSuccess, IPAddress: "10.0.0.1", CreatedAt: since})

	n, err := repo.CountByTypeAndIP(ctx, domain.EventLoginFailed, "10.0.0.1", since)
	if err != nil {
		t.Fatalf("CountByTypeAndIP: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestMemoryRepository_ListBySubjectSince_FiltersTypes(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	_ = repo.Create(ctx, &domain.SecurityEvent{ID: "1", Type: domain.EventLoginSuccess, TenantID: "t1", SubjectID: "u1", CreatedAt: now})
	_ = repo.Create(ctx, &domain.SecurityEvent{ID: "2", Type: domain.EventSessionCreated, TenantID: "t1", SubjectID: "u1", CreatedAt: now})
	_ = repo.Create(ctx, &domain.SecurityEvent{ID: "3", Type: domain.EventLoginSuccess, TenantID: "t2", SubjectID: "u1", CreatedAt: now})

	got, err := repo.ListBySubjectSince(ctx, "t1", "u1", []domain.EventType{domain.EventLoginSuccess}, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("ListBySubjectSince: %v", err)
	}
	if len(got) != 1 || got[0].ID != "1" {
		t.Errorf("got %d events, want only event 1", len(got))
	}
	all, _ := repo.ListBySubjectSince(ctx, "t1", "u1", nil, now.Add(-time.Minute))
	if len(all) != 2 {
		t.Errorf("len(all) = %d, want 2", len(all))
	}
}

func TestMemoryRepository_CountByDaySince_Ascending(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	day2 := time.Date(2026, 1, 11, 23, 30, 0, 0, time.UTC)
	day1 := time.Date(2026, 1, 10, 1, 0, 0, 0, time.UTC)
	_ = repo.Create(ctx, &domain.SecurityEvent{ID: "a", Type: domain.EventLoginFailed, TenantID: "t1", CreatedAt: day2})
	_ = repo.Create(ctx, &domain.SecurityEvent{ID: "b", Type: domain.EventLoginFailed, TenantID: "t1", CreatedAt: day1})
	_ = repo.Create(ctx, &domain.SecurityEvent{ID: "c", Type: domain.EventLoginFailed, TenantID: "t1", CreatedAt: day2.Add(-time.Hour)})

	got, err := repo.CountByDaySince(ctx, "t1", day1.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountByDaySince: %v", err)
	}
	want := []domain.DayCount{{Date: "2026-01-10", Count: 1}, {Date: "2026-01-11", Count: 2}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("day[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMemoryFailureCounter(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryFailureCounter()
	since := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	_ = c.RecordFailure(ctx, "10.0.0.1", since.Add(-time.Second))
	_ = c.RecordFailure(ctx, "10.0.0.1", since)
	_ = c.RecordFailure(ctx, "10.0.0.1", since.Add(time.Second))
	n, err := c.CountFailures(ctx, "10.0.0.1", since)
	if err != nil {
		t.Fatalf("CountFailures: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}
