package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"sessionguard/internal/monitor/domain"
)

// MemoryRepository is an in-process event Repository.
type MemoryRepository struct {
	mu     sync.RWMutex
	events []*domain.SecurityEvent
}

// NewMemoryRepository returns an empty in-memory event repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(ctx context.Context, e *domain.SecurityEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := *e
	r.mu.Lock()
	r.events = append(r.events, &c)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) CountByTypeAndIP(ctx context.Context, typ domain.EventType, ip string, since time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, e := range r.events {
		if e.Type == typ && e.IPAddress == ip && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) ListBySubjectSince(ctx context.Context, tenantID, subjectID string, types []domain.EventType, since time.Time) ([]*domain.SecurityEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := make(map[domain.EventType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	r.mu.RLock()
	out := make([]*domain.SecurityEvent, 0)
	for _, e := range r.events {
		if e.TenantID != tenantID || e.SubjectID != subjectID || e.CreatedAt.Before(since) {
			continue
		}
		if len(want) > 0 && !want[e.Type] {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) CountByTypeSince(ctx context.Context, tenantID string, since time.Time) (map[domain.EventType]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.EventType]int64)
	for _, e := range r.events {
		if e.TenantID == tenantID && !e.CreatedAt.Before(since) {
			out[e.Type]++
		}
	}
	return out, nil
}

func (r *MemoryRepository) CountByDaySince(ctx context.Context, tenantID string, since time.Time) ([]domain.DayCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	byDay := make(map[string]int64)
	for _, e := range r.events {
		if e.TenantID == tenantID && !e.CreatedAt.Before(since) {
			byDay[e.CreatedAt.UTC().Format(DayFormat)]++
		}
	}
	r.mu.RUnlock()
	out := make([]domain.DayCount, 0, len(byDay))
	for day, n := range byDay {
		out = append(out, domain.DayCount{Date: day, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// MemoryFailureCounter is an in-process FailureCounter.
type MemoryFailureCounter struct {
	mu   sync.Mutex
	byIP map[string][]time.Time
}

// NewMemoryFailureCounter returns an empty in-memory failure counter.
func NewMemoryFailureCounter() *MemoryFailureCounter {
	return &MemoryFailureCounter{byIP: make(map[string][]time.Time)}
}

func (c *MemoryFailureCounter) RecordFailure(ctx context.Context, ip string, at time.Time) error {
	c.mu.Lock()
	c.byIP[ip] = append(c.byIP[ip], at)
	c.mu.Unlock()
	return nil
}

func (c *MemoryFailureCounter) CountFailures(ctx context.Context, ip string, since time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, at := range c.byIP[ip] {
		if !at.Before(since) {
			n++
		}
	}
	return n, nil
}
