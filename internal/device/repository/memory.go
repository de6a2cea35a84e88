package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"sessionguard/internal/device/domain"
)

// MemoryRepository is an in-process device Repository.
type MemoryRepository struct {
	mu sync.RWMutex
	m  map[string]*domain.Device
}

// NewMemoryRepository returns an empty in-memory device repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]*domain.Device)}
}

func (r *MemoryRepository) GetBySubjectAndFingerprint(ctx context.Context, subjectID, fingerprint string) (*domain.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.m {
		if d.SubjectID == subjectID && d.Fingerprint == fingerprint {
			c := *d
			return &c, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) ListBySubject(ctx context.Context, subjectID string) ([]*domain.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]*domain.Device, 0)
	for _, d := range r.m {
		if d.SubjectID == subjectID {
			c := *d
			out = append(out, &c)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsedAt.After(out[j].LastUsedAt) })
	return out, nil
}

// Create stores d. A second record for the same subject and fingerprint is ignored.
func (r *MemoryRepository) Create(ctx context.Context, d *domain.Device) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.m {
		if existing.SubjectID == d.SubjectID && existing.Fingerprint == d.Fingerprint {
			return nil
		}
	}
	c := *d
	r.m[d.ID] = &c
	return nil
}

func (r *MemoryRepository) Touch(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.m[id]; ok && at.After(d.LastUsedAt) {
		d.LastUsedAt = at
	}
	return nil
}

func (r *MemoryRepository) SetTrusted(ctx context.Context, id string, trusted bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.m[id]; ok {
		d.IsTrusted = trusted
	}
	return nil
}
