package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"sessionguard/internal/session/domain"
)

// MemoryRepository is an in-process Repository for tests and single-node development.
// Returned sessions are copies; callers never alias stored rows.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*domain.Session
	locks sync.Map // tenant/subject -> *sync.Mutex
}

// NewMemoryRepository returns an empty in-memory session repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.Session)}
}

// GetByID returns the session for id, or nil if not found.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clone(r.byID[id]), nil
}

// GetByTokenHash returns the session whose token digest matches, or nil.
func (r *MemoryRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.byID {
		if s.TokenHash == tokenHash {
			return clone(s), nil
		}
	}
	return nil, nil
}

// ListActiveBySubject returns active sessions for the subject, most recently used first.
func (r *MemoryRepository) ListActiveBySubject(ctx context.Context, tenantID, subjectID string, limit int) ([]*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]*domain.Session, 0)
	for _, s := range r.byID {
		if s.TenantID == tenantID && s.SubjectID == subjectID && s.IsActive {
			out = append(out, clone(s))
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListBySubjectSince returns sessions for the subject active at or after since.
func (r *MemoryRepository) ListBySubjectSince(ctx context.Context, tenantID, subjectID string, since time.Time) ([]*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Session, 0)
	for _, s := range r.byID {
		if s.TenantID == tenantID && s.SubjectID == subjectID && !s.LastActivityAt.Before(since) {
			out = append(out, clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.After(out[j].LastActivityAt) })
	return out, nil
}

// Create stores the session. The session must have ID set.
func (r *MemoryRepository) Create(ctx context.Context, s *domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.ID] = clone(s)
	return nil
}

// UpdateFields applies the non-nil fields of u to the session with id.
func (r *MemoryRepository) UpdateFields(ctx context.Context, id string, u domain.Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return nil
	}
	if u.LastActivityAt != nil {
		s.LastActivityAt = *u.LastActivityAt
	}
	if u.ExpiresAt != nil {
		s.ExpiresAt = *u.ExpiresAt
	}
	return nil
}

// Deactivate marks the session inactive unless it was revoked.
func (r *MemoryRepository) Deactivate(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[id]; ok && !s.IsRevoked {
		s.IsActive = false
	}
	return nil
}

// Revoke marks the session revoked, keeping the first revocation's time and reason.
func (r *MemoryRepository) Revoke(ctx context.Context, id string, at time.Time, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[id]; ok {
		revoke(s, at, reason)
	}
	return nil
}

// RevokeAllBySubject revokes every session of the subject in the tenant.
func (r *MemoryRepository) RevokeAllBySubject(ctx context.Context, tenantID, subjectID string, at time.Time, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byID {
		if s.TenantID == tenantID && s.SubjectID == subjectID {
			revoke(s, at, reason)
		}
	}
	return nil
}

// DeactivateExpired marks active sessions past either deadline inactive.
func (r *MemoryRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.byID {
		if s.IsActive && !s.IsRevoked && s.StateAt(now) == domain.StateExpired {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}

// WithSubjectLock serializes fn against other admissions for the same subject.
func (r *MemoryRepository) WithSubjectLock(ctx context.Context, tenantID, subjectID string, fn func(ctx context.Context, tx Repository) error) error {
	v, _ := r.locks.LoadOrStore(tenantID+"/"+subjectID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return fn(ctx, r)
}

func revoke(s *domain.Session, at time.Time, reason string) {
	s.IsActive = false
	s.IsRevoked = true
	if s.RevokedAt == nil {
		t := at
		s.RevokedAt = &t
		s.RevokedReason = reason
	}
}

func clone(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}
