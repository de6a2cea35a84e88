package repository

import (
	"context"
	"time"

	"sessionguard/internal/session/domain"
)

// Repository defines persistence for sessions.
//
// Getters return (nil, nil) when no row matches; an error means the store
// could not answer.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	// ListActiveBySubject returns active sessions ordered by last activity,
	// most recent first. A limit <= 0 returns all of them.
	ListActiveBySubject(ctx context.Context, tenantID, subjectID string, limit int) ([]*domain.Session, error)
	// ListBySubjectSince returns the subject's sessions whose last activity is at
	// or after since, regardless of state.
	ListBySubjectSince(ctx context.Context, tenantID, subjectID string, since time.Time) ([]*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	UpdateFields(ctx context.Context, id string, u domain.Update) error
	// Deactivate clears is_active on a session that has lapsed. Revoked rows
	// are left untouched.
	Deactivate(ctx context.Context, id string) error
	// Revoke deactivates the session. The first revocation's time and reason are kept.
	Revoke(ctx context.Context, id string, at time.Time, reason string) error
	RevokeAllBySubject(ctx context.Context, tenantID, subjectID string, at time.Time, reason string) error
	// DeactivateExpired flips active sessions past their absolute or idle deadline
	// to inactive without revoking them. Returns the number of rows changed.
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
	// WithSubjectLock runs fn while holding the per-subject admission lock. The
	// Repository passed to fn must be used for all reads and writes inside fn.
	WithSubjectLock(ctx context.Context, tenantID, subjectID string, fn func(ctx context.Context, tx Repository) error) error
}
