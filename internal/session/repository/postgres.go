package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sessionguard/internal/db"
	"sessionguard/internal/session/domain"
)

const sessionColumns = `
	id, subject_id, tenant_id,
	browser_family, os_family, form_factor, is_mobile, screen_resolution, timezone,
	device_fingerprint, ip_address, user_agent, token_hash,
	created_at, last_activity_at, expires_at, max_idle_minutes,
	is_active, is_revoked, revoked_at, revoked_reason, remember_device`

// PostgresRepository implements Repository using PostgreSQL (sessions table).
type PostgresRepository struct {
	db   db.Querier
	pool *pgxpool.Pool // nil when bound to a transaction
}

// NewPostgresRepository returns a session repository that uses the given pool for persistence.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: pool, pool: pool}
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanOne(row)
}

// GetByTokenHash returns the session for the token digest, or nil if not found.
func (r *PostgresRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token_hash = $1`, tokenHash)
	return scanOne(row)
}

// ListActiveBySubject returns up to limit active sessions, most recent activity first.
// A limit <= 0 binds LIMIT NULL, which returns every active row.
func (r *PostgresRepository) ListActiveBySubject(ctx context.Context, tenantID, subjectID string, limit int) ([]*domain.Session, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE tenant_id = $1 AND subject_id = $2 AND is_active
		ORDER BY last_activity_at DESC, id DESC
		LIMIT $3
	`, tenantID, subjectID, lim)
	if err != nil {
		return nil, err
	}
	return scanAll(rows)
}

// ListBySubjectSince returns the subject's sessions with last activity at or after since.
func (r *PostgresRepository) ListBySubjectSince(ctx context.Context, tenantID, subjectID string, since time.Time) ([]*domain.Session, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE tenant_id = $1 AND subject_id = $2 AND last_activity_at >= $3
		ORDER BY last_activity_at DESC
		LIMIT 200
	`, tenantID, subjectID, since)
	if err != nil {
		return nil, err
	}
	return scanAll(rows)
}

// Create inserts the session row. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (
			$1, $2, $3,
			$4, $5, $6, $7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16, $17,
			$18, $19, $20, $21, $22
		)
	`,
		s.ID, s.SubjectID, s.TenantID,
		s.DeviceInfo.BrowserFamily, s.DeviceInfo.OSFamily, string(s.DeviceInfo.FormFactor), s.DeviceInfo.IsMobile,
		s.DeviceInfo.ScreenResolution, s.DeviceInfo.Timezone,
		s.DeviceFingerprint, s.IPAddress, s.UserAgent, s.TokenHash,
		s.CreatedAt, s.LastActivityAt, s.ExpiresAt, s.MaxIdleMinutes,
		s.IsActive, s.IsRevoked, s.RevokedAt, nullIfEmpty(s.RevokedReason), s.RememberDevice,
	)
	return err
}

// UpdateFields sets the non-nil timestamps of u for the session with id.
func (r *PostgresRepository) UpdateFields(ctx context.Context, id string, u domain.Update) error {
	_, err := r.db.Exec(ctx, `
		UPDATE sessions
		SET last_activity_at = COALESCE($2, last_activity_at),
		    expires_at = COALESCE($3, expires_at)
		WHERE id = $1
	`, id, u.LastActivityAt, u.ExpiresAt)
	return err
}

// Deactivate marks a lapsed session inactive without revoking it.
func (r *PostgresRepository) Deactivate(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `UPDATE sessions SET is_active = FALSE WHERE id = $1 AND NOT is_revoked`, id)
	return err
}

// Revoke deactivates the session (idempotent; first revocation time and reason win).
func (r *PostgresRepository) Revoke(ctx context.Context, id string, at time.Time, reason string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE sessions
		SET is_active = FALSE,
		    is_revoked = TRUE,
		    revoked_at = COALESCE(revoked_at, $2),
		    revoked_reason = COALESCE(revoked_reason, $3)
		WHERE id = $1
	`, id, at, reason)
	return err
}

// RevokeAllBySubject revokes every session of the subject in the tenant (idempotent).
func (r *PostgresRepository) RevokeAllBySubject(ctx context.Context, tenantID, subjectID string, at time.Time, reason string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE sessions
		SET is_active = FALSE,
		    is_revoked = TRUE,
		    revoked_at = COALESCE(revoked_at, $3),
		    revoked_reason = COALESCE(revoked_reason, $4)
		WHERE tenant_id = $1 AND subject_id = $2
	`, tenantID, subjectID, at, reason)
	return err
}

// DeactivateExpired marks active sessions past their absolute or idle deadline inactive.
func (r *PostgresRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE sessions
		SET is_active = FALSE
		WHERE is_active
		  AND NOT is_revoked
		  AND (expires_at <= $1 OR last_activity_at + make_interval(mins => max_idle_minutes) < $1)
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// WithSubjectLock runs fn inside a transaction holding a transaction-scoped
// advisory lock keyed by tenant and subject, so concurrent admissions for one
// subject serialize at the database.
func (r *PostgresRepository) WithSubjectLock(ctx context.Context, tenantID, subjectID string, fn func(ctx context.Context, tx Repository) error) error {
	if r.pool == nil {
		return fn(ctx, r)
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, tenantID+"/"+subjectID); err != nil {
		return err
	}
	if err := fn(ctx, &PostgresRepository{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanOne(row pgx.Row) (*domain.Session, error) {
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func scanAll(rows pgx.Rows) ([]*domain.Session, error) {
	defer rows.Close()
	out := make([]*domain.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		s      domain.Session
		reason *string
	)
	err := row.Scan(
		&s.ID, &s.SubjectID, &s.TenantID,
		&s.DeviceInfo.BrowserFamily, &s.DeviceInfo.OSFamily, &s.DeviceInfo.FormFactor, &s.DeviceInfo.IsMobile,
		&s.DeviceInfo.ScreenResolution, &s.DeviceInfo.Timezone,
		&s.DeviceFingerprint, &s.IPAddress, &s.UserAgent, &s.TokenHash,
		&s.CreatedAt, &s.LastActivityAt, &s.ExpiresAt, &s.MaxIdleMinutes,
		&s.IsActive, &s.IsRevoked, &s.RevokedAt, &reason, &s.RememberDevice,
	)
	if err != nil {
		return nil, err
	}
	if reason != nil {
		s.RevokedReason = *reason
	}
	return &s, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
