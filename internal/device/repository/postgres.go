package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sessionguard/internal/device/domain"
)

const deviceColumns = `id, subject_id, tenant_id, fingerprint, browser_family, os_family, is_trusted, first_seen_at, last_used_at`

// PostgresRepository implements Repository using PostgreSQL (devices table).
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a device repository that uses the given pool for persistence.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetBySubjectAndFingerprint returns the device for the subject and fingerprint, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetBySubjectAndFingerprint(ctx context.Context, subjectID, fingerprint string) (*domain.Device, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE subject_id = $1 AND fingerprint = $2`, subjectID, fingerprint)
	d, err := scanDevice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListBySubject returns the subject's devices, most recently used first.
func (r *PostgresRepository) ListBySubject(ctx context.Context, subjectID string) ([]*domain.Device, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+deviceColumns+` FROM devices WHERE subject_id = $1 ORDER BY last_used_at DESC LIMIT 100`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.Device, 0)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Create inserts the device. Concurrent first sightings of one fingerprint collapse to one row.
func (r *PostgresRepository) Create(ctx context.Context, d *domain.Device) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO devices (`+deviceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (subject_id, fingerprint) DO NOTHING
	`, d.ID, d.SubjectID, d.TenantID, d.Fingerprint, d.BrowserFamily, d.OSFamily, d.IsTrusted, d.FirstSeenAt, d.LastUsedAt)
	return err
}

// Touch moves last_used_at forward to at; it never moves backwards.
func (r *PostgresRepository) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE devices SET last_used_at = GREATEST(last_used_at, $2) WHERE id = $1`, id, at)
	return err
}

// SetTrusted sets the device's trusted flag for the given id.
func (r *PostgresRepository) SetTrusted(ctx context.Context, id string, trusted bool) error {
	_, err := r.pool.Exec(ctx, `UPDATE devices SET is_trusted = $2 WHERE id = $1`, id, trusted)
	return err
}

func scanDevice(row pgx.Row) (*domain.Device, error) {
	var d domain.Device
	if err := row.Scan(&d.ID, &d.SubjectID, &d.TenantID, &d.Fingerprint, &d.BrowserFamily, &d.OSFamily, &d.IsTrusted, &d.FirstSeenAt, &d.LastUsedAt); err != nil {
		return nil, err
	}
	return &d, nil
}
