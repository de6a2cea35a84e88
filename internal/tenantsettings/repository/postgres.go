package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sessionguard/internal/tenantsettings/domain"
)

// PostgresRepository implements Repository using PostgreSQL (tenant_settings table).
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a tenant settings repository that uses the given pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetByTenant returns the settings for the tenant, or nil if not found.
func (r *PostgresRepository) GetByTenant(ctx context.Context, tenantID string) (*domain.TenantSettings, error) {
	row := r.pool.QueryRow(ctx, `SELECT tenant_id, settings, updated_at FROM tenant_settings WHERE tenant_id = $1`, tenantID)
	s, err := scanSettings(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// ListAll returns every tenant's settings ordered by tenant id.
func (r *PostgresRepository) ListAll(ctx context.Context) ([]*domain.TenantSettings, error) {
	rows, err := r.pool.Query(ctx, `SELECT tenant_id, settings, updated_at FROM tenant_settings ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.TenantSettings, 0)
	for rows.Next() {
		s, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Upsert validates and saves the settings, filling missing sections.
func (r *PostgresRepository) Upsert(ctx context.Context, s *domain.TenantSettings) error {
	if s == nil || s.TenantID == "" {
		return errors.New("tenant settings: tenant id is required")
	}
	merged := domain.Merge(s)
	if err := merged.Detection.Validate(); err != nil {
		return fmt.Errorf("tenant settings: %w", err)
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	updated := s.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO tenant_settings (tenant_id, settings, updated_at)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (tenant_id) DO UPDATE SET settings = EXCLUDED.settings, updated_at = EXCLUDED.updated_at
	`, s.TenantID, string(raw), updated)
	return err
}

func scanSettings(row pgx.Row) (*domain.TenantSettings, error) {
	var (
		s   domain.TenantSettings
		raw []byte
	)
	if err := row.Scan(&s.TenantID, &raw, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("tenant settings %s: %w", s.TenantID, err)
	}
	return &s, nil
}
