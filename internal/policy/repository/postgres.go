package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sessionguard/internal/policy/domain"
)

const policyColumns = `id, tenant_id, name, rules, enabled, created_at`

// PostgresRepository implements Repository using PostgreSQL (response_policies table).
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a policy repository that uses the given pool for persistence.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetByID returns the policy for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Policy, error) {
	var p domain.Policy
	err := r.pool.QueryRow(ctx, `SELECT `+policyColumns+` FROM response_policies WHERE id = $1`, id).
		Scan(&p.ID, &p.TenantID, &p.Name, &p.Rules, &p.Enabled, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByTenant returns all policies for the given tenant. Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.Policy, error) {
	return r.list(ctx, `SELECT `+policyColumns+` FROM response_policies WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
}

// GetEnabledPoliciesByTenant returns the tenant's enabled policies.
func (r *PostgresRepository) GetEnabledPoliciesByTenant(ctx context.Context, tenantID string) ([]*domain.Policy, error) {
	return r.list(ctx, `SELECT `+policyColumns+` FROM response_policies WHERE tenant_id = $1 AND enabled ORDER BY created_at`, tenantID)
}

// Create persists the policy to the database. The policy must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Policy) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO response_policies (`+policyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.TenantID, p.Name, p.Rules, p.Enabled, p.CreatedAt)
	return err
}

// Update updates the rules, name and enabled flag of an existing policy.
func (r *PostgresRepository) Update(ctx context.Context, p *domain.Policy) error {
	_, err := r.pool.Exec(ctx, `UPDATE response_policies SET name = $2, rules = $3, enabled = $4 WHERE id = $1`,
		p.ID, p.Name, p.Rules, p.Enabled)
	return err
}

func (r *PostgresRepository) list(ctx context.Context, query, tenantID string) ([]*domain.Policy, error) {
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.Policy, 0)
	for rows.Next() {
		var p domain.Policy
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Rules, &p.Enabled, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
