package repository

import (
	"context"

	"sessionguard/internal/tenantsettings/domain"
)

// Repository persists per-tenant settings.
type Repository interface {
	// GetByTenant returns the tenant's settings, or nil if none were saved.
	GetByTenant(ctx context.Context, tenantID string) (*domain.TenantSettings, error)
	// ListAll returns the settings of every tenant that has any.
	ListAll(ctx context.Context) ([]*domain.TenantSettings, error)
	// Upsert saves or replaces the tenant's settings.
	Upsert(ctx context.Context, s *domain.TenantSettings) error
}
