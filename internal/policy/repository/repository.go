package repository

import (
	"context"

	"sessionguard/internal/policy/domain"
)

// Repository defines persistence for response policies.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Policy, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*domain.Policy, error)
	// GetEnabledPoliciesByTenant returns only enabled policies, oldest first.
	GetEnabledPoliciesByTenant(ctx context.Context, tenantID string) ([]*domain.Policy, error)
	Create(ctx context.Context, p *domain.Policy) error
	Update(ctx context.Context, p *domain.Policy) error
}
