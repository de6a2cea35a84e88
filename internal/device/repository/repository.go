package repository

import (
	"context"
	"time"

	"sessionguard/internal/device/domain"
)

// Repository defines persistence for device records.
type Repository interface {
	// GetBySubjectAndFingerprint returns the device, or nil if the subject has never used it.
	GetBySubjectAndFingerprint(ctx context.Context, subjectID, fingerprint string) (*domain.Device, error)
	ListBySubject(ctx context.Context, subjectID string) ([]*domain.Device, error)
	Create(ctx context.Context, d *domain.Device) error
	Touch(ctx context.Context, id string, at time.Time) error
	SetTrusted(ctx context.Context, id string, trusted bool) error
}
