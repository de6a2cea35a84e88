// Package service implements the multi-device manager: the per-subject device
// registry, explicit trust decisions and the device-ceiling eviction choice.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"sessionguard/internal/device/domain"
	sessiondomain "sessionguard/internal/session/domain"
)

// Sentinel errors for the device manager.
var (
	ErrInvalidInput     = errors.New("device: invalid input")
	ErrDeviceNotFound   = errors.New("device: not found")
	ErrStoreUnavailable = errors.New("device: store unavailable")
)

// DeviceRepo is the device repository needed by the manager.
type DeviceRepo interface {
	GetBySubjectAndFingerprint(ctx context.Context, subjectID, fingerprint string) (*domain.Device, error)
	ListBySubject(ctx context.Context, subjectID string) ([]*domain.Device, error)
	Create(ctx context.Context, d *domain.Device) error
	Touch(ctx context.Context, id string, at time.Time) error
	SetTrusted(ctx context.Context, id string, trusted bool) error
}

// ActiveSessionLister loads the subject's active sessions for ceiling enforcement.
type ActiveSessionLister interface {
	ListActiveBySubject(ctx context.Context, tenantID, subjectID string, limit int) ([]*sessiondomain.Session, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for fail-closed warnings.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithStoreTimeout bounds every repository call.
func WithStoreTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.storeTimeout = d
		}
	}
}

// Manager tracks devices per subject and decides which session yields when a
// subject reaches its device ceiling.
type Manager struct {
	devices      DeviceRepo
	sessions     ActiveSessionLister
	log          *slog.Logger
	now          func() time.Time
	storeTimeout time.Duration
}

// NewManager returns a Manager. sessions may be nil when EnforceDeviceCeiling is not used.
func NewManager(devices DeviceRepo, sessions ActiveSessionLister, opts ...Option) *Manager {
	m := &Manager{
		devices:      devices,
		sessions:     sessions,
		log:          slog.Default(),
		now:          func() time.Time { return time.Now().UTC() },
		storeTimeout: 250 * time.Millisecond,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// IsDeviceTrusted reports whether the subject has explicitly trusted the device
// with this fingerprint. Unknown devices and store errors yield false.
func (m *Manager) IsDeviceTrusted(ctx context.Context, subjectID, fingerprint string) bool {
	if subjectID == "" || fingerprint == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()
	d, err := m.devices.GetBySubjectAndFingerprint(ctx, subjectID, fingerprint)
	if err != nil {
		m.log.WarnContext(ctx, "device trust lookup failed", "subject_id", subjectID, "error", err)
		return false
	}
	return d != nil && d.IsTrusted
}

// SelectEvictionTarget returns the session to revoke so that a new one fits
// under ceiling, or false when active is already below it. The target is the
// least recently active session; ties go to the earliest created, then the
// smallest id.
func SelectEvictionTarget(active []*sessiondomain.Session, ceiling int) (string, bool) {
	if ceiling < 1 {
		ceiling = 1
	}
	candidates := make([]*sessiondomain.Session, 0, len(active))
	for _, s := range active {
		if s != nil {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) < ceiling {
		return "", false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.LastActivityAt.Equal(b.LastActivityAt) {
			return a.LastActivityAt.Before(b.LastActivityAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return candidates[0].ID, true
}

// SplitLapsed partitions active rows into sessions still valid at now and
// sessions whose idle or absolute deadline has passed. Only live sessions hold
// a slot under the device ceiling.
func SplitLapsed(active []*sessiondomain.Session, now time.Time) (live, lapsed []*sessiondomain.Session) {
	live = make([]*sessiondomain.Session, 0, len(active))
	for _, s := range active {
		switch {
		case s == nil:
		case s.IsValidAt(now):
			live = append(live, s)
		default:
			lapsed = append(lapsed, s)
		}
	}
	return live, lapsed
}

// EnforceDeviceCeiling loads the subject's active sessions and returns the id
// that must be revoked before another session may be admitted.
func (m *Manager) EnforceDeviceCeiling(ctx context.Context, tenantID, subjectID string, ceiling int) (string, bool, error) {
	if tenantID == "" || subjectID == "" {
		return "", false, ErrInvalidInput
	}
	if m.sessions == nil {
		return "", false, fmt.Errorf("%w: no session store configured", ErrStoreUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()
	active, err := m.sessions.ListActiveBySubject(ctx, tenantID, subjectID, 0)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	live, _ := SplitLapsed(active, m.now())
	id, ok := SelectEvictionTarget(live, ceiling)
	return id, ok, nil
}

// RegisterDevice records the device on first sight for the subject and
// refreshes its last-used time otherwise. The returned record reflects the
// state after the call.
func (m *Manager) RegisterDevice(ctx context.Context, tenantID, subjectID string, info domain.DeviceInfo) (*domain.Device, error) {
	if subjectID == "" {
		return nil, ErrInvalidInput
	}
	fp := info.Fingerprint()
	now := m.now()
	ctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()

	existing, err := m.devices.GetBySubjectAndFingerprint(ctx, subjectID, fp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if existing != nil {
		if err := m.devices.Touch(ctx, existing.ID, now); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if now.After(existing.LastUsedAt) {
			existing.LastUsedAt = now
		}
		return existing, nil
	}
	d := &domain.Device{
		ID:            uuid.New().String(),
		SubjectID:     subjectID,
		TenantID:      tenantID,
		Fingerprint:   fp,
		BrowserFamily: strings.ToLower(info.BrowserFamily),
		OSFamily:      strings.ToLower(info.OSFamily),
		FirstSeenAt:   now,
		LastUsedAt:    now,
	}
	if err := m.devices.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return d, nil
}

// TrustDevice marks the subject's device as trusted.
func (m *Manager) TrustDevice(ctx context.Context, subjectID, fingerprint string) error {
	return m.setTrusted(ctx, subjectID, fingerprint, true)
}

// UntrustDevice clears the trusted flag on the subject's device.
func (m *Manager) UntrustDevice(ctx context.Context, subjectID, fingerprint string) error {
	return m.setTrusted(ctx, subjectID, fingerprint, false)
}

func (m *Manager) setTrusted(ctx context.Context, subjectID, fingerprint string, trusted bool) error {
	if subjectID == "" || fingerprint == "" {
		return ErrInvalidInput
	}
	ctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()
	d, err := m.devices.GetBySubjectAndFingerprint(ctx, subjectID, fingerprint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if d == nil {
		return ErrDeviceNotFound
	}
	if err := m.devices.SetTrusted(ctx, d.ID, trusted); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ListDevices returns the subject's devices, most recently used first.
func (m *Manager) ListDevices(ctx context.Context, subjectID string) ([]*domain.Device, error) {
	if subjectID == "" {
		return nil, ErrInvalidInput
	}
	ctx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()
	list, err := m.devices.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return list, nil
}
