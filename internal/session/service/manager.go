// Package service implements the session lifecycle: admission under the
// per-subject device ceiling, validation with a sliding idle window, refresh,
// and revocation.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	devicedomain "sessionguard/internal/device/domain"
	monitordomain "sessionguard/internal/monitor/domain"
	"sessionguard/internal/session/domain"
	"sessionguard/internal/session/repository"
	"sessionguard/internal/telemetry"
)

// Sentinel errors for the session manager.
var (
	ErrInvalidInput     = errors.New("session: invalid input")
	ErrStoreUnavailable = errors.New("session: store unavailable")
)

// DeviceRegistrar records the device behind a new session.
type DeviceRegistrar interface {
	RegisterDevice(ctx context.Context, tenantID, subjectID string, info devicedomain.DeviceInfo) (*devicedomain.Device, error)
}

// SecurityMonitor is the side channel for security events and activity analysis.
type SecurityMonitor interface {
	LogSecurityEvent(ctx context.Context, e *monitordomain.SecurityEvent)
	AnalyzeSessionActivity(ctx context.Context, s *domain.Session, ac monitordomain.ActivityContext) ([]monitordomain.ThreatAssessment, error)
	HandleSecurityThreat(ctx context.Context, t *monitordomain.ThreatAssessment)
}

// Config holds session lifetimes and limits.
type Config struct {
	DeviceCeiling    int
	AbsoluteLifetime time.Duration
	RememberLifetime time.Duration
	MaxLifetime      time.Duration
	MaxIdleMinutes   int
	ListLimit        int
	StoreTimeout     time.Duration
	AnalysisTimeout  time.Duration
}

// DefaultConfig returns the stock session configuration.
func DefaultConfig() Config {
	return Config{
		DeviceCeiling:    3,
		AbsoluteLifetime: 24 * time.Hour,
		RememberLifetime: 720 * time.Hour,
		MaxLifetime:      168 * time.Hour,
		MaxIdleMinutes:   30,
		ListLimit:        50,
		StoreTimeout:     250 * time.Millisecond,
		AnalysisTimeout:  2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DeviceCeiling <= 0 {
		c.DeviceCeiling = def.DeviceCeiling
	}
	if c.AbsoluteLifetime <= 0 {
		c.AbsoluteLifetime = def.AbsoluteLifetime
	}
	if c.RememberLifetime <= 0 {
		c.RememberLifetime = def.RememberLifetime
	}
	if c.MaxLifetime <= 0 {
		c.MaxLifetime = def.MaxLifetime
	}
	if c.MaxIdleMinutes <= 0 {
		c.MaxIdleMinutes = def.MaxIdleMinutes
	}
	if c.ListLimit <= 0 {
		c.ListLimit = def.ListLimit
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = def.StoreTimeout
	}
	if c.AnalysisTimeout <= 0 {
		c.AnalysisTimeout = def.AnalysisTimeout
	}
	return c
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used on fail-open paths.
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

// WithDevices registers the device of every new session with d.
func WithDevices(d DeviceRegistrar) Option {
	return func(m *Manager) { m.devices = d }
}

// WithMonitor sets the security monitor used for events and activity analysis.
func WithMonitor(sm SecurityMonitor) Option {
	return func(m *Manager) { m.monitor = sm }
}

// WithInstruments sets the metric instruments.
func WithInstruments(i *telemetry.Instruments) Option {
	return func(m *Manager) { m.metrics = i }
}

// WithTracer sets the tracer; the default comes from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) {
		if t != nil {
			m.tracer = t
		}
	}
}

// Manager owns session rows. It keeps no session state in memory; every
// decision is taken against the repository.
type Manager struct {
	sessions repository.Repository
	cfg      Config
	devices  DeviceRegistrar
	monitor  SecurityMonitor
	metrics  *telemetry.Instruments
	tracer   trace.Tracer
	log      *slog.Logger
	now      func() time.Time

	analyses sync.WaitGroup
}

// NewManager returns a Manager over sessions. Zero fields of cfg take their defaults.
func NewManager(sessions repository.Repository, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		sessions: sessions,
		cfg:      cfg.withDefaults(),
		tracer:   otel.Tracer("sessionguard/session"),
		log:      slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Wait blocks until in-flight activity analyses have finished.
func (m *Manager) Wait() {
	m.analyses.Wait()
}

func (m *Manager) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.cfg.StoreTimeout)
}

func (m *Manager) logEvent(ctx context.Context, e *monitordomain.SecurityEvent) {
	if m.monitor == nil {
		return
	}
	m.monitor.LogSecurityEvent(ctx, e)
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
