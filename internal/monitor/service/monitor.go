// Package service implements the security monitor: heuristic detectors over
// login attempts and session activity, best-effort security event logging,
// and tenant statistics.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"sessionguard/internal/audit"
	"sessionguard/internal/monitor/domain"
	"sessionguard/internal/monitor/repository"
	sessiondomain "sessionguard/internal/session/domain"
	"sessionguard/internal/telemetry"
)

// ErrInvalidInput is returned by AnalyzeSessionActivity for a nil session.
var ErrInvalidInput = errors.New("monitor: invalid input")

// SessionReader is the session repository needed by the detectors.
type SessionReader interface {
	ListBySubjectSince(ctx context.Context, tenantID, subjectID string, since time.Time) ([]*sessiondomain.Session, error)
}

// ActionRecommender chooses response actions for a threat.
type ActionRecommender interface {
	RecommendActions(ctx context.Context, threat domain.ThreatAssessment) ([]string, error)
}

// Thresholds are the detector tuning knobs.
type Thresholds struct {
	BruteForceWindow    time.Duration
	BruteForceThreshold int
	MultiDeviceWindow   time.Duration
	HijackWindow        time.Duration
	SimilarityThreshold float64
}

// Config holds the default thresholds, per-tenant overrides and the store timeout.
type Config struct {
	Thresholds
	// PerTenant replaces the defaults for the named tenants. Zero fields fall back to the defaults.
	PerTenant    map[string]Thresholds
	StoreTimeout time.Duration
}

// DefaultConfig returns the stock detector configuration.
func DefaultConfig() Config {
	return Config{
		Thresholds: Thresholds{
			BruteForceWindow:    15 * time.Minute,
			BruteForceThreshold: 5,
			MultiDeviceWindow:   5 * time.Minute,
			HijackWindow:        30 * time.Minute,
			SimilarityThreshold: 0.5,
		},
		StoreTimeout: 250 * time.Millisecond,
	}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger for swallowed errors and detector warnings.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithFailureCounter counts failed logins outside the event store. When set,
// the brute-force detector reads its count from c.
func WithFailureCounter(c repository.FailureCounter) Option {
	return func(m *Monitor) { m.failures = c }
}

// WithAuditSink sets the sink every logged event is appended to.
func WithAuditSink(s audit.Sink) Option {
	return func(m *Monitor) { m.sink = s }
}

// WithRecommender sets the response policy used for RecommendedActions.
func WithRecommender(r ActionRecommender) Option {
	return func(m *Monitor) { m.recommender = r }
}

// WithInstruments sets the metric instruments.
func WithInstruments(i *telemetry.Instruments) Option {
	return func(m *Monitor) { m.metrics = i }
}

// Monitor runs threat detectors and records security events.
// It holds no mutable state of its own; all history lives in the repositories.
type Monitor struct {
	events      repository.Repository
	sessions    SessionReader
	cfg         Config
	failures    repository.FailureCounter
	sink        audit.Sink
	recommender ActionRecommender
	metrics     *telemetry.Instruments
	log         *slog.Logger
	now         func() time.Time
}

// NewMonitor returns a Monitor over the given event and session stores.
func NewMonitor(events repository.Repository, sessions SessionReader, cfg Config, opts ...Option) *Monitor {
	def := DefaultConfig()
	cfg.Thresholds = cfg.Thresholds.withDefaults(def.Thresholds)
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	m := &Monitor{
		events:   events,
		sessions: sessions,
		cfg:      cfg,
		log:      slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (t Thresholds) withDefaults(def Thresholds) Thresholds {
	if t.BruteForceWindow <= 0 {
		t.BruteForceWindow = def.BruteForceWindow
	}
	if t.BruteForceThreshold <= 0 {
		t.BruteForceThreshold = def.BruteForceThreshold
	}
	if t.MultiDeviceWindow <= 0 {
		t.MultiDeviceWindow = def.MultiDeviceWindow
	}
	if t.HijackWindow <= 0 {
		t.HijackWindow = def.HijackWindow
	}
	if t.SimilarityThreshold <= 0 {
		t.SimilarityThreshold = def.SimilarityThreshold
	}
	return t
}

func (m *Monitor) thresholdsFor(tenantID string) Thresholds {
	if t, ok := m.cfg.PerTenant[tenantID]; ok {
		return t.withDefaults(m.cfg.Thresholds)
	}
	return m.cfg.Thresholds
}

func (m *Monitor) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.cfg.StoreTimeout)
}
