// Package app wires the session manager, security monitor and device manager
// to their stores, the response policy engine and telemetry.
package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"sessionguard/internal/audit"
	auditrepo "sessionguard/internal/audit/repository"
	"sessionguard/internal/config"
	"sessionguard/internal/db"
	devicerepo "sessionguard/internal/device/repository"
	deviceservice "sessionguard/internal/device/service"
	"sessionguard/internal/health"
	monitorrepo "sessionguard/internal/monitor/repository"
	monitorservice "sessionguard/internal/monitor/service"
	"sessionguard/internal/policy/engine"
	policyrepo "sessionguard/internal/policy/repository"
	sessionrepo "sessionguard/internal/session/repository"
	sessionservice "sessionguard/internal/session/service"
	"sessionguard/internal/telemetry"
	otelsetup "sessionguard/internal/telemetry/otel"
	tenantdomain "sessionguard/internal/tenantsettings/domain"
	tenantrepo "sessionguard/internal/tenantsettings/repository"
)

// App holds the wired services and the resources they share.
type App struct {
	Sessions *sessionservice.Manager
	Monitor  *monitorservice.Monitor
	Devices  *deviceservice.Manager
	Health   *health.Checker

	log       *slog.Logger
	pool      *pgxpool.Pool
	redis     *redis.Client
	providers *otelsetup.Providers
}

// New opens the database pool (and Redis when configured), builds telemetry
// providers and wires the services. Caller must call Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	providers, err := otelsetup.NewProviders(ctx, cfg.OTelEndpoint, cfg.OTelServiceName, cfg.OTelInsecure)
	if err != nil {
		return nil, err
	}
	providers.SetGlobal()
	a := &App{log: log, providers: providers}

	instruments, err := telemetry.NewInstruments(providers.MeterProvider)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	a.pool, err = db.Open(ctx, cfg.DatabaseURL, db.PoolOptions{})
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	sessions := sessionrepo.NewPostgresRepository(a.pool)
	events := monitorrepo.NewPostgresRepository(a.pool)
	devices := devicerepo.NewPostgresRepository(a.pool)
	policies := policyrepo.NewPostgresRepository(a.pool)
	auditLogs := auditrepo.NewPostgresRepository(a.pool)

	evaluator, err := engine.NewOPAEvaluator(ctx, policies, log)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	monitorCfg := MonitorConfig(cfg)
	if tenants, err := tenantrepo.NewPostgresRepository(a.pool).ListAll(ctx); err != nil {
		log.Warn("tenant settings: load failed, using service-wide thresholds", "error", err)
	} else {
		var invalid []string
		monitorCfg.PerTenant, invalid = TenantThresholds(tenants)
		if len(invalid) > 0 {
			log.Warn("tenant settings: ignoring invalid detection overrides", "tenants", invalid)
		}
	}

	monitorOpts := []monitorservice.Option{
		monitorservice.WithLogger(log),
		monitorservice.WithAuditSink(audit.MultiSink{
			audit.NewLogger(auditLogs, log),
			otelsetup.NewAuditSink(providers.LoggerProvider),
		}),
		monitorservice.WithRecommender(evaluator),
		monitorservice.WithInstruments(instruments),
	}
	a.redis = newRedisClient(ctx, cfg.RedisURL, cfg.RedisPassword, log)
	if a.redis != nil {
		monitorOpts = append(monitorOpts, monitorservice.WithFailureCounter(
			monitorrepo.NewRedisFailureCounter(a.redis, FailureRetention(monitorCfg))))
	}
	a.Monitor = monitorservice.NewMonitor(events, sessions, monitorCfg, monitorOpts...)

	a.Devices = deviceservice.NewManager(devices, sessions,
		deviceservice.WithLogger(log),
		deviceservice.WithStoreTimeout(cfg.StoreTimeout()),
	)

	a.Sessions = sessionservice.NewManager(sessions, SessionConfig(cfg),
		sessionservice.WithLogger(log),
		sessionservice.WithDevices(a.Devices),
		sessionservice.WithMonitor(a.Monitor),
		sessionservice.WithInstruments(instruments),
		sessionservice.WithTracer(providers.TracerProvider.Tracer("sessionguard/session")),
	)

	var redisPinger health.Pinger
	if a.redis != nil {
		redisPinger = health.PingerFunc(func(ctx context.Context) error { return a.redis.Ping(ctx).Err() })
	}
	a.Health = health.NewChecker(
		health.PingerFunc(func(ctx context.Context) error { return a.pool.Ping(ctx) }),
		evaluator,
		redisPinger,
		2*time.Second,
	)
	return a, nil
}

// Close waits for background analyses, then releases Redis, the pool and the
// telemetry providers.
func (a *App) Close(ctx context.Context) error {
	if a.Sessions != nil {
		a.Sessions.Wait()
	}
	return a.close(ctx)
}

func (a *App) close(ctx context.Context) error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.providers != nil && a.providers.Shutdown != nil {
		errs = append(errs, a.providers.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// SessionConfig maps configuration onto the session manager's settings.
func SessionConfig(cfg *config.Config) sessionservice.Config {
	return sessionservice.Config{
		DeviceCeiling:    cfg.DeviceCeiling,
		AbsoluteLifetime: cfg.SessionLifetime(),
		RememberLifetime: cfg.SessionRememberLifetime(),
		MaxLifetime:      cfg.SessionMaxLifetime(),
		MaxIdleMinutes:   cfg.MaxIdleMinutes,
		ListLimit:        cfg.ListLimit,
		StoreTimeout:     cfg.StoreTimeout(),
		AnalysisTimeout:  cfg.AnalysisTimeout(),
	}
}

// MonitorConfig maps configuration onto the monitor's detector thresholds.
func MonitorConfig(cfg *config.Config) monitorservice.Config {
	return monitorservice.Config{
		Thresholds: monitorservice.Thresholds{
			BruteForceWindow:    cfg.BruteForceWindow(),
			BruteForceThreshold: cfg.BruteForceThreshold,
			MultiDeviceWindow:   cfg.MultiDeviceWindow(),
			HijackWindow:        cfg.HijackWindow(),
			SimilarityThreshold: cfg.SimilarityThreshold,
		},
		StoreTimeout: cfg.StoreTimeout(),
	}
}

// TenantThresholds maps stored tenant settings to detector overrides. Tenants
// without a detection section are skipped; tenants whose section fails
// validation are skipped and returned in invalid, so they keep the defaults.
func TenantThresholds(settings []*tenantdomain.TenantSettings) (out map[string]monitorservice.Thresholds, invalid []string) {
	out = make(map[string]monitorservice.Thresholds, len(settings))
	for _, s := range settings {
		if s == nil || s.Detection == nil {
			continue
		}
		d := s.Detection
		if err := d.Validate(); err != nil {
			invalid = append(invalid, s.TenantID)
			continue
		}
		out[s.TenantID] = monitorservice.Thresholds{
			BruteForceWindow:    tenantdomain.Window(d.BruteForceWindow),
			BruteForceThreshold: d.BruteForceThreshold,
			MultiDeviceWindow:   tenantdomain.Window(d.MultiDeviceWindow),
			HijackWindow:        tenantdomain.Window(d.HijackWindow),
			SimilarityThreshold: d.Similarity(),
		}
	}
	return out, invalid
}

// FailureRetention is how long the failure counter must keep entries: the
// longest brute-force window among the defaults and every tenant override.
func FailureRetention(cfg monitorservice.Config) time.Duration {
	longest := cfg.BruteForceWindow
	if longest <= 0 {
		longest = monitorservice.DefaultConfig().BruteForceWindow
	}
	for _, t := range cfg.PerTenant {
		longest = max(longest, t.BruteForceWindow)
	}
	return longest
}

// NewLogger returns a JSON logger in production and a text logger otherwise.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newRedisClient connects to rawURL, which may be a redis:// URL or a bare
// host:port. It returns nil when rawURL is empty or Redis does not answer; the
// monitor then counts failures from the event store.
func newRedisClient(ctx context.Context, rawURL, password string, log *slog.Logger) *redis.Client {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil
	}
	opts := &redis.Options{Addr: rawURL}
	if strings.Contains(rawURL, "://") {
		parsed, err := redis.ParseURL(rawURL)
		if err != nil {
			log.Warn("redis: invalid REDIS_URL, falling back to event store", "error", err)
			return nil
		}
		opts = parsed
	}
	if password != "" {
		opts.Password = password
	}
	opts.DialTimeout = time.Second
	client := redis.NewClient(opts)

	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		log.Warn("redis: could not connect, falling back to event store", "addr", opts.Addr, "error", err)
		_ = client.Close()
		return nil
	}
	log.Info("redis: connected", "addr", opts.Addr)
	return client
}
