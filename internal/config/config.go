// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the Postgres DSN. Required.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL enables the Redis login-failure counter when set (e.g. redis://localhost:6379/0).
	RedisURL string `mapstructure:"REDIS_URL"`
	// RedisPassword overrides the password in RedisURL, if any.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// OTelEndpoint is the OTLP gRPC collector address; empty disables export.
	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTelInsecure disables TLS to the collector.
	OTelInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// OTelServiceName is the service.name resource attribute.
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// DeviceCeiling is the number of concurrently active sessions per subject.
	DeviceCeiling int `mapstructure:"SESSION_DEVICE_CEILING"`
	// AbsoluteLifetime is the session lifetime (e.g. "24h").
	AbsoluteLifetime string `mapstructure:"SESSION_ABSOLUTE_LIFETIME"`
	// RememberLifetime is the lifetime of sessions that remember their device (e.g. "720h").
	RememberLifetime string `mapstructure:"SESSION_REMEMBER_LIFETIME"`
	// MaxLifetime caps refreshes, measured from session creation (e.g. "168h").
	MaxLifetime string `mapstructure:"SESSION_MAX_LIFETIME"`
	// MaxIdleMinutes is the idle timeout stamped on new sessions.
	MaxIdleMinutes int `mapstructure:"SESSION_MAX_IDLE_MINUTES"`
	// ListLimit bounds GetUserSessions.
	ListLimit int `mapstructure:"SESSION_LIST_LIMIT"`

	// StoreTimeout bounds every store call on the request path (e.g. "250ms").
	StoreTimeoutRaw string `mapstructure:"STORE_TIMEOUT"`
	// AnalysisTimeout bounds background activity analysis (e.g. "2s").
	AnalysisTimeoutRaw string `mapstructure:"ANALYSIS_TIMEOUT"`

	BruteForceWindowRaw  string  `mapstructure:"BRUTE_FORCE_WINDOW"`
	BruteForceThreshold  int     `mapstructure:"BRUTE_FORCE_THRESHOLD"`
	HijackWindowRaw      string  `mapstructure:"HIJACK_WINDOW"`
	SimilarityThreshold  float64 `mapstructure:"SIMILARITY_THRESHOLD"`
	MultiDeviceWindowRaw string  `mapstructure:"MULTI_DEVICE_WINDOW"`

	// SweepIntervalRaw is how often cmd/sweeper deactivates expired sessions (e.g. "5m").
	SweepIntervalRaw string `mapstructure:"SWEEP_INTERVAL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "sessionguard")
	v.SetDefault("SESSION_DEVICE_CEILING", 3)
	v.SetDefault("SESSION_ABSOLUTE_LIFETIME", "24h")
	v.SetDefault("SESSION_REMEMBER_LIFETIME", "720h")
	v.SetDefault("SESSION_MAX_LIFETIME", "168h")
	v.SetDefault("SESSION_MAX_IDLE_MINUTES", 30)
	v.SetDefault("SESSION_LIST_LIMIT", 50)
	v.SetDefault("STORE_TIMEOUT", "250ms")
	v.SetDefault("ANALYSIS_TIMEOUT", "2s")
	v.SetDefault("BRUTE_FORCE_WINDOW", "15m")
	v.SetDefault("BRUTE_FORCE_THRESHOLD", 5)
	v.SetDefault("HIJACK_WINDOW", "30m")
	v.SetDefault("SIMILARITY_THRESHOLD", 0.5)
	v.SetDefault("MULTI_DEVICE_WINDOW", "5m")
	v.SetDefault("SWEEP_INTERVAL", "5m")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("config: DATABASE_URL must be set")
	}
	if cfg.DeviceCeiling < 1 {
		return nil, errors.New("config: SESSION_DEVICE_CEILING must be at least 1")
	}
	if cfg.MaxIdleMinutes < 1 {
		return nil, errors.New("config: SESSION_MAX_IDLE_MINUTES must be at least 1")
	}
	if cfg.BruteForceThreshold < 1 {
		return nil, errors.New("config: BRUTE_FORCE_THRESHOLD must be at least 1")
	}
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		return nil, errors.New("config: SIMILARITY_THRESHOLD must be in (0, 1]")
	}
	if cfg.ListLimit < 1 {
		cfg.ListLimit = 50
	}

	return &cfg, nil
}

// SessionLifetime returns AbsoluteLifetime, or 24h if unset or invalid.
func (c *Config) SessionLifetime() time.Duration {
	return parseDuration(c.AbsoluteLifetime, 24*time.Hour)
}

// SessionRememberLifetime returns RememberLifetime, or 720h if unset or invalid.
func (c *Config) SessionRememberLifetime() time.Duration {
	return parseDuration(c.RememberLifetime, 720*time.Hour)
}

// SessionMaxLifetime returns MaxLifetime, or 168h if unset or invalid.
func (c *Config) SessionMaxLifetime() time.Duration {
	return parseDuration(c.MaxLifetime, 168*time.Hour)
}

// StoreTimeout returns StoreTimeoutRaw, or 250ms if unset or invalid.
func (c *Config) StoreTimeout() time.Duration {
	return parseDuration(c.StoreTimeoutRaw, 250*time.Millisecond)
}

// AnalysisTimeout returns AnalysisTimeoutRaw, or 2s if unset or invalid.
func (c *Config) AnalysisTimeout() time.Duration {
	return parseDuration(c.AnalysisTimeoutRaw, 2*time.Second)
}

// BruteForceWindow returns BruteForceWindowRaw, or 15m if unset or invalid.
func (c *Config) BruteForceWindow() time.Duration {
	return parseDuration(c.BruteForceWindowRaw, 15*time.Minute)
}

// HijackWindow returns HijackWindowRaw, or 30m if unset or invalid.
func (c *Config) HijackWindow() time.Duration {
	return parseDuration(c.HijackWindowRaw, 30*time.Minute)
}

// MultiDeviceWindow returns MultiDeviceWindowRaw, or 5m if unset or invalid.
func (c *Config) MultiDeviceWindow() time.Duration {
	return parseDuration(c.MultiDeviceWindowRaw, 5*time.Minute)
}

// SweepInterval returns SweepIntervalRaw, or 5m if unset or invalid.
func (c *Config) SweepInterval() time.Duration {
	return parseDuration(c.SweepIntervalRaw, 5*time.Minute)
}

// SlogLevel maps LogLevel to a slog.Level. Unknown values are info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
