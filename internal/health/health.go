// Package health reports readiness of the backing store, the response policy
// engine and the optional Redis failure counter.
package health

import (
	"context"
	"time"
)

// Pinger checks connectivity to a backend.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

// PingContext calls f.
func (f PingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

// PolicyChecker checks that the response policy engine can evaluate.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Status is the outcome of a readiness check. Failures maps a component name
// to its error text; it is empty when Serving.
type Status struct {
	Serving  bool
	Failures map[string]string
}

// Checker runs the configured checks. Nil components are skipped.
type Checker struct {
	db      Pinger
	policy  PolicyChecker
	redis   Pinger
	timeout time.Duration
}

// NewChecker returns a Checker. timeout bounds each component check; zero means 2s.
func NewChecker(db Pinger, policy PolicyChecker, redis Pinger, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{db: db, policy: policy, redis: redis, timeout: timeout}
}

// Check runs every component check. Redis is optional: its failure is reported
// but does not make the service not serving, since the monitor falls back to
// the event store.
func (c *Checker) Check(ctx context.Context) Status {
	st := Status{Serving: true, Failures: map[string]string{}}
	if c.db != nil {
		if err := c.run(ctx, c.db.PingContext); err != nil {
			st.Serving = false
			st.Failures["database"] = err.Error()
		}
	}
	if c.policy != nil {
		if err := c.run(ctx, c.policy.HealthCheck); err != nil {
			st.Serving = false
			st.Failures["policy"] = err.Error()
		}
	}
	if c.redis != nil {
		if err := c.run(ctx, c.redis.PingContext); err != nil {
			st.Failures["redis"] = err.Error()
		}
	}
	return st
}

func (c *Checker) run(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return fn(ctx)
}
