// Package telemetry holds the metric instruments shared by the session and monitor services.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "sessionguard"

// Instruments are the counters recorded by the services. A nil *Instruments records nothing.
type Instruments struct {
	threatsDetected     metric.Int64Counter
	sessionsCreated     metric.Int64Counter
	sessionsRevoked     metric.Int64Counter
	validationsRejected metric.Int64Counter
	analysisFailures    metric.Int64Counter
}

// NewInstruments creates the counters on mp. A nil mp uses a no-op provider.
func NewInstruments(mp metric.MeterProvider) (*Instruments, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	m := mp.Meter(meterName)
	var (
		i   Instruments
		err error
	)
	if i.threatsDetected, err = m.Int64Counter("sessionguard.threats.detected",
		metric.WithDescription("Security threats handled, by type and severity.")); err != nil {
		return nil, err
	}
	if i.sessionsCreated, err = m.Int64Counter("sessionguard.sessions.created"); err != nil {
		return nil, err
	}
	if i.sessionsRevoked, err = m.Int64Counter("sessionguard.sessions.revoked",
		metric.WithDescription("Sessions revoked, by reason.")); err != nil {
		return nil, err
	}
	if i.validationsRejected, err = m.Int64Counter("sessionguard.validations.rejected",
		metric.WithDescription("Session validations that returned invalid, by cause.")); err != nil {
		return nil, err
	}
	if i.analysisFailures, err = m.Int64Counter("sessionguard.analysis.failures"); err != nil {
		return nil, err
	}
	return &i, nil
}

// ThreatDetected counts one handled threat.
func (i *Instruments) ThreatDetected(ctx context.Context, threatType, severity string) {
	if i == nil {
		return
	}
	i.threatsDetected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("threat_type", threatType),
		attribute.String("severity", severity),
	))
}

// SessionCreated counts one admitted session.
func (i *Instruments) SessionCreated(ctx context.Context) {
	if i == nil {
		return
	}
	i.sessionsCreated.Add(ctx, 1)
}

// SessionRevoked counts one revocation request.
func (i *Instruments) SessionRevoked(ctx context.Context, reason string) {
	if i == nil {
		return
	}
	i.sessionsRevoked.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// ValidationRejected counts one invalid validation result.
func (i *Instruments) ValidationRejected(ctx context.Context, cause string) {
	if i == nil {
		return
	}
	i.validationsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("cause", cause)))
}

// AnalysisFailed counts one failed or panicking background analysis.
func (i *Instruments) AnalysisFailed(ctx context.Context) {
	if i == nil {
		return
	}
	i.analysisFailures.Add(ctx, 1)
}
