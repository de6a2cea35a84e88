package otel

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"sessionguard/internal/audit"
	monitordomain "sessionguard/internal/monitor/domain"
)

const instrumentationName = "sessionguard/audit"

// Emitter is the subset of otellog.Logger used by the sink.
type Emitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewAuditSink returns an audit.Sink that emits security events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op sink.
func NewAuditSink(provider *sdklog.LoggerProvider) audit.Sink {
	if provider == nil {
		return noopSink{}
	}
	return &otelSink{logger: provider.Logger(instrumentationName)}
}

// NewAuditSinkWithLogger returns an audit.Sink that emits to the given logger.
func NewAuditSinkWithLogger(logger Emitter) audit.Sink {
	if logger == nil {
		return noopSink{}
	}
	return &otelSink{logger: logger}
}

type noopSink struct{}

func (noopSink) Append(context.Context, *monitordomain.SecurityEvent) {}

type otelSink struct {
	logger Emitter
}

// Append converts the event to an OTel log record and emits it. Unencodable details are left out of the body.
func (s *otelSink) Append(ctx context.Context, e *monitordomain.SecurityEvent) {
	if e == nil {
		return
	}
	rec := otellog.Record{}
	rec.SetTimestamp(e.CreatedAt)
	if e.CreatedAt.IsZero() {
		rec.SetTimestamp(time.Now().UTC())
	}
	rec.SetSeverity(severityOf(e.Severity))
	rec.SetSeverityText(string(e.Severity))
	rec.SetEventName(string(e.Type))
	if len(e.Details) > 0 {
		if b, err := json.Marshal(e.Details); err == nil {
			rec.SetBody(otellog.BytesValue(b))
		} else {
			slog.WarnContext(ctx, "telemetry: dropping unencodable event details", "event_id", e.ID, "error", err)
		}
	}
	attrs := []struct{ key, val string }{
		{"event_id", e.ID},
		{"event_type", string(e.Type)},
		{"tenant_id", e.TenantID},
		{"subject_id", e.SubjectID},
		{"ip_address", e.IPAddress},
		{"user_agent", e.UserAgent},
	}
	for _, a := range attrs {
		if a.val != "" {
			rec.AddAttributes(otellog.String(a.key, a.val))
		}
	}
	s.logger.Emit(ctx, rec)
}

func severityOf(s monitordomain.Severity) otellog.Severity {
	switch s {
	case monitordomain.SeverityLow:
		return otellog.SeverityInfo
	case monitordomain.SeverityMedium:
		return otellog.SeverityWarn
	case monitordomain.SeverityHigh:
		return otellog.SeverityError
	case monitordomain.SeverityCritical:
		return otellog.SeverityFatal
	default:
		return otellog.SeverityUndefined
	}
}
