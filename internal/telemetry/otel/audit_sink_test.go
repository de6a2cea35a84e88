package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	monitordomain "sessionguard/internal/monitor/domain"
)

// recordCapture stores the last Record passed to Emit for assertion.
type recordCapture struct {
	rec   otellog.Record
	calls int
}

func (r *recordCapture) Emit(ctx context.Context, rec otellog.Record) {
	r.rec = rec
	r.calls++
}

func attributes(rec otellog.Record) map[string]string {
	attrs := make(map[string]string)
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	return attrs
}

func TestNewAuditSink_NilProvider_ReturnsNoop(t *testing.T) {
	sink := NewAuditSink(nil)
	if sink == nil {
		t.Fatal("NewAuditSink(nil) returned nil")
	}
	sink.Append(context.Background(), nil)
	sink.Append(context.Background(), &monitordomain.SecurityEvent{Type: monitordomain.EventLoginFailed})
}

func TestNewAuditSink_WithProvider(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	NewAuditSink(provider).Append(context.Background(), &monitordomain.SecurityEvent{Type: monitordomain.EventLoginFailed})
}

func TestAppend_AttributeAndBodyMapping(t *testing.T) {
	cap := &recordCapture{}
	sink := NewAuditSinkWithLogger(cap)
	at := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	sink.Append(context.Background(), &monitordomain.SecurityEvent{
		ID:        "evt-1",
		Type:      monitordomain.EventBruteForceDetected,
		TenantID:  "tenant-1",
		IPAddress: "203.0.113.9",
		Details:   map[string]any{"count": 12},
		Severity:  monitordomain.SeverityHigh,
		CreatedAt: at,
	})
	rec := cap.rec

	if !rec.Timestamp().Equal(at) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp(), at)
	}
	if rec.Severity() != otellog.SeverityError {
		t.Errorf("severity = %v, want error", rec.Severity())
	}
	if got := string(rec.Body().AsBytes()); got != `{"count":12}` {
		t.Errorf("body = %q", got)
	}
	attrs := attributes(rec)
	want := map[string]string{
		"event_id": "evt-1", "event_type": "brute_force_detected",
		"tenant_id": "tenant-1", "ip_address": "203.0.113.9",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attr %q = %q, want %q", k, attrs[k], v)
		}
	}
	if _, ok := attrs["subject_id"]; ok {
		t.Error("empty subject_id should not be set")
	}
}

func TestAppend_UnencodableDetails_NoBody(t *testing.T) {
	cap := &recordCapture{}
	NewAuditSinkWithLogger(cap).Append(context.Background(), &monitordomain.SecurityEvent{
		Type:    monitordomain.EventSuspiciousActivity,
		Details: map[string]any{"ch": make(chan int)},
	})
	if cap.calls != 1 {
		t.Fatalf("Emit calls = %d, want 1", cap.calls)
	}
	if !cap.rec.Body().Empty() {
		t.Error("body should be empty when details cannot be encoded")
	}
	if cap.rec.Timestamp().IsZero() {
		t.Error("zero CreatedAt should be replaced with the current time")
	}
}
