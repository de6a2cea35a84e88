package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"sessionguard/internal/audit/domain"
	monitordomain "sessionguard/internal/monitor/domain"
)

// mockAuditRepo implements audit repository interface for tests.
type mockAuditRepo struct {
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	return nil, nil
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) ListByTenant(ctx context.Context, tenantID string, limit, offset int32) ([]*domain.AuditLog, error) {
	return nil, nil
}

type recordingSink struct {
	events []*monitordomain.SecurityEvent
}

func (s *recordingSink) Append(ctx context.Context, e *monitordomain.SecurityEvent) {
	s.events = append(s.events, e)
}

func TestLogger_Append_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, nil)
	at := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	logger.Append(context.Background(), &monitordomain.SecurityEvent{
		ID:        "evt-1",
		Type:      monitordomain.EventSessionRevoked,
		SubjectID: "user-1",
		TenantID:  "tenant-1",
		IPAddress: "192.168.1.1",
		Details:   map[string]any{"reason": "logout"},
		Severity:  monitordomain.SeverityLow,
		CreatedAt: at,
	})

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.TenantID != "tenant-1" {
		t.Errorf("tenant_id = %q, want %q", entry.TenantID, "tenant-1")
	}
	if entry.SubjectID != "user-1" {
		t.Errorf("subject_id = %q, want %q", entry.SubjectID, "user-1")
	}
	if entry.Action != "revoked" || entry.Resource != "session" {
		t.Errorf("action/resource = %q/%q, want revoked/session", entry.Action, entry.Resource)
	}
	if entry.IP != "192.168.1.1" {
		t.Errorf("ip = %q, want %q", entry.IP, "192.168.1.1")
	}
	if !entry.CreatedAt.Equal(at) {
		t.Errorf("created_at = %v, want %v", entry.CreatedAt, at)
	}
	if entry.ID == "" {
		t.Error("entry ID should be set")
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(entry.Metadata), &meta); err != nil {
		t.Fatalf("metadata is not JSON: %v", err)
	}
	if meta["event_id"] != "evt-1" || meta["severity"] != "low" {
		t.Errorf("metadata = %v", meta)
	}
}

func TestLogger_Append_Defaults(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, nil)

	logger.Append(context.Background(), &monitordomain.SecurityEvent{Type: monitordomain.EventLoginFailed})

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	e := repo.entries[0]
	if e.TenantID != SentinelTenantID {
		t.Errorf("tenant_id = %q, want %q", e.TenantID, SentinelTenantID)
	}
	if e.IP != "unknown" {
		t.Errorf("ip = %q, want unknown", e.IP)
	}
	if e.CreatedAt.IsZero() {
		t.Error("entry CreatedAt should be set")
	}
}

func TestLogger_Append_UnencodableDetails(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, nil)

	logger.Append(context.Background(), &monitordomain.SecurityEvent{
		ID:      "evt-2",
		Type:    monitordomain.EventSuspiciousActivity,
		Details: map[string]any{"callback": func() {}},
	})

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(repo.entries[0].Metadata), &meta); err != nil {
		t.Fatalf("metadata is not JSON: %v", err)
	}
	if _, ok := meta["details"]; ok {
		t.Error("unencodable details should be dropped")
	}
}

func TestLogger_Append_RepositoryError(t *testing.T) {
	repo := &mockAuditRepo{createErr: errors.New("database error")}
	logger := NewLogger(repo, nil)

	// Should not panic or return error - best-effort logging
	logger.Append(context.Background(), &monitordomain.SecurityEvent{Type: monitordomain.EventLoginFailed})
}

func TestLogger_Append_NilRepoOrEvent(t *testing.T) {
	NewLogger(nil, nil).Append(context.Background(), &monitordomain.SecurityEvent{Type: monitordomain.EventLoginFailed})
	NewLogger(&mockAuditRepo{}, nil).Append(context.Background(), nil)
}

func TestMultiSink_Append(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	sink := MultiSink{a, nil, b}
	sink.Append(context.Background(), &monitordomain.SecurityEvent{Type: monitordomain.EventLoginSuccess})
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("fan-out = %d/%d, want 1/1", len(a.events), len(b.events))
	}
}

func TestParseEventType(t *testing.T) {
	tests := []struct {
		in       monitordomain.EventType
		action   string
		resource string
	}{
		{monitordomain.EventLoginFailed, "failed", "login"},
		{monitordomain.EventLoginSuccess, "success", "login"},
		{monitordomain.EventSessionCreated, "created", "session"},
		{monitordomain.EventBruteForceDetected, "detected", "brute_force"},
		{monitordomain.EventSessionHijackDetected, "detected", "session_hijack"},
		{"weird", "weird", "unknown"},
		{"", "unknown", "unknown"},
	}
	for _, tt := range tests {
		got := ParseEventType(tt.in)
		if got.Action != tt.action || got.Resource != tt.resource {
			t.Errorf("ParseEventType(%q) = %+v, want %s/%s", tt.in, got, tt.action, tt.resource)
		}
	}
}
