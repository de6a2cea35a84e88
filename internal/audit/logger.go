package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sessionguard/internal/audit/domain"
	auditrepo "sessionguard/internal/audit/repository"
	monitordomain "sessionguard/internal/monitor/domain"
)

// SentinelTenantID is the tenant_id used for events that have no tenant (e.g. login_failed for an unknown account).
const SentinelTenantID = "_system"

// Sink receives every security event. Append is fire-and-forget: failures are
// logged by the sink and never reach the caller.
type Sink interface {
	Append(ctx context.Context, e *monitordomain.SecurityEvent)
}

// MultiSink fans an event out to every sink in order.
type MultiSink []Sink

// Append forwards e to each non-nil sink.
func (m MultiSink) Append(ctx context.Context, e *monitordomain.SecurityEvent) {
	for _, s := range m {
		if s != nil {
			s.Append(ctx, e)
		}
	}
}

// Logger implements Sink using the audit repository.
type Logger struct {
	repo auditrepo.Repository
	log  *slog.Logger
}

// NewLogger returns a Sink that persists to repo. log may be nil.
func NewLogger(repo auditrepo.Repository, log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{repo: repo, log: log}
}

// Append writes one audit log entry for e. Best-effort: errors are logged and not returned.
func (l *Logger) Append(ctx context.Context, e *monitordomain.SecurityEvent) {
	if l.repo == nil || e == nil {
		return
	}
	ar := ParseEventType(e.Type)
	tenantID := e.TenantID
	if tenantID == "" {
		tenantID = SentinelTenantID
	}
	ip := e.IPAddress
	if ip == "" {
		ip = "unknown"
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		SubjectID: e.SubjectID,
		Action:    ar.Action,
		Resource:  ar.Resource,
		IP:        ip,
		Metadata:  l.metadata(ctx, e),
		CreatedAt: createdAt,
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.log.WarnContext(ctx, "audit: failed to log event", "action", ar.Action, "resource", ar.Resource, "error", err)
	}
}

func (l *Logger) metadata(ctx context.Context, e *monitordomain.SecurityEvent) string {
	m := map[string]any{"event_id": e.ID, "severity": string(e.Severity)}
	if e.UserAgent != "" {
		m["user_agent"] = e.UserAgent
	}
	if len(e.Details) > 0 {
		m["details"] = e.Details
	}
	b, err := json.Marshal(m)
	if err != nil {
		l.log.WarnContext(ctx, "audit: dropping unencodable event details", "event_id", e.ID, "error", err)
		delete(m, "details")
		b, _ = json.Marshal(m)
	}
	return string(b)
}
