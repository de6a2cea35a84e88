package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"sessionguard/internal/monitor/domain"
)

// PostgresRepository implements Repository using PostgreSQL (security_events table).
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns an event repository that uses the given pool for persistence.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create inserts the event. Details are stored as JSONB; the event must have ID set
// and Details must be JSON-encodable.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.SecurityEvent) error {
	details := []byte("{}")
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return err
		}
		details = b
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO security_events (id, type, subject_id, tenant_id, ip_address, user_agent, details, severity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, string(e.Type), e.SubjectID, e.TenantID, e.IPAddress, e.UserAgent, details, string(e.Severity), e.CreatedAt)
	return err
}

// CountByTypeAndIP counts matching events created at or after since.
func (r *PostgresRepository) CountByTypeAndIP(ctx context.Context, typ domain.EventType, ip string, since time.Time) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM security_events
		WHERE type = $1 AND ip_address = $2 AND created_at >= $3
	`, string(typ), ip, since).Scan(&n)
	return n, err
}

// ListBySubjectSince returns up to 200 of the subject's events of the given types, newest first.
func (r *PostgresRepository) ListBySubjectSince(ctx context.Context, tenantID, subjectID string, types []domain.EventType, since time.Time) ([]*domain.SecurityEvent, error) {
	typeNames := make([]string, len(types))
	for i, t := range types {
		typeNames[i] = string(t)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, type, subject_id, tenant_id, ip_address, user_agent, details, severity, created_at
		FROM security_events
		WHERE tenant_id = $1 AND subject_id = $2 AND created_at >= $3
		  AND (cardinality($4::text[]) = 0 OR type = ANY($4))
		ORDER BY created_at DESC
		LIMIT 200
	`, tenantID, subjectID, since, typeNames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.SecurityEvent, 0)
	for rows.Next() {
		var (
			e        domain.SecurityEvent
			typ, sev string
			details  []byte
		)
		if err := rows.Scan(&e.ID, &typ, &e.SubjectID, &e.TenantID, &e.IPAddress, &e.UserAgent, &details, &sev, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = domain.EventType(typ)
		e.Severity = domain.Severity(sev)
		if len(details) > 0 {
			_ = json.Unmarshal(details, &e.Details)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// CountByTypeSince returns per-type event counts for the tenant.
func (r *PostgresRepository) CountByTypeSince(ctx context.Context, tenantID string, since time.Time) (map[domain.EventType]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT type, COUNT(*) FROM security_events
		WHERE tenant_id = $1 AND created_at >= $2
		GROUP BY type
	`, tenantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[domain.EventType]int64)
	for rows.Next() {
		var (
			typ string
			n   int64
		)
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		out[domain.EventType(typ)] = n
	}
	return out, rows.Err()
}

// CountByDaySince returns per-UTC-day event counts for the tenant, oldest day first.
func (r *PostgresRepository) CountByDaySince(ctx context.Context, tenantID string, since time.Time) ([]domain.DayCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM security_events
		WHERE tenant_id = $1 AND created_at >= $2
		GROUP BY day
		ORDER BY day ASC
	`, tenantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.DayCount, 0)
	for rows.Next() {
		var dc domain.DayCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}
