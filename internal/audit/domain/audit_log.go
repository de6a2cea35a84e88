package domain

import "time"

// AuditLog is one persisted audit entry. Metadata is a JSON object or empty.
type AuditLog struct {
	ID        string
	TenantID  string
	SubjectID string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
