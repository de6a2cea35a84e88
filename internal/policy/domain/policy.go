package domain

import "time"

// Policy is a tenant-level threat-response policy written in Rego. Its rules
// must declare package sessionguard.response and define the actions set.
type Policy struct {
	ID        string
	TenantID  string
	Name      string
	Rules     string
	Enabled   bool
	CreatedAt time.Time
}
