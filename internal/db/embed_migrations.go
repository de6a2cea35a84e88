package db

import "embed"

// MigrationFS holds the versioned schema (sessions, devices, security events,
// audit logs, response policies, tenant settings) applied by internal/db/migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
