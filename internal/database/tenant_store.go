package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tenant-backup-worker/internal/backup"
)

// DefaultProjectTable is the console table mapping project ids to internal ids
const DefaultProjectTable = "_console_projects"

// TenantStore resolves tenants from the console database. Every tenant lives
// in the same tenant database; only the namespace differs.
type TenantStore struct {
	db     *sql.DB
	table  string
	tenant backup.ConnectionConfig
}

// NewTenantStore creates a tenant store reading table in db
func NewTenantStore(db *sql.DB, table string, tenant backup.ConnectionConfig) (*TenantStore, error) {
	if table == "" {
		table = DefaultProjectTable
	}
	if !backup.ValidIdentifier(table) {
		return nil, backup.NewConfigurationError(fmt.Sprintf("invalid project table name %q", table), nil)
	}
	if err := tenant.Validate(); err != nil {
		return nil, backup.NewConfigurationError("invalid tenant database configuration", err)
	}
	return &TenantStore{db: db, table: table, tenant: tenant}, nil
}

// GetTenant looks up the project's internal id and builds its namespace
func (s *TenantStore) GetTenant(ctx context.Context, tenantID string) (*backup.Tenant, error) {
	query := fmt.Sprintf("SELECT _id FROM `%s` WHERE _uid = ? LIMIT 1", s.table)

	var internalID string
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(&internalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, backup.NewNotFoundError(fmt.Sprintf("tenant %s not found", tenantID), nil).
			WithContext("tenant_id", tenantID)
	}
	if err != nil {
		return nil, backup.NewDatabaseError("failed to load tenant", err).WithContext("tenant_id", tenantID)
	}

	namespace := backup.NamespaceFor(internalID)
	if !backup.ValidIdentifier(namespace) {
		return nil, backup.NewValidationError(fmt.Sprintf("tenant %s has invalid internal id %q", tenantID, internalID), nil)
	}

	return &backup.Tenant{
		ID:         tenantID,
		InternalID: internalID,
		Namespace:  namespace,
		Database:   s.tenant,
	}, nil
}
