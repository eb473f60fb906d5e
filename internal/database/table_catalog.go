package database

import (
	"context"
	"database/sql"
	"fmt"

	"tenant-backup-worker/internal/backup"
)

// TableCatalog lists collection ids from a tenant's metadata table
type TableCatalog struct {
	db *sql.DB
}

// NewTableCatalog creates a catalog over the tenant database
func NewTableCatalog(db *sql.DB) *TableCatalog {
	return &TableCatalog{db: db}
}

// ListTables returns one page of collection ids in metadata order
func (c *TableCatalog) ListTables(ctx context.Context, namespace string, limit, offset int) ([]string, error) {
	if !backup.ValidIdentifier(namespace) {
		return nil, backup.NewValidationError(fmt.Sprintf("invalid namespace %q", namespace), nil)
	}

	query := fmt.Sprintf("SELECT _uid FROM `%s__metadata` ORDER BY _id LIMIT ? OFFSET ?", namespace)
	rows, err := c.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
