package backup

import (
	"context"
	"fmt"
)

// DefaultPageSize is the number of catalog rows fetched per query
const DefaultPageSize = 1000

// TableEnumerator expands a tenant namespace into the physical tables that
// make up its data set.
type TableEnumerator struct {
	catalog  TableCatalog
	pageSize int
}

// NewTableEnumerator creates an enumerator; a non-positive page size falls
// back to DefaultPageSize.
func NewTableEnumerator(catalog TableCatalog, pageSize int) *TableEnumerator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &TableEnumerator{catalog: catalog, pageSize: pageSize}
}

// Enumerate returns, in catalog order, {ns}_{id} and {ns}_{id}_perms for each
// logical table followed by {ns}__metadata and {ns}__metadata_perms.
func (te *TableEnumerator) Enumerate(ctx context.Context, namespace string) ([]string, error) {
	if !ValidIdentifier(namespace) {
		return nil, NewValidationError(fmt.Sprintf("invalid namespace %q", namespace), nil)
	}

	var tables []string
	for offset := 0; ; offset += te.pageSize {
		ids, err := te.catalog.ListTables(ctx, namespace, te.pageSize, offset)
		if err != nil {
			return nil, NewDatabaseError("failed to list tenant tables", err).
				WithContext("namespace", namespace).
				WithContext("offset", offset)
		}

		for _, id := range ids {
			if !ValidIdentifier(id) {
				return nil, NewValidationError(fmt.Sprintf("invalid table id %q in catalog", id), nil).
					WithContext("namespace", namespace)
			}
			tables = append(tables,
				fmt.Sprintf("%s_%s", namespace, id),
				fmt.Sprintf("%s_%s_perms", namespace, id),
			)
		}

		if len(ids) < te.pageSize {
			break
		}
	}

	return append(tables,
		namespace+"__metadata",
		namespace+"__metadata_perms",
	), nil
}
