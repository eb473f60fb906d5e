package backup

import (
	"context"
	"io"
	"time"
)

// JobRepository loads and persists job records. Implementations never create
// a missing record; Get and Update return a NOT_FOUND error instead. Update
// only writes when the stored row still matches expect and returns an
// INVALID_STATE error when it does not.
type JobRepository interface {
	Get(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, job *Job, expect Precondition) error
}

// StaleJobFinder lists jobs stuck in processing since before a cutoff
type StaleJobFinder interface {
	ListStale(ctx context.Context, before time.Time) ([]*Job, error)
}

// TenantStore resolves a tenant id to its namespace and connection context
type TenantStore interface {
	GetTenant(ctx context.Context, tenantID string) (*Tenant, error)
}

// TableCatalog pages through the logical table ids registered for a namespace
type TableCatalog interface {
	ListTables(ctx context.Context, namespace string, limit, offset int) ([]string, error)
}

// Command describes one invocation of an external tool
type Command struct {
	Name   string
	Args   []string
	Env    []string
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
}

// CommandResult captures the outcome of a finished command. A non-zero exit
// is reported through ExitCode, not as an error.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// CommandExecutor runs external tools
type CommandExecutor interface {
	Execute(ctx context.Context, cmd Command) (*CommandResult, error)
}

// StorageDevice abstracts a place archives live, local or remote
type StorageDevice interface {
	// Path resolves a key to the locator accepted by the other methods
	Path(key string) string
	// Move uploads or renames the local file to locator and removes the local copy
	Move(ctx context.Context, localPath, locator string) error
	Read(ctx context.Context, locator string) ([]byte, error)
	Write(ctx context.Context, locator string, data []byte) error
	Delete(ctx context.Context, locator string) error
}

// Archiver packs a single dump file into a gzip tarball and back
type Archiver interface {
	Compress(ctx context.Context, dir, member, archivePath string) error
	Extract(ctx context.Context, archivePath, dir, member string) error
}

// Pipeline runs one job type for a tenant
type Pipeline interface {
	Run(ctx context.Context, tenant *Tenant, jobID string) error
}
