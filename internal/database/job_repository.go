package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tenant-backup-worker/internal/backup"
	"tenant-backup-worker/internal/logging"
)

// DefaultJobTable holds one row per backup or restore job
const DefaultJobTable = "backups"

const jobColumns = "id, tenant_id, type, status, path, created_at, updated_at"

// JobRepository reads and writes job records in MySQL
type JobRepository struct {
	db     *sql.DB
	table  string
	logger *logging.Logger
}

// NewJobRepository creates a repository over table in db
func NewJobRepository(db *sql.DB, table string, logger *logging.Logger) (*JobRepository, error) {
	if table == "" {
		table = DefaultJobTable
	}
	if !backup.ValidIdentifier(table) {
		return nil, backup.NewConfigurationError(fmt.Sprintf("invalid job table name %q", table), nil)
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &JobRepository{db: db, table: table, logger: logger}, nil
}

// Get loads a job by id
func (r *JobRepository) Get(ctx context.Context, id string) (*backup.Job, error) {
	query := fmt.Sprintf("SELECT %s FROM `%s` WHERE id = ?", jobColumns, r.table)

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, backup.NewNotFoundError(fmt.Sprintf("job %s not found", id), nil).
			WithContext("job_id", id)
	}
	if err != nil {
		return nil, backup.NewDatabaseError("failed to load job", err).WithContext("job_id", id)
	}
	return job, nil
}

// Update persists the status, archive path and updated_at of job. The write
// only applies while the stored row still matches expect; a job that exists
// but has moved on yields an INVALID_STATE error.
func (r *JobRepository) Update(ctx context.Context, job *backup.Job, expect backup.Precondition) error {
	query := fmt.Sprintf("UPDATE `%s` SET status = ?, path = ?, updated_at = ? WHERE id = ? AND status = ?", r.table)

	updatedAt := job.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	args := []interface{}{
		string(job.Status),
		sql.NullString{String: job.ArchivePath, Valid: job.ArchivePath != ""},
		updatedAt,
		job.ID,
		string(expect.Status),
	}
	if !expect.UpdatedAt.IsZero() {
		query += " AND updated_at = ?"
		args = append(args, expect.UpdatedAt)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return backup.NewDatabaseError("failed to update job", err).WithContext("job_id", job.ID)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return backup.NewDatabaseError("failed to read affected rows", err).WithContext("job_id", job.ID)
	}
	if rows == 0 {
		return r.conflict(ctx, job.ID, expect)
	}

	r.logger.WithFields(map[string]interface{}{
		"job_id": job.ID,
		"status": job.Status,
	}).Debug("Job record updated")
	return nil
}

// conflict explains why a guarded update matched no row
func (r *JobRepository) conflict(ctx context.Context, id string, expect backup.Precondition) error {
	query := fmt.Sprintf("SELECT status FROM `%s` WHERE id = ?", r.table)

	var stored string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return backup.NewNotFoundError(fmt.Sprintf("job %s not found", id), nil).
			WithContext("job_id", id)
	}
	if err != nil {
		return backup.NewDatabaseError("failed to read job status", err).WithContext("job_id", id)
	}

	return backup.NewInvalidStateError(fmt.Sprintf("job %s changed since it was read", id), nil).
		WithContext("job_id", id).
		WithContext("expected_status", string(expect.Status)).
		WithContext("stored_status", stored)
}

// ListStale returns processing jobs last updated before the cutoff
func (r *JobRepository) ListStale(ctx context.Context, before time.Time) ([]*backup.Job, error) {
	query := fmt.Sprintf("SELECT %s FROM `%s` WHERE status = ? AND updated_at < ? ORDER BY updated_at",
		jobColumns, r.table)

	rows, err := r.db.QueryContext(ctx, query, string(backup.JobStatusProcessing), before)
	if err != nil {
		return nil, backup.NewDatabaseError("failed to list stale jobs", err)
	}
	defer rows.Close()

	var jobs []*backup.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, backup.NewDatabaseError("failed to scan job", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, backup.NewDatabaseError("failed to iterate jobs", err)
	}
	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*backup.Job, error) {
	var (
		job       backup.Job
		jobType   string
		status    string
		path      sql.NullString
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&job.ID, &job.TenantID, &jobType, &status, &path, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if job.Type, err = backup.ParseJobType(jobType); err != nil {
		return nil, err
	}
	if job.Status, err = backup.ParseJobStatus(status); err != nil {
		return nil, err
	}
	job.ArchivePath = path.String
	job.CreatedAt = createdAt.UTC()
	job.UpdatedAt = updatedAt.UTC()
	return &job, nil
}
