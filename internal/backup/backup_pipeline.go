package backup

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// BackupPipeline dumps a tenant's tables, compresses the dump and moves the
// archive to durable storage.
type BackupPipeline struct {
	runner     jobRunner
	enumerator *TableEnumerator
	executor   CommandExecutor
	archiver   Archiver
	staging    *StagingArea
	durable    StorageDevice
	tools      ToolsConfig
}

// NewBackupPipeline creates a backup pipeline
func NewBackupPipeline(deps Dependencies) (*BackupPipeline, error) {
	if err := deps.Validate(); err != nil {
		return nil, NewConfigurationError("invalid backup pipeline dependencies", err)
	}
	if deps.Catalog == nil {
		return nil, NewConfigurationError("table catalog is required for backups", nil)
	}
	if err := deps.setDefaults(); err != nil {
		return nil, err
	}

	return &BackupPipeline{
		runner: jobRunner{
			jobs:    deps.Jobs,
			logger:  deps.Logger,
			metrics: deps.Metrics,
			kind:    JobTypeBackup,
		},
		enumerator: NewTableEnumerator(deps.Catalog, deps.PageSize),
		executor:   deps.Executor,
		archiver:   deps.Archiver,
		staging:    deps.Staging,
		durable:    deps.Durable,
		tools:      deps.Tools,
	}, nil
}

// Run executes the backup job jobID for tenant. A missing record aborts
// without any status change; every later failure leaves the job failed.
func (bp *BackupPipeline) Run(ctx context.Context, tenant *Tenant, jobID string) error {
	start := time.Now()

	job, err := bp.runner.load(ctx, tenant, jobID)
	if err != nil {
		return err
	}

	log := bp.runner.logger.WithJob(ctx, job.ID, string(job.Type), tenant.ID)

	if err := bp.runner.begin(ctx, job); err != nil {
		return err
	}
	log.Info("Backup started")

	key, err := bp.produceArchive(ctx, tenant, job, log)
	if err != nil {
		return bp.runner.fail(ctx, job, err, log, start)
	}

	finished := *job
	if err := finished.SetArchivePath(key); err != nil {
		return bp.runner.fail(ctx, job, err, log, start)
	}
	if err := bp.runner.complete(ctx, &finished, log, start); err != nil {
		bp.discardArchive(ctx, key, log)
		return bp.runner.fail(ctx, job, err, log, start)
	}

	*job = finished
	return nil
}

// produceArchive runs dump, compress and move, returning the storage key
func (bp *BackupPipeline) produceArchive(ctx context.Context, tenant *Tenant, job *Job, log *logrus.Entry) (string, error) {
	tables, err := bp.enumerator.Enumerate(ctx, tenant.Namespace)
	if err != nil {
		return "", err
	}
	log.WithField("tables", len(tables)).Debug("Enumerated tenant tables")

	dir, err := bp.staging.Acquire(job.ID)
	if err != nil {
		return "", err
	}
	defer releaseStaging(dir, log)

	dumpName := DumpName(job.ID)
	if err := bp.dump(ctx, tenant, tables, dir.File(dumpName)); err != nil {
		return "", err
	}
	if err := bp.runner.touch(ctx, job, log); err != nil {
		return "", err
	}

	archiveName := ArchiveName(job.ID)
	archivePath := dir.File(archiveName)
	if err := bp.archiver.Compress(ctx, dir.Path(), dumpName, archivePath); err != nil {
		return "", err
	}
	if err := bp.runner.touch(ctx, job, log); err != nil {
		return "", err
	}

	if err := bp.durable.Move(ctx, archivePath, bp.durable.Path(archiveName)); err != nil {
		return "", NewIOError("failed to move archive to storage", err).
			WithContext("archive", archiveName)
	}
	return archiveName, nil
}

func (bp *BackupPipeline) dump(ctx context.Context, tenant *Tenant, tables []string, target string) error {
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return NewIOError("failed to create dump file", err).WithContext("path", target)
	}

	runErr := runChecked(ctx, bp.executor, DumpCommand(bp.tools.DumpBinary, tenant.Database, tables, out), "dump")
	closeErr := out.Close()

	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return NewIOError("failed to flush dump file", closeErr).WithContext("path", target)
	}
	return nil
}

// discardArchive removes an uploaded archive whose job could not be marked
// completed, so no orphan outlives a failed record.
func (bp *BackupPipeline) discardArchive(ctx context.Context, key string, log *logrus.Entry) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := bp.durable.Delete(cleanupCtx, bp.durable.Path(key)); err != nil {
		log.WithFields(logrus.Fields{
			"archive": key,
			"error":   err.Error(),
		}).Warn("Failed to remove archive of failed job")
	}
}
