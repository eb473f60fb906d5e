package backup

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/sirupsen/logrus"
)

// RestorePipeline fetches a stored archive, unpacks it and replays the dump
// into the tenant schema.
type RestorePipeline struct {
	runner   jobRunner
	executor CommandExecutor
	archiver Archiver
	staging  *StagingArea
	scratch  StorageDevice
	durable  StorageDevice
	tools    ToolsConfig
}

// NewRestorePipeline creates a restore pipeline
func NewRestorePipeline(deps Dependencies) (*RestorePipeline, error) {
	if err := deps.Validate(); err != nil {
		return nil, NewConfigurationError("invalid restore pipeline dependencies", err)
	}
	if err := deps.setDefaults(); err != nil {
		return nil, err
	}

	return &RestorePipeline{
		runner: jobRunner{
			jobs:    deps.Jobs,
			logger:  deps.Logger,
			metrics: deps.Metrics,
			kind:    JobTypeRestore,
		},
		executor: deps.Executor,
		archiver: deps.Archiver,
		staging:  deps.Staging,
		scratch:  deps.Scratch,
		durable:  deps.Durable,
		tools:    deps.Tools,
	}, nil
}

// Run executes the restore job jobID for tenant
func (rp *RestorePipeline) Run(ctx context.Context, tenant *Tenant, jobID string) error {
	start := time.Now()

	job, err := rp.runner.load(ctx, tenant, jobID)
	if err != nil {
		return err
	}

	log := rp.runner.logger.WithJob(ctx, job.ID, string(job.Type), tenant.ID)

	if job.ArchivePath == "" {
		invalid := NewInvalidStateError(fmt.Sprintf("restore job %s has no archive path", job.ID), nil).
			WithContext("job_id", job.ID)
		return rp.runner.fail(ctx, job, invalid, log, start)
	}

	if err := rp.runner.begin(ctx, job); err != nil {
		return err
	}
	log.WithField("archive", job.ArchivePath).Info("Restore started")

	if err := rp.restoreArchive(ctx, tenant, job, log); err != nil {
		return rp.runner.fail(ctx, job, err, log, start)
	}

	finished := *job
	if err := rp.runner.complete(ctx, &finished, log, start); err != nil {
		return rp.runner.fail(ctx, job, err, log, start)
	}
	*job = finished
	return nil
}

func (rp *RestorePipeline) restoreArchive(ctx context.Context, tenant *Tenant, job *Job, log *logrus.Entry) error {
	dir, err := rp.staging.Acquire(job.ID)
	if err != nil {
		return err
	}
	defer releaseStaging(dir, log)

	data, err := rp.durable.Read(ctx, rp.durable.Path(job.ArchivePath))
	if err != nil {
		return NewIOError("failed to read archive from storage", err).
			WithContext("archive", job.ArchivePath)
	}

	archiveName := path.Base(sanitizeKey(job.ArchivePath))
	localArchive := rp.scratch.Path(job.ID + "/" + archiveName)
	if err := rp.scratch.Write(ctx, localArchive, data); err != nil {
		return NewIOError("failed to stage archive", err).
			WithContext("archive", archiveName)
	}
	log.WithField("bytes", len(data)).Debug("Archive staged")
	if err := rp.runner.touch(ctx, job, log); err != nil {
		return err
	}

	member := MemberNameFor(archiveName)
	if err := rp.archiver.Extract(ctx, localArchive, dir.Path(), member); err != nil {
		return err
	}
	if err := rp.runner.touch(ctx, job, log); err != nil {
		return err
	}

	return rp.apply(ctx, tenant, dir.File(member))
}

func (rp *RestorePipeline) apply(ctx context.Context, tenant *Tenant, dumpPath string) error {
	in, err := os.Open(dumpPath)
	if err != nil {
		return NewIOError("failed to open extracted dump", err).WithContext("path", dumpPath)
	}
	defer in.Close()

	return runChecked(ctx, rp.executor, ApplyCommand(rp.tools.ApplyBinary, tenant.Database, in), "apply")
}
