package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tenant-backup-worker/internal/logging"
)

const persistTimeout = 30 * time.Second

// Dependencies bundles the collaborators shared by the backup and restore pipelines
type Dependencies struct {
	Jobs     JobRepository
	Catalog  TableCatalog
	Executor CommandExecutor
	Archiver Archiver
	Staging  *StagingArea
	// Scratch is a device rooted at the staging root; restores write the
	// downloaded archive through it.
	Scratch  StorageDevice
	Durable  StorageDevice
	Tools    ToolsConfig
	PageSize int
	Logger   *logging.Logger
	Metrics  *Metrics
}

// Validate checks that every required collaborator is present
func (d *Dependencies) Validate() error {
	var errors ValidationErrors

	if d.Jobs == nil {
		errors.Add("jobs", "job repository is required", nil)
	}
	if d.Executor == nil {
		errors.Add("executor", "command executor is required", nil)
	}
	if d.Archiver == nil {
		errors.Add("archiver", "archiver is required", nil)
	}
	if d.Staging == nil {
		errors.Add("staging", "staging area is required", nil)
	}
	if d.Durable == nil {
		errors.Add("durable", "durable storage device is required", nil)
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

func (d *Dependencies) setDefaults() error {
	d.Tools.SetDefaults()
	if d.Logger == nil {
		d.Logger = logging.NewDefaultLogger()
	}
	if d.Scratch == nil && d.Staging != nil {
		scratch, err := NewStagingDevice(d.Staging)
		if err != nil {
			return err
		}
		d.Scratch = scratch
	}
	return nil
}

// NewStagingDevice returns a local device rooted at the staging area
func NewStagingDevice(area *StagingArea) (*LocalDevice, error) {
	return NewLocalDevice(&LocalConfig{BasePath: area.Root(), Permissions: 0o750})
}

// jobRunner holds the status bookkeeping both pipelines share
type jobRunner struct {
	jobs    JobRepository
	logger  *logging.Logger
	metrics *Metrics
	kind    JobType
}

// load fetches the job and checks it belongs to this pipeline and tenant
func (r *jobRunner) load(ctx context.Context, tenant *Tenant, jobID string) (*Job, error) {
	job, err := r.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Type != r.kind {
		return nil, NewInvalidStateError(
			fmt.Sprintf("job %s is a %s job, not %s", job.ID, job.Type, r.kind), nil)
	}
	if job.TenantID != "" && job.TenantID != tenant.ID {
		return nil, NewInvalidStateError(
			fmt.Sprintf("job %s belongs to tenant %s, not %s", job.ID, job.TenantID, tenant.ID), nil)
	}
	return job, nil
}

// begin moves the job to processing and persists it
func (r *jobRunner) begin(ctx context.Context, job *Job) error {
	expect := job.Expect()
	if err := job.Transition(JobStatusProcessing); err != nil {
		return err
	}
	return r.jobs.Update(ctx, job, expect)
}

// touch refreshes updated_at between steps so the reconciler does not take a
// live job for a dead one. It fails only when the record is no longer ours.
func (r *jobRunner) touch(ctx context.Context, job *Job, log *logrus.Entry) error {
	expect := job.Expect()
	if err := job.Transition(JobStatusProcessing); err != nil {
		return err
	}
	err := r.jobs.Update(ctx, job, expect)
	if err == nil {
		return nil
	}
	if IsInvalidState(err) || IsNotFound(err) {
		return err
	}
	log.WithField("error", err.Error()).Warn("Failed to refresh job heartbeat")
	return nil
}

// fail marks the job failed and returns cause. The status write runs on a
// context detached from cancellation so shutdown does not leave the record
// in processing.
func (r *jobRunner) fail(ctx context.Context, job *Job, cause error, log *logrus.Entry, start time.Time) error {
	log.WithFields(logrus.Fields{
		"error":      cause.Error(),
		"error_kind": ErrorKind(cause),
	}).Error("Job failed")

	expect := job.Expect()
	if err := job.Transition(JobStatusFailed); err != nil {
		log.WithField("error", err.Error()).Warn("Could not mark job failed")
		return cause
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := r.jobs.Update(persistCtx, job, expect); err != nil {
		if IsInvalidState(err) {
			log.WithField("error", err.Error()).Warn("Job status was changed elsewhere, leaving it as stored")
		} else {
			log.WithField("error", err.Error()).Error("Failed to persist failed status")
		}
	}

	r.metrics.ObserveJob(r.kind, JobStatusFailed, time.Since(start))
	return cause
}

// complete persists a finished job built from a copy of the processing record
func (r *jobRunner) complete(ctx context.Context, job *Job, log *logrus.Entry, start time.Time) error {
	expect := job.Expect()
	if err := job.Transition(JobStatusCompleted); err != nil {
		return err
	}
	if err := r.jobs.Update(ctx, job, expect); err != nil {
		return err
	}

	duration := time.Since(start)
	r.metrics.ObserveJob(r.kind, JobStatusCompleted, duration)
	log.WithFields(logrus.Fields{
		"archive":  job.ArchivePath,
		"duration": duration.String(),
	}).Info("Job completed")
	return nil
}

func releaseStaging(dir *StagingDir, log *logrus.Entry) {
	if err := dir.Release(); err != nil {
		log.WithField("error", err.Error()).Warn("Failed to clean up staging directory")
	}
}
