package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tenant-backup-worker/internal/logging"
)

// DefaultStaleAfter is how long a job may sit in processing before the
// reconciler considers its worker gone.
const DefaultStaleAfter = 2 * time.Hour

// Reconciler fails jobs left in processing by a worker that died mid-run
type Reconciler struct {
	finder     StaleJobFinder
	jobs       JobRepository
	staleAfter time.Duration
	logger     *logging.Logger
	metrics    *Metrics
	now        func() time.Time
}

// NewReconciler creates a reconciler
func NewReconciler(finder StaleJobFinder, jobs JobRepository, staleAfter time.Duration, logger *logging.Logger, metrics *Metrics) *Reconciler {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Reconciler{
		finder:     finder,
		jobs:       jobs,
		staleAfter: staleAfter,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
	}
}

// Sweep marks every stale processing job failed and returns how many it changed
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	cutoff := r.now().UTC().Add(-r.staleAfter)

	stale, err := r.finder.ListStale(ctx, cutoff)
	if err != nil {
		return 0, NewDatabaseError("failed to list stale jobs", err)
	}

	var errs []error
	failed := 0
	for _, job := range stale {
		if job.Status != JobStatusProcessing {
			continue
		}
		log := r.logger.WithJob(ctx, job.ID, string(job.Type), job.TenantID)

		expect := job.ExpectExact()
		if err := job.Transition(JobStatusFailed); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := r.jobs.Update(ctx, job, expect); err != nil {
			if IsInvalidState(err) || IsNotFound(err) {
				log.WithField("error", err.Error()).Debug("Stale job changed before it could be failed")
				continue
			}
			errs = append(errs, fmt.Errorf("job %s: %w", job.ID, err))
			continue
		}

		failed++
		log.WithFields(logrus.Fields{
			"updated_before": cutoff.Format(time.RFC3339),
		}).Warn("Marked stale processing job failed")
	}

	r.metrics.AddReconciled(failed)
	return failed, errors.Join(errs...)
}
