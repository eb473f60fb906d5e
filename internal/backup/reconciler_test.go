package backup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-backup-worker/internal/logging"
)

func staleFixture(t *testing.T) (*fakeJobRepository, time.Time) {
	t.Helper()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	stuck := pendingJob("b-stuck", JobTypeBackup)
	stuck.Status = JobStatusProcessing
	stuck.UpdatedAt = now.Add(-3 * time.Hour)

	recent := pendingJob("b-recent", JobTypeBackup)
	recent.Status = JobStatusProcessing
	recent.UpdatedAt = now.Add(-10 * time.Minute)

	old := pendingJob("b-old", JobTypeBackup)
	old.Status = JobStatusCompleted
	old.UpdatedAt = now.Add(-48 * time.Hour)

	return newFakeJobRepository(stuck, recent, old, pendingJob("b-pending", JobTypeRestore)), now
}

func TestReconciler_Sweep(t *testing.T) {
	repo, now := staleFixture(t)
	metrics := NewMetrics(prometheus.NewRegistry())

	reconciler := NewReconciler(repo, repo, 2*time.Hour, logging.NewDiscardLogger(), metrics)
	reconciler.now = func() time.Time { return now }

	n, err := reconciler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, JobStatusFailed, repo.job("b-stuck").Status)
	assert.Equal(t, JobStatusProcessing, repo.job("b-recent").Status)
	assert.Equal(t, JobStatusCompleted, repo.job("b-old").Status)
	assert.Equal(t, JobStatusPending, repo.job("b-pending").Status)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.reconciledJobs))
}

func TestReconciler_UpdateFailureIsReported(t *testing.T) {
	repo, now := staleFixture(t)
	repo.updateErr = func(job *Job) error { return errors.New("connection reset") }

	reconciler := NewReconciler(repo, repo, 0, logging.NewDiscardLogger(), nil)
	reconciler.now = func() time.Time { return now }

	n, err := reconciler.Sweep(context.Background())
	assert.Equal(t, 0, n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b-stuck")
	assert.Equal(t, JobStatusProcessing, repo.job("b-stuck").Status)
}

// snapshotFinder returns jobs as they were read earlier
type snapshotFinder struct{ jobs []*Job }

func (f snapshotFinder) ListStale(ctx context.Context, before time.Time) ([]*Job, error) {
	var out []*Job
	for _, job := range f.jobs {
		copied := *job
		out = append(out, &copied)
	}
	return out, nil
}

func TestReconciler_SkipsJobRefreshedAfterListing(t *testing.T) {
	repo, now := staleFixture(t)
	snapshot := repo.job("b-stuck")

	refreshed := snapshot
	refreshed.UpdatedAt = now.Add(-time.Minute)
	repo.set(refreshed)

	metrics := NewMetrics(prometheus.NewRegistry())
	reconciler := NewReconciler(snapshotFinder{jobs: []*Job{&snapshot}}, repo, 2*time.Hour, logging.NewDiscardLogger(), metrics)
	reconciler.now = func() time.Time { return now }

	n, err := reconciler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, JobStatusProcessing, repo.job("b-stuck").Status)
	assert.Empty(t, repo.history)
	assert.Zero(t, testutil.ToFloat64(metrics.reconciledJobs))
}

func TestReconciler_SkipsJobFinishedAfterListing(t *testing.T) {
	repo, now := staleFixture(t)
	snapshot := repo.job("b-stuck")

	finished := snapshot
	finished.Status = JobStatusCompleted
	finished.ArchivePath = "b-stuck.tar.gz"
	repo.set(finished)

	reconciler := NewReconciler(snapshotFinder{jobs: []*Job{&snapshot}}, repo, 2*time.Hour, logging.NewDiscardLogger(), nil)
	reconciler.now = func() time.Time { return now }

	n, err := reconciler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	stored := repo.job("b-stuck")
	assert.Equal(t, JobStatusCompleted, stored.Status)
	assert.Equal(t, "b-stuck.tar.gz", stored.ArchivePath)
}

type failingFinder struct{}

func (failingFinder) ListStale(ctx context.Context, before time.Time) ([]*Job, error) {
	return nil, errors.New("db down")
}

func TestReconciler_ListFailure(t *testing.T) {
	reconciler := NewReconciler(failingFinder{}, newFakeJobRepository(), time.Hour, logging.NewDiscardLogger(), nil)

	_, err := reconciler.Sweep(context.Background())
	assert.Equal(t, "DATABASE_ERROR", ErrorKind(err))
}
