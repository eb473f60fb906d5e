package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"tenant-backup-worker/internal/backup"
	"tenant-backup-worker/internal/config"
	"tenant-backup-worker/internal/database"
	"tenant-backup-worker/internal/logging"
)

// app holds the collaborators shared by the worker and job commands
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	registry *prometheus.Registry
	metrics  *backup.Metrics

	dbService *database.Service
	consoleDB *sql.DB
	tenantDB  *sql.DB
	durable   backup.StorageDevice

	jobs       *database.JobRepository
	dispatcher *backup.Dispatcher
	reconciler *backup.Reconciler
}

// newApp connects both databases and assembles the pipelines. Job records
// and projects live in the console database; tenant tables live in the
// tenant database.
func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	a := &app{
		cfg:       cfg,
		logger:    logger,
		registry:  prometheus.NewRegistry(),
		dbService: database.NewServiceWithLogger(logger),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = backup.NewMetrics(a.registry)

	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.assemble(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) connect(ctx context.Context) error {
	var err error

	a.consoleDB, err = a.dbService.Connect(ctx, a.cfg.Console)
	if err != nil {
		return fmt.Errorf("console database: %w", err)
	}
	a.tenantDB, err = a.dbService.Connect(ctx, a.cfg.Tenant)
	if err != nil {
		return fmt.Errorf("tenant database: %w", err)
	}

	if version, err := a.dbService.GetVersion(ctx, a.tenantDB); err == nil {
		a.logger.WithField("version", version).Info("Connected to tenant database")
	}
	return nil
}

func (a *app) assemble(ctx context.Context) error {
	cfg := a.cfg

	jobs, err := database.NewJobRepository(a.consoleDB, cfg.Tables.Jobs, a.logger)
	if err != nil {
		return err
	}
	a.jobs = jobs

	tenants, err := database.NewTenantStore(a.consoleDB, cfg.Tables.Projects, cfg.Tenant.Connection())
	if err != nil {
		return err
	}

	a.durable, err = backup.NewStorageDeviceFactory().CreateStorageDevice(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	executor := backup.NewExecCommandExecutor(cfg.Tools.Timeout, a.logger, a.metrics)
	archiver, err := backup.NewArchiver(cfg.Tools, executor)
	if err != nil {
		return err
	}

	deps := backup.Dependencies{
		Jobs:     jobs,
		Catalog:  database.NewTableCatalog(a.tenantDB),
		Executor: executor,
		Archiver: archiver,
		Staging:  backup.NewStagingArea(cfg.StagingRoot),
		Durable:  a.durable,
		Tools:    cfg.Tools,
		PageSize: cfg.PageSize,
		Logger:   a.logger,
		Metrics:  a.metrics,
	}

	backupPipeline, err := backup.NewBackupPipeline(deps)
	if err != nil {
		return err
	}
	restorePipeline, err := backup.NewRestorePipeline(deps)
	if err != nil {
		return err
	}

	a.dispatcher = backup.NewDispatcher(tenants, backupPipeline, restorePipeline, a.logger)
	a.reconciler = backup.NewReconciler(jobs, jobs, cfg.Reconcile.StaleAfter, a.logger, a.metrics)
	return nil
}

// Close releases database connections and the storage client
func (a *app) Close() {
	if closer, ok := a.durable.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.logger.WithField("error", err.Error()).Warn("Failed to close storage device")
		}
	}
	a.dbService.Close(a.tenantDB)
	a.dbService.Close(a.consoleDB)
}
