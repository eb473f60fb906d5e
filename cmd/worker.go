package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tenant-backup-worker/internal/queue"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume backup and restore jobs",
	Long: `Start the job intake and the worker loop.

Job messages are accepted on POST /v1/jobs and processed one at a time.
/healthz and /metrics are served on the same address. SIGINT or SIGTERM
stops the intake; a job already running is finished first.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	intakeMetrics := queue.NewMetrics(a.registry)
	source := queue.NewHTTPSource(cfg.Intake.BufferSize, logger, intakeMetrics, a.registry)
	worker := queue.NewWorker(source.Deliveries(), a.dispatcher, logger, intakeMetrics).
		WithSweeper(a.reconciler, cfg.Reconcile.Interval)

	logger.WithFields(map[string]interface{}{
		"addr":            cfg.Intake.Addr,
		"storage":         cfg.Storage.Provider,
		"reconcile_every": cfg.Reconcile.Interval.String(),
		"reconcile_after": cfg.Reconcile.StaleAfter.String(),
		"staging_root":    cfg.StagingRoot,
		"archiver":        cfg.Tools.Archiver,
	}).Info("Starting tenant backup worker")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return source.Serve(gctx, cfg.Intake.Addr)
	})
	g.Go(func() error {
		return worker.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithField("error", err.Error()).Error("Worker stopped with error")
		return err
	}
	logger.Info("Worker stopped")
	return nil
}
