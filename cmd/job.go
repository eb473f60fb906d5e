package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tenant-backup-worker/internal/backup"
	"tenant-backup-worker/internal/logging"
)

var (
	jobTenant string
	jobType   string
	jobID     string
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Run or inspect single jobs",
}

var jobRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one job in the foreground",
	Long: `Run one backup or restore job without going through the intake.

The job row must already exist in the console database. The command exits
non-zero when the job ends failed.

Examples:
  tenant-backup job run --tenant=p1 --type=backup --id=b1
  tenant-backup job run --tenant=p1 --type=restore --id=r1`,
	RunE: runJobRun,
}

var jobStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the recorded status of a job",
	RunE:  runJobStatus,
}

var jobSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Fail jobs left in processing by a dead worker",
	RunE:  runJobSweep,
}

func init() {
	rootCmd.AddCommand(jobCmd)
	jobCmd.AddCommand(jobRunCmd, jobStatusCmd, jobSweepCmd)

	jobRunCmd.Flags().StringVar(&jobTenant, "tenant", "", "tenant (project) id")
	jobRunCmd.Flags().StringVar(&jobType, "type", "", "job type (backup or restore)")
	jobRunCmd.Flags().StringVar(&jobID, "id", "", "job id")
	jobRunCmd.MarkFlagRequired("tenant")
	jobRunCmd.MarkFlagRequired("type")
	jobRunCmd.MarkFlagRequired("id")

	jobStatusCmd.Flags().StringVar(&jobID, "id", "", "job id")
	jobStatusCmd.MarkFlagRequired("id")
}

func runJobRun(cmd *cobra.Command, args []string) error {
	msg := backup.Message{
		TenantID: jobTenant,
		Payload:  backup.Payload{Type: jobType, BackupID: jobID},
	}
	if err := msg.Validate(); err != nil {
		return backup.NewValidationError("invalid job", err)
	}

	a, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.ContextWithCorrelationID(ctx, jobID)

	dispatchErr := a.dispatcher.Dispatch(ctx, msg)

	job, err := a.jobs.Get(ctx, jobID)
	if err != nil {
		printJobError(cmd.OutOrStdout(), jobID, dispatchErr)
		if dispatchErr != nil {
			return dispatchErr
		}
		return err
	}
	printJob(cmd.OutOrStdout(), job)
	if dispatchErr != nil {
		printJobError(cmd.OutOrStdout(), jobID, dispatchErr)
	}
	return dispatchErr
}

func runJobStatus(cmd *cobra.Command, args []string) error {
	a, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	job, err := a.jobs.Get(cmd.Context(), jobID)
	if err != nil {
		return err
	}
	printJob(cmd.OutOrStdout(), job)
	return nil
}

func runJobSweep(cmd *cobra.Command, args []string) error {
	a, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.reconciler.Sweep(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d stale job(s) marked failed\n", n)
	return nil
}

func setupApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	return newApp(cmd.Context(), cfg, logger)
}

// statusColor picks the color a job status is printed in
func statusColor(status backup.JobStatus) *color.Color {
	switch status {
	case backup.JobStatusCompleted:
		return color.New(color.FgGreen, color.Bold)
	case backup.JobStatusFailed:
		return color.New(color.FgRed, color.Bold)
	case backup.JobStatusProcessing:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}

func printJob(w io.Writer, job *backup.Job) {
	label := color.New(color.Faint)

	fmt.Fprintf(w, "%s %s\n", label.Sprint("job:   "), job.ID)
	fmt.Fprintf(w, "%s %s\n", label.Sprint("tenant:"), job.TenantID)
	fmt.Fprintf(w, "%s %s\n", label.Sprint("type:  "), job.Type)
	fmt.Fprintf(w, "%s %s\n", label.Sprint("status:"), statusColor(job.Status).Sprint(job.Status))
	if job.ArchivePath != "" {
		fmt.Fprintf(w, "%s %s\n", label.Sprint("path:  "), job.ArchivePath)
	}
	fmt.Fprintf(w, "%s %s\n", label.Sprint("updated:"), job.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
}

func printJobError(w io.Writer, id string, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s job %s: %v (%s)\n",
		color.New(color.FgRed, color.Bold).Sprint("error"), id, err, backup.ErrorKind(err))
}
