// Package backup implements the tenant backup and restore jobs.
//
// A job arrives as a Message naming a tenant, a job type and a job id. The
// Dispatcher resolves the tenant and hands the job to a Pipeline:
//
//   - BackupPipeline enumerates the tenant's tables, dumps them with the
//     external dump tool into a job-scoped staging directory, packs the dump
//     into {jobId}.tar.gz and moves it to a durable StorageDevice.
//   - RestorePipeline reads the archive back, unpacks {jobId}.sql and replays
//     it with the external apply tool.
//
// Both pipelines drive the job record through pending, processing and
// completed or failed. Completed and failed are terminal. The Reconciler
// fails jobs that stay in processing after their worker died.
//
// Storage devices exist for the local file system, Amazon S3, Google Cloud
// Storage and Azure Blob Storage; StorageDeviceFactory picks one from
// StorageConfig.
//
// Example usage:
//
//	deps := backup.Dependencies{
//		Jobs:     jobRepo,
//		Catalog:  catalog,
//		Executor: backup.NewExecCommandExecutor(30*time.Minute, logger, metrics),
//		Archiver: backup.NewNativeArchiver(),
//		Staging:  backup.NewStagingArea("/tmp/backups"),
//		Durable:  device,
//		Logger:   logger,
//	}
//	backups, err := backup.NewBackupPipeline(deps)
//	if err != nil {
//		return err
//	}
//	restores, err := backup.NewRestorePipeline(deps)
//	if err != nil {
//		return err
//	}
//	dispatcher := backup.NewDispatcher(tenantStore, backups, restores, logger)
//	err = dispatcher.Dispatch(ctx, msg)
package backup
