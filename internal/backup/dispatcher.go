package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tenant-backup-worker/internal/logging"
)

// Dispatcher resolves the tenant of a queue message and hands the job to the
// pipeline registered for its type. It never touches job records itself.
type Dispatcher struct {
	tenants   TenantStore
	pipelines map[JobType]Pipeline
	logger    *logging.Logger
}

// NewDispatcher creates a dispatcher routing backups and restores
func NewDispatcher(tenants TenantStore, backup, restore Pipeline, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	pipelines := make(map[JobType]Pipeline, 2)
	if backup != nil {
		pipelines[JobTypeBackup] = backup
	}
	if restore != nil {
		pipelines[JobTypeRestore] = restore
	}
	return &Dispatcher{
		tenants:   tenants,
		pipelines: pipelines,
		logger:    logger,
	}
}

// Dispatch validates msg, loads the tenant and runs the matching pipeline.
// An unknown job type is a VALIDATION_ERROR and no pipeline runs.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return NewValidationError("invalid job message", err)
	}

	jobType, err := ParseJobType(msg.Payload.Type)
	if err != nil {
		return err
	}
	pipeline, ok := d.pipelines[jobType]
	if !ok {
		return NewValidationError(fmt.Sprintf("no pipeline registered for job type %s", jobType), nil)
	}

	if logging.CorrelationIDFromContext(ctx) == "" {
		ctx = logging.ContextWithCorrelationID(ctx, uuid.NewString())
	}
	log := d.logger.WithJob(ctx, msg.Payload.BackupID, string(jobType), msg.TenantID)

	tenant, err := d.tenants.GetTenant(ctx, msg.TenantID)
	if err != nil {
		log.WithField("error", err.Error()).Error("Failed to load tenant")
		return err
	}

	start := time.Now()
	log.WithField("namespace", tenant.Namespace).Debug("Dispatching job")

	if err := pipeline.Run(ctx, tenant, msg.Payload.BackupID); err != nil {
		log.WithFields(logrus.Fields{
			"error":    err.Error(),
			"duration": time.Since(start).String(),
		}).Debug("Pipeline returned error")
		return err
	}
	return nil
}
