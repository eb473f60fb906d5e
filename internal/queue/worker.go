package queue

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"tenant-backup-worker/internal/backup"
	"tenant-backup-worker/internal/logging"
)

// Dispatcher runs one job message to completion
type Dispatcher interface {
	Dispatch(ctx context.Context, msg backup.Message) error
}

// Sweeper fails jobs abandoned in processing
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Worker consumes deliveries one at a time. Job errors are logged and the
// loop moves on. Cancellation switches it to draining what was accepted.
type Worker struct {
	deliveries    <-chan Delivery
	dispatcher    Dispatcher
	sweeper       Sweeper
	sweepInterval time.Duration
	logger        *logging.Logger
	metrics       *Metrics
}

// NewWorker creates a worker reading from deliveries
func NewWorker(deliveries <-chan Delivery, dispatcher Dispatcher, logger *logging.Logger, metrics *Metrics) *Worker {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Worker{
		deliveries: deliveries,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
	}
}

// WithSweeper runs sweeper every interval between jobs. A non-positive
// interval disables it.
func (w *Worker) WithSweeper(sweeper Sweeper, interval time.Duration) *Worker {
	if sweeper != nil && interval > 0 {
		w.sweeper = sweeper
		w.sweepInterval = interval
	}
	return w
}

// Run processes deliveries until ctx is canceled. Deliveries were already
// acknowledged to their sender, so after cancellation Run keeps processing
// them until the channel is closed and empty. The intake must close the
// channel once it stops accepting.
func (w *Worker) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if w.sweeper != nil {
		ticker := time.NewTicker(w.sweepInterval)
		defer ticker.Stop()
		tick = ticker.C
		w.sweep(ctx)
	}

	w.logger.Info("Worker started")
	for {
		if ctx.Err() != nil {
			return w.drain(ctx)
		}
		select {
		case <-ctx.Done():
			return w.drain(ctx)
		case <-tick:
			w.sweep(ctx)
		case delivery, ok := <-w.deliveries:
			if !ok {
				w.logger.Info("Delivery channel closed, worker stopping")
				return nil
			}
			if ctx.Err() != nil {
				w.logger.WithField("delivery_id", delivery.ID).Debug("Delivery received during shutdown")
			}
			w.metrics.setDepth(len(w.deliveries))
			w.Process(context.WithoutCancel(ctx), delivery)
		}
	}
}

// drain processes the remaining deliveries without sweeping
func (w *Worker) drain(ctx context.Context) error {
	w.logger.WithField("buffered", len(w.deliveries)).Info("Worker stopping, draining accepted jobs")

	base := context.WithoutCancel(ctx)
	drained := 0
	for delivery := range w.deliveries {
		w.metrics.setDepth(len(w.deliveries))
		w.Process(base, delivery)
		drained++
	}

	w.logger.WithField("drained", drained).Info("Worker stopped")
	return nil
}

// Process dispatches one delivery and logs its outcome
func (w *Worker) Process(ctx context.Context, delivery Delivery) {
	ctx = logging.ContextWithCorrelationID(ctx, delivery.ID)
	msg := delivery.Message
	log := w.logger.WithJob(ctx, msg.Payload.BackupID, msg.Payload.Type, msg.TenantID)

	start := time.Now()
	err := w.dispatcher.Dispatch(ctx, msg)

	fields := logrus.Fields{
		"duration": time.Since(start).String(),
		"queued":   start.Sub(delivery.ReceivedAt).String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		fields["error_kind"] = backup.ErrorKind(err)
		log.WithFields(fields).Error("Job failed")
		return
	}
	log.WithFields(fields).Info("Job finished")
}

func (w *Worker) sweep(ctx context.Context) {
	n, err := w.sweeper.Sweep(ctx)
	if err != nil {
		w.logger.WithField("error", err.Error()).Error("Stale job sweep failed")
	}
	if n > 0 {
		w.logger.WithField("count", n).Warn("Marked stale jobs failed")
	}
}
