package queue

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-backup-worker/internal/backup"
	"tenant-backup-worker/internal/logging"
)

type recordingDispatcher struct {
	mu       sync.Mutex
	messages []backup.Message
	failOn   string
	started  chan string
	release  chan struct{}
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, msg backup.Message) error {
	d.mu.Lock()
	d.messages = append(d.messages, msg)
	d.mu.Unlock()
	if d.started != nil {
		d.started <- msg.Payload.BackupID
		<-d.release
	}
	if msg.Payload.BackupID == d.failOn {
		return backup.NewProcessError("mysqldump exited with status 2", nil)
	}
	if logging.CorrelationIDFromContext(ctx) == "" {
		return backup.NewValidationError("missing correlation id", nil)
	}
	return nil
}

func (d *recordingDispatcher) ids() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ids []string
	for _, m := range d.messages {
		ids = append(ids, m.Payload.BackupID)
	}
	return ids
}

type countingSweeper struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSweeper) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return 1, nil
}

func (s *countingSweeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func delivery(id string) Delivery {
	return Delivery{
		ID:         "d-" + id,
		Message:    backup.Message{TenantID: "p1", Payload: backup.Payload{Type: "backup", BackupID: id}},
		ReceivedAt: time.Now(),
	}
}

func TestWorker_ContinuesAfterFailure(t *testing.T) {
	deliveries := make(chan Delivery, 3)
	deliveries <- delivery("b1")
	deliveries <- delivery("b2")
	deliveries <- delivery("b3")
	close(deliveries)

	dispatcher := &recordingDispatcher{failOn: "b2"}
	worker := NewWorker(deliveries, dispatcher, logging.NewDiscardLogger(), nil)

	require.NoError(t, worker.Run(context.Background()))
	assert.Equal(t, []string{"b1", "b2", "b3"}, dispatcher.ids())
}

func TestWorker_StopsOnCancelOnceIntakeCloses(t *testing.T) {
	deliveries := make(chan Delivery)
	worker := NewWorker(deliveries, &recordingDispatcher{}, logging.NewDiscardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	cancel()
	select {
	case <-done:
		t.Fatal("worker stopped before the intake closed")
	case <-time.After(50 * time.Millisecond):
	}

	close(deliveries)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_DrainsAcceptedJobsOnShutdown(t *testing.T) {
	source := NewHTTPSource(4, logging.NewDiscardLogger(), nil, nil)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusAccepted, postJob(t, source.Handler(), backupBody).Code)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	source.Close()
	assert.Equal(t, http.StatusServiceUnavailable, postJob(t, source.Handler(), backupBody).Code)

	dispatcher := &recordingDispatcher{}
	worker := NewWorker(source.Deliveries(), dispatcher, logging.NewDiscardLogger(), nil)
	require.NoError(t, worker.Run(ctx))

	assert.Equal(t, []string{"b1", "b1", "b1"}, dispatcher.ids())
	assert.Len(t, source.Deliveries(), 0)
}

func TestWorker_DrainDispatchesWithLiveContext(t *testing.T) {
	deliveries := make(chan Delivery, 1)
	deliveries <- delivery("b1")
	close(deliveries)

	var seen error
	dispatcher := dispatchFunc(func(ctx context.Context, msg backup.Message) error {
		seen = ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, NewWorker(deliveries, dispatcher, logging.NewDiscardLogger(), nil).Run(ctx))
	assert.NoError(t, seen)
}

type dispatchFunc func(ctx context.Context, msg backup.Message) error

func (f dispatchFunc) Dispatch(ctx context.Context, msg backup.Message) error {
	return f(ctx, msg)
}

func TestWorker_ProcessesOneAtATime(t *testing.T) {
	deliveries := make(chan Delivery, 2)
	dispatcher := &recordingDispatcher{started: make(chan string), release: make(chan struct{})}
	worker := NewWorker(deliveries, dispatcher, logging.NewDiscardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	deliveries <- delivery("b1")
	deliveries <- delivery("b2")

	assert.Equal(t, "b1", <-dispatcher.started)
	select {
	case id := <-dispatcher.started:
		t.Fatalf("job %s started while b1 was running", id)
	case <-time.After(50 * time.Millisecond):
	}

	dispatcher.release <- struct{}{}
	assert.Equal(t, "b2", <-dispatcher.started)
	dispatcher.release <- struct{}{}
}

func TestWorker_Sweeps(t *testing.T) {
	sweeper := &countingSweeper{}
	worker := NewWorker(make(chan Delivery), &recordingDispatcher{}, logging.NewDiscardLogger(), nil).
		WithSweeper(sweeper, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	assert.Eventually(t, func() bool { return sweeper.count() >= 3 }, 2*time.Second, 10*time.Millisecond)
}

func TestWorker_SweeperDisabled(t *testing.T) {
	sweeper := &countingSweeper{}
	worker := NewWorker(nil, &recordingDispatcher{}, nil, nil).WithSweeper(sweeper, 0)
	assert.Nil(t, worker.sweeper)
}
