package queue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tenant-backup-worker/internal/logging"
)

// DefaultBufferSize is the number of accepted messages held for the worker
const DefaultBufferSize = 64

// HTTPSource accepts job messages over HTTP and buffers them for the worker.
// A full buffer or a closed intake is reported as 503 so the sender retries
// later.
type HTTPSource struct {
	mu         sync.RWMutex
	closed     bool
	deliveries chan Delivery
	router     *mux.Router
	logger     *logging.Logger
	metrics    *Metrics
}

// NewHTTPSource creates the intake. gatherer backs /metrics and may be nil.
func NewHTTPSource(bufferSize int, logger *logging.Logger, metrics *Metrics, gatherer prometheus.Gatherer) *HTTPSource {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	s := &HTTPSource{
		deliveries: make(chan Delivery, bufferSize),
		logger:     logger,
		metrics:    metrics,
	}

	r := mux.NewRouter()
	r.HandleFunc("/v1/jobs", s.enqueue).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	s.router = r

	return s
}

// Handler returns the HTTP handler serving the intake routes
func (s *HTTPSource) Handler() http.Handler {
	return s.router
}

// Deliveries returns the channel the worker consumes
func (s *HTTPSource) Deliveries() <-chan Delivery {
	return s.deliveries
}

// Close stops accepting messages and closes the delivery channel. Messages
// already buffered stay readable. Close is idempotent.
func (s *HTTPSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.deliveries)
}

// Serve listens on addr until ctx is canceled, then shuts down gracefully.
// The intake is closed on return.
func (s *HTTPSource) Serve(ctx context.Context, addr string) error {
	defer s.Close()

	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("Job intake listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("Job intake stopped")
	return nil
}

func (s *HTTPSource) enqueue(w http.ResponseWriter, r *http.Request) {
	msg, err := DecodeMessage(r.Body)
	if err != nil {
		s.metrics.observe("rejected", len(s.deliveries))
		s.logger.WithContext(r.Context()).WithField("error", err.Error()).Warn("Rejected job message")
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	delivery := Delivery{
		ID:         uuid.NewString(),
		Message:    msg,
		ReceivedAt: time.Now().UTC(),
	}

	if status, reason := s.offer(delivery); status != http.StatusAccepted {
		errorResponse(w, status, reason)
		return
	}

	s.metrics.observe("accepted", len(s.deliveries))
	s.logger.WithFields(map[string]interface{}{
		"delivery_id": delivery.ID,
		"tenant_id":   msg.TenantID,
		"job_id":      msg.Payload.BackupID,
		"job_type":    msg.Payload.Type,
	}).Debug("Accepted job message")

	jsonResponse(w, http.StatusAccepted, map[string]string{
		"status":     "accepted",
		"deliveryId": delivery.ID,
	})
}

// offer buffers delivery unless the intake is closed or full
func (s *HTTPSource) offer(delivery Delivery) (int, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.metrics.observe("closed", len(s.deliveries))
		return http.StatusServiceUnavailable, "job intake is shutting down"
	}
	select {
	case s.deliveries <- delivery:
		return http.StatusAccepted, ""
	default:
		s.metrics.observe("full", len(s.deliveries))
		return http.StatusServiceUnavailable, "job buffer is full"
	}
}

func (s *HTTPSource) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

