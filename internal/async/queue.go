// Package async runs session exports on a bounded worker pool so saves never
// wait on workbook rendering.
package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/fieldcapture/internal/entity"
)

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("export queue is shutting down")

// Job asks for one session to be exported.
type Job struct {
	SessionID   string
	Values      int // newly accepted values that triggered the export
	SubmittedAt time.Time
}

// Exporter writes the export for one session.
type Exporter interface {
	WriteSessionXLSX(ctx context.Context, sessionID string) (string, error)
}

type ExportQueue struct {
	exporter Exporter
	logger   *slog.Logger
	workers  int
	timeout  time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*ExportQueue)

func WithWorkers(n int) Option {
	return func(q *ExportQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *ExportQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithJobTimeout(d time.Duration) Option {
	return func(q *ExportQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewExportQueue(exporter Exporter, logger *slog.Logger, opts ...Option) *ExportQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ExportQueue{
		exporter: exporter,
		logger:   logger,
		workers:  1,
		timeout:  30 * time.Second,
		ch:       make(chan Job, 64),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ExportQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("export worker started", "worker_id", workerID)

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					path, err := q.exporter.WriteSessionXLSX(ctx, job.SessionID)
					cancel()

					if err != nil {
						q.logger.Error("export failed", "worker_id", workerID, "session_id", job.SessionID, "error", err)
					} else {
						q.logger.Info("session exported", "worker_id", workerID, "session_id", job.SessionID, "path", path,
							"queued_ms", time.Since(job.SubmittedAt).Milliseconds())
					}
				}

				q.logger.Debug("export worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Enqueue submits a job, blocking while the queue is full until ctx is done.
func (q *ExportQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "session_id", job.SessionID)
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Debug("queued session for export", "session_id", job.SessionID)
		return nil
	default:
	}
	q.logger.Warn("export queue full, applying backpressure", "session_id", job.SessionID)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notify has the session.Notifier shape: every save that accepted new values
// schedules an export of that session.
func (q *ExportQueue) Notify(ctx context.Context, sessionID string, values []entity.AcceptedValue) {
	if err := q.Enqueue(ctx, Job{SessionID: sessionID, Values: len(values)}); err != nil {
		q.logger.Warn("export not scheduled", "session_id", sessionID, "error", err)
	}
}

// Shutdown stops accepting jobs and waits for queued ones until ctx is done.
func (q *ExportQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("export queue drained, shutdown complete")
	}
}
