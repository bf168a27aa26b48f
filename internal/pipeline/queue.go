package pipeline

import (
	"context"
	"errors"
	"sync"

	"log/slog"

	"github.com/google/uuid"
)

// ErrQueueClosed is returned by Enqueue once shutdown has begun; the job was
// not accepted and will never run.
var ErrQueueClosed = errors.New("queue is shutting down")

// Queue is the bounded worker pool that runs accepted jobs. Workers call
// Orchestrator.Run, which owns all per-job semantics; the queue only decides
// when a job gets a goroutine.
type Queue struct {
	orc     *Orchestrator
	logger  *slog.Logger
	workers int

	ch   chan uuid.UUID
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type QueueOption func(*Queue)

func WithWorkers(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan uuid.UUID, n)
		}
	}
}

func NewQueue(orc *Orchestrator, logger *slog.Logger, opts ...QueueOption) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		orc:     orc,
		logger:  logger,
		workers: 4,
		ch:      make(chan uuid.UUID, 64),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for jobID := range q.ch {
					if _, err := q.orc.Run(context.Background(), jobID); err != nil {
						q.logger.Error("job failed", "worker_id", workerID, "job_id", jobID, "error", err)
					} else {
						q.logger.Info("job completed", "worker_id", workerID, "job_id", jobID)
					}
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Enqueue hands a submitted job to the pool. A full channel applies
// backpressure rather than dropping; a closed queue refuses the job with
// ErrQueueClosed so the caller can release it.
func (q *Queue) Enqueue(_ context.Context, jobID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", jobID)
		return ErrQueueClosed
	}
	select {
	case q.ch <- jobID:
		q.logger.Debug("queued job", "job_id", jobID)
	default:
		q.logger.Warn("queue full, applying backpressure", "job_id", jobID)
		q.ch <- jobID
	}
	return nil
}

// Shutdown stops intake and waits for in-flight jobs, bounded by ctx.
func (q *Queue) Shutdown(ctx context.Context) {
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
		q.logger.Info("queue drained, shutdown complete")
	}
}
