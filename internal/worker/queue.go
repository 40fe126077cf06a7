// Package worker runs best-effort background tasks on a bounded pool.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/timmy/gymflow/internal/logger"
	"github.com/timmy/gymflow/internal/monitoring"
)

// Task is a unit of background work. Failures are logged and never retried.
type Task struct {
	Kind string
	Run  func(ctx context.Context) error
}

// Config configures the Queue.
type Config struct {
	Workers    int
	BufferSize int
	// TaskTimeout bounds a single task.
	TaskTimeout time.Duration
}

// Queue is a bounded task queue drained by a fixed set of workers. Submit
// never blocks: when the buffer is full the task is dropped and logged.
type Queue struct {
	tasks   chan Task
	workers int
	timeout time.Duration
}

// NewQueue creates a Queue. Tasks submitted before Serve starts are buffered.
func NewQueue(cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = time.Minute
	}
	return &Queue{
		tasks:   make(chan Task, cfg.BufferSize),
		workers: cfg.Workers,
		timeout: cfg.TaskTimeout,
	}
}

// Submit enqueues fn under kind. It reports false when the task was dropped.
func (q *Queue) Submit(kind string, fn func(ctx context.Context) error) bool {
	select {
	case q.tasks <- Task{Kind: kind, Run: fn}:
		monitoring.BackgroundQueueDepth.Set(float64(len(q.tasks)))
		return true
	default:
		monitoring.BackgroundTasks.WithLabelValues(kind, "dropped").Inc()
		logger.With(logger.Fields{"kind": kind}).Warn(context.Background(), "Background queue full, task dropped")
		return false
	}
}

// Serve runs the workers until ctx is cancelled, then finishes the tasks
// already buffered. It implements suture.Service.
func (q *Queue) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			q.work(ctx, workerID)
		}(i)
	}
	wg.Wait()
	q.drain()
	return nil
}

// String names the service for the supervisor.
func (q *Queue) String() string {
	return "background-queue"
}

func (q *Queue) work(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-q.tasks:
			monitoring.BackgroundQueueDepth.Set(float64(len(q.tasks)))
			q.execute(context.WithoutCancel(ctx), workerID, task)
		}
	}
}

// drain runs whatever is still buffered after shutdown began.
func (q *Queue) drain() {
	for {
		select {
		case task := <-q.tasks:
			q.execute(context.Background(), -1, task)
		default:
			monitoring.BackgroundQueueDepth.Set(0)
			return
		}
	}
}

func (q *Queue) execute(ctx context.Context, workerID int, task Task) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	start := time.Now()
	err := runSafely(ctx, task)
	entry := logger.With(logger.Fields{
		"kind":                 task.Kind,
		"worker":               workerID,
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	})
	if err != nil {
		monitoring.BackgroundTasks.WithLabelValues(task.Kind, "failed").Inc()
		entry.Warn(ctx, "Background task failed: %v", err)
		return
	}
	monitoring.BackgroundTasks.WithLabelValues(task.Kind, "done").Inc()
	entry.Debug(ctx, "Background task done")
}

func runSafely(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task.Run(ctx)
}
