package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned by Submit while a previous batch is still being dispatched or drained.
var ErrBusy = errors.New("queue busy")

// Job represents one unit of work inside a batch.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// Hooks receive batch lifecycle notifications. They are called from the batch
// goroutine (or a worker goroutine when Workers > 1) and must not block for long.
type Hooks struct {
	// OnStart fires right before a job is handed to the handler.
	OnStart func(Job)
	// OnDone fires once per started job with the final handler error.
	OnDone func(Job, error)
	// OnFinish fires once when the batch loop exits. cancelled reports whether
	// Cancel stopped dispatch before every job was started.
	OnFinish func(cancelled bool)
}

// QueueConfig configures batch dispatch behaviour.
type QueueConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Queue dispatches one batch of jobs at a time with bounded concurrency and
// cooperative cancellation checked between jobs.
type Queue struct {
	name    string
	handler Handler

	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	mu       sync.Mutex
	running  bool
	stop     context.CancelFunc
	done     chan struct{}
	parent   context.Context
	shutdown context.CancelFunc
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	parent, shutdown := context.WithCancel(context.Background())
	return &Queue{
		name:       name,
		handler:    handler,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
		parent:     parent,
		shutdown:   shutdown,
	}
}

// Start binds the queue to a process lifetime context; handlers receive a
// context derived from it. Calling Start is optional.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	previous := q.shutdown
	q.parent, q.shutdown = context.WithCancel(ctx)
	previous()
	q.logger.Sugar().Infow("queue started", "queue", q.name, "workers", q.workers)
}

// Running reports whether a batch loop is active.
func (q *Queue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Submit starts dispatching batch in the background. It fails with ErrBusy when
// a batch is already in flight.
func (q *Queue) Submit(batch []Job, hooks Hooks) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return ErrBusy
	}
	if err := q.parent.Err(); err != nil {
		return fmt.Errorf("queue %s stopped: %w", q.name, err)
	}
	dispatch, stop := context.WithCancel(q.parent)
	q.running = true
	q.stop = stop
	q.done = make(chan struct{})

	now := time.Now().UTC()
	jobs := make([]Job, len(batch))
	for i, job := range batch {
		if job.Enqueued.IsZero() {
			job.Enqueued = now
		}
		jobs[i] = job
	}

	go q.run(dispatch, q.parent, jobs, hooks, q.done)
	return nil
}

// Cancel stops dispatching further jobs of the current batch. Jobs already
// handed to the handler finish normally. Safe to call at any time.
func (q *Queue) Cancel() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running && q.stop != nil {
		q.stop()
	}
}

// Wait blocks until the current batch loop exits or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	done := q.done
	q.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels the current batch, waits for in-flight jobs and refuses new batches.
func (q *Queue) Stop() {
	q.Cancel()
	_ = q.Wait(context.Background())
	q.mu.Lock()
	q.shutdown()
	q.mu.Unlock()
	q.logger.Sugar().Infow("queue stopped", "queue", q.name)
}

func (q *Queue) run(dispatch, work context.Context, batch []Job, hooks Hooks, done chan struct{}) {
	defer close(done)

	slots := semaphore.NewWeighted(int64(q.workers))
	var group errgroup.Group
	cancelled := false

	for _, job := range batch {
		if err := slots.Acquire(dispatch, 1); err != nil {
			cancelled = true
			break
		}
		// Cancel may land while a slot was free; re-check before starting.
		if dispatch.Err() != nil {
			slots.Release(1)
			cancelled = true
			break
		}
		if hooks.OnStart != nil {
			hooks.OnStart(job)
		}
		job := job
		group.Go(func() error {
			defer slots.Release(1)
			err := q.process(work, job)
			if hooks.OnDone != nil {
				hooks.OnDone(job, err)
			}
			return nil
		})
	}
	_ = group.Wait()

	if cancelled {
		q.logger.Sugar().Infow("batch cancelled", "queue", q.name, "size", len(batch))
	} else {
		q.logger.Sugar().Infow("batch finished", "queue", q.name, "size", len(batch))
	}
	if hooks.OnFinish != nil {
		hooks.OnFinish(cancelled)
	}

	q.mu.Lock()
	q.running = false
	q.stop()
	q.mu.Unlock()
}

func (q *Queue) process(ctx context.Context, job Job) error {
	for {
		err := q.handler(ctx, job)
		if err == nil || !IsRetryable(err) || job.Attempt >= q.maxRetries {
			if err != nil {
				q.logger.Sugar().Warnw("job failed", "queue", q.name, "job_id", job.ID, "type", job.Type, "attempt", job.Attempt, "error", err)
			}
			return err
		}
		job.Attempt++
		q.logger.Sugar().Warnw("job failed, retrying", "queue", q.name, "job_id", job.ID, "type", job.Type, "attempt", job.Attempt, "error", err)

		timer := time.NewTimer(q.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
